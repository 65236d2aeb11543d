package apperrors

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrMalformedInput   = errors.New("malformed input")
	ErrStoreUnavailable = errors.New("knowledge store unavailable")
	ErrValidation       = errors.New("validation failed")
)
