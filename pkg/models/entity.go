package models

import (
	"time"

	"github.com/google/uuid"
)

// TimeWindow bounds a retrieval query to a validity range.
// A zero Start or End means unbounded on that side.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Intersects reports whether a validity range [from, until] overlaps the window.
// A nil from/until means the fact is valid from the beginning / indefinitely.
func (w TimeWindow) Intersects(from, until *time.Time) bool {
	if !w.Start.IsZero() && until != nil && until.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && from != nil && from.After(w.End) {
		return false
	}
	return true
}

// GenericEntity is the store-side representation of a node. The engine
// encodes typed nodes into this shape before writing and decodes store
// results back into typed nodes.
type GenericEntity struct {
	ID             uuid.UUID      `json:"id"`
	TypeTag        string         `json:"type_tag"`
	NaturalKey     string         `json:"natural_key"`
	GroupScope     string         `json:"group_scope"`
	Attributes     map[string]any `json:"attributes"`
	FactText       string         `json:"fact_text"`
	ValidFrom      *time.Time     `json:"valid_from,omitempty"`
	ValidUntil     *time.Time     `json:"valid_until,omitempty"`
	ReferenceCount int64          `json:"reference_count"`
	LastReferenced *time.Time     `json:"last_referenced,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// GenericEdge is the store-side representation of a directed relationship
// between two node natural keys.
type GenericEdge struct {
	ID             uuid.UUID      `json:"id"`
	TypeTag        string         `json:"type_tag"`
	NaturalKey     string         `json:"natural_key"`
	GroupScope     string         `json:"group_scope"`
	FromKey        string         `json:"from_key"`
	ToKey          string         `json:"to_key"`
	Attributes     map[string]any `json:"attributes"`
	FactText       string         `json:"fact_text"`
	ValidFrom      *time.Time     `json:"valid_from,omitempty"`
	ValidUntil     *time.Time     `json:"valid_until,omitempty"`
	ReferenceCount int64          `json:"reference_count"`
	LastReferenced *time.Time     `json:"last_referenced,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// GenericEpisode is the store-side representation of an immutable,
// timestamped episodic record.
type GenericEpisode struct {
	ID            uuid.UUID      `json:"id"`
	EpisodeType   string         `json:"episode_type"`
	GroupScope    string         `json:"group_scope"`
	CorrelationID uuid.UUID      `json:"correlation_id"`
	Payload       map[string]any `json:"payload"`
	FactText      string         `json:"fact_text"`
	ValidFrom     *time.Time     `json:"valid_from,omitempty"`
	ValidUntil    *time.Time     `json:"valid_until,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Attribute accessors used by decoders. Decoding is total: a missing or
// mistyped attribute yields the variant default, never an error, so entities
// written by an older schema version still decode.

func attrString(m map[string]any, key, def string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return def
}

func attrInt(m map[string]any, key string, def int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func attrFloat(m map[string]any, key string, def float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

func attrBool(m map[string]any, key string, def bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return def
}

func attrStringSlice(m map[string]any, key string) []string {
	switch v := m[key].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func attrStringMap(m map[string]any, key string) map[string]string {
	switch v := m[key].(type) {
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, val := range v {
			out[k] = val
		}
		return out
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, item := range v {
			if s, ok := item.(string); ok {
				out[k] = s
			}
		}
		return out
	}
	return nil
}
