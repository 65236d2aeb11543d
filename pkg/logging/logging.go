package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New builds the root logger for the given environment. Local and test
// environments get human-readable console output; everything else logs
// structured JSON at info level.
func New(env string) (*zap.Logger, error) {
	var cfg zap.Config
	switch env {
	case "local", "test":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
