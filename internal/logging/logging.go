// Package logging builds the process-wide zap logger.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger for the given mode ("prod"/"production" for JSON
// output, anything else for the development console encoder) at the
// given level. An empty level means info in production and debug
// otherwise.
func New(mode, level string) (*zap.Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}

	if strings.TrimSpace(level) != "" {
		lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	return cfg.Build()
}

// Learner is the structured field used for learner identifiers.
func Learner(id string) zap.Field {
	return zap.String("learner_id", id)
}

// Lesson is the structured field used for lesson identifiers.
func Lesson(id string) zap.Field {
	return zap.String("lesson_id", id)
}
