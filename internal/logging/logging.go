// Package logging builds the structured logger shared by every
// pipeline worker. Every worker receives a *zap.SugaredLogger scoped
// with its own "component" field instead of reaching for the global
// logger, the way the rest of the pack threads a single configured
// logger down through constructors.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process-wide logger at the requested level. Accepted
// levels: debug, info, warn, error. Unknown levels fall back to info.
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.Encoding = "console"

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build logger: %w", err)
	}
	return logger, nil
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Component returns a child logger tagged with the given worker name,
// e.g. logging.Component(base, "video-worker").
func Component(base *zap.Logger, name string) *zap.SugaredLogger {
	return base.With(zap.String("component", name)).Sugar()
}
