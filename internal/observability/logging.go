// Package observability provides structured logging for the impostor server.
package observability

import (
	"fmt"
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/impostor/internal/config"
)

// NewLogger creates a structured logger from the given logging configuration.
//
// Precondition: cfg.Level must be one of "debug", "info", "warn", "error".
// Precondition: cfg.Format must be "json" or "console".
// Postcondition: Returns a configured zap.Logger or a non-nil error.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	var zapCfg zap.Config
	switch cfg.Format {
	case "json":
		zapCfg = zap.NewProductionConfig()
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

// NewTransportErrorLog returns a standard library logger that forwards to
// logger at debug level. net/http servers report peer resets and broken
// pipes through this logger; they are expected on a LAN party server and
// must not surface as errors.
//
// Precondition: logger must be non-nil.
func NewTransportErrorLog(logger *zap.Logger, component string) *log.Logger {
	l, err := zap.NewStdLogAt(logger.With(zap.String("component", component)), zapcore.DebugLevel)
	if err != nil {
		// Only reachable with an invalid level constant.
		return zap.NewStdLog(logger)
	}
	return l
}
