// Package logger builds the zap loggers shared by the API, the CLI and the
// background jobs
package logger

import (
	"fmt"
	"strings"

	"github.com/straye-as/cultivation-api/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. Production or format "json" gets the
// JSON encoder with ISO8601 timestamps; anything else the colored console
// encoder. An unknown level falls back to info.
func NewLogger(cfg *config.LoggingConfig, app *config.AppConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if strings.EqualFold(cfg.Format, "json") || app.Environment == "production" {
		zapCfg = zap.NewProductionConfig()
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.InitialFields = map[string]interface{}{
		"app":         app.Name,
		"environment": app.Environment,
	}

	log, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return log, nil
}

// WithRequest tags log with the request line and id
func WithRequest(log *zap.Logger, method, path, requestID string) *zap.Logger {
	return log.With(
		zap.String("method", method),
		zap.String("path", path),
		zap.String("requestID", requestID),
	)
}

// WithTenant tags log with the tenant and user of a request. Empty values
// are left out.
func WithTenant(log *zap.Logger, tenantID, userID string) *zap.Logger {
	var fields []zap.Field
	if tenantID != "" {
		fields = append(fields, zap.String("tenantID", tenantID))
	}
	if userID != "" {
		fields = append(fields, zap.String("userID", userID))
	}
	return log.With(fields...)
}
