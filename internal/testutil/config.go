package testutil

import (
	"github.com/shopspring/decimal"
	"github.com/straye-as/cultivation-api/internal/config"
	"github.com/straye-as/cultivation-api/internal/domain"
)

// Config returns a configuration matching the loader defaults, with Redis,
// Pub/Sub and background jobs disabled
func Config() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "cultivation-api-test", Environment: "test", Port: 8080},
		Cache: config.CacheConfig{
			Driver:  "memory",
			TTL:     30,
			Enabled: true,
		},
		Storage: config.StorageConfig{Mode: "local", ExportPrefix: "exports"},
		Logging: config.LoggingConfig{Level: "error", Format: "console"},
		Server:  config.ServerConfig{EnableMetrics: true},
		RateLimit: config.RateLimitConfig{
			Enabled:               false,
			RequestsPerMinute:     60,
			RequestsPerMinuteAuth: 240,
		},
		Compliance: config.ComplianceConfig{
			LossQuantityThreshold: 50,
			LossUnitsThreshold:    10,
			LossValueThreshold:    1000,
			HighVarianceThreshold: 100,
			VariancePendingDays:   7,
			TheftWindowDays:       30,
			MultipleLossThreshold: 3,
			TimePatternThreshold:  3,
		},
		Jobs: config.JobsConfig{LockTTL: 60},
	}
}

// Thresholds are the reporting thresholds of Config
func Thresholds() domain.ReportingThresholds {
	return domain.ReportingThresholds{
		Quantity: decimal.NewFromInt(50),
		Units:    decimal.NewFromInt(10),
		Value:    decimal.NewFromInt(1000),
	}
}
