// Package app wires configuration, infrastructure and services into one
// container shared by the API server and the CLI
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/straye-as/cultivation-api/internal/auth"
	"github.com/straye-as/cultivation-api/internal/cache"
	"github.com/straye-as/cultivation-api/internal/config"
	"github.com/straye-as/cultivation-api/internal/database"
	"github.com/straye-as/cultivation-api/internal/jobs"
	"github.com/straye-as/cultivation-api/internal/metrics"
	"github.com/straye-as/cultivation-api/internal/notify"
	"github.com/straye-as/cultivation-api/internal/repository"
	"github.com/straye-as/cultivation-api/internal/service"
	"github.com/straye-as/cultivation-api/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds the long-lived dependencies of a process
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *gorm.DB
	Redis    redis.UniversalClient
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Cache    cache.Cache
	Storage  storage.Storage
	Notifier *notify.Dispatcher
	Authz    auth.Authorizer

	Tenants       *service.TenantService
	Facilities    *service.FacilityService
	Stages        *service.StageService
	Areas         *service.CultivationAreaService
	Batches       *service.BatchService
	Mutations     *service.MutationService
	Events        *service.EventService
	Counts        *service.PhysicalCountService
	LossReports   *service.LossReportService
	Detection     *service.DetectionService
	Archival      *service.ArchivalService
	Exports       *service.ExportService
	Notifications *service.NotificationService

	closers []func() error
}

// New connects to the database and the optional Redis and Pub/Sub backends
// and builds every service
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	db, err := database.NewDatabase(&cfg.Database, log)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: log, DB: db, Authz: auth.NewRoleAuthorizer()}
	a.closers = append(a.closers, func() error { return database.Close(db) })

	if err := a.initInfrastructure(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.initServices()
	return a, nil
}

// NewWithDB builds the services over an existing connection, with in-memory
// cache and local storage. Used by tests.
func NewWithDB(cfg *config.Config, db *gorm.DB, store storage.Storage, log *zap.Logger) *App {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	a := &App{
		Config:   cfg,
		Logger:   log,
		DB:       db,
		Registry: reg,
		Metrics:  m,
		Cache:    cache.NewMemory(),
		Storage:  store,
		Authz:    auth.NewRoleAuthorizer(),
	}
	a.Notifier = notify.NewDispatcher(log, m, notify.NewDBSink(repository.NewNotificationRepository(db)))
	a.initServices()
	return a
}

func (a *App) initInfrastructure(ctx context.Context) error {
	cfg, log := a.Config, a.Logger

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		a.Redis = client
		a.closers = append(a.closers, client.Close)
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	}

	switch {
	case !cfg.Cache.Enabled:
		a.Cache = cache.Noop{}
	case cfg.Cache.Driver == "redis":
		if a.Redis == nil {
			return errors.New("cache driver redis requires redis to be enabled")
		}
		a.Cache = cache.NewRedis(a.Redis)
	default:
		a.Cache = cache.NewMemory()
	}
	log.Info("Cache initialized", zap.Bool("enabled", cfg.Cache.Enabled), zap.String("driver", cfg.Cache.Driver))

	store, err := storage.NewStorage(ctx, &cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.Storage = store
	log.Info("Storage initialized", zap.String("mode", cfg.Storage.Mode))

	sinks := []notify.Sink{
		notify.NewDBSink(repository.NewNotificationRepository(a.DB)),
		notify.NewLogSink(log),
	}
	if cfg.PubSub.Enabled {
		ps, err := notify.NewPubSubSink(ctx, cfg.PubSub.ProjectID, cfg.PubSub.Topic, cfg.PubSub.CredentialsJSON)
		if err != nil {
			return err
		}
		sinks = append(sinks, ps)
		a.closers = append(a.closers, ps.Close)
		log.Info("Pub/Sub notifications enabled", zap.String("project", cfg.PubSub.ProjectID), zap.String("topic", cfg.PubSub.Topic))
	}
	a.Notifier = notify.NewDispatcher(log, a.Metrics, sinks...)
	return nil
}

func (a *App) initServices() {
	cfg, log, db := a.Config, a.Logger, a.DB
	thresholds := cfg.Compliance.ReportingThresholds()
	ttl := cfg.Cache.TTLDuration()

	a.Tenants = service.NewTenantService(db, thresholds, log)
	a.Facilities = service.NewFacilityService(db, a.Authz, log)
	a.Stages = service.NewStageService(db, a.Authz, a.Cache, ttl, a.Metrics, log)
	a.Areas = service.NewCultivationAreaService(db, a.Authz, a.Cache, ttl, a.Metrics, log)
	a.Batches = service.NewBatchService(db, a.Authz, a.Cache, ttl, a.Metrics, log)
	a.Mutations = service.NewMutationService(db, a.Authz, a.Cache, a.Notifier, a.Metrics, thresholds, log)
	a.Events = service.NewEventService(db, a.Authz)
	a.Counts = service.NewPhysicalCountService(db, a.Mutations, a.Authz, log)
	a.LossReports = service.NewLossReportService(db, a.Authz, a.Notifier, thresholds, log)
	a.Detection = service.NewDetectionService(db, a.Authz, a.Notifier, DetectionConfig(&cfg.Compliance), log)
	a.Archival = service.NewArchivalService(db, a.Authz, a.Cache, a.Metrics, log)
	a.Exports = service.NewExportService(db, a.Authz, a.Storage, cfg.Storage.ExportPrefix, thresholds, log)
	a.Notifications = service.NewNotificationService(db, a.Authz, log)
}

// DetectionConfig converts the configured heuristics
func DetectionConfig(c *config.ComplianceConfig) service.DetectionConfig {
	return service.DetectionConfig{
		HighVarianceThreshold: decimal.NewFromFloat(c.HighVarianceThreshold),
		VariancePendingDays:   c.VariancePendingDays,
		TheftWindowDays:       c.TheftWindowDays,
		MultipleLossThreshold: c.MultipleLossThreshold,
		TimePatternThreshold:  c.TimePatternThreshold,
	}
}

// Locker returns the job lock backend: Redis when enabled, otherwise an
// in-process lock
func (a *App) Locker() jobs.Locker {
	if a.Redis != nil {
		return jobs.NewRedisLocker(a.Redis)
	}
	return jobs.NewLocalLocker()
}

// RedisHealth returns a readiness check for Redis, or nil when disabled
func (a *App) RedisHealth() interface{ Ping(context.Context) error } {
	if a.Redis == nil {
		return nil
	}
	return redisPinger{a.Redis}
}

type redisPinger struct {
	client redis.UniversalClient
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close waits for queued notifications and releases connections in reverse
// order of creation
func (a *App) Close() {
	if a.Notifier != nil {
		a.Notifier.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("error during shutdown", zap.Error(err))
		}
	}
	a.closers = nil
}
