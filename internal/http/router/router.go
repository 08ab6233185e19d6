package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/straye-as/cultivation-api/internal/auth"
	"github.com/straye-as/cultivation-api/internal/config"
	"github.com/straye-as/cultivation-api/internal/database"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/http/handler"
	"github.com/straye-as/cultivation-api/internal/http/middleware"
	"github.com/straye-as/cultivation-api/internal/metrics"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	_ "github.com/straye-as/cultivation-api/docs" // registers the swagger spec
)

// Pinger is a dependency checked by the readiness check
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers groups the API handlers mounted under /api/v1
type Handlers struct {
	Auth          *handler.AuthHandler
	Tenant        *handler.TenantHandler
	Facility      *handler.FacilityHandler
	Stage         *handler.StageHandler
	Area          *handler.CultivationAreaHandler
	Batch         *handler.BatchHandler
	Event         *handler.EventHandler
	PhysicalCount *handler.PhysicalCountHandler
	LossReport    *handler.LossReportHandler
	Compliance    *handler.ComplianceHandler
	Notification  *handler.NotificationHandler
}

type Router struct {
	cfg            *config.Config
	logger         *zap.Logger
	db             *gorm.DB
	cache          Pinger
	gatherer       prometheus.Gatherer
	metrics        *metrics.Metrics
	authMiddleware *auth.Middleware
	tenantScope    *middleware.TenantScopeMiddleware
	rateLimiter    *middleware.RateLimiter
	h              Handlers
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	db *gorm.DB,
	cache Pinger,
	gatherer prometheus.Gatherer,
	m *metrics.Metrics,
	authMiddleware *auth.Middleware,
	tenantScope *middleware.TenantScopeMiddleware,
	rateLimiter *middleware.RateLimiter,
	handlers Handlers,
) *Router {
	return &Router{
		cfg:            cfg,
		logger:         logger,
		db:             db,
		cache:          cache,
		gatherer:       gatherer,
		metrics:        m,
		authMiddleware: authMiddleware,
		tenantScope:    tenantScope,
		rateLimiter:    rateLimiter,
		h:              handlers,
	}
}

func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders(&rt.cfg.Security))
	r.Use(middleware.CORS(&rt.cfg.CORS, rt.cfg.App.Environment, rt.logger))
	r.Use(middleware.Metrics(rt.metrics))
	r.Use(rt.rateLimiter.LimitByIP)

	// Health check (basic liveness check)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/health/db", rt.databaseHealth)
	r.Get("/health/ready", rt.readiness)

	if rt.cfg.Server.EnableMetrics && rt.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(rt.gatherer, promhttp.HandlerOpts{}))
	}

	if rt.cfg.Server.EnableSwagger {
		r.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.authMiddleware.Authenticate)
		r.Use(rt.tenantScope.Scope)
		r.Use(middleware.Logging(rt.logger))
		r.Use(rt.rateLimiter.Limit)
		if timeout := rt.cfg.Server.RequestTimeoutDuration(); timeout > 0 {
			r.Use(chimw.Timeout(timeout))
		}

		h := rt.h
		r.Get("/auth/me", h.Auth.Me)

		r.Route("/tenants", func(r chi.Router) {
			r.Get("/", h.Tenant.List)
			r.With(rt.authMiddleware.RequirePermission(domain.PermissionTenantsManage)).Post("/", h.Tenant.Create)
			r.Get("/{id}", h.Tenant.GetByID)
			r.Put("/{id}/thresholds", h.Tenant.UpdateThresholds)
		})

		r.Route("/facilities", func(r chi.Router) {
			r.Get("/", h.Facility.List)
			r.Post("/", h.Facility.Create)
			r.Get("/{id}", h.Facility.GetByID)
			r.Put("/{id}", h.Facility.Update)
			r.Delete("/{id}", h.Facility.Delete)
		})

		r.Route("/stages", func(r chi.Router) {
			r.Get("/", h.Stage.List)
			r.Post("/", h.Stage.Create)
			r.Put("/order", h.Stage.Reorder)
			r.Put("/{id}", h.Stage.Rename)
			r.Delete("/{id}", h.Stage.Delete)
		})

		r.Route("/cultivation-areas", func(r chi.Router) {
			r.Get("/", h.Area.List)
			r.Post("/", h.Area.Create)
			r.Get("/{id}", h.Area.GetByID)
			r.Put("/{id}", h.Area.Update)
			r.Delete("/{id}", h.Area.Delete)
		})

		r.Route("/batches", func(r chi.Router) {
			r.Get("/", h.Batch.List)
			r.Post("/", h.Batch.Create)
			r.Get("/{id}", h.Batch.GetByID)
			r.Put("/{id}", h.Batch.Update)
			r.Delete("/{id}", h.Batch.Delete)

			// Mutations
			r.Post("/{id}/split", h.Batch.Split)
			r.Post("/{id}/process", h.Batch.Process)
			r.Post("/{id}/adjust", h.Batch.Adjust)

			// Traceability
			r.Get("/{id}/events", h.Batch.Events)
			r.Get("/{id}/lineage", h.Batch.Lineage)
		})

		r.Route("/traceability-events", func(r chi.Router) {
			r.Get("/", h.Event.List)
			r.Post("/", h.Event.Register)
			r.Get("/{id}", h.Event.GetByID)
		})

		r.Route("/physical-counts", func(r chi.Router) {
			r.Get("/", h.PhysicalCount.List)
			r.Post("/", h.PhysicalCount.Create)
			r.Get("/{id}", h.PhysicalCount.GetByID)
			r.Post("/{id}/resolve", h.PhysicalCount.Resolve)
		})

		r.Route("/loss-reports", func(r chi.Router) {
			r.Get("/", h.LossReport.List)
			r.Get("/{id}", h.LossReport.GetByID)
			r.Put("/{id}", h.LossReport.Update)
			r.Post("/{id}/police-notification", h.LossReport.RecordPoliceNotification)
			r.Post("/{id}/health-canada-submission", h.LossReport.RecordHealthCanadaSubmission)
		})

		r.Get("/alerts/variance", h.Compliance.VarianceAlerts)
		r.Get("/alerts/theft-patterns", h.Compliance.TheftPatterns)

		r.Get("/retention-policies", h.Compliance.ListRetentionPolicies)
		r.Put("/retention-policies/{recordType}", h.Compliance.UpsertRetentionPolicy)
		r.Post("/archival/run", h.Compliance.RunArchival)

		r.Get("/exports/health-canada", h.Compliance.ExportHealthCanada)

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.Notification.List)
			r.Get("/count", h.Notification.GetUnreadCount)
			r.Put("/read-all", h.Notification.MarkAllRead)
			r.Put("/{id}/read", h.Notification.MarkAsRead)
		})
	})

	return r
}

// databaseHealth is the readiness check with connection pool stats
func (rt *Router) databaseHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := database.HealthCheck(ctx, rt.db); err != nil {
		rt.logger.Error("Database health check failed", zap.Error(err))
		writeHealth(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":  "unhealthy",
			"error":   err.Error(),
			"service": "database",
		})
		return
	}

	stats := map[string]interface{}{}
	if sqlDB, err := rt.db.DB(); err == nil {
		s := sqlDB.Stats()
		stats = map[string]interface{}{
			"max_open_connections": s.MaxOpenConnections,
			"open_connections":     s.OpenConnections,
			"in_use":               s.InUse,
			"idle":                 s.Idle,
			"wait_count":           s.WaitCount,
			"wait_duration_ms":     s.WaitDuration.Milliseconds(),
		}
	}
	writeHealth(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "database",
		"stats":   stats,
	})
}

// readiness checks every dependency
func (rt *Router) readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]interface{})
	allHealthy := true
	check := func(name string, err error) {
		if err != nil {
			rt.logger.Error("health check failed", zap.String("dependency", name), zap.Error(err))
			checks[name] = map[string]interface{}{"status": "unhealthy", "error": err.Error()}
			allHealthy = false
			return
		}
		checks[name] = map[string]interface{}{"status": "healthy"}
	}

	check("database", database.HealthCheck(ctx, rt.db))
	if rt.cache != nil {
		check("redis", rt.cache.Ping(ctx))
	}

	status, label := http.StatusOK, "healthy"
	if !allHealthy {
		status, label = http.StatusServiceUnavailable, "unhealthy"
	}
	writeHealth(w, status, map[string]interface{}{
		"status": label,
		"checks": checks,
	})
}

func writeHealth(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
