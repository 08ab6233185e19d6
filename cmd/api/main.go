package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/straye-as/cultivation-api/docs"
	"github.com/straye-as/cultivation-api/internal/app"
	"github.com/straye-as/cultivation-api/internal/auth"
	"github.com/straye-as/cultivation-api/internal/config"
	"github.com/straye-as/cultivation-api/internal/http/handler"
	"github.com/straye-as/cultivation-api/internal/http/middleware"
	"github.com/straye-as/cultivation-api/internal/http/router"
	"github.com/straye-as/cultivation-api/internal/jobs"
	"github.com/straye-as/cultivation-api/internal/logger"
	"go.uber.org/zap"
)

// @title Cultivation Compliance API
// @version 1.0
// @description Batch traceability, loss/theft reporting, retention and Health Canada exports for licensed cannabis producers

// @contact.name API Support
// @contact.email support@straye.io

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name x-api-key
// @description API Key for system operations; select the tenant with X-Tenant-ID
// @Security BearerAuth
// @Security ApiKeyAuth

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load basic configuration first (for logging setup)
	basicCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&basicCfg.Logging, &basicCfg.App)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting application",
		zap.String("app", basicCfg.App.Name),
		zap.String("env", basicCfg.App.Environment),
		zap.Int("port", basicCfg.App.Port),
	)

	if host := os.Getenv("SWAGGER_HOST"); host != "" {
		docs.SwaggerInfo.Host = host
	} else {
		docs.SwaggerInfo.Host = fmt.Sprintf("localhost:%d", basicCfg.App.Port)
	}

	// In staging/production secrets may come from Azure Key Vault
	cfg, err := config.LoadWithSecrets(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	handlers := router.Handlers{
		Auth:          handler.NewAuthHandler(),
		Tenant:        handler.NewTenantHandler(a.Tenants, log),
		Facility:      handler.NewFacilityHandler(a.Facilities, log),
		Stage:         handler.NewStageHandler(a.Stages, log),
		Area:          handler.NewCultivationAreaHandler(a.Areas, log),
		Batch:         handler.NewBatchHandler(a.Batches, a.Mutations, log),
		Event:         handler.NewEventHandler(a.Events, a.Mutations, log),
		PhysicalCount: handler.NewPhysicalCountHandler(a.Counts, log),
		LossReport:    handler.NewLossReportHandler(a.LossReports, log),
		Compliance:    handler.NewComplianceHandler(a.Detection, a.Archival, a.Exports, log),
		Notification:  handler.NewNotificationHandler(a.Notifications, log),
	}

	rt := router.NewRouter(
		cfg,
		log,
		a.DB,
		a.RedisHealth(),
		a.Registry,
		a.Metrics,
		auth.NewMiddleware(cfg, log),
		middleware.NewTenantScopeMiddleware(log),
		middleware.NewRateLimiter(&cfg.RateLimit, log),
		handlers,
	)

	scheduler, err := startScheduler(a)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      rt.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		if scheduler != nil {
			<-scheduler.Stop().Done()
			log.Info("Scheduler stopped")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("Failed to shutdown gracefully", zap.Error(err))
			return err
		}
		log.Info("Server stopped gracefully")
	}
	return nil
}

// startScheduler registers the alert check and archival jobs. It returns nil
// when jobs are disabled.
func startScheduler(a *app.App) (*jobs.Scheduler, error) {
	cfg, log := a.Config.Jobs, a.Logger
	if !cfg.Enabled {
		log.Info("Background jobs disabled")
		return nil, nil
	}

	locker := a.Locker()
	lockTTL := cfg.LockTTLDuration()
	timeout := lockTTL

	scheduler := jobs.NewScheduler(log)
	if err := scheduler.Register(cfg.AlertCheckSchedule,
		jobs.NewAlertCheckJob(a.Tenants, a.Detection, cfg.AlertCheckNotify, locker, lockTTL, timeout, log)); err != nil {
		return nil, fmt.Errorf("failed to register alert check job: %w", err)
	}
	if err := scheduler.Register(cfg.ArchivalSchedule,
		jobs.NewRecordsArchiveJob(a.Tenants, a.Archival, locker, lockTTL, timeout, log)); err != nil {
		return nil, fmt.Errorf("failed to register archival job: %w", err)
	}
	scheduler.Start()

	log.Info("Scheduler started",
		zap.String("alert_check", cfg.AlertCheckSchedule),
		zap.String("archival", cfg.ArchivalSchedule),
		zap.Bool("redis_locks", a.Redis != nil),
	)
	return scheduler, nil
}
