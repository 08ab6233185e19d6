package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/straye-as/cultivation-api/internal/auth"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/service"
	"go.uber.org/zap"
)

// Job names
const (
	AlertCheckJobName     = "alert-check"
	RecordsArchiveJobName = "records-archive"
)

// TenantSource lists the tenants a job iterates over
type TenantSource interface {
	ListActive(ctx context.Context) ([]domain.Tenant, error)
}

// AlertChecker computes and optionally dispatches the alerts of the tenant in ctx
type AlertChecker interface {
	CheckAlerts(ctx context.Context, notifyUsers bool) (*service.AlertSummary, error)
}

// Archiver applies the retention policies of the tenant in ctx
type Archiver interface {
	Run(ctx context.Context, dryRun bool) (*domain.ArchivalReport, error)
}

// TenantJob runs one step per active tenant under a system identity while
// holding the job's lock
type TenantJob struct {
	name    string
	tenants TenantSource
	step    func(ctx context.Context, tenant *domain.Tenant) error
	locker  Locker
	lockTTL time.Duration
	timeout time.Duration
	logger  *zap.Logger
}

// NewAlertCheckJob checks variance alerts and theft patterns for every tenant
func NewAlertCheckJob(tenants TenantSource, checker AlertChecker, notifyUsers bool, locker Locker, lockTTL, timeout time.Duration, logger *zap.Logger) *TenantJob {
	j := &TenantJob{name: AlertCheckJobName, tenants: tenants, locker: locker, lockTTL: lockTTL, timeout: timeout, logger: logger}
	j.step = func(ctx context.Context, tenant *domain.Tenant) error {
		summary, err := checker.CheckAlerts(ctx, notifyUsers)
		if err != nil {
			return err
		}
		logger.Info("alert check completed",
			zap.String("tenant", tenant.Slug),
			zap.Int("varianceAlerts", len(summary.VarianceAlerts)),
			zap.Int("theftPatterns", len(summary.TheftPatterns)),
			zap.Int("notified", summary.Notified))
		return nil
	}
	return j
}

// NewRecordsArchiveJob archives eligible records of every tenant
func NewRecordsArchiveJob(tenants TenantSource, archiver Archiver, locker Locker, lockTTL, timeout time.Duration, logger *zap.Logger) *TenantJob {
	j := &TenantJob{name: RecordsArchiveJobName, tenants: tenants, locker: locker, lockTTL: lockTTL, timeout: timeout, logger: logger}
	j.step = func(ctx context.Context, tenant *domain.Tenant) error {
		report, err := archiver.Run(ctx, false)
		if err != nil {
			return err
		}
		logger.Info("records archived",
			zap.String("tenant", tenant.Slug),
			zap.Int("archived", report.Candidates()))
		return nil
	}
	return j
}

// Name returns the scheduler name of the job
func (j *TenantJob) Name() string {
	return j.name
}

// Run is called by the scheduler. A failing tenant does not stop the others.
func (j *TenantJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if _, err := j.RunOnce(ctx); err != nil {
		if errors.Is(err, ErrLocked) {
			j.logger.Info("job skipped, lock held by another runner", zap.String("job_name", j.name))
			return
		}
		j.logger.Error("job failed", zap.String("job_name", j.name), zap.Error(err))
	}
}

// RunOnce runs the job over all active tenants and returns how many tenants
// failed
func (j *TenantJob) RunOnce(ctx context.Context) (int, error) {
	release, err := j.locker.Acquire(ctx, j.name, j.lockTTL)
	if err != nil {
		return 0, err
	}
	defer release()

	start := time.Now()
	tenants, err := j.tenants.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	failed := 0
	for i := range tenants {
		tenant := &tenants[i]
		if err := j.step(auth.SystemContext(ctx, tenant.ID), tenant); err != nil {
			failed++
			j.logger.Error("job step failed",
				zap.String("job_name", j.name),
				zap.String("tenant", tenant.Slug),
				zap.Error(err))
		}
		if ctx.Err() != nil {
			return failed, ctx.Err()
		}
	}

	j.logger.Info("job run finished",
		zap.String("job_name", j.name),
		zap.Int("tenants", len(tenants)),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(start)))
	return failed, nil
}
