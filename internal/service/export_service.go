package service

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/straye-as/cultivation-api/internal/auth"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/export"
	"github.com/straye-as/cultivation-api/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ExportResult describes an encoded export
type ExportResult struct {
	Bundle      *export.Bundle
	Format      export.Format
	FileName    string
	ContentType string
	Data        []byte
	Location    string
	Size        int64
}

// ExportService builds Health Canada bundles for the tenant in ctx
type ExportService struct {
	tx         *TxRunner
	authz      auth.Authorizer
	storage    storage.Storage
	prefix     string
	thresholds domain.ReportingThresholds
	logger     *zap.Logger
	now        func() time.Time
}

// NewExportService creates a new ExportService. store may be nil when
// exports are never published.
func NewExportService(db *gorm.DB, authz auth.Authorizer, store storage.Storage, prefix string, thresholds domain.ReportingThresholds, logger *zap.Logger) *ExportService {
	return &ExportService{
		tx:         NewTxRunner(db),
		authz:      authz,
		storage:    store,
		prefix:     prefix,
		thresholds: thresholds,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Build loads the tenant's records in one transaction and assembles the
// bundle. The summary is derived from the loaded rows only.
func (s *ExportService) Build(ctx context.Context, period export.DateRange) (*export.Bundle, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionExportsRun); err != nil {
		return nil, err
	}
	tenantID, _ := auth.RequireTenant(ctx)

	var (
		tenant *domain.Tenant
		recs   export.Records
	)
	err := s.tx.run(ctx, func(r *ledgerRepos) error {
		var err error
		if tenant, err = r.tenants.GetByID(ctx, tenantID); err != nil {
			return notFound(err, "tenant")
		}
		if recs.Facilities, err = r.facility.ListForExport(ctx); err != nil {
			return fmt.Errorf("failed to load facilities: %w", err)
		}
		if recs.Batches, err = r.batches.ListForExport(ctx, period.Start, period.End); err != nil {
			return fmt.Errorf("failed to load batches: %w", err)
		}
		if recs.Events, err = r.events.ListForExport(ctx, period.Start, period.End); err != nil {
			return fmt.Errorf("failed to load traceability events: %w", err)
		}
		if recs.PhysicalCounts, err = r.counts.ListForExport(ctx, period.Start, period.End); err != nil {
			return fmt.Errorf("failed to load physical counts: %w", err)
		}
		if recs.LossTheftReports, err = r.reports.ListForExport(ctx, period.Start, period.End); err != nil {
			return fmt.Errorf("failed to load loss/theft reports: %w", err)
		}
		if recs.RetentionPolicies, err = r.retention.ListForExport(ctx); err != nil {
			return fmt.Errorf("failed to load retention policies: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return export.NewBundle(tenant, period, s.now(), tenant.ReportingThresholds(s.thresholds), recs), nil
}

// Render builds the bundle and encodes it in format
func (s *ExportService) Render(ctx context.Context, format export.Format, period export.DateRange) (*ExportResult, error) {
	bundle, err := s.Build(ctx, period)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := export.Encode(&buf, format, bundle); err != nil {
		return nil, fmt.Errorf("failed to encode %s export: %w", format, err)
	}
	generatedAt, err := time.Parse(time.RFC3339, bundle.GeneratedAt)
	if err != nil {
		generatedAt = s.now()
	}

	s.logger.Info("health canada export rendered",
		zap.String("tenantID", bundle.Tenant.ID.String()),
		zap.String("format", string(format)),
		zap.Int("batches", len(bundle.Batches)),
		zap.Int("events", len(bundle.Events)),
		zap.Int("reportsRequiringHealthCanada", bundle.Summary.ReportsRequiringHealthCanada))

	return &ExportResult{
		Bundle:      bundle,
		Format:      format,
		FileName:    export.FileName(bundle, format, generatedAt),
		ContentType: format.ContentType(),
		Data:        buf.Bytes(),
		Size:        int64(buf.Len()),
	}, nil
}

// Publish renders the export and uploads it to
// <prefix>/<tenant-slug>/<file name> on the configured storage backend
func (s *ExportService) Publish(ctx context.Context, format export.Format, period export.DateRange) (*ExportResult, error) {
	if s.storage == nil {
		return nil, fmt.Errorf("export storage is not configured")
	}
	res, err := s.Render(ctx, format, period)
	if err != nil {
		return nil, err
	}

	key := path.Join(s.prefix, res.Bundle.Tenant.Slug, res.FileName)
	location, size, err := s.storage.Upload(ctx, key, res.ContentType, bytes.NewReader(res.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to upload export: %w", err)
	}
	res.Location = location
	res.Size = size

	s.logger.Info("health canada export published",
		zap.String("tenantID", res.Bundle.Tenant.ID.String()),
		zap.String("location", location),
		zap.Int64("size", size))
	return res, nil
}
