package service

import (
	"context"
	"fmt"
	"time"

	"github.com/straye-as/cultivation-api/internal/auth"
	"github.com/straye-as/cultivation-api/internal/cache"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/mapper"
	"github.com/straye-as/cultivation-api/internal/metrics"
	"github.com/straye-as/cultivation-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ArchivalService applies retention policies. A record is eligible when its
// type has an active policy and it was created before now minus the policy's
// retention months. Archiving only sets archived_at.
type ArchivalService struct {
	archival  *repository.ArchivalRepository
	retention *repository.RetentionPolicyRepository
	authz     auth.Authorizer
	cache     cache.Cache
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewArchivalService creates a new ArchivalService
func NewArchivalService(db *gorm.DB, authz auth.Authorizer, c cache.Cache, m *metrics.Metrics, logger *zap.Logger) *ArchivalService {
	return &ArchivalService{
		archival:  repository.NewArchivalRepository(db),
		retention: repository.NewRetentionPolicyRepository(db),
		authz:     authz,
		cache:     c,
		metrics:   m,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ListPolicies returns the tenant's retention policies
func (s *ArchivalService) ListPolicies(ctx context.Context) ([]domain.RetentionPolicyDTO, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionRetentionManage); err != nil {
		return nil, err
	}
	policies, err := s.retention.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list retention policies: %w", err)
	}
	dtos := make([]domain.RetentionPolicyDTO, len(policies))
	for i := range policies {
		dtos[i] = mapper.ToRetentionPolicyDTO(&policies[i])
	}
	return dtos, nil
}

// UpsertPolicy sets the retention period of one record type
func (s *ArchivalService) UpsertPolicy(ctx context.Context, recordType domain.RecordType, req *domain.UpsertRetentionPolicyRequest) (*domain.RetentionPolicyDTO, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionRetentionManage); err != nil {
		return nil, err
	}
	tenantID, _ := auth.RequireTenant(ctx)

	ve := &ValidationError{}
	if !recordType.IsValid() {
		ve.Add("recordType", "Must be one of: traceability_event batch physical_count")
	}
	validateStruct(req, ve)
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	policy := &domain.RetentionPolicy{
		TenantID:        tenantID,
		RecordType:      recordType,
		RetentionMonths: req.RetentionMonths,
		Active:          active,
	}
	if err := s.retention.Upsert(ctx, policy); err != nil {
		return nil, fmt.Errorf("failed to save retention policy: %w", err)
	}

	s.logger.Info("retention policy saved",
		zap.String("tenantID", tenantID.String()),
		zap.String("recordType", string(recordType)),
		zap.Int("retentionMonths", policy.RetentionMonths),
		zap.Bool("active", policy.Active))

	dto := mapper.ToRetentionPolicyDTO(policy)
	return &dto, nil
}

// Run archives every eligible record of the tenant in ctx. A dry run selects
// the same records and writes nothing. Records already archived are never
// selected again.
func (s *ArchivalService) Run(ctx context.Context, dryRun bool) (*domain.ArchivalReport, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionArchivalRun); err != nil {
		return nil, err
	}
	tenantID, _ := auth.RequireTenant(ctx)

	now := s.now()
	report := &domain.ArchivalReport{TenantID: tenantID, DryRun: dryRun, RanAt: now}

	for _, recordType := range domain.AllRecordTypes {
		policy, err := s.retention.GetActive(ctx, recordType)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s retention policy: %w", recordType, err)
		}
		if policy == nil {
			continue
		}

		cutoff := now.AddDate(0, -policy.RetentionMonths, 0)
		ids, err := s.archival.SelectEligible(ctx, recordType, cutoff)
		if err != nil {
			return nil, fmt.Errorf("failed to select %s records: %w", recordType, err)
		}
		entry := domain.ArchivalTypeReport{
			RecordType:      recordType,
			RetentionMonths: policy.RetentionMonths,
			Cutoff:          cutoff,
			CandidateIDs:    ids,
		}

		if !dryRun && len(ids) > 0 {
			n, err := s.archival.MarkArchived(ctx, recordType, ids, now)
			if err != nil {
				return nil, fmt.Errorf("failed to archive %s records: %w", recordType, err)
			}
			entry.Archived = int(n)
			s.metrics.RecordsArchived(string(recordType), int(n))
		}
		report.Types = append(report.Types, entry)

		s.logger.Info("retention pass",
			zap.String("tenantID", tenantID.String()),
			zap.String("recordType", string(recordType)),
			zap.Time("cutoff", cutoff),
			zap.Int("candidates", len(ids)),
			zap.Int("archived", entry.Archived),
			zap.Bool("dryRun", dryRun))
	}

	if !dryRun && report.Candidates() > 0 {
		if err := s.cache.Invalidate(ctx, tenantID, cache.NamespaceBatches, cache.NamespaceAlerts); err != nil {
			s.metrics.CacheFailed()
			s.logger.Warn("cache invalidation failed", zap.String("tenantID", tenantID.String()), zap.Error(err))
		}
	}
	return report, nil
}
