package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/auth"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/mapper"
	"github.com/straye-as/cultivation-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PhysicalCountService records inventory counts and resolves their variances
type PhysicalCountService struct {
	tx        *TxRunner
	countRepo *repository.PhysicalCountRepository
	batchRepo *repository.BatchRepository
	mutations *MutationService
	authz     auth.Authorizer
	logger    *zap.Logger
	now       func() time.Time
}

// NewPhysicalCountService creates a new PhysicalCountService. Resolutions
// that change a batch run through mutations.
func NewPhysicalCountService(db *gorm.DB, mutations *MutationService, authz auth.Authorizer, logger *zap.Logger) *PhysicalCountService {
	return &PhysicalCountService{
		tx:        NewTxRunner(db),
		countRepo: repository.NewPhysicalCountRepository(db),
		batchRepo: repository.NewBatchRepository(db),
		mutations: mutations,
		authz:     authz,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create records a count. The expected quantity defaults to the batch's
// current quantity expressed in the count unit.
func (s *PhysicalCountService) Create(ctx context.Context, req *domain.CreatePhysicalCountRequest) (*domain.PhysicalCountDTO, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionCountsWrite); err != nil {
		return nil, err
	}
	tenantID, _ := auth.RequireTenant(ctx)
	user, _ := auth.FromContext(ctx)

	ve := &ValidationError{}
	validateStruct(req, ve)
	if req.CountedQuantity == nil {
		ve.Add("countedQuantity", "countedQuantity is required")
	} else if req.CountedQuantity.IsNegative() {
		ve.Add("countedQuantity", "Must be greater than or equal to 0")
	}
	if req.ExpectedQuantity != nil && req.ExpectedQuantity.IsNegative() {
		ve.Add("expectedQuantity", "Must be greater than or equal to 0")
	}
	if req.Unit != "" && !req.Unit.IsValid() {
		ve.Add("unit", "Must be one of: g kg ml L units")
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	batch, err := s.batchRepo.GetByID(ctx, req.BatchID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewValidationError("batchId", "Batch not found")
	}
	if err != nil {
		return nil, err
	}

	unit := batch.Unit
	if req.Unit != "" {
		unit = req.Unit
	}
	expected := batch.Quantity
	if req.ExpectedQuantity != nil {
		expected = *req.ExpectedQuantity
	} else if expected, err = domain.ConvertQuantity(batch.Quantity, batch.Unit, unit); err != nil {
		return nil, NewValidationError("unit", fmt.Sprintf("Cannot convert the batch unit %s to %s", batch.Unit, unit))
	}

	countDate := s.now()
	if req.CountDate != nil {
		countDate = req.CountDate.UTC()
	}

	count := &domain.PhysicalCount{
		TenantID:         tenantID,
		FacilityID:       batch.FacilityID,
		BatchID:          batch.ID,
		CountDate:        countDate,
		ExpectedQuantity: expected,
		CountedQuantity:  *req.CountedQuantity,
		Variance:         req.CountedQuantity.Sub(expected),
		Unit:             unit,
		CountedBy:        user.UserID,
		Status:           domain.CountPending,
	}
	if err := s.countRepo.Create(ctx, count); err != nil {
		return nil, fmt.Errorf("failed to create physical count: %w", err)
	}

	s.logger.Info("physical count recorded",
		zap.String("tenantID", tenantID.String()),
		zap.String("countID", count.ID.String()),
		zap.String("variance", count.Variance.String()))

	dto := mapper.ToPhysicalCountDTO(count)
	return &dto, nil
}

// GetByID returns one count
func (s *PhysicalCountService) GetByID(ctx context.Context, id uuid.UUID) (*domain.PhysicalCountDTO, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionCountsRead); err != nil {
		return nil, err
	}
	count, err := s.countRepo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "physical count")
	}
	dto := mapper.ToPhysicalCountDTO(count)
	return &dto, nil
}

// List returns a page of counts
func (s *PhysicalCountService) List(ctx context.Context, filters repository.CountFilters, page repository.Pagination) (*domain.PaginatedResponse, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionCountsRead); err != nil {
		return nil, err
	}
	page = page.Normalize()
	counts, total, err := s.countRepo.List(ctx, filters, page)
	if err != nil {
		return nil, fmt.Errorf("failed to list physical counts: %w", err)
	}
	dtos := make([]domain.PhysicalCountDTO, len(counts))
	for i := range counts {
		dtos[i] = mapper.ToPhysicalCountDTO(&counts[i])
	}
	return domain.NewPaginatedResponse(dtos, total, page.Page, page.PageSize), nil
}

// Resolve closes a pending count. adjust books the variance onto the batch
// with an inventory adjustment, report_loss registers a loss_theft event for
// a shortfall, accept closes the count without touching the batch. The count
// and any mutation commit together.
func (s *PhysicalCountService) Resolve(ctx context.Context, id uuid.UUID, req *domain.ResolvePhysicalCountRequest) (*domain.PhysicalCountDTO, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionCountsWrite); err != nil {
		return nil, err
	}
	tenantID, _ := auth.RequireTenant(ctx)
	user, _ := auth.FromContext(ctx)

	ve := &ValidationError{}
	validateStruct(req, ve)
	if req.Resolution != "" && !req.Resolution.IsValid() {
		ve.Add("resolution", "Must be one of: accept adjust report_loss")
	}
	if req.IncidentType != "" && !req.IncidentType.IsValid() {
		ve.Add("incidentType", "Must be one of: loss theft")
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	var count *domain.PhysicalCount
	var result *domain.MutationResult
	var thresholds domain.ReportingThresholds

	err := s.tx.run(ctx, func(r *ledgerRepos) error {
		c, err := r.counts.GetForUpdate(ctx, id)
		if err != nil {
			return notFound(err, "physical count")
		}
		if c.Status != domain.CountPending {
			return invariantf("physical count %s is already resolved", c.ID)
		}
		count = c

		mutation, err := s.resolutionMutation(ctx, r, c, req)
		if err != nil {
			return err
		}
		if mutation != nil {
			if err := validateMutation(mutation); err != nil {
				return err
			}
			result, thresholds, err = s.mutations.execute(ctx, r, mutation, tenantID, user.UserID)
			if err != nil {
				return err
			}
		}

		now := s.now()
		c.Resolution = req.Resolution
		c.ResolutionNotes = req.Notes
		c.ResolvedAt = &now
		c.ResolvedBy = &user.UserID
		c.Status = domain.CountResolved
		return r.counts.Resolve(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	if result != nil {
		s.mutations.afterCommit(ctx, tenantID, result, thresholds)
	}
	s.logger.Info("physical count resolved",
		zap.String("tenantID", tenantID.String()),
		zap.String("countID", count.ID.String()),
		zap.String("resolution", string(req.Resolution)))

	dto := mapper.ToPhysicalCountDTO(count)
	return &dto, nil
}

func (s *PhysicalCountService) resolutionMutation(ctx context.Context, r *ledgerRepos, c *domain.PhysicalCount, req *domain.ResolvePhysicalCountRequest) (domain.BatchMutation, error) {
	reason := "Physical count reconciliation"
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		reason = reason + ": " + notes
	}

	switch req.Resolution {
	case domain.ResolutionAdjust:
		// the batch may have moved since the count; adjust to the counted
		// quantity from where it stands now
		batch, err := r.batches.GetForUpdate(ctx, c.BatchID)
		if err != nil {
			return nil, notFound(err, "batch")
		}
		current, err := domain.ConvertQuantity(batch.Quantity, batch.Unit, c.Unit)
		if err != nil {
			return nil, NewValidationError("unit", fmt.Sprintf("Count unit %s does not match batch unit %s", c.Unit, batch.Unit))
		}
		delta := c.CountedQuantity.Sub(current)
		if delta.IsZero() {
			return nil, nil
		}
		return &domain.AdjustMutation{
			BatchID: c.BatchID,
			Delta:   &delta,
			Unit:    c.Unit,
			Reason:  reason,
		}, nil

	case domain.ResolutionReportLoss:
		if !c.Variance.IsNegative() {
			return nil, NewValidationError("resolution", "Only a shortfall can be reported as a loss")
		}
		batch, err := r.batches.GetByID(ctx, c.BatchID)
		if err != nil {
			return nil, notFound(err, "batch")
		}
		lost := c.Variance.Neg()
		batchID := c.BatchID
		return &domain.EventOnlyMutation{
			EventType:      domain.EventLossTheft,
			BatchID:        &batchID,
			FacilityID:     batch.FacilityID,
			AreaID:         batch.CultivationAreaID,
			Quantity:       &lost,
			Unit:           c.Unit,
			Reason:         reason,
			IncidentType:   req.IncidentType,
			EstimatedValue: req.EstimatedValue,
			DiscoveredAt:   &c.CountDate,
		}, nil
	}
	return nil, nil
}
