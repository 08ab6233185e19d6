package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/straye-as/cultivation-api/internal/auth"
	"github.com/straye-as/cultivation-api/internal/cache"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/mapper"
	"github.com/straye-as/cultivation-api/internal/metrics"
	"github.com/straye-as/cultivation-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BatchListParams are the query parameters of a batch listing
type BatchListParams struct {
	Filters    repository.BatchFilters
	Pagination repository.Pagination
	Sort       repository.SortConfig
}

func (p BatchListParams) cacheName() string {
	f := p.Filters
	page := p.Pagination.Normalize()
	return fmt.Sprintf("list:f=%s:a=%s:p=%s:s=%s:arch=%t:page=%d:%d:sort=%s:%s",
		uuidOrEmpty(f.FacilityID), uuidOrEmpty(f.CultivationAreaID), f.ProductType,
		strings.ToLower(strings.TrimSpace(f.Search)), f.IncludeArchived,
		page.Page, page.PageSize, p.Sort.Field, p.Sort.Order)
}

func uuidOrEmpty(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

// BatchService handles batch creation, reads and descriptive updates.
// Quantity changes go through MutationService.
type BatchService struct {
	tx        *TxRunner
	batchRepo *repository.BatchRepository
	eventRepo *repository.TraceabilityEventRepository
	lineage   *repository.LineageRepository
	authz     auth.Authorizer
	cache     cache.Cache
	cacheTTL  time.Duration
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewBatchService creates a new BatchService
func NewBatchService(
	db *gorm.DB,
	authz auth.Authorizer,
	c cache.Cache,
	cacheTTL time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *BatchService {
	return &BatchService{
		tx:        NewTxRunner(db),
		batchRepo: repository.NewBatchRepository(db),
		eventRepo: repository.NewTraceabilityEventRepository(db),
		lineage:   repository.NewLineageRepository(db),
		authz:     authz,
		cache:     c,
		cacheTTL:  cacheTTL,
		metrics:   m,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts a batch together with its creation event
func (s *BatchService) Create(ctx context.Context, req *domain.CreateBatchRequest) (*domain.BatchDTO, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionBatchesWrite); err != nil {
		return nil, err
	}
	tenantID, _ := auth.RequireTenant(ctx)
	user, _ := auth.FromContext(ctx)

	if err := validateCreateBatch(req); err != nil {
		return nil, err
	}

	now := s.now()
	var batch *domain.Batch
	var event *domain.TraceabilityEvent

	err := s.tx.run(ctx, func(r *ledgerRepos) error {
		area, err := r.areas.GetByID(ctx, req.CultivationAreaID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NewValidationError("cultivationAreaId", "Cultivation area not found")
		}
		if err != nil {
			return err
		}

		batch = &domain.Batch{
			TenantID:          tenantID,
			FacilityID:        area.FacilityID,
			CultivationAreaID: area.ID,
			Name:              req.Name,
			Quantity:          *req.Quantity,
			Unit:              req.Unit,
			EndType:           req.EndType,
			Variety:           req.Variety,
			ProductType:       req.ProductType,
			OriginType:        req.OriginType,
			OriginDetails:     req.OriginDetails,
			Packaged:          req.Packaged,
			SubLocation:       req.SubLocation,
		}
		policy, err := r.retention.GetActive(ctx, domain.RecordBatch)
		if err != nil {
			return err
		}
		if policy != nil {
			expires := now.AddDate(0, policy.RetentionMonths, 0)
			batch.RetentionExpiresAt = &expires
		}
		if err := r.batches.Create(ctx, batch); err != nil {
			return fmt.Errorf("failed to create batch: %w", err)
		}

		event = &domain.TraceabilityEvent{
			TenantID:       tenantID,
			BatchID:        &batch.ID,
			EventType:      domain.EventCreation,
			FacilityID:     batch.FacilityID,
			AreaID:         batch.CultivationAreaID,
			UserID:         user.UserID,
			Quantity:       decimalPtr(batch.Quantity),
			Unit:           batch.Unit,
			Description:    fmt.Sprintf("Batch %s created", batch.Name),
			ToLocation:     area.Name,
			QuantityBefore: decimalPtr(decimal.Zero),
			QuantityAfter:  decimalPtr(batch.Quantity),
			OccurredAt:     now,
		}
		if err := r.events.Create(ctx, event); err != nil {
			return fmt.Errorf("failed to record creation event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, tenantID)
	s.metrics.EventRecorded(string(domain.EventCreation))
	s.logger.Info("batch created",
		zap.String("tenantID", tenantID.String()),
		zap.String("batchID", batch.ID.String()),
		zap.String("quantity", batch.Quantity.String()),
		zap.String("unit", string(batch.Unit)))

	dto := mapper.ToBatchDTO(batch)
	return &dto, nil
}

func validateCreateBatch(req *domain.CreateBatchRequest) error {
	ve := &ValidationError{}
	validateStruct(req, ve)
	if req.Quantity == nil {
		ve.Add("quantity", "quantity is required")
	} else if req.Quantity.IsNegative() {
		ve.Add("quantity", "Must be greater than or equal to 0")
	}
	if req.Unit != "" && !req.Unit.IsValid() {
		ve.Add("unit", "Must be one of: g kg ml L units")
	}
	if req.EndType != "" && !req.EndType.IsValid() {
		ve.Add("endType", "Must be one of: dried fresh")
	}
	if req.ProductType != "" && !req.ProductType.IsValid() {
		ve.Add("productType", "Must be a Health Canada product type")
	}
	if req.OriginType != "" && !req.OriginType.IsValid() {
		ve.Add("originType", "Must be one of: internal external_purchase seeds clones tissue_culture")
	}
	if req.OriginType.RequiresDetails() && isBlank(req.OriginDetails) {
		ve.Add("originDetails", "originDetails is required for external purchases")
	}
	return ve.OrNil()
}

// GetByID returns one batch of the tenant
func (s *BatchService) GetByID(ctx context.Context, id uuid.UUID) (*domain.BatchDTO, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionBatchesRead); err != nil {
		return nil, err
	}
	batch, err := s.batchRepo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "batch")
	}
	dto := mapper.ToBatchDTO(batch)
	return &dto, nil
}

// List returns a page of batches. Pages are cached per tenant until the
// next write.
func (s *BatchService) List(ctx context.Context, params BatchListParams) (*domain.PaginatedResponse, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionBatchesRead); err != nil {
		return nil, err
	}
	tenantID, _ := auth.RequireTenant(ctx)
	key := cache.NewKey(tenantID, cache.NamespaceBatches, params.cacheName())

	var cached domain.PaginatedBatches
	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.metrics.CacheFailed()
		s.logger.Warn("cache read failed", zap.String("key", key.String()), zap.Error(err))
	}
	if found {
		return cached.Response(), nil
	}

	page := params.Pagination.Normalize()
	batches, total, err := s.batchRepo.List(ctx, params.Filters, page, params.Sort)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	dtos := make([]domain.BatchDTO, len(batches))
	for i := range batches {
		dtos[i] = mapper.ToBatchDTO(&batches[i])
	}
	result := domain.NewPaginatedBatches(dtos, total, page.Page, page.PageSize)

	if err := s.cache.Set(ctx, key, result, s.cacheTTL); err != nil {
		s.metrics.CacheFailed()
		s.logger.Warn("cache write failed", zap.String("key", key.String()), zap.Error(err))
	}
	return result.Response(), nil
}

// Update changes the descriptive fields of a batch
func (s *BatchService) Update(ctx context.Context, id uuid.UUID, req *domain.UpdateBatchRequest) (*domain.BatchDTO, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionBatchesWrite); err != nil {
		return nil, err
	}
	ve := &ValidationError{}
	validateStruct(req, ve)
	if req.EndType != "" && !req.EndType.IsValid() {
		ve.Add("endType", "Must be one of: dried fresh")
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	batch, err := s.batchRepo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "batch")
	}
	batch.Name = req.Name
	batch.Variety = req.Variety
	batch.Packaged = req.Packaged
	batch.SubLocation = req.SubLocation
	if req.EndType != "" {
		batch.EndType = req.EndType
	}
	if err := s.batchRepo.UpdateDetails(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to update batch: %w", err)
	}

	tenantID, _ := auth.RequireTenant(ctx)
	s.invalidate(ctx, tenantID)
	dto := mapper.ToBatchDTO(batch)
	return &dto, nil
}

// Delete removes a batch that nothing references yet
func (s *BatchService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.authz.Authorize(ctx, domain.PermissionBatchesWrite); err != nil {
		return err
	}
	if _, err := s.batchRepo.GetByID(ctx, id); err != nil {
		return notFound(err, "batch")
	}
	deps, err := s.batchRepo.CountDependents(ctx, id)
	if err != nil {
		return err
	}
	if err := conflictIfAny("batch", map[string]int64{
		"traceability events": deps.Events,
		"physical counts":     deps.Counts,
		"loss/theft reports":  deps.Reports,
		"lineage links":       deps.Lineage,
	}); err != nil {
		return err
	}
	if err := s.batchRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete batch: %w", err)
	}
	tenantID, _ := auth.RequireTenant(ctx)
	s.invalidate(ctx, tenantID)
	return nil
}

// Events returns the ledger of a batch in chronological order
func (s *BatchService) Events(ctx context.Context, id uuid.UUID) ([]domain.TraceabilityEventDTO, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionEventsRead); err != nil {
		return nil, err
	}
	if _, err := s.batchRepo.GetByID(ctx, id); err != nil {
		return nil, notFound(err, "batch")
	}
	events, err := s.eventRepo.ListByBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	return mapper.ToTraceabilityEventDTOs(events), nil
}

// Lineage returns the direct parents and children of a batch
func (s *BatchService) Lineage(ctx context.Context, id uuid.UUID) (*domain.LineageDTO, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionBatchesRead); err != nil {
		return nil, err
	}
	if _, err := s.batchRepo.GetByID(ctx, id); err != nil {
		return nil, notFound(err, "batch")
	}
	parents, err := s.lineage.Parents(ctx, id)
	if err != nil {
		return nil, err
	}
	children, err := s.lineage.Children(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.LineageDTO{
		BatchID:  id,
		Parents:  mapper.ToBatchLineageDTOs(parents),
		Children: mapper.ToBatchLineageDTOs(children),
	}, nil
}

func (s *BatchService) invalidate(ctx context.Context, tenantID uuid.UUID) {
	if err := s.cache.Invalidate(ctx, tenantID, cache.NamespaceBatches, cache.NamespaceAreas); err != nil {
		s.metrics.CacheFailed()
		s.logger.Warn("cache invalidation failed", zap.String("tenantID", tenantID.String()), zap.Error(err))
	}
}
