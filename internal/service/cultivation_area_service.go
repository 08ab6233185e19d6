package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/auth"
	"github.com/straye-as/cultivation-api/internal/cache"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/mapper"
	"github.com/straye-as/cultivation-api/internal/metrics"
	"github.com/straye-as/cultivation-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CultivationAreaService manages locations within facilities
type CultivationAreaService struct {
	areaRepo     *repository.CultivationAreaRepository
	facilityRepo *repository.FacilityRepository
	stageRepo    *repository.StageRepository
	authz        auth.Authorizer
	cache        cache.Cache
	cacheTTL     time.Duration
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewCultivationAreaService creates a new CultivationAreaService
func NewCultivationAreaService(db *gorm.DB, authz auth.Authorizer, c cache.Cache, cacheTTL time.Duration, m *metrics.Metrics, logger *zap.Logger) *CultivationAreaService {
	return &CultivationAreaService{
		areaRepo:     repository.NewCultivationAreaRepository(db),
		facilityRepo: repository.NewFacilityRepository(db),
		stageRepo:    repository.NewStageRepository(db),
		authz:        authz,
		cache:        c,
		cacheTTL:     cacheTTL,
		metrics:      m,
		logger:       logger,
	}
}

func (s *CultivationAreaService) Create(ctx context.Context, req *domain.CreateCultivationAreaRequest) (*domain.CultivationAreaDTO, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionFacilitiesWrite); err != nil {
		return nil, err
	}
	tenantID, _ := auth.RequireTenant(ctx)

	ve := &ValidationError{}
	validateStruct(req, ve)
	if err := ve.OrNil(); err != nil {
		return nil, err
	}
	if _, err := s.facilityRepo.GetByID(ctx, req.FacilityID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewValidationError("facilityId", "Facility not found")
		}
		return nil, err
	}
	stage, err := s.resolveStage(ctx, req.StageID)
	if err != nil {
		return nil, err
	}

	area := &domain.CultivationArea{
		TenantID:   tenantID,
		FacilityID: req.FacilityID,
		StageID:    req.StageID,
		Stage:      stage,
		Name:       req.Name,
		Capacity:   req.Capacity,
	}
	if err := s.areaRepo.Create(ctx, area); err != nil {
		return nil, fmt.Errorf("failed to create cultivation area: %w", err)
	}
	s.invalidate(ctx, tenantID)
	dto := mapper.ToCultivationAreaDTO(area)
	return &dto, nil
}

func (s *CultivationAreaService) resolveStage(ctx context.Context, id *uuid.UUID) (*domain.Stage, error) {
	if id == nil {
		return nil, nil
	}
	stage, err := s.stageRepo.GetByID(ctx, *id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewValidationError("stageId", "Stage not found")
	}
	return stage, err
}

func (s *CultivationAreaService) GetByID(ctx context.Context, id uuid.UUID) (*domain.CultivationAreaDTO, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionFacilitiesRead); err != nil {
		return nil, err
	}
	area, err := s.areaRepo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "cultivation area")
	}
	dto := mapper.ToCultivationAreaDTO(area)
	return &dto, nil
}

// List returns areas, optionally of one facility. Results are cached per
// tenant and facility.
func (s *CultivationAreaService) List(ctx context.Context, facilityID *uuid.UUID) ([]domain.CultivationAreaDTO, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionFacilitiesRead); err != nil {
		return nil, err
	}
	tenantID, _ := auth.RequireTenant(ctx)
	key := cache.NewKey(tenantID, cache.NamespaceAreas, "list:f="+uuidOrEmpty(facilityID))

	var cached []domain.CultivationAreaDTO
	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.metrics.CacheFailed()
		s.logger.Warn("cache read failed", zap.String("key", key.String()), zap.Error(err))
	}
	if found {
		return cached, nil
	}

	areas, err := s.areaRepo.List(ctx, facilityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cultivation areas: %w", err)
	}
	dtos := make([]domain.CultivationAreaDTO, len(areas))
	for i := range areas {
		dtos[i] = mapper.ToCultivationAreaDTO(&areas[i])
	}
	if err := s.cache.Set(ctx, key, dtos, s.cacheTTL); err != nil {
		s.metrics.CacheFailed()
		s.logger.Warn("cache write failed", zap.String("key", key.String()), zap.Error(err))
	}
	return dtos, nil
}

func (s *CultivationAreaService) Update(ctx context.Context, id uuid.UUID, req *domain.UpdateCultivationAreaRequest) (*domain.CultivationAreaDTO, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionFacilitiesWrite); err != nil {
		return nil, err
	}
	ve := &ValidationError{}
	validateStruct(req, ve)
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	area, err := s.areaRepo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "cultivation area")
	}
	stage, err := s.resolveStage(ctx, req.StageID)
	if err != nil {
		return nil, err
	}
	area.Name = req.Name
	area.StageID = req.StageID
	area.Stage = stage
	area.Capacity = req.Capacity
	if err := s.areaRepo.Update(ctx, area); err != nil {
		return nil, fmt.Errorf("failed to update cultivation area: %w", err)
	}
	s.invalidate(ctx, area.TenantID)
	dto := mapper.ToCultivationAreaDTO(area)
	return &dto, nil
}

// Delete removes an area that holds no batches
func (s *CultivationAreaService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.authz.Authorize(ctx, domain.PermissionFacilitiesWrite); err != nil {
		return err
	}
	area, err := s.areaRepo.GetByID(ctx, id)
	if err != nil {
		return notFound(err, "cultivation area")
	}
	batches, err := s.areaRepo.CountBatches(ctx, id)
	if err != nil {
		return err
	}
	if err := conflictIfAny("cultivation area", map[string]int64{"batches": batches}); err != nil {
		return err
	}
	if err := s.areaRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete cultivation area: %w", err)
	}
	s.invalidate(ctx, area.TenantID)
	return nil
}

func (s *CultivationAreaService) invalidate(ctx context.Context, tenantID uuid.UUID) {
	if err := s.cache.Invalidate(ctx, tenantID, cache.NamespaceAreas); err != nil {
		s.metrics.CacheFailed()
		s.logger.Warn("cache invalidation failed", zap.String("tenantID", tenantID.String()), zap.Error(err))
	}
}
