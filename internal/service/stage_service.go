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

const stagesCacheName = "all"

// StageService manages the ordered cultivation pipeline of a tenant
type StageService struct {
	stageRepo *repository.StageRepository
	authz     auth.Authorizer
	cache     cache.Cache
	cacheTTL  time.Duration
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewStageService creates a new StageService
func NewStageService(db *gorm.DB, authz auth.Authorizer, c cache.Cache, cacheTTL time.Duration, m *metrics.Metrics, logger *zap.Logger) *StageService {
	return &StageService{
		stageRepo: repository.NewStageRepository(db),
		authz:     authz,
		cache:     c,
		cacheTTL:  cacheTTL,
		metrics:   m,
		logger:    logger,
	}
}

// Create appends a stage, or places it at the requested position
func (s *StageService) Create(ctx context.Context, req *domain.CreateStageRequest) (*domain.StageDTO, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionFacilitiesWrite); err != nil {
		return nil, err
	}
	tenantID, _ := auth.RequireTenant(ctx)

	ve := &ValidationError{}
	validateStruct(req, ve)
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	position := 0
	if req.Position != nil {
		position = *req.Position
	} else {
		next, err := s.stageRepo.NextPosition(ctx)
		if err != nil {
			return nil, err
		}
		position = next
	}

	stage := &domain.Stage{TenantID: tenantID, Name: req.Name, Position: position}
	if err := s.stageRepo.Create(ctx, stage); err != nil {
		return nil, fmt.Errorf("failed to create stage: %w", err)
	}
	s.invalidate(ctx, tenantID)
	dto := mapper.ToStageDTO(stage)
	return &dto, nil
}

// List returns the pipeline in order
func (s *StageService) List(ctx context.Context) ([]domain.StageDTO, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionFacilitiesRead); err != nil {
		return nil, err
	}
	tenantID, _ := auth.RequireTenant(ctx)
	key := cache.NewKey(tenantID, cache.NamespaceStages, stagesCacheName)

	var cached []domain.StageDTO
	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.metrics.CacheFailed()
		s.logger.Warn("cache read failed", zap.String("key", key.String()), zap.Error(err))
	}
	if found {
		return cached, nil
	}

	stages, err := s.stageRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	dtos := make([]domain.StageDTO, len(stages))
	for i := range stages {
		dtos[i] = mapper.ToStageDTO(&stages[i])
	}
	if err := s.cache.Set(ctx, key, dtos, s.cacheTTL); err != nil {
		s.metrics.CacheFailed()
		s.logger.Warn("cache write failed", zap.String("key", key.String()), zap.Error(err))
	}
	return dtos, nil
}

// Rename changes the name of a stage
func (s *StageService) Rename(ctx context.Context, id uuid.UUID, req *domain.UpdateStageRequest) (*domain.StageDTO, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionFacilitiesWrite); err != nil {
		return nil, err
	}
	ve := &ValidationError{}
	validateStruct(req, ve)
	if err := ve.OrNil(); err != nil {
		return nil, err
	}
	stage, err := s.stageRepo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "stage")
	}
	if err := s.stageRepo.UpdateName(ctx, id, req.Name); err != nil {
		return nil, fmt.Errorf("failed to rename stage: %w", err)
	}
	stage.Name = req.Name
	s.invalidate(ctx, stage.TenantID)
	dto := mapper.ToStageDTO(stage)
	return &dto, nil
}

// Reorder sets the pipeline order. Every stage must be listed once.
func (s *StageService) Reorder(ctx context.Context, req *domain.ReorderStagesRequest) ([]domain.StageDTO, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionFacilitiesWrite); err != nil {
		return nil, err
	}
	tenantID, _ := auth.RequireTenant(ctx)

	ve := &ValidationError{}
	validateStruct(req, ve)
	seen := make(map[uuid.UUID]bool, len(req.StageIDs))
	for _, id := range req.StageIDs {
		if seen[id] {
			ve.Add("stageIds", "Each stage may appear only once")
			break
		}
		seen[id] = true
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	if err := s.stageRepo.Reorder(ctx, req.StageIDs); err != nil {
		if errors.Is(err, repository.ErrInvalidOrder) {
			return nil, NewValidationError("stageIds", "Must list every stage of the tenant exactly once")
		}
		return nil, fmt.Errorf("failed to reorder stages: %w", err)
	}
	s.invalidate(ctx, tenantID)
	return s.List(ctx)
}

// Delete removes a stage no area is at
func (s *StageService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.authz.Authorize(ctx, domain.PermissionFacilitiesWrite); err != nil {
		return err
	}
	stage, err := s.stageRepo.GetByID(ctx, id)
	if err != nil {
		return notFound(err, "stage")
	}
	areas, err := s.stageRepo.CountAreas(ctx, id)
	if err != nil {
		return err
	}
	if err := conflictIfAny("stage", map[string]int64{"cultivation areas": areas}); err != nil {
		return err
	}
	if err := s.stageRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete stage: %w", err)
	}
	s.invalidate(ctx, stage.TenantID)
	return nil
}

func (s *StageService) invalidate(ctx context.Context, tenantID uuid.UUID) {
	if err := s.cache.Invalidate(ctx, tenantID, cache.NamespaceStages, cache.NamespaceAreas); err != nil {
		s.metrics.CacheFailed()
		s.logger.Warn("cache invalidation failed", zap.String("tenantID", tenantID.String()), zap.Error(err))
	}
}
