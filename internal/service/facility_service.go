package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/auth"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/mapper"
	"github.com/straye-as/cultivation-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FacilityService handles the licensed sites of a tenant
type FacilityService struct {
	facilityRepo *repository.FacilityRepository
	authz        auth.Authorizer
	logger       *zap.Logger
}

// NewFacilityService creates a new FacilityService
func NewFacilityService(db *gorm.DB, authz auth.Authorizer, logger *zap.Logger) *FacilityService {
	return &FacilityService{
		facilityRepo: repository.NewFacilityRepository(db),
		authz:        authz,
		logger:       logger,
	}
}

func (s *FacilityService) Create(ctx context.Context, req *domain.CreateFacilityRequest) (*domain.FacilityDTO, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionFacilitiesWrite); err != nil {
		return nil, err
	}
	tenantID, _ := auth.RequireTenant(ctx)

	ve := &ValidationError{}
	validateStruct(req, ve)
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	facility := &domain.Facility{
		TenantID:      tenantID,
		Name:          req.Name,
		LicenseNumber: req.LicenseNumber,
		Address:       req.Address,
	}
	if err := s.facilityRepo.Create(ctx, facility); err != nil {
		return nil, fmt.Errorf("failed to create facility: %w", err)
	}

	s.logger.Info("facility created",
		zap.String("tenantID", tenantID.String()),
		zap.String("facilityID", facility.ID.String()),
		zap.String("licenseNumber", facility.LicenseNumber))

	dto := mapper.ToFacilityDTO(facility)
	return &dto, nil
}

func (s *FacilityService) GetByID(ctx context.Context, id uuid.UUID) (*domain.FacilityDTO, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionFacilitiesRead); err != nil {
		return nil, err
	}
	facility, err := s.facilityRepo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "facility")
	}
	dto := mapper.ToFacilityDTO(facility)
	return &dto, nil
}

func (s *FacilityService) List(ctx context.Context) ([]domain.FacilityDTO, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionFacilitiesRead); err != nil {
		return nil, err
	}
	facilities, err := s.facilityRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list facilities: %w", err)
	}
	dtos := make([]domain.FacilityDTO, len(facilities))
	for i := range facilities {
		dtos[i] = mapper.ToFacilityDTO(&facilities[i])
	}
	return dtos, nil
}

func (s *FacilityService) Update(ctx context.Context, id uuid.UUID, req *domain.UpdateFacilityRequest) (*domain.FacilityDTO, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionFacilitiesWrite); err != nil {
		return nil, err
	}
	ve := &ValidationError{}
	validateStruct(req, ve)
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	facility, err := s.facilityRepo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "facility")
	}
	facility.Name = req.Name
	facility.LicenseNumber = req.LicenseNumber
	facility.Address = req.Address
	if err := s.facilityRepo.Update(ctx, facility); err != nil {
		return nil, fmt.Errorf("failed to update facility: %w", err)
	}
	dto := mapper.ToFacilityDTO(facility)
	return &dto, nil
}

// Delete removes a facility without areas or batches
func (s *FacilityService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.authz.Authorize(ctx, domain.PermissionFacilitiesWrite); err != nil {
		return err
	}
	if _, err := s.facilityRepo.GetByID(ctx, id); err != nil {
		return notFound(err, "facility")
	}
	areas, batches, err := s.facilityRepo.CountDependents(ctx, id)
	if err != nil {
		return err
	}
	if err := conflictIfAny("facility", map[string]int64{
		"cultivation areas": areas,
		"batches":           batches,
	}); err != nil {
		return err
	}
	return s.facilityRepo.Delete(ctx, id)
}
