package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/domain"
	"gorm.io/gorm"
)

type FacilityRepository struct {
	db *gorm.DB
}

func NewFacilityRepository(db *gorm.DB) *FacilityRepository {
	return &FacilityRepository{db: db}
}

func (r *FacilityRepository) Create(ctx context.Context, facility *domain.Facility) error {
	return r.db.WithContext(ctx).Create(facility).Error
}

func (r *FacilityRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Facility, error) {
	var facility domain.Facility
	if err := scoped(ctx, r.db, &domain.Facility{}).Where("id = ?", id).First(&facility).Error; err != nil {
		return nil, err
	}
	return &facility, nil
}

func (r *FacilityRepository) List(ctx context.Context) ([]domain.Facility, error) {
	var facilities []domain.Facility
	err := scoped(ctx, r.db, &domain.Facility{}).Order("name ASC").Find(&facilities).Error
	return facilities, err
}

func (r *FacilityRepository) Update(ctx context.Context, facility *domain.Facility) error {
	return scoped(ctx, r.db, &domain.Facility{}).
		Where("id = ?", facility.ID).
		Updates(map[string]interface{}{
			"name":           facility.Name,
			"license_number": facility.LicenseNumber,
			"address":        facility.Address,
		}).Error
}

func (r *FacilityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return ApplyTenantFilter(ctx, r.db.WithContext(ctx)).Delete(&domain.Facility{}, "id = ?", id).Error
}

// CountDependents returns the number of areas and batches in a facility
func (r *FacilityRepository) CountDependents(ctx context.Context, id uuid.UUID) (areas int64, batches int64, err error) {
	if err = scoped(ctx, r.db, &domain.CultivationArea{}).Where("facility_id = ?", id).Count(&areas).Error; err != nil {
		return 0, 0, err
	}
	if err = scoped(ctx, r.db, &domain.Batch{}).Where("facility_id = ?", id).Count(&batches).Error; err != nil {
		return 0, 0, err
	}
	return areas, batches, nil
}

// ListForExport returns every facility of the tenant
func (r *FacilityRepository) ListForExport(ctx context.Context) ([]domain.Facility, error) {
	var facilities []domain.Facility
	err := scoped(ctx, r.db, &domain.Facility{}).Order("created_at ASC, id ASC").Find(&facilities).Error
	return facilities, err
}
