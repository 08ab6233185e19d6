package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/domain"
	"gorm.io/gorm"
)

type CultivationAreaRepository struct {
	db *gorm.DB
}

func NewCultivationAreaRepository(db *gorm.DB) *CultivationAreaRepository {
	return &CultivationAreaRepository{db: db}
}

func (r *CultivationAreaRepository) Create(ctx context.Context, area *domain.CultivationArea) error {
	return r.db.WithContext(ctx).Create(area).Error
}

func (r *CultivationAreaRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.CultivationArea, error) {
	var area domain.CultivationArea
	err := scoped(ctx, r.db, &domain.CultivationArea{}).
		Preload("Stage").
		Where("id = ?", id).
		First(&area).Error
	if err != nil {
		return nil, err
	}
	return &area, nil
}

// List returns areas, optionally restricted to one facility
func (r *CultivationAreaRepository) List(ctx context.Context, facilityID *uuid.UUID) ([]domain.CultivationArea, error) {
	var areas []domain.CultivationArea
	query := scoped(ctx, r.db, &domain.CultivationArea{}).Preload("Stage")
	if facilityID != nil {
		query = query.Where("facility_id = ?", *facilityID)
	}
	err := query.Order("name ASC").Find(&areas).Error
	return areas, err
}

func (r *CultivationAreaRepository) Update(ctx context.Context, area *domain.CultivationArea) error {
	return scoped(ctx, r.db, &domain.CultivationArea{}).
		Where("id = ?", area.ID).
		Updates(map[string]interface{}{
			"name":     area.Name,
			"stage_id": area.StageID,
			"capacity": area.Capacity,
		}).Error
}

func (r *CultivationAreaRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return ApplyTenantFilter(ctx, r.db.WithContext(ctx)).Delete(&domain.CultivationArea{}, "id = ?", id).Error
}

// CountBatches returns the number of batches located in an area
func (r *CultivationAreaRepository) CountBatches(ctx context.Context, id uuid.UUID) (int64, error) {
	var n int64
	err := scoped(ctx, r.db, &domain.Batch{}).Where("cultivation_area_id = ?", id).Count(&n).Error
	return n, err
}
