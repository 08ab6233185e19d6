package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/domain"
	"gorm.io/gorm"
)

type StageRepository struct {
	db *gorm.DB
}

func NewStageRepository(db *gorm.DB) *StageRepository {
	return &StageRepository{db: db}
}

func (r *StageRepository) Create(ctx context.Context, stage *domain.Stage) error {
	return r.db.WithContext(ctx).Create(stage).Error
}

func (r *StageRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Stage, error) {
	var stage domain.Stage
	if err := scoped(ctx, r.db, &domain.Stage{}).Where("id = ?", id).First(&stage).Error; err != nil {
		return nil, err
	}
	return &stage, nil
}

// List returns the pipeline in position order
func (r *StageRepository) List(ctx context.Context) ([]domain.Stage, error) {
	var stages []domain.Stage
	err := scoped(ctx, r.db, &domain.Stage{}).Order("position ASC, name ASC").Find(&stages).Error
	return stages, err
}

// NextPosition returns the position after the last stage
func (r *StageRepository) NextPosition(ctx context.Context) (int, error) {
	var max *int
	err := scoped(ctx, r.db, &domain.Stage{}).Select("MAX(position)").Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max + 1, nil
}

func (r *StageRepository) UpdateName(ctx context.Context, id uuid.UUID, name string) error {
	return scoped(ctx, r.db, &domain.Stage{}).Where("id = ?", id).Update("name", name).Error
}

// Reorder assigns positions 0..n-1 in the given order. Every stage of the
// tenant must be listed exactly once.
func (r *StageRepository) Reorder(ctx context.Context, ids []uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := ApplyTenantFilter(ctx, tx.Model(&domain.Stage{})).Where("id IN ?", ids).Count(&count).Error; err != nil {
			return err
		}
		var total int64
		if err := ApplyTenantFilter(ctx, tx.Model(&domain.Stage{})).Count(&total).Error; err != nil {
			return err
		}
		if int(count) != len(ids) || count != total {
			return fmt.Errorf("%w: reorder must list every stage exactly once", ErrInvalidOrder)
		}
		for pos, id := range ids {
			if err := ApplyTenantFilter(ctx, tx.Model(&domain.Stage{})).Where("id = ?", id).Update("position", pos).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *StageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return ApplyTenantFilter(ctx, r.db.WithContext(ctx)).Delete(&domain.Stage{}, "id = ?", id).Error
}

// CountAreas returns the number of areas currently at a stage
func (r *StageRepository) CountAreas(ctx context.Context, id uuid.UUID) (int64, error) {
	var n int64
	err := scoped(ctx, r.db, &domain.CultivationArea{}).Where("stage_id = ?", id).Count(&n).Error
	return n, err
}
