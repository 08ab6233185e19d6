package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/domain"
	"gorm.io/gorm"
)

type LineageRepository struct {
	db *gorm.DB
}

func NewLineageRepository(db *gorm.DB) *LineageRepository {
	return &LineageRepository{db: db}
}

func (r *LineageRepository) Create(ctx context.Context, edge *domain.BatchLineage) error {
	return r.db.WithContext(ctx).Create(edge).Error
}

// Parents returns the edges leading into a batch
func (r *LineageRepository) Parents(ctx context.Context, batchID uuid.UUID) ([]domain.BatchLineage, error) {
	var edges []domain.BatchLineage
	err := scoped(ctx, r.db, &domain.BatchLineage{}).
		Where("child_batch_id = ?", batchID).
		Order("created_at ASC, id ASC").
		Find(&edges).Error
	return edges, err
}

// Children returns the edges leading out of a batch
func (r *LineageRepository) Children(ctx context.Context, batchID uuid.UUID) ([]domain.BatchLineage, error) {
	var edges []domain.BatchLineage
	err := scoped(ctx, r.db, &domain.BatchLineage{}).
		Where("parent_batch_id = ?", batchID).
		Order("created_at ASC, id ASC").
		Find(&edges).Error
	return edges, err
}
