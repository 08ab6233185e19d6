package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CountFilters narrows physical count listings
type CountFilters struct {
	BatchID         *uuid.UUID
	FacilityID      *uuid.UUID
	Status          domain.CountStatus
	IncludeArchived bool
}

type PhysicalCountRepository struct {
	db *gorm.DB
}

func NewPhysicalCountRepository(db *gorm.DB) *PhysicalCountRepository {
	return &PhysicalCountRepository{db: db}
}

func (r *PhysicalCountRepository) Create(ctx context.Context, count *domain.PhysicalCount) error {
	return r.db.WithContext(ctx).Create(count).Error
}

func (r *PhysicalCountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PhysicalCount, error) {
	var count domain.PhysicalCount
	if err := scoped(ctx, r.db, &domain.PhysicalCount{}).Where("id = ?", id).First(&count).Error; err != nil {
		return nil, err
	}
	return &count, nil
}

// GetForUpdate reads a count holding a row lock until the transaction ends
func (r *PhysicalCountRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.PhysicalCount, error) {
	var count domain.PhysicalCount
	err := scoped(ctx, r.db, &domain.PhysicalCount{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&count).Error
	if err != nil {
		return nil, err
	}
	return &count, nil
}

func (r *PhysicalCountRepository) List(ctx context.Context, filters CountFilters, page Pagination) ([]domain.PhysicalCount, int64, error) {
	var counts []domain.PhysicalCount
	var total int64

	query := scoped(ctx, r.db, &domain.PhysicalCount{})
	if !filters.IncludeArchived {
		query = query.Where("archived_at IS NULL")
	}
	if filters.BatchID != nil {
		query = query.Where("batch_id = ?", *filters.BatchID)
	}
	if filters.FacilityID != nil {
		query = query.Where("facility_id = ?", *filters.FacilityID)
	}
	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page = page.Normalize()
	err := query.
		Order("count_date DESC, id ASC").
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&counts).Error
	return counts, total, err
}

// Resolve closes a pending count
func (r *PhysicalCountRepository) Resolve(ctx context.Context, count *domain.PhysicalCount) error {
	return scoped(ctx, r.db, &domain.PhysicalCount{}).
		Where("id = ? AND status = ?", count.ID, domain.CountPending).
		Updates(map[string]interface{}{
			"status":           domain.CountResolved,
			"resolution":       count.Resolution,
			"resolution_notes": count.ResolutionNotes,
			"resolved_at":      count.ResolvedAt,
			"resolved_by":      count.ResolvedBy,
			"updated_at":       time.Now().UTC(),
		}).Error
}

// ListUnresolvedWithVariance returns pending counts with a non-zero variance,
// preloading the counted batch
func (r *PhysicalCountRepository) ListUnresolvedWithVariance(ctx context.Context) ([]domain.PhysicalCount, error) {
	var counts []domain.PhysicalCount
	err := scoped(ctx, r.db, &domain.PhysicalCount{}).
		Preload("Batch").
		Where("status = ? AND variance <> 0 AND archived_at IS NULL", domain.CountPending).
		Order("count_date ASC, id ASC").
		Find(&counts).Error
	return counts, err
}

// ListForExport returns counts whose count date lies in [start, end]
func (r *PhysicalCountRepository) ListForExport(ctx context.Context, start, end *time.Time) ([]domain.PhysicalCount, error) {
	var counts []domain.PhysicalCount
	query := applyRange(scoped(ctx, r.db, &domain.PhysicalCount{}), "count_date", start, end)
	err := query.Order("count_date ASC, id ASC").Find(&counts).Error
	return counts, err
}
