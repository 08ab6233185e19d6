package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BatchFilters narrows batch listings
type BatchFilters struct {
	FacilityID        *uuid.UUID
	CultivationAreaID *uuid.UUID
	ProductType       domain.ProductType
	Search            string
	IncludeArchived   bool
}

var batchSortFields = map[string]string{
	"createdAt":   "created_at",
	"updatedAt":   "updated_at",
	"name":        "name",
	"quantity":    "quantity",
	"productType": "product_type",
}

type BatchRepository struct {
	db *gorm.DB
}

func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func (r *BatchRepository) Create(ctx context.Context, batch *domain.Batch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}

func (r *BatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Batch, error) {
	var batch domain.Batch
	if err := scoped(ctx, r.db, &domain.Batch{}).Where("id = ?", id).First(&batch).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

// GetForUpdate reads a batch holding a row lock until the surrounding
// transaction ends. Must be called on a repository bound to a transaction.
func (r *BatchRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Batch, error) {
	var batch domain.Batch
	err := scoped(ctx, r.db, &domain.Batch{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&batch).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *BatchRepository) List(ctx context.Context, filters BatchFilters, page Pagination, sort SortConfig) ([]domain.Batch, int64, error) {
	var batches []domain.Batch
	var total int64

	query := scoped(ctx, r.db, &domain.Batch{})
	if !filters.IncludeArchived {
		query = query.Where("archived_at IS NULL")
	}
	if filters.FacilityID != nil {
		query = query.Where("facility_id = ?", *filters.FacilityID)
	}
	if filters.CultivationAreaID != nil {
		query = query.Where("cultivation_area_id = ?", *filters.CultivationAreaID)
	}
	if filters.ProductType != "" {
		query = query.Where("product_type = ?", filters.ProductType)
	}
	if s := strings.TrimSpace(filters.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(variety) LIKE ?", like, like)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page = page.Normalize()
	err := query.
		Order(BuildOrderClause(sort, batchSortFields, "created_at")).
		Order("id ASC").
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&batches).Error
	return batches, total, err
}

// SaveState persists the mutable state of a batch after a mutation
func (r *BatchRepository) SaveState(ctx context.Context, batch *domain.Batch) error {
	return scoped(ctx, r.db, &domain.Batch{}).
		Where("id = ?", batch.ID).
		Updates(map[string]interface{}{
			"quantity":            batch.Quantity,
			"product_type":        batch.ProductType,
			"cultivation_area_id": batch.CultivationAreaID,
			"updated_at":          time.Now().UTC(),
		}).Error
}

// UpdateDetails persists the descriptive fields of a batch
func (r *BatchRepository) UpdateDetails(ctx context.Context, batch *domain.Batch) error {
	return scoped(ctx, r.db, &domain.Batch{}).
		Where("id = ?", batch.ID).
		Updates(map[string]interface{}{
			"name":         batch.Name,
			"variety":      batch.Variety,
			"packaged":     batch.Packaged,
			"sub_location": batch.SubLocation,
			"end_type":     batch.EndType,
			"updated_at":   time.Now().UTC(),
		}).Error
}

func (r *BatchRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return ApplyTenantFilter(ctx, r.db.WithContext(ctx)).Delete(&domain.Batch{}, "id = ?", id).Error
}

// BatchDependents counts the records that reference a batch
type BatchDependents struct {
	Events  int64
	Counts  int64
	Reports int64
	Lineage int64
}

// Any reports whether anything references the batch
func (d BatchDependents) Any() bool {
	return d.Events+d.Counts+d.Reports+d.Lineage > 0
}

func (r *BatchRepository) CountDependents(ctx context.Context, id uuid.UUID) (BatchDependents, error) {
	var d BatchDependents
	if err := scoped(ctx, r.db, &domain.TraceabilityEvent{}).Where("batch_id = ? OR new_batch_id = ?", id, id).Count(&d.Events).Error; err != nil {
		return d, err
	}
	if err := scoped(ctx, r.db, &domain.PhysicalCount{}).Where("batch_id = ?", id).Count(&d.Counts).Error; err != nil {
		return d, err
	}
	if err := scoped(ctx, r.db, &domain.LossTheftReport{}).Where("batch_id = ?", id).Count(&d.Reports).Error; err != nil {
		return d, err
	}
	if err := scoped(ctx, r.db, &domain.BatchLineage{}).Where("parent_batch_id = ? OR child_batch_id = ?", id, id).Count(&d.Lineage).Error; err != nil {
		return d, err
	}
	return d, nil
}

// ListForExport returns batches created in [start, end], archived included
func (r *BatchRepository) ListForExport(ctx context.Context, start, end *time.Time) ([]domain.Batch, error) {
	var batches []domain.Batch
	query := scoped(ctx, r.db, &domain.Batch{})
	query = applyRange(query, "created_at", start, end)
	err := query.Order("created_at ASC, id ASC").Find(&batches).Error
	return batches, err
}

// applyRange adds an inclusive date range on column
func applyRange(query *gorm.DB, column string, start, end *time.Time) *gorm.DB {
	if start != nil {
		query = query.Where(column+" >= ?", *start)
	}
	if end != nil {
		query = query.Where(column+" <= ?", *end)
	}
	return query
}
