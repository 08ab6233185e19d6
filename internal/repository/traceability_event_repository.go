package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/domain"
	"gorm.io/gorm"
)

// EventFilters narrows ledger listings
type EventFilters struct {
	BatchID         *uuid.UUID
	FacilityID      *uuid.UUID
	EventType       domain.EventType
	From            *time.Time
	To              *time.Time
	IncludeArchived bool
}

// TraceabilityEventRepository appends to and reads the ledger. It has no
// update or delete methods.
type TraceabilityEventRepository struct {
	db *gorm.DB
}

func NewTraceabilityEventRepository(db *gorm.DB) *TraceabilityEventRepository {
	return &TraceabilityEventRepository{db: db}
}

func (r *TraceabilityEventRepository) Create(ctx context.Context, event *domain.TraceabilityEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *TraceabilityEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TraceabilityEvent, error) {
	var event domain.TraceabilityEvent
	if err := scoped(ctx, r.db, &domain.TraceabilityEvent{}).Where("id = ?", id).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *TraceabilityEventRepository) List(ctx context.Context, filters EventFilters, page Pagination) ([]domain.TraceabilityEvent, int64, error) {
	var events []domain.TraceabilityEvent
	var total int64

	query := scoped(ctx, r.db, &domain.TraceabilityEvent{})
	if !filters.IncludeArchived {
		query = query.Where("archived_at IS NULL")
	}
	if filters.BatchID != nil {
		query = query.Where("batch_id = ?", *filters.BatchID)
	}
	if filters.FacilityID != nil {
		query = query.Where("facility_id = ?", *filters.FacilityID)
	}
	if filters.EventType != "" {
		query = query.Where("event_type = ?", filters.EventType)
	}
	query = applyRange(query, "occurred_at", filters.From, filters.To)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page = page.Normalize()
	err := query.
		Order("occurred_at DESC, created_at DESC, id ASC").
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&events).Error
	return events, total, err
}

// ListByBatch returns the full ledger of a batch in chronological order
func (r *TraceabilityEventRepository) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]domain.TraceabilityEvent, error) {
	var events []domain.TraceabilityEvent
	err := scoped(ctx, r.db, &domain.TraceabilityEvent{}).
		Where("batch_id = ?", batchID).
		Order("occurred_at ASC, created_at ASC, id ASC").
		Find(&events).Error
	return events, err
}

// ListLossTheftSince returns loss_theft events that occurred at or after since
func (r *TraceabilityEventRepository) ListLossTheftSince(ctx context.Context, since time.Time) ([]domain.TraceabilityEvent, error) {
	var events []domain.TraceabilityEvent
	err := scoped(ctx, r.db, &domain.TraceabilityEvent{}).
		Where("event_type = ? AND occurred_at >= ?", domain.EventLossTheft, since).
		Order("occurred_at ASC, id ASC").
		Find(&events).Error
	return events, err
}

// ListForExport returns events created in [start, end], archived included
func (r *TraceabilityEventRepository) ListForExport(ctx context.Context, start, end *time.Time) ([]domain.TraceabilityEvent, error) {
	var events []domain.TraceabilityEvent
	query := applyRange(scoped(ctx, r.db, &domain.TraceabilityEvent{}), "created_at", start, end)
	err := query.Order("created_at ASC, id ASC").Find(&events).Error
	return events, err
}
