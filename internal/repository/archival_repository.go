package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/domain"
	"gorm.io/gorm"
)

// ArchivalRepository selects and marks records whose retention has elapsed.
// Dry runs and real runs share SelectEligible.
type ArchivalRepository struct {
	db *gorm.DB
}

func NewArchivalRepository(db *gorm.DB) *ArchivalRepository {
	return &ArchivalRepository{db: db}
}

func modelFor(recordType domain.RecordType) (interface{}, error) {
	switch recordType {
	case domain.RecordTraceabilityEvent:
		return &domain.TraceabilityEvent{}, nil
	case domain.RecordBatch:
		return &domain.Batch{}, nil
	case domain.RecordPhysicalCount:
		return &domain.PhysicalCount{}, nil
	}
	return nil, fmt.Errorf("unknown record type %q", recordType)
}

// SelectEligible returns the IDs of unarchived records created before cutoff,
// in creation order
func (r *ArchivalRepository) SelectEligible(ctx context.Context, recordType domain.RecordType, cutoff time.Time) ([]uuid.UUID, error) {
	model, err := modelFor(recordType)
	if err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	err = scoped(ctx, r.db, model).
		Where("archived_at IS NULL AND created_at < ?", cutoff).
		Order("created_at ASC, id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// MarkArchived sets archived_at on the given records that are not yet
// archived and returns how many rows changed. It writes the archived_at
// column alone and skips model hooks, so ledger entries stay untouched.
func (r *ArchivalRepository) MarkArchived(ctx context.Context, recordType domain.RecordType, ids []uuid.UUID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	model, err := modelFor(recordType)
	if err != nil {
		return 0, err
	}
	result := scoped(ctx, r.db, model).
		Where("id IN ? AND archived_at IS NULL", ids).
		UpdateColumn("archived_at", at)
	return result.RowsAffected, result.Error
}
