package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SequenceKey identifies one counter: numbers restart at 1 for every tenant,
// prefix and year
type SequenceKey struct {
	TenantID uuid.UUID
	Prefix   string
	Year     int
}

// Format renders the n-th number of the key, for example LT-2026-007
func (k SequenceKey) Format(n int) string {
	return fmt.Sprintf("%s-%d-%03d", k.Prefix, k.Year, n)
}

// NumberSequenceRepository hands out gap-free document numbers. It must be
// bound to the transaction that stores the numbered record so that a rolled
// back commit does not burn a number.
type NumberSequenceRepository struct {
	db *gorm.DB
}

func NewNumberSequenceRepository(db *gorm.DB) *NumberSequenceRepository {
	return &NumberSequenceRepository{db: db}
}

// Next locks the counter row of key, increments it and returns the formatted
// number. The first call for a key creates the row and returns number 1.
func (r *NumberSequenceRepository) Next(ctx context.Context, key SequenceKey) (string, error) {
	db := r.db.WithContext(ctx)
	now := time.Now().UTC()

	var seq domain.NumberSequence
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND prefix = ? AND year = ?", key.TenantID, key.Prefix, key.Year).
		First(&seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		seq = domain.NumberSequence{
			TenantID:     key.TenantID,
			Prefix:       key.Prefix,
			Year:         key.Year,
			LastSequence: 1,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := db.Create(&seq).Error; err != nil {
			return "", fmt.Errorf("failed to start %s-%d sequence: %w", key.Prefix, key.Year, err)
		}
		return key.Format(1), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s-%d sequence: %w", key.Prefix, key.Year, err)
	}

	next := seq.LastSequence + 1
	if err := db.Model(&seq).Updates(map[string]interface{}{
		"last_sequence": next,
		"updated_at":    now,
	}).Error; err != nil {
		return "", fmt.Errorf("failed to advance %s-%d sequence: %w", key.Prefix, key.Year, err)
	}
	return key.Format(next), nil
}
