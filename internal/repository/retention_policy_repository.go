package repository

import (
	"context"
	"errors"

	"github.com/straye-as/cultivation-api/internal/domain"
	"gorm.io/gorm"
)

type RetentionPolicyRepository struct {
	db *gorm.DB
}

func NewRetentionPolicyRepository(db *gorm.DB) *RetentionPolicyRepository {
	return &RetentionPolicyRepository{db: db}
}

// List returns every policy of the tenant ordered by record type
func (r *RetentionPolicyRepository) List(ctx context.Context) ([]domain.RetentionPolicy, error) {
	var policies []domain.RetentionPolicy
	err := scoped(ctx, r.db, &domain.RetentionPolicy{}).Order("record_type ASC").Find(&policies).Error
	return policies, err
}

// GetActive returns the active policy for a record type, or nil when the
// tenant has none
func (r *RetentionPolicyRepository) GetActive(ctx context.Context, recordType domain.RecordType) (*domain.RetentionPolicy, error) {
	var policy domain.RetentionPolicy
	err := scoped(ctx, r.db, &domain.RetentionPolicy{}).
		Where("record_type = ? AND active = ?", recordType, true).
		First(&policy).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &policy, nil
}

// Upsert creates or replaces the tenant's policy for policy.RecordType
func (r *RetentionPolicyRepository) Upsert(ctx context.Context, policy *domain.RetentionPolicy) error {
	var existing domain.RetentionPolicy
	err := scoped(ctx, r.db, &domain.RetentionPolicy{}).
		Where("record_type = ?", policy.RecordType).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// gorm leaves a false default:true column out of the insert and
		// writes the default back into the struct
		active := policy.Active
		if err := r.db.WithContext(ctx).Create(policy).Error; err != nil {
			return err
		}
		if !active {
			policy.Active = false
			return r.db.WithContext(ctx).Model(policy).UpdateColumn("active", false).Error
		}
		return nil
	}
	if err != nil {
		return err
	}
	policy.ID = existing.ID
	policy.CreatedAt = existing.CreatedAt
	return scoped(ctx, r.db, &domain.RetentionPolicy{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{
			"retention_months": policy.RetentionMonths,
			"active":           policy.Active,
		}).Error
}

// ListForExport returns every policy of the tenant
func (r *RetentionPolicyRepository) ListForExport(ctx context.Context) ([]domain.RetentionPolicy, error) {
	return r.List(ctx)
}
