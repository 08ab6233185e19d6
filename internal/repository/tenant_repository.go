package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/domain"
	"gorm.io/gorm"
)

// TenantRepository manages tenant records. Tenants are the partition key
// themselves, so these queries are not tenant-filtered.
type TenantRepository struct {
	db *gorm.DB
}

func NewTenantRepository(db *gorm.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// Create inserts tenant. An inactive tenant is stored inactive even though the
// column defaults to true.
func (r *TenantRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	active := tenant.Active
	if err := r.db.WithContext(ctx).Create(tenant).Error; err != nil {
		return err
	}
	if !active {
		tenant.Active = false
		return r.db.WithContext(ctx).Model(tenant).UpdateColumn("active", false).Error
	}
	return nil
}

func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	var tenant domain.Tenant
	if err := r.db.WithContext(ctx).First(&tenant, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (r *TenantRepository) GetBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	var tenant domain.Tenant
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&tenant).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}

// List returns tenants ordered by name
func (r *TenantRepository) List(ctx context.Context, activeOnly bool) ([]domain.Tenant, error) {
	var tenants []domain.Tenant
	query := r.db.WithContext(ctx).Model(&domain.Tenant{})
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	err := query.Order("name ASC").Find(&tenants).Error
	return tenants, err
}

// UpdateThresholds replaces the tenant's reporting threshold overrides
func (r *TenantRepository) UpdateThresholds(ctx context.Context, id uuid.UUID, req domain.UpdateThresholdsRequest) error {
	return r.db.WithContext(ctx).
		Model(&domain.Tenant{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"loss_quantity_threshold": req.LossQuantityThreshold,
			"loss_units_threshold":    req.LossUnitsThreshold,
			"loss_value_threshold":    req.LossValueThreshold,
		}).Error
}
