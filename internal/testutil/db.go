// Package testutil provides an in-memory database and fixtures for package tests
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/straye-as/cultivation-api/internal/auth"
	"github.com/straye-as/cultivation-api/internal/database"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB opens a private in-memory SQLite database with the full schema.
// The pool is limited to one connection so every query sees the same database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.AutoMigrate(db))

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

// Fixture is a tenant with one facility, two areas and a stage
type Fixture struct {
	Tenant   *domain.Tenant
	Facility *domain.Facility
	Stage    *domain.Stage
	AreaA    *domain.CultivationArea
	AreaB    *domain.CultivationArea
	UserID   uuid.UUID
}

// Context returns a context scoped to the fixture tenant with the given role
func (f *Fixture) Context(role domain.UserRoleType) context.Context {
	return UserContext(f.Tenant.ID, f.UserID, role)
}

// UserContext builds an authenticated, tenant-scoped context
func UserContext(tenantID, userID uuid.UUID, roles ...domain.UserRoleType) context.Context {
	ctx := auth.WithUserContext(context.Background(), &auth.UserContext{
		UserID:      userID,
		DisplayName: "Test User",
		Email:       "test@example.com",
		Roles:       roles,
		TenantID:    &tenantID,
	})
	return auth.WithTenantScope(ctx, auth.TenantScope{TenantID: tenantID})
}

// NewFixture seeds a tenant, facility, stage and two cultivation areas
func NewFixture(t *testing.T, db *gorm.DB, slug string) *Fixture {
	t.Helper()

	tenant := &domain.Tenant{Name: "Tenant " + slug, Slug: slug, Active: true}
	require.NoError(t, db.Create(tenant).Error)

	facility := &domain.Facility{TenantID: tenant.ID, Name: "Main Facility", LicenseNumber: "LIC-" + slug}
	require.NoError(t, db.Create(facility).Error)

	stage := &domain.Stage{TenantID: tenant.ID, Name: "Vegetative", Position: 0}
	require.NoError(t, db.Create(stage).Error)

	areaA := &domain.CultivationArea{TenantID: tenant.ID, FacilityID: facility.ID, StageID: &stage.ID, Name: "Room A"}
	require.NoError(t, db.Create(areaA).Error)
	areaB := &domain.CultivationArea{TenantID: tenant.ID, FacilityID: facility.ID, Name: "Room B"}
	require.NoError(t, db.Create(areaB).Error)

	return &Fixture{
		Tenant:   tenant,
		Facility: facility,
		Stage:    stage,
		AreaA:    areaA,
		AreaB:    areaB,
		UserID:   uuid.New(),
	}
}

// CreateBatch inserts a batch in area A directly, bypassing the ledger
func (f *Fixture) CreateBatch(t *testing.T, db *gorm.DB, name string, quantity float64, unit domain.Unit) *domain.Batch {
	t.Helper()
	batch := &domain.Batch{
		TenantID:          f.Tenant.ID,
		FacilityID:        f.Facility.ID,
		CultivationAreaID: f.AreaA.ID,
		Name:              name,
		Quantity:          decimal.NewFromFloat(quantity),
		Unit:              unit,
		EndType:           domain.EndTypeDried,
		ProductType:       domain.ProductDriedCannabis,
		OriginType:        domain.OriginInternal,
	}
	require.NoError(t, db.Create(batch).Error)
	return batch
}

// ReloadBatch reads a batch without tenant scoping
func ReloadBatch(t *testing.T, db *gorm.DB, id uuid.UUID) *domain.Batch {
	t.Helper()
	var batch domain.Batch
	require.NoError(t, db.First(&batch, "id = ?", id).Error)
	return &batch
}

// CountEvents counts ledger entries referencing a batch
func CountEvents(t *testing.T, db *gorm.DB, batchID uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&domain.TraceabilityEvent{}).Where("batch_id = ?", batchID).Count(&n).Error)
	return n
}

// Backdate rewrites created_at of one row, skipping model hooks
func Backdate(t *testing.T, db *gorm.DB, model interface{}, id uuid.UUID, at time.Time) {
	t.Helper()
	require.NoError(t, db.Model(model).Where("id = ?", id).UpdateColumn("created_at", at.UTC()).Error)
}

// AddRetentionPolicy stores an active policy for a record type
func (f *Fixture) AddRetentionPolicy(t *testing.T, db *gorm.DB, recordType domain.RecordType, months int) *domain.RetentionPolicy {
	t.Helper()
	policy := &domain.RetentionPolicy{TenantID: f.Tenant.ID, RecordType: recordType, RetentionMonths: months, Active: true}
	require.NoError(t, db.Create(policy).Error)
	return policy
}

// Dec parses a decimal literal
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
