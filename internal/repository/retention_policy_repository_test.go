package repository_test

import (
	"context"
	"testing"

	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/repository"
	"github.com/straye-as/cultivation-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetentionPolicy_UpsertKeepsInactive(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixture(t, db, "north")
	repo := repository.NewRetentionPolicyRepository(db)
	ctx := f.Context(domain.RoleComplianceOfficer)

	policy := &domain.RetentionPolicy{TenantID: f.Tenant.ID, RecordType: domain.RecordBatch, RetentionMonths: 1, Active: false}
	require.NoError(t, repo.Upsert(ctx, policy))
	assert.False(t, policy.Active)

	var stored domain.RetentionPolicy
	require.NoError(t, db.First(&stored, "id = ?", policy.ID).Error)
	assert.False(t, stored.Active, "a policy created inactive is stored inactive")

	active, err := repo.GetActive(ctx, domain.RecordBatch)
	require.NoError(t, err)
	assert.Nil(t, active)

	require.NoError(t, repo.Upsert(ctx, &domain.RetentionPolicy{TenantID: f.Tenant.ID, RecordType: domain.RecordBatch, RetentionMonths: 6, Active: true}))
	active, err = repo.GetActive(ctx, domain.RecordBatch)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, 6, active.RetentionMonths)
	assert.Equal(t, policy.ID, active.ID)
}

func TestTenant_CreateKeepsInactive(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewTenantRepository(db)

	tenant := &domain.Tenant{Name: "Closed", Slug: "closed", Active: false}
	require.NoError(t, repo.Create(context.Background(), tenant))

	var stored domain.Tenant
	require.NoError(t, db.First(&stored, "id = ?", tenant.ID).Error)
	assert.False(t, stored.Active)
	assert.False(t, tenant.Active)
}
