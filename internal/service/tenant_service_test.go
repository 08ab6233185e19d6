package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/service"
	"github.com/straye-as/cultivation-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTenantService_Resolve(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()

	byslug, err := s.tenants.Resolve(ctx, "north")
	require.NoError(t, err)
	assert.Equal(t, s.f.Tenant.ID, byslug.ID)

	upper, err := s.tenants.Resolve(ctx, "  NORTH ")
	require.NoError(t, err)
	assert.Equal(t, s.f.Tenant.ID, upper.ID)

	byID, err := s.tenants.Resolve(ctx, s.f.Tenant.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "north", byID.Slug)

	_, err = s.tenants.Resolve(ctx, "nowhere")
	assert.ErrorIs(t, err, service.ErrUnknownTenant)
	_, err = s.tenants.Resolve(ctx, uuid.NewString())
	assert.ErrorIs(t, err, service.ErrUnknownTenant)

	closed := testutil.NewFixture(t, s.db, "closed")
	require.NoError(t, s.db.Model(closed.Tenant).Update("active", false).Error)
	_, err = s.tenants.Resolve(ctx, "closed")
	assert.ErrorIs(t, err, service.ErrUnknownTenant)
	assert.Contains(t, err.Error(), "inactive")

	active, err := s.tenants.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "north", active[0].Slug)
}

func TestTenantService_Create(t *testing.T) {
	s := setupServices(t)
	admin := testutil.UserContext(s.f.Tenant.ID, uuid.New(), domain.RoleSuperAdmin)

	dto, err := s.tenants.Create(admin, &domain.CreateTenantRequest{Name: "Green Valley", Slug: "Green-Valley"})
	require.NoError(t, err)
	assert.Equal(t, "green-valley", dto.Slug)
	assert.True(t, dto.Active)

	tests := []struct {
		name string
		req  domain.CreateTenantRequest
	}{
		{"duplicate", domain.CreateTenantRequest{Name: "Again", Slug: "green-valley"}},
		{"double dash", domain.CreateTenantRequest{Name: "Bad", Slug: "green--valley"}},
		{"spaces", domain.CreateTenantRequest{Name: "Bad", Slug: "green valley"}},
		{"missing", domain.CreateTenantRequest{Name: "Bad"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.tenants.Create(admin, &tt.req)
			assertValidation(t, err, "slug")
		})
	}

	_, err = s.tenants.Create(s.f.Context(domain.RoleTenantAdmin), &domain.CreateTenantRequest{Name: "X", Slug: "x"})
	assert.ErrorIs(t, err, service.ErrForbidden)
	_, err = s.tenants.Create(context.Background(), &domain.CreateTenantRequest{Name: "X", Slug: "x"})
	assert.ErrorIs(t, err, service.ErrUnauthorized)
}

func TestTenantService_UpdateThresholds(t *testing.T) {
	s := setupServices(t)
	ctx := s.f.Context(domain.RoleComplianceOfficer)

	dto, err := s.tenants.UpdateThresholds(ctx, s.f.Tenant.ID, &domain.UpdateThresholdsRequest{LossQuantityThreshold: decPtr("25")})
	require.NoError(t, err)
	require.NotNil(t, dto.LossQuantityThreshold)
	assertDec(t, "25", *dto.LossQuantityThreshold)

	th, err := s.tenants.Thresholds(ctx, s.f.Tenant.ID)
	require.NoError(t, err)
	assertDec(t, "25", th.Quantity)
	assertDec(t, "10", th.Units)
	assertDec(t, "1000", th.Value)

	_, err = s.tenants.UpdateThresholds(ctx, s.f.Tenant.ID, &domain.UpdateThresholdsRequest{LossValueThreshold: decPtr("-1")})
	assertValidation(t, err, "lossValueThreshold")

	_, err = s.tenants.UpdateThresholds(s.f.Context(domain.RoleCultivator), s.f.Tenant.ID, &domain.UpdateThresholdsRequest{})
	assert.ErrorIs(t, err, service.ErrForbidden)

	south := testutil.NewFixture(t, s.db, "south")
	_, err = s.tenants.UpdateThresholds(ctx, south.Tenant.ID, &domain.UpdateThresholdsRequest{})
	assert.ErrorIs(t, err, service.ErrForbidden, "another tenant's thresholds are off limits")
}
