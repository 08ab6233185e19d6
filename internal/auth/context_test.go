package auth_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/auth"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireTenant(t *testing.T) {
	_, err := auth.RequireTenant(context.Background())
	assert.ErrorIs(t, err, auth.ErrNoTenantScope)

	_, err = auth.RequireTenant(auth.WithTenantScope(context.Background(), auth.TenantScope{}))
	assert.ErrorIs(t, err, auth.ErrNoTenantScope, "nil tenant ID is not a scope")

	id := uuid.New()
	got, err := auth.RequireTenant(auth.WithTenantScope(context.Background(), auth.TenantScope{TenantID: id}))
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestSystemContext(t *testing.T) {
	id := uuid.New()
	ctx := auth.SystemContext(context.Background(), id)

	user, ok := auth.FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, auth.SystemUserID, user.UserID)
	assert.True(t, user.HasRole(domain.RoleSystem))
	assert.True(t, user.CanAccessTenant(id))
	assert.False(t, user.CanAccessTenant(uuid.New()))

	tenantID, err := auth.RequireTenant(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, tenantID)
}

func TestRoleAuthorizer(t *testing.T) {
	authz := auth.NewRoleAuthorizer()
	tenantA, tenantB := uuid.New(), uuid.New()
	cultivator := &auth.UserContext{UserID: uuid.New(), Roles: []domain.UserRoleType{domain.RoleCultivator}, TenantID: &tenantA}

	assert.ErrorIs(t, authz.Authorize(context.Background(), domain.PermissionBatchesRead), auth.ErrNoUser)

	noScope := auth.WithUserContext(context.Background(), cultivator)
	assert.ErrorIs(t, authz.Authorize(noScope, domain.PermissionBatchesRead), auth.ErrNoTenantScope)

	own := auth.WithTenantScope(noScope, auth.TenantScope{TenantID: tenantA})
	assert.NoError(t, authz.Authorize(own, domain.PermissionBatchesMutate))
	assert.ErrorIs(t, authz.Authorize(own, domain.PermissionExportsRun), auth.ErrForbidden)

	foreign := auth.WithTenantScope(noScope, auth.TenantScope{TenantID: tenantB})
	assert.ErrorIs(t, authz.Authorize(foreign, domain.PermissionBatchesRead), auth.ErrForbidden)

	admin := auth.WithUserContext(context.Background(), &auth.UserContext{Roles: []domain.UserRoleType{domain.RoleSuperAdmin}})
	assert.NoError(t, authz.Authorize(auth.WithTenantScope(admin, auth.TenantScope{TenantID: tenantB}), domain.PermissionTenantsManage))
}

func TestUserContext_Roles(t *testing.T) {
	u := &auth.UserContext{Roles: []domain.UserRoleType{domain.RoleViewer, domain.RoleComplianceOfficer}}
	assert.True(t, u.HasAnyRole(domain.RoleTenantAdmin, domain.RoleComplianceOfficer))
	assert.False(t, u.HasAnyRole(domain.RoleTenantAdmin))
	assert.False(t, u.IsSuperAdmin())
	assert.Equal(t, []string{"viewer", "compliance_officer"}, u.RolesAsStrings())
	assert.True(t, u.HasPermission(domain.PermissionArchivalRun))
	assert.False(t, u.HasPermission(domain.PermissionBatchesMutate))
}
