package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/domain"
)

var (
	// ErrNoUser is returned when an operation needs an authenticated user
	ErrNoUser = errors.New("no authenticated user")
	// ErrNoTenantScope is returned when an operation runs without a tenant
	ErrNoTenantScope = errors.New("no tenant scope in context")
	// ErrForbidden is returned when the user lacks a permission or tenant access
	ErrForbidden = errors.New("forbidden")
)

// SystemUserID identifies the CLI and scheduled jobs in the ledger
var SystemUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// UserContext holds authenticated user information
type UserContext struct {
	UserID      uuid.UUID
	DisplayName string
	Email       string
	Roles       []domain.UserRoleType
	// TenantID is the tenant the user belongs to; nil for super admins
	TenantID *uuid.UUID
}

// TenantScope is the one tenant (and optionally facility) a request operates in
type TenantScope struct {
	TenantID   uuid.UUID
	FacilityID *uuid.UUID
}

type contextKey string

const (
	userContextKey contextKey = "userContext"
	tenantScopeKey contextKey = "tenantScope"
)

// WithUserContext adds user context to the context
func WithUserContext(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// FromContext extracts user context from the context
func FromContext(ctx context.Context) (*UserContext, bool) {
	user, ok := ctx.Value(userContextKey).(*UserContext)
	return user, ok && user != nil
}

// WithTenantScope pins the context to exactly one tenant
func WithTenantScope(ctx context.Context, scope TenantScope) context.Context {
	return context.WithValue(ctx, tenantScopeKey, scope)
}

// TenantScopeFromContext extracts the tenant scope
func TenantScopeFromContext(ctx context.Context) (TenantScope, bool) {
	scope, ok := ctx.Value(tenantScopeKey).(TenantScope)
	return scope, ok && scope.TenantID != uuid.Nil
}

// RequireTenant returns the tenant of the request or ErrNoTenantScope
func RequireTenant(ctx context.Context) (uuid.UUID, error) {
	scope, ok := TenantScopeFromContext(ctx)
	if !ok {
		return uuid.Nil, ErrNoTenantScope
	}
	return scope.TenantID, nil
}

// SystemContext builds the context used by the CLI and scheduled jobs for one tenant
func SystemContext(ctx context.Context, tenantID uuid.UUID) context.Context {
	ctx = WithUserContext(ctx, &UserContext{
		UserID:      SystemUserID,
		DisplayName: "System",
		Email:       "system@cultivation.local",
		Roles:       []domain.UserRoleType{domain.RoleSystem},
		TenantID:    &tenantID,
	})
	return WithTenantScope(ctx, TenantScope{TenantID: tenantID})
}

// HasRole checks if user has a specific role
func (u *UserContext) HasRole(role domain.UserRoleType) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole checks if user has any of the specified roles
func (u *UserContext) HasAnyRole(roles ...domain.UserRoleType) bool {
	for _, role := range roles {
		if u.HasRole(role) {
			return true
		}
	}
	return false
}

// IsSuperAdmin checks if user may select any tenant
func (u *UserContext) IsSuperAdmin() bool {
	return u.HasRole(domain.RoleSuperAdmin)
}

// CanAccessTenant checks if user can operate within a tenant
func (u *UserContext) CanAccessTenant(tenantID uuid.UUID) bool {
	if u.IsSuperAdmin() {
		return true
	}
	return u.TenantID != nil && *u.TenantID == tenantID
}

// HasPermission checks the role capability table
func (u *UserContext) HasPermission(permission domain.PermissionType) bool {
	for _, role := range u.Roles {
		if domain.RoleHasPermission(role, permission) {
			return true
		}
	}
	return false
}

// RolesAsStrings returns roles as a slice of strings
func (u *UserContext) RolesAsStrings() []string {
	result := make([]string, len(u.Roles))
	for i, role := range u.Roles {
		result[i] = string(role)
	}
	return result
}

// Authorizer decides whether the caller in ctx may use a permission
type Authorizer interface {
	Authorize(ctx context.Context, permission domain.PermissionType) error
}

// RoleAuthorizer authorizes against the default role capability table and
// the tenant scope of the request
type RoleAuthorizer struct{}

// NewRoleAuthorizer creates a RoleAuthorizer
func NewRoleAuthorizer() *RoleAuthorizer {
	return &RoleAuthorizer{}
}

// Authorize returns ErrNoUser, ErrNoTenantScope or ErrForbidden on failure
func (RoleAuthorizer) Authorize(ctx context.Context, permission domain.PermissionType) error {
	user, ok := FromContext(ctx)
	if !ok {
		return ErrNoUser
	}
	scope, ok := TenantScopeFromContext(ctx)
	if !ok {
		return ErrNoTenantScope
	}
	if !user.CanAccessTenant(scope.TenantID) {
		return ErrForbidden
	}
	if !user.HasPermission(permission) {
		return ErrForbidden
	}
	return nil
}
