package handler

import (
	"net/http"

	"github.com/straye-as/cultivation-api/internal/auth"
	"github.com/straye-as/cultivation-api/internal/domain"
)

// AuthHandler describes the authenticated caller
type AuthHandler struct{}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// Me godoc
// @Summary Get current authenticated user
// @Description Returns the caller's roles, tenant and effective permissions
// @Tags Auth
// @Produce json
// @Success 200 {object} domain.AuthUserDTO
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.FromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	permissions := make([]domain.PermissionType, 0, len(domain.AllPermissions))
	for _, p := range domain.AllPermissions {
		if user.HasPermission(p) {
			permissions = append(permissions, p)
		}
	}

	respondJSON(w, http.StatusOK, domain.AuthUserDTO{
		ID:           user.UserID,
		Name:         user.DisplayName,
		Email:        user.Email,
		Roles:        user.RolesAsStrings(),
		TenantID:     user.TenantID,
		IsSuperAdmin: user.IsSuperAdmin(),
		Permissions:  permissions,
	})
}
