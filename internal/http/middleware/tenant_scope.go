package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/auth"
	"go.uber.org/zap"
)

// TenantHeader selects the tenant of a request for super admins and API key callers
const TenantHeader = "X-Tenant-ID"

// FacilityHeader optionally narrows a request to one facility
const FacilityHeader = "X-Facility-ID"

// TenantScopeMiddleware pins every authenticated request to one tenant
type TenantScopeMiddleware struct {
	logger *zap.Logger
}

// NewTenantScopeMiddleware creates a new tenant scope middleware
func NewTenantScopeMiddleware(logger *zap.Logger) *TenantScopeMiddleware {
	return &TenantScopeMiddleware{
		logger: logger,
	}
}

// Scope sets the tenant scope in context:
//   - an X-Tenant-ID header (or ?tenantId=) selects the tenant, which the user must be able to access
//   - otherwise the user's own tenant is used
//   - super admins without a header get no scope; tenant-scoped operations then fail
func (m *TenantScopeMiddleware) Scope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userCtx, ok := auth.FromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		requested := strings.TrimSpace(r.Header.Get(TenantHeader))
		if requested == "" {
			requested = strings.TrimSpace(r.URL.Query().Get("tenantId"))
		}

		var scope auth.TenantScope
		if requested != "" {
			tenantID, err := uuid.Parse(requested)
			if err != nil {
				http.Error(w, "Invalid tenant ID", http.StatusBadRequest)
				return
			}
			if !userCtx.CanAccessTenant(tenantID) {
				m.logger.Warn("user attempted to access unauthorized tenant",
					zap.String("user_id", userCtx.UserID.String()),
					zap.String("requested_tenant", requested),
				)
				http.Error(w, "Access denied: you cannot access data for this tenant", http.StatusForbidden)
				return
			}
			scope.TenantID = tenantID
		} else if userCtx.TenantID != nil {
			scope.TenantID = *userCtx.TenantID
		} else {
			next.ServeHTTP(w, r)
			return
		}

		if raw := strings.TrimSpace(r.Header.Get(FacilityHeader)); raw != "" {
			facilityID, err := uuid.Parse(raw)
			if err != nil {
				http.Error(w, "Invalid facility ID", http.StatusBadRequest)
				return
			}
			scope.FacilityID = &facilityID
		}

		next.ServeHTTP(w, r.WithContext(auth.WithTenantScope(r.Context(), scope)))
	})
}
