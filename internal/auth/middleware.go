package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/config"
	"github.com/straye-as/cultivation-api/internal/domain"
	"go.uber.org/zap"
)

// APIKeyUserID identifies requests authenticated with the service API key
var APIKeyUserID = uuid.MustParse("00000000-0000-0000-0000-000000000002")

// TokenValidator turns a bearer token into a user
type TokenValidator interface {
	ValidateToken(token string) (*UserContext, error)
}

// Middleware authenticates API requests
type Middleware struct {
	validator TokenValidator
	apiKey    []byte
	logger    *zap.Logger
}

// NewMiddleware validates bearer tokens against Azure AD
func NewMiddleware(cfg *config.Config, logger *zap.Logger) *Middleware {
	return NewMiddlewareWithValidator(NewJWTValidator(&cfg.AzureAd), cfg.ApiKey.Value, logger)
}

// NewMiddlewareWithValidator creates a middleware around a custom validator.
// An empty apiKey disables API key authentication.
func NewMiddlewareWithValidator(v TokenValidator, apiKey string, logger *zap.Logger) *Middleware {
	return &Middleware{validator: v, apiKey: []byte(apiKey), logger: logger}
}

// Authenticate resolves the caller from an x-api-key header or a bearer
// token. API key callers act as super admins without a home tenant and pick
// one with X-Tenant-ID.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		user, method, err := m.authenticate(r)
		if err != nil {
			m.logger.Warn("authentication failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("authType", method),
				zap.String("remoteAddr", r.RemoteAddr),
				zap.Error(err),
			)
			writeProblem(w, http.StatusUnauthorized, domain.ErrorTypeUnauthorized, err.Error())
			return
		}

		fields := []zap.Field{
			zap.String("authType", method),
			zap.String("userID", user.UserID.String()),
			zap.Strings("roles", user.RolesAsStrings()),
			zap.Duration("authDuration", time.Since(start)),
		}
		if user.TenantID != nil {
			fields = append(fields, zap.String("tenantID", user.TenantID.String()))
		}
		m.logger.Debug("request authenticated", fields...)

		next.ServeHTTP(w, r.WithContext(WithUserContext(r.Context(), user)))
	})
}

type authError string

func (e authError) Error() string { return string(e) }

const (
	errMissingCredentials authError = "missing authorization header"
	errMalformedHeader    authError = "invalid authorization header format"
	errBadAPIKey          authError = "invalid API key"
)

func (m *Middleware) authenticate(r *http.Request) (*UserContext, string, error) {
	if key := r.Header.Get("x-api-key"); key != "" {
		if len(m.apiKey) == 0 || subtle.ConstantTimeCompare([]byte(key), m.apiKey) != 1 {
			return nil, "api_key", errBadAPIKey
		}
		return &UserContext{
			UserID:      APIKeyUserID,
			DisplayName: "API Key",
			Email:       "api@cultivation.local",
			Roles:       []domain.UserRoleType{domain.RoleSuperAdmin},
		}, "api_key", nil
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, "none", errMissingCredentials
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return nil, "jwt", errMalformedHeader
	}
	user, err := m.validator.ValidateToken(strings.TrimSpace(token))
	if err != nil {
		return nil, "jwt", err
	}
	return user, "jwt", nil
}

// RequirePermission rejects callers that lack permission with 403. Services
// authorize every operation themselves; this guards routes that are closed
// to whole roles.
func (m *Middleware) RequirePermission(permission domain.PermissionType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := FromContext(r.Context())
			if !ok {
				writeProblem(w, http.StatusUnauthorized, domain.ErrorTypeUnauthorized, "no authenticated user")
				return
			}
			if !user.HasPermission(permission) {
				m.logger.Warn("permission denied",
					zap.String("path", r.URL.Path),
					zap.String("userID", user.UserID.String()),
					zap.String("permission", string(permission)),
				)
				writeProblem(w, http.StatusForbidden, domain.ErrorTypeForbidden, "missing permission "+string(permission))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeProblem(w http.ResponseWriter, status int, errType, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(domain.APIError{
		Type:   errType,
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	})
}
