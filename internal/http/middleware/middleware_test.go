package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/straye-as/cultivation-api/internal/auth"
	"github.com/straye-as/cultivation-api/internal/config"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/http/middleware"
	"github.com/straye-as/cultivation-api/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func scopeHandler(captured *auth.TenantScope, found *bool) http.Handler {
	return middleware.NewTenantScopeMiddleware(zap.NewNop()).Scope(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured, *found = auth.TenantScopeFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
}

func withUser(req *http.Request, user *auth.UserContext) *http.Request {
	return req.WithContext(auth.WithUserContext(req.Context(), user))
}

func TestTenantScope_UsesOwnTenant(t *testing.T) {
	tenantID := uuid.New()
	user := &auth.UserContext{UserID: uuid.New(), Roles: []domain.UserRoleType{domain.RoleCultivator}, TenantID: &tenantID}

	var scope auth.TenantScope
	var found bool
	w := httptest.NewRecorder()
	scopeHandler(&scope, &found).ServeHTTP(w, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/batches", nil), user))

	assert.Equal(t, http.StatusOK, w.Code)
	require.True(t, found)
	assert.Equal(t, tenantID, scope.TenantID)
	assert.Nil(t, scope.FacilityID)
}

func TestTenantScope_DeniesForeignTenant(t *testing.T) {
	tenantID := uuid.New()
	user := &auth.UserContext{UserID: uuid.New(), Roles: []domain.UserRoleType{domain.RoleTenantAdmin}, TenantID: &tenantID}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/batches", nil)
	req.Header.Set(middleware.TenantHeader, uuid.NewString())

	var scope auth.TenantScope
	var found bool
	w := httptest.NewRecorder()
	scopeHandler(&scope, &found).ServeHTTP(w, withUser(req, user))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, found)
}

func TestTenantScope_SuperAdminSelectsTenant(t *testing.T) {
	admin := &auth.UserContext{UserID: uuid.New(), Roles: []domain.UserRoleType{domain.RoleSuperAdmin}}
	tenantID, facilityID := uuid.New(), uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/batches?tenantId="+tenantID.String(), nil)
	req.Header.Set(middleware.FacilityHeader, facilityID.String())

	var scope auth.TenantScope
	var found bool
	w := httptest.NewRecorder()
	scopeHandler(&scope, &found).ServeHTTP(w, withUser(req, admin))
	assert.Equal(t, http.StatusOK, w.Code)
	require.True(t, found)
	assert.Equal(t, tenantID, scope.TenantID)
	require.NotNil(t, scope.FacilityID)
	assert.Equal(t, facilityID, *scope.FacilityID)

	// no header: no scope, operations decide
	found = true
	w = httptest.NewRecorder()
	scopeHandler(&scope, &found).ServeHTTP(w, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/tenants", nil), admin))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, found)
}

func TestTenantScope_InvalidIDs(t *testing.T) {
	admin := &auth.UserContext{UserID: uuid.New(), Roles: []domain.UserRoleType{domain.RoleSuperAdmin}}
	var scope auth.TenantScope
	var found bool

	req := httptest.NewRequest(http.MethodGet, "/api/v1/batches", nil)
	req.Header.Set(middleware.TenantHeader, "green-co")
	w := httptest.NewRecorder()
	scopeHandler(&scope, &found).ServeHTTP(w, withUser(req, admin))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/batches", nil)
	req.Header.Set(middleware.TenantHeader, uuid.NewString())
	req.Header.Set(middleware.FacilityHeader, "nope")
	w = httptest.NewRecorder()
	scopeHandler(&scope, &found).ServeHTTP(w, withUser(req, admin))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTenantScope_NoUserPassesThrough(t *testing.T) {
	var scope auth.TenantScope
	var found bool
	w := httptest.NewRecorder()
	scopeHandler(&scope, &found).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, found)
}

func TestSecurityHeaders(t *testing.T) {
	cfg := &config.SecurityConfig{
		EnableHSTS:            true,
		HSTSMaxAge:            31536000,
		HSTSIncludeSubdomains: true,
		ContentTypeNosniff:    true,
		FrameOptions:          "DENY",
		ContentSecurityPolicy: "default-src 'self'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}
	handler := middleware.SecurityHeaders(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/batches", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "max-age=31536000; includeSubDomains", w.Header().Get("Strict-Transport-Security"))
	assert.Empty(t, w.Header().Get("Permissions-Policy"))
}

func TestCORS(t *testing.T) {
	cfg := &config.CORSConfig{
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Tenant-ID"},
	}
	handler := middleware.CORS(cfg, "production", zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	preflight := func(origin string) string {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/batches", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", "GET")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Header().Get("Access-Control-Allow-Origin")
	}
	assert.Equal(t, "https://app.example.com", preflight("https://app.example.com"))
	assert.Empty(t, preflight("https://evil.example.com"))

	denyAll := middleware.CORS(&config.CORSConfig{}, "production", zap.NewNop())(http.NotFoundHandler())
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/batches", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	denyAll.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter(t *testing.T) {
	rl := middleware.NewRateLimiter(&config.RateLimitConfig{
		Enabled:               true,
		RequestsPerMinute:     3,
		RequestsPerMinuteAuth: 3,
		WhitelistPaths:        []string{"/health/*"},
	}, zap.NewNop())
	handler := rl.LimitByIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	limited := 0
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/batches", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code == http.StatusTooManyRequests {
			limited++
			assert.Equal(t, "60", w.Header().Get("Retry-After"))
		}
	}
	assert.Greater(t, limited, 0)

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := middleware.NewRateLimiter(&config.RateLimitConfig{Enabled: false, RequestsPerMinute: 1}, zap.NewNop())
	handler := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/batches", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestMetrics_RecordsRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	r := chi.NewRouter()
	r.Use(middleware.Metrics(m))
	r.Get("/batches/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/batches/"+uuid.NewString(), nil))
	}

	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPDuration))
	lint, err := testutil.CollectAndLint(m.HTTPDuration)
	require.NoError(t, err)
	assert.Empty(t, lint)
}

func TestLogging_SetsRequestID(t *testing.T) {
	handler := middleware.Logging(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/batches", nil).WithContext(context.Background()))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
