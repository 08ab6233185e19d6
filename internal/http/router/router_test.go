package router_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/app"
	"github.com/straye-as/cultivation-api/internal/auth"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/http/handler"
	"github.com/straye-as/cultivation-api/internal/http/middleware"
	"github.com/straye-as/cultivation-api/internal/http/router"
	"github.com/straye-as/cultivation-api/internal/storage"
	"github.com/straye-as/cultivation-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testAPIKey = "test-api-key"

type tokenTable map[string]*auth.UserContext

func (t tokenTable) ValidateToken(token string) (*auth.UserContext, error) {
	if u, ok := t[token]; ok {
		return u, nil
	}
	return nil, errors.New("unknown token")
}

type server struct {
	handler http.Handler
	north   *testutil.Fixture
	south   *testutil.Fixture
}

func newServer(t *testing.T) *server {
	t.Helper()
	db := testutil.SetupTestDB(t)
	cfg := testutil.Config()
	cfg.Security.ContentTypeNosniff = true
	log := zap.NewNop()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	a := app.NewWithDB(cfg, db, store, log)

	north := testutil.NewFixture(t, db, "north")
	south := testutil.NewFixture(t, db, "south")
	user := func(f *testutil.Fixture, role domain.UserRoleType) *auth.UserContext {
		id := f.Tenant.ID
		return &auth.UserContext{UserID: f.UserID, DisplayName: string(role), Roles: []domain.UserRoleType{role}, TenantID: &id}
	}
	tokens := tokenTable{
		"cultivator": user(north, domain.RoleCultivator),
		"viewer":     user(north, domain.RoleViewer),
		"compliance": user(north, domain.RoleComplianceOfficer),
		"south":      user(south, domain.RoleCultivator),
	}

	handlers := router.Handlers{
		Auth:          handler.NewAuthHandler(),
		Tenant:        handler.NewTenantHandler(a.Tenants, log),
		Facility:      handler.NewFacilityHandler(a.Facilities, log),
		Stage:         handler.NewStageHandler(a.Stages, log),
		Area:          handler.NewCultivationAreaHandler(a.Areas, log),
		Batch:         handler.NewBatchHandler(a.Batches, a.Mutations, log),
		Event:         handler.NewEventHandler(a.Events, a.Mutations, log),
		PhysicalCount: handler.NewPhysicalCountHandler(a.Counts, log),
		LossReport:    handler.NewLossReportHandler(a.LossReports, log),
		Compliance:    handler.NewComplianceHandler(a.Detection, a.Archival, a.Exports, log),
		Notification:  handler.NewNotificationHandler(a.Notifications, log),
	}
	rt := router.NewRouter(
		cfg,
		log,
		db,
		nil,
		a.Registry,
		a.Metrics,
		auth.NewMiddlewareWithValidator(tokens, testAPIKey, log),
		middleware.NewTenantScopeMiddleware(log),
		middleware.NewRateLimiter(&cfg.RateLimit, log),
		handlers,
	)
	return &server{handler: rt.Setup(), north: north, south: south}
}

func (s *server) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func (s *server) createBatch(t *testing.T, token string, f *testutil.Fixture, name, qty string) domain.BatchDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/batches", token, map[string]interface{}{
		"name":              name,
		"cultivationAreaId": f.AreaA.ID,
		"quantity":          qty,
		"unit":              "g",
		"endType":           "dried",
		"productType":       "dried_cannabis",
		"originType":        "internal",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var dto domain.BatchDTO
	decode(t, rec, &dto)
	assert.Equal(t, "/api/v1/batches/"+dto.ID.String(), rec.Header().Get("Location"))
	return dto
}

func TestHealthAndSecurityHeaders(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = s.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database"`)

	rec = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthentication(t *testing.T) {
	s := newServer(t)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/batches", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/batches", "forged", nil).Code)

	rec := s.do(t, http.MethodGet, "/api/v1/auth/me", "viewer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), s.north.Tenant.ID.String())

	rec = s.do(t, http.MethodPost, "/api/v1/tenants", "cultivator", map[string]string{"name": "Nope", "slug": "nope"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"forbidden"`)
}

func TestBatchLifecycle(t *testing.T) {
	s := newServer(t)
	batch := s.createBatch(t, "cultivator", s.north, "Blue Dream", "100")

	rec := s.do(t, http.MethodGet, "/api/v1/batches", "viewer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Total int64             `json:"total"`
		Data  []domain.BatchDTO `json:"data"`
	}
	decode(t, rec, &page)
	assert.Equal(t, int64(1), page.Total)

	rec = s.do(t, http.MethodPost, "/api/v1/batches/"+batch.ID.String()+"/split", "cultivator", map[string]interface{}{
		"quantity":          "40",
		"destinationAreaId": s.north.AreaB.ID,
		"newBatchName":      "Blue Dream B",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var result domain.MutationResultDTO
	decode(t, rec, &result)
	require.NotNil(t, result.NewBatch)
	assert.True(t, result.NewBatch.CurrentQuantity.Equal(testutil.Dec("40")))
	assert.Equal(t, domain.EventMovement, result.Event.EventType)

	rec = s.do(t, http.MethodGet, "/api/v1/batches/"+batch.ID.String()+"/events", "viewer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []domain.TraceabilityEventDTO
	decode(t, rec, &events)
	assert.Len(t, events, 2)

	rec = s.do(t, http.MethodDelete, "/api/v1/batches/"+batch.ID.String(), "cultivator", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	s := newServer(t)
	batch := s.createBatch(t, "cultivator", s.north, "Small", "10")
	splitPath := "/api/v1/batches/" + batch.ID.String() + "/split"

	t.Run("invariant violation is 422", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, splitPath, "cultivator", map[string]interface{}{
			"quantity":          "10",
			"destinationAreaId": s.north.AreaB.ID,
			"newBatchName":      "All of it",
		})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		var apiErr domain.APIError
		decode(t, rec, &apiErr)
		assert.Equal(t, domain.ErrorTypeInvariant, apiErr.Type)
	})

	t.Run("validation lists fields", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/v1/batches", "cultivator", map[string]interface{}{"quantity": "1"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var apiErr domain.APIError
		decode(t, rec, &apiErr)
		assert.Equal(t, domain.ErrorTypeValidation, apiErr.Type)
		assert.Contains(t, apiErr.Errors, "name")
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/batches", strings.NewReader("{"))
		req.Header.Set("Authorization", "Bearer cultivator")
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("forbidden", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, splitPath, "viewer", map[string]interface{}{
			"quantity":          "1",
			"destinationAreaId": s.north.AreaB.ID,
			"newBatchName":      "Nope",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("not found", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/v1/batches/"+uuid.NewString(), "viewer", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		rec = s.do(t, http.MethodGet, "/api/v1/batches/not-a-uuid", "viewer", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTenantScoping(t *testing.T) {
	s := newServer(t)
	north := s.createBatch(t, "cultivator", s.north, "North", "10")
	s.createBatch(t, "south", s.south, "South", "10")

	rec := s.do(t, http.MethodGet, "/api/v1/batches/"+north.ID.String(), "south", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "other tenants' batches are invisible")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/batches", nil)
	req.Header.Set("Authorization", "Bearer viewer")
	req.Header.Set(middleware.TenantHeader, s.south.Tenant.ID.String())
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/batches", nil)
	req.Header.Set("x-api-key", testAPIKey)
	req.Header.Set(middleware.TenantHeader, s.south.Tenant.ID.String())
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Data []domain.BatchDTO `json:"data"`
	}
	decode(t, rec, &page)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "South", page.Data[0].Name)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/batches", nil)
	req.Header.Set("x-api-key", testAPIKey)
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "an API key caller must pick a tenant")
}

func TestComplianceEndpoints(t *testing.T) {
	s := newServer(t)
	s.createBatch(t, "cultivator", s.north, "Export me", "25")

	rec := s.do(t, http.MethodGet, "/api/v1/exports/health-canada?format=csv", "compliance", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "health-canada-north-")
	assert.Contains(t, rec.Body.String(), "Export me")

	rec = s.do(t, http.MethodGet, "/api/v1/exports/health-canada?format=pdf", "compliance", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/v1/exports/health-canada?startDate=2024-13-01", "compliance", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/v1/exports/health-canada", "viewer", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/v1/retention-policies/batch", "compliance", map[string]interface{}{"retentionMonths": 24})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/archival/run", "compliance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report domain.ArchivalReport
	decode(t, rec, &report)
	assert.True(t, report.DryRun, "archival defaults to a dry run")
	require.Len(t, report.Types, 1)
	assert.Empty(t, report.Types[0].CandidateIDs)

	rec = s.do(t, http.MethodPost, "/api/v1/archival/run?dryRun=maybe", "compliance", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/alerts/variance", "viewer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}
