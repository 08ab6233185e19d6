package handler

import (
	"net/http"

	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/service"
	"go.uber.org/zap"
)

// TenantHandler handles HTTP requests for tenants
type TenantHandler struct {
	tenantService *service.TenantService
	logger        *zap.Logger
}

// NewTenantHandler creates a new TenantHandler instance
func NewTenantHandler(tenantService *service.TenantService, logger *zap.Logger) *TenantHandler {
	return &TenantHandler{
		tenantService: tenantService,
		logger:        logger,
	}
}

// List godoc
// @Summary List tenants
// @Description Super admins see every tenant, other users their own
// @Tags Tenants
// @Produce json
// @Success 200 {array} domain.TenantDTO
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /tenants [get]
func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.tenantService.List(r.Context())
	if err != nil {
		respondError(w, h.logger, err, "list tenants")
		return
	}
	respondJSON(w, http.StatusOK, tenants)
}

// GetByID godoc
// @Summary Get tenant
// @Tags Tenants
// @Produce json
// @Param id path string true "Tenant ID" format(uuid)
// @Success 200 {object} domain.TenantDTO
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /tenants/{id} [get]
func (h *TenantHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "tenant")
	if !ok {
		return
	}
	tenant, err := h.tenantService.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err, "get tenant")
		return
	}
	respondJSON(w, http.StatusOK, tenant)
}

// Create godoc
// @Summary Create tenant
// @Tags Tenants
// @Accept json
// @Produce json
// @Param request body domain.CreateTenantRequest true "Tenant data"
// @Success 201 {object} domain.TenantDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /tenants [post]
func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateTenantRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	tenant, err := h.tenantService.Create(r.Context(), &req)
	if err != nil {
		respondError(w, h.logger, err, "create tenant")
		return
	}
	respondJSON(w, http.StatusCreated, tenant)
}

// UpdateThresholds godoc
// @Summary Update reporting thresholds
// @Description Set or clear the tenant's Health Canada reporting threshold overrides
// @Tags Tenants
// @Accept json
// @Produce json
// @Param id path string true "Tenant ID" format(uuid)
// @Param request body domain.UpdateThresholdsRequest true "Thresholds"
// @Success 200 {object} domain.TenantDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /tenants/{id}/thresholds [put]
func (h *TenantHandler) UpdateThresholds(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "tenant")
	if !ok {
		return
	}
	var req domain.UpdateThresholdsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tenant, err := h.tenantService.UpdateThresholds(r.Context(), id, &req)
	if err != nil {
		respondError(w, h.logger, err, "update reporting thresholds")
		return
	}
	respondJSON(w, http.StatusOK, tenant)
}
