package handler

import (
	"net/http"

	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/service"
	"go.uber.org/zap"
)

// FacilityHandler handles HTTP requests for licensed facilities
type FacilityHandler struct {
	facilityService *service.FacilityService
	logger          *zap.Logger
}

// NewFacilityHandler creates a new FacilityHandler instance
func NewFacilityHandler(facilityService *service.FacilityService, logger *zap.Logger) *FacilityHandler {
	return &FacilityHandler{
		facilityService: facilityService,
		logger:          logger,
	}
}

// List godoc
// @Summary List facilities
// @Tags Facilities
// @Produce json
// @Success 200 {array} domain.FacilityDTO
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /facilities [get]
func (h *FacilityHandler) List(w http.ResponseWriter, r *http.Request) {
	facilities, err := h.facilityService.List(r.Context())
	if err != nil {
		respondError(w, h.logger, err, "list facilities")
		return
	}
	respondJSON(w, http.StatusOK, facilities)
}

// Create godoc
// @Summary Create facility
// @Tags Facilities
// @Accept json
// @Produce json
// @Param request body domain.CreateFacilityRequest true "Facility data"
// @Success 201 {object} domain.FacilityDTO
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /facilities [post]
func (h *FacilityHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateFacilityRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	facility, err := h.facilityService.Create(r.Context(), &req)
	if err != nil {
		respondError(w, h.logger, err, "create facility")
		return
	}
	respondJSON(w, http.StatusCreated, facility)
}

// GetByID godoc
// @Summary Get facility
// @Tags Facilities
// @Produce json
// @Param id path string true "Facility ID" format(uuid)
// @Success 200 {object} domain.FacilityDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /facilities/{id} [get]
func (h *FacilityHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "facility")
	if !ok {
		return
	}
	facility, err := h.facilityService.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err, "get facility")
		return
	}
	respondJSON(w, http.StatusOK, facility)
}

// Update godoc
// @Summary Update facility
// @Tags Facilities
// @Accept json
// @Produce json
// @Param id path string true "Facility ID" format(uuid)
// @Param request body domain.UpdateFacilityRequest true "Facility data"
// @Success 200 {object} domain.FacilityDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /facilities/{id} [put]
func (h *FacilityHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "facility")
	if !ok {
		return
	}
	var req domain.UpdateFacilityRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	facility, err := h.facilityService.Update(r.Context(), id, &req)
	if err != nil {
		respondError(w, h.logger, err, "update facility")
		return
	}
	respondJSON(w, http.StatusOK, facility)
}

// Delete godoc
// @Summary Delete facility
// @Tags Facilities
// @Param id path string true "Facility ID" format(uuid)
// @Success 204
// @Failure 404 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /facilities/{id} [delete]
func (h *FacilityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "facility")
	if !ok {
		return
	}
	if err := h.facilityService.Delete(r.Context(), id); err != nil {
		respondError(w, h.logger, err, "delete facility")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
