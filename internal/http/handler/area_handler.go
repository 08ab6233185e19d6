package handler

import (
	"net/http"

	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/service"
	"go.uber.org/zap"
)

// StageHandler handles HTTP requests for the tenant's cultivation stages
type StageHandler struct {
	stageService *service.StageService
	logger       *zap.Logger
}

// NewStageHandler creates a new StageHandler instance
func NewStageHandler(stageService *service.StageService, logger *zap.Logger) *StageHandler {
	return &StageHandler{stageService: stageService, logger: logger}
}

// List godoc
// @Summary List stages
// @Description Cultivation stages in position order
// @Tags Stages
// @Produce json
// @Success 200 {array} domain.StageDTO
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /stages [get]
func (h *StageHandler) List(w http.ResponseWriter, r *http.Request) {
	stages, err := h.stageService.List(r.Context())
	if err != nil {
		respondError(w, h.logger, err, "list stages")
		return
	}
	respondJSON(w, http.StatusOK, stages)
}

// Create godoc
// @Summary Create stage
// @Tags Stages
// @Accept json
// @Produce json
// @Param request body domain.CreateStageRequest true "Stage data"
// @Success 201 {object} domain.StageDTO
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /stages [post]
func (h *StageHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateStageRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	stage, err := h.stageService.Create(r.Context(), &req)
	if err != nil {
		respondError(w, h.logger, err, "create stage")
		return
	}
	respondJSON(w, http.StatusCreated, stage)
}

// Rename godoc
// @Summary Rename stage
// @Tags Stages
// @Accept json
// @Produce json
// @Param id path string true "Stage ID" format(uuid)
// @Param request body domain.UpdateStageRequest true "Stage name"
// @Success 200 {object} domain.StageDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /stages/{id} [put]
func (h *StageHandler) Rename(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "stage")
	if !ok {
		return
	}
	var req domain.UpdateStageRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	stage, err := h.stageService.Rename(r.Context(), id, &req)
	if err != nil {
		respondError(w, h.logger, err, "rename stage")
		return
	}
	respondJSON(w, http.StatusOK, stage)
}

// Reorder godoc
// @Summary Reorder stages
// @Description Assign positions to every stage in the given order
// @Tags Stages
// @Accept json
// @Produce json
// @Param request body domain.ReorderStagesRequest true "Stage IDs in order"
// @Success 200 {array} domain.StageDTO
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /stages/order [put]
func (h *StageHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req domain.ReorderStagesRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	stages, err := h.stageService.Reorder(r.Context(), &req)
	if err != nil {
		respondError(w, h.logger, err, "reorder stages")
		return
	}
	respondJSON(w, http.StatusOK, stages)
}

// Delete godoc
// @Summary Delete stage
// @Tags Stages
// @Param id path string true "Stage ID" format(uuid)
// @Success 204
// @Failure 404 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /stages/{id} [delete]
func (h *StageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "stage")
	if !ok {
		return
	}
	if err := h.stageService.Delete(r.Context(), id); err != nil {
		respondError(w, h.logger, err, "delete stage")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CultivationAreaHandler handles HTTP requests for cultivation areas
type CultivationAreaHandler struct {
	areaService *service.CultivationAreaService
	logger      *zap.Logger
}

// NewCultivationAreaHandler creates a new CultivationAreaHandler instance
func NewCultivationAreaHandler(areaService *service.CultivationAreaService, logger *zap.Logger) *CultivationAreaHandler {
	return &CultivationAreaHandler{areaService: areaService, logger: logger}
}

// List godoc
// @Summary List cultivation areas
// @Tags Cultivation Areas
// @Produce json
// @Param facilityId query string false "Filter by facility" format(uuid)
// @Success 200 {array} domain.CultivationAreaDTO
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /cultivation-areas [get]
func (h *CultivationAreaHandler) List(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := parseOptionalUUID(w, r, "facilityId")
	if !ok {
		return
	}
	areas, err := h.areaService.List(r.Context(), facilityID)
	if err != nil {
		respondError(w, h.logger, err, "list cultivation areas")
		return
	}
	respondJSON(w, http.StatusOK, areas)
}

// Create godoc
// @Summary Create cultivation area
// @Tags Cultivation Areas
// @Accept json
// @Produce json
// @Param request body domain.CreateCultivationAreaRequest true "Area data"
// @Success 201 {object} domain.CultivationAreaDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /cultivation-areas [post]
func (h *CultivationAreaHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateCultivationAreaRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	area, err := h.areaService.Create(r.Context(), &req)
	if err != nil {
		respondError(w, h.logger, err, "create cultivation area")
		return
	}
	respondJSON(w, http.StatusCreated, area)
}

// GetByID godoc
// @Summary Get cultivation area
// @Tags Cultivation Areas
// @Produce json
// @Param id path string true "Area ID" format(uuid)
// @Success 200 {object} domain.CultivationAreaDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /cultivation-areas/{id} [get]
func (h *CultivationAreaHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "area")
	if !ok {
		return
	}
	area, err := h.areaService.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err, "get cultivation area")
		return
	}
	respondJSON(w, http.StatusOK, area)
}

// Update godoc
// @Summary Update cultivation area
// @Tags Cultivation Areas
// @Accept json
// @Produce json
// @Param id path string true "Area ID" format(uuid)
// @Param request body domain.UpdateCultivationAreaRequest true "Area data"
// @Success 200 {object} domain.CultivationAreaDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /cultivation-areas/{id} [put]
func (h *CultivationAreaHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "area")
	if !ok {
		return
	}
	var req domain.UpdateCultivationAreaRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	area, err := h.areaService.Update(r.Context(), id, &req)
	if err != nil {
		respondError(w, h.logger, err, "update cultivation area")
		return
	}
	respondJSON(w, http.StatusOK, area)
}

// Delete godoc
// @Summary Delete cultivation area
// @Tags Cultivation Areas
// @Param id path string true "Area ID" format(uuid)
// @Success 204
// @Failure 404 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /cultivation-areas/{id} [delete]
func (h *CultivationAreaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "area")
	if !ok {
		return
	}
	if err := h.areaService.Delete(r.Context(), id); err != nil {
		respondError(w, h.logger, err, "delete cultivation area")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
