package handler

import (
	"net/http"

	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/repository"
	"github.com/straye-as/cultivation-api/internal/service"
	"go.uber.org/zap"
)

// PhysicalCountHandler handles HTTP requests for physical inventory counts
type PhysicalCountHandler struct {
	countService *service.PhysicalCountService
	logger       *zap.Logger
}

// NewPhysicalCountHandler creates a new PhysicalCountHandler instance
func NewPhysicalCountHandler(countService *service.PhysicalCountService, logger *zap.Logger) *PhysicalCountHandler {
	return &PhysicalCountHandler{
		countService: countService,
		logger:       logger,
	}
}

// List godoc
// @Summary List physical counts
// @Tags Physical Counts
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page (max 200)" default(20)
// @Param batchId query string false "Filter by batch" format(uuid)
// @Param facilityId query string false "Filter by facility" format(uuid)
// @Param status query string false "Filter by status" Enums(pending, resolved)
// @Param includeArchived query bool false "Include archived counts" default(false)
// @Success 200 {object} domain.PaginatedResponse{data=[]domain.PhysicalCountDTO}
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /physical-counts [get]
func (h *PhysicalCountHandler) List(w http.ResponseWriter, r *http.Request) {
	batchID, ok := parseOptionalUUID(w, r, "batchId")
	if !ok {
		return
	}
	facilityID, ok := parseOptionalUUID(w, r, "facilityId")
	if !ok {
		return
	}
	status := domain.CountStatus(r.URL.Query().Get("status"))
	if status != "" && status != domain.CountPending && status != domain.CountResolved {
		respondWithError(w, http.StatusBadRequest, "Invalid status: must be pending or resolved")
		return
	}

	result, err := h.countService.List(r.Context(), repository.CountFilters{
		BatchID:         batchID,
		FacilityID:      facilityID,
		Status:          status,
		IncludeArchived: parseBool(r, "includeArchived"),
	}, parsePagination(r))
	if err != nil {
		respondError(w, h.logger, err, "list physical counts")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Create godoc
// @Summary Record physical count
// @Description Record a counted quantity against a batch. The expected quantity defaults to the batch quantity.
// @Tags Physical Counts
// @Accept json
// @Produce json
// @Param request body domain.CreatePhysicalCountRequest true "Count data"
// @Success 201 {object} domain.PhysicalCountDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /physical-counts [post]
func (h *PhysicalCountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePhysicalCountRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	count, err := h.countService.Create(r.Context(), &req)
	if err != nil {
		respondError(w, h.logger, err, "record physical count")
		return
	}
	respondJSON(w, http.StatusCreated, count)
}

// GetByID godoc
// @Summary Get physical count
// @Tags Physical Counts
// @Produce json
// @Param id path string true "Count ID" format(uuid)
// @Success 200 {object} domain.PhysicalCountDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /physical-counts/{id} [get]
func (h *PhysicalCountHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "count")
	if !ok {
		return
	}
	count, err := h.countService.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err, "get physical count")
		return
	}
	respondJSON(w, http.StatusOK, count)
}

// Resolve godoc
// @Summary Resolve physical count
// @Description accept closes the count, adjust corrects the batch to the counted quantity, report_loss registers a loss_theft event for the shortfall
// @Tags Physical Counts
// @Accept json
// @Produce json
// @Param id path string true "Count ID" format(uuid)
// @Param request body domain.ResolvePhysicalCountRequest true "Resolution"
// @Success 200 {object} domain.PhysicalCountDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 422 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /physical-counts/{id}/resolve [post]
func (h *PhysicalCountHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "count")
	if !ok {
		return
	}
	var req domain.ResolvePhysicalCountRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if !req.Resolution.IsValid() {
		respondFieldErrors(w, map[string]string{"resolution": "Must be one of: accept, adjust, report_loss"})
		return
	}

	count, err := h.countService.Resolve(r.Context(), id, &req)
	if err != nil {
		respondError(w, h.logger, err, "resolve physical count")
		return
	}
	respondJSON(w, http.StatusOK, count)
}
