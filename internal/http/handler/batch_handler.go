package handler

import (
	"net/http"

	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/mapper"
	"github.com/straye-as/cultivation-api/internal/repository"
	"github.com/straye-as/cultivation-api/internal/service"
	"go.uber.org/zap"
)

// BatchHandler handles HTTP requests for batches and their mutations
type BatchHandler struct {
	batchService    *service.BatchService
	mutationService *service.MutationService
	logger          *zap.Logger
}

// NewBatchHandler creates a new BatchHandler instance
func NewBatchHandler(batchService *service.BatchService, mutationService *service.MutationService, logger *zap.Logger) *BatchHandler {
	return &BatchHandler{
		batchService:    batchService,
		mutationService: mutationService,
		logger:          logger,
	}
}

// List godoc
// @Summary List batches
// @Description Get a paginated list of batches in the tenant
// @Tags Batches
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page (max 200)" default(20)
// @Param facilityId query string false "Filter by facility" format(uuid)
// @Param cultivationAreaId query string false "Filter by cultivation area" format(uuid)
// @Param productType query string false "Filter by Health Canada product type"
// @Param search query string false "Search by name or variety"
// @Param includeArchived query bool false "Include archived batches" default(false)
// @Param sortBy query string false "Sort field" Enums(createdAt, updatedAt, name, quantity)
// @Param sortOrder query string false "Sort order" Enums(asc, desc) default(desc)
// @Success 200 {object} domain.PaginatedResponse{data=[]domain.BatchDTO}
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /batches [get]
func (h *BatchHandler) List(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := parseOptionalUUID(w, r, "facilityId")
	if !ok {
		return
	}
	areaID, ok := parseOptionalUUID(w, r, "cultivationAreaId")
	if !ok {
		return
	}

	productType := domain.ProductType(r.URL.Query().Get("productType"))
	if productType != "" && !productType.IsValid() {
		respondWithError(w, http.StatusBadRequest, "Invalid productType")
		return
	}

	sort := repository.DefaultSortConfig()
	if field := r.URL.Query().Get("sortBy"); field != "" {
		sort.Field = field
	}
	if order := r.URL.Query().Get("sortOrder"); order != "" {
		sort.Order = repository.ParseSortOrder(order)
	}

	result, err := h.batchService.List(r.Context(), service.BatchListParams{
		Filters: repository.BatchFilters{
			FacilityID:        facilityID,
			CultivationAreaID: areaID,
			ProductType:       productType,
			Search:            r.URL.Query().Get("search"),
			IncludeArchived:   parseBool(r, "includeArchived"),
		},
		Pagination: parsePagination(r),
		Sort:       sort,
	})
	if err != nil {
		respondError(w, h.logger, err, "list batches")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Create godoc
// @Summary Create batch
// @Description Create a batch in a cultivation area. A creation event is written with it.
// @Tags Batches
// @Accept json
// @Produce json
// @Param request body domain.CreateBatchRequest true "Batch data"
// @Success 201 {object} domain.BatchDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /batches [post]
func (h *BatchHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateBatchRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	batch, err := h.batchService.Create(r.Context(), &req)
	if err != nil {
		respondError(w, h.logger, err, "create batch")
		return
	}
	w.Header().Set("Location", "/api/v1/batches/"+batch.ID.String())
	respondJSON(w, http.StatusCreated, batch)
}

// GetByID godoc
// @Summary Get batch
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID" format(uuid)
// @Success 200 {object} domain.BatchDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /batches/{id} [get]
func (h *BatchHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "batch")
	if !ok {
		return
	}
	batch, err := h.batchService.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err, "get batch")
		return
	}
	respondJSON(w, http.StatusOK, batch)
}

// Update godoc
// @Summary Update batch
// @Description Update descriptive batch fields. Quantities change only through split, process, adjust or events.
// @Tags Batches
// @Accept json
// @Produce json
// @Param id path string true "Batch ID" format(uuid)
// @Param request body domain.UpdateBatchRequest true "Batch data"
// @Success 200 {object} domain.BatchDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /batches/{id} [put]
func (h *BatchHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "batch")
	if !ok {
		return
	}
	var req domain.UpdateBatchRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	batch, err := h.batchService.Update(r.Context(), id, &req)
	if err != nil {
		respondError(w, h.logger, err, "update batch")
		return
	}
	respondJSON(w, http.StatusOK, batch)
}

// Delete godoc
// @Summary Delete batch
// @Description Delete a batch that has no ledger history, counts, reports or lineage
// @Tags Batches
// @Param id path string true "Batch ID" format(uuid)
// @Success 204
// @Failure 404 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /batches/{id} [delete]
func (h *BatchHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "batch")
	if !ok {
		return
	}
	if err := h.batchService.Delete(r.Context(), id); err != nil {
		respondError(w, h.logger, err, "delete batch")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Split godoc
// @Summary Split batch
// @Description Move part of a batch into a new sibling batch in the destination area
// @Tags Batches
// @Accept json
// @Produce json
// @Param id path string true "Batch ID" format(uuid)
// @Param request body domain.SplitMutation true "Split data"
// @Success 201 {object} domain.MutationResultDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 422 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /batches/{id}/split [post]
func (h *BatchHandler) Split(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "batch")
	if !ok {
		return
	}
	var m domain.SplitMutation
	if !decodeJSON(w, r, &m) {
		return
	}
	m.BatchID = id
	if !validStruct(w, &m) {
		return
	}

	result, err := h.mutationService.Split(r.Context(), &m)
	if err != nil {
		respondError(w, h.logger, err, "split batch")
		return
	}
	respondJSON(w, http.StatusCreated, mapper.ToMutationResultDTO(result))
}

// Process godoc
// @Summary Process batch
// @Description Transform a batch into a new product type at the processed quantity
// @Tags Batches
// @Accept json
// @Produce json
// @Param id path string true "Batch ID" format(uuid)
// @Param request body domain.ProcessMutation true "Processing data"
// @Success 200 {object} domain.MutationResultDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 422 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /batches/{id}/process [post]
func (h *BatchHandler) Process(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "batch")
	if !ok {
		return
	}
	var m domain.ProcessMutation
	if !decodeJSON(w, r, &m) {
		return
	}
	m.BatchID = id
	if !validStruct(w, &m) {
		return
	}

	result, err := h.mutationService.Process(r.Context(), &m)
	if err != nil {
		respondError(w, h.logger, err, "process batch")
		return
	}
	respondJSON(w, http.StatusOK, mapper.ToMutationResultDTO(result))
}

// Adjust godoc
// @Summary Adjust batch quantity
// @Description Correct a batch quantity by a signed delta
// @Tags Batches
// @Accept json
// @Produce json
// @Param id path string true "Batch ID" format(uuid)
// @Param request body domain.AdjustMutation true "Adjustment data"
// @Success 200 {object} domain.MutationResultDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 422 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /batches/{id}/adjust [post]
func (h *BatchHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "batch")
	if !ok {
		return
	}
	var m domain.AdjustMutation
	if !decodeJSON(w, r, &m) {
		return
	}
	m.BatchID = id
	if !validStruct(w, &m) {
		return
	}

	result, err := h.mutationService.Adjust(r.Context(), &m)
	if err != nil {
		respondError(w, h.logger, err, "adjust batch")
		return
	}
	respondJSON(w, http.StatusOK, mapper.ToMutationResultDTO(result))
}

// Events godoc
// @Summary Batch traceability history
// @Description Ledger events of a batch in occurrence order
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID" format(uuid)
// @Success 200 {array} domain.TraceabilityEventDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /batches/{id}/events [get]
func (h *BatchHandler) Events(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "batch")
	if !ok {
		return
	}
	events, err := h.batchService.Events(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err, "list batch events")
		return
	}
	respondJSON(w, http.StatusOK, events)
}

// Lineage godoc
// @Summary Batch lineage
// @Description Parent and child lineage edges of a batch
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID" format(uuid)
// @Success 200 {object} domain.LineageDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /batches/{id}/lineage [get]
func (h *BatchHandler) Lineage(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "batch")
	if !ok {
		return
	}
	lineage, err := h.batchService.Lineage(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err, "get batch lineage")
		return
	}
	respondJSON(w, http.StatusOK, lineage)
}
