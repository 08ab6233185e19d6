package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/mapper"
	"github.com/straye-as/cultivation-api/internal/repository"
	"github.com/straye-as/cultivation-api/internal/service"
	"go.uber.org/zap"
)

// EventHandler serves the traceability ledger
type EventHandler struct {
	eventService    *service.EventService
	mutationService *service.MutationService
	logger          *zap.Logger
}

// NewEventHandler creates a new EventHandler instance
func NewEventHandler(eventService *service.EventService, mutationService *service.MutationService, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		eventService:    eventService,
		mutationService: mutationService,
		logger:          logger,
	}
}

// List godoc
// @Summary List traceability events
// @Tags Traceability
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page (max 200)" default(20)
// @Param batchId query string false "Filter by batch" format(uuid)
// @Param facilityId query string false "Filter by facility" format(uuid)
// @Param eventType query string false "Filter by event type"
// @Param from query string false "Occurred at or after (YYYY-MM-DD or RFC 3339)"
// @Param to query string false "Occurred at or before (YYYY-MM-DD or RFC 3339)"
// @Param includeArchived query bool false "Include archived events" default(false)
// @Success 200 {object} domain.PaginatedResponse{data=[]domain.TraceabilityEventDTO}
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /traceability-events [get]
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	batchID, ok := parseOptionalUUID(w, r, "batchId")
	if !ok {
		return
	}
	facilityID, ok := parseOptionalUUID(w, r, "facilityId")
	if !ok {
		return
	}
	eventType := domain.EventType(r.URL.Query().Get("eventType"))
	if eventType != "" && !eventType.IsValid() {
		respondWithError(w, http.StatusBadRequest, "Invalid eventType")
		return
	}
	from, ok := parseTimeParam(w, r, "from", false)
	if !ok {
		return
	}
	to, ok := parseTimeParam(w, r, "to", true)
	if !ok {
		return
	}

	result, err := h.eventService.List(r.Context(), repository.EventFilters{
		BatchID:         batchID,
		FacilityID:      facilityID,
		EventType:       eventType,
		From:            from,
		To:              to,
		IncludeArchived: parseBool(r, "includeArchived"),
	}, parsePagination(r))
	if err != nil {
		respondError(w, h.logger, err, "list traceability events")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Register godoc
// @Summary Register traceability event
// @Description Record a movement, cultivation, harvest, processing, sampling, destruction or loss_theft event together with its batch effect
// @Tags Traceability
// @Accept json
// @Produce json
// @Param request body domain.RegisterEventRequest true "Event data"
// @Success 201 {object} domain.MutationResultDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 422 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /traceability-events [post]
func (h *EventHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterEventRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.mutationService.RegisterEvent(r.Context(), &req)
	if err != nil {
		respondError(w, h.logger, err, "register traceability event")
		return
	}
	respondJSON(w, http.StatusCreated, mapper.ToMutationResultDTO(result))
}

// GetByID godoc
// @Summary Get traceability event
// @Tags Traceability
// @Produce json
// @Param id path string true "Event ID" format(uuid)
// @Success 200 {object} domain.TraceabilityEventDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /traceability-events/{id} [get]
func (h *EventHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "event")
	if !ok {
		return
	}
	event, err := h.eventService.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err, "get traceability event")
		return
	}
	respondJSON(w, http.StatusOK, event)
}

// parseTimeParam accepts a calendar date or an RFC 3339 timestamp. A calendar
// date used as an upper bound covers the whole day.
func parseTimeParam(w http.ResponseWriter, r *http.Request, name string, endOfDay bool) (*time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, true
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid "+name+": expected YYYY-MM-DD or RFC 3339")
		return nil, false
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, true
}
