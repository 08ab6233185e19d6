package handler

import (
	"net/http"

	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/repository"
	"github.com/straye-as/cultivation-api/internal/service"
	"go.uber.org/zap"
)

// LossReportHandler handles HTTP requests for loss/theft reports
type LossReportHandler struct {
	reportService *service.LossReportService
	logger        *zap.Logger
}

// NewLossReportHandler creates a new LossReportHandler instance
func NewLossReportHandler(reportService *service.LossReportService, logger *zap.Logger) *LossReportHandler {
	return &LossReportHandler{
		reportService: reportService,
		logger:        logger,
	}
}

// List godoc
// @Summary List loss/theft reports
// @Tags Loss Reports
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page (max 200)" default(20)
// @Param facilityId query string false "Filter by facility" format(uuid)
// @Param investigationStatus query string false "Filter by investigation status"
// @Param urgentOnly query bool false "Only reports requiring Health Canada reporting" default(false)
// @Success 200 {object} domain.PaginatedResponse{data=[]domain.LossTheftReportDTO}
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /loss-reports [get]
func (h *LossReportHandler) List(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := parseOptionalUUID(w, r, "facilityId")
	if !ok {
		return
	}
	status := domain.InvestigationStatus(r.URL.Query().Get("investigationStatus"))
	if status != "" && !status.IsValid() {
		respondWithError(w, http.StatusBadRequest, "Invalid investigationStatus")
		return
	}

	result, err := h.reportService.List(r.Context(), repository.LossReportFilters{
		FacilityID:          facilityID,
		InvestigationStatus: status,
		UrgentOnly:          parseBool(r, "urgentOnly"),
	}, parsePagination(r))
	if err != nil {
		respondError(w, h.logger, err, "list loss reports")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// GetByID godoc
// @Summary Get loss/theft report
// @Tags Loss Reports
// @Produce json
// @Param id path string true "Report ID" format(uuid)
// @Success 200 {object} domain.LossTheftReportDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /loss-reports/{id} [get]
func (h *LossReportHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "report")
	if !ok {
		return
	}
	report, err := h.reportService.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err, "get loss report")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Update godoc
// @Summary Update loss/theft report
// @Description Update investigation details. A report that once required Health Canada reporting keeps that flag.
// @Tags Loss Reports
// @Accept json
// @Produce json
// @Param id path string true "Report ID" format(uuid)
// @Param request body domain.UpdateLossReportRequest true "Report changes"
// @Success 200 {object} domain.LossTheftReportDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /loss-reports/{id} [put]
func (h *LossReportHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "report")
	if !ok {
		return
	}
	var req domain.UpdateLossReportRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	report, err := h.reportService.Update(r.Context(), id, &req)
	if err != nil {
		respondError(w, h.logger, err, "update loss report")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// RecordPoliceNotification godoc
// @Summary Record police notification
// @Tags Loss Reports
// @Accept json
// @Produce json
// @Param id path string true "Report ID" format(uuid)
// @Param request body domain.PoliceNotificationRequest true "Police report"
// @Success 200 {object} domain.LossTheftReportDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /loss-reports/{id}/police-notification [post]
func (h *LossReportHandler) RecordPoliceNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "report")
	if !ok {
		return
	}
	var req domain.PoliceNotificationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	report, err := h.reportService.RecordPoliceNotification(r.Context(), id, &req)
	if err != nil {
		respondError(w, h.logger, err, "record police notification")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// RecordHealthCanadaSubmission godoc
// @Summary Record Health Canada submission
// @Tags Loss Reports
// @Accept json
// @Produce json
// @Param id path string true "Report ID" format(uuid)
// @Param request body domain.HealthCanadaSubmissionRequest true "Submission"
// @Success 200 {object} domain.LossTheftReportDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /loss-reports/{id}/health-canada-submission [post]
func (h *LossReportHandler) RecordHealthCanadaSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "report")
	if !ok {
		return
	}
	var req domain.HealthCanadaSubmissionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	report, err := h.reportService.RecordHealthCanadaSubmission(r.Context(), id, &req)
	if err != nil {
		respondError(w, h.logger, err, "record Health Canada submission")
		return
	}
	respondJSON(w, http.StatusOK, report)
}
