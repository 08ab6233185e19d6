package handler

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/export"
	"github.com/straye-as/cultivation-api/internal/service"
	"go.uber.org/zap"
)

// ComplianceHandler serves alerts, retention and the Health Canada export
type ComplianceHandler struct {
	detectionService *service.DetectionService
	archivalService  *service.ArchivalService
	exportService    *service.ExportService
	logger           *zap.Logger
}

// NewComplianceHandler creates a new ComplianceHandler instance
func NewComplianceHandler(
	detectionService *service.DetectionService,
	archivalService *service.ArchivalService,
	exportService *service.ExportService,
	logger *zap.Logger,
) *ComplianceHandler {
	return &ComplianceHandler{
		detectionService: detectionService,
		archivalService:  archivalService,
		exportService:    exportService,
		logger:           logger,
	}
}

// VarianceAlerts godoc
// @Summary Variance alerts
// @Description Unresolved physical counts whose discrepancy is high or that have been pending too long
// @Tags Alerts
// @Produce json
// @Success 200 {array} domain.VarianceAlert
// @Failure 403 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /alerts/variance [get]
func (h *ComplianceHandler) VarianceAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.detectionService.VarianceAlerts(r.Context())
	if err != nil {
		respondError(w, h.logger, err, "compute variance alerts")
		return
	}
	respondJSON(w, http.StatusOK, alerts)
}

// TheftPatterns godoc
// @Summary Theft pattern leads
// @Description Repeated loss_theft events per facility or hour of day inside the detection window
// @Tags Alerts
// @Produce json
// @Success 200 {array} domain.TheftPattern
// @Failure 403 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /alerts/theft-patterns [get]
func (h *ComplianceHandler) TheftPatterns(w http.ResponseWriter, r *http.Request) {
	patterns, err := h.detectionService.TheftPatterns(r.Context())
	if err != nil {
		respondError(w, h.logger, err, "detect theft patterns")
		return
	}
	respondJSON(w, http.StatusOK, patterns)
}

// ListRetentionPolicies godoc
// @Summary List retention policies
// @Tags Retention
// @Produce json
// @Success 200 {array} domain.RetentionPolicyDTO
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /retention-policies [get]
func (h *ComplianceHandler) ListRetentionPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.archivalService.ListPolicies(r.Context())
	if err != nil {
		respondError(w, h.logger, err, "list retention policies")
		return
	}
	respondJSON(w, http.StatusOK, policies)
}

// UpsertRetentionPolicy godoc
// @Summary Set retention policy
// @Tags Retention
// @Accept json
// @Produce json
// @Param recordType path string true "Record type" Enums(traceability_event, batch, physical_count)
// @Param request body domain.UpsertRetentionPolicyRequest true "Policy"
// @Success 200 {object} domain.RetentionPolicyDTO
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /retention-policies/{recordType} [put]
func (h *ComplianceHandler) UpsertRetentionPolicy(w http.ResponseWriter, r *http.Request) {
	recordType := domain.RecordType(chi.URLParam(r, "recordType"))
	if !recordType.IsValid() {
		respondWithError(w, http.StatusBadRequest, "Invalid record type")
		return
	}
	var req domain.UpsertRetentionPolicyRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	policy, err := h.archivalService.UpsertPolicy(r.Context(), recordType, &req)
	if err != nil {
		respondError(w, h.logger, err, "save retention policy")
		return
	}
	respondJSON(w, http.StatusOK, policy)
}

// RunArchival godoc
// @Summary Run retention archival
// @Description Archive records past their retention period. A dry run reports the same selection without writing.
// @Tags Retention
// @Produce json
// @Param dryRun query bool false "Report without archiving" default(true)
// @Success 200 {object} domain.ArchivalReport
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /archival/run [post]
func (h *ComplianceHandler) RunArchival(w http.ResponseWriter, r *http.Request) {
	dryRun := true
	if raw := r.URL.Query().Get("dryRun"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid dryRun: must be true or false")
			return
		}
		dryRun = v
	}
	report, err := h.archivalService.Run(r.Context(), dryRun)
	if err != nil {
		respondError(w, h.logger, err, "run archival")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// ExportHealthCanada godoc
// @Summary Health Canada export
// @Description Download the tenant's compliance records for a period. json and xlsx carry the full bundle, csv lists batches, xml carries the summary.
// @Tags Exports
// @Produce json
// @Produce text/csv
// @Produce application/xml
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param format query string false "Output format" Enums(json, csv, xml, xlsx) default(json)
// @Param startDate query string false "Period start (YYYY-MM-DD)"
// @Param endDate query string false "Period end (YYYY-MM-DD, inclusive)"
// @Success 200 {file} file
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /exports/health-canada [get]
func (h *ComplianceHandler) ExportHealthCanada(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	period, err := export.ParseDateRange(q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.exportService.Render(r.Context(), format, period)
	if err != nil {
		respondError(w, h.logger, err, "export compliance records")
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+result.FileName+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := bytes.NewReader(result.Data).WriteTo(w); err != nil {
		h.logger.Warn("export download interrupted", zap.String("file", result.FileName), zap.Error(err))
	}
}
