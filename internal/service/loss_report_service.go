package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/auth"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/mapper"
	"github.com/straye-as/cultivation-api/internal/notify"
	"github.com/straye-as/cultivation-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LossReportService manages loss/theft reports after they are filed by a
// loss_theft event
type LossReportService struct {
	tx         *TxRunner
	reportRepo *repository.LossTheftReportRepository
	authz      auth.Authorizer
	notifier   notify.Notifier
	thresholds domain.ReportingThresholds
	logger     *zap.Logger
	now        func() time.Time
}

// NewLossReportService creates a new LossReportService
func NewLossReportService(db *gorm.DB, authz auth.Authorizer, notifier notify.Notifier, thresholds domain.ReportingThresholds, logger *zap.Logger) *LossReportService {
	return &LossReportService{
		tx:         NewTxRunner(db),
		reportRepo: repository.NewLossTheftReportRepository(db),
		authz:      authz,
		notifier:   notifier,
		thresholds: thresholds,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// GetByID returns one report
func (s *LossReportService) GetByID(ctx context.Context, id uuid.UUID) (*domain.LossTheftReportDTO, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionLossReportsRead); err != nil {
		return nil, err
	}
	report, err := s.reportRepo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "loss/theft report")
	}
	dto := mapper.ToLossTheftReportDTO(report)
	return &dto, nil
}

// List returns a page of reports, newest incident first
func (s *LossReportService) List(ctx context.Context, filters repository.LossReportFilters, page repository.Pagination) (*domain.PaginatedResponse, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionLossReportsRead); err != nil {
		return nil, err
	}
	page = page.Normalize()
	reports, total, err := s.reportRepo.List(ctx, filters, page)
	if err != nil {
		return nil, fmt.Errorf("failed to list loss/theft reports: %w", err)
	}
	dtos := make([]domain.LossTheftReportDTO, len(reports))
	for i := range reports {
		dtos[i] = mapper.ToLossTheftReportDTO(&reports[i])
	}
	return domain.NewPaginatedResponse(dtos, total, page.Page, page.PageSize), nil
}

// Update edits the investigation fields of a report. The urgent flag is
// re-evaluated and can only be raised.
func (s *LossReportService) Update(ctx context.Context, id uuid.UUID, req *domain.UpdateLossReportRequest) (*domain.LossTheftReportDTO, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionLossReportsWrite); err != nil {
		return nil, err
	}
	ve := &ValidationError{}
	if req.InvestigationStatus != "" && !req.InvestigationStatus.IsValid() {
		ve.Add("investigationStatus", "Must be one of: open investigating closed")
	}
	if req.IncidentType != "" && !req.IncidentType.IsValid() {
		ve.Add("incidentType", "Must be one of: loss theft")
	}
	if req.Category != "" && !req.Category.IsValid() {
		ve.Add("category", "Unknown loss category")
	}
	if req.QuantityLost != nil && !req.QuantityLost.IsPositive() {
		ve.Add("quantityLost", "Must be greater than 0")
	}
	if req.EstimatedValue != nil && req.EstimatedValue.IsNegative() {
		ve.Add("estimatedValue", "Must be greater than or equal to 0")
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	return s.modify(ctx, id, func(report *domain.LossTheftReport) error {
		if req.InvestigationStatus != "" {
			report.InvestigationStatus = req.InvestigationStatus
		}
		if req.IncidentType != "" {
			report.IncidentType = req.IncidentType
		}
		if req.Category != "" {
			report.Category = req.Category
		}
		if req.QuantityLost != nil {
			report.QuantityLost = *req.QuantityLost
		}
		if req.EstimatedValue != nil {
			report.EstimatedValue = *req.EstimatedValue
		}
		if req.Description != nil {
			report.Description = *req.Description
		}
		return nil
	})
}

// RecordPoliceNotification stores the police report reference
func (s *LossReportService) RecordPoliceNotification(ctx context.Context, id uuid.UUID, req *domain.PoliceNotificationRequest) (*domain.LossTheftReportDTO, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionLossReportsWrite); err != nil {
		return nil, err
	}
	ve := &ValidationError{}
	validateStruct(req, ve)
	if err := ve.OrNil(); err != nil {
		return nil, err
	}
	return s.modify(ctx, id, func(report *domain.LossTheftReport) error {
		at := s.now()
		if req.NotifiedAt != nil {
			at = req.NotifiedAt.UTC()
		}
		report.PoliceNotified = true
		report.PoliceReportNumber = req.PoliceReportNumber
		report.PoliceNotifiedAt = &at
		return nil
	})
}

// RecordHealthCanadaSubmission stores the Health Canada submission reference
func (s *LossReportService) RecordHealthCanadaSubmission(ctx context.Context, id uuid.UUID, req *domain.HealthCanadaSubmissionRequest) (*domain.LossTheftReportDTO, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionLossReportsWrite); err != nil {
		return nil, err
	}
	ve := &ValidationError{}
	validateStruct(req, ve)
	if err := ve.OrNil(); err != nil {
		return nil, err
	}
	return s.modify(ctx, id, func(report *domain.LossTheftReport) error {
		if report.HealthCanadaSubmitted {
			return invariantf("report %s was already submitted to Health Canada", report.ReportNumber)
		}
		at := s.now()
		if req.SubmittedAt != nil {
			at = req.SubmittedAt.UTC()
		}
		report.HealthCanadaSubmitted = true
		report.HealthCanadaReference = req.Reference
		report.HealthCanadaSubmittedAt = &at
		return nil
	})
}

// modify locks a report, applies change and re-escalates it. A report that
// becomes urgent sends a fresh loss/theft notification after commit.
func (s *LossReportService) modify(ctx context.Context, id uuid.UUID, change func(*domain.LossTheftReport) error) (*domain.LossTheftReportDTO, error) {
	tenantID, _ := auth.RequireTenant(ctx)
	var (
		report    *domain.LossTheftReport
		th        domain.ReportingThresholds
		escalated bool
	)

	err := s.tx.run(ctx, func(r *ledgerRepos) error {
		rep, err := r.reports.GetForUpdate(ctx, id)
		if err != nil {
			return notFound(err, "loss/theft report")
		}
		tenant, err := r.tenants.GetByID(ctx, tenantID)
		if err != nil {
			return notFound(err, "tenant")
		}
		wasUrgent := rep.Urgent
		if err := change(rep); err != nil {
			return err
		}
		th = tenant.ReportingThresholds(s.thresholds)
		escalated = rep.Escalate(th) && !wasUrgent
		report = rep
		return r.reports.Save(ctx, rep)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("loss/theft report updated",
		zap.String("tenantID", tenantID.String()),
		zap.String("reportNumber", report.ReportNumber),
		zap.Bool("urgent", report.Urgent))

	if escalated {
		s.notifier.Notify(ctx, lossTheftNotification(report, th))
	}

	dto := mapper.ToLossTheftReportDTO(report)
	return &dto, nil
}
