package service_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/notify"
	"github.com/straye-as/cultivation-api/internal/repository"
	"github.com/straye-as/cultivation-api/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileLoss(t *testing.T, s *services, qty string) uuid.UUID {
	t.Helper()
	batch := s.f.CreateBatch(t, s.db, "Flower", 1000, domain.UnitGrams)
	result, err := s.mutations.RegisterEvent(s.f.Context(domain.RoleCultivator), lossTheft(s.f, batch.ID, qty, domain.UnitGrams, domain.IncidentLoss))
	require.NoError(t, err)
	return result.Report.ID
}

func TestLossReport_UrgentFlagIsSticky(t *testing.T) {
	s := setupServices(t)
	ctx := s.f.Context(domain.RoleComplianceOfficer)
	id := fileLoss(t, s, "10")

	dto, err := s.reports.GetByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, dto.Urgent)

	dto, err = s.reports.Update(ctx, id, &domain.UpdateLossReportRequest{QuantityLost: decPtr("75")})
	require.NoError(t, err)
	assert.True(t, dto.Urgent, "raising the quantity above the threshold escalates the report")

	dto, err = s.reports.Update(ctx, id, &domain.UpdateLossReportRequest{
		QuantityLost:        decPtr("5"),
		InvestigationStatus: domain.InvestigationClosed,
	})
	require.NoError(t, err)
	assert.True(t, dto.Urgent, "the urgent flag never clears")
	assert.Equal(t, domain.InvestigationClosed, dto.InvestigationStatus)

	var stored domain.LossTheftReport
	require.NoError(t, s.db.First(&stored, "id = ?", id).Error)
	assert.True(t, stored.Urgent)
	assertDec(t, "5", stored.QuantityLost)
}

func TestLossReport_EscalationNotifies(t *testing.T) {
	s := setupServices(t)
	ctx := s.f.Context(domain.RoleComplianceOfficer)
	id := fileLoss(t, s, "5")
	require.Len(t, s.notifier.all(), 1)
	assert.Equal(t, domain.SeverityHigh, s.notifier.all()[0].Severity)

	note := "bag torn"
	dto, err := s.reports.Update(ctx, id, &domain.UpdateLossReportRequest{Description: &note})
	require.NoError(t, err)
	assert.False(t, dto.Urgent)
	assert.Len(t, s.notifier.all(), 1, "an update that does not escalate sends nothing")

	dto, err = s.reports.Update(ctx, id, &domain.UpdateLossReportRequest{IncidentType: domain.IncidentTheft})
	require.NoError(t, err)
	assert.True(t, dto.Urgent)

	sent := s.notifier.all()
	require.Len(t, sent, 2)
	last := sent[1]
	assert.Equal(t, notify.TypeLossTheft, last.Type)
	assert.Equal(t, domain.SeverityUrgent, last.Severity)
	assert.Equal(t, s.f.Tenant.ID, last.TenantID)
	assert.Contains(t, last.Title, "URGENT")
	require.NotNil(t, last.EntityID)
	assert.Equal(t, id, *last.EntityID)

	_, err = s.reports.Update(ctx, id, &domain.UpdateLossReportRequest{QuantityLost: decPtr("80")})
	require.NoError(t, err)
	assert.Len(t, s.notifier.all(), 2, "an already urgent report is not announced again")
}

func TestLossReport_EstimatedValueEscalates(t *testing.T) {
	s := setupServices(t)
	ctx := s.f.Context(domain.RoleComplianceOfficer)
	id := fileLoss(t, s, "1")

	dto, err := s.reports.Update(ctx, id, &domain.UpdateLossReportRequest{EstimatedValue: decPtr("1000")})
	require.NoError(t, err)
	assert.False(t, dto.Urgent, "the value threshold is exclusive")

	dto, err = s.reports.Update(ctx, id, &domain.UpdateLossReportRequest{EstimatedValue: decPtr("1000.01")})
	require.NoError(t, err)
	assert.True(t, dto.Urgent)
}

func TestLossReport_UpdateValidation(t *testing.T) {
	s := setupServices(t)
	ctx := s.f.Context(domain.RoleComplianceOfficer)
	id := fileLoss(t, s, "1")

	tests := []struct {
		name  string
		req   domain.UpdateLossReportRequest
		field string
	}{
		{"status", domain.UpdateLossReportRequest{InvestigationStatus: "pending"}, "investigationStatus"},
		{"incident", domain.UpdateLossReportRequest{IncidentType: "misplaced"}, "incidentType"},
		{"quantity", domain.UpdateLossReportRequest{QuantityLost: decPtr("0")}, "quantityLost"},
		{"value", domain.UpdateLossReportRequest{EstimatedValue: decPtr("-1")}, "estimatedValue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.reports.Update(ctx, id, &tt.req)
			assertValidation(t, err, tt.field)
		})
	}

	_, err := s.reports.Update(ctx, uuid.New(), &domain.UpdateLossReportRequest{})
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestLossReport_Submissions(t *testing.T) {
	s := setupServices(t)
	ctx := s.f.Context(domain.RoleComplianceOfficer)
	id := fileLoss(t, s, "60")

	dto, err := s.reports.RecordPoliceNotification(ctx, id, &domain.PoliceNotificationRequest{PoliceReportNumber: "RCMP-2024-118"})
	require.NoError(t, err)
	assert.True(t, dto.PoliceNotified)
	assert.Equal(t, "RCMP-2024-118", dto.PoliceReportNumber)
	assert.NotNil(t, dto.PoliceNotifiedAt)

	dto, err = s.reports.RecordHealthCanadaSubmission(ctx, id, &domain.HealthCanadaSubmissionRequest{Reference: "HC-99812"})
	require.NoError(t, err)
	assert.True(t, dto.HealthCanadaSubmitted)
	assert.Equal(t, "HC-99812", dto.HealthCanadaReference)

	_, err = s.reports.RecordHealthCanadaSubmission(ctx, id, &domain.HealthCanadaSubmissionRequest{Reference: "HC-99813"})
	assertInvariant(t, err)

	_, err = s.reports.RecordPoliceNotification(ctx, id, &domain.PoliceNotificationRequest{})
	assertValidation(t, err, "policeReportNumber")

	_, err = s.reports.RecordHealthCanadaSubmission(s.f.Context(domain.RoleViewer), id, &domain.HealthCanadaSubmissionRequest{Reference: "x"})
	assert.ErrorIs(t, err, service.ErrForbidden)
}

func TestLossReport_ListFilters(t *testing.T) {
	s := setupServices(t)
	ctx := s.f.Context(domain.RoleViewer)
	fileLoss(t, s, "1")
	fileLoss(t, s, "80")

	page, err := s.reports.List(ctx, repository.LossReportFilters{}, repository.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	page, err = s.reports.List(ctx, repository.LossReportFilters{UrgentOnly: true}, repository.Pagination{})
	require.NoError(t, err)
	require.Equal(t, int64(1), page.Total)
	reports := page.Data.([]domain.LossTheftReportDTO)
	assertDec(t, "80", reports[0].QuantityLost)
}
