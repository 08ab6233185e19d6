package mapper

import (
	"time"

	"github.com/straye-as/cultivation-api/internal/domain"
)

// TimeFormat is the ISO 8601 layout of every timestamp in API payloads
const TimeFormat = "2006-01-02T15:04:05Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

// ToTenantDTO converts Tenant to TenantDTO
func ToTenantDTO(tenant *domain.Tenant) domain.TenantDTO {
	return domain.TenantDTO{
		ID:                    tenant.ID,
		Name:                  tenant.Name,
		Slug:                  tenant.Slug,
		LicenseHolder:         tenant.LicenseHolder,
		Active:                tenant.Active,
		LossQuantityThreshold: tenant.LossQuantityThreshold,
		LossUnitsThreshold:    tenant.LossUnitsThreshold,
		LossValueThreshold:    tenant.LossValueThreshold,
		CreatedAt:             formatTime(tenant.CreatedAt),
	}
}

// ToFacilityDTO converts Facility to FacilityDTO
func ToFacilityDTO(facility *domain.Facility) domain.FacilityDTO {
	return domain.FacilityDTO{
		ID:            facility.ID,
		Name:          facility.Name,
		LicenseNumber: facility.LicenseNumber,
		Address:       facility.Address,
		CreatedAt:     formatTime(facility.CreatedAt),
		UpdatedAt:     formatTime(facility.UpdatedAt),
	}
}

// ToStageDTO converts Stage to StageDTO
func ToStageDTO(stage *domain.Stage) domain.StageDTO {
	return domain.StageDTO{
		ID:       stage.ID,
		Name:     stage.Name,
		Position: stage.Position,
	}
}

// ToCultivationAreaDTO converts CultivationArea to CultivationAreaDTO
func ToCultivationAreaDTO(area *domain.CultivationArea) domain.CultivationAreaDTO {
	dto := domain.CultivationAreaDTO{
		ID:         area.ID,
		FacilityID: area.FacilityID,
		StageID:    area.StageID,
		Name:       area.Name,
		Capacity:   area.Capacity,
		CreatedAt:  formatTime(area.CreatedAt),
		UpdatedAt:  formatTime(area.UpdatedAt),
	}
	if area.Stage != nil {
		dto.StageName = area.Stage.Name
	}
	return dto
}

// ToBatchDTO converts Batch to BatchDTO
func ToBatchDTO(batch *domain.Batch) domain.BatchDTO {
	return domain.BatchDTO{
		ID:                 batch.ID,
		Name:               batch.Name,
		FacilityID:         batch.FacilityID,
		CultivationAreaID:  batch.CultivationAreaID,
		CurrentQuantity:    batch.Quantity,
		Unit:               batch.Unit,
		EndType:            batch.EndType,
		Variety:            batch.Variety,
		ProductType:        batch.ProductType,
		OriginType:         batch.OriginType,
		OriginDetails:      batch.OriginDetails,
		Packaged:           batch.Packaged,
		SubLocation:        batch.SubLocation,
		RetentionExpiresAt: formatTimePtr(batch.RetentionExpiresAt),
		Archived:           batch.ArchivedAt != nil,
		CreatedAt:          formatTime(batch.CreatedAt),
		UpdatedAt:          formatTime(batch.UpdatedAt),
	}
}

// ToBatchLineageDTOs converts lineage edges
func ToBatchLineageDTOs(edges []domain.BatchLineage) []domain.BatchLineageDTO {
	out := make([]domain.BatchLineageDTO, len(edges))
	for i, e := range edges {
		out[i] = domain.BatchLineageDTO{
			ParentBatchID: e.ParentBatchID,
			ChildBatchID:  e.ChildBatchID,
			Relation:      e.Relation,
			Quantity:      e.Quantity,
			Unit:          e.Unit,
			EventID:       e.EventID,
			CreatedAt:     formatTime(e.CreatedAt),
		}
	}
	return out
}

// ToTraceabilityEventDTO converts TraceabilityEvent to TraceabilityEventDTO
func ToTraceabilityEventDTO(event *domain.TraceabilityEvent) domain.TraceabilityEventDTO {
	return domain.TraceabilityEventDTO{
		ID:             event.ID,
		BatchID:        event.BatchID,
		EventType:      event.EventType,
		FacilityID:     event.FacilityID,
		AreaID:         event.AreaID,
		UserID:         event.UserID,
		Quantity:       event.Quantity,
		Unit:           event.Unit,
		Description:    event.Description,
		Reason:         event.Reason,
		Method:         event.Method,
		FromLocation:   event.FromLocation,
		ToLocation:     event.ToLocation,
		NewBatchID:     event.NewBatchID,
		QuantityBefore: event.QuantityBefore,
		QuantityAfter:  event.QuantityAfter,
		OccurredAt:     formatTime(event.OccurredAt),
		CreatedAt:      formatTime(event.CreatedAt),
	}
}

// ToTraceabilityEventDTOs converts a slice of events
func ToTraceabilityEventDTOs(events []domain.TraceabilityEvent) []domain.TraceabilityEventDTO {
	out := make([]domain.TraceabilityEventDTO, len(events))
	for i := range events {
		out[i] = ToTraceabilityEventDTO(&events[i])
	}
	return out
}

// ToLossTheftReportDTO converts LossTheftReport to LossTheftReportDTO
func ToLossTheftReportDTO(report *domain.LossTheftReport) domain.LossTheftReportDTO {
	return domain.LossTheftReportDTO{
		ID:                      report.ID,
		ReportNumber:            report.ReportNumber,
		IncidentType:            report.IncidentType,
		Category:                report.Category,
		FacilityID:              report.FacilityID,
		BatchID:                 report.BatchID,
		EventID:                 report.EventID,
		QuantityLost:            report.QuantityLost,
		Unit:                    report.Unit,
		EstimatedValue:          report.EstimatedValue,
		IncidentDate:            formatTime(report.IncidentDate),
		DiscoveredDate:          formatTime(report.DiscoveredDate),
		InvestigationStatus:     report.InvestigationStatus,
		PoliceNotified:          report.PoliceNotified,
		PoliceReportNumber:      report.PoliceReportNumber,
		PoliceNotifiedAt:        formatTimePtr(report.PoliceNotifiedAt),
		HealthCanadaSubmitted:   report.HealthCanadaSubmitted,
		HealthCanadaReference:   report.HealthCanadaReference,
		HealthCanadaSubmittedAt: formatTimePtr(report.HealthCanadaSubmittedAt),
		Urgent:                  report.Urgent,
		Description:             report.Description,
		CreatedAt:               formatTime(report.CreatedAt),
	}
}

// ToPhysicalCountDTO converts PhysicalCount to PhysicalCountDTO
func ToPhysicalCountDTO(count *domain.PhysicalCount) domain.PhysicalCountDTO {
	return domain.PhysicalCountDTO{
		ID:               count.ID,
		BatchID:          count.BatchID,
		FacilityID:       count.FacilityID,
		CountDate:        formatTime(count.CountDate),
		ExpectedQuantity: count.ExpectedQuantity,
		CountedQuantity:  count.CountedQuantity,
		Variance:         count.Variance,
		Unit:             count.Unit,
		Status:           count.Status,
		Resolution:       count.Resolution,
		ResolutionNotes:  count.ResolutionNotes,
		ResolvedAt:       formatTimePtr(count.ResolvedAt),
		CreatedAt:        formatTime(count.CreatedAt),
	}
}

// ToRetentionPolicyDTO converts RetentionPolicy to RetentionPolicyDTO
func ToRetentionPolicyDTO(policy *domain.RetentionPolicy) domain.RetentionPolicyDTO {
	return domain.RetentionPolicyDTO{
		ID:              policy.ID,
		RecordType:      policy.RecordType,
		RetentionMonths: policy.RetentionMonths,
		Active:          policy.Active,
		UpdatedAt:       formatTime(policy.UpdatedAt),
	}
}

// ToNotificationDTO converts Notification to NotificationDTO
func ToNotificationDTO(notification *domain.Notification) domain.NotificationDTO {
	return domain.NotificationDTO{
		ID:         notification.ID,
		Type:       notification.Type,
		Severity:   notification.Severity,
		Title:      notification.Title,
		Message:    notification.Message,
		Read:       notification.Read,
		CreatedAt:  formatTime(notification.CreatedAt),
		EntityID:   notification.EntityID,
		EntityType: notification.EntityType,
	}
}

// ToMutationResultDTO converts the outcome of a batch mutation
func ToMutationResultDTO(result *domain.MutationResult) domain.MutationResultDTO {
	dto := domain.MutationResultDTO{
		Event: ToTraceabilityEventDTO(result.Event),
	}
	if result.Batch != nil {
		b := ToBatchDTO(result.Batch)
		dto.Batch = &b
	}
	if result.NewBatch != nil {
		b := ToBatchDTO(result.NewBatch)
		dto.NewBatch = &b
	}
	if result.Report != nil {
		r := ToLossTheftReportDTO(result.Report)
		dto.Report = &r
	}
	return dto
}
