package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DTOs use camelCase JSON; persistence columns are snake_case.
// Quantities are decimals serialized as JSON strings.

type TenantDTO struct {
	ID                    uuid.UUID        `json:"id"`
	Name                  string           `json:"name"`
	Slug                  string           `json:"slug"`
	LicenseHolder         string           `json:"licenseHolder,omitempty"`
	Active                bool             `json:"active"`
	LossQuantityThreshold *decimal.Decimal `json:"lossQuantityThreshold,omitempty"`
	LossUnitsThreshold    *decimal.Decimal `json:"lossUnitsThreshold,omitempty"`
	LossValueThreshold    *decimal.Decimal `json:"lossValueThreshold,omitempty"`
	CreatedAt             string           `json:"createdAt"`
}

type FacilityDTO struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	LicenseNumber string    `json:"licenseNumber"`
	Address       string    `json:"address,omitempty"`
	CreatedAt     string    `json:"createdAt"`
	UpdatedAt     string    `json:"updatedAt"`
}

type StageDTO struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Position int       `json:"position"`
}

type CultivationAreaDTO struct {
	ID         uuid.UUID  `json:"id"`
	FacilityID uuid.UUID  `json:"facilityId"`
	StageID    *uuid.UUID `json:"stageId,omitempty"`
	StageName  string     `json:"stageName,omitempty"`
	Name       string     `json:"name"`
	Capacity   int        `json:"capacity"`
	CreatedAt  string     `json:"createdAt"`
	UpdatedAt  string     `json:"updatedAt"`
}

type BatchDTO struct {
	ID                 uuid.UUID       `json:"id"`
	Name               string          `json:"name"`
	FacilityID         uuid.UUID       `json:"facilityId"`
	CultivationAreaID  uuid.UUID       `json:"cultivationAreaId"`
	CurrentQuantity    decimal.Decimal `json:"currentQuantity"`
	Unit               Unit            `json:"unit"`
	EndType            EndType         `json:"endType"`
	Variety            string          `json:"variety,omitempty"`
	ProductType        ProductType     `json:"productType"`
	OriginType         OriginType      `json:"originType"`
	OriginDetails      string          `json:"originDetails,omitempty"`
	Packaged           bool            `json:"packaged"`
	SubLocation        string          `json:"subLocation,omitempty"`
	RetentionExpiresAt *string         `json:"retentionExpiresAt,omitempty"`
	Archived           bool            `json:"archived"`
	CreatedAt          string          `json:"createdAt"`
	UpdatedAt          string          `json:"updatedAt"`
}

type BatchLineageDTO struct {
	ParentBatchID uuid.UUID       `json:"parentBatchId"`
	ChildBatchID  uuid.UUID       `json:"childBatchId"`
	Relation      LineageRelation `json:"relation"`
	Quantity      decimal.Decimal `json:"quantity"`
	Unit          Unit            `json:"unit"`
	EventID       uuid.UUID       `json:"eventId"`
	CreatedAt     string          `json:"createdAt"`
}

// LineageDTO lists the direct parents and children of a batch
type LineageDTO struct {
	BatchID  uuid.UUID         `json:"batchId"`
	Parents  []BatchLineageDTO `json:"parents"`
	Children []BatchLineageDTO `json:"children"`
}

type TraceabilityEventDTO struct {
	ID             uuid.UUID        `json:"id"`
	BatchID        *uuid.UUID       `json:"batchId,omitempty"`
	EventType      EventType        `json:"eventType"`
	FacilityID     uuid.UUID        `json:"facilityId"`
	AreaID         uuid.UUID        `json:"areaId"`
	UserID         uuid.UUID        `json:"userId"`
	Quantity       *decimal.Decimal `json:"quantity,omitempty"`
	Unit           Unit             `json:"unit,omitempty"`
	Description    string           `json:"description,omitempty"`
	Reason         string           `json:"reason,omitempty"`
	Method         string           `json:"method,omitempty"`
	FromLocation   string           `json:"fromLocation,omitempty"`
	ToLocation     string           `json:"toLocation,omitempty"`
	NewBatchID     *uuid.UUID       `json:"newBatchId,omitempty"`
	QuantityBefore *decimal.Decimal `json:"quantityBefore,omitempty"`
	QuantityAfter  *decimal.Decimal `json:"quantityAfter,omitempty"`
	OccurredAt     string           `json:"occurredAt"`
	CreatedAt      string           `json:"createdAt"`
}

type LossTheftReportDTO struct {
	ID                      uuid.UUID           `json:"id"`
	ReportNumber            string              `json:"reportNumber"`
	IncidentType            IncidentType        `json:"incidentType"`
	Category                LossCategory        `json:"category"`
	FacilityID              uuid.UUID           `json:"facilityId"`
	BatchID                 *uuid.UUID          `json:"batchId,omitempty"`
	EventID                 *uuid.UUID          `json:"eventId,omitempty"`
	QuantityLost            decimal.Decimal     `json:"quantityLost"`
	Unit                    Unit                `json:"unit"`
	EstimatedValue          decimal.Decimal     `json:"estimatedValue"`
	IncidentDate            string              `json:"incidentDate"`
	DiscoveredDate          string              `json:"discoveredDate"`
	InvestigationStatus     InvestigationStatus `json:"investigationStatus"`
	PoliceNotified          bool                `json:"policeNotified"`
	PoliceReportNumber      string              `json:"policeReportNumber,omitempty"`
	PoliceNotifiedAt        *string             `json:"policeNotifiedAt,omitempty"`
	HealthCanadaSubmitted   bool                `json:"healthCanadaSubmitted"`
	HealthCanadaReference   string              `json:"healthCanadaReference,omitempty"`
	HealthCanadaSubmittedAt *string             `json:"healthCanadaSubmittedAt,omitempty"`
	Urgent                  bool                `json:"urgent"`
	Description             string              `json:"description,omitempty"`
	CreatedAt               string              `json:"createdAt"`
}

type PhysicalCountDTO struct {
	ID               uuid.UUID       `json:"id"`
	BatchID          uuid.UUID       `json:"batchId"`
	FacilityID       uuid.UUID       `json:"facilityId"`
	CountDate        string          `json:"countDate"`
	ExpectedQuantity decimal.Decimal `json:"expectedQuantity"`
	CountedQuantity  decimal.Decimal `json:"countedQuantity"`
	Variance         decimal.Decimal `json:"variance"`
	Unit             Unit            `json:"unit"`
	Status           CountStatus     `json:"status"`
	Resolution       CountResolution `json:"resolution,omitempty"`
	ResolutionNotes  string          `json:"resolutionNotes,omitempty"`
	ResolvedAt       *string         `json:"resolvedAt,omitempty"`
	CreatedAt        string          `json:"createdAt"`
}

type RetentionPolicyDTO struct {
	ID              uuid.UUID  `json:"id"`
	RecordType      RecordType `json:"recordType"`
	RetentionMonths int        `json:"retentionMonths"`
	Active          bool       `json:"active"`
	UpdatedAt       string     `json:"updatedAt"`
}

type NotificationDTO struct {
	ID         uuid.UUID  `json:"id"`
	Type       string     `json:"type"`
	Severity   Severity   `json:"severity"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	Read       bool       `json:"read"`
	CreatedAt  string     `json:"createdAt"`
	EntityID   *uuid.UUID `json:"entityId,omitempty"`
	EntityType string     `json:"entityType,omitempty"`
}

// MutationResultDTO is returned by split, process, adjust and event registration
type MutationResultDTO struct {
	Batch    *BatchDTO            `json:"batch,omitempty"`
	NewBatch *BatchDTO            `json:"newBatch,omitempty"`
	Event    TraceabilityEventDTO `json:"event"`
	Report   *LossTheftReportDTO  `json:"lossTheftReport,omitempty"`
}

// VarianceAlert is an unresolved physical count discrepancy
type VarianceAlert struct {
	CountID          uuid.UUID       `json:"countId"`
	BatchID          uuid.UUID       `json:"batchId"`
	BatchName        string          `json:"batchName"`
	FacilityID       uuid.UUID       `json:"facilityId"`
	ExpectedQuantity decimal.Decimal `json:"expectedQuantity"`
	CountedQuantity  decimal.Decimal `json:"countedQuantity"`
	Discrepancy      decimal.Decimal `json:"discrepancy"`
	Unit             Unit            `json:"unit"`
	DaysPending      int             `json:"daysPending"`
	Severity         Severity        `json:"severity"`
}

// TheftPattern is an investigation lead derived from loss_theft events
type TheftPattern struct {
	Type        PatternType `json:"type"`
	FacilityID  *uuid.UUID  `json:"facilityId,omitempty"`
	Hour        *int        `json:"hour,omitempty"`
	Incidents   int         `json:"incidents"`
	WindowDays  int         `json:"windowDays"`
	EventIDs    []uuid.UUID `json:"eventIds"`
	Description string      `json:"description"`
}

// ArchivalTypeReport is the archival outcome for one record type
type ArchivalTypeReport struct {
	RecordType      RecordType  `json:"recordType"`
	RetentionMonths int         `json:"retentionMonths"`
	Cutoff          time.Time   `json:"cutoff"`
	CandidateIDs    []uuid.UUID `json:"candidateIds"`
	Archived        int         `json:"archived"`
}

// ArchivalReport is the archival outcome for one tenant
type ArchivalReport struct {
	TenantID uuid.UUID            `json:"tenantId"`
	DryRun   bool                 `json:"dryRun"`
	RanAt    time.Time            `json:"ranAt"`
	Types    []ArchivalTypeReport `json:"types"`
}

// Candidates returns the total number of selected records
func (r *ArchivalReport) Candidates() int {
	n := 0
	for _, t := range r.Types {
		n += len(t.CandidateIDs)
	}
	return n
}

// Request DTOs

type CreateTenantRequest struct {
	Name          string `json:"name" validate:"required,max=200"`
	Slug          string `json:"slug" validate:"required,max=100"`
	LicenseHolder string `json:"licenseHolder,omitempty" validate:"max=200"`
}

type UpdateThresholdsRequest struct {
	LossQuantityThreshold *decimal.Decimal `json:"lossQuantityThreshold,omitempty"`
	LossUnitsThreshold    *decimal.Decimal `json:"lossUnitsThreshold,omitempty"`
	LossValueThreshold    *decimal.Decimal `json:"lossValueThreshold,omitempty"`
}

type CreateFacilityRequest struct {
	Name          string `json:"name" validate:"required,max=200"`
	LicenseNumber string `json:"licenseNumber" validate:"required,max=100"`
	Address       string `json:"address,omitempty" validate:"max=500"`
}

type UpdateFacilityRequest = CreateFacilityRequest

type CreateStageRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Position *int   `json:"position,omitempty" validate:"omitempty,gte=0"`
}

type UpdateStageRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type ReorderStagesRequest struct {
	StageIDs []uuid.UUID `json:"stageIds" validate:"required,min=1"`
}

type CreateCultivationAreaRequest struct {
	FacilityID uuid.UUID  `json:"facilityId" validate:"required"`
	StageID    *uuid.UUID `json:"stageId,omitempty"`
	Name       string     `json:"name" validate:"required,max=200"`
	Capacity   int        `json:"capacity,omitempty" validate:"gte=0"`
}

type UpdateCultivationAreaRequest struct {
	StageID  *uuid.UUID `json:"stageId,omitempty"`
	Name     string     `json:"name" validate:"required,max=200"`
	Capacity int        `json:"capacity,omitempty" validate:"gte=0"`
}

type CreateBatchRequest struct {
	Name              string           `json:"name" validate:"required,max=200"`
	CultivationAreaID uuid.UUID        `json:"cultivationAreaId" validate:"required"`
	Quantity          *decimal.Decimal `json:"quantity"`
	Unit              Unit             `json:"unit" validate:"required"`
	EndType           EndType          `json:"endType" validate:"required"`
	Variety           string           `json:"variety,omitempty" validate:"max=200"`
	ProductType       ProductType      `json:"productType" validate:"required"`
	OriginType        OriginType       `json:"originType" validate:"required"`
	OriginDetails     string           `json:"originDetails,omitempty"`
	Packaged          bool             `json:"packaged"`
	SubLocation       string           `json:"subLocation,omitempty" validate:"max=200"`
}

// UpdateBatchRequest changes descriptive fields only. Quantity changes go
// through split, process, adjust or event registration.
type UpdateBatchRequest struct {
	Name        string  `json:"name" validate:"required,max=200"`
	Variety     string  `json:"variety,omitempty" validate:"max=200"`
	Packaged    bool    `json:"packaged"`
	SubLocation string  `json:"subLocation,omitempty" validate:"max=200"`
	EndType     EndType `json:"endType,omitempty"`
}

// RegisterEventRequest is the general traceability event payload. The
// processing fields apply only to event type processing.
type RegisterEventRequest struct {
	EventOnlyMutation
	ProcessedQuantity *decimal.Decimal `json:"processedQuantity,omitempty"`
	NewProductType    ProductType      `json:"newProductType,omitempty"`
}

type CreatePhysicalCountRequest struct {
	BatchID          uuid.UUID        `json:"batchId" validate:"required"`
	CountedQuantity  *decimal.Decimal `json:"countedQuantity"`
	ExpectedQuantity *decimal.Decimal `json:"expectedQuantity,omitempty"`
	Unit             Unit             `json:"unit,omitempty"`
	CountDate        *time.Time       `json:"countDate,omitempty"`
}

type ResolvePhysicalCountRequest struct {
	Resolution CountResolution `json:"resolution" validate:"required"`
	Notes      string          `json:"notes,omitempty"`
	// Used by report_loss resolutions
	IncidentType   IncidentType     `json:"incidentType,omitempty"`
	EstimatedValue *decimal.Decimal `json:"estimatedValue,omitempty"`
}

type UpdateLossReportRequest struct {
	InvestigationStatus InvestigationStatus `json:"investigationStatus,omitempty"`
	IncidentType        IncidentType        `json:"incidentType,omitempty"`
	Category            LossCategory        `json:"category,omitempty"`
	QuantityLost        *decimal.Decimal    `json:"quantityLost,omitempty"`
	EstimatedValue      *decimal.Decimal    `json:"estimatedValue,omitempty"`
	Description         *string             `json:"description,omitempty"`
}

type PoliceNotificationRequest struct {
	PoliceReportNumber string     `json:"policeReportNumber" validate:"required,max=100"`
	NotifiedAt         *time.Time `json:"notifiedAt,omitempty"`
}

type HealthCanadaSubmissionRequest struct {
	Reference   string     `json:"reference" validate:"required,max=100"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
}

type UpsertRetentionPolicyRequest struct {
	RetentionMonths int   `json:"retentionMonths" validate:"required,gt=0"`
	Active          *bool `json:"active,omitempty"`
}

type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
	TotalPages int         `json:"totalPages"`
}

// NewPaginatedResponse builds a page envelope
func NewPaginatedResponse(data interface{}, total int64, page, pageSize int) *PaginatedResponse {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return &PaginatedResponse{
		Data:       data,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}

// PaginatedBatches is the cached form of a batch page
type PaginatedBatches struct {
	Data     []BatchDTO `json:"data"`
	Total    int64      `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"pageSize"`
}

func NewPaginatedBatches(data []BatchDTO, total int64, page, pageSize int) PaginatedBatches {
	return PaginatedBatches{Data: data, Total: total, Page: page, PageSize: pageSize}
}

// Response converts the cached page into the response envelope
func (p PaginatedBatches) Response() *PaginatedResponse {
	return NewPaginatedResponse(p.Data, p.Total, p.Page, p.PageSize)
}

// AuthUserDTO describes the authenticated caller
type AuthUserDTO struct {
	ID           uuid.UUID        `json:"id"`
	Name         string           `json:"name"`
	Email        string           `json:"email,omitempty"`
	Roles        []string         `json:"roles"`
	TenantID     *uuid.UUID       `json:"tenantId,omitempty"`
	IsSuperAdmin bool             `json:"isSuperAdmin"`
	Permissions  []PermissionType `json:"permissions"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
