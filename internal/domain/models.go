package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BaseModel contains common fields for all models
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate assigns an ID when the caller has not set one
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Tenant is an isolated organization. Every other entity carries its ID.
type Tenant struct {
	BaseModel
	Name          string `gorm:"type:varchar(200);not null"`
	Slug          string `gorm:"type:varchar(100);not null;uniqueIndex"`
	LicenseHolder string `gorm:"type:varchar(200)"`
	Active        bool   `gorm:"not null;default:true"`
	// Optional overrides of the configured Health Canada reporting thresholds
	LossQuantityThreshold *decimal.Decimal `gorm:"type:numeric(18,4)"`
	LossUnitsThreshold    *decimal.Decimal `gorm:"type:numeric(18,4)"`
	LossValueThreshold    *decimal.Decimal `gorm:"type:numeric(18,2)"`
}

// ReportingThresholds resolves the tenant's thresholds on top of defaults
func (t *Tenant) ReportingThresholds(defaults ReportingThresholds) ReportingThresholds {
	out := defaults
	if t == nil {
		return out
	}
	if t.LossQuantityThreshold != nil {
		out.Quantity = *t.LossQuantityThreshold
	}
	if t.LossUnitsThreshold != nil {
		out.Units = *t.LossUnitsThreshold
	}
	if t.LossValueThreshold != nil {
		out.Value = *t.LossValueThreshold
	}
	return out
}

// Facility is a licensed physical site of a tenant
type Facility struct {
	BaseModel
	TenantID      uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_facility_license"`
	Name          string    `gorm:"type:varchar(200);not null"`
	LicenseNumber string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_facility_license"`
	Address       string    `gorm:"type:varchar(500)"`
}

// Stage is an ordered step in the cultivation pipeline
type Stage struct {
	BaseModel
	TenantID uuid.UUID `gorm:"type:uuid;not null;index"`
	Name     string    `gorm:"type:varchar(100);not null"`
	Position int       `gorm:"not null;default:0"`
}

// CultivationArea is a location within a facility
type CultivationArea struct {
	BaseModel
	TenantID   uuid.UUID  `gorm:"type:uuid;not null;index"`
	FacilityID uuid.UUID  `gorm:"type:uuid;not null;index"`
	Facility   *Facility  `gorm:"foreignKey:FacilityID"`
	StageID    *uuid.UUID `gorm:"type:uuid;index"`
	Stage      *Stage     `gorm:"foreignKey:StageID"`
	Name       string     `gorm:"type:varchar(200);not null"`
	Capacity   int        `gorm:"not null;default:0"`
}

// Batch is a tracked quantity of product moving through cultivation and processing
type Batch struct {
	BaseModel
	TenantID           uuid.UUID        `gorm:"type:uuid;not null;index"`
	FacilityID         uuid.UUID        `gorm:"type:uuid;not null;index"`
	CultivationAreaID  uuid.UUID        `gorm:"type:uuid;not null;index"`
	CultivationArea    *CultivationArea `gorm:"foreignKey:CultivationAreaID"`
	Name               string           `gorm:"type:varchar(200);not null"`
	Quantity           decimal.Decimal  `gorm:"type:numeric(18,4);not null"`
	Unit               Unit             `gorm:"type:varchar(10);not null"`
	EndType            EndType          `gorm:"type:varchar(20);not null"`
	Variety            string           `gorm:"type:varchar(200)"`
	ProductType        ProductType      `gorm:"type:varchar(50);not null;index"`
	OriginType         OriginType       `gorm:"type:varchar(30);not null"`
	OriginDetails      string           `gorm:"type:text"`
	Packaged           bool             `gorm:"not null;default:false"`
	SubLocation        string           `gorm:"type:varchar(200)"`
	RetentionExpiresAt *time.Time
	ArchivedAt         *time.Time `gorm:"index"`
}

// BatchLineage is a parent → child edge created by a split or harvest
type BatchLineage struct {
	BaseModel
	TenantID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	ParentBatchID uuid.UUID       `gorm:"type:uuid;not null;index"`
	ChildBatchID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	Relation      LineageRelation `gorm:"type:varchar(20);not null"`
	Quantity      decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	Unit          Unit            `gorm:"type:varchar(10);not null"`
	EventID       uuid.UUID       `gorm:"type:uuid;not null"`
}

// TraceabilityEvent is an immutable ledger entry for an action on a batch or area
type TraceabilityEvent struct {
	BaseModel
	TenantID       uuid.UUID        `gorm:"type:uuid;not null;index"`
	BatchID        *uuid.UUID       `gorm:"type:uuid;index"`
	EventType      EventType        `gorm:"type:varchar(30);not null;index"`
	FacilityID     uuid.UUID        `gorm:"type:uuid;not null;index"`
	AreaID         uuid.UUID        `gorm:"type:uuid;not null"`
	UserID         uuid.UUID        `gorm:"type:uuid;not null"`
	Quantity       *decimal.Decimal `gorm:"type:numeric(18,4)"`
	Unit           Unit             `gorm:"type:varchar(10)"`
	Description    string           `gorm:"type:text"`
	Reason         string           `gorm:"type:text"`
	Method         string           `gorm:"type:varchar(200)"`
	FromLocation   string           `gorm:"type:varchar(200)"`
	ToLocation     string           `gorm:"type:varchar(200)"`
	NewBatchID     *uuid.UUID       `gorm:"type:uuid"`
	QuantityBefore *decimal.Decimal `gorm:"type:numeric(18,4)"`
	QuantityAfter  *decimal.Decimal `gorm:"type:numeric(18,4)"`
	OccurredAt     time.Time        `gorm:"not null;index"`
	ArchivedAt     *time.Time       `gorm:"index"`
}

// BeforeUpdate refuses any ORM update of a ledger entry. Archival writes
// archived_at through UpdateColumn, which bypasses hooks.
func (e *TraceabilityEvent) BeforeUpdate(tx *gorm.DB) error {
	return ErrEventImmutable
}

// BeforeDelete refuses deletion of ledger entries
func (e *TraceabilityEvent) BeforeDelete(tx *gorm.DB) error {
	return ErrEventImmutable
}

// LossTheftReport is the regulatory record escalated from a loss_theft event
type LossTheftReport struct {
	BaseModel
	TenantID                uuid.UUID           `gorm:"type:uuid;not null;index"`
	ReportNumber            string              `gorm:"type:varchar(50);not null;uniqueIndex"`
	IncidentType            IncidentType        `gorm:"type:varchar(20);not null"`
	Category                LossCategory        `gorm:"type:varchar(30);not null"`
	FacilityID              uuid.UUID           `gorm:"type:uuid;not null;index"`
	BatchID                 *uuid.UUID          `gorm:"type:uuid;index"`
	EventID                 *uuid.UUID          `gorm:"type:uuid"`
	QuantityLost            decimal.Decimal     `gorm:"type:numeric(18,4);not null"`
	Unit                    Unit                `gorm:"type:varchar(10);not null"`
	EstimatedValue          decimal.Decimal     `gorm:"type:numeric(18,2);not null"`
	IncidentDate            time.Time           `gorm:"not null;index"`
	DiscoveredDate          time.Time           `gorm:"not null"`
	InvestigationStatus     InvestigationStatus `gorm:"type:varchar(20);not null;default:'open'"`
	PoliceNotified          bool                `gorm:"not null;default:false"`
	PoliceReportNumber      string              `gorm:"type:varchar(100)"`
	PoliceNotifiedAt        *time.Time
	HealthCanadaSubmitted   bool   `gorm:"not null;default:false"`
	HealthCanadaReference   string `gorm:"type:varchar(100)"`
	HealthCanadaSubmittedAt *time.Time
	Urgent                  bool      `gorm:"not null;default:false"`
	Description             string    `gorm:"type:text"`
	ReportedBy              uuid.UUID `gorm:"type:uuid;not null"`
}

// PhysicalCount reconciles the recorded quantity of a batch against a count
type PhysicalCount struct {
	BaseModel
	TenantID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	FacilityID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	BatchID          uuid.UUID       `gorm:"type:uuid;not null;index"`
	Batch            *Batch          `gorm:"foreignKey:BatchID"`
	CountDate        time.Time       `gorm:"not null;index"`
	ExpectedQuantity decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	CountedQuantity  decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	Variance         decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	Unit             Unit            `gorm:"type:varchar(10);not null"`
	CountedBy        uuid.UUID       `gorm:"type:uuid;not null"`
	Status           CountStatus     `gorm:"type:varchar(20);not null;default:'pending';index"`
	ResolvedAt       *time.Time
	ResolvedBy       *uuid.UUID      `gorm:"type:uuid"`
	Resolution       CountResolution `gorm:"type:varchar(20)"`
	ResolutionNotes  string          `gorm:"type:text"`
	ArchivedAt       *time.Time      `gorm:"index"`
}

// RetentionPolicy defines how long a record type is kept before it may be archived
type RetentionPolicy struct {
	BaseModel
	TenantID        uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_retention_tenant_type"`
	RecordType      RecordType `gorm:"type:varchar(30);not null;uniqueIndex:idx_retention_tenant_type"`
	RetentionMonths int        `gorm:"not null"`
	Active          bool       `gorm:"not null;default:true"`
}

// Notification is an in-app alert delivered to a tenant's users
type Notification struct {
	BaseModel
	TenantID   uuid.UUID  `gorm:"type:uuid;not null;index"`
	Type       string     `gorm:"type:varchar(50);not null"`
	Severity   Severity   `gorm:"type:varchar(20);not null"`
	Title      string     `gorm:"type:varchar(200);not null"`
	Message    string     `gorm:"type:varchar(1000);not null"`
	Read       bool       `gorm:"column:read;not null;default:false;index"`
	ReadAt     *time.Time
	EntityID   *uuid.UUID `gorm:"type:uuid"`
	EntityType string     `gorm:"type:varchar(50)"`
}

// NumberSequence tracks the last issued number per tenant, prefix and year
type NumberSequence struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_sequence_scope"`
	Prefix       string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_sequence_scope"`
	Year         int       `gorm:"not null;uniqueIndex:idx_sequence_scope"`
	LastSequence int       `gorm:"not null;default:0"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// BeforeCreate assigns an ID when the caller has not set one
func (n *NumberSequence) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

// AllModels lists every persisted model, used by test schema setup
func AllModels() []interface{} {
	return []interface{}{
		&Tenant{},
		&Facility{},
		&Stage{},
		&CultivationArea{},
		&Batch{},
		&BatchLineage{},
		&TraceabilityEvent{},
		&LossTheftReport{},
		&PhysicalCount{},
		&RetentionPolicy{},
		&Notification{},
		&NumberSequence{},
	}
}
