package domain

// EventType enumerates traceability ledger actions
type EventType string

const (
	EventMovement            EventType = "movement"
	EventCultivation         EventType = "cultivation"
	EventHarvest             EventType = "harvest"
	EventSampling            EventType = "sampling"
	EventDestruction         EventType = "destruction"
	EventLossTheft           EventType = "loss_theft"
	EventProcessing          EventType = "processing"
	EventInventoryAdjustment EventType = "inventory_adjustment"
	EventCreation            EventType = "creation"
)

// AllEventTypes lists event types in ledger display order
var AllEventTypes = []EventType{
	EventCreation,
	EventMovement,
	EventCultivation,
	EventHarvest,
	EventSampling,
	EventDestruction,
	EventLossTheft,
	EventProcessing,
	EventInventoryAdjustment,
}

// IsValid checks if the event type is known
func (t EventType) IsValid() bool {
	for _, v := range AllEventTypes {
		if v == t {
			return true
		}
	}
	return false
}

// DecrementsBatch reports whether an event of this type removes its quantity
// from the batch
func (t EventType) DecrementsBatch() bool {
	switch t {
	case EventSampling, EventDestruction, EventLossTheft:
		return true
	}
	return false
}

// EndType is the end state of harvested product
type EndType string

const (
	EndTypeDried EndType = "dried"
	EndTypeFresh EndType = "fresh"
)

// IsValid checks if the end type is known
func (e EndType) IsValid() bool {
	return e == EndTypeDried || e == EndTypeFresh
}

// ProductType is the Health Canada CTLS product category
type ProductType string

const (
	ProductSeeds             ProductType = "seeds"
	ProductVegetativePlants  ProductType = "vegetative_plants"
	ProductWholePlants       ProductType = "whole_plants"
	ProductFreshCannabis     ProductType = "fresh_cannabis"
	ProductDriedCannabis     ProductType = "dried_cannabis"
	ProductExtractsIngested  ProductType = "extracts_ingested"
	ProductExtractsInhaled   ProductType = "extracts_inhaled"
	ProductExtractsOther     ProductType = "extracts_other"
	ProductEdiblesSolids     ProductType = "edibles_solids"
	ProductEdiblesNonSolids  ProductType = "edibles_non_solids"
	ProductTopicals          ProductType = "topicals"
	ProductPlantsForDisposal ProductType = "plants_for_disposal"
)

var productTypes = map[ProductType]bool{
	ProductSeeds:             true,
	ProductVegetativePlants:  true,
	ProductWholePlants:       true,
	ProductFreshCannabis:     true,
	ProductDriedCannabis:     true,
	ProductExtractsIngested:  true,
	ProductExtractsInhaled:   true,
	ProductExtractsOther:     true,
	ProductEdiblesSolids:     true,
	ProductEdiblesNonSolids:  true,
	ProductTopicals:          true,
	ProductPlantsForDisposal: true,
}

// IsValid checks if the product type is part of the Health Canada enumeration
func (p ProductType) IsValid() bool {
	return productTypes[p]
}

// OriginType describes where a batch came from
type OriginType string

const (
	OriginInternal         OriginType = "internal"
	OriginExternalPurchase OriginType = "external_purchase"
	OriginSeeds            OriginType = "seeds"
	OriginClones           OriginType = "clones"
	OriginTissueCulture    OriginType = "tissue_culture"
)

// IsValid checks if the origin type is known
func (o OriginType) IsValid() bool {
	switch o {
	case OriginInternal, OriginExternalPurchase, OriginSeeds, OriginClones, OriginTissueCulture:
		return true
	}
	return false
}

// RequiresDetails reports whether origin details must accompany the origin
func (o OriginType) RequiresDetails() bool {
	return o == OriginExternalPurchase
}

// LineageRelation names how a child batch was derived from its parent
type LineageRelation string

const (
	LineageSplit   LineageRelation = "split"
	LineageHarvest LineageRelation = "harvest"
)

// IncidentType classifies a loss/theft report
type IncidentType string

const (
	IncidentLoss  IncidentType = "loss"
	IncidentTheft IncidentType = "theft"
)

// IsValid checks if the incident type is known
func (i IncidentType) IsValid() bool {
	return i == IncidentLoss || i == IncidentTheft
}

// LossCategory refines the incident type
type LossCategory string

const (
	CategoryUnexplained   LossCategory = "unexplained"
	CategorySpoilage      LossCategory = "spoilage"
	CategoryProcessLoss   LossCategory = "process_loss"
	CategoryTheftInternal LossCategory = "theft_internal"
	CategoryTheftExternal LossCategory = "theft_external"
	CategoryInTransit     LossCategory = "in_transit"
	CategoryOther         LossCategory = "other"
)

// IsValid checks if the category is known
func (c LossCategory) IsValid() bool {
	switch c {
	case CategoryUnexplained, CategorySpoilage, CategoryProcessLoss,
		CategoryTheftInternal, CategoryTheftExternal, CategoryInTransit, CategoryOther:
		return true
	}
	return false
}

// InvestigationStatus tracks a loss/theft report investigation
type InvestigationStatus string

const (
	InvestigationOpen          InvestigationStatus = "open"
	InvestigationInvestigating InvestigationStatus = "investigating"
	InvestigationClosed        InvestigationStatus = "closed"
)

// IsValid checks if the status is known
func (s InvestigationStatus) IsValid() bool {
	return s == InvestigationOpen || s == InvestigationInvestigating || s == InvestigationClosed
}

// CountStatus tracks whether a physical count variance has been dealt with
type CountStatus string

const (
	CountPending  CountStatus = "pending"
	CountResolved CountStatus = "resolved"
)

// CountResolution is how a physical count was closed
type CountResolution string

const (
	ResolutionAccept     CountResolution = "accept"
	ResolutionAdjust     CountResolution = "adjust"
	ResolutionReportLoss CountResolution = "report_loss"
)

// IsValid checks if the resolution is known
func (r CountResolution) IsValid() bool {
	return r == ResolutionAccept || r == ResolutionAdjust || r == ResolutionReportLoss
}

// RecordType names the record families governed by retention policies
type RecordType string

const (
	RecordTraceabilityEvent RecordType = "traceability_event"
	RecordBatch             RecordType = "batch"
	RecordPhysicalCount     RecordType = "physical_count"
)

// AllRecordTypes lists record types in archival order
var AllRecordTypes = []RecordType{RecordTraceabilityEvent, RecordBatch, RecordPhysicalCount}

// IsValid checks if the record type is known
func (r RecordType) IsValid() bool {
	for _, v := range AllRecordTypes {
		if v == r {
			return true
		}
	}
	return false
}

// Severity is the urgency classification attached to alerts and notifications
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
	SeverityUrgent Severity = "urgent"
)

// IsValid checks if the severity is known
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityUrgent:
		return true
	}
	return false
}

// PatternType names a theft-pattern heuristic
type PatternType string

const (
	PatternMultipleLosses PatternType = "multiple_losses"
	PatternTimeCluster    PatternType = "time_pattern"
)
