package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MutationKind tags the variant of a BatchMutation
type MutationKind string

const (
	MutationSplit     MutationKind = "split"
	MutationProcess   MutationKind = "process"
	MutationAdjust    MutationKind = "adjust"
	MutationEventOnly MutationKind = "event_only"
)

// BatchMutation is a change to batch state that commits together with exactly
// one traceability event. Implemented by SplitMutation, ProcessMutation,
// AdjustMutation and EventOnlyMutation.
type BatchMutation interface {
	Kind() MutationKind
	// Target returns the batch to lock, or nil for area-level events
	Target() *uuid.UUID
	isBatchMutation()
}

// SplitMutation moves Quantity from a batch into a new sibling batch
type SplitMutation struct {
	BatchID           uuid.UUID        `json:"batchId" validate:"required"`
	Quantity          *decimal.Decimal `json:"quantity"`
	DestinationAreaID uuid.UUID        `json:"destinationAreaId" validate:"required"`
	NewBatchName      string           `json:"newBatchName" validate:"required,max=200"`
	NewProductType    ProductType      `json:"newProductType,omitempty"`
	Description       string           `json:"description,omitempty"`
}

// ProcessMutation transforms a batch down to ProcessedQuantity
type ProcessMutation struct {
	BatchID           uuid.UUID        `json:"batchId" validate:"required"`
	ProcessedQuantity *decimal.Decimal `json:"processedQuantity"`
	Method            string           `json:"method" validate:"required,max=200"`
	NewProductType    ProductType      `json:"newProductType" validate:"required"`
	Description       string           `json:"description,omitempty"`
}

// AdjustMutation corrects a batch quantity by a signed delta
type AdjustMutation struct {
	BatchID     uuid.UUID        `json:"batchId" validate:"required"`
	Delta       *decimal.Decimal `json:"quantity"`
	Unit        Unit             `json:"unit" validate:"required"`
	Reason      string           `json:"reason" validate:"required"`
	Description string           `json:"description,omitempty"`
}

// EventOnlyMutation records a ledger event whose effect on the batch is fixed
// by its event type (movement, cultivation, harvest, sampling, destruction,
// loss_theft)
type EventOnlyMutation struct {
	EventType    EventType        `json:"eventType" validate:"required"`
	BatchID      *uuid.UUID       `json:"batchId,omitempty"`
	FacilityID   uuid.UUID        `json:"facilityId" validate:"required"`
	AreaID       uuid.UUID        `json:"areaId" validate:"required"`
	Quantity     *decimal.Decimal `json:"quantity,omitempty"`
	Unit         Unit             `json:"unit,omitempty"`
	Description  string           `json:"description,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	Method       string           `json:"method,omitempty"`
	FromLocation string           `json:"fromLocation,omitempty"`
	ToLocation   string           `json:"toLocation,omitempty"`
	ToAreaID     *uuid.UUID       `json:"toAreaId,omitempty"`
	NewBatchID   *uuid.UUID       `json:"newBatchId,omitempty"`
	OccurredAt   *time.Time       `json:"occurredAt,omitempty"`

	// loss_theft report details
	IncidentType   IncidentType     `json:"incidentType,omitempty"`
	Category       LossCategory     `json:"category,omitempty"`
	EstimatedValue *decimal.Decimal `json:"estimatedValue,omitempty"`
	DiscoveredAt   *time.Time       `json:"discoveredAt,omitempty"`
}

func (m *SplitMutation) Kind() MutationKind     { return MutationSplit }
func (m *ProcessMutation) Kind() MutationKind   { return MutationProcess }
func (m *AdjustMutation) Kind() MutationKind    { return MutationAdjust }
func (m *EventOnlyMutation) Kind() MutationKind { return MutationEventOnly }

func (m *SplitMutation) Target() *uuid.UUID     { return &m.BatchID }
func (m *ProcessMutation) Target() *uuid.UUID   { return &m.BatchID }
func (m *AdjustMutation) Target() *uuid.UUID    { return &m.BatchID }
func (m *EventOnlyMutation) Target() *uuid.UUID { return m.BatchID }

func (*SplitMutation) isBatchMutation()     {}
func (*ProcessMutation) isBatchMutation()   {}
func (*AdjustMutation) isBatchMutation()    {}
func (*EventOnlyMutation) isBatchMutation() {}

// MutationResult is everything a committed mutation wrote
type MutationResult struct {
	Kind     MutationKind
	Batch    *Batch
	NewBatch *Batch
	Event    *TraceabilityEvent
	Lineage  *BatchLineage
	Report   *LossTheftReport
}
