package service

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/straye-as/cultivation-api/internal/domain"
)

// validateMutation checks the parameters of a mutation before any state is
// read. Quantity bounds that depend on the batch are checked later, inside
// the transaction, and fail as invariant violations.
func validateMutation(m domain.BatchMutation) error {
	ve := &ValidationError{}
	switch mut := m.(type) {
	case *domain.SplitMutation:
		validateStruct(mut, ve)
		if mut.Quantity == nil {
			ve.Add("quantity", "quantity is required")
		}
		if mut.NewProductType != "" && !mut.NewProductType.IsValid() {
			ve.Add("newProductType", "Must be a Health Canada product type")
		}
	case *domain.ProcessMutation:
		validateStruct(mut, ve)
		if mut.ProcessedQuantity == nil {
			ve.Add("processedQuantity", "processedQuantity is required")
		}
		if mut.NewProductType != "" && !mut.NewProductType.IsValid() {
			ve.Add("newProductType", "Must be a Health Canada product type")
		}
		if isBlank(mut.Method) {
			ve.Add("method", "method is required")
		}
	case *domain.AdjustMutation:
		validateStruct(mut, ve)
		if mut.Delta == nil {
			ve.Add("quantity", "quantity is required")
		} else if mut.Delta.IsZero() {
			ve.Add("quantity", "Adjustment must not be zero")
		}
		if mut.Unit != "" && !mut.Unit.IsValid() {
			ve.Add("unit", "Must be one of: g kg ml L units")
		}
		if isBlank(mut.Reason) {
			ve.Add("reason", "reason is required")
		}
	case *domain.EventOnlyMutation:
		validateEventOnly(mut, ve)
	default:
		return fmt.Errorf("unsupported mutation %T", m)
	}
	return ve.OrNil()
}

func validateEventOnly(m *domain.EventOnlyMutation, ve *ValidationError) {
	validateStruct(m, ve)

	switch m.EventType {
	case domain.EventCreation, domain.EventProcessing, domain.EventInventoryAdjustment:
		ve.Add("eventType", fmt.Sprintf("%s events cannot be registered directly", m.EventType))
		return
	case "":
		return
	}
	if !m.EventType.IsValid() {
		ve.Add("eventType", fmt.Sprintf("Unknown event type %q", m.EventType))
		return
	}
	if m.BatchID == nil && m.EventType != domain.EventCultivation {
		ve.Add("batchId", "batchId is required")
	}
	if m.Unit != "" && !m.Unit.IsValid() {
		ve.Add("unit", "Must be one of: g kg ml L units")
	}
	if m.Quantity != nil && !m.Quantity.IsPositive() {
		ve.Add("quantity", "Must be greater than 0")
	}

	switch m.EventType {
	case domain.EventMovement:
		if isBlank(m.ToLocation) {
			ve.Add("toLocation", "toLocation is required")
		}
	case domain.EventCultivation:
		if isBlank(m.Method) {
			ve.Add("method", "method is required")
		}
	case domain.EventHarvest:
		requireQuantity(m.Quantity, ve)
		if m.Unit == "" {
			m.Unit = domain.UnitGrams
		}
	case domain.EventSampling:
		requireQuantity(m.Quantity, ve)
		requireUnit(m.Unit, ve)
		requireText("reason", m.Reason, ve)
	case domain.EventDestruction:
		requireQuantity(m.Quantity, ve)
		requireUnit(m.Unit, ve)
		requireText("method", m.Method, ve)
		requireText("reason", m.Reason, ve)
	case domain.EventLossTheft:
		requireQuantity(m.Quantity, ve)
		requireUnit(m.Unit, ve)
		requireText("reason", m.Reason, ve)
		if m.IncidentType != "" && !m.IncidentType.IsValid() {
			ve.Add("incidentType", "Must be one of: loss theft")
		}
		if m.Category != "" && !m.Category.IsValid() {
			ve.Add("category", "Unknown loss category")
		}
		if m.EstimatedValue != nil && m.EstimatedValue.IsNegative() {
			ve.Add("estimatedValue", "Must be greater than or equal to 0")
		}
	}
}

func requireQuantity(q *decimal.Decimal, ve *ValidationError) {
	if q == nil {
		ve.Add("quantity", "quantity is required")
	}
}

func requireUnit(u domain.Unit, ve *ValidationError) {
	if u == "" {
		ve.Add("unit", "unit is required")
	}
}

func requireText(field, value string, ve *ValidationError) {
	if isBlank(value) {
		ve.Add(field, field+" is required")
	}
}
