package domain

import "github.com/shopspring/decimal"

// ReportingThresholds are the limits above which a loss must be reported to
// Health Canada. Quantity applies to mass (grams) and volume (millilitres),
// Units to counted product, Value to the estimated value.
type ReportingThresholds struct {
	Quantity decimal.Decimal
	Units    decimal.Decimal
	Value    decimal.Decimal
}

// RequiresHealthCanadaReporting is true for any theft, or when the normalized
// quantity lost or the estimated value exceeds its threshold. It depends only
// on the report fields and the thresholds.
func (r *LossTheftReport) RequiresHealthCanadaReporting(th ReportingThresholds) bool {
	if r.IncidentType == IncidentTheft {
		return true
	}
	limit := th.Quantity
	if r.Unit.Dimension() == DimensionCount {
		limit = th.Units
	}
	if Normalize(r.QuantityLost, r.Unit).GreaterThan(limit) {
		return true
	}
	return r.EstimatedValue.GreaterThan(th.Value)
}

// NotificationSeverity maps the reporting predicate onto notification severity
func (r *LossTheftReport) NotificationSeverity(th ReportingThresholds) Severity {
	if r.RequiresHealthCanadaReporting(th) {
		return SeverityUrgent
	}
	return SeverityHigh
}

// Escalate sets the urgent flag when the predicate holds. The flag is never
// cleared once set.
func (r *LossTheftReport) Escalate(th ReportingThresholds) bool {
	if r.RequiresHealthCanadaReporting(th) {
		r.Urgent = true
	}
	return r.Urgent
}
