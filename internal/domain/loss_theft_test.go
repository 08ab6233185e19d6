package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/stretchr/testify/assert"
)

func thresholds() domain.ReportingThresholds {
	return domain.ReportingThresholds{
		Quantity: decimal.NewFromInt(50),
		Units:    decimal.NewFromInt(10),
		Value:    decimal.NewFromInt(1000),
	}
}

func report(incident domain.IncidentType, qty string, unit domain.Unit, value string) *domain.LossTheftReport {
	return &domain.LossTheftReport{
		IncidentType:   incident,
		QuantityLost:   decimal.RequireFromString(qty),
		Unit:           unit,
		EstimatedValue: decimal.RequireFromString(value),
	}
}

func TestRequiresHealthCanadaReporting(t *testing.T) {
	th := thresholds()
	tests := []struct {
		name   string
		report *domain.LossTheftReport
		want   bool
	}{
		{"small loss", report(domain.IncidentLoss, "5", domain.UnitGrams, "20"), false},
		{"at the quantity threshold", report(domain.IncidentLoss, "50", domain.UnitGrams, "0"), false},
		{"above the quantity threshold", report(domain.IncidentLoss, "50.01", domain.UnitGrams, "0"), true},
		{"kilograms are normalized", report(domain.IncidentLoss, "0.06", domain.UnitKilograms, "0"), true},
		{"litres are normalized", report(domain.IncidentLoss, "0.04", domain.UnitLitre, "0"), false},
		{"units use the units threshold", report(domain.IncidentLoss, "11", domain.UnitCount, "0"), true},
		{"units below it", report(domain.IncidentLoss, "10", domain.UnitCount, "0"), false},
		{"value above threshold", report(domain.IncidentLoss, "1", domain.UnitGrams, "1000.01"), true},
		{"any theft", report(domain.IncidentTheft, "0.1", domain.UnitGrams, "0"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.report.RequiresHealthCanadaReporting(th))
		})
	}
}

func TestRequiresHealthCanadaReporting_Monotonic(t *testing.T) {
	th := thresholds()
	r := report(domain.IncidentLoss, "0", domain.UnitGrams, "0")

	seen := false
	for q := int64(0); q <= 200; q += 5 {
		r.QuantityLost = decimal.NewFromInt(q)
		got := r.RequiresHealthCanadaReporting(th)
		assert.False(t, seen && !got, "quantity %d flipped the predicate back", q)
		seen = seen || got
	}
	assert.True(t, seen)

	r = report(domain.IncidentLoss, "1", domain.UnitGrams, "0")
	seen = false
	for v := int64(0); v <= 3000; v += 250 {
		r.EstimatedValue = decimal.NewFromInt(v)
		got := r.RequiresHealthCanadaReporting(th)
		assert.False(t, seen && !got, "value %d flipped the predicate back", v)
		seen = seen || got
	}

	r.EstimatedValue = decimal.Zero
	r.IncidentType = domain.IncidentTheft
	assert.True(t, r.RequiresHealthCanadaReporting(th))
}

func TestEscalate_IsSticky(t *testing.T) {
	th := thresholds()
	r := report(domain.IncidentLoss, "60", domain.UnitGrams, "0")

	assert.True(t, r.Escalate(th))
	assert.Equal(t, domain.SeverityUrgent, r.NotificationSeverity(th))

	r.QuantityLost = decimal.NewFromInt(1)
	assert.True(t, r.Escalate(th), "a later correction does not clear the flag")
	assert.True(t, r.Urgent)
	assert.Equal(t, domain.SeverityHigh, r.NotificationSeverity(th))
}
