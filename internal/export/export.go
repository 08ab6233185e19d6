// Package export builds Health Canada compliance bundles and encodes them
// as JSON, CSV, XML or XLSX. The formats are not equivalent: JSON and XLSX
// carry the detail records, CSV flattens batches with the tenant summary
// repeated on every row, and XML carries the summary only.
package export

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/mapper"
)

// ErrUnsupportedFormat is returned for unknown format names
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ErrInvalidDate is returned for dates that are not YYYY-MM-DD
var ErrInvalidDate = errors.New("invalid date")

// DateLayout is the layout of --start-date, --end-date and the query parameters
const DateLayout = "2006-01-02"

// Format is an export encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXML  Format = "xml"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts a format name case-insensitively; empty means JSON
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV, FormatXML, FormatXLSX:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// Extension returns the file extension without a dot
func (f Format) Extension() string {
	return string(f)
}

// ContentType returns the MIME type of the encoding
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXML:
		return "application/xml; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/json; charset=utf-8"
}

// DateRange is an inclusive range of calendar days in UTC. Either bound may
// be open.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

// ParseDateRange parses YYYY-MM-DD bounds. The end bound covers its whole
// day.
func ParseDateRange(start, end string) (DateRange, error) {
	var r DateRange
	if s := strings.TrimSpace(start); s != "" {
		t, err := time.ParseInLocation(DateLayout, s, time.UTC)
		if err != nil {
			return r, fmt.Errorf("%w: start date %q", ErrInvalidDate, start)
		}
		r.Start = &t
	}
	if s := strings.TrimSpace(end); s != "" {
		t, err := time.ParseInLocation(DateLayout, s, time.UTC)
		if err != nil {
			return r, fmt.Errorf("%w: end date %q", ErrInvalidDate, end)
		}
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		r.End = &t
	}
	if r.Start != nil && r.End != nil && r.End.Before(*r.Start) {
		return r, fmt.Errorf("%w: end date is before start date", ErrInvalidDate)
	}
	return r, nil
}

func (r DateRange) startString() string {
	if r.Start == nil {
		return ""
	}
	return r.Start.Format(DateLayout)
}

func (r DateRange) endString() string {
	if r.End == nil {
		return ""
	}
	return r.End.Format(DateLayout)
}

// Records are the already filtered collections of one tenant
type Records struct {
	Facilities        []domain.Facility
	Batches           []domain.Batch
	Events            []domain.TraceabilityEvent
	PhysicalCounts    []domain.PhysicalCount
	LossTheftReports  []domain.LossTheftReport
	RetentionPolicies []domain.RetentionPolicy
}

// TenantInfo identifies the tenant of a bundle
type TenantInfo struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	LicenseHolder string    `json:"licenseHolder,omitempty"`
}

// Period is the serialized date range
type Period struct {
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

// Summary is the compliance summary of a bundle
type Summary struct {
	TotalFacilities              int                       `json:"totalFacilities"`
	TotalBatches                 int                       `json:"totalBatches"`
	ActiveBatches                int                       `json:"activeBatches"`
	InventoryByUnit              map[domain.Unit]string    `json:"inventoryByUnit"`
	TotalEvents                  int                       `json:"totalEvents"`
	EventsByType                 map[domain.EventType]int  `json:"eventsByType"`
	TotalPhysicalCounts          int                       `json:"totalPhysicalCounts"`
	CountsWithVariance           int                       `json:"countsWithVariance"`
	TotalLossTheftReports        int                       `json:"totalLossTheftReports"`
	TheftReports                 int                       `json:"theftReports"`
	ReportsRequiringHealthCanada int                       `json:"reportsRequiringHealthCanada"`
	ReportsSubmitted             int                       `json:"reportsSubmittedToHealthCanada"`
	QuantityLostByUnit           map[domain.Unit]string    `json:"quantityLostByUnit"`
	TotalEstimatedLoss           decimal.Decimal           `json:"totalEstimatedLossValue"`
	RetentionMonths              map[domain.RecordType]int `json:"retentionMonthsByRecordType"`
}

// Bundle is the export of one tenant
type Bundle struct {
	Tenant            TenantInfo                    `json:"tenant"`
	GeneratedAt       string                        `json:"generatedAt"`
	Period            Period                        `json:"period"`
	Facilities        []domain.FacilityDTO          `json:"facilities"`
	Batches           []domain.BatchDTO             `json:"batches"`
	Events            []domain.TraceabilityEventDTO `json:"traceabilityEvents"`
	PhysicalCounts    []domain.PhysicalCountDTO     `json:"physicalCounts"`
	LossTheftReports  []domain.LossTheftReportDTO   `json:"lossTheftReports"`
	RetentionPolicies []domain.RetentionPolicyDTO   `json:"retentionPolicies"`
	Summary           Summary                       `json:"summary"`
}

// NewBundle converts the records of a tenant into a bundle. The summary is
// computed from recs alone.
func NewBundle(tenant *domain.Tenant, period DateRange, generatedAt time.Time, th domain.ReportingThresholds, recs Records) *Bundle {
	b := &Bundle{
		Tenant: TenantInfo{
			ID:            tenant.ID,
			Name:          tenant.Name,
			Slug:          tenant.Slug,
			LicenseHolder: tenant.LicenseHolder,
		},
		GeneratedAt:       generatedAt.UTC().Format(mapper.TimeFormat),
		Period:            Period{StartDate: period.startString(), EndDate: period.endString()},
		Facilities:        make([]domain.FacilityDTO, len(recs.Facilities)),
		Batches:           make([]domain.BatchDTO, len(recs.Batches)),
		Events:            mapper.ToTraceabilityEventDTOs(recs.Events),
		PhysicalCounts:    make([]domain.PhysicalCountDTO, len(recs.PhysicalCounts)),
		LossTheftReports:  make([]domain.LossTheftReportDTO, len(recs.LossTheftReports)),
		RetentionPolicies: make([]domain.RetentionPolicyDTO, len(recs.RetentionPolicies)),
		Summary:           ComputeSummary(recs, th),
	}
	for i := range recs.Facilities {
		b.Facilities[i] = mapper.ToFacilityDTO(&recs.Facilities[i])
	}
	for i := range recs.Batches {
		b.Batches[i] = mapper.ToBatchDTO(&recs.Batches[i])
	}
	for i := range recs.PhysicalCounts {
		b.PhysicalCounts[i] = mapper.ToPhysicalCountDTO(&recs.PhysicalCounts[i])
	}
	for i := range recs.LossTheftReports {
		b.LossTheftReports[i] = mapper.ToLossTheftReportDTO(&recs.LossTheftReports[i])
	}
	for i := range recs.RetentionPolicies {
		b.RetentionPolicies[i] = mapper.ToRetentionPolicyDTO(&recs.RetentionPolicies[i])
	}
	return b
}

// ComputeSummary derives the compliance summary from the given collections.
// It performs no lookups, so the figures always match the exported rows.
// The Health Canada count uses the same predicate as report escalation.
func ComputeSummary(recs Records, th domain.ReportingThresholds) Summary {
	s := Summary{
		TotalFacilities:       len(recs.Facilities),
		TotalBatches:          len(recs.Batches),
		InventoryByUnit:       map[domain.Unit]string{},
		TotalEvents:           len(recs.Events),
		EventsByType:          map[domain.EventType]int{},
		TotalPhysicalCounts:   len(recs.PhysicalCounts),
		TotalLossTheftReports: len(recs.LossTheftReports),
		QuantityLostByUnit:    map[domain.Unit]string{},
		TotalEstimatedLoss:    decimal.Zero,
		RetentionMonths:       map[domain.RecordType]int{},
	}

	inventory := map[domain.Unit]decimal.Decimal{}
	for _, b := range recs.Batches {
		if b.ArchivedAt == nil {
			s.ActiveBatches++
		}
		inventory[b.Unit] = inventory[b.Unit].Add(b.Quantity)
	}
	for unit, q := range inventory {
		s.InventoryByUnit[unit] = q.String()
	}

	for _, e := range recs.Events {
		s.EventsByType[e.EventType]++
	}

	for _, c := range recs.PhysicalCounts {
		if !c.Variance.IsZero() {
			s.CountsWithVariance++
		}
	}

	lost := map[domain.Unit]decimal.Decimal{}
	for i := range recs.LossTheftReports {
		r := &recs.LossTheftReports[i]
		if r.IncidentType == domain.IncidentTheft {
			s.TheftReports++
		}
		if r.RequiresHealthCanadaReporting(th) {
			s.ReportsRequiringHealthCanada++
		}
		if r.HealthCanadaSubmitted {
			s.ReportsSubmitted++
		}
		lost[r.Unit] = lost[r.Unit].Add(r.QuantityLost)
		s.TotalEstimatedLoss = s.TotalEstimatedLoss.Add(r.EstimatedValue)
	}
	for unit, q := range lost {
		s.QuantityLostByUnit[unit] = q.String()
	}

	for _, p := range recs.RetentionPolicies {
		if p.Active {
			s.RetentionMonths[p.RecordType] = p.RetentionMonths
		}
	}
	return s
}

// Encode writes b in format f
func Encode(w io.Writer, f Format, b *Bundle) error {
	switch f {
	case FormatJSON:
		return EncodeJSON(w, b)
	case FormatCSV:
		return EncodeCSV(w, b)
	case FormatXML:
		return EncodeXML(w, b)
	case FormatXLSX:
		return EncodeXLSX(w, b)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
}

// FileName returns the canonical file name of a bundle export
func FileName(b *Bundle, f Format, generatedAt time.Time) string {
	return fmt.Sprintf("health-canada-%s-%s.%s", b.Tenant.Slug, generatedAt.UTC().Format("20060102T150405Z"), f.Extension())
}
