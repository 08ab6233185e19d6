package export

import (
	"encoding/csv"
	"io"
	"strconv"
)

var csvSummaryHeader = []string{
	"tenant_id",
	"tenant_slug",
	"tenant_name",
	"period_start",
	"period_end",
	"generated_at",
	"total_batches",
	"total_events",
	"total_physical_counts",
	"counts_with_variance",
	"total_loss_theft_reports",
	"reports_requiring_health_canada",
	"total_estimated_loss_value",
}

var csvBatchHeader = []string{
	"batch_id",
	"batch_name",
	"facility_id",
	"cultivation_area_id",
	"product_type",
	"variety",
	"current_quantity",
	"unit",
	"end_type",
	"origin_type",
	"packaged",
	"archived",
	"batch_created_at",
}

// EncodeCSV writes one row per batch with the tenant summary columns
// repeated. A bundle without batches yields a single row whose batch columns
// are empty.
func EncodeCSV(w io.Writer, b *Bundle) error {
	cw := csv.NewWriter(w)

	header := append(append([]string{}, csvSummaryHeader...), csvBatchHeader...)
	if err := cw.Write(header); err != nil {
		return err
	}

	s := b.Summary
	summary := []string{
		b.Tenant.ID.String(),
		b.Tenant.Slug,
		b.Tenant.Name,
		b.Period.StartDate,
		b.Period.EndDate,
		b.GeneratedAt,
		strconv.Itoa(s.TotalBatches),
		strconv.Itoa(s.TotalEvents),
		strconv.Itoa(s.TotalPhysicalCounts),
		strconv.Itoa(s.CountsWithVariance),
		strconv.Itoa(s.TotalLossTheftReports),
		strconv.Itoa(s.ReportsRequiringHealthCanada),
		s.TotalEstimatedLoss.StringFixed(2),
	}

	if len(b.Batches) == 0 {
		row := append(append([]string{}, summary...), make([]string, len(csvBatchHeader))...)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	for _, batch := range b.Batches {
		row := append(append([]string{}, summary...),
			batch.ID.String(),
			batch.Name,
			batch.FacilityID.String(),
			batch.CultivationAreaID.String(),
			string(batch.ProductType),
			batch.Variety,
			batch.CurrentQuantity.String(),
			string(batch.Unit),
			string(batch.EndType),
			string(batch.OriginType),
			strconv.FormatBool(batch.Packaged),
			strconv.FormatBool(batch.Archived),
			batch.CreatedAt,
		)
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
