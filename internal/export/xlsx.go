package export

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	sheetBatches = "Batches"
	sheetEvents  = "Events"
	sheetSummary = "Summary"
)

// EncodeXLSX writes a workbook with Batches, Events and Summary sheets
func EncodeXLSX(w io.Writer, b *Bundle) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetBatches); err != nil {
		return err
	}
	if _, err := f.NewSheet(sheetEvents); err != nil {
		return err
	}
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return err
	}

	batchRows := [][]interface{}{{
		"Batch ID", "Name", "Facility ID", "Cultivation Area ID", "Product Type", "Variety",
		"Current Quantity", "Unit", "End Type", "Origin Type", "Packaged", "Archived", "Created At",
	}}
	for _, batch := range b.Batches {
		batchRows = append(batchRows, []interface{}{
			batch.ID.String(), batch.Name, batch.FacilityID.String(), batch.CultivationAreaID.String(),
			string(batch.ProductType), batch.Variety, batch.CurrentQuantity.InexactFloat64(), string(batch.Unit),
			string(batch.EndType), string(batch.OriginType), batch.Packaged, batch.Archived, batch.CreatedAt,
		})
	}
	if err := writeRows(f, sheetBatches, batchRows); err != nil {
		return err
	}

	eventRows := [][]interface{}{{
		"Event ID", "Batch ID", "Event Type", "Facility ID", "Area ID", "User ID",
		"Quantity", "Unit", "Quantity Before", "Quantity After", "Reason", "Method",
		"From", "To", "Occurred At",
	}}
	for _, e := range b.Events {
		eventRows = append(eventRows, []interface{}{
			e.ID.String(), uuidCell(e.BatchID), string(e.EventType), e.FacilityID.String(), e.AreaID.String(), e.UserID.String(),
			decimalCell(e.Quantity), string(e.Unit), decimalCell(e.QuantityBefore), decimalCell(e.QuantityAfter), e.Reason, e.Method,
			e.FromLocation, e.ToLocation, e.OccurredAt,
		})
	}
	if err := writeRows(f, sheetEvents, eventRows); err != nil {
		return err
	}

	s := b.Summary
	summaryRows := [][]interface{}{
		{"Tenant", b.Tenant.Name},
		{"Tenant Slug", b.Tenant.Slug},
		{"Period Start", b.Period.StartDate},
		{"Period End", b.Period.EndDate},
		{"Generated At", b.GeneratedAt},
		{"Total Facilities", s.TotalFacilities},
		{"Total Batches", s.TotalBatches},
		{"Active Batches", s.ActiveBatches},
		{"Total Events", s.TotalEvents},
		{"Total Physical Counts", s.TotalPhysicalCounts},
		{"Counts With Variance", s.CountsWithVariance},
		{"Total Loss/Theft Reports", s.TotalLossTheftReports},
		{"Theft Reports", s.TheftReports},
		{"Reports Requiring Health Canada Reporting", s.ReportsRequiringHealthCanada},
		{"Reports Submitted To Health Canada", s.ReportsSubmitted},
		{"Total Estimated Loss Value", s.TotalEstimatedLoss.InexactFloat64()},
	}
	for _, t := range sortedKeys(s.EventsByType) {
		summaryRows = append(summaryRows, []interface{}{"Events: " + string(t), s.EventsByType[t]})
	}
	if err := writeRows(f, sheetSummary, summaryRows); err != nil {
		return err
	}

	return f.Write(w)
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func uuidCell(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func decimalCell(d *decimal.Decimal) interface{} {
	if d == nil {
		return ""
	}
	return d.InexactFloat64()
}
