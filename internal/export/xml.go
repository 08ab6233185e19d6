package export

import (
	"io"
	"sort"
	"strconv"

	"github.com/beevik/etree"
)

// EncodeXML writes the tenant summary. Detail records are not included.
func EncodeXML(w io.Writer, b *Bundle) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("HealthCanadaExport")
	root.CreateAttr("generatedAt", b.GeneratedAt)

	tenant := root.CreateElement("Tenant")
	tenant.CreateAttr("id", b.Tenant.ID.String())
	tenant.CreateAttr("slug", b.Tenant.Slug)
	tenant.CreateElement("Name").SetText(b.Tenant.Name)
	if b.Tenant.LicenseHolder != "" {
		tenant.CreateElement("LicenseHolder").SetText(b.Tenant.LicenseHolder)
	}

	period := tenant.CreateElement("Period")
	if b.Period.StartDate != "" {
		period.CreateAttr("start", b.Period.StartDate)
	}
	if b.Period.EndDate != "" {
		period.CreateAttr("end", b.Period.EndDate)
	}

	s := b.Summary
	summary := tenant.CreateElement("Summary")
	intElement(summary, "TotalFacilities", s.TotalFacilities)
	intElement(summary, "TotalBatches", s.TotalBatches)
	intElement(summary, "ActiveBatches", s.ActiveBatches)

	inventory := summary.CreateElement("Inventory")
	for _, unit := range sortedKeys(s.InventoryByUnit) {
		q := inventory.CreateElement("Quantity")
		q.CreateAttr("unit", string(unit))
		q.SetText(s.InventoryByUnit[unit])
	}

	intElement(summary, "TotalEvents", s.TotalEvents)
	byType := summary.CreateElement("EventsByType")
	for _, t := range sortedKeys(s.EventsByType) {
		e := byType.CreateElement("Event")
		e.CreateAttr("type", string(t))
		e.SetText(strconv.Itoa(s.EventsByType[t]))
	}

	intElement(summary, "TotalPhysicalCounts", s.TotalPhysicalCounts)
	intElement(summary, "CountsWithVariance", s.CountsWithVariance)
	intElement(summary, "TotalLossTheftReports", s.TotalLossTheftReports)
	intElement(summary, "TheftReports", s.TheftReports)
	intElement(summary, "ReportsRequiringHealthCanada", s.ReportsRequiringHealthCanada)
	intElement(summary, "ReportsSubmittedToHealthCanada", s.ReportsSubmitted)

	lost := summary.CreateElement("QuantityLost")
	for _, unit := range sortedKeys(s.QuantityLostByUnit) {
		q := lost.CreateElement("Quantity")
		q.CreateAttr("unit", string(unit))
		q.SetText(s.QuantityLostByUnit[unit])
	}
	summary.CreateElement("TotalEstimatedLossValue").SetText(s.TotalEstimatedLoss.StringFixed(2))

	doc.Indent(2)
	_, err := doc.WriteTo(w)
	return err
}

func intElement(parent *etree.Element, tag string, v int) {
	parent.CreateElement(tag).SetText(strconv.Itoa(v))
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
