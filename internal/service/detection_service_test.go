package service_test

import (
	"testing"
	"time"

	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/notify"
	"github.com/straye-as/cultivation-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingCount(t *testing.T, s *services, batch *domain.Batch, variance string, age time.Duration) *domain.PhysicalCount {
	t.Helper()
	v := testutil.Dec(variance)
	count := &domain.PhysicalCount{
		TenantID:         s.f.Tenant.ID,
		FacilityID:       batch.FacilityID,
		BatchID:          batch.ID,
		CountDate:        time.Now().UTC().Add(-age),
		ExpectedQuantity: batch.Quantity,
		CountedQuantity:  batch.Quantity.Add(v),
		Variance:         v,
		Unit:             batch.Unit,
		CountedBy:        s.f.UserID,
		Status:           domain.CountPending,
	}
	require.NoError(t, s.db.Create(count).Error)
	return count
}

func TestVarianceAlerts_Severity(t *testing.T) {
	s := setupServices(t)
	batch := s.f.CreateBatch(t, s.db, "Flower", 1000, domain.UnitGrams)
	day := 24 * time.Hour

	fresh := pendingCount(t, s, batch, "-20", time.Hour)
	large := pendingCount(t, s, batch, "150", time.Hour)
	stale := pendingCount(t, s, batch, "-5", 8*day)
	pendingCount(t, s, batch, "0", 30*day)

	alerts, err := s.detection.VarianceAlerts(s.f.Context(domain.RoleViewer))
	require.NoError(t, err)
	require.Len(t, alerts, 3, "counts without variance raise no alert")

	bySeverity := map[string]domain.Severity{}
	for _, a := range alerts {
		bySeverity[a.CountID.String()] = a.Severity
		assert.Equal(t, "Flower", a.BatchName)
	}
	assert.Equal(t, domain.SeverityMedium, bySeverity[fresh.ID.String()])
	assert.Equal(t, domain.SeverityHigh, bySeverity[large.ID.String()])
	assert.Equal(t, domain.SeverityHigh, bySeverity[stale.ID.String()])

	assert.Equal(t, domain.SeverityMedium, alerts[len(alerts)-1].Severity, "high severity sorts first")
	assert.Equal(t, large.ID, alerts[0].CountID)
	assert.Equal(t, 8, alerts[1].DaysPending)
}

func TestVarianceAlerts_NormalizeUnits(t *testing.T) {
	s := setupServices(t)
	grams := s.f.CreateBatch(t, s.db, "Flower", 1000, domain.UnitGrams)
	kilos := s.f.CreateBatch(t, s.db, "Trim", 20, domain.UnitKilograms)

	small := pendingCount(t, s, grams, "-20", time.Hour)
	large := pendingCount(t, s, grams, "150", time.Hour)
	heavy := pendingCount(t, s, kilos, "-0.5", time.Hour)
	light := pendingCount(t, s, kilos, "-0.002", time.Hour)

	alerts, err := s.detection.VarianceAlerts(s.f.Context(domain.RoleViewer))
	require.NoError(t, err)
	require.Len(t, alerts, 4)

	assert.Equal(t, heavy.ID, alerts[0].CountID, "500 g outranks 150 g")
	assert.Equal(t, domain.SeverityHigh, alerts[0].Severity)
	assertDec(t, "-0.5", alerts[0].Discrepancy)
	assert.Equal(t, domain.UnitKilograms, alerts[0].Unit)
	assert.Equal(t, large.ID, alerts[1].CountID)
	assert.Equal(t, small.ID, alerts[2].CountID)
	assert.Equal(t, domain.SeverityMedium, alerts[2].Severity)
	assert.Equal(t, light.ID, alerts[3].CountID, "2 g ranks below 20 g")
	assert.Equal(t, domain.SeverityMedium, alerts[3].Severity)
}

func TestVarianceAlerts_IgnoreResolvedAndOtherTenants(t *testing.T) {
	s := setupServices(t)
	batch := s.f.CreateBatch(t, s.db, "Flower", 100, domain.UnitGrams)
	resolved := pendingCount(t, s, batch, "-3", time.Hour)
	require.NoError(t, s.db.Model(resolved).Update("status", domain.CountResolved).Error)

	south := testutil.NewFixture(t, s.db, "south")
	southBatch := south.CreateBatch(t, s.db, "South", 100, domain.UnitGrams)
	require.NoError(t, s.db.Create(&domain.PhysicalCount{
		TenantID: south.Tenant.ID, FacilityID: south.Facility.ID, BatchID: southBatch.ID,
		CountDate: time.Now().UTC(), ExpectedQuantity: testutil.Dec("100"), CountedQuantity: testutil.Dec("90"),
		Variance: testutil.Dec("-10"), Unit: domain.UnitGrams, CountedBy: south.UserID, Status: domain.CountPending,
	}).Error)

	alerts, err := s.detection.VarianceAlerts(s.f.Context(domain.RoleViewer))
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestTheftPatterns(t *testing.T) {
	s := setupServices(t)
	f := s.f
	ctx := f.Context(domain.RoleCultivator)
	batch := f.CreateBatch(t, s.db, "Flower", 1000, domain.UnitGrams)

	base := time.Now().UTC().AddDate(0, 0, -3).Truncate(time.Hour)
	for i := 0; i < 3; i++ {
		at := base.AddDate(0, 0, -i)
		req := lossTheft(f, batch.ID, "1", domain.UnitGrams, domain.IncidentLoss)
		req.OccurredAt = &at
		_, err := s.mutations.RegisterEvent(ctx, req)
		require.NoError(t, err)
	}
	outside := time.Now().UTC().AddDate(0, 0, -45)
	req := lossTheft(f, batch.ID, "1", domain.UnitGrams, domain.IncidentLoss)
	req.OccurredAt = &outside
	_, err := s.mutations.RegisterEvent(ctx, req)
	require.NoError(t, err)

	patterns, err := s.detection.TheftPatterns(f.Context(domain.RoleViewer))
	require.NoError(t, err)
	require.Len(t, patterns, 2)

	assert.Equal(t, domain.PatternMultipleLosses, patterns[0].Type)
	require.NotNil(t, patterns[0].FacilityID)
	assert.Equal(t, f.Facility.ID, *patterns[0].FacilityID)
	assert.Equal(t, 3, patterns[0].Incidents, "events outside the window are ignored")

	assert.Equal(t, domain.PatternTimeCluster, patterns[1].Type)
	require.NotNil(t, patterns[1].Hour)
	assert.Equal(t, base.Hour(), *patterns[1].Hour)
	assert.Equal(t, 30, patterns[1].WindowDays)
}

func TestCheckAlerts_NotifiesOnlyWhenAsked(t *testing.T) {
	s := setupServices(t)
	batch := s.f.CreateBatch(t, s.db, "Flower", 100, domain.UnitGrams)
	pendingCount(t, s, batch, "-12", time.Hour)
	ctx := s.f.Context(domain.RoleSystem)

	summary, err := s.detection.CheckAlerts(ctx, false)
	require.NoError(t, err)
	assert.Len(t, summary.VarianceAlerts, 1)
	assert.Zero(t, summary.Notified)
	assert.Empty(t, s.notifier.all())

	summary, err = s.detection.CheckAlerts(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Notified)
	sent := s.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, notify.TypeVarianceAlert, sent[0].Type)
	assert.Equal(t, s.f.Tenant.ID, sent[0].TenantID)
	assert.Equal(t, "physical_count", sent[0].EntityType)
}
