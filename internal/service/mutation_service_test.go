package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/notify"
	"github.com/straye-as/cultivation-api/internal/service"
	"github.com/straye-as/cultivation-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func eventsOf(t *testing.T, db *gorm.DB, batchID uuid.UUID) []domain.TraceabilityEvent {
	t.Helper()
	var events []domain.TraceabilityEvent
	require.NoError(t, db.Where("batch_id = ?", batchID).Order("occurred_at ASC").Find(&events).Error)
	return events
}

func assertInvariant(t *testing.T, err error) {
	t.Helper()
	var ie *service.InvariantError
	require.Error(t, err)
	assert.True(t, errors.As(err, &ie), "expected an invariant error, got %v", err)
}

func assertValidation(t *testing.T, err error, field string) {
	t.Helper()
	var ve *service.ValidationError
	require.Error(t, err)
	require.True(t, errors.As(err, &ve), "expected a validation error, got %v", err)
	assert.Contains(t, ve.Fields, field)
}

func TestSplit_MovesQuantityIntoNewBatch(t *testing.T) {
	s := setupServices(t)
	f := s.f
	ctx := f.Context(domain.RoleCultivator)
	source := f.CreateBatch(t, s.db, "Mother", 100, domain.UnitGrams)

	result, err := s.mutations.Split(ctx, &domain.SplitMutation{
		BatchID:           source.ID,
		Quantity:          decPtr("30"),
		DestinationAreaID: f.AreaB.ID,
		NewBatchName:      "Mother / B",
	})
	require.NoError(t, err)

	assertDec(t, "70", testutil.ReloadBatch(t, s.db, source.ID).Quantity)
	child := testutil.ReloadBatch(t, s.db, result.NewBatch.ID)
	assertDec(t, "30", child.Quantity)
	assert.Equal(t, f.AreaB.ID, child.CultivationAreaID)
	assert.Equal(t, source.ProductType, child.ProductType)

	events := eventsOf(t, s.db, source.ID)
	require.Len(t, events, 1, "a mutation appends exactly one event")
	assert.Equal(t, domain.EventMovement, events[0].EventType)
	assert.Equal(t, "Room A", events[0].FromLocation)
	assert.Equal(t, "Room B", events[0].ToLocation)
	require.NotNil(t, events[0].NewBatchID)
	assert.Equal(t, child.ID, *events[0].NewBatchID)
	assertDec(t, "100", *events[0].QuantityBefore)
	assertDec(t, "70", *events[0].QuantityAfter)

	var edges []domain.BatchLineage
	require.NoError(t, s.db.Where("parent_batch_id = ?", source.ID).Find(&edges).Error)
	require.Len(t, edges, 1)
	assert.Equal(t, child.ID, edges[0].ChildBatchID)
	assert.Equal(t, domain.LineageSplit, edges[0].Relation)
	assert.Equal(t, events[0].ID, edges[0].EventID)
}

func TestSplit_QuantityBounds(t *testing.T) {
	s := setupServices(t)
	f := s.f
	ctx := f.Context(domain.RoleCultivator)
	source := f.CreateBatch(t, s.db, "Mother", 100, domain.UnitGrams)

	for _, q := range []string{"0", "-5", "100", "150"} {
		t.Run(q, func(t *testing.T) {
			_, err := s.mutations.Split(ctx, &domain.SplitMutation{
				BatchID:           source.ID,
				Quantity:          decPtr(q),
				DestinationAreaID: f.AreaB.ID,
				NewBatchName:      "Child",
			})
			assertInvariant(t, err)
		})
	}

	t.Run("missing quantity", func(t *testing.T) {
		_, err := s.mutations.Split(ctx, &domain.SplitMutation{
			BatchID:           source.ID,
			DestinationAreaID: f.AreaB.ID,
			NewBatchName:      "Child",
		})
		assertValidation(t, err, "quantity")
	})

	assertDec(t, "100", testutil.ReloadBatch(t, s.db, source.ID).Quantity)
	assert.Zero(t, testutil.CountEvents(t, s.db, source.ID))
	var batches int64
	require.NoError(t, s.db.Model(&domain.Batch{}).Count(&batches).Error)
	assert.Equal(t, int64(1), batches)
}

func TestProcess(t *testing.T) {
	s := setupServices(t)
	ctx := s.f.Context(domain.RoleCultivator)
	batch := s.f.CreateBatch(t, s.db, "Flower", 100, domain.UnitGrams)

	t.Run("rejects bounds", func(t *testing.T) {
		for _, q := range []string{"0", "120"} {
			_, err := s.mutations.Process(ctx, &domain.ProcessMutation{
				BatchID:           batch.ID,
				ProcessedQuantity: decPtr(q),
				Method:            "extraction",
				NewProductType:    domain.ProductExtractsInhaled,
			})
			assertInvariant(t, err)
		}
	})

	t.Run("requires method", func(t *testing.T) {
		_, err := s.mutations.Process(ctx, &domain.ProcessMutation{
			BatchID:           batch.ID,
			ProcessedQuantity: decPtr("80"),
			NewProductType:    domain.ProductExtractsInhaled,
		})
		assertValidation(t, err, "method")
	})

	t.Run("transforms batch", func(t *testing.T) {
		result, err := s.mutations.Process(ctx, &domain.ProcessMutation{
			BatchID:           batch.ID,
			ProcessedQuantity: decPtr("80"),
			Method:            "extraction",
			NewProductType:    domain.ProductExtractsInhaled,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.MutationProcess, result.Kind)

		reloaded := testutil.ReloadBatch(t, s.db, batch.ID)
		assertDec(t, "80", reloaded.Quantity)
		assert.Equal(t, domain.ProductExtractsInhaled, reloaded.ProductType)

		events := eventsOf(t, s.db, batch.ID)
		require.Len(t, events, 1)
		assert.Equal(t, domain.EventProcessing, events[0].EventType)
		assertDec(t, "20", *events[0].Quantity)
		assert.Equal(t, "extraction", events[0].Method)
	})
}

func TestAdjust(t *testing.T) {
	s := setupServices(t)
	ctx := s.f.Context(domain.RoleCultivator)
	batch := s.f.CreateBatch(t, s.db, "Flower", 1000, domain.UnitGrams)

	_, err := s.mutations.Adjust(ctx, &domain.AdjustMutation{
		BatchID: batch.ID, Delta: decPtr("-0.25"), Unit: domain.UnitKilograms, Reason: "Moisture loss",
	})
	require.NoError(t, err)
	assertDec(t, "750", testutil.ReloadBatch(t, s.db, batch.ID).Quantity)

	events := eventsOf(t, s.db, batch.ID)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventInventoryAdjustment, events[0].EventType)
	assertDec(t, "-250", *events[0].Quantity)
	assert.Equal(t, domain.UnitGrams, events[0].Unit)

	tests := []struct {
		name  string
		m     *domain.AdjustMutation
		field string
	}{
		{"below zero", &domain.AdjustMutation{BatchID: batch.ID, Delta: decPtr("-2"), Unit: domain.UnitKilograms, Reason: "x"}, ""},
		{"zero delta", &domain.AdjustMutation{BatchID: batch.ID, Delta: decPtr("0"), Unit: domain.UnitGrams, Reason: "x"}, "quantity"},
		{"incompatible unit", &domain.AdjustMutation{BatchID: batch.ID, Delta: decPtr("3"), Unit: domain.UnitCount, Reason: "x"}, "unit"},
		{"missing reason", &domain.AdjustMutation{BatchID: batch.ID, Delta: decPtr("3"), Unit: domain.UnitGrams}, "reason"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.mutations.Adjust(ctx, tt.m)
			if tt.field == "" {
				assertInvariant(t, err)
			} else {
				assertValidation(t, err, tt.field)
			}
		})
	}
	assertDec(t, "750", testutil.ReloadBatch(t, s.db, batch.ID).Quantity)
	assert.Equal(t, int64(1), testutil.CountEvents(t, s.db, batch.ID))
}

func TestRegisterEvent_DecrementingEvents(t *testing.T) {
	s := setupServices(t)
	f := s.f
	ctx := f.Context(domain.RoleCultivator)
	batch := f.CreateBatch(t, s.db, "Flower", 100, domain.UnitGrams)

	register := func(m domain.EventOnlyMutation) error {
		m.BatchID = &batch.ID
		m.FacilityID = f.Facility.ID
		m.AreaID = f.AreaA.ID
		_, err := s.mutations.RegisterEvent(ctx, &domain.RegisterEventRequest{EventOnlyMutation: m})
		return err
	}

	require.NoError(t, register(domain.EventOnlyMutation{
		EventType: domain.EventSampling, Quantity: decPtr("5"), Unit: domain.UnitGrams, Reason: "Lab potency test",
	}))
	require.NoError(t, register(domain.EventOnlyMutation{
		EventType: domain.EventDestruction, Quantity: decPtr("0.01"), Unit: domain.UnitKilograms,
		Method: "composting", Reason: "Mould",
	}))
	assertDec(t, "85", testutil.ReloadBatch(t, s.db, batch.ID).Quantity)

	err := register(domain.EventOnlyMutation{
		EventType: domain.EventSampling, Quantity: decPtr("90"), Unit: domain.UnitGrams, Reason: "Too much",
	})
	assertInvariant(t, err)

	err = register(domain.EventOnlyMutation{
		EventType: domain.EventDestruction, Quantity: decPtr("1"), Unit: domain.UnitGrams, Reason: "Mould",
	})
	assertValidation(t, err, "method")

	assertDec(t, "85", testutil.ReloadBatch(t, s.db, batch.ID).Quantity)
	assert.Equal(t, int64(2), testutil.CountEvents(t, s.db, batch.ID))
}

func TestRegisterEvent_Movement(t *testing.T) {
	s := setupServices(t)
	f := s.f
	ctx := f.Context(domain.RoleCultivator)
	batch := f.CreateBatch(t, s.db, "Clones", 40, domain.UnitCount)

	_, err := s.mutations.RegisterEvent(ctx, &domain.RegisterEventRequest{EventOnlyMutation: domain.EventOnlyMutation{
		EventType:  domain.EventMovement,
		BatchID:    &batch.ID,
		FacilityID: f.Facility.ID,
		AreaID:     f.AreaA.ID,
		ToAreaID:   &f.AreaB.ID,
		ToLocation: "Room B",
	}})
	require.NoError(t, err)

	assert.Equal(t, f.AreaB.ID, testutil.ReloadBatch(t, s.db, batch.ID).CultivationAreaID)
	events := eventsOf(t, s.db, batch.ID)
	require.Len(t, events, 1)
	assert.Equal(t, "Room A", events[0].FromLocation)

	t.Run("other facility", func(t *testing.T) {
		other := &domain.Facility{TenantID: f.Tenant.ID, Name: "Annex", LicenseNumber: "LIC-annex"}
		require.NoError(t, s.db.Create(other).Error)
		area := &domain.CultivationArea{TenantID: f.Tenant.ID, FacilityID: other.ID, Name: "Annex room"}
		require.NoError(t, s.db.Create(area).Error)

		_, err := s.mutations.RegisterEvent(ctx, &domain.RegisterEventRequest{EventOnlyMutation: domain.EventOnlyMutation{
			EventType:  domain.EventMovement,
			BatchID:    &batch.ID,
			FacilityID: f.Facility.ID,
			AreaID:     f.AreaB.ID,
			ToAreaID:   &area.ID,
			ToLocation: "Annex room",
		}})
		assertValidation(t, err, "toAreaId")
		assert.Equal(t, f.AreaB.ID, testutil.ReloadBatch(t, s.db, batch.ID).CultivationAreaID)
	})
}

func TestRegisterEvent_HarvestRecordsLineage(t *testing.T) {
	s := setupServices(t)
	f := s.f
	ctx := f.Context(domain.RoleCultivator)
	plants := f.CreateBatch(t, s.db, "Plants", 20, domain.UnitCount)
	flower := f.CreateBatch(t, s.db, "Wet flower", 0.001, domain.UnitGrams)

	result, err := s.mutations.RegisterEvent(ctx, &domain.RegisterEventRequest{EventOnlyMutation: domain.EventOnlyMutation{
		EventType:  domain.EventHarvest,
		BatchID:    &plants.ID,
		FacilityID: f.Facility.ID,
		AreaID:     f.AreaA.ID,
		Quantity:   decPtr("2400"),
		NewBatchID: &flower.ID,
	}})
	require.NoError(t, err)
	require.NotNil(t, result.Lineage)
	assert.Equal(t, domain.LineageHarvest, result.Lineage.Relation)
	assert.Equal(t, domain.UnitGrams, result.Lineage.Unit, "harvest weight defaults to grams")
	assertDec(t, "20", testutil.ReloadBatch(t, s.db, plants.ID).Quantity)

	_, err = s.mutations.RegisterEvent(ctx, &domain.RegisterEventRequest{EventOnlyMutation: domain.EventOnlyMutation{
		EventType:  domain.EventHarvest,
		BatchID:    &plants.ID,
		FacilityID: f.Facility.ID,
		AreaID:     f.AreaA.ID,
		Quantity:   decPtr("1"),
		NewBatchID: &plants.ID,
	}})
	assertValidation(t, err, "newBatchId")
}

func TestRegisterEvent_RoutesQuantityChangingTypes(t *testing.T) {
	s := setupServices(t)
	f := s.f
	ctx := f.Context(domain.RoleCultivator)
	batch := f.CreateBatch(t, s.db, "Flower", 100, domain.UnitGrams)

	base := domain.EventOnlyMutation{BatchID: &batch.ID, FacilityID: f.Facility.ID, AreaID: f.AreaA.ID}

	adjust := base
	adjust.EventType = domain.EventInventoryAdjustment
	adjust.Quantity = decPtr("10")
	adjust.Unit = domain.UnitGrams
	adjust.Reason = "Recount"
	result, err := s.mutations.RegisterEvent(ctx, &domain.RegisterEventRequest{EventOnlyMutation: adjust})
	require.NoError(t, err)
	assert.Equal(t, domain.MutationAdjust, result.Kind)
	assertDec(t, "110", testutil.ReloadBatch(t, s.db, batch.ID).Quantity)

	process := base
	process.EventType = domain.EventProcessing
	process.Method = "trim"
	result, err = s.mutations.RegisterEvent(ctx, &domain.RegisterEventRequest{
		EventOnlyMutation: process,
		ProcessedQuantity: decPtr("90"),
		NewProductType:    domain.ProductDriedCannabis,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MutationProcess, result.Kind)
	assertDec(t, "90", testutil.ReloadBatch(t, s.db, batch.ID).Quantity)

	creation := base
	creation.EventType = domain.EventCreation
	_, err = s.mutations.RegisterEvent(ctx, &domain.RegisterEventRequest{EventOnlyMutation: creation})
	assertValidation(t, err, "eventType")

	unknown := base
	unknown.EventType = "teleport"
	_, err = s.mutations.RegisterEvent(ctx, &domain.RegisterEventRequest{EventOnlyMutation: unknown})
	assertValidation(t, err, "eventType")

	assert.Equal(t, int64(2), testutil.CountEvents(t, s.db, batch.ID))
}

func lossTheft(f *testutil.Fixture, batchID uuid.UUID, qty string, unit domain.Unit, incident domain.IncidentType) *domain.RegisterEventRequest {
	return &domain.RegisterEventRequest{EventOnlyMutation: domain.EventOnlyMutation{
		EventType:    domain.EventLossTheft,
		BatchID:      &batchID,
		FacilityID:   f.Facility.ID,
		AreaID:       f.AreaA.ID,
		Quantity:     decPtr(qty),
		Unit:         unit,
		Reason:       "Discrepancy found on inspection",
		IncidentType: incident,
	}}
}

func TestRegisterEvent_LossTheftFilesReport(t *testing.T) {
	s := setupServices(t)
	f := s.f
	ctx := f.Context(domain.RoleCultivator)
	batch := f.CreateBatch(t, s.db, "Flower", 500, domain.UnitGrams)
	year := time.Now().UTC().Year()

	tests := []struct {
		name     string
		qty      string
		unit     domain.Unit
		incident domain.IncidentType
		urgent   bool
	}{
		{"small loss", "5", domain.UnitGrams, domain.IncidentLoss, false},
		{"loss over quantity threshold", "0.06", domain.UnitKilograms, domain.IncidentLoss, true},
		{"any theft", "1", domain.UnitGrams, domain.IncidentTheft, true},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := s.mutations.RegisterEvent(ctx, lossTheft(f, batch.ID, tt.qty, tt.unit, tt.incident))
			require.NoError(t, err)
			require.NotNil(t, result.Report)

			report := result.Report
			assert.Equal(t, fmt.Sprintf("LT-%d-%03d", year, i+1), report.ReportNumber)
			assert.Equal(t, tt.urgent, report.Urgent)
			assert.Equal(t, tt.urgent, report.RequiresHealthCanadaReporting(testutil.Thresholds()))
			require.NotNil(t, report.EventID)
			assert.Equal(t, result.Event.ID, *report.EventID)

			sent := s.notifier.all()
			require.Len(t, sent, i+1)
			last := sent[i]
			assert.Equal(t, notify.TypeLossTheft, last.Type)
			if tt.urgent {
				assert.Equal(t, domain.SeverityUrgent, last.Severity)
			} else {
				assert.Equal(t, domain.SeverityHigh, last.Severity)
			}
		})
	}

	assertDec(t, "434", testutil.ReloadBatch(t, s.db, batch.ID).Quantity)
	var reports int64
	require.NoError(t, s.db.Model(&domain.LossTheftReport{}).Count(&reports).Error)
	assert.Equal(t, int64(3), reports)
}

func TestRegisterEvent_LossTheftUsesTenantThresholds(t *testing.T) {
	s := setupServices(t)
	f := s.f
	ctx := f.Context(domain.RoleCultivator)
	batch := f.CreateBatch(t, s.db, "Flower", 500, domain.UnitGrams)
	require.NoError(t, s.db.Model(f.Tenant).Update("loss_quantity_threshold", testutil.Dec("200")).Error)

	result, err := s.mutations.RegisterEvent(ctx, lossTheft(f, batch.ID, "60", domain.UnitGrams, domain.IncidentLoss))
	require.NoError(t, err)
	assert.False(t, result.Report.Urgent)

	result, err = s.mutations.RegisterEvent(ctx, lossTheft(f, batch.ID, "201", domain.UnitGrams, domain.IncidentLoss))
	require.NoError(t, err)
	assert.True(t, result.Report.Urgent)
	assert.Equal(t, domain.SeverityUrgent, s.notifier.all()[1].Severity)
}

func TestApply_RejectsArchivedBatch(t *testing.T) {
	s := setupServices(t)
	ctx := s.f.Context(domain.RoleCultivator)
	batch := s.f.CreateBatch(t, s.db, "Old", 100, domain.UnitGrams)
	require.NoError(t, s.db.Model(batch).UpdateColumn("archived_at", time.Now().UTC()).Error)

	_, err := s.mutations.Adjust(ctx, &domain.AdjustMutation{
		BatchID: batch.ID, Delta: decPtr("1"), Unit: domain.UnitGrams, Reason: "x",
	})
	assertInvariant(t, err)
	assert.Zero(t, testutil.CountEvents(t, s.db, batch.ID))
}

func TestApply_RollsBackWhenEventWriteFails(t *testing.T) {
	s := setupServices(t)
	f := s.f
	ctx := f.Context(domain.RoleCultivator)
	source := f.CreateBatch(t, s.db, "Mother", 100, domain.UnitGrams)

	injected := errors.New("disk full")
	require.NoError(t, s.db.Callback().Create().Before("gorm:create").Register("test:fail_events", func(tx *gorm.DB) {
		if tx.Statement.Table == "traceability_events" {
			_ = tx.AddError(injected)
		}
	}))

	_, err := s.mutations.Split(ctx, &domain.SplitMutation{
		BatchID:           source.ID,
		Quantity:          decPtr("40"),
		DestinationAreaID: f.AreaB.ID,
		NewBatchName:      "Child",
	})
	require.ErrorIs(t, err, injected)

	assertDec(t, "100", testutil.ReloadBatch(t, s.db, source.ID).Quantity)
	var batches, edges int64
	require.NoError(t, s.db.Model(&domain.Batch{}).Count(&batches).Error)
	require.NoError(t, s.db.Model(&domain.BatchLineage{}).Count(&edges).Error)
	assert.Equal(t, int64(1), batches, "split batch must be rolled back")
	assert.Zero(t, edges)
}

func TestApply_AccessControl(t *testing.T) {
	s := setupServices(t)
	f := s.f
	batch := f.CreateBatch(t, s.db, "Flower", 100, domain.UnitGrams)
	adjust := &domain.AdjustMutation{BatchID: batch.ID, Delta: decPtr("1"), Unit: domain.UnitGrams, Reason: "x"}

	t.Run("viewer cannot mutate", func(t *testing.T) {
		_, err := s.mutations.Adjust(f.Context(domain.RoleViewer), adjust)
		assert.ErrorIs(t, err, service.ErrForbidden)
	})

	t.Run("no tenant scope", func(t *testing.T) {
		_, err := s.mutations.Adjust(context.Background(), adjust)
		assert.Error(t, err)
	})

	t.Run("other tenant's batch", func(t *testing.T) {
		south := testutil.NewFixture(t, s.db, "south")
		_, err := s.mutations.Adjust(south.Context(domain.RoleCultivator), adjust)
		assert.ErrorIs(t, err, service.ErrNotFound)
	})

	assertDec(t, "100", testutil.ReloadBatch(t, s.db, batch.ID).Quantity)
}

func TestTraceabilityEvents_AreImmutable(t *testing.T) {
	s := setupServices(t)
	ctx := s.f.Context(domain.RoleCultivator)
	batch := s.f.CreateBatch(t, s.db, "Flower", 100, domain.UnitGrams)
	_, err := s.mutations.Adjust(ctx, &domain.AdjustMutation{
		BatchID: batch.ID, Delta: decPtr("5"), Unit: domain.UnitGrams, Reason: "Recount",
	})
	require.NoError(t, err)

	event := eventsOf(t, s.db, batch.ID)[0]
	event.Description = "rewritten"
	assert.ErrorIs(t, s.db.Save(&event).Error, domain.ErrEventImmutable)
	assert.ErrorIs(t, s.db.Delete(&event).Error, domain.ErrEventImmutable)
	assert.Equal(t, int64(1), testutil.CountEvents(t, s.db, batch.ID))
}
