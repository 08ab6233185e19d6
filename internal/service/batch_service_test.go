package service_test

import (
	"testing"

	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/service"
	"github.com/straye-as/cultivation-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createBatchRequest(f *testutil.Fixture, name, qty string) *domain.CreateBatchRequest {
	return &domain.CreateBatchRequest{
		Name:              name,
		CultivationAreaID: f.AreaA.ID,
		Quantity:          decPtr(qty),
		Unit:              domain.UnitGrams,
		EndType:           domain.EndTypeDried,
		ProductType:       domain.ProductDriedCannabis,
		OriginType:        domain.OriginInternal,
	}
}

func TestBatchService_CreateRecordsCreationEvent(t *testing.T) {
	s := setupServices(t)
	ctx := s.f.Context(domain.RoleCultivator)

	dto, err := s.batches.Create(ctx, createBatchRequest(s.f, "Blue Dream #1", "250"))
	require.NoError(t, err)
	assert.Equal(t, s.f.Facility.ID, dto.FacilityID)
	assertDec(t, "250", dto.CurrentQuantity)
	assert.Nil(t, dto.RetentionExpiresAt)

	events := eventsOf(t, s.db, dto.ID)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventCreation, events[0].EventType)
	assert.Equal(t, s.f.UserID, events[0].UserID)
	assertDec(t, "0", *events[0].QuantityBefore)
	assertDec(t, "250", *events[0].QuantityAfter)
}

func TestBatchService_CreateStampsRetentionExpiry(t *testing.T) {
	s := setupServices(t)
	s.f.AddRetentionPolicy(t, s.db, domain.RecordBatch, 24)

	dto, err := s.batches.Create(s.f.Context(domain.RoleCultivator), createBatchRequest(s.f, "Kept", "10"))
	require.NoError(t, err)
	require.NotNil(t, dto.RetentionExpiresAt)

	batch := testutil.ReloadBatch(t, s.db, dto.ID)
	require.NotNil(t, batch.RetentionExpiresAt)
	assert.Equal(t, batch.CreatedAt.AddDate(2, 0, 0).Year(), batch.RetentionExpiresAt.Year())
}

func TestBatchService_CreateValidation(t *testing.T) {
	s := setupServices(t)
	ctx := s.f.Context(domain.RoleCultivator)

	tests := []struct {
		name   string
		mutate func(*domain.CreateBatchRequest)
		field  string
	}{
		{"missing name", func(r *domain.CreateBatchRequest) { r.Name = "" }, "name"},
		{"missing quantity", func(r *domain.CreateBatchRequest) { r.Quantity = nil }, "quantity"},
		{"negative quantity", func(r *domain.CreateBatchRequest) { r.Quantity = decPtr("-1") }, "quantity"},
		{"unknown unit", func(r *domain.CreateBatchRequest) { r.Unit = "lb" }, "unit"},
		{"unknown product type", func(r *domain.CreateBatchRequest) { r.ProductType = "pre_rolls" }, "productType"},
		{"purchase without details", func(r *domain.CreateBatchRequest) { r.OriginType = domain.OriginExternalPurchase }, "originDetails"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := createBatchRequest(s.f, "Batch", "10")
			tt.mutate(req)
			_, err := s.batches.Create(ctx, req)
			assertValidation(t, err, tt.field)
		})
	}

	t.Run("area of another tenant", func(t *testing.T) {
		south := testutil.NewFixture(t, s.db, "south")
		req := createBatchRequest(south, "Batch", "10")
		_, err := s.batches.Create(ctx, req)
		assertValidation(t, err, "cultivationAreaId")
	})

	var n int64
	require.NoError(t, s.db.Model(&domain.Batch{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestBatchService_ListIsCachedUntilWrite(t *testing.T) {
	s := setupServices(t)
	ctx := s.f.Context(domain.RoleViewer)
	writer := s.f.Context(domain.RoleCultivator)

	_, err := s.batches.Create(writer, createBatchRequest(s.f, "First", "10"))
	require.NoError(t, err)

	list, err := s.batches.List(ctx, service.BatchListParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.Total)

	// written behind the service's back, so the cached page is served
	s.f.CreateBatch(t, s.db, "Direct", 5, domain.UnitGrams)
	list, err = s.batches.List(ctx, service.BatchListParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.Total)

	_, err = s.batches.Create(writer, createBatchRequest(s.f, "Second", "10"))
	require.NoError(t, err)
	list, err = s.batches.List(ctx, service.BatchListParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), list.Total)
	assert.Len(t, list.Data, 3)
}

func TestBatchService_ListIsTenantScoped(t *testing.T) {
	s := setupServices(t)
	south := testutil.NewFixture(t, s.db, "south")
	s.f.CreateBatch(t, s.db, "North batch", 10, domain.UnitGrams)
	south.CreateBatch(t, s.db, "South batch", 10, domain.UnitGrams)

	list, err := s.batches.List(south.Context(domain.RoleViewer), service.BatchListParams{})
	require.NoError(t, err)
	require.Equal(t, int64(1), list.Total)
	data := list.Data.([]domain.BatchDTO)
	assert.Equal(t, "South batch", data[0].Name)
}

func TestBatchService_DeleteBlockedByLedger(t *testing.T) {
	s := setupServices(t)
	ctx := s.f.Context(domain.RoleCultivator)

	created, err := s.batches.Create(ctx, createBatchRequest(s.f, "Logged", "10"))
	require.NoError(t, err)
	var conflict *service.ConflictError
	err = s.batches.Delete(ctx, created.ID)
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(1), conflict.Dependents["traceability events"])

	bare := s.f.CreateBatch(t, s.db, "Never used", 1, domain.UnitGrams)
	require.NoError(t, s.batches.Delete(ctx, bare.ID))
	_, err = s.batches.GetByID(ctx, bare.ID)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestBatchService_EventsAndLineage(t *testing.T) {
	s := setupServices(t)
	ctx := s.f.Context(domain.RoleCultivator)

	created, err := s.batches.Create(ctx, createBatchRequest(s.f, "Mother", "100"))
	require.NoError(t, err)
	result, err := s.mutations.Split(ctx, &domain.SplitMutation{
		BatchID:           created.ID,
		Quantity:          decPtr("25"),
		DestinationAreaID: s.f.AreaB.ID,
		NewBatchName:      "Daughter",
	})
	require.NoError(t, err)

	events, err := s.batches.Events(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventCreation, events[0].EventType)
	assert.Equal(t, domain.EventMovement, events[1].EventType)

	lineage, err := s.batches.Lineage(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, lineage.Parents)
	require.Len(t, lineage.Children, 1)
	assert.Equal(t, result.NewBatch.ID, lineage.Children[0].ChildBatchID)

	childLineage, err := s.batches.Lineage(ctx, result.NewBatch.ID)
	require.NoError(t, err)
	require.Len(t, childLineage.Parents, 1)
	assert.Equal(t, created.ID, childLineage.Parents[0].ParentBatchID)
}

func TestBatchService_UpdateLeavesQuantityAlone(t *testing.T) {
	s := setupServices(t)
	ctx := s.f.Context(domain.RoleCultivator)
	batch := s.f.CreateBatch(t, s.db, "Old name", 42, domain.UnitGrams)

	dto, err := s.batches.Update(ctx, batch.ID, &domain.UpdateBatchRequest{Name: "New name", Packaged: true})
	require.NoError(t, err)
	assert.Equal(t, "New name", dto.Name)

	reloaded := testutil.ReloadBatch(t, s.db, batch.ID)
	assert.Equal(t, "New name", reloaded.Name)
	assert.True(t, reloaded.Packaged)
	assertDec(t, "42", reloaded.Quantity)
	assert.Zero(t, testutil.CountEvents(t, s.db, batch.ID))
}
