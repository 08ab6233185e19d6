package service_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/service"
	"github.com/straye-as/cultivation-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func typeReport(t *testing.T, report *domain.ArchivalReport, recordType domain.RecordType) domain.ArchivalTypeReport {
	t.Helper()
	for _, tr := range report.Types {
		if tr.RecordType == recordType {
			return tr
		}
	}
	t.Fatalf("no %s entry in archival report", recordType)
	return domain.ArchivalTypeReport{}
}

// seedAged creates a batch with a creation event, both created monthsAgo
func seedAged(t *testing.T, s *services, name string, monthsAgo int) (*domain.BatchDTO, uuid.UUID) {
	t.Helper()
	dto, err := s.batches.Create(s.f.Context(domain.RoleCultivator), createBatchRequest(s.f, name, "10"))
	require.NoError(t, err)
	events := eventsOf(t, s.db, dto.ID)
	require.Len(t, events, 1)

	at := time.Now().UTC().AddDate(0, -monthsAgo, 0)
	testutil.Backdate(t, s.db, &domain.Batch{}, dto.ID, at)
	testutil.Backdate(t, s.db, &domain.TraceabilityEvent{}, events[0].ID, at)
	return dto, events[0].ID
}

func TestArchival_DryRunMatchesRealRun(t *testing.T) {
	s := setupServices(t)
	ctx := s.f.Context(domain.RoleComplianceOfficer)
	s.f.AddRetentionPolicy(t, s.db, domain.RecordBatch, 12)
	s.f.AddRetentionPolicy(t, s.db, domain.RecordTraceabilityEvent, 12)

	old, oldEvent := seedAged(t, s, "Old", 14)
	seedAged(t, s, "Recent", 3)

	dry, err := s.archival.Run(ctx, true)
	require.NoError(t, err)
	assert.True(t, dry.DryRun)
	assert.Equal(t, []uuid.UUID{old.ID}, typeReport(t, dry, domain.RecordBatch).CandidateIDs)
	assert.Equal(t, []uuid.UUID{oldEvent}, typeReport(t, dry, domain.RecordTraceabilityEvent).CandidateIDs)
	assert.Zero(t, typeReport(t, dry, domain.RecordBatch).Archived)
	assert.Nil(t, testutil.ReloadBatch(t, s.db, old.ID).ArchivedAt, "a dry run writes nothing")

	run, err := s.archival.Run(ctx, false)
	require.NoError(t, err)
	for _, recordType := range []domain.RecordType{domain.RecordBatch, domain.RecordTraceabilityEvent} {
		assert.Equal(t, typeReport(t, dry, recordType).CandidateIDs, typeReport(t, run, recordType).CandidateIDs)
		assert.Equal(t, 1, typeReport(t, run, recordType).Archived)
	}
	assert.NotNil(t, testutil.ReloadBatch(t, s.db, old.ID).ArchivedAt)

	var event domain.TraceabilityEvent
	require.NoError(t, s.db.First(&event, "id = ?", oldEvent).Error)
	assert.NotNil(t, event.ArchivedAt)
	assert.Error(t, s.db.Save(&event).Error, "archived ledger entries stay immutable")
}

func TestArchival_IsIdempotent(t *testing.T) {
	s := setupServices(t)
	ctx := s.f.Context(domain.RoleSystem)
	s.f.AddRetentionPolicy(t, s.db, domain.RecordBatch, 6)
	seedAged(t, s, "Old", 7)

	first, err := s.archival.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, typeReport(t, first, domain.RecordBatch).Archived)

	second, err := s.archival.Run(ctx, false)
	require.NoError(t, err)
	entry := typeReport(t, second, domain.RecordBatch)
	assert.Empty(t, entry.CandidateIDs)
	assert.Zero(t, entry.Archived)
	assert.Zero(t, second.Candidates())
}

func TestArchival_SkipsInactiveOrMissingPolicies(t *testing.T) {
	s := setupServices(t)
	ctx := s.f.Context(domain.RoleComplianceOfficer)
	inactive := false
	_, err := s.archival.UpsertPolicy(ctx, domain.RecordBatch, &domain.UpsertRetentionPolicyRequest{RetentionMonths: 1, Active: &inactive})
	require.NoError(t, err)
	old, _ := seedAged(t, s, "Old", 30)

	report, err := s.archival.Run(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, report.Types)
	assert.Nil(t, testutil.ReloadBatch(t, s.db, old.ID).ArchivedAt)
}

func TestArchival_ScopedToTenant(t *testing.T) {
	s := setupServices(t)
	south := testutil.NewFixture(t, s.db, "south")
	s.f.AddRetentionPolicy(t, s.db, domain.RecordBatch, 1)
	south.AddRetentionPolicy(t, s.db, domain.RecordBatch, 1)

	northBatch, _ := seedAged(t, s, "North", 5)
	southBatch := south.CreateBatch(t, s.db, "South", 10, domain.UnitGrams)
	testutil.Backdate(t, s.db, &domain.Batch{}, southBatch.ID, time.Now().AddDate(0, -5, 0))

	_, err := s.archival.Run(s.f.Context(domain.RoleSystem), false)
	require.NoError(t, err)
	assert.NotNil(t, testutil.ReloadBatch(t, s.db, northBatch.ID).ArchivedAt)
	assert.Nil(t, testutil.ReloadBatch(t, s.db, southBatch.ID).ArchivedAt)
}

func TestArchival_Policies(t *testing.T) {
	s := setupServices(t)
	ctx := s.f.Context(domain.RoleComplianceOfficer)

	dto, err := s.archival.UpsertPolicy(ctx, domain.RecordPhysicalCount, &domain.UpsertRetentionPolicyRequest{RetentionMonths: 24})
	require.NoError(t, err)
	assert.True(t, dto.Active)
	assert.Equal(t, 24, dto.RetentionMonths)

	dto, err = s.archival.UpsertPolicy(ctx, domain.RecordPhysicalCount, &domain.UpsertRetentionPolicyRequest{RetentionMonths: 36})
	require.NoError(t, err)
	assert.Equal(t, 36, dto.RetentionMonths)

	policies, err := s.archival.ListPolicies(ctx)
	require.NoError(t, err)
	require.Len(t, policies, 1, "upserting the same record type replaces the policy")

	_, err = s.archival.UpsertPolicy(ctx, "invoices", &domain.UpsertRetentionPolicyRequest{RetentionMonths: 1})
	assertValidation(t, err, "recordType")
	_, err = s.archival.UpsertPolicy(ctx, domain.RecordBatch, &domain.UpsertRetentionPolicyRequest{})
	assertValidation(t, err, "retentionMonths")

	for _, role := range []domain.UserRoleType{domain.RoleCultivator, domain.RoleSystem} {
		_, err = s.archival.ListPolicies(s.f.Context(role))
		assert.ErrorIs(t, err, service.ErrForbidden, role)
	}
	_, err = s.archival.Run(s.f.Context(domain.RoleViewer), true)
	assert.ErrorIs(t, err, service.ErrForbidden)
}
