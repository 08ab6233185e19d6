package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/straye-as/cultivation-api/internal/app"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/storage"
	"github.com/straye-as/cultivation-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type cliEnv struct {
	db      *gorm.DB
	fixture *testutil.Fixture
	store   string
	opened  int
}

// setupCLI points openApp at an in-memory database seeded with one tenant
func setupCLI(t *testing.T) *cliEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	env := &cliEnv{db: db, fixture: testutil.NewFixture(t, db, "north"), store: t.TempDir()}

	original := openApp
	openApp = func(ctx context.Context) (*app.App, error) {
		env.opened++
		store, err := storage.NewLocalStorage(env.store)
		if err != nil {
			return nil, err
		}
		return app.NewWithDB(testutil.Config(), db, store, zap.NewNop()), nil
	}
	t.Cleanup(func() { openApp = original })
	return env
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_UsageErrors(t *testing.T) {
	env := setupCLI(t)

	tests := []struct {
		name   string
		args   []string
		stderr string
	}{
		{"no command", nil, "usage:"},
		{"unknown command", []string{"records:purge"}, `unknown command "records:purge"`},
		{"unknown flag", []string{cmdArchive, "--force"}, "unknown flag"},
		{"unsupported format", []string{cmdExport, "--format=pdf"}, "unsupported export format"},
		{"invalid start date", []string{cmdExport, "--start-date=2024-13-01"}, "invalid date"},
		{"invalid end date", []string{cmdExport, "--end-date=01/02/2024"}, "invalid date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(tt.args...)
			assert.Equal(t, 1, code)
			assert.Contains(t, stderr, tt.stderr)
		})
	}
	assert.Zero(t, env.opened, "argument errors must not open the database")
}

func TestRun_UnknownTenant(t *testing.T) {
	setupCLI(t)

	for _, cmd := range []string{cmdArchive, cmdAlerts, cmdExport} {
		code, stdout, stderr := runCLI(cmd, "--tenant=missing")
		assert.Equal(t, 1, code, cmd)
		assert.Empty(t, stdout, cmd)
		assert.Contains(t, stderr, "unknown tenant", cmd)
	}
}

func TestRun_InactiveTenantIsUnknown(t *testing.T) {
	env := setupCLI(t)
	require.NoError(t, env.db.Model(env.fixture.Tenant).Update("active", false).Error)

	code, _, stderr := runCLI(cmdAlerts, "--tenant=north")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "inactive")
}

func TestRecordsArchive_DryRunThenArchive(t *testing.T) {
	env := setupCLI(t)
	f := env.fixture
	f.AddRetentionPolicy(t, env.db, domain.RecordBatch, 12)

	old := f.CreateBatch(t, env.db, "Old batch", 100, domain.UnitGrams)
	testutil.Backdate(t, env.db, &domain.Batch{}, old.ID, time.Now().AddDate(-2, 0, 0))
	recent := f.CreateBatch(t, env.db, "Recent batch", 100, domain.UnitGrams)

	code, stdout, stderr := runCLI(cmdArchive, "--dry-run", "--tenant=north")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "north: would archive 1 batch record(s)")
	assert.Nil(t, testutil.ReloadBatch(t, env.db, old.ID).ArchivedAt, "dry run must not write")

	code, stdout, stderr = runCLI(cmdArchive, "--tenant", f.Tenant.ID.String())
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "north: archived 1 batch record(s)")
	assert.NotNil(t, testutil.ReloadBatch(t, env.db, old.ID).ArchivedAt)
	assert.Nil(t, testutil.ReloadBatch(t, env.db, recent.ID).ArchivedAt)

	code, stdout, _ = runCLI(cmdArchive)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "north: archived 0 batch record(s)")
}

func TestRecordsArchive_NoPolicies(t *testing.T) {
	setupCLI(t)

	code, stdout, _ := runCLI(cmdArchive)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "north: no active retention policies")
}

func TestCheckAlerts_ReportsAndNotifies(t *testing.T) {
	env := setupCLI(t)
	f := env.fixture
	batch := f.CreateBatch(t, env.db, "Counted", 500, domain.UnitGrams)
	count := &domain.PhysicalCount{
		TenantID:         f.Tenant.ID,
		FacilityID:       f.Facility.ID,
		BatchID:          batch.ID,
		CountDate:        time.Now().UTC().AddDate(0, 0, -10),
		ExpectedQuantity: batch.Quantity,
		CountedQuantity:  batch.Quantity.Sub(testutil.Dec("20")),
		Variance:         testutil.Dec("-20"),
		Unit:             domain.UnitGrams,
		CountedBy:        f.UserID,
		Status:           domain.CountPending,
	}
	require.NoError(t, env.db.Create(count).Error)

	code, stdout, stderr := runCLI(cmdAlerts)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "north: 1 variance alert(s), 0 theft pattern(s)")
	assert.Contains(t, stdout, "[high] count "+count.ID.String())

	var notifications int64
	require.NoError(t, env.db.Model(&domain.Notification{}).Count(&notifications).Error)
	assert.Zero(t, notifications, "alerts are only reported without --notify")

	code, stdout, stderr = runCLI(cmdAlerts, "--notify", "--tenant=north")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "1 notification(s) sent")

	require.NoError(t, env.db.Model(&domain.Notification{}).Where("tenant_id = ?", f.Tenant.ID).Count(&notifications).Error)
	assert.Equal(t, int64(1), notifications)
}

func TestExport_WritesFileIntoDirectory(t *testing.T) {
	env := setupCLI(t)
	env.fixture.CreateBatch(t, env.db, "Exported", 250, domain.UnitGrams)
	dir := t.TempDir()

	code, stdout, stderr := runCLI(cmdExport, "--tenant=north", "--output="+dir)
	require.Equal(t, 0, code, stderr)

	matches, err := filepath.Glob(filepath.Join(dir, "health-canada-north-*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Contains(t, stdout, "north: wrote "+matches[0])

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	var bundle map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &bundle))
	summary := bundle["summary"].(map[string]interface{})
	assert.Equal(t, float64(1), summary["totalBatches"])
}

func TestExport_WritesNamedFile(t *testing.T) {
	env := setupCLI(t)
	target := filepath.Join(t.TempDir(), "report.csv")

	code, _, stderr := runCLI(cmdExport, "--format=csv", "--start-date=2024-01-01", "--end-date=2024-12-31", "--output="+target)
	require.Equal(t, 0, code, stderr)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), env.fixture.Tenant.Name)
}

func TestExport_PublishesToStorage(t *testing.T) {
	env := setupCLI(t)

	code, stdout, stderr := runCLI(cmdExport, "--format=xml")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "north: uploaded")

	matches, err := filepath.Glob(filepath.Join(env.store, "exports", "north", "health-canada-north-*.xml"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestExport_EachActiveTenant(t *testing.T) {
	env := setupCLI(t)
	testutil.NewFixture(t, env.db, "south")
	dir := filepath.Join(t.TempDir(), "out")

	code, _, stderr := runCLI(cmdExport, "--format=xlsx", "--output="+dir)
	require.Equal(t, 0, code, stderr)

	for _, slug := range []string{"north", "south"} {
		matches, err := filepath.Glob(filepath.Join(dir, "health-canada-"+slug+"-*.xlsx"))
		require.NoError(t, err)
		assert.Len(t, matches, 1, slug)
	}
}
