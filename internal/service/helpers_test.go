package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/straye-as/cultivation-api/internal/app"
	"github.com/straye-as/cultivation-api/internal/auth"
	"github.com/straye-as/cultivation-api/internal/cache"
	"github.com/straye-as/cultivation-api/internal/metrics"
	"github.com/straye-as/cultivation-api/internal/notify"
	"github.com/straye-as/cultivation-api/internal/service"
	"github.com/straye-as/cultivation-api/internal/storage"
	"github.com/straye-as/cultivation-api/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// recordingNotifier keeps notifications in memory and delivers synchronously
type recordingNotifier struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, x notify.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, x)
}

func (n *recordingNotifier) all() []notify.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Notification(nil), n.got...)
}

// services is every service built over one test database
type services struct {
	db       *gorm.DB
	f        *testutil.Fixture
	notifier *recordingNotifier
	store    storage.Storage

	tenants   *service.TenantService
	batches   *service.BatchService
	mutations *service.MutationService
	counts    *service.PhysicalCountService
	reports   *service.LossReportService
	detection *service.DetectionService
	archival  *service.ArchivalService
	exports   *service.ExportService
}

func setupServices(t *testing.T) *services {
	t.Helper()
	db := testutil.SetupTestDB(t)
	cfg := testutil.Config()
	log := zap.NewNop()
	m := metrics.New(prometheus.NewRegistry())
	authz := auth.NewRoleAuthorizer()
	c := cache.NewMemory()
	notifier := &recordingNotifier{}
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	th := testutil.Thresholds()

	mutations := service.NewMutationService(db, authz, c, notifier, m, th, log)
	return &services{
		db:        db,
		f:         testutil.NewFixture(t, db, "north"),
		notifier:  notifier,
		store:     store,
		tenants:   service.NewTenantService(db, th, log),
		batches:   service.NewBatchService(db, authz, c, time.Minute, m, log),
		mutations: mutations,
		counts:    service.NewPhysicalCountService(db, mutations, authz, log),
		reports:   service.NewLossReportService(db, authz, notifier, th, log),
		detection: service.NewDetectionService(db, authz, notifier, app.DetectionConfig(&cfg.Compliance), log),
		archival:  service.NewArchivalService(db, authz, c, m, log),
		exports:   service.NewExportService(db, authz, store, cfg.Storage.ExportPrefix, th, log),
	}
}

func decPtr(s string) *decimal.Decimal {
	d := testutil.Dec(s)
	return &d
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, testutil.Dec(want).Equal(got), "want %s, got %s", want, got)
}
