package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSink struct {
	mu    sync.Mutex
	name  string
	err   error
	panic bool
	got   []Notification
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panic {
		panic("boom")
	}
	s.got = append(s.got, n)
	return s.err
}

type memoryStore struct {
	rows []*domain.Notification
}

func (m *memoryStore) Create(_ context.Context, n *domain.Notification) error {
	m.rows = append(m.rows, n)
	return nil
}

func TestDispatcher_DeliversToEverySink(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b"}
	d := NewDispatcher(zap.NewNop(), nil, a, b)

	d.Notify(context.Background(), Notification{TenantID: uuid.New(), Type: TypeLossTheft, Severity: domain.SeverityUrgent})
	d.Wait()

	require.Len(t, a.got, 1)
	require.Len(t, b.got, 1)
	assert.False(t, a.got[0].CreatedAt.IsZero())
}

func TestDispatcher_FailingSinkDoesNotStopOthers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	failing := &recordingSink{name: "pubsub", err: errors.New("unavailable")}
	panicking := &recordingSink{name: "broken", panic: true}
	ok := &recordingSink{name: "database"}
	d := NewDispatcher(zap.NewNop(), m, failing, panicking, ok)

	d.Notify(context.Background(), Notification{TenantID: uuid.New(), Type: TypeVarianceAlert})
	d.Wait()

	assert.Len(t, ok.got, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationFailures.WithLabelValues("pubsub")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationFailures.WithLabelValues("broken")))
}

func TestDispatcher_SurvivesCancelledRequest(t *testing.T) {
	sink := &recordingSink{name: "a"}
	d := NewDispatcher(zap.NewNop(), nil, sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Notify(ctx, Notification{TenantID: uuid.New()})
	d.Wait()

	assert.Len(t, sink.got, 1)
}

func TestDBSink_Deliver(t *testing.T) {
	store := &memoryStore{}
	entityID := uuid.New()
	sink := NewDBSink(store)

	err := sink.Deliver(context.Background(), Notification{
		TenantID:   uuid.New(),
		Type:       TypeLossTheft,
		Severity:   domain.SeverityHigh,
		Title:      "Loss reported",
		Message:    "5 g lost",
		EntityType: "loss_theft_report",
		EntityID:   &entityID,
	})
	require.NoError(t, err)
	require.Len(t, store.rows, 1)
	assert.Equal(t, domain.SeverityHigh, store.rows[0].Severity)
	assert.Equal(t, &entityID, store.rows[0].EntityID)
}
