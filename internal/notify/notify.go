// Package notify delivers alerts after the change that caused them has
// committed. Delivery is asynchronous and best effort: a failing sink is
// logged and counted, never retried into the caller.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/metrics"
	"go.uber.org/zap"
)

// Notification types
const (
	TypeLossTheft     = "loss_theft_reported"
	TypeVarianceAlert = "variance_alert"
	TypeTheftPattern  = "theft_pattern"
)

// Notification is the payload handed to every sink
type Notification struct {
	TenantID   uuid.UUID       `json:"tenantId"`
	Type       string          `json:"type"`
	Severity   domain.Severity `json:"severity"`
	Title      string          `json:"title"`
	Message    string          `json:"message"`
	EntityType string          `json:"entityType,omitempty"`
	EntityID   *uuid.UUID      `json:"entityId,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Notifier accepts notifications for delivery
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Sink is one delivery channel
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n Notification) error
}

// Dispatcher fans notifications out to its sinks in the background
type Dispatcher struct {
	sinks   []Sink
	logger  *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher delivering to sinks
func NewDispatcher(logger *zap.Logger, m *metrics.Metrics, sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		sinks:   sinks,
		logger:  logger,
		metrics: m,
		timeout: 30 * time.Second,
	}
}

// Notify returns immediately. The request context only contributes its
// values; delivery is not cancelled when the request ends.
func (d *Dispatcher) Notify(ctx context.Context, n Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		d.deliver(deliverCtx, n)
	}()
}

func (d *Dispatcher) deliver(ctx context.Context, n Notification) {
	for _, sink := range d.sinks {
		if err := d.safeDeliver(ctx, sink, n); err != nil {
			d.metrics.NotificationFailed(sink.Name())
			d.logger.Warn("notification delivery failed",
				zap.String("sink", sink.Name()),
				zap.String("tenantID", n.TenantID.String()),
				zap.String("type", n.Type),
				zap.Error(err))
		}
	}
}

func (d *Dispatcher) safeDeliver(ctx context.Context, sink Sink, n Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return sink.Deliver(ctx, n)
}

// Wait blocks until every queued notification has been delivered
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

type panicError struct {
	value interface{}
}

func (e *panicError) Error() string {
	return fmt.Sprintf("sink panicked: %v", e.value)
}
