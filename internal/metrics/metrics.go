// Package metrics exposes the Prometheus collectors of the service
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cultivation"

// Metrics holds the service collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Mutations            *prometheus.CounterVec
	Events               *prometheus.CounterVec
	LossReports          *prometheus.CounterVec
	Archived             *prometheus.CounterVec
	NotificationFailures *prometheus.CounterVec
	CacheErrors          prometheus.Counter
	HTTPDuration         *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_mutations_total",
			Help:      "Batch mutations by kind and result.",
		}, []string{"kind", "result"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traceability_events_total",
			Help:      "Committed traceability events by type.",
		}, []string{"event_type"}),
		LossReports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loss_theft_reports_total",
			Help:      "Loss/theft reports by urgency.",
		}, []string{"urgent"}),
		Archived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archived_records_total",
			Help:      "Records archived by record type.",
		}, []string{"record_type"}),
		NotificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Failed notification deliveries by sink.",
		}, []string{"sink"}),
		CacheErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_errors_total",
			Help:      "Cache read, write and invalidation failures.",
		}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request durations by route pattern, method and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Mutations,
			m.Events,
			m.LossReports,
			m.Archived,
			m.NotificationFailures,
			m.CacheErrors,
			m.HTTPDuration,
		)
	}
	return m
}

func (m *Metrics) MutationCommitted(kind string) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(kind, "committed").Inc()
}

func (m *Metrics) MutationRejected(kind string) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(kind, "rejected").Inc()
}

func (m *Metrics) EventRecorded(eventType string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(eventType).Inc()
}

func (m *Metrics) LossReportFiled(urgent bool) {
	if m == nil {
		return
	}
	label := "false"
	if urgent {
		label = "true"
	}
	m.LossReports.WithLabelValues(label).Inc()
}

func (m *Metrics) RecordsArchived(recordType string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Archived.WithLabelValues(recordType).Add(float64(n))
}

func (m *Metrics) NotificationFailed(sink string) {
	if m == nil {
		return
	}
	m.NotificationFailures.WithLabelValues(sink).Inc()
}

func (m *Metrics) CacheFailed() {
	if m == nil {
		return
	}
	m.CacheErrors.Inc()
}

// ObserveHTTP records one request under its route pattern
func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
}
