package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Publish outcomes recorded by the outbox publisher.
const (
	PublishOutcomePublished  = "published"
	PublishOutcomeRetry      = "retry"
	PublishOutcomeDeadLetter = "dead_letter"
	PublishOutcomeDeferred   = "deferred"
)

// OutboxMetrics tracks how rental events leave the outbox.
type OutboxMetrics struct {
	events *prometheus.CounterVec
	batch  prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventrentals_outbox_events_total",
		Help: "Outbox rows handled by the publisher, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	batch := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "eventrentals_outbox_batch_duration_seconds",
		Help:    "Time spent claiming and publishing one outbox batch.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(events, batch)
	return &OutboxMetrics{events: events, batch: batch}
}

func (m *OutboxMetrics) IncEvent(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *OutboxMetrics) ObserveBatch(d time.Duration) {
	if m == nil || m.batch == nil {
		return
	}
	m.batch.Observe(d.Seconds())
}
