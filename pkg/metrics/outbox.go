package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics tracks the outbox publisher: delivery outcomes per event type and
// batch latency.
type OutboxMetrics struct {
	events        *prometheus.CounterVec
	batchDuration prometheus.Histogram
	batchSize     prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_total",
		Help: "Outbox events by type and delivery outcome (published, retried, dead_lettered).",
	}, []string{"event_type", "outcome", "reason"})
	batchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_batch_duration_seconds",
		Help:    "Time to publish and settle one outbox batch.",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 15},
	})
	batchSize := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_batch_size",
		Help:    "Rows fetched per non-empty outbox batch.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
	})
	reg.MustRegister(events, batchDuration, batchSize)
	return &OutboxMetrics{events: events, batchDuration: batchDuration, batchSize: batchSize}
}

func (m *OutboxMetrics) Published(eventType string) {
	m.inc(eventType, "published", "")
}

func (m *OutboxMetrics) Retried(eventType string) {
	m.inc(eventType, "retried", "")
}

func (m *OutboxMetrics) DeadLettered(eventType, reason string) {
	m.inc(eventType, "dead_lettered", reason)
}

func (m *OutboxMetrics) ObserveBatch(size int, duration time.Duration) {
	if m == nil || m.batchDuration == nil {
		return
	}
	m.batchSize.Observe(float64(size))
	m.batchDuration.Observe(duration.Seconds())
}

func (m *OutboxMetrics) inc(eventType, outcome, reason string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(labelValue(eventType), outcome, reason).Inc()
}
