package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outbox publish outcomes.
const (
	OutboxPublished = "published"
	OutboxRetry     = "retry"
	OutboxTerminal  = "terminal"
)

// OutboxMetrics tracks what the publisher does with each outbox row.
type OutboxMetrics struct {
	outcomes *prometheus.CounterVec
	latency  prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "platefull_outbox_events_total",
		Help: "Outbox rows handled by the publisher, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "platefull_outbox_publish_lag_seconds",
		Help:    "Time between an event being queued and being published.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 1800},
	})
	reg.MustRegister(outcomes, latency)
	return &OutboxMetrics{outcomes: outcomes, latency: latency}
}

// Record counts one row outcome.
func (m *OutboxMetrics) Record(eventType, outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(eventType), outcome).Inc()
}

// ObserveLag records how long a published row waited in the outbox.
func (m *OutboxMetrics) ObserveLag(lag time.Duration) {
	if m == nil || m.latency == nil || lag < 0 {
		return
	}
	m.latency.Observe(lag.Seconds())
}
