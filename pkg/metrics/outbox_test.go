package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestOutboxMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.Record("order_confirmed", OutboxPublished)
	m.Record("order_confirmed", OutboxPublished)
	m.Record("order_expired", OutboxTerminal)
	m.ObserveLag(2 * time.Second)
	m.ObserveLag(-time.Second)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	mf := findMetricFamily(mfs, "platefull_outbox_events_total")
	if mf == nil {
		t.Fatal("outcome counter not exported")
	}
	var published float64
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), "event_type", "order_confirmed") && matchesLabel(metric.GetLabel(), "outcome", OutboxPublished) {
			published = metric.GetCounter().GetValue()
		}
	}
	if published != 2 {
		t.Fatalf("expected 2 published, got %f", published)
	}

	lag := findMetricFamily(mfs, "platefull_outbox_publish_lag_seconds")
	if lag == nil || lag.GetMetric()[0].GetHistogram().GetSampleCount() != 1 {
		t.Fatalf("expected exactly one lag sample")
	}
}

func TestOutboxMetricsNilSafe(t *testing.T) {
	var m *OutboxMetrics
	m.Record("x", OutboxRetry)
	m.ObserveLag(time.Second)
	NewOutboxMetrics(nil).Record("x", OutboxRetry)
}
