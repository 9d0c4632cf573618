package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestConversationMetricsRecordsLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConversationMetrics(reg)

	m.ObserveTurn("telegram", "ok", 40*time.Millisecond)
	m.ObserveTurn("telegram", "ok", 60*time.Millisecond)
	m.IncIntent("dietary_rule", "dietary_recommendation")
	m.IncUpsellOffer("drinks")
	m.IncSettlement("stablecoin", "retry")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got := counterWithLabels(t, mfs, "platefull_turns_total", map[string]string{"channel": "telegram", "outcome": "ok"}); got != 2 {
		t.Fatalf("expected 2 turns, got %f", got)
	}
	if got := counterWithLabels(t, mfs, "platefull_intent_resolutions_total", map[string]string{"source": "dietary_rule"}); got != 1 {
		t.Fatalf("expected 1 dietary resolution, got %f", got)
	}
	if got := counterWithLabels(t, mfs, "platefull_upsell_offers_total", map[string]string{"stage": "drinks"}); got != 1 {
		t.Fatalf("expected 1 drinks offer, got %f", got)
	}
	if got := counterWithLabels(t, mfs, "platefull_settlement_attempts_total", map[string]string{"method": "stablecoin", "result": "retry"}); got != 1 {
		t.Fatalf("expected 1 settlement attempt, got %f", got)
	}
	if sum, err := fetchHistogramSum(mfs, "platefull_turn_duration_seconds", "channel", "telegram"); err != nil || sum <= 0 {
		t.Fatalf("expected turn latency to be observed, sum=%f err=%v", sum, err)
	}
}

func TestConversationMetricsNilRegistererIsNoop(t *testing.T) {
	m := NewConversationMetrics(nil)
	m.ObserveTurn("http", "ok", time.Millisecond)
	m.IncIntent("command", "restart")
	var nilMetrics *ConversationMetrics
	nilMetrics.IncUpsellOffer("sides")
}

func counterWithLabels(t *testing.T, mfs []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		t.Fatalf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		ok := true
		for k, v := range labels {
			if !matchesLabel(metric.GetLabel(), k, v) {
				ok = false
				break
			}
		}
		if ok {
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %q missing labels %v", name, labels)
	return 0
}
