package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ConversationMetrics records ordering-conversation throughput and outcomes.
type ConversationMetrics struct {
	turns       *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	intents     *prometheus.CounterVec
	upsells     *prometheus.CounterVec
	settlements *prometheus.CounterVec
}

// NewConversationMetrics registers the conversation metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	if reg == nil {
		return &ConversationMetrics{}
	}
	turns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "platefull_turns_total",
		Help: "Conversation turns by channel and outcome.",
	}, []string{"channel", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "platefull_turn_duration_seconds",
		Help:    "End-to-end turn handling latency.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"channel"})
	intents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "platefull_intent_resolutions_total",
		Help: "Free-text resolutions by pipeline source and intent.",
	}, []string{"source", "intent"})
	upsells := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "platefull_upsell_offers_total",
		Help: "Upsell offers presented by stage.",
	}, []string{"stage"})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "platefull_settlement_attempts_total",
		Help: "Settlement attempts by method and result.",
	}, []string{"method", "result"})
	reg.MustRegister(turns, duration, intents, upsells, settlements)
	return &ConversationMetrics{
		turns:       turns,
		duration:    duration,
		intents:     intents,
		upsells:     upsells,
		settlements: settlements,
	}
}

// ObserveTurn records one handled turn.
func (m *ConversationMetrics) ObserveTurn(channel, outcome string, took time.Duration) {
	if m == nil || m.turns == nil {
		return
	}
	channel = normalizeLabel(channel)
	m.turns.WithLabelValues(channel, normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(channel).Observe(took.Seconds())
}

// IncIntent records which pipeline stage resolved free text.
func (m *ConversationMetrics) IncIntent(source, intent string) {
	if m == nil || m.intents == nil {
		return
	}
	m.intents.WithLabelValues(normalizeLabel(source), normalizeLabel(intent)).Inc()
}

// IncUpsellOffer records an upsell offer for a stage.
func (m *ConversationMetrics) IncUpsellOffer(stage string) {
	if m == nil || m.upsells == nil {
		return
	}
	m.upsells.WithLabelValues(normalizeLabel(stage)).Inc()
}

// IncSettlement records a single settlement attempt.
func (m *ConversationMetrics) IncSettlement(method, result string) {
	if m == nil || m.settlements == nil {
		return
	}
	m.settlements.WithLabelValues(normalizeLabel(method), normalizeLabel(result)).Inc()
}
