package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Instrumentation for the serving layer. The analysis core stays
// metric-free; callers record after a decision is made.
var (
	analysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veracity_analyses_total",
			Help: "Completed analyses by final label and recommended action.",
		},
		[]string{"label", "action"},
	)

	ruleFindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veracity_rule_findings_total",
			Help: "Fired rule findings by rule id and governed severity.",
		},
		[]string{"rule", "severity"},
	)

	engineLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "veracity_engine_latency_seconds",
			Help:    "External engine response latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"engine"},
	)

	engineAbstentionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veracity_engine_abstentions_total",
			Help: "External engine abstentions (errors, timeouts, invalid replies).",
		},
		[]string{"engine"},
	)
)

// CountAnalysis records one finished decision.
func CountAnalysis(label, action string) {
	analysesTotal.WithLabelValues(label, action).Inc()
}

// CountFinding records one governed rule finding.
func CountFinding(rule, severity string) {
	ruleFindingsTotal.WithLabelValues(rule, severity).Inc()
}

// ObserveEngineLatency records one external engine round trip.
func ObserveEngineLatency(engine string, seconds float64) {
	engineLatency.WithLabelValues(engine).Observe(seconds)
}

// CountAbstention records one external engine abstention.
func CountAbstention(engine string) {
	engineAbstentionsTotal.WithLabelValues(engine).Inc()
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
