// Package metrics records generation and cycle telemetry to Prometheus
// and reads aggregated case usage back from a Prometheus server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	tokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "LLM tokens consumed, labelled by case, agent, model, and token type.",
	}, []string{"case_id", "agent", "model", "type"})

	costsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_costs_total",
		Help: "Estimated LLM spend in USD per case, agent, and model.",
	}, []string{"case_id", "agent", "model"})

	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "case_cycles_total",
		Help: "Completed orchestration cycles by agent, stage, and outcome.",
	}, []string{"agent", "stage", "status"})

	cycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "case_cycle_duration_seconds",
		Help:    "Wall-clock duration of an orchestration cycle.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"agent", "stage"})
)

// RecordGeneration records token usage and cost for one LLM completion.
func RecordGeneration(caseID, agent, model string, promptTokens, completionTokens int, costUSD float64) {
	tokensTotal.WithLabelValues(caseID, agent, model, "prompt").Add(float64(promptTokens))
	tokensTotal.WithLabelValues(caseID, agent, model, "completion").Add(float64(completionTokens))
	costsTotal.WithLabelValues(caseID, agent, model).Add(costUSD)
}

// RecordCycle records the outcome and duration of one orchestration cycle.
func RecordCycle(agent, stage, status string, seconds float64) {
	cyclesTotal.WithLabelValues(agent, stage, status).Inc()
	cycleDuration.WithLabelValues(agent, stage).Observe(seconds)
}

// Handler returns the HTTP handler exposing the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
