// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// TurnDuration tracks full orchestration turn duration.
	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "turn_duration_seconds",
			Help:    "Orchestration turn duration in seconds",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"status"},
	)

	// TurnRounds tracks completion rounds used per turn.
	TurnRounds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "turn_completion_rounds",
			Help:    "Completion rounds used per orchestration turn",
			Buckets: []float64{1, 2, 3, 4},
		},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// ToolInvocationsTotal tracks tool dispatches by outcome.
	ToolInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tool_invocations_total",
			Help: "Total tool invocations",
		},
		[]string{"tool", "status"},
	)

	// RetrievalRequestsTotal tracks retrieval attempts by outcome.
	RetrievalRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retrieval_requests_total",
			Help: "Total document retrieval attempts",
		},
		[]string{"status"},
	)

	// RouterDecisionsTotal tracks intent router decisions.
	RouterDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_decisions_total",
			Help: "Intent router decisions by category",
		},
		[]string{"category"},
	)

	// MessagesTotal tracks messages appended to conversations.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages appended",
		},
		[]string{"role"},
	)

	// UndurableTurnsTotal tracks turns whose persistence failed.
	UndurableTurnsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "undurable_turns_total",
			Help: "Turns answered but not durably recorded",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordTurn records metrics for one orchestration turn.
func RecordTurn(status string, duration float64, rounds int) {
	TurnDuration.WithLabelValues(status).Observe(duration)
	TurnRounds.Observe(float64(rounds))
}

// RecordTokens records token usage for a completion call.
func RecordTokens(model string, tokensIn, tokensOut int) {
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordToolInvocation records one tool dispatch.
func RecordToolInvocation(tool, status string) {
	ToolInvocationsTotal.WithLabelValues(tool, status).Inc()
}

// RecordRetrieval records one retrieval attempt.
func RecordRetrieval(status string) {
	RetrievalRequestsTotal.WithLabelValues(status).Inc()
}
