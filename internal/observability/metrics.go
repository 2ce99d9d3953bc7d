package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application
// metrics, built on Prometheus. It tracks:
//   - LM call counts and latency, by model and status
//   - Token consumption, by model and kind (input|output)
//   - Sandbox execution counts and latency, by backend and result
//   - Active sandbox sessions, for capacity planning
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	start := time.Now()
//	defer metrics.ObserveLLMLatency("claude-sonnet", time.Since(start).Seconds())
type Metrics struct {
	// LLMCallCounter counts LM calls by model and status.
	// Labels: model, status (ok|error)
	LLMCallCounter *prometheus.CounterVec

	// LLMCallDuration measures LM call latency in seconds.
	// Labels: model
	LLMCallDuration *prometheus.HistogramVec

	// LLMTokensUsed tracks token consumption by model and kind.
	// Labels: model, kind (input|output)
	LLMTokensUsed *prometheus.CounterVec

	// SandboxExecutionCounter counts sandbox code executions by backend
	// and result.
	// Labels: backend (local|container), result (ok|error|timeout)
	SandboxExecutionCounter *prometheus.CounterVec

	// SandboxExecutionDuration measures sandbox execution latency in
	// seconds.
	// Labels: backend
	SandboxExecutionDuration *prometheus.HistogramVec

	// ActiveSandboxes is a gauge tracking currently open sandbox
	// sessions.
	// Labels: backend
	ActiveSandboxes *prometheus.GaugeVec

	// IterationsPerCompletion records how many driver iterations a
	// completion consumed before terminating.
	IterationsPerCompletion prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics. This should
// be called once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		LLMCallCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rlm_llm_calls_total",
				Help: "Total number of LM calls by model and status",
			},
			[]string{"model", "status"},
		),

		LLMCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rlm_llm_call_duration_seconds",
				Help:    "Duration of LM calls in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"model"},
		),

		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rlm_llm_tokens_total",
				Help: "Total number of tokens used by model and kind",
			},
			[]string{"model", "kind"},
		),

		SandboxExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rlm_sandbox_executions_total",
				Help: "Total number of sandbox code executions by backend and result",
			},
			[]string{"backend", "result"},
		),

		SandboxExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rlm_sandbox_execution_duration_seconds",
				Help:    "Duration of sandbox code executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"backend"},
		),

		ActiveSandboxes: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rlm_active_sandboxes",
				Help: "Current number of open sandbox sessions by backend",
			},
			[]string{"backend"},
		),

		IterationsPerCompletion: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rlm_iterations_per_completion",
				Help:    "Number of driver iterations consumed per completion",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34},
			},
		),
	}
}

// ObserveLLMCall increments the LM call counter for model with the
// given status (ok|error).
func (m *Metrics) ObserveLLMCall(model, status string) {
	m.LLMCallCounter.WithLabelValues(model, status).Inc()
}

// ObserveLLMLatency records the duration of one LM call for model.
func (m *Metrics) ObserveLLMLatency(model string, durationSeconds float64) {
	m.LLMCallDuration.WithLabelValues(model).Observe(durationSeconds)
}

// ObserveLLMTokens records token consumption for one LM call.
func (m *Metrics) ObserveLLMTokens(model string, inputTokens, outputTokens int) {
	if inputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

// ObserveSandboxExecution records one sandbox code execution's outcome
// and latency for the given backend.
func (m *Metrics) ObserveSandboxExecution(backend, result string, durationSeconds float64) {
	m.SandboxExecutionCounter.WithLabelValues(backend, result).Inc()
	m.SandboxExecutionDuration.WithLabelValues(backend).Observe(durationSeconds)
}

// SandboxOpened increments the active-sandbox gauge for backend.
func (m *Metrics) SandboxOpened(backend string) {
	m.ActiveSandboxes.WithLabelValues(backend).Inc()
}

// SandboxClosed decrements the active-sandbox gauge for backend.
func (m *Metrics) SandboxClosed(backend string) {
	m.ActiveSandboxes.WithLabelValues(backend).Dec()
}

// ObserveIterations records how many iterations one completion consumed.
func (m *Metrics) ObserveIterations(count int) {
	m.IterationsPerCompletion.Observe(float64(count))
}
