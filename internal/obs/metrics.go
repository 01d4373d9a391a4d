package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the engine's Prometheus instrumentation, trimmed from the
// teacher's broader channel/LLM metrics set down to what the
// orchestrator itself produces: tool execution, phase timing, active
// sessions, and safety interceptions.
type Metrics struct {
	// ToolExecutionCounter counts tool invocations by name and outcome.
	// Labels: tool_name, status (success|error|not_found).
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution latency in seconds.
	// Labels: tool_name.
	ToolExecutionDuration *prometheus.HistogramVec

	// PhaseDuration measures how long each worker phase takes.
	// Labels: phase (planning|drafting|reviewing).
	PhaseDuration *prometheus.HistogramVec

	// ActiveSessions tracks sessions with a worker currently running.
	ActiveSessions prometheus.Gauge

	// SafetyInterceptions counts review outcomes.
	// Labels: outcome (adjusted|intercepted).
	SafetyInterceptions *prometheus.CounterVec

	// TaskErrors counts worker task failures by error kind.
	TaskErrors *prometheus.CounterVec
}

// NewMetrics registers and returns a fresh Metrics set on reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions with the
// global default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ToolExecutionCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "legaladvisor_tool_executions_total",
			Help: "Tool invocations by tool name and outcome.",
		}, []string{"tool_name", "status"}),

		ToolExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "legaladvisor_tool_execution_seconds",
			Help:    "Tool execution latency in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"tool_name"}),

		PhaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "legaladvisor_phase_duration_seconds",
			Help:    "Worker phase duration in seconds.",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}, []string{"phase"}),

		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "legaladvisor_active_sessions",
			Help: "Sessions with a worker currently executing.",
		}),

		SafetyInterceptions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "legaladvisor_safety_reviews_total",
			Help: "Review-phase outcomes by kind.",
		}, []string{"outcome"}),

		TaskErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "legaladvisor_task_errors_total",
			Help: "Worker task failures by error kind.",
		}, []string{"kind"}),
	}
}

// RecordToolExecution records one tool invocation's outcome and
// latency, mirroring the teacher's observability.Metrics.RecordToolExecution.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordPhase records how long a worker phase took.
func (m *Metrics) RecordPhase(phase string, durationSeconds float64) {
	m.PhaseDuration.WithLabelValues(phase).Observe(durationSeconds)
}

// RecordSafetyOutcome increments the review-phase outcome counter.
func (m *Metrics) RecordSafetyOutcome(outcome string) {
	m.SafetyInterceptions.WithLabelValues(outcome).Inc()
}

// RecordTaskError increments the task-failure counter for kind.
func (m *Metrics) RecordTaskError(kind string) {
	m.TaskErrors.WithLabelValues(kind).Inc()
}
