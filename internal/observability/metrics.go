package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the agent core and daemon.
type Metrics struct {
	registry         *prometheus.Registry
	Turns            *prometheus.CounterVec
	TurnDuration     *prometheus.HistogramVec
	TurnSteps        prometheus.Histogram
	LLMCalls         *prometheus.CounterVec
	ValidationIssues *prometheus.CounterVec
	HistoryLookups   *prometheus.CounterVec
	StageFallbacks   *prometheus.CounterVec
	ToolCalls        *prometheus.CounterVec
	ActiveSession    *prometheus.GaugeVec
	TransportErrs    *prometheus.CounterVec
	ModelUsage       *prometheus.CounterVec
	ModelFailures    *prometheus.CounterVec
}

// NewMetrics constructs a metrics registry with agent collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	turns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cortexr_turns_total",
		Help: "Completed agent turns by outcome kind",
	}, []string{"outcome"})

	durs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cortexr_turn_duration_seconds",
		Help:    "Agent turn duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	steps := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cortexr_turn_steps",
		Help:    "Plan/execute steps consumed per turn",
		Buckets: []float64{1, 2, 3, 5, 8, 13},
	})

	llmCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cortexr_llm_calls_total",
		Help: "Model adapter calls by response shape and outcome",
	}, []string{"shape", "outcome"})

	issues := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cortexr_validation_issues_total",
		Help: "Guard and contract issues by stage",
	}, []string{"stage"})

	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cortexr_history_lookups_total",
		Help: "History retrieval lookups by outcome",
	}, []string{"outcome"})

	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cortexr_stage_fallbacks_total",
		Help: "Reasoning stages that fell back to their default result",
	}, []string{"stage"})

	toolCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cortexr_tool_calls_total",
		Help: "Dispatcher tool calls by tool and outcome",
	}, []string{"tool", "outcome"})

	active := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cortexr_transport_active_sessions",
		Help: "Active streaming sessions by transport",
	}, []string{"transport"})

	trErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cortexr_transport_errors_total",
		Help: "Transport-level errors (handler/streaming) by transport and reason",
	}, []string{"transport", "reason"})

	modelUsage := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cortexr_model_usage_total",
		Help: "Model selections by role",
	}, []string{"role", "model"})

	modelFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cortexr_model_failures_total",
		Help: "Model failures by role and model",
	}, []string{"role", "model"})

	reg.MustRegister(turns, durs, steps, llmCalls, issues, lookups, fallbacks, toolCalls, active, trErrors, modelUsage, modelFailures)

	return &Metrics{
		registry:         reg,
		Turns:            turns,
		TurnDuration:     durs,
		TurnSteps:        steps,
		LLMCalls:         llmCalls,
		ValidationIssues: issues,
		HistoryLookups:   lookups,
		StageFallbacks:   fallbacks,
		ToolCalls:        toolCalls,
		ActiveSession:    active,
		TransportErrs:    trErrors,
		ModelUsage:       modelUsage,
		ModelFailures:    modelFailures,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordTurn records a finished turn, its duration and the steps it used.
func (m *Metrics) RecordTurn(outcome string, duration time.Duration, steps int) {
	if m == nil {
		return
	}
	outcome = orUnknown(outcome)
	m.Turns.WithLabelValues(outcome).Inc()
	m.TurnDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.TurnSteps.Observe(float64(steps))
}

// RecordLLMCall counts one adapter call.
func (m *Metrics) RecordLLMCall(shape, outcome string) {
	if m == nil {
		return
	}
	if shape == "" {
		shape = "text"
	}
	m.LLMCalls.WithLabelValues(shape, orUnknown(outcome)).Inc()
}

// RecordValidationIssues adds n issues reported by a guard stage.
func (m *Metrics) RecordValidationIssues(stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ValidationIssues.WithLabelValues(orUnknown(stage)).Add(float64(n))
}

// RecordHistoryLookup counts a history lookup (hit, miss, unavailable, timeout, error).
func (m *Metrics) RecordHistoryLookup(outcome string) {
	if m == nil {
		return
	}
	m.HistoryLookups.WithLabelValues(orUnknown(outcome)).Inc()
}

// RecordStageFallback counts a stage that returned its fallback result.
func (m *Metrics) RecordStageFallback(stage string) {
	if m == nil {
		return
	}
	m.StageFallbacks.WithLabelValues(orUnknown(stage)).Inc()
}

// RecordToolCall counts one dispatcher call.
func (m *Metrics) RecordToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(orUnknown(tool), orUnknown(outcome)).Inc()
}

// IncActiveSessions increments the active session gauge.
func (m *Metrics) IncActiveSessions(transport string) {
	if m == nil {
		return
	}
	m.ActiveSession.WithLabelValues(transport).Inc()
}

// DecActiveSessions decrements the active session gauge.
func (m *Metrics) DecActiveSessions(transport string) {
	if m == nil {
		return
	}
	m.ActiveSession.WithLabelValues(transport).Dec()
}

// RecordTransportError records a transport-level error.
func (m *Metrics) RecordTransportError(transport, reason string) {
	if m == nil {
		return
	}
	m.TransportErrs.WithLabelValues(orUnknown(transport), orUnknown(reason)).Inc()
}

// RecordModelUsage increments usage counter for a role/model selection.
func (m *Metrics) RecordModelUsage(role, model string) {
	if m == nil {
		return
	}
	m.ModelUsage.WithLabelValues(orUnknown(role), orUnknown(model)).Inc()
}

// RecordModelFailure increments failure counter for a role/model selection.
func (m *Metrics) RecordModelFailure(role, model string) {
	if m == nil {
		return
	}
	m.ModelFailures.WithLabelValues(orUnknown(role), orUnknown(model)).Inc()
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
