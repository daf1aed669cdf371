package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Meter owns the orchestration core's prometheus collectors: step
// durations/outcomes, retry counts, quality decisions, and stream
// lag/backpressure signals. A single generic gauge vector backs
// RecordMetric's free-form name/labels call shape (core.Telemetry); the
// named helpers below are for call sites that want a typed signature.
type Meter struct {
	registry *prometheus.Registry

	stepDuration   *prometheus.HistogramVec
	stepOutcome    *prometheus.CounterVec
	retryAttempts  *prometheus.CounterVec
	qualityDecision *prometheus.CounterVec
	streamLagging  *prometheus.CounterVec

	mu     sync.Mutex
	gauges map[string]*prometheus.GaugeVec
}

func NewMeter(registry *prometheus.Registry) *Meter {
	m := &Meter{
		registry: registry,
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "veritas_step_duration_seconds",
			Help: "Duration of a single step execution.",
			Buckets: prometheus.DefBuckets,
		}, []string{"step_type"}),
		stepOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "veritas_step_outcomes_total",
			Help: "Count of step terminal outcomes by status.",
		}, []string{"step_type", "status"}),
		retryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "veritas_retry_attempts_total",
			Help: "Count of retry attempts by step type.",
		}, []string{"step_type"}),
		qualityDecision: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "veritas_quality_decisions_total",
			Help: "Count of QualityGate decisions.",
		}, []string{"decision"}),
		streamLagging: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "veritas_stream_lagging_subscribers_total",
			Help: "Count of subscribers flagged lagging.",
		}, []string{"session_id"}),
		gauges: make(map[string]*prometheus.GaugeVec),
	}
	registry.MustRegister(m.stepDuration, m.stepOutcome, m.retryAttempts, m.qualityDecision, m.streamLagging)
	return m
}

func (m *Meter) ObserveStepDuration(stepType string, seconds float64) {
	m.stepDuration.WithLabelValues(stepType).Observe(seconds)
}

func (m *Meter) IncStepOutcome(stepType, status string) {
	m.stepOutcome.WithLabelValues(stepType, status).Inc()
}

func (m *Meter) IncRetryAttempt(stepType string) {
	m.retryAttempts.WithLabelValues(stepType).Inc()
}

func (m *Meter) IncQualityDecision(decision string) {
	m.qualityDecision.WithLabelValues(decision).Inc()
}

func (m *Meter) IncStreamLagging(sessionID string) {
	m.streamLagging.WithLabelValues(sessionID).Inc()
}

// RecordGeneric backs core.Telemetry.RecordMetric for call sites that only
// have a free-form name and label set, lazily creating a gauge per metric
// name.
func (m *Meter) RecordGeneric(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	gv, ok := m.gauges[name]
	if !ok {
		labelNames := make([]string, 0, len(labels))
		for k := range labels {
			labelNames = append(labelNames, k)
		}
		gv = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: "Generic gauge emitted via core.Telemetry.RecordMetric."}, labelNames)
		m.registry.MustRegister(gv)
		m.gauges[name] = gv
	}
	gv.With(prometheus.Labels(labels)).Set(value)
}
