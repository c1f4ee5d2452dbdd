package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Request outcome labels for the isaqe_requests_total counter.
const (
	StatusSuccess     = "success"
	StatusFailed      = "failed"
	StatusRateLimited = "rate_limited"
	StatusRejected    = "rejected"
)

// Pipeline stage labels for the isaqe_request_latency_seconds histogram.
const (
	StageTotal         = "total"
	StageRanking       = "ranking"
	StageReasoner      = "reasoner"
	StageSQLGeneration = "sql_generation"
	StageValidation    = "validation"
	StageGuardrails    = "guardrails"
	StageExecution     = "execution"
	StageSynthesis     = "synthesis"
)

// Metrics owns the engine's Prometheus instruments and the registry they live
// in. Tests construct their own Metrics so they never touch process state.
type Metrics struct {
	registry *prometheus.Registry

	RequestLatency *prometheus.HistogramVec
	RequestsTotal  *prometheus.CounterVec
}

// NewMetrics creates a Metrics with an isolated registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.NewRegistry())
}

// NewMetricsWithRegistry registers the engine's instruments on reg.
func NewMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "isaqe_request_latency_seconds",
			Help:    "Latency for user queries",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "isaqe_requests_total",
			Help: "Total processed queries",
		}, []string{"status"}),
	}

	reg.MustRegister(m.RequestLatency, m.RequestsTotal)
	return m
}

// Gatherer exposes the registry for the /metrics handler.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// RecordOutcome increments the request counter for one outcome label.
func (m *Metrics) RecordOutcome(status string) {
	m.RequestsTotal.WithLabelValues(status).Inc()
}

// StartStage starts a latency timer for one pipeline stage. The returned func
// observes the elapsed time; callers defer it so the stage is recorded on
// every exit path.
func (m *Metrics) StartStage(stage string) func() {
	start := time.Now()
	return func() {
		m.RequestLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}
