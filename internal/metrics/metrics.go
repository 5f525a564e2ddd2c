// Package metrics exposes Prometheus instrumentation for enrichment jobs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the enrichment collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	JobOutcomes      *prometheus.CounterVec
	JobsInFlight     prometheus.Gauge
	StrategyDuration *prometheus.HistogramVec
	Proposals        *prometheus.CounterVec
	Verdicts         *prometheus.CounterVec
	BreakerState     *prometheus.GaugeVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		JobOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "facility_enrich_jobs_total",
			Help: "Enrichment job outcomes, including skips",
		}, []string{"outcome"}),

		JobsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "facility_enrich_jobs_in_flight",
			Help: "Enrichment jobs currently holding a semaphore slot",
		}),

		StrategyDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "facility_enrich_strategy_duration_seconds",
			Help:    "Strategy runner duration by strategy",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 20},
		}, []string{"strategy"}),

		Proposals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "facility_enrich_proposals_total",
			Help: "Proposed changes returned by strategy",
		}, []string{"strategy"}),

		Verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "facility_enrich_verdicts_total",
			Help: "Validation verdicts by status and field",
		}, []string{"status", "field"}),

		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "facility_enrich_circuit_state",
			Help: "Circuit breaker state by service (0 closed, 1 open, 2 half-open)",
		}, []string{"service"}),
	}
}

// IncOutcome counts a job outcome.
func (m *Metrics) IncOutcome(outcome string) {
	if m != nil {
		m.JobOutcomes.WithLabelValues(outcome).Inc()
	}
}

// SetInFlight records the number of running jobs.
func (m *Metrics) SetInFlight(n int) {
	if m != nil {
		m.JobsInFlight.Set(float64(n))
	}
}

// ObserveStrategy records one runner invocation.
func (m *Metrics) ObserveStrategy(strategy string, d time.Duration, proposals int) {
	if m != nil {
		m.StrategyDuration.WithLabelValues(strategy).Observe(d.Seconds())
		m.Proposals.WithLabelValues(strategy).Add(float64(proposals))
	}
}

// IncVerdict counts a validation verdict.
func (m *Metrics) IncVerdict(status, field string) {
	if m != nil {
		m.Verdicts.WithLabelValues(status, field).Inc()
	}
}

// SetBreakerState records a circuit breaker transition.
func (m *Metrics) SetBreakerState(service string, state int) {
	if m != nil {
		m.BreakerState.WithLabelValues(service).Set(float64(state))
	}
}
