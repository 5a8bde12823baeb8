// Package runmetrics records the outcome of a tsbench run as Prometheus
// metrics. A run is a batch job, so the metrics are written once in the
// text format of the node exporter textfile collector.
package runmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tsbench/multivariate"
)

const namespace = "tsbench"

// Outcome label values.
const (
	OutcomeSuccess      = "success"
	OutcomeNotConverged = "not_converged"
	OutcomeError        = "error"
)

// Metrics of one run, registered on their own registry.
type Metrics struct {
	registry *prometheus.Registry

	// SolvesTotal counts adjusted series (single series methods) or groups
	// (multivariate). Labels: method, outcome
	SolvesTotal *prometheus.CounterVec

	// SolveDurationSeconds measures each solve. Labels: method
	SolveDurationSeconds *prometheus.HistogramVec

	// MaxRevision is the largest relative change of each output series,
	// in percent. Labels: series
	MaxRevision *prometheus.GaugeVec

	// LastRunTimestamp is the end of the run, in seconds since the epoch.
	LastRunTimestamp prometheus.Gauge
}

// New returns metrics registered on a new registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		SolvesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solves_total",
			Help:      "Series or groups solved, by method and outcome",
		}, []string{"method", "outcome"}),
		SolveDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solve_duration_seconds",
			Help:      "Duration of one solve in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"method"}),
		MaxRevision: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "max_revision_percent",
			Help:      "Largest change of an output series relative to its input",
		}, []string{"series"}),
		LastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "End of the last run",
		}),
	}
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveSolve records one solve of method.
func (m *Metrics) ObserveSolve(method, outcome string, elapsed time.Duration) {
	m.SolvesTotal.WithLabelValues(method, outcome).Inc()
	m.SolveDurationSeconds.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveGroup is a multivariate.Spec observer.
func (m *Metrics) ObserveGroup(r multivariate.GroupReport) {
	outcome := OutcomeSuccess
	if r.Err != nil {
		outcome = OutcomeError
	}
	m.ObserveSolve("multivariate", outcome, r.Elapsed)
}

// SetRevision records the largest relative revision of series, in percent.
func (m *Metrics) SetRevision(series string, percent float64) {
	m.MaxRevision.WithLabelValues(series).Set(percent)
}

// WriteFile stamps the end of the run and writes the metrics to path.
func (m *Metrics) WriteFile(path string) error {
	m.LastRunTimestamp.SetToCurrentTime()
	return prometheus.WriteToTextfile(path, m.registry)
}
