package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"energypulse/internal/model"
)

const namespace = "energypulse"

// Run outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RecordsIngested  *prometheus.CounterVec // labels: kind={weather,energy}, location
	QualityVerdicts  *prometheus.CounterVec // labels: check, status
	PipelineRuns     *prometheus.CounterVec // labels: outcome={success,error,skipped}
	PipelineDuration prometheus.Histogram
	MetricValue      *prometheus.GaugeVec // labels: metric, location
}

// NewMetrics creates the pipeline metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RecordsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_ingested_total",
			Help:      "Observations persisted by kind and location.",
		}, []string{"kind", "location"}),
		QualityVerdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quality_verdicts_total",
			Help:      "Quality check verdicts by check name and status.",
		}, []string{"check", "status"}),
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Pipeline executions by outcome.",
		}, []string{"outcome"}),
		PipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_run_duration_seconds",
			Help:      "Duration of a complete ingest, quality, and metrics run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		MetricValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "metric_value",
			Help:      "Latest computed value of each summary metric.",
		}, []string{"metric", "location"}),
	}

	reg.MustRegister(
		m.RecordsIngested,
		m.QualityVerdicts,
		m.PipelineRuns,
		m.PipelineDuration,
		m.MetricValue,
	)

	return m
}

// ObserveIngest counts persisted observations for a location.
func (m *Metrics) ObserveIngest(location string, weather, energy int) {
	if m == nil {
		return
	}
	m.RecordsIngested.WithLabelValues("weather", location).Add(float64(weather))
	m.RecordsIngested.WithLabelValues("energy", location).Add(float64(energy))
}

// ObserveVerdicts counts quality verdicts.
func (m *Metrics) ObserveVerdicts(results []model.QualityCheckResult) {
	if m == nil {
		return
	}
	for _, r := range results {
		m.QualityVerdicts.WithLabelValues(r.CheckName, string(r.Status)).Inc()
	}
}

// ObserveMetrics publishes metric values, labelled by their location dimension.
func (m *Metrics) ObserveMetrics(results []model.MetricResult) {
	if m == nil {
		return
	}
	for _, r := range results {
		location := r.Dimensions["location"]
		if location == "" {
			location = "all"
		}
		m.MetricValue.WithLabelValues(r.MetricName, location).Set(r.Value)
	}
}

// ObserveRun records a pipeline run outcome and its duration.
func (m *Metrics) ObserveRun(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.PipelineRuns.WithLabelValues(outcome).Inc()
	if outcome != OutcomeSkipped {
		m.PipelineDuration.Observe(elapsed.Seconds())
	}
}
