// Package metrics provides Prometheus metrics for the accident-severity
// tools: dataset preparation runs, model training and the prediction service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Pipeline metrics
	PipelineRuns     *prometheus.CounterVec // Preparation runs by status
	PipelineDuration prometheus.Histogram   // Duration of preparation runs
	StageRows        *prometheus.GaugeVec   // Rows after each stage of the last run

	// ML and prediction metrics
	MLPredictions      prometheus.Counter   // Total number of predictions served
	MLFailures         prometheus.Counter   // Predictions that failed after validation, or without a model
	MLValidationErrors prometheus.Counter   // Requests rejected for missing or invalid features
	MLModelAge         prometheus.Gauge     // Age of the current model in seconds
	MLModelLoaded      prometheus.Gauge     // 1 while a model is installed
	MLLatency          prometheus.Histogram // Prediction latency in seconds
	MLPredictionScores prometheus.Histogram // Distribution of predicted probabilities
	MLTrainingDuration prometheus.Histogram // Model training duration in seconds

	// Dashboard
	DashboardClients prometheus.Gauge // Connected live feed clients

	gatherer prometheus.Gatherer
}

// New creates all metrics on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(registry)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
// The registry is also used to gather values for the error rate.
func NewWithRegistry(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		PipelineRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Total number of dataset preparation runs by status",
		}, []string{"status"}),
		PipelineDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeline_duration_seconds",
			Help:    "Duration of dataset preparation runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		StageRows: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pipeline_stage_rows",
			Help: "Rows after each stage of the last preparation run",
		}, []string{"stage"}),
		MLPredictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_predictions_total",
			Help: "Total number of predictions served",
		}),
		MLFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_failures_total",
			Help: "Total number of failed predictions",
		}),
		MLValidationErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_validation_errors_total",
			Help: "Total number of prediction requests with missing or invalid features",
		}),
		MLModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ml_model_age_seconds",
			Help: "Age of the current model in seconds",
		}),
		MLModelLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ml_model_loaded",
			Help: "Whether a model is installed (1) or not (0)",
		}),
		MLLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_latency_seconds",
			Help:    "Prediction latency in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		MLPredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_prediction_scores",
			Help:    "Distribution of predicted severity probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		MLTrainingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_training_duration_seconds",
			Help:    "Model training duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		DashboardClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dashboard_clients",
			Help: "Number of connected live feed clients",
		}),
		gatherer: registry,
	}
}

// Gatherer returns the registry the metrics were registered on.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

// GetErrorRate returns failed and rejected predictions over all prediction
// requests, or 0 before the first request.
func (m *Metrics) GetErrorRate() float64 {
	var served, failed float64

	metricFamilies, err := m.gatherer.Gather()
	if err != nil {
		return 0
	}

	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "ml_predictions_total":
			for _, metric := range mf.Metric {
				served += metric.GetCounter().GetValue()
			}
		case "ml_failures_total", "ml_validation_errors_total":
			for _, metric := range mf.Metric {
				failed += metric.GetCounter().GetValue()
			}
		}
	}

	if served+failed == 0 {
		return 0
	}
	return failed / (served + failed)
}
