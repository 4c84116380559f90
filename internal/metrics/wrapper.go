package metrics

import "time"

// MetricsWrapper adapts Metrics to the narrow interfaces the pipeline, the
// predictor and the dashboard depend on.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

// pipeline.MetricsInterface

func (w *MetricsWrapper) StageRowsSet(stage string, rows int) {
	w.m.StageRows.WithLabelValues(stage).Set(float64(rows))
}

func (w *MetricsWrapper) PipelineDurationObserve(d time.Duration) {
	w.m.PipelineDuration.Observe(d.Seconds())
}

func (w *MetricsWrapper) PipelineRunsInc(status string) {
	w.m.PipelineRuns.WithLabelValues(status).Inc()
}

// ml.MetricsInterface

func (w *MetricsWrapper) MLPredictionsInc() {
	w.m.MLPredictions.Inc()
}

func (w *MetricsWrapper) MLFailuresInc() {
	w.m.MLFailures.Inc()
}

func (w *MetricsWrapper) MLValidationErrorsInc() {
	w.m.MLValidationErrors.Inc()
}

func (w *MetricsWrapper) MLLatencyObserve(v float64) {
	w.m.MLLatency.Observe(v)
}

func (w *MetricsWrapper) MLModelAgeSet(v float64) {
	w.m.MLModelAge.Set(v)
}

func (w *MetricsWrapper) MLPredictionScoresObserve(v float64) {
	w.m.MLPredictionScores.Observe(v)
}

func (w *MetricsWrapper) MLModelLoadedSet(loaded bool) {
	if loaded {
		w.m.MLModelLoaded.Set(1)
		return
	}
	w.m.MLModelLoaded.Set(0)
}

func (w *MetricsWrapper) MLTrainingDurationObserve(v float64) {
	w.m.MLTrainingDuration.Observe(v)
}

// dashboard

func (w *MetricsWrapper) DashboardClientsSet(n int) {
	w.m.DashboardClients.Set(float64(n))
}
