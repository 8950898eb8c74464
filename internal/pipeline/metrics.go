package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// pipelineMetrics holds all Prometheus metrics owned by the pipeline.
// A single instance is created in New and stored on Pipeline so that tests
// can inject a fresh prometheus.Registry without polluting the default one.
type pipelineMetrics struct {
	// runsTotal counts completed runs, partitioned by terminal state
	// ("done", "exhausted", or "error" for hard failures) and route.
	runsTotal *prometheus.CounterVec

	// retriesPerRun records the retry budget consumed by each completed run.
	retriesPerRun prometheus.Histogram

	// runDurationSeconds records the wall-clock duration of each run.
	runDurationSeconds *prometheus.HistogramVec
}

// newPipelineMetrics registers all pipeline metrics against reg. promauto is
// given the provided registry rather than the global default so unit tests
// stay hermetic.
func newPipelineMetrics(reg prometheus.Registerer) *pipelineMetrics {
	factory := promauto.With(reg)

	return &pipelineMetrics{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crag",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs, partitioned by terminal state and route.",
		}, []string{"state", "route"}),

		retriesPerRun: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "crag",
			Subsystem: "pipeline",
			Name:      "retries_per_run",
			Help:      "Retry budget consumed per completed run.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8},
		}),

		runDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crag",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of pipeline runs from question to terminal state.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}, []string{"state"}),
	}
}

// observeRun records the terminal metrics for one run. state is a terminal
// State or the literal "error" for hard failures.
func (m *pipelineMetrics) observeRun(state, route string, retries int, seconds float64) {
	m.runsTotal.WithLabelValues(state, route).Inc()
	m.retriesPerRun.Observe(float64(retries))
	m.runDurationSeconds.WithLabelValues(state).Observe(seconds)
}
