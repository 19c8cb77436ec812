package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lake_wq"

// Metrics holds the Prometheus counters, histograms, and gauges for the analysis pipeline.
type Metrics struct {
	PipelineRunning prometheus.Gauge
	RunsCompleted   *prometheus.CounterVec // labels: outcome={success,error}
	RunDuration     prometheus.Histogram
	LastRunTime     prometheus.Gauge

	// Period processing metrics.
	PeriodsProcessed *prometheus.CounterVec   // labels: kind={season,year}, status={ok,no_data,failed}
	PeriodDuration   *prometheus.HistogramVec // labels: kind
	ImagesComposited prometheus.Counter

	// Zonal reduction metrics.
	ScaleCoarsened prometheus.Counter

	// Scene cache metrics.
	SceneCache *prometheus.CounterVec // labels: result={hit,miss}

	// Export metrics.
	ExportsSubmitted *prometheus.CounterVec // labels: sink
	ExportErrors     *prometheus.CounterVec // labels: sink
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while an analysis run is in progress, 0 otherwise.",
		}),
		RunsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed analysis runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete seasonal and annual analysis run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		LastRunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		PeriodsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "periods_processed_total",
			Help:      "Processed periods by kind and status.",
		}, []string{"kind", "status"}),
		PeriodDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "period_duration_seconds",
			Help:      "Duration of compositing, index derivation and reduction for one period.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
		ImagesComposited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_composited_total",
			Help:      "Scenes fed into median composites.",
		}),
		ScaleCoarsened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zonal_scale_coarsened_total",
			Help:      "Best-effort reductions that coarsened their scale to fit the pixel budget.",
		}),
		SceneCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scene_cache_total",
			Help:      "Scene cache lookups by result.",
		}, []string{"result"}),
		ExportsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_submitted_total",
			Help:      "Export jobs submitted by sink.",
		}, []string{"sink"}),
		ExportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_errors_total",
			Help:      "Failed export jobs by sink.",
		}, []string{"sink"}),
	}

	prometheus.MustRegister(
		m.PipelineRunning,
		m.RunsCompleted,
		m.RunDuration,
		m.LastRunTime,
		m.PeriodsProcessed,
		m.PeriodDuration,
		m.ImagesComposited,
		m.ScaleCoarsened,
		m.SceneCache,
		m.ExportsSubmitted,
		m.ExportErrors,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		PipelineRunning:  prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "pipeline_running"}),
		RunsCompleted:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "runs_total"}, []string{"outcome"}),
		RunDuration:      prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "run_duration_seconds"}),
		LastRunTime:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "last_run_timestamp_seconds"}),
		PeriodsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "periods_processed_total"}, []string{"kind", "status"}),
		PeriodDuration:   prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "period_duration_seconds"}, []string{"kind"}),
		ImagesComposited: prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "images_composited_total"}),
		ScaleCoarsened:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "zonal_scale_coarsened_total"}),
		SceneCache:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "scene_cache_total"}, []string{"result"}),
		ExportsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "exports_submitted_total"}, []string{"sink"}),
		ExportErrors:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "export_errors_total"}, []string{"sink"}),
	}
}
