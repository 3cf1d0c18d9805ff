package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aladin_mirror"

// Metrics holds the Prometheus counters, histograms, and gauges for the mirror pipeline.
type Metrics struct {
	RunsTotal            *prometheus.CounterVec // labels: outcome={success,failed}
	PipelineRunning      prometheus.Gauge
	PipelineState        prometheus.Gauge
	StageDuration        *prometheus.HistogramVec // labels: stage
	LastSuccessTimestamp prometheus.Gauge

	// Per-file stage metrics.
	Downloads       *prometheus.CounterVec // labels: outcome={downloaded,skipped,failed}
	BytesDownloaded prometheus.Counter
	Transforms      *prometheus.CounterVec // labels: path={primary,fallback,failed}

	RetentionRemovals *prometheus.CounterVec // labels: outcome={removed,error}

	// File server metrics.
	HTTPRequests *prometheus.CounterVec // labels: route, code
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RunsTotal,
		m.PipelineRunning,
		m.PipelineState,
		m.StageDuration,
		m.LastSuccessTimestamp,
		m.Downloads,
		m.BytesDownloaded,
		m.Transforms,
		m.RetentionRemovals,
		m.HTTPRequests,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline invocations by outcome.",
		}, []string{"outcome"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a pipeline invocation is in progress.",
		}),
		PipelineState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_state",
			Help:      "Current orchestrator state (0=idle, 1=discovering ... 8=done, 9=failed).",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent per pipeline stage.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"stage"}),
		LastSuccessTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful publication.",
		}),
		Downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Source file fetches by outcome.",
		}, []string{"outcome"}),
		BytesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Bytes received from the remote archive.",
		}),
		Transforms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transforms_total",
			Help:      "Per-file transforms by the path that produced them.",
		}, []string{"path"}),
		RetentionRemovals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_removals_total",
			Help:      "Working run directories removed by the retention sweep.",
		}, []string{"outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "File server requests by route and status code.",
		}, []string{"route", "code"}),
	}
}
