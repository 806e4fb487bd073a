package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quake_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec   // labels: outcome={success,error,rejected}
	StageDuration   *prometheus.HistogramVec // labels: stage={extract,load,transform,stats,publish}
	PipelineRunning prometheus.Gauge

	// Feed metrics.
	FeedRequests        *prometheus.CounterVec // labels: outcome={success,error}
	FeedRequestDuration prometheus.Histogram

	// Raw store metrics.
	RawRowsDeleted prometheus.Counter
	RawRowsLoaded  prometheus.Counter

	// Transform metrics.
	SchemaColumnsAdded  prometheus.Counter
	StagingRowsDeleted  prometheus.Counter
	StagingRowsInserted prometheus.Counter
	TimestampFallbacks  prometheus.Counter
	UnknownRegions      prometheus.Counter

	// Staging table snapshot, refreshed after each transform.
	StagingRows    prometheus.Gauge
	StagingRegions prometheus.Gauge

	PublishErrors prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline invocations by outcome.",
		}, []string{"outcome"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		FeedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_requests_total",
			Help:      "USGS feed requests by outcome.",
		}, []string{"outcome"}),
		FeedRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_request_duration_seconds",
			Help:      "USGS feed request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		RawRowsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "raw_rows_deleted_total",
			Help:      "Raw rows removed when a batch was replaced.",
		}),
		RawRowsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "raw_rows_loaded_total",
			Help:      "Raw rows written to the earthquakes table.",
		}),
		SchemaColumnsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_columns_added_total",
			Help:      "Columns added to the staging table by schema reconciliation.",
		}),
		StagingRowsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "staging_rows_deleted_total",
			Help:      "Staging rows removed before window re-population.",
		}),
		StagingRowsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "staging_rows_inserted_total",
			Help:      "Staging rows written by the windowed transform.",
		}),
		TimestampFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timestamp_fallbacks_total",
			Help:      "Events whose time was missing or out of range and replaced with now.",
		}),
		UnknownRegions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_region_total",
			Help:      "Events whose place matched no parsing rule.",
		}),
		StagingRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "staging_rows",
			Help:      "Rows in the staging table after the last transform.",
		}),
		StagingRegions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "staging_regions",
			Help:      "Distinct regions in the staging table after the last transform.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed attempts to publish staged rows to the sink topic.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RunsTotal,
		m.StageDuration,
		m.PipelineRunning,
		m.FeedRequests,
		m.FeedRequestDuration,
		m.RawRowsDeleted,
		m.RawRowsLoaded,
		m.SchemaColumnsAdded,
		m.StagingRowsDeleted,
		m.StagingRowsInserted,
		m.TimestampFallbacks,
		m.UnknownRegions,
		m.StagingRows,
		m.StagingRegions,
		m.PublishErrors,
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics registered on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
