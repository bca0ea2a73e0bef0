package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gap_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the gap analysis pipeline.
type Metrics struct {
	PipelineRunning prometheus.Gauge
	RunDuration     prometheus.Histogram
	RunsCompleted   prometheus.Counter

	// Per-source analysis metrics.
	SourcesProcessed *prometheus.CounterVec // labels: outcome={success,failed}
	SourceDuration   *prometheus.HistogramVec
	RowsRead         *prometheus.CounterVec // labels: source
	RowsExcluded     *prometheus.CounterVec // labels: source, reason
	SitesReconciled  *prometheus.GaugeVec   // labels: source
	MissingDates     *prometheus.GaugeVec   // labels: source
	CorrelatedDates  *prometheus.GaugeVec   // labels: source
	Clusters         *prometheus.GaugeVec   // labels: source
	SkippedDates     *prometheus.GaugeVec   // labels: source
	CoordinateMisses *prometheus.GaugeVec   // labels: source

	// Result sinks.
	ResultsLoaded *prometheus.CounterVec // labels: sink
	LoadErrors    *prometheus.CounterVec // labels: sink

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: method={reverse}, outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec   // labels: method={reverse}, result={hit,miss}
	GeocodeAPIDuration *prometheus.HistogramVec // labels: method={reverse}
	GeocodeEnabled     prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsWithRegistry creates all pipeline metrics and registers them with reg.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return NewMetricsWithRegistry(prometheus.NewRegistry())
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while an analysis run is in progress, 0 otherwise.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete extract-analyze-load run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		RunsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Total analysis runs that reached the load stage.",
		}),
		SourcesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sources_processed_total",
			Help:      "Sources analyzed by outcome.",
		}, []string{"outcome"}),
		SourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_duration_seconds",
			Help:      "Duration of extracting and analyzing one source.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"source"}),
		RowsRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_read_total",
			Help:      "Observation rows read per source.",
		}, []string{"source"}),
		RowsExcluded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_excluded_total",
			Help:      "Observation rows or sites excluded from analysis, by reason.",
		}, []string{"source", "reason"}),
		SitesReconciled: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sites_reconciled",
			Help:      "Sites with an established range in the latest run.",
		}, []string{"source"}),
		MissingDates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "missing_dates",
			Help:      "Missing site-dates found in the latest run.",
		}, []string{"source"}),
		CorrelatedDates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "correlated_dates",
			Help:      "Dates with more than one missing site in the latest run.",
		}, []string{"source"}),
		Clusters: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clusters",
			Help:      "Spatial clusters of missing sites in the latest run.",
		}, []string{"source"}),
		SkippedDates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "skipped_dates",
			Help:      "Dates left unclustered because the time budget ran out.",
		}, []string{"source"}),
		CoordinateMisses: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "coordinate_misses",
			Help:      "Missing sites without usable coordinates in the latest run.",
		}, []string{"source"}),
		ResultsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_loaded_total",
			Help:      "Reports written by each result sink.",
		}, []string{"sink"}),
		LoadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_errors_total",
			Help:      "Failed result sink writes, including retried attempts.",
		}, []string{"sink"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by method and outcome.",
		}, []string{"method", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by method and result.",
		}, []string{"method", "result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method"}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      "1 when place-name annotation is enabled, 0 otherwise.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PipelineRunning,
		m.RunDuration,
		m.RunsCompleted,
		m.SourcesProcessed,
		m.SourceDuration,
		m.RowsRead,
		m.RowsExcluded,
		m.SitesReconciled,
		m.MissingDates,
		m.CorrelatedDates,
		m.Clusters,
		m.SkippedDates,
		m.CoordinateMisses,
		m.ResultsLoaded,
		m.LoadErrors,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	}
}
