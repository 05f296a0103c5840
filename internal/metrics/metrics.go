package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus instruments for the pipeline and forecaster.
type Metrics struct {
	PipelineRuns     prometheus.Counter
	PipelineFailures prometheus.Counter
	PipelineDuration prometheus.Histogram
	RowsDropped      *prometheus.CounterVec
	ReconciledDays   prometheus.Gauge

	ForecastsComputed   prometheus.Counter
	ForecastsFailed     prometheus.Counter
	ForecastCacheHits   prometheus.Counter
	ForecastCacheMisses prometheus.Counter

	RecordWrites prometheus.Counter
	RecordErrors prometheus.Counter
}

// New creates and registers all metrics on the default registry. Call once
// per process.
func New() *Metrics {
	return &Metrics{
		PipelineRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gridview_pipeline_runs_total",
			Help: "Total number of pipeline runs",
		}),
		PipelineFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gridview_pipeline_failures_total",
			Help: "Number of pipeline runs aborted by schema or decode errors",
		}),
		PipelineDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gridview_pipeline_duration_seconds",
			Help:    "Duration of a full reconciliation pass",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}),
		RowsDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gridview_rows_dropped_total",
				Help: "Rows dropped for unparseable dates, by feed",
			},
			[]string{"feed"},
		),
		ReconciledDays: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gridview_reconciled_days",
			Help: "Number of days in the last reconciled table",
		}),
		ForecastsComputed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gridview_forecasts_computed_total",
			Help: "Number of ARIMA fits completed",
		}),
		ForecastsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gridview_forecasts_failed_total",
			Help: "Number of ARIMA fits that failed (insufficient data or non-convergence)",
		}),
		ForecastCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gridview_forecast_cache_hits_total",
			Help: "Forecasts served from the content-addressed cache",
		}),
		ForecastCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gridview_forecast_cache_misses_total",
			Help: "Forecast cache misses",
		}),
		RecordWrites: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gridview_record_writes_total",
			Help: "Restriction record mutations (append, update, delete)",
		}),
		RecordErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gridview_record_errors_total",
			Help: "Restriction record store errors",
		}),
	}
}
