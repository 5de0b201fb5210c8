package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// forcing pipeline.
type Metrics struct {
	UnitsProcessed prometheus.Counter
	UnitsFailed    prometheus.Counter
	UnitsSkipped   prometheus.Counter // recoverable pairing failures
	DaysDropped    prometheus.Counter // incomplete calendar days
	BatchRunning   prometheus.Gauge

	UnitDuration  prometheus.Histogram
	StageDuration *prometheus.HistogramVec // label: stage={read,derive,aggregate,regrid,write}

	WeightsCacheHits   prometheus.Counter
	WeightsCacheMisses prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		UnitsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forcing_etl",
			Name:      "units_processed_total",
			Help:      "Total (variable, year) units completed successfully.",
		}),
		UnitsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forcing_etl",
			Name:      "units_failed_total",
			Help:      "Total (variable, year) units that failed fatally.",
		}),
		UnitsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forcing_etl",
			Name:      "units_skipped_total",
			Help:      "Total units skipped on recoverable pairing failures.",
		}),
		DaysDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forcing_etl",
			Name:      "days_dropped_total",
			Help:      "Total calendar days dropped for incomplete hourly coverage.",
		}),
		BatchRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "forcing_etl",
			Name:      "batch_running",
			Help:      "1 while the batch run is active, 0 after shutdown.",
		}),
		UnitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "forcing_etl",
			Name:      "unit_duration_seconds",
			Help:      "End-to-end duration of one (variable, year) unit.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "forcing_etl",
			Name:      "stage_duration_seconds",
			Help:      "Duration of one pipeline stage within a unit.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		WeightsCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forcing_etl",
			Name:      "weights_cache_hits_total",
			Help:      "Interpolation weight lookups served from the cache.",
		}),
		WeightsCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forcing_etl",
			Name:      "weights_cache_misses_total",
			Help:      "Interpolation weight lookups that required precomputation.",
		}),
	}

	prometheus.MustRegister(
		m.UnitsProcessed,
		m.UnitsFailed,
		m.UnitsSkipped,
		m.DaysDropped,
		m.BatchRunning,
		m.UnitDuration,
		m.StageDuration,
		m.WeightsCacheHits,
		m.WeightsCacheMisses,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		UnitsProcessed:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "forcing_etl", Name: "units_processed_total"}),
		UnitsFailed:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "forcing_etl", Name: "units_failed_total"}),
		UnitsSkipped:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "forcing_etl", Name: "units_skipped_total"}),
		DaysDropped:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "forcing_etl", Name: "days_dropped_total"}),
		BatchRunning:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "forcing_etl", Name: "batch_running"}),
		UnitDuration:       prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "forcing_etl", Name: "unit_duration_seconds"}),
		StageDuration:      prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "forcing_etl", Name: "stage_duration_seconds"}, []string{"stage"}),
		WeightsCacheHits:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "forcing_etl", Name: "weights_cache_hits_total"}),
		WeightsCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "forcing_etl", Name: "weights_cache_misses_total"}),
	}
}
