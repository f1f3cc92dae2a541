package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// intelligence pipeline.
type Metrics struct {
	Recomputes        prometheus.Counter
	RecomputeFailures prometheus.Counter
	RecomputeDuration prometheus.Histogram
	HealthScore       prometheus.Gauge

	// Cache and freshness metrics.
	CacheServes     *prometheus.CounterVec // labels: outcome={fresh,recomputed,stale}
	SourceFreshness *prometheus.GaugeVec   // labels: source; seconds since last successful fetch

	// Source adapter metrics.
	SourceFetches *prometheus.CounterVec // labels: source, outcome={success,error}

	// Model metrics.
	Predictions *prometheus.CounterVec // labels: model, outcome={ok,degraded}

	// Snapshot publishing metrics.
	SnapshotPublishes *prometheus.CounterVec // labels: outcome={success,error}
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Recomputes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "enviro_intel",
			Name:      "recomputes_total",
			Help:      "Total composite recomputations triggered by staleness or force.",
		}),
		RecomputeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "enviro_intel",
			Name:      "recompute_failures_total",
			Help:      "Total recomputations that produced no usable result.",
		}),
		RecomputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "enviro_intel",
			Name:      "recompute_duration_seconds",
			Help:      "Duration of a complete fetch-normalize-predict-aggregate cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		HealthScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "enviro_intel",
			Name:      "health_score",
			Help:      "Most recently computed environmental health score.",
		}),
		CacheServes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "enviro_intel",
			Name:      "cache_serves_total",
			Help:      "Composite serves by outcome.",
		}, []string{"outcome"}),
		SourceFreshness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "enviro_intel",
			Name:      "source_freshness_seconds",
			Help:      "Seconds since each source last fetched successfully.",
		}, []string{"source"}),
		SourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "enviro_intel",
			Name:      "source_fetches_total",
			Help:      "Source fetch attempts by source and outcome.",
		}, []string{"source", "outcome"}),
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "enviro_intel",
			Name:      "predictions_total",
			Help:      "Model prediction attempts by model and outcome.",
		}, []string{"model", "outcome"}),
		SnapshotPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "enviro_intel",
			Name:      "snapshot_publishes_total",
			Help:      "Composite snapshot publishes by outcome.",
		}, []string{"outcome"}),
	}

	prometheus.MustRegister(
		m.Recomputes,
		m.RecomputeFailures,
		m.RecomputeDuration,
		m.HealthScore,
		m.CacheServes,
		m.SourceFreshness,
		m.SourceFetches,
		m.Predictions,
		m.SnapshotPublishes,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		Recomputes:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "enviro_intel", Name: "recomputes_total"}),
		RecomputeFailures: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "enviro_intel", Name: "recompute_failures_total"}),
		RecomputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "enviro_intel", Name: "recompute_duration_seconds"}),
		HealthScore:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "enviro_intel", Name: "health_score"}),
		CacheServes:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "enviro_intel", Name: "cache_serves_total"}, []string{"outcome"}),
		SourceFreshness:   prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: "enviro_intel", Name: "source_freshness_seconds"}, []string{"source"}),
		SourceFetches:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "enviro_intel", Name: "source_fetches_total"}, []string{"source", "outcome"}),
		Predictions:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "enviro_intel", Name: "predictions_total"}, []string{"model", "outcome"}),
		SnapshotPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "enviro_intel", Name: "snapshot_publishes_total"}, []string{"outcome"}),
	}
}
