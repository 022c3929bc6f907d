package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "disaster_nearby"

// Metrics holds the Prometheus collectors for the sync pipeline, proximity search and geocoding.
type Metrics struct {
	// Sync pipeline.
	SyncCycles        *prometheus.CounterVec // labels: outcome={committed,no_new_events,failed}
	SyncCycleDuration prometheus.Histogram
	SyncRunning       prometheus.Gauge
	EventsCommitted   prometheus.Counter
	RecordsRejected   *prometheus.CounterVec // labels: schema
	EventsSkipped     *prometheus.CounterVec // labels: reason={stale,duplicate}

	// Proximity search.
	ProximitySearches *prometheus.CounterVec // labels: category, outcome={found,not_found,provider_error,timeout}
	ProximityAttempts prometheus.Histogram
	PlacesAPIDuration prometheus.Histogram

	// Geocoding.
	GeocodeRequests *prometheus.CounterVec // labels: method={forward,reverse}, outcome={success,not_found,error}
	GeocodeCache    *prometheus.CounterVec // labels: method, result={hit,miss}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.SyncCycles,
		m.SyncCycleDuration,
		m.SyncRunning,
		m.EventsCommitted,
		m.RecordsRejected,
		m.EventsSkipped,
		m.ProximitySearches,
		m.ProximityAttempts,
		m.PlacesAPIDuration,
		m.GeocodeRequests,
		m.GeocodeCache,
	)
	return m
}

// NewMetricsForTesting creates unregistered collectors so tests can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		SyncCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_cycles_total",
			Help:      "Sync cycles by outcome.",
		}, []string{"outcome"}),
		SyncCycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_cycle_duration_seconds",
			Help:      "Duration of a complete fetch-normalize-dedup-commit cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
		SyncRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_running",
			Help:      "1 while a sync cycle is in progress.",
		}),
		EventsCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_committed_total",
			Help:      "Disaster events appended to the canonical store.",
		}),
		RecordsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Upstream records dropped during normalization.",
		}, []string{"schema"}),
		EventsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_skipped_total",
			Help:      "Normalized events not committed, by reason.",
		}, []string{"reason"}),
		ProximitySearches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proximity_searches_total",
			Help:      "Adaptive-radius searches by category and outcome.",
		}, []string{"category", "outcome"}),
		ProximityAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "proximity_attempts",
			Help:      "Provider queries made per adaptive-radius search.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		}),
		PlacesAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "places_api_duration_seconds",
			Help:      "Places provider request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding provider requests by method and outcome.",
		}, []string{"method", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by method and result.",
		}, []string{"method", "result"}),
	}
}
