package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_cache_hits_total",
		Help: "Total number of cache lookups served from a fresh entry.",
	}, []string{"cache"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_cache_misses_total",
		Help: "Total number of cache lookups that found no fresh entry.",
	}, []string{"cache"})

	CacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_cache_evictions_total",
		Help: "Total number of entries removed by expiry or capacity.",
	}, []string{"cache", "reason"})

	CacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dashboard_cache_entries",
		Help: "Current number of entries held by a cache.",
	}, []string{"cache"})

	BackendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dashboard_backend_request_seconds",
		Help:    "Latency of requests to the ticketing backend.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint", "outcome"})

	BackendFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_backend_fallbacks_total",
		Help: "Total number of fallback values served instead of backend data.",
	}, []string{"endpoint", "category"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dashboard_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
	}, []string{"name"})

	CoordinatorDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_coordinator_deduplicated_total",
		Help: "Total number of calls that joined an in-flight request instead of issuing a new one.",
	})

	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dashboard_batch_size",
		Help:    "Number of requests merged into a single downstream call.",
		Buckets: []float64{1, 2, 4, 8, 16, 32},
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dashboard_active_sessions",
		Help: "Current number of mounted dashboard sessions.",
	})

	SessionRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_session_refreshes_total",
		Help: "Total number of session loads by trigger and result.",
	}, []string{"trigger", "result"})

	DiagnosticsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_consistency_diagnostics_total",
		Help: "Total number of advisory consistency diagnostics raised on backend data.",
	}, []string{"check"})
)
