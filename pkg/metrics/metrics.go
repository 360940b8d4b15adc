package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "statrelay_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// CacheRequests counts cache lookups by outcome (hit|miss).
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statrelay_cache_requests_total",
			Help: "Total number of response cache lookups",
		},
		[]string{"outcome"},
	)

	// CacheInvalidations counts explicit invalidations by key family.
	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statrelay_cache_invalidations_total",
			Help: "Total number of cache invalidations triggered by writes",
		},
		[]string{"family"},
	)

	// RateLimitDecisions counts limiter outcomes per operation class (allow|reject).
	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statrelay_ratelimit_decisions_total",
			Help: "Total number of rate limit decisions",
		},
		[]string{"class", "decision"},
	)

	// UpstreamQueries counts row-store round trips by operation and result (ok|error).
	UpstreamQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statrelay_upstream_queries_total",
			Help: "Total number of upstream row-store queries",
		},
		[]string{"operation", "result"},
	)

	// RealtimeConnections tracks currently connected websocket clients.
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "statrelay_realtime_connections",
			Help: "Number of connected realtime subscribers",
		},
	)
)
