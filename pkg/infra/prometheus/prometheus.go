package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registry = prometheus.NewRegistry()

var registerer = prometheus.WrapRegistererWith(nil, registry)

var (
	// Latency buckets in milliseconds; the upstream call dominates, so the
	// upper buckets run out to the 30s call timeout.
	latencyBuckets = []float64{
		5, 10, 25,
		50, 100, 250,
		500, 1000, 2500,
		5000, 10000, 30000,
	}

	AnalysisRequestTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysisgate_requests_total",
			Help: "Total number of analysis requests processed",
		},
		[]string{"outcome"},
	)

	AnalysisLatency = promauto.With(registerer).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analysisgate_latency_ms",
			Help:    "Analysis request latency in milliseconds",
			Buckets: latencyBuckets,
		},
		[]string{"cached"},
	)

	CacheOperations = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysisgate_cache_operations_total",
			Help: "Cache lookups by result",
		},
		[]string{"result"},
	)

	RateLimitRejections = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysisgate_rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"tier"},
	)

	CircuitBreakerState = promauto.With(registerer).NewGauge(
		prometheus.GaugeOpts{
			Name: "analysisgate_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)
)

func Initialize() {
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
}
