package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ecomverify_analyses_total",
		Help: "Analyses served, by verdict and by where the result came from",
	}, []string{"verdict", "source"})

	AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ecomverify_analysis_duration_seconds",
		Help:    "Wall-clock time of a full engine run",
		Buckets: []float64{0.5, 1, 2, 4, 8, 15, 30},
	})

	FallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ecomverify_aggregation_fallbacks_total",
		Help: "Analyses that ended in the conservative fallback result",
	})

	ProbeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ecomverify_probe_duration_seconds",
		Help:    "Duration of each page probe",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
	}, []string{"probe"})

	ProbeDegradedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ecomverify_probe_degraded_total",
		Help: "Probe runs that returned their degraded default",
	}, []string{"probe"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ecomverify_cache_lookups_total",
		Help: "Result cache lookups by layer and outcome",
	}, []string{"layer", "outcome"})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ecomverify_circuit_breaker_state",
		Help: "Current state of circuit breakers (0=closed, 0.5=half-open, 1=open)",
	}, []string{"breaker"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
