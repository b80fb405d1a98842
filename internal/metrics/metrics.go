// Package metrics exposes Prometheus collectors for the traffic service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	resolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traffic_resolutions_total",
			Help: "Total number of successful resolutions, labeled by the stage that produced the record.",
		},
		[]string{"source"},
	)

	resolutionErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traffic_resolution_errors_total",
			Help: "Total number of resolutions surfaced as errors, labeled by kind.",
		},
		[]string{"kind"},
	)

	stageSoftFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traffic_stage_soft_failures_total",
			Help: "Total number of stage failures that advanced the chain, labeled by stage and reason.",
		},
		[]string{"stage", "reason"},
	)

	upstreamDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "traffic_upstream_request_duration_seconds",
			Help:    "Histogram of upstream lookup latencies, labeled by upstream and outcome.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"upstream", "outcome"},
	)

	rankCacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traffic_rank_cache_lookups_total",
			Help: "Total number of rank cache reads, labeled by result.",
		},
		[]string{"result"},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "traffic_rate_limit_delay_seconds",
			Help:    "Histogram of outbound rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"upstream"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "traffic_circuit_breaker_state",
			Help: "Circuit breaker state per upstream (0 closed, 1 half-open, 2 open).",
		},
		[]string{"name"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveResolution counts a record produced by source.
func ObserveResolution(source string) {
	resolutionsTotal.WithLabelValues(source).Inc()
}

// ObserveResolutionError counts a user-facing resolution error.
func ObserveResolutionError(kind string) {
	resolutionErrorsTotal.WithLabelValues(kind).Inc()
}

// ObserveSoftFailure counts a stage failure that advanced the chain.
func ObserveSoftFailure(stage, reason string) {
	stageSoftFailuresTotal.WithLabelValues(stage, reason).Inc()
}

// ObserveUpstream records the latency of one upstream call.
func ObserveUpstream(upstream, outcome string, duration time.Duration) {
	upstreamDurationSeconds.WithLabelValues(upstream, outcome).Observe(duration.Seconds())
}

// ObserveRankCache counts a rank cache read ("hit", "miss" or "error").
func ObserveRankCache(result string) {
	rankCacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(upstream string, duration time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(upstream).Observe(duration.Seconds())
}

// SetBreakerState publishes the numeric state of a circuit breaker.
func SetBreakerState(name string, state int) {
	breakerState.WithLabelValues(name).Set(float64(state))
}
