package wikimcp

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request lifecycle and
// reliability layers. All record methods are nil-receiver safe so callers can
// skip the "is metrics enabled" check. It is safe for concurrent use.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec
	circuitBreakerOpens *prometheus.CounterVec

	mirrorFailovers *prometheus.CounterVec

	rateLimiterTokens *prometheus.GaugeVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheSize   *prometheus.GaugeVec

	dedupHits *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer. GetRegistry returns nil when the registerer is not a *Registry.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	reg, _ := registry.(*prometheus.Registry)
	mc := &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikimcp_requests_total",
				Help: "Total number of upstream requests made",
			},
			[]string{"operation", "status_code", "mirror"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wikimcp_request_duration_seconds",
				Help:    "Duration of upstream requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "status_code", "mirror"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "wikimcp_requests_in_flight",
				Help: "Number of requests currently in flight",
			},
			[]string{"operation"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikimcp_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"operation", "attempt"},
		),
		circuitBreakerState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "wikimcp_circuit_breaker_state",
				Help: "Current state of a mirror circuit breaker (0=closed, 1=open, 2=half-open)",
			},
			[]string{"mirror"},
		),
		circuitBreakerOpens: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikimcp_circuit_breaker_opens_total",
				Help: "Total number of transitions into the open state",
			},
			[]string{"mirror"},
		),
		mirrorFailovers: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikimcp_mirror_failovers_total",
				Help: "Total number of failovers from one mirror to another",
			},
			[]string{"from", "to"},
		),
		rateLimiterTokens: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "wikimcp_rate_limiter_tokens",
				Help: "Current number of available rate limiter tokens",
			},
			[]string{"limiter"},
		),
		cacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikimcp_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"operation"},
		),
		cacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikimcp_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"operation"},
		),
		cacheSize: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "wikimcp_cache_size",
				Help: "Current number of entries in cache",
			},
			[]string{"cache"},
		),
		dedupHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikimcp_dedup_hits_total",
				Help: "Total number of requests coalesced onto an in-flight call",
			},
			[]string{"operation"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikimcp_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"kind", "operation", "mirror"},
		),
		registry: reg,
	}

	return mc
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(operation, mirror string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}

	statusCodeStr := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(operation, statusCodeStr, mirror).Inc()
	mc.requestDuration.WithLabelValues(operation, statusCodeStr, mirror).Observe(duration.Seconds())
}

// RecordRequestStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(operation string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(operation).Inc()
}

// RecordRequestEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(operation string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(operation).Dec()
}

// RecordRetry increments the retry counter for an attempt.
func (mc *MetricsCollector) RecordRetry(operation string, attempt int) {
	if mc == nil {
		return
	}

	attemptStr := strconv.Itoa(attempt)
	mc.retriesTotal.WithLabelValues(operation, attemptStr).Inc()
}

// RecordCircuitBreakerState sets the state gauge for a mirror's breaker.
func (mc *MetricsCollector) RecordCircuitBreakerState(mirror string, state CircuitState) {
	if mc == nil {
		return
	}

	var stateValue float64
	switch state {
	case StateClosed:
		stateValue = 0
	case StateOpen:
		stateValue = 1
	case StateHalfOpen:
		stateValue = 2
	}

	mc.circuitBreakerState.WithLabelValues(mirror).Set(stateValue)
}

// RecordCircuitBreakerOpen increments the open-transition counter for a mirror.
func (mc *MetricsCollector) RecordCircuitBreakerOpen(mirror string) {
	if mc == nil {
		return
	}

	mc.circuitBreakerOpens.WithLabelValues(mirror).Inc()
}

// RecordFailover increments the failover counter for a mirror pair.
func (mc *MetricsCollector) RecordFailover(from, to string) {
	if mc == nil {
		return
	}

	mc.mirrorFailovers.WithLabelValues(from, to).Inc()
}

// RecordRateLimiterTokens sets the available token gauge.
func (mc *MetricsCollector) RecordRateLimiterTokens(limiter string, tokens int) {
	if mc == nil {
		return
	}

	mc.rateLimiterTokens.WithLabelValues(limiter).Set(float64(tokens))
}

// RecordCacheHit increments the cache hit counter.
func (mc *MetricsCollector) RecordCacheHit(operation string) {
	if mc == nil {
		return
	}

	mc.cacheHits.WithLabelValues(operation).Inc()
}

// RecordCacheMiss increments the cache miss counter.
func (mc *MetricsCollector) RecordCacheMiss(operation string) {
	if mc == nil {
		return
	}

	mc.cacheMisses.WithLabelValues(operation).Inc()
}

// RecordCacheSize sets the cache size gauge.
func (mc *MetricsCollector) RecordCacheSize(cache string, size int) {
	if mc == nil {
		return
	}

	mc.cacheSize.WithLabelValues(cache).Set(float64(size))
}

// RecordDedupHit increments the coalesced-request counter.
func (mc *MetricsCollector) RecordDedupHit(operation string) {
	if mc == nil {
		return
	}

	mc.dedupHits.WithLabelValues(operation).Inc()
}

// RecordError increments the error counter by kind.
func (mc *MetricsCollector) RecordError(kind ErrorKind, operation, mirror string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(string(kind), operation, mirror).Inc()
}

// GetRegistry exposes the underlying prometheus registry, or nil when the
// collector was built on a plain Registerer.
func (mc *MetricsCollector) GetRegistry() *prometheus.Registry {
	return mc.registry
}
