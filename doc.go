// Package wikimcp provides resilient read access to Wikipedia's MediaWiki API
// with composable reliability primitives:
//
//   - Ordered mirror failover with a sticky preferred mirror
//   - Per-mirror circuit breakers (open / half‑open / closed states)
//   - Retries with exponential or decorrelated-jitter backoff
//   - In‑memory TTL+LRU caching with per‑operation lifetimes
//   - Request de‑duplication (merges concurrent identical in‑flight fetches)
//   - Per-mirror token-bucket rate limiting
//   - Prometheus metrics, in-process telemetry rings and structured debug logging
//
// Design goals:
//   - Small surface area – functional options configure everything
//   - Typed results and kind-tagged errors instead of raw HTTP responses
//   - Safe concurrent use of a single *ContentService instance
//   - Extensibility via pluggable logger, metrics, monitor and rate limiters
//
// Typical usage:
//
//	service := wikimcp.New(
//	    wikimcp.WithMaxRetries(3),
//	    wikimcp.WithRateLimiter(10, time.Second),
//	    wikimcp.WithCache(500, 10*time.Minute),
//	    wikimcp.WithCircuitBreaker(wikimcp.CircuitBreakerConfig{}),
//	)
//	results, err := service.Search(ctx, "Go (programming language)", wikimcp.SearchOptions{})
//
// Only transient failures trigger retries by default; override with
// WithRetryCondition. The library avoids opinionated logging: provide a Logger
// (e.g. via WithSimpleLogger) + enable debug flags selectively (WithDebug /
// WithDebugConfig) for insight without noise.
package wikimcp
