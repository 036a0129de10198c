package wikimcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
)

// DefaultRequestTimeout bounds every single upstream attempt.
const DefaultRequestTimeout = 10 * time.Second

// DefaultUserAgent identifies outbound requests, as the upstream API asks of
// automated clients.
var DefaultUserAgent = "wikipedia-mcp-server/" + strings.TrimPrefix(Version, "v") +
	" (https://github.com/1999AZZAR/wikipedia-mcp-server-sub001)"

// DefaultMirrors returns the upstream bases tried in order. The {lang}
// placeholder is replaced with the request language.
func DefaultMirrors() []string {
	return []string{
		"https://{lang}.wikipedia.org/w/api.php",
		"https://{lang}.m.wikipedia.org/w/api.php",
	}
}

// EndpointManagerConfig configures an EndpointManager. Zero fields fall back
// to package defaults; a nil Retry uses DefaultRetryConfig.
type EndpointManagerConfig struct {
	// Mirrors is the ordered list of upstream bases, each optionally
	// containing a {lang} placeholder. Defaults to DefaultMirrors().
	Mirrors []string
	// RequestTimeout bounds each individual mirror attempt.
	RequestTimeout time.Duration
	// UserAgent is sent on every outbound request.
	UserAgent string
	// Retry governs how many whole-mirror-list passes are made and the
	// backoff between them. MaxRetries 0 inside a non-nil config is honored.
	Retry *RetryConfig
	// Breaker configures the per-mirror circuit breakers.
	Breaker CircuitBreakerConfig
	// HTTPClient is the transport used for upstream calls.
	HTTPClient *http.Client
	// Limiters throttles outbound calls per mirror. Nil disables throttling.
	Limiters *RateLimiterRegistry

	Metrics *MetricsCollector
	Logger  Logger
	Debug   *DebugConfig
}

// EndpointManager runs fetches against an ordered list of equivalent upstream
// mirrors. Each mirror has its own circuit breaker; the preferred index
// sticks to the last mirror that succeeded so healthy mirrors are tried
// first. It is safe for concurrent use.
type EndpointManager struct {
	mirrors   []string
	breakers  []*CircuitBreaker
	preferred int64

	timeout   time.Duration
	userAgent string
	retry     RetryConfig
	client    *http.Client
	limiters  *RateLimiterRegistry
	metrics   *MetricsCollector
	logger    Logger
	debug     *DebugConfig
}

// NewEndpointManager constructs a manager from config, filling in defaults
// for any zero fields.
func NewEndpointManager(config EndpointManagerConfig) *EndpointManager {
	mirrors := config.Mirrors
	if len(mirrors) == 0 {
		mirrors = DefaultMirrors()
	}

	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	retry := DefaultRetryConfig()
	if config.Retry != nil {
		retry = *config.Retry
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	breakers := make([]*CircuitBreaker, len(mirrors))
	for i := range breakers {
		breakers[i] = NewCircuitBreaker(config.Breaker)
	}

	return &EndpointManager{
		mirrors:   append([]string(nil), mirrors...),
		breakers:  breakers,
		timeout:   timeout,
		userAgent: userAgent,
		retry:     retry,
		client:    client,
		limiters:  config.Limiters,
		metrics:   config.Metrics,
		logger:    config.Logger,
		debug:     config.Debug,
	}
}

// Fetch performs one resilient GET against the mirror set: retry passes over
// the mirrors starting at the preferred index, with per-mirror circuit
// breaking, optional rate limiting, and a fixed per-attempt timeout. The
// first 2xx response body wins and promotes its mirror to preferred.
func (em *EndpointManager) Fetch(ctx context.Context, lang string, query url.Values) ([]byte, error) {
	op := query.Get("action")
	if op == "" {
		op = "fetch"
	}
	return em.fetch(ctx, op, "", lang, query)
}

func (em *EndpointManager) fetch(ctx context.Context, op, requestID, lang string, query url.Values) ([]byte, error) {
	cfg := em.retry
	userHook := cfg.OnRetry
	maxRetries := cfg.MaxRetries
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		em.metrics.RecordRetry(op, attempt)
		if em.debug != nil && em.debug.Enabled && em.debug.LogRetries && em.logger != nil {
			em.logger.Info("Scheduling retry pass", "requestID", requestID, "attempt", attempt, "maxRetries", maxRetries, "backoff", delay, "error", err.Error())
		}
		if userHook != nil {
			userHook(attempt, delay, err)
		}
	}

	executor := NewRetryExecutor(cfg)

	var body []byte
	err := executor.Execute(ctx, func(ctx context.Context) error {
		b, passErr := em.fetchPass(ctx, op, requestID, lang, query)
		if passErr != nil {
			return passErr
		}
		body = b
		return nil
	})
	if err == nil {
		return body, nil
	}

	// The executor only surfaces a retryable error once the budget is spent,
	// meaning every mirror failed in every pass. Non-retryable errors (4xx,
	// validation, all circuits open, caller cancellation) pass through as-is.
	if IsRetryable(err) {
		lastKind := KindOf(err)
		em.metrics.RecordError(KindAllEndpointsFailed, op, "")
		if em.debug != nil && em.debug.Enabled && em.logger != nil {
			em.logger.Error("All mirrors failed", "requestID", requestID, "lastKind", string(lastKind), "error", err.Error())
		}
		return nil, &Error{
			Kind:       KindAllEndpointsFailed,
			Message:    "all mirrors failed after retries",
			Op:         op,
			RequestID:  requestID,
			Attempt:    executor.MaxAttempts(),
			MaxRetries: maxRetries,
			LastKind:   lastKind,
			Timestamp:  time.Now(),
			Cause:      err,
		}
	}

	return nil, err
}

// fetchPass tries each mirror once, starting at the preferred index. It
// returns the first success, escalates non-retryable errors immediately, and
// otherwise reports the last concrete failure so the retry layer can decide.
func (em *EndpointManager) fetchPass(ctx context.Context, op, requestID, lang string, query url.Values) ([]byte, error) {
	start := int(atomic.LoadInt64(&em.preferred))
	n := len(em.mirrors)

	var lastErr error
	circuitDenied := 0

	for i := 0; i < n; i++ {
		idx := (start + i) % n
		mirror := em.mirrors[idx]
		breaker := em.breakers[idx]

		if !breaker.Allow() {
			circuitDenied++
			em.metrics.RecordError(KindCircuitOpen, op, mirror)
			if em.debug != nil && em.debug.Enabled && em.debug.LogCircuit && em.logger != nil {
				em.logger.Warn("Circuit open, skipping mirror", "requestID", requestID, "mirror", mirror, "state", breaker.State().String())
			}
			continue
		}

		if em.limiters != nil {
			if allowed, limiter := em.limiters.Allow(mirror); !allowed {
				lastErr = &Error{
					Kind:      KindRateLimited,
					Message:   "rate limit exceeded",
					Op:        op,
					Mirror:    mirror,
					RequestID: requestID,
					Timestamp: time.Now(),
				}
				em.metrics.RecordError(KindRateLimited, op, mirror)
				if em.debug != nil && em.debug.Enabled && em.debug.LogRateLimit && em.logger != nil {
					em.logger.Warn("Rate limit exceeded", "requestID", requestID, "mirror", mirror, "limiter", limiter)
				}
				continue
			}
		}

		body, err := em.attempt(ctx, op, requestID, mirror, lang, query)
		if err == nil {
			breaker.RecordSuccess()
			em.metrics.RecordCircuitBreakerState(mirror, breaker.State())
			em.promote(idx, start, requestID)
			return body, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		kind := KindOf(err)
		em.metrics.RecordError(kind, op, mirror)

		switch kind {
		case KindNetwork, KindTimeout:
			em.recordMirrorFailure(idx, op, requestID, err)
			lastErr = err
		case KindHTTP:
			var he *Error
			if errors.As(err, &he) && he.StatusCode >= 500 {
				em.recordMirrorFailure(idx, op, requestID, err)
				lastErr = err
				continue
			}
			// A 4xx means the mirror is healthy and the request itself is
			// bad; the response would be the same everywhere.
			breaker.RecordSuccess()
			em.metrics.RecordCircuitBreakerState(mirror, breaker.State())
			return nil, err
		default:
			return nil, err
		}
	}

	if circuitDenied == n {
		return nil, &Error{
			Kind:      KindCircuitOpen,
			Message:   "all mirrors have open circuits",
			Op:        op,
			RequestID: requestID,
			Timestamp: time.Now(),
		}
	}

	return nil, lastErr
}

// attempt performs one GET against one mirror under the per-attempt timeout.
func (em *EndpointManager) attempt(ctx context.Context, op, requestID, mirror, lang string, query url.Values) ([]byte, error) {
	target := mirrorURL(mirror, lang, query)

	attemptCtx, cancel := context.WithTimeout(ctx, em.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &Error{
			Kind:      KindValidation,
			Message:   "invalid mirror URL",
			Op:        op,
			Mirror:    mirror,
			RequestID: requestID,
			Timestamp: time.Now(),
			Cause:     err,
		}
	}
	req.Header.Set("User-Agent", em.userAgent)
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := em.client.Do(req)
	if err != nil {
		em.metrics.RecordRequest(op, mirror, 0, time.Since(started))
		return nil, classifyTransport(attemptCtx, ctx, op, requestID, mirror, err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	em.metrics.RecordRequest(op, mirror, resp.StatusCode, time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Kind:       KindHTTP,
			Message:    fmt.Sprintf("upstream returned %s", resp.Status),
			Op:         op,
			Mirror:     mirror,
			StatusCode: resp.StatusCode,
			RequestID:  requestID,
			Timestamp:  time.Now(),
		}
	}
	if readErr != nil {
		return nil, classifyTransport(attemptCtx, ctx, op, requestID, mirror, readErr)
	}

	return body, nil
}

// classifyTransport sorts a transport-level failure into a timeout or network
// error, letting a finished parent context surface as the raw context error.
func classifyTransport(attemptCtx, parent context.Context, op, requestID, mirror string, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if attemptCtx.Err() == context.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Kind:      KindTimeout,
			Message:   "request timed out",
			Op:        op,
			Mirror:    mirror,
			RequestID: requestID,
			Timestamp: time.Now(),
			Cause:     err,
		}
	}
	return &Error{
		Kind:      KindNetwork,
		Message:   "network request failed",
		Op:        op,
		Mirror:    mirror,
		RequestID: requestID,
		Timestamp: time.Now(),
		Cause:     err,
	}
}

// recordMirrorFailure feeds a failed attempt into the mirror's breaker and
// reports an open transition when this failure tripped it.
func (em *EndpointManager) recordMirrorFailure(idx int, op, requestID string, err error) {
	mirror := em.mirrors[idx]
	breaker := em.breakers[idx]

	opensBefore := breaker.Opens()
	breaker.RecordFailure()
	em.metrics.RecordCircuitBreakerState(mirror, breaker.State())

	if breaker.Opens() > opensBefore {
		em.metrics.RecordCircuitBreakerOpen(mirror)
		if em.debug != nil && em.debug.Enabled && em.debug.LogCircuit && em.logger != nil {
			em.logger.Warn("Circuit opened", "requestID", requestID, "mirror", mirror, "failures", breaker.Failures())
		}
	}
	if em.debug != nil && em.debug.Enabled && em.debug.LogMirrors && em.logger != nil {
		em.logger.Debug("Mirror attempt failed", "requestID", requestID, "mirror", mirror, "error", err.Error())
	}
}

// promote makes the mirror at idx the preferred starting point for the next
// fetch. Sticky preference is best effort under concurrency; the index is
// always within bounds.
func (em *EndpointManager) promote(idx, start int, requestID string) {
	atomic.StoreInt64(&em.preferred, int64(idx))
	if idx == start {
		return
	}
	em.metrics.RecordFailover(em.mirrors[start], em.mirrors[idx])
	if em.debug != nil && em.debug.Enabled && em.debug.LogMirrors && em.logger != nil {
		em.logger.Info("Preferred mirror updated", "requestID", requestID, "from", em.mirrors[start], "to", em.mirrors[idx])
	}
}

// Mirrors returns a copy of the configured mirror list.
func (em *EndpointManager) Mirrors() []string {
	return append([]string(nil), em.mirrors...)
}

// Preferred returns the mirror tried first by the next fetch.
func (em *EndpointManager) Preferred() string {
	return em.mirrors[atomic.LoadInt64(&em.preferred)]
}

// States reports the circuit state of every mirror, for health reporting.
func (em *EndpointManager) States() map[string]CircuitState {
	states := make(map[string]CircuitState, len(em.mirrors))
	for i, mirror := range em.mirrors {
		states[mirror] = em.breakers[i].State()
	}
	return states
}

// mirrorURL expands the {lang} placeholder and appends the encoded query.
func mirrorURL(base, lang string, query url.Values) string {
	u := strings.ReplaceAll(base, "{lang}", lang)
	if len(query) == 0 {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + query.Encode()
}
