package wikimcp

import (
	"sync/atomic"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int64

const (
	// StateClosed allows requests through and counts consecutive failures.
	StateClosed CircuitState = iota
	// StateOpen rejects requests until the reset timeout elapses.
	StateOpen
	// StateHalfOpen admits a single probe request at a time.
	StateHalfOpen
)

// String returns the lowercase state name used in logs and metrics labels.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds the tunables for one breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that trips the
	// breaker open. Default 5.
	FailureThreshold int
	// ResetTimeout is how long the breaker stays open before admitting a
	// probe. Default 30s.
	ResetTimeout time.Duration
	// SuccessThreshold is the number of successful probes required to close
	// a half-open breaker. Default 1.
	SuccessThreshold int
}

// CircuitBreaker is a three-state breaker guarding one mirror.
//
// State transitions use atomic compare-and-swap, so Allow, RecordSuccess and
// RecordFailure are safe for concurrent use without locking. In the half-open
// state at most one caller holds the probe slot; everyone else is rejected
// until that probe settles.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	state       int64
	failures    int64
	successes   int64
	lastFailure int64 // unix nanos
	probe       int64 // 1 while a half-open probe is in flight
	opens       int64 // cumulative closed/half-open -> open transitions
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}

	return &CircuitBreaker{
		config: config,
		state:  int64(StateClosed),
	}
}

// Allow reports whether a request may proceed. An open breaker whose reset
// timeout has elapsed flips to half-open and admits the caller as the probe;
// while that probe is outstanding every other caller is rejected.
func (cb *CircuitBreaker) Allow() bool {
	now := time.Now().UnixNano()
	state := CircuitState(atomic.LoadInt64(&cb.state))

	switch state {
	case StateClosed:
		return true
	case StateOpen:
		lastFailure := atomic.LoadInt64(&cb.lastFailure)
		if now-lastFailure >= int64(cb.config.ResetTimeout) {
			if atomic.CompareAndSwapInt64(&cb.state, int64(StateOpen), int64(StateHalfOpen)) {
				atomic.StoreInt64(&cb.successes, 0)
				atomic.StoreInt64(&cb.probe, 1)
				return true
			}
		}
		return false
	case StateHalfOpen:
		// Single probe slot; losers fast-fail.
		return atomic.CompareAndSwapInt64(&cb.probe, 0, 1)
	default:
		return false
	}
}

// RecordFailure notes a failed request. The failure count only grows in the
// closed state; a half-open probe failure reopens the breaker immediately.
func (cb *CircuitBreaker) RecordFailure() {
	now := time.Now().UnixNano()
	atomic.StoreInt64(&cb.lastFailure, now)

	state := CircuitState(atomic.LoadInt64(&cb.state))

	switch state {
	case StateClosed:
		failures := atomic.AddInt64(&cb.failures, 1)
		if failures >= int64(cb.config.FailureThreshold) {
			if atomic.CompareAndSwapInt64(&cb.state, int64(StateClosed), int64(StateOpen)) {
				atomic.AddInt64(&cb.opens, 1)
			}
		}
	case StateOpen:
		// Already open, only lastFailure moves.
	case StateHalfOpen:
		atomic.AddInt64(&cb.failures, 1)
		if atomic.CompareAndSwapInt64(&cb.state, int64(StateHalfOpen), int64(StateOpen)) {
			atomic.AddInt64(&cb.opens, 1)
		}
		atomic.StoreInt64(&cb.successes, 0)
		atomic.StoreInt64(&cb.probe, 0)
	}
}

// RecordSuccess notes a successful request. In the closed state it resets the
// consecutive failure count; in half-open it either releases the probe slot
// for the next probe or closes the breaker once enough probes succeeded.
func (cb *CircuitBreaker) RecordSuccess() {
	state := CircuitState(atomic.LoadInt64(&cb.state))

	switch state {
	case StateClosed:
		atomic.StoreInt64(&cb.failures, 0)
	case StateOpen:
		// Stale success from before the trip; ignore.
	case StateHalfOpen:
		successes := atomic.AddInt64(&cb.successes, 1)
		if successes >= int64(cb.config.SuccessThreshold) {
			atomic.StoreInt64(&cb.state, int64(StateClosed))
			atomic.StoreInt64(&cb.failures, 0)
			atomic.StoreInt64(&cb.successes, 0)
		}
		atomic.StoreInt64(&cb.probe, 0)
	}
}

// State returns the current breaker state without side effects. An open
// breaker past its reset timeout still reads as open until the next Allow.
func (cb *CircuitBreaker) State() CircuitState {
	return CircuitState(atomic.LoadInt64(&cb.state))
}

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int64 {
	return atomic.LoadInt64(&cb.failures)
}

// Opens returns how many times the breaker has tripped open.
func (cb *CircuitBreaker) Opens() int64 {
	return atomic.LoadInt64(&cb.opens)
}

// LastFailure returns the time of the most recent recorded failure, or the
// zero time when none has occurred.
func (cb *CircuitBreaker) LastFailure() time.Time {
	ns := atomic.LoadInt64(&cb.lastFailure)
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
