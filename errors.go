package wikimcp

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a failure. Retry and failover decisions branch on the
// kind instead of inspecting error strings or transport-specific types.
type ErrorKind string

const (
	// KindValidation marks malformed caller input.
	KindValidation ErrorKind = "Validation"
	// KindHTTP marks a non-2xx upstream response.
	KindHTTP ErrorKind = "HTTP"
	// KindNetwork marks connection-level failures such as refused or reset.
	KindNetwork ErrorKind = "Network"
	// KindTimeout marks an expired per-request deadline.
	KindTimeout ErrorKind = "Timeout"
	// KindCircuitOpen marks a fast-fail on a mirror whose breaker is open.
	KindCircuitOpen ErrorKind = "CircuitOpen"
	// KindRateLimited marks denial by the client-side rate limiter.
	KindRateLimited ErrorKind = "RateLimited"
	// KindAllEndpointsFailed marks exhaustion of every mirror and retry pass.
	KindAllEndpointsFailed ErrorKind = "AllEndpointsFailed"
	// KindDecode marks an upstream body that could not be decoded.
	KindDecode ErrorKind = "Decode"
)

// Sentinel errors for common failure scenarios
var (
	// ErrCircuitOpen is returned when a circuit breaker denies a call
	ErrCircuitOpen = errors.New("wikimcp: circuit open")

	// ErrRateLimited is returned when a request is denied due to rate limiting
	ErrRateLimited = errors.New("wikimcp: rate limited")

	// ErrAllEndpointsFailed is returned when every mirror has been exhausted
	ErrAllEndpointsFailed = errors.New("wikimcp: all endpoints failed")
)

// Error is the typed error surfaced by this package. Kind carries the failure
// class; the remaining fields carry request context for logs and telemetry.
type Error struct {
	Kind       ErrorKind
	Message    string
	Op         string // logical operation, e.g. "search"
	Mirror     string // mirror base URL involved, if any
	StatusCode int    // HTTP status for KindHTTP
	RequestID  string
	Attempt    int
	MaxRetries int
	LastKind   ErrorKind // for KindAllEndpointsFailed: kind of the final concrete failure
	Timestamp  time.Time
	Cause      error
}

// IsRetryable determines if an error represents a transient failure that might
// succeed on retry. Returns true for network errors, timeouts, rate limiting,
// and 5xx server responses. Returns false for validation errors, decode
// errors, non-5xx HTTP responses, circuit-open fast fails, and caller context
// cancellation.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// A dead caller context can never succeed on retry.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var e *Error
	if !errors.As(err, &e) {
		// Unclassified errors come straight from the transport.
		return true
	}

	switch e.Kind {
	case KindNetwork, KindTimeout, KindRateLimited:
		return true
	case KindHTTP:
		return e.StatusCode >= 500
	default:
		return false
	}
}

// KindOf extracts the ErrorKind from err, or "" when err carries no kind.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ErrorKind returns the failure class as a string, for telemetry labels.
func (e *Error) ErrorKind() string {
	if e == nil {
		return ""
	}
	return string(e.Kind)
}

// IsNotFound reports whether err is an upstream HTTP 404.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindHTTP && e.StatusCode == 404
	}
	return false
}

// Error implements error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Mirror != "" {
		msg = fmt.Sprintf("%s (mirror %s)", msg, e.Mirror)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxRetries+1)
	}
	if e.Kind == KindAllEndpointsFailed && e.LastKind != "" {
		msg = fmt.Sprintf("%s (last failure: %s)", msg, e.LastKind)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error kinds for errors.Is, and matches the package sentinels so
// errors.Is(err, ErrCircuitOpen) works without type assertions.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrCircuitOpen:
		return e.Kind == KindCircuitOpen
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	case ErrAllEndpointsFailed:
		return e.Kind == KindAllEndpointsFailed
	}
	if targetErr, ok := target.(*Error); ok {
		return e.Kind == targetErr.Kind
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *Error) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Kind: %s\n", e.Kind)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Op != "" {
		info += fmt.Sprintf("Operation: %s\n", e.Op)
	}
	if e.Mirror != "" {
		info += fmt.Sprintf("Mirror: %s\n", e.Mirror)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d/%d\n", e.Attempt, e.MaxRetries+1)
	}
	if e.LastKind != "" {
		info += fmt.Sprintf("Last Failure: %s\n", e.LastKind)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}
