package wikimcp

import (
	"testing"
	"time"
)

func TestNewCircuitBreaker(t *testing.T) {
	config := CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     30 * time.Second,
		SuccessThreshold: 2,
	}

	cb := NewCircuitBreaker(config)

	if cb == nil {
		t.Fatal("NewCircuitBreaker() returned nil")
	}

	if cb.config.FailureThreshold != 3 {
		t.Errorf("Expected FailureThreshold=3, got %d", cb.config.FailureThreshold)
	}

	if cb.config.ResetTimeout != 30*time.Second {
		t.Errorf("Expected ResetTimeout=30s, got %v", cb.config.ResetTimeout)
	}

	if cb.config.SuccessThreshold != 2 {
		t.Errorf("Expected SuccessThreshold=2, got %d", cb.config.SuccessThreshold)
	}

	if cb.State() != StateClosed {
		t.Errorf("Expected initial state=Closed, got %v", cb.State())
	}
}

func TestNewCircuitBreakerDefaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})

	if cb.config.FailureThreshold != 5 {
		t.Errorf("Expected default FailureThreshold=5, got %d", cb.config.FailureThreshold)
	}

	if cb.config.ResetTimeout != 30*time.Second {
		t.Errorf("Expected default ResetTimeout=30s, got %v", cb.config.ResetTimeout)
	}

	if cb.config.SuccessThreshold != 1 {
		t.Errorf("Expected default SuccessThreshold=1, got %d", cb.config.SuccessThreshold)
	}
}

func TestCircuitBreakerAllowClosed(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})

	if !cb.Allow() {
		t.Error("Expected true when circuit breaker is closed")
	}

	if cb.State() != StateClosed {
		t.Errorf("Expected state=Closed, got %v", cb.State())
	}
}

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
	})

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != StateClosed {
		t.Errorf("Expected state=Closed after 2 failures, got %v", cb.State())
	}

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Errorf("Expected state=Open after 3 failures, got %v", cb.State())
	}

	if cb.Allow() {
		t.Error("Expected false when circuit breaker is open")
	}

	if cb.Opens() != 1 {
		t.Errorf("Expected 1 open transition, got %d", cb.Opens())
	}

	// Additional failures while open do not grow the consecutive count.
	cb.RecordFailure()
	if cb.Failures() != 3 {
		t.Errorf("Expected failures=3 (unchanged when open), got %d", cb.Failures())
	}
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
	})

	// The threshold counts consecutive failures, so an interleaved success
	// starts the count over.
	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	if cb.State() != StateClosed {
		t.Errorf("Expected state=Closed after interleaved success, got %v", cb.State())
	}
	if cb.Failures() != 2 {
		t.Errorf("Expected failures=2, got %d", cb.Failures())
	}

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Errorf("Expected state=Open after 3 consecutive failures, got %v", cb.State())
	}
}

func TestCircuitBreakerHalfOpenAfterResetTimeout(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     50 * time.Millisecond,
		SuccessThreshold: 1,
	})

	cb.RecordFailure()
	cb.RecordFailure()

	if cb.Allow() {
		t.Error("Expected false while circuit is open")
	}

	time.Sleep(60 * time.Millisecond)

	if !cb.Allow() {
		t.Error("Expected true after reset timeout")
	}

	if cb.State() != StateHalfOpen {
		t.Errorf("Expected state=HalfOpen, got %v", cb.State())
	}
}

func TestCircuitBreakerHalfOpenSingleProbe(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     50 * time.Millisecond,
		SuccessThreshold: 1,
	})

	cb.RecordFailure()
	cb.RecordFailure()
	time.Sleep(60 * time.Millisecond)

	// First caller takes the probe slot.
	if !cb.Allow() {
		t.Fatal("Expected probe to be admitted")
	}

	// While the probe is outstanding nobody else gets through.
	if cb.Allow() {
		t.Error("Expected second caller to be rejected while probe in flight")
	}
	if cb.Allow() {
		t.Error("Expected third caller to be rejected while probe in flight")
	}

	// The probe succeeding closes the breaker and traffic flows again.
	cb.RecordSuccess()
	if cb.State() != StateClosed {
		t.Errorf("Expected state=Closed after probe success, got %v", cb.State())
	}
	if !cb.Allow() {
		t.Error("Expected true after breaker closed")
	}
}

func TestCircuitBreakerHalfOpenProbeReleasedBetweenProbes(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     50 * time.Millisecond,
		SuccessThreshold: 2,
	})

	cb.RecordFailure()
	cb.RecordFailure()
	time.Sleep(60 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("Expected first probe to be admitted")
	}

	// One success is not enough to close; it releases the slot for the
	// next probe instead.
	cb.RecordSuccess()
	if cb.State() != StateHalfOpen {
		t.Errorf("Expected state=HalfOpen after 1/2 successes, got %v", cb.State())
	}

	if !cb.Allow() {
		t.Error("Expected second probe to be admitted after first settled")
	}

	cb.RecordSuccess()
	if cb.State() != StateClosed {
		t.Errorf("Expected state=Closed after 2 successes, got %v", cb.State())
	}
	if cb.Failures() != 0 {
		t.Errorf("Expected failures=0 after closing, got %d", cb.Failures())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     50 * time.Millisecond,
		SuccessThreshold: 2,
	})

	cb.RecordFailure()
	cb.RecordFailure()
	time.Sleep(60 * time.Millisecond)
	cb.Allow()

	if cb.State() != StateHalfOpen {
		t.Fatalf("Expected state=HalfOpen, got %v", cb.State())
	}

	cb.RecordFailure()

	if cb.State() != StateOpen {
		t.Errorf("Expected state=Open after failure in half-open, got %v", cb.State())
	}
	if cb.Opens() != 2 {
		t.Errorf("Expected 2 open transitions, got %d", cb.Opens())
	}

	// The fresh failure restarts the reset clock, so calls fail fast again.
	if cb.Allow() {
		t.Error("Expected false immediately after reopening")
	}
}

func TestCircuitBreakerLastFailure(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})

	if !cb.LastFailure().IsZero() {
		t.Error("Expected zero LastFailure before any failure")
	}

	before := time.Now()
	cb.RecordFailure()

	last := cb.LastFailure()
	if last.Before(before) || last.After(time.Now()) {
		t.Errorf("LastFailure %v outside expected range", last)
	}
}

func TestCircuitBreakerConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     10 * time.Millisecond,
		SuccessThreshold: 2,
	})

	done := make(chan bool, 10)

	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				cb.Allow()
				if j%2 == 0 {
					cb.RecordSuccess()
				} else {
					cb.RecordFailure()
				}
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	state := cb.State()
	if state != StateClosed && state != StateOpen && state != StateHalfOpen {
		t.Errorf("Invalid circuit breaker state after concurrent access: %v", state)
	}
}

func TestCircuitStateString(t *testing.T) {
	tests := []struct {
		state CircuitState
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{CircuitState(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("CircuitState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
