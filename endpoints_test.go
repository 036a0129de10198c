package wikimcp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func searchQuery() url.Values {
	return url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {"golang"},
		"format":   {"json"},
	}
}

func fastRetry(maxRetries int) *RetryConfig {
	return &RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func TestFetchSuccess(t *testing.T) {
	var gotUA, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		if r.URL.Query().Get("action") != "query" {
			t.Errorf("Expected action=query, got %q", r.URL.Query().Get("action"))
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	em := NewEndpointManager(EndpointManagerConfig{
		Mirrors: []string{server.URL + "/w/api.php"},
		Retry:   fastRetry(0),
	})

	body, err := em.Fetch(context.Background(), "en", searchQuery())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("Expected body passthrough, got %q", string(body))
	}
	if gotUA != DefaultUserAgent {
		t.Errorf("Expected default User-Agent %q, got %q", DefaultUserAgent, gotUA)
	}
	if gotAccept != "application/json" {
		t.Errorf("Expected Accept application/json, got %q", gotAccept)
	}
}

func TestFetchLangSubstitution(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	em := NewEndpointManager(EndpointManagerConfig{
		Mirrors: []string{server.URL + "/{lang}/w/api.php"},
		Retry:   fastRetry(0),
	})

	if _, err := em.Fetch(context.Background(), "de", searchQuery()); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if gotPath != "/de/w/api.php" {
		t.Errorf("Expected language substituted into path, got %q", gotPath)
	}
}

func TestFetchFailoverUpdatesPreferred(t *testing.T) {
	callsA, callsB := 0, 0
	serverA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callsA++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer serverA.Close()
	serverB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callsB++
		w.Write([]byte(`{}`))
	}))
	defer serverB.Close()

	em := NewEndpointManager(EndpointManagerConfig{
		Mirrors: []string{serverA.URL, serverB.URL},
		Retry:   fastRetry(0),
	})

	if _, err := em.Fetch(context.Background(), "en", searchQuery()); err != nil {
		t.Fatalf("Expected failover to succeed, got %v", err)
	}
	if callsA != 1 || callsB != 1 {
		t.Errorf("Expected one call to each mirror, got A=%d B=%d", callsA, callsB)
	}
	if em.Preferred() != serverB.URL {
		t.Errorf("Expected preferred mirror %s, got %s", serverB.URL, em.Preferred())
	}

	// The next fetch must start at the promoted mirror and skip A entirely.
	if _, err := em.Fetch(context.Background(), "en", searchQuery()); err != nil {
		t.Fatalf("Second fetch failed: %v", err)
	}
	if callsA != 1 {
		t.Errorf("Expected mirror A untouched on second fetch, got %d calls", callsA)
	}
	if callsB != 2 {
		t.Errorf("Expected mirror B to serve second fetch, got %d calls", callsB)
	}
}

func TestFetchSkipsMirrorWithOpenCircuit(t *testing.T) {
	calls0, calls1, calls2 := 0, 0, 0
	server0 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls0++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server0.Close()
	server1 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls1++
		w.Write([]byte(`{}`))
	}))
	defer server1.Close()
	server2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls2++
		w.Write([]byte(`{}`))
	}))
	defer server2.Close()

	em := NewEndpointManager(EndpointManagerConfig{
		Mirrors: []string{server0.URL, server1.URL, server2.URL},
		Retry:   fastRetry(0),
		Breaker: CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     100 * time.Millisecond,
			SuccessThreshold: 1,
		},
	})

	// Three fetches, each forced to start at mirror 0, push it to the
	// failure threshold.
	for i := 0; i < 3; i++ {
		atomic.StoreInt64(&em.preferred, 0)
		if _, err := em.Fetch(context.Background(), "en", searchQuery()); err != nil {
			t.Fatalf("Fetch %d failed: %v", i, err)
		}
	}
	if calls0 != 3 {
		t.Fatalf("Expected 3 failing calls to mirror 0, got %d", calls0)
	}
	if em.breakers[0].State() != StateOpen {
		t.Fatalf("Expected mirror 0 circuit open, got %v", em.breakers[0].State())
	}

	// While the circuit is open, fetches starting at mirror 0 skip it
	// without an HTTP call.
	atomic.StoreInt64(&em.preferred, 0)
	if _, err := em.Fetch(context.Background(), "en", searchQuery()); err != nil {
		t.Fatalf("Fetch with open circuit failed: %v", err)
	}
	if calls0 != 3 {
		t.Errorf("Expected mirror 0 to be skipped, got %d calls", calls0)
	}

	states := em.States()
	if states[server0.URL] != StateOpen {
		t.Errorf("Expected open state reported for mirror 0, got %v", states[server0.URL])
	}
	if states[server1.URL] != StateClosed {
		t.Errorf("Expected closed state for mirror 1, got %v", states[server1.URL])
	}

	// After the reset timeout one probe reaches mirror 0 again; its failure
	// reopens the circuit.
	time.Sleep(150 * time.Millisecond)
	atomic.StoreInt64(&em.preferred, 0)
	if _, err := em.Fetch(context.Background(), "en", searchQuery()); err != nil {
		t.Fatalf("Fetch after reset timeout failed: %v", err)
	}
	if calls0 != 4 {
		t.Errorf("Expected exactly one probe call to mirror 0, got %d total", calls0)
	}
	if em.breakers[0].State() != StateOpen {
		t.Errorf("Expected failed probe to reopen circuit, got %v", em.breakers[0].State())
	}
}

func TestFetchAllMirrorsFailWrapsError(t *testing.T) {
	callsA, callsB := 0, 0
	serverA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callsA++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer serverA.Close()
	serverB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callsB++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer serverB.Close()

	em := NewEndpointManager(EndpointManagerConfig{
		Mirrors: []string{serverA.URL, serverB.URL},
		Retry:   fastRetry(1),
	})

	_, err := em.Fetch(context.Background(), "en", searchQuery())
	if err == nil {
		t.Fatal("Expected error when every mirror fails")
	}
	if !errors.Is(err, ErrAllEndpointsFailed) {
		t.Errorf("Expected ErrAllEndpointsFailed, got %v", err)
	}

	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("Expected *Error, got %T", err)
	}
	if e.Kind != KindAllEndpointsFailed {
		t.Errorf("Expected AllEndpointsFailed kind, got %v", e.Kind)
	}
	if e.LastKind != KindHTTP {
		t.Errorf("Expected last failure kind HTTP, got %v", e.LastKind)
	}
	if e.Cause == nil {
		t.Error("Expected wrapped cause")
	}
	if callsA != 2 || callsB != 2 {
		t.Errorf("Expected 2 calls per mirror over 2 passes, got A=%d B=%d", callsA, callsB)
	}
}

func TestFetchAllCircuitsOpenEscalatesImmediately(t *testing.T) {
	callsA, callsB := 0, 0
	serverA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callsA++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer serverA.Close()
	serverB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callsB++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer serverB.Close()

	em := NewEndpointManager(EndpointManagerConfig{
		Mirrors: []string{serverA.URL, serverB.URL},
		Retry:   fastRetry(2),
		Breaker: CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour},
	})

	// First pass trips both breakers; the second pass finds every circuit
	// open and escalates instead of burning the remaining retries.
	_, err := em.Fetch(context.Background(), "en", searchQuery())
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Expected ErrCircuitOpen, got %v", err)
	}
	if callsA != 1 || callsB != 1 {
		t.Errorf("Expected a single attempt per mirror, got A=%d B=%d", callsA, callsB)
	}

	// Later calls fail fast without any HTTP traffic.
	_, err = em.Fetch(context.Background(), "en", searchQuery())
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Expected ErrCircuitOpen on fast fail, got %v", err)
	}
	if callsA != 1 || callsB != 1 {
		t.Errorf("Expected no further HTTP calls, got A=%d B=%d", callsA, callsB)
	}
}

func TestFetchClientErrorNotRetried(t *testing.T) {
	callsA, callsB := 0, 0
	serverA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callsA++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer serverA.Close()
	serverB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callsB++
		w.Write([]byte(`{}`))
	}))
	defer serverB.Close()

	em := NewEndpointManager(EndpointManagerConfig{
		Mirrors: []string{serverA.URL, serverB.URL},
		Retry:   fastRetry(2),
	})

	_, err := em.Fetch(context.Background(), "en", searchQuery())
	if err == nil {
		t.Fatal("Expected 404 to surface as error")
	}
	if !IsNotFound(err) {
		t.Errorf("Expected not-found error, got %v", err)
	}
	if errors.Is(err, ErrAllEndpointsFailed) {
		t.Error("Expected 4xx to propagate unwrapped")
	}
	if callsA != 1 {
		t.Errorf("Expected a single attempt for a 4xx, got %d", callsA)
	}
	if callsB != 0 {
		t.Errorf("Expected no failover for a 4xx, got %d calls", callsB)
	}
	if em.breakers[0].Failures() != 0 {
		t.Errorf("Expected 4xx not to count against the breaker, got %d failures", em.breakers[0].Failures())
	}
}

func TestFetchTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	em := NewEndpointManager(EndpointManagerConfig{
		Mirrors:        []string{server.URL},
		RequestTimeout: 30 * time.Millisecond,
		Retry:          fastRetry(0),
	})

	_, err := em.Fetch(context.Background(), "en", searchQuery())
	if err == nil {
		t.Fatal("Expected timeout error")
	}

	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("Expected *Error, got %T", err)
	}
	if e.Kind != KindAllEndpointsFailed || e.LastKind != KindTimeout {
		t.Errorf("Expected exhaustion with last kind Timeout, got kind=%v last=%v", e.Kind, e.LastKind)
	}
	if em.breakers[0].Failures() != 1 {
		t.Errorf("Expected timeout to count as mirror failure, got %d", em.breakers[0].Failures())
	}
}

func TestFetchNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead := server.URL
	server.Close()

	em := NewEndpointManager(EndpointManagerConfig{
		Mirrors: []string{dead},
		Retry:   fastRetry(0),
	})

	_, err := em.Fetch(context.Background(), "en", searchQuery())
	if err == nil {
		t.Fatal("Expected network error")
	}

	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("Expected *Error, got %T", err)
	}
	if e.LastKind != KindNetwork {
		t.Errorf("Expected last failure kind Network, got %v", e.LastKind)
	}
}

func TestFetchRateLimited(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	limiters := NewRateLimiterRegistry(NewRateLimiter(1, time.Hour))
	em := NewEndpointManager(EndpointManagerConfig{
		Mirrors:  []string{server.URL},
		Retry:    fastRetry(0),
		Limiters: limiters,
	})

	if _, err := em.Fetch(context.Background(), "en", searchQuery()); err != nil {
		t.Fatalf("First fetch failed: %v", err)
	}

	_, err := em.Fetch(context.Background(), "en", searchQuery())
	if err == nil {
		t.Fatal("Expected rate limited error")
	}
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("Expected ErrRateLimited in chain, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected denied fetch to skip HTTP, got %d calls", calls)
	}
	if em.breakers[0].Failures() != 0 {
		t.Errorf("Expected rate limiting not to count against the breaker, got %d", em.breakers[0].Failures())
	}
}

func TestFetchContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	em := NewEndpointManager(EndpointManagerConfig{
		Mirrors: []string{server.URL},
		Retry:   fastRetry(3),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := em.Fetch(ctx, "en", searchQuery())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrAllEndpointsFailed) {
		t.Error("Expected cancellation not to be reported as endpoint exhaustion")
	}
}

func TestFetchRetryHookPreserved(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	var hookAttempts []int
	retry := fastRetry(2)
	retry.OnRetry = func(attempt int, delay time.Duration, err error) {
		hookAttempts = append(hookAttempts, attempt)
	}

	em := NewEndpointManager(EndpointManagerConfig{
		Mirrors: []string{server.URL},
		Retry:   retry,
	})

	if _, err := em.Fetch(context.Background(), "en", searchQuery()); err == nil {
		t.Fatal("Expected failure")
	}
	if len(hookAttempts) != 2 || hookAttempts[0] != 1 || hookAttempts[1] != 2 {
		t.Errorf("Expected caller retry hook for attempts [1 2], got %v", hookAttempts)
	}
}

func TestNewEndpointManagerDefaults(t *testing.T) {
	em := NewEndpointManager(EndpointManagerConfig{})

	mirrors := em.Mirrors()
	want := DefaultMirrors()
	if len(mirrors) != len(want) {
		t.Fatalf("Expected %d default mirrors, got %d", len(want), len(mirrors))
	}
	for i := range want {
		if mirrors[i] != want[i] {
			t.Errorf("Expected mirror %q at %d, got %q", want[i], i, mirrors[i])
		}
	}
	if em.timeout != DefaultRequestTimeout {
		t.Errorf("Expected default timeout %v, got %v", DefaultRequestTimeout, em.timeout)
	}
	if em.userAgent != DefaultUserAgent {
		t.Errorf("Expected default user agent, got %q", em.userAgent)
	}
	if em.Preferred() != want[0] {
		t.Errorf("Expected first mirror preferred, got %q", em.Preferred())
	}
}

func TestMirrorURL(t *testing.T) {
	query := url.Values{"action": {"query"}, "format": {"json"}}

	got := mirrorURL("https://{lang}.wikipedia.org/w/api.php", "en", query)
	if got != "https://en.wikipedia.org/w/api.php?action=query&format=json" {
		t.Errorf("Unexpected URL: %s", got)
	}

	got = mirrorURL("https://host/api.php?maxlag=5", "en", query)
	if !strings.HasPrefix(got, "https://host/api.php?maxlag=5&") {
		t.Errorf("Expected & separator for base with query, got %s", got)
	}

	got = mirrorURL("https://host/api.php", "en", url.Values{})
	if got != "https://host/api.php" {
		t.Errorf("Expected bare base for empty query, got %s", got)
	}
}
