package monitoring

import (
	"sort"
	"sync"
	"time"

	"github.com/1999AZZAR/wikipedia-mcp-server-sub001/internal/ringbuf"
)

// Trailing windows used by usage summaries and health reporting.
const (
	RateWindow   = time.Minute
	HealthWindow = time.Hour
)

// Health status thresholds on the trailing error rate.
const (
	degradedErrorRate  = 0.05
	unhealthyErrorRate = 0.25
)

// UsageRecord describes one logical request handled by the service.
type UsageRecord struct {
	Method    string
	Query     string
	Language  string
	Duration  time.Duration
	Success   bool
	ErrorKind string
	RequestID string
	At        time.Time
}

// QueryCount pairs a query with how often it was requested.
type QueryCount struct {
	Query string
	Count int
}

// KindCount pairs an error kind with how often it occurred.
type KindCount struct {
	Kind  string
	Count int
}

// UsageSummary aggregates the requests recorded during a trailing window.
type UsageSummary struct {
	Window      time.Duration
	Requests    int
	Errors      int
	ErrorRate   float64
	AvgDuration time.Duration
	ByMethod    map[string]int
	ByLanguage  map[string]int
	TopQueries  []QueryCount
}

// HealthMetrics is the condensed health view served by the dashboard.
// RequestsPerMinute covers the trailing minute; the error fields cover the
// trailing hour.
type HealthMetrics struct {
	Status            string
	RequestsPerMinute float64
	ErrorRate         float64
	AvgDuration       time.Duration
	TopErrorKinds     []KindCount
}

// UsageAnalytics records logical requests into a bounded ring and derives
// windowed summaries: error rates, latency averages, per-method and
// per-language breakdowns, query popularity and health metrics. It is safe
// for concurrent use.
type UsageAnalytics struct {
	mu      sync.Mutex
	records *ringbuf.Buffer[UsageRecord]
	topN    int
}

// NewUsageAnalytics creates an analytics store keeping at most capacity
// records and reporting topN popular queries.
func NewUsageAnalytics(capacity, topN int) *UsageAnalytics {
	if capacity <= 0 {
		capacity = DefaultUsageCapacity
	}
	if topN <= 0 {
		topN = DefaultTopQueries
	}
	return &UsageAnalytics{
		records: ringbuf.New[UsageRecord](capacity),
		topN:    topN,
	}
}

// RecordRequest stores one request outcome. A zero At is filled with the
// current time.
func (u *UsageAnalytics) RecordRequest(rec UsageRecord) {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}

	u.mu.Lock()
	u.records.Append(rec)
	u.mu.Unlock()
}

// Summary aggregates the requests recorded during the trailing window.
func (u *UsageAnalytics) Summary(window time.Duration) UsageSummary {
	records := u.window(window)

	summary := UsageSummary{
		Window:     window,
		ByMethod:   make(map[string]int),
		ByLanguage: make(map[string]int),
	}

	var totalDuration time.Duration
	queries := make(map[string]int)

	for _, rec := range records {
		summary.Requests++
		if !rec.Success {
			summary.Errors++
		}
		totalDuration += rec.Duration
		summary.ByMethod[rec.Method]++
		if rec.Language != "" {
			summary.ByLanguage[rec.Language]++
		}
		if rec.Query != "" {
			queries[rec.Query]++
		}
	}

	if summary.Requests > 0 {
		summary.ErrorRate = float64(summary.Errors) / float64(summary.Requests)
		summary.AvgDuration = totalDuration / time.Duration(summary.Requests)
	}
	summary.TopQueries = topQueries(queries, u.topN)

	return summary
}

// Health derives the dashboard health view: request rate over the trailing
// minute, error profile over the trailing hour.
func (u *UsageAnalytics) Health() HealthMetrics {
	lastMinute := u.window(RateWindow)
	lastHour := u.window(HealthWindow)

	health := HealthMetrics{
		RequestsPerMinute: float64(len(lastMinute)),
	}

	var errors int
	var totalDuration time.Duration
	kinds := make(map[string]int)

	for _, rec := range lastHour {
		totalDuration += rec.Duration
		if rec.Success {
			continue
		}
		errors++
		kind := rec.ErrorKind
		if kind == "" {
			kind = "Unknown"
		}
		kinds[kind]++
	}

	if len(lastHour) > 0 {
		health.ErrorRate = float64(errors) / float64(len(lastHour))
		health.AvgDuration = totalDuration / time.Duration(len(lastHour))
	}
	health.TopErrorKinds = topKinds(kinds, u.topN)
	health.Status = statusFor(health.ErrorRate)

	return health
}

// Len returns the number of records currently retained.
func (u *UsageAnalytics) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.records.Len()
}

// window returns the retained records newer than the trailing window.
func (u *UsageAnalytics) window(window time.Duration) []UsageRecord {
	cutoff := time.Now().Add(-window)

	u.mu.Lock()
	records := u.records.Snapshot()
	u.mu.Unlock()

	out := records[:0:0]
	for _, rec := range records {
		if rec.At.Before(cutoff) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func statusFor(errorRate float64) string {
	switch {
	case errorRate >= unhealthyErrorRate:
		return "unhealthy"
	case errorRate >= degradedErrorRate:
		return "degraded"
	default:
		return "healthy"
	}
}

// topQueries ranks queries by count, breaking ties alphabetically so the
// ordering is stable.
func topQueries(counts map[string]int, n int) []QueryCount {
	out := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		out = append(out, QueryCount{Query: query, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Query < out[j].Query
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func topKinds(counts map[string]int, n int) []KindCount {
	out := make([]KindCount, 0, len(counts))
	for kind, count := range counts {
		out = append(out, KindCount{Kind: kind, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Kind < out[j].Kind
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
