package monitoring

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageSummary(t *testing.T) {
	u := NewUsageAnalytics(128, 10)

	u.RecordRequest(UsageRecord{Method: "search", Query: "go", Language: "en", Duration: 100 * time.Millisecond, Success: true})
	u.RecordRequest(UsageRecord{Method: "search", Query: "go", Language: "de", Duration: 200 * time.Millisecond, Success: true})
	u.RecordRequest(UsageRecord{Method: "summary", Query: "Go (programming language)", Language: "en", Duration: 300 * time.Millisecond, Success: false, ErrorKind: "Timeout"})

	s := u.Summary(time.Hour)

	assert.Equal(t, 3, s.Requests)
	assert.Equal(t, 1, s.Errors)
	assert.InDelta(t, 1.0/3.0, s.ErrorRate, 0.001)
	assert.Equal(t, 200*time.Millisecond, s.AvgDuration)
	assert.Equal(t, 2, s.ByMethod["search"])
	assert.Equal(t, 1, s.ByMethod["summary"])
	assert.Equal(t, 2, s.ByLanguage["en"])
	assert.Equal(t, 1, s.ByLanguage["de"])

	require.NotEmpty(t, s.TopQueries)
	assert.Equal(t, "go", s.TopQueries[0].Query)
	assert.Equal(t, 2, s.TopQueries[0].Count)
}

func TestUsageSummaryEmpty(t *testing.T) {
	u := NewUsageAnalytics(16, 5)

	s := u.Summary(time.Hour)
	assert.Equal(t, 0, s.Requests)
	assert.Equal(t, 0.0, s.ErrorRate)
	assert.Equal(t, time.Duration(0), s.AvgDuration)
	assert.Empty(t, s.TopQueries)
}

func TestUsageWindowExcludesOldRecords(t *testing.T) {
	u := NewUsageAnalytics(128, 10)

	u.RecordRequest(UsageRecord{Method: "search", Success: true, At: time.Now().Add(-2 * time.Hour)})
	u.RecordRequest(UsageRecord{Method: "search", Success: true})

	assert.Equal(t, 1, u.Summary(time.Hour).Requests)
	assert.Equal(t, 2, u.Summary(3*time.Hour).Requests)
}

func TestUsageTopQueriesRankingAndTies(t *testing.T) {
	u := NewUsageAnalytics(128, 2)

	for i := 0; i < 3; i++ {
		u.RecordRequest(UsageRecord{Method: "search", Query: "busy", Success: true})
	}
	u.RecordRequest(UsageRecord{Method: "search", Query: "beta", Success: true})
	u.RecordRequest(UsageRecord{Method: "search", Query: "alpha", Success: true})

	top := u.Summary(time.Hour).TopQueries
	require.Len(t, top, 2, "top list must honor the configured size")
	assert.Equal(t, QueryCount{Query: "busy", Count: 3}, top[0])
	// Ties break alphabetically so the ordering is stable.
	assert.Equal(t, QueryCount{Query: "alpha", Count: 1}, top[1])
}

func TestUsageHealth(t *testing.T) {
	u := NewUsageAnalytics(256, 10)

	// Nine successes and one failure in the trailing minute.
	for i := 0; i < 9; i++ {
		u.RecordRequest(UsageRecord{Method: "search", Duration: 50 * time.Millisecond, Success: true})
	}
	u.RecordRequest(UsageRecord{Method: "search", Duration: 50 * time.Millisecond, Success: false, ErrorKind: "Network"})

	// An older failure inside the hour window but outside the minute window.
	u.RecordRequest(UsageRecord{Method: "page", Duration: 50 * time.Millisecond, Success: false, ErrorKind: "Network", At: time.Now().Add(-30 * time.Minute)})

	h := u.Health()

	assert.Equal(t, 10.0, h.RequestsPerMinute)
	assert.InDelta(t, 2.0/11.0, h.ErrorRate, 0.001)
	require.NotEmpty(t, h.TopErrorKinds)
	assert.Equal(t, KindCount{Kind: "Network", Count: 2}, h.TopErrorKinds[0])
	assert.Equal(t, "degraded", h.Status)
}

func TestUsageHealthStatus(t *testing.T) {
	testCases := []struct {
		name      string
		successes int
		failures  int
		want      string
	}{
		{"no requests", 0, 0, "healthy"},
		{"all good", 20, 0, "healthy"},
		{"some errors", 19, 1, "degraded"},
		{"mostly errors", 1, 1, "unhealthy"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			u := NewUsageAnalytics(128, 5)
			for i := 0; i < tc.successes; i++ {
				u.RecordRequest(UsageRecord{Method: "m", Success: true})
			}
			for i := 0; i < tc.failures; i++ {
				u.RecordRequest(UsageRecord{Method: "m", Success: false, ErrorKind: "HTTP"})
			}
			assert.Equal(t, tc.want, u.Health().Status)
		})
	}
}

func TestUsageUnknownErrorKind(t *testing.T) {
	u := NewUsageAnalytics(16, 5)

	u.RecordRequest(UsageRecord{Method: "m", Success: false})

	h := u.Health()
	require.Len(t, h.TopErrorKinds, 1)
	assert.Equal(t, "Unknown", h.TopErrorKinds[0].Kind)
}

func TestUsageCapacityDropsOldest(t *testing.T) {
	u := NewUsageAnalytics(3, 5)

	for i := 0; i < 5; i++ {
		u.RecordRequest(UsageRecord{Method: "m", Query: fmt.Sprintf("q%d", i), Success: true})
	}

	assert.Equal(t, 3, u.Len())

	top := u.Summary(time.Hour).TopQueries
	queries := make(map[string]bool, len(top))
	for _, qc := range top {
		queries[qc.Query] = true
	}
	assert.False(t, queries["q0"], "oldest record should be gone")
	assert.False(t, queries["q1"], "oldest record should be gone")
	assert.True(t, queries["q2"])
	assert.True(t, queries["q4"])
}
