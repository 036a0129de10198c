package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackSuccess(t *testing.T) {
	m := NewMetricsCollector(64)
	p := NewPerformanceMonitor(m)

	err := p.Track(context.Background(), "search", func(ctx context.Context) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	aggs := m.Aggregated(time.Minute)
	assert.Equal(t, 1, aggs["search.success"].Count)
	assert.NotContains(t, aggs, "search.error")

	duration, ok := aggs["search.duration_ms"]
	require.True(t, ok, "expected a duration sample")
	assert.GreaterOrEqual(t, duration.Max, 5.0)
}

func TestTrackErrorIsReturnedAndRecorded(t *testing.T) {
	m := NewMetricsCollector(64)
	p := NewPerformanceMonitor(m)

	boom := errors.New("boom")
	err := p.Track(context.Background(), "page", func(ctx context.Context) error {
		return boom
	})
	assert.Equal(t, boom, err, "Track must return the handler error unchanged")

	aggs := m.Aggregated(time.Minute)
	assert.Equal(t, 1, aggs["page.error"].Count)
	assert.NotContains(t, aggs, "page.success")
	assert.Contains(t, aggs, "page.duration_ms", "duration must be recorded even on failure")
}

func TestStartTimer(t *testing.T) {
	m := NewMetricsCollector(64)
	p := NewPerformanceMonitor(m)

	stop := p.StartTimer("decode")
	time.Sleep(10 * time.Millisecond)
	elapsed := stop()

	assert.GreaterOrEqual(t, elapsed, 10*time.Millisecond)

	aggs := m.Aggregated(time.Minute)
	decode, ok := aggs["decode.duration_ms"]
	require.True(t, ok)
	assert.Equal(t, 1, decode.Count)
	assert.GreaterOrEqual(t, decode.Max, 10.0)
}

func TestTrackPassesContext(t *testing.T) {
	m := NewMetricsCollector(64)
	p := NewPerformanceMonitor(m)

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")

	err := p.Track(ctx, "op", func(inner context.Context) error {
		assert.Equal(t, "v", inner.Value(key{}))
		return nil
	})
	assert.NoError(t, err)
}
