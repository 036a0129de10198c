package monitoring

import (
	"sync"
	"time"

	"github.com/1999AZZAR/wikipedia-mcp-server-sub001/internal/ringbuf"
)

// MetricEvent is one recorded measurement.
type MetricEvent struct {
	Name  string
	Value float64
	At    time.Time
}

// Aggregate summarizes the events recorded under one name inside a window.
type Aggregate struct {
	Count int
	Sum   float64
	Min   float64
	Max   float64
	Avg   float64
}

// MetricsCollector records named measurements into a bounded ring and serves
// windowed aggregates over them. Recording never blocks and never grows
// beyond the configured capacity; once full, the oldest events are dropped.
// It is safe for concurrent use.
type MetricsCollector struct {
	mu     sync.Mutex
	events *ringbuf.Buffer[MetricEvent]
}

// NewMetricsCollector creates a collector keeping at most capacity events.
func NewMetricsCollector(capacity int) *MetricsCollector {
	if capacity <= 0 {
		capacity = DefaultMetricsCapacity
	}
	return &MetricsCollector{
		events: ringbuf.New[MetricEvent](capacity),
	}
}

// Record stores a measurement under name.
func (m *MetricsCollector) Record(name string, value float64) {
	m.append(MetricEvent{Name: name, Value: value, At: time.Now()})
}

// Increment records a counter tick for name.
func (m *MetricsCollector) Increment(name string) {
	m.Record(name, 1)
}

// Timing records a duration for name, in milliseconds.
func (m *MetricsCollector) Timing(name string, d time.Duration) {
	m.Record(name, float64(d)/float64(time.Millisecond))
}

// Gauge records a point-in-time level for name. Aggregates over gauges report
// the usual count/min/max/avg of the samples.
func (m *MetricsCollector) Gauge(name string, value float64) {
	m.Record(name, value)
}

// Aggregated groups the events recorded during the trailing window by name.
func (m *MetricsCollector) Aggregated(window time.Duration) map[string]Aggregate {
	cutoff := time.Now().Add(-window)

	m.mu.Lock()
	events := m.events.Snapshot()
	m.mu.Unlock()

	out := make(map[string]Aggregate)
	for _, ev := range events {
		if ev.At.Before(cutoff) {
			continue
		}
		agg, ok := out[ev.Name]
		if !ok {
			agg = Aggregate{Min: ev.Value, Max: ev.Value}
		}
		agg.Count++
		agg.Sum += ev.Value
		if ev.Value < agg.Min {
			agg.Min = ev.Value
		}
		if ev.Value > agg.Max {
			agg.Max = ev.Value
		}
		out[ev.Name] = agg
	}

	for name, agg := range out {
		agg.Avg = agg.Sum / float64(agg.Count)
		out[name] = agg
	}
	return out
}

// Len returns the number of events currently buffered.
func (m *MetricsCollector) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events.Len()
}

// Cap returns the maximum number of events the collector retains.
func (m *MetricsCollector) Cap() int {
	return m.events.Cap()
}

func (m *MetricsCollector) append(ev MetricEvent) {
	m.mu.Lock()
	m.events.Append(ev)
	m.mu.Unlock()
}
