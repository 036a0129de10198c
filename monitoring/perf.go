package monitoring

import (
	"context"
	"time"
)

// Metric name suffixes used by the performance monitor.
const (
	suffixDuration = ".duration_ms"
	suffixSuccess  = ".success"
	suffixError    = ".error"
)

// PerformanceMonitor times named operations and feeds the measurements into a
// MetricsCollector.
type PerformanceMonitor struct {
	metrics *MetricsCollector
}

// NewPerformanceMonitor creates a monitor recording into metrics.
func NewPerformanceMonitor(metrics *MetricsCollector) *PerformanceMonitor {
	return &PerformanceMonitor{metrics: metrics}
}

// StartTimer begins a named timer. The returned stop function records the
// elapsed time under name and returns it; call it exactly once.
func (p *PerformanceMonitor) StartTimer(name string) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		elapsed := time.Since(start)
		p.metrics.Timing(name+suffixDuration, elapsed)
		return elapsed
	}
}

// Track runs fn under a timer for name, recording the duration and a success
// or error tick. The error is returned unchanged; Track never swallows a
// failure.
func (p *PerformanceMonitor) Track(ctx context.Context, name string, fn func(context.Context) error) error {
	stop := p.StartTimer(name)
	err := fn(ctx)
	stop()

	if err != nil {
		p.metrics.Increment(name + suffixError)
		return err
	}
	p.metrics.Increment(name + suffixSuccess)
	return nil
}
