// Package monitoring aggregates in-process telemetry for the content service:
// metric events, structured log records and per-request usage analytics, all
// held in fixed-capacity rings that drop their oldest entries. The Service
// type binds the stores together, wraps request handlers so every outcome is
// recorded, and serves a point-in-time dashboard snapshot for health
// endpoints owned by the protocol front-ends.
package monitoring

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DashboardWindow is the trailing window the dashboard aggregates metric
// events over.
const DashboardWindow = 5 * time.Minute

// Service is the composition root of the telemetry cluster. It is safe for
// concurrent use.
type Service struct {
	cfg     Config
	metrics *MetricsCollector
	logs    *LogStore
	perf    *PerformanceMonitor
	usage   *UsageAnalytics
	started time.Time
}

// Dashboard is a point-in-time snapshot of service health for a monitoring
// endpoint.
type Dashboard struct {
	GeneratedAt  time.Time
	Uptime       time.Duration
	Health       HealthMetrics
	Metrics      map[string]Aggregate
	Usage        UsageSummary
	RecentErrors []Record
}

// NewService builds the telemetry cluster from cfg. Zero capacities fall back
// to the package defaults. Log records are forwarded to the given zap logger;
// nil disables forwarding.
func NewService(cfg Config, forward *zap.Logger) *Service {
	cfg = cfg.normalized()

	metrics := NewMetricsCollector(cfg.MetricsCapacity)
	return &Service{
		cfg:     cfg,
		metrics: metrics,
		logs:    NewLogStore(cfg.LogCapacity, forward),
		perf:    NewPerformanceMonitor(metrics),
		usage:   NewUsageAnalytics(cfg.UsageCapacity, cfg.TopQueries),
		started: time.Now(),
	}
}

// MonitorRequest runs handler and records its duration and outcome in the
// performance metrics, usage analytics and log store. The handler's error is
// always returned unchanged; monitoring never suppresses a failure. When the
// service is disabled the handler runs without any recording.
func (s *Service) MonitorRequest(ctx context.Context, method string, params map[string]interface{}, requestID string, handler func(context.Context) error) error {
	if !s.cfg.Enabled {
		return handler(ctx)
	}

	start := time.Now()
	err := s.perf.Track(ctx, method, handler)
	elapsed := time.Since(start)

	rec := UsageRecord{
		Method:    method,
		Query:     queryParam(params),
		Language:  stringParam(params, "language"),
		Duration:  elapsed,
		Success:   err == nil,
		ErrorKind: errorKind(err),
		RequestID: requestID,
		At:        time.Now(),
	}
	s.usage.RecordRequest(rec)

	if err != nil {
		s.logs.Error("request failed", map[string]interface{}{
			"method":    method,
			"requestID": requestID,
			"kind":      rec.ErrorKind,
			"duration":  elapsed.String(),
			"error":     err.Error(),
		})
		return err
	}

	s.logs.Debug("request completed", map[string]interface{}{
		"method":    method,
		"requestID": requestID,
		"duration":  elapsed.String(),
	})
	return nil
}

// Dashboard assembles the current health, metric aggregates, usage summary
// and recent errors into one snapshot.
func (s *Service) Dashboard() Dashboard {
	return Dashboard{
		GeneratedAt:  time.Now(),
		Uptime:       time.Since(s.started),
		Health:       s.usage.Health(),
		Metrics:      s.metrics.Aggregated(DashboardWindow),
		Usage:        s.usage.Summary(HealthWindow),
		RecentErrors: s.logs.RecentErrors(s.cfg.RecentErrors),
	}
}

// Enabled reports whether the service records anything.
func (s *Service) Enabled() bool {
	return s.cfg.Enabled
}

// Metrics returns the metric event store.
func (s *Service) Metrics() *MetricsCollector {
	return s.metrics
}

// Logs returns the log record store.
func (s *Service) Logs() *LogStore {
	return s.logs
}

// Performance returns the performance monitor.
func (s *Service) Performance() *PerformanceMonitor {
	return s.perf
}

// Usage returns the usage analytics store.
func (s *Service) Usage() *UsageAnalytics {
	return s.usage
}

// errorKind classifies err for telemetry without depending on the types of
// any particular caller. Errors carrying their own kind win; context errors
// map to stable names; everything else is unknown.
func errorKind(err error) string {
	if err == nil {
		return ""
	}

	var kinded interface{ ErrorKind() string }
	if errors.As(err, &kinded) {
		if kind := kinded.ErrorKind(); kind != "" {
			return kind
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Timeout"
	case errors.Is(err, context.Canceled):
		return "Canceled"
	}
	return "Unknown"
}

// queryParam extracts the value that best identifies what was asked for, to
// feed query popularity.
func queryParam(params map[string]interface{}) string {
	if q := stringParam(params, "query"); q != "" {
		return q
	}
	return stringParam(params, "title")
}

func stringParam(params map[string]interface{}, key string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
