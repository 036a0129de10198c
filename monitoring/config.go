package monitoring

import "fmt"

// Defaults for the bounded telemetry stores.
const (
	DefaultMetricsCapacity = 4096
	DefaultLogCapacity     = 1024
	DefaultUsageCapacity   = 4096
	DefaultTopQueries      = 10
	DefaultRecentErrors    = 20
)

// Config sizes the telemetry stores. Every store is a fixed-capacity ring
// that drops its oldest entries, so the capacities bound memory use no matter
// how long the service runs.
type Config struct {
	// Enabled turns request monitoring on. A disabled service runs handlers
	// without recording anything.
	Enabled bool `yaml:"enabled"`

	// MetricsCapacity is the number of metric events kept for aggregation.
	MetricsCapacity int `yaml:"metrics_capacity"`

	// LogCapacity is the number of log records kept for the dashboard.
	LogCapacity int `yaml:"log_capacity"`

	// UsageCapacity is the number of request records kept for analytics.
	UsageCapacity int `yaml:"usage_capacity"`

	// TopQueries is how many popular queries usage summaries report.
	TopQueries int `yaml:"top_queries"`

	// RecentErrors is how many error log records the dashboard includes.
	RecentErrors int `yaml:"recent_errors"`
}

// DefaultConfig returns an enabled configuration with the default capacities.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		MetricsCapacity: DefaultMetricsCapacity,
		LogCapacity:     DefaultLogCapacity,
		UsageCapacity:   DefaultUsageCapacity,
		TopQueries:      DefaultTopQueries,
		RecentErrors:    DefaultRecentErrors,
	}
}

// Validate checks the configuration for values that cannot be defaulted away.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.MetricsCapacity < 0 {
		return fmt.Errorf("metrics_capacity must not be negative")
	}
	if c.LogCapacity < 0 {
		return fmt.Errorf("log_capacity must not be negative")
	}
	if c.UsageCapacity < 0 {
		return fmt.Errorf("usage_capacity must not be negative")
	}
	if c.TopQueries < 0 {
		return fmt.Errorf("top_queries must not be negative")
	}
	if c.RecentErrors < 0 {
		return fmt.Errorf("recent_errors must not be negative")
	}

	return nil
}

// normalized fills zero capacities with the package defaults.
func (c Config) normalized() Config {
	if c.MetricsCapacity <= 0 {
		c.MetricsCapacity = DefaultMetricsCapacity
	}
	if c.LogCapacity <= 0 {
		c.LogCapacity = DefaultLogCapacity
	}
	if c.UsageCapacity <= 0 {
		c.UsageCapacity = DefaultUsageCapacity
	}
	if c.TopQueries <= 0 {
		c.TopQueries = DefaultTopQueries
	}
	if c.RecentErrors <= 0 {
		c.RecentErrors = DefaultRecentErrors
	}
	return c
}
