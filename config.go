package wikimcp

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/1999AZZAR/wikipedia-mcp-server-sub001/monitoring"
)

// Config is the file-based configuration of a ContentService. Every section
// maps onto the functional options, so a service can be built either way;
// Options converts a loaded file into the option list.
type Config struct {
	// Mirrors is the ordered upstream mirror list. Bases may contain a {lang}
	// placeholder substituted with the request language.
	Mirrors []string `yaml:"mirrors"`

	// Language is used when a call leaves the language empty.
	Language string `yaml:"language"`

	// UserAgent is sent on every upstream request.
	UserAgent string `yaml:"user_agent"`

	// RequestTimeout bounds each individual upstream attempt.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// BatchWindow is how many batch items run concurrently.
	BatchWindow int `yaml:"batch_window"`

	// Metrics enables Prometheus collection on the default registry.
	Metrics bool `yaml:"metrics"`

	Retry      RetrySettings     `yaml:"retry"`
	Breaker    BreakerSettings   `yaml:"circuit_breaker"`
	RateLimit  RateLimitSettings `yaml:"rate_limit"`
	Cache      CacheSettings     `yaml:"cache"`
	Debug      DebugSettings     `yaml:"debug"`
	Monitoring monitoring.Config `yaml:"monitoring"`
}

// RetrySettings configures the retry passes over the mirror list.
type RetrySettings struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	Multiplier float64       `yaml:"multiplier"`
	Jitter     float64       `yaml:"jitter"`
	// Strategy is "exponential" (default) or "decorrelated".
	Strategy string `yaml:"strategy"`
}

// BreakerSettings configures the per-mirror circuit breakers.
type BreakerSettings struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
	SuccessThreshold int           `yaml:"success_threshold"`
}

// RateLimitSettings configures outbound request throttling. Disabled by
// default; when enabled the shared bucket applies to every mirror without a
// dedicated entry in PerMirror.
type RateLimitSettings struct {
	Enabled    bool                      `yaml:"enabled"`
	MaxTokens  int                       `yaml:"max_tokens"`
	RefillRate time.Duration             `yaml:"refill_rate"`
	PerMirror  map[string]BucketSettings `yaml:"per_mirror"`
}

// BucketSettings sizes one token bucket.
type BucketSettings struct {
	MaxTokens  int           `yaml:"max_tokens"`
	RefillRate time.Duration `yaml:"refill_rate"`
}

// CacheSettings configures the result cache and per-operation lifetimes.
type CacheSettings struct {
	MaxEntries   int           `yaml:"max_entries"`
	DefaultTTL   time.Duration `yaml:"default_ttl"`
	SearchTTL    time.Duration `yaml:"search_ttl"`
	PageTTL      time.Duration `yaml:"page_ttl"`
	SummaryTTL   time.Duration `yaml:"summary_ttl"`
	LangLinksTTL time.Duration `yaml:"langlinks_ttl"`
}

// DebugSettings configures diagnostic logging per concern.
type DebugSettings struct {
	Enabled      bool `yaml:"enabled"`
	LogRequests  bool `yaml:"log_requests"`
	LogRetries   bool `yaml:"log_retries"`
	LogCache     bool `yaml:"log_cache"`
	LogCircuit   bool `yaml:"log_circuit"`
	LogRateLimit bool `yaml:"log_rate_limit"`
	LogDedup     bool `yaml:"log_dedup"`
	LogMirrors   bool `yaml:"log_mirrors"`
}

// DefaultConfig returns the configuration a file overrides.
func DefaultConfig() *Config {
	retry := DefaultRetryConfig()
	return &Config{
		Mirrors:        DefaultMirrors(),
		Language:       DefaultLanguage,
		UserAgent:      DefaultUserAgent,
		RequestTimeout: DefaultRequestTimeout,
		BatchWindow:    DefaultBatchWindow,
		Retry: RetrySettings{
			MaxRetries: retry.MaxRetries,
			BaseDelay:  retry.BaseDelay,
			MaxDelay:   retry.MaxDelay,
			Multiplier: retry.Multiplier,
			Jitter:     retry.Jitter,
			Strategy:   "exponential",
		},
		Breaker: BreakerSettings{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			SuccessThreshold: 1,
		},
		Cache: CacheSettings{
			MaxEntries:   DefaultCacheMaxEntries,
			DefaultTTL:   DefaultCacheTTL,
			SearchTTL:    DefaultSearchTTL,
			PageTTL:      DefaultPageTTL,
			SummaryTTL:   DefaultSummaryTTL,
			LangLinksTTL: DefaultLangLinksTTL,
		},
		Debug: DebugSettings{
			LogRequests:  true,
			LogRetries:   true,
			LogCache:     true,
			LogCircuit:   true,
			LogRateLimit: true,
			LogDedup:     true,
			LogMirrors:   true,
		},
		Monitoring: monitoring.DefaultConfig(),
	}
}

// LoadConfig reads a YAML file, applies it over the defaults and validates
// the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate reports the first problem found in the configuration.
func (c *Config) Validate() error {
	if len(c.Mirrors) == 0 {
		return fmt.Errorf("mirrors must not be empty")
	}
	for i, mirror := range c.Mirrors {
		if strings.TrimSpace(mirror) == "" {
			return fmt.Errorf("mirrors[%d] must not be empty", i)
		}
		if !strings.Contains(mirror, "://") {
			return fmt.Errorf("mirrors[%d] %q must be an absolute URL", i, mirror)
		}
	}

	if !langPattern.MatchString(c.Language) {
		return fmt.Errorf("language %q is not a valid language code", c.Language)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if c.BatchWindow < 1 {
		return fmt.Errorf("batch_window must be at least 1")
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be non-negative")
	}
	if c.Retry.BaseDelay < 0 {
		return fmt.Errorf("retry.base_delay must not be negative")
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry.max_delay must be greater than or equal to retry.base_delay")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		return fmt.Errorf("retry.jitter must be between 0 and 1")
	}
	if _, err := c.Retry.strategy(); err != nil {
		return err
	}

	if c.Breaker.FailureThreshold < 0 {
		return fmt.Errorf("circuit_breaker.failure_threshold must not be negative")
	}
	if c.Breaker.ResetTimeout < 0 {
		return fmt.Errorf("circuit_breaker.reset_timeout must not be negative")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.MaxTokens < 1 {
			return fmt.Errorf("rate_limit.max_tokens must be at least 1")
		}
		if c.RateLimit.RefillRate <= 0 {
			return fmt.Errorf("rate_limit.refill_rate must be positive")
		}
		for mirror, bucket := range c.RateLimit.PerMirror {
			if bucket.MaxTokens < 1 {
				return fmt.Errorf("rate_limit.per_mirror[%s].max_tokens must be at least 1", mirror)
			}
			if bucket.RefillRate <= 0 {
				return fmt.Errorf("rate_limit.per_mirror[%s].refill_rate must be positive", mirror)
			}
		}
	}

	if c.Cache.MaxEntries < 1 {
		return fmt.Errorf("cache.max_entries must be at least 1")
	}
	for _, ttl := range []struct {
		name  string
		value time.Duration
	}{
		{"cache.default_ttl", c.Cache.DefaultTTL},
		{"cache.search_ttl", c.Cache.SearchTTL},
		{"cache.page_ttl", c.Cache.PageTTL},
		{"cache.summary_ttl", c.Cache.SummaryTTL},
		{"cache.langlinks_ttl", c.Cache.LangLinksTTL},
	} {
		if ttl.value <= 0 {
			return fmt.Errorf("%s must be positive", ttl.name)
		}
	}

	if err := c.Monitoring.Validate(); err != nil {
		return fmt.Errorf("monitoring config: %w", err)
	}

	return nil
}

// Options converts the configuration into the option list New accepts.
// Validate first; Options assumes the configuration is well formed.
func (c *Config) Options() []Option {
	strategy, _ := c.Retry.strategy()

	opts := []Option{
		WithMirrors(c.Mirrors...),
		WithDefaultLanguage(c.Language),
		WithUserAgent(c.UserAgent),
		WithRequestTimeout(c.RequestTimeout),
		WithBatchWindow(c.BatchWindow),
		WithRetryConfig(RetryConfig{
			MaxRetries: c.Retry.MaxRetries,
			BaseDelay:  c.Retry.BaseDelay,
			MaxDelay:   c.Retry.MaxDelay,
			Multiplier: c.Retry.Multiplier,
			Jitter:     c.Retry.Jitter,
			Strategy:   strategy,
		}),
		WithCircuitBreaker(CircuitBreakerConfig{
			FailureThreshold: c.Breaker.FailureThreshold,
			ResetTimeout:     c.Breaker.ResetTimeout,
			SuccessThreshold: c.Breaker.SuccessThreshold,
		}),
		WithCache(c.Cache.MaxEntries, c.Cache.DefaultTTL),
		WithSearchTTL(c.Cache.SearchTTL),
		WithPageTTL(c.Cache.PageTTL),
		WithSummaryTTL(c.Cache.SummaryTTL),
		WithLanguageLinksTTL(c.Cache.LangLinksTTL),
	}

	if c.RateLimit.Enabled {
		opts = append(opts, WithRateLimiter(c.RateLimit.MaxTokens, c.RateLimit.RefillRate))
		for mirror, bucket := range c.RateLimit.PerMirror {
			opts = append(opts, WithMirrorRateLimiter(mirror, bucket.MaxTokens, bucket.RefillRate))
		}
	}

	if c.Metrics {
		opts = append(opts, WithMetrics())
	}

	if c.Debug.Enabled {
		debug := DefaultDebugConfig()
		debug.Enabled = true
		debug.LogRequests = c.Debug.LogRequests
		debug.LogRetries = c.Debug.LogRetries
		debug.LogCache = c.Debug.LogCache
		debug.LogCircuit = c.Debug.LogCircuit
		debug.LogRateLimit = c.Debug.LogRateLimit
		debug.LogDedup = c.Debug.LogDedup
		debug.LogMirrors = c.Debug.LogMirrors
		opts = append(opts, WithDebugConfig(debug), WithLogger(NewSimpleLogger()))
	}

	if c.Monitoring.Enabled {
		opts = append(opts, WithMonitor(monitoring.NewService(c.Monitoring, nil)))
	}

	return opts
}

// strategy maps the configured name onto a BackoffStrategy.
func (s RetrySettings) strategy() (BackoffStrategy, error) {
	switch strings.ToLower(s.Strategy) {
	case "", "exponential":
		return ExponentialJitter, nil
	case "decorrelated":
		return DecorrelatedJitter, nil
	default:
		return ExponentialJitter, fmt.Errorf("unknown retry.strategy %q", s.Strategy)
	}
}
