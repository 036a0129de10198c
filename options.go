package wikimcp

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Option configures a ContentService during construction.
type Option func(*ContentService)

// WithMirrors sets the ordered upstream mirror list. Each base may contain a
// {lang} placeholder that is substituted with the request language.
func WithMirrors(mirrors ...string) Option {
	return func(s *ContentService) {
		s.emConfig.Mirrors = append([]string(nil), mirrors...)
	}
}

// WithRequestTimeout sets the per-attempt timeout for upstream calls.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *ContentService) {
		s.emConfig.RequestTimeout = d
	}
}

// WithUserAgent sets the User-Agent header sent on every upstream request.
func WithUserAgent(ua string) Option {
	return func(s *ContentService) {
		s.emConfig.UserAgent = ua
	}
}

// WithRetryConfig replaces the whole retry policy for mirror-list passes.
func WithRetryConfig(config RetryConfig) Option {
	return func(s *ContentService) {
		s.emConfig.Retry = &config
	}
}

// WithMaxRetries sets the maximum number of retry passes over the mirror list.
func WithMaxRetries(n int) Option {
	return func(s *ContentService) {
		s.retryConfig().MaxRetries = n
	}
}

// WithBaseDelay sets the delay before the first retry pass.
func WithBaseDelay(d time.Duration) Option {
	return func(s *ContentService) {
		s.retryConfig().BaseDelay = d
	}
}

// WithMaxDelay caps the backoff delay between retry passes.
func WithMaxDelay(d time.Duration) Option {
	return func(s *ContentService) {
		s.retryConfig().MaxDelay = d
	}
}

// WithBackoffMultiplier sets the growth factor applied between retries.
func WithBackoffMultiplier(f float64) Option {
	return func(s *ContentService) {
		s.retryConfig().Multiplier = f
	}
}

// WithJitter sets the jitter factor for backoff (0.0 to 1.0).
func WithJitter(f float64) Option {
	return func(s *ContentService) {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		s.retryConfig().Jitter = f
	}
}

// WithBackoffStrategy selects the backoff algorithm between retry passes.
func WithBackoffStrategy(strategy BackoffStrategy) Option {
	return func(s *ContentService) {
		s.retryConfig().Strategy = strategy
	}
}

// WithRetryCondition overrides the predicate deciding whether a failed pass
// may be retried. Defaults to the package-level IsRetryable.
func WithRetryCondition(fn func(error) bool) Option {
	return func(s *ContentService) {
		s.retryConfig().IsRetryable = fn
	}
}

// WithCircuitBreaker sets the configuration applied to every per-mirror
// circuit breaker.
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(s *ContentService) {
		s.emConfig.Breaker = config
	}
}

// WithHTTPClient sets the HTTP client used for upstream calls.
func WithHTTPClient(client *http.Client) Option {
	return func(s *ContentService) {
		s.emConfig.HTTPClient = client
	}
}

// WithEndpointManager injects a fully constructed endpoint manager, bypassing
// the mirror, retry, breaker and transport options.
func WithEndpointManager(em *EndpointManager) Option {
	return func(s *ContentService) {
		s.endpoints = em
	}
}

// WithCache sizes the result cache. Entries live for defaultTTL unless the
// per-operation TTL options override it.
func WithCache(maxEntries int, defaultTTL time.Duration) Option {
	return func(s *ContentService) {
		s.cache = NewTTLCache(maxEntries, defaultTTL)
	}
}

// WithSearchTTL sets the cache lifetime of search results.
func WithSearchTTL(d time.Duration) Option {
	return func(s *ContentService) {
		s.searchTTL = d
	}
}

// WithPageTTL sets the cache lifetime of parsed pages.
func WithPageTTL(d time.Duration) Option {
	return func(s *ContentService) {
		s.pageTTL = d
	}
}

// WithSummaryTTL sets the cache lifetime of page summaries.
func WithSummaryTTL(d time.Duration) Option {
	return func(s *ContentService) {
		s.summaryTTL = d
	}
}

// WithLanguageLinksTTL sets the cache lifetime of language link listings.
func WithLanguageLinksTTL(d time.Duration) Option {
	return func(s *ContentService) {
		s.langLinksTTL = d
	}
}

// WithRateLimiter installs a token bucket shared by every mirror without a
// dedicated limiter.
func WithRateLimiter(maxTokens int, refillRate time.Duration) Option {
	return func(s *ContentService) {
		fallback := NewRateLimiter(maxTokens, refillRate)
		if s.limiters == nil {
			s.limiters = NewRateLimiterRegistry(fallback)
			return
		}
		s.limiters.SetFallback(fallback)
	}
}

// WithMirrorRateLimiter installs a dedicated token bucket for one mirror,
// overriding the shared limiter.
func WithMirrorRateLimiter(mirror string, maxTokens int, refillRate time.Duration) Option {
	return func(s *ContentService) {
		if s.limiters == nil {
			s.limiters = NewRateLimiterRegistry(nil)
		}
		s.limiters.Register(mirror, NewRateLimiter(maxTokens, refillRate))
	}
}

// WithRateLimiterRegistry sets a custom rate limiter registry.
func WithRateLimiterRegistry(registry *RateLimiterRegistry) Option {
	return func(s *ContentService) {
		s.limiters = registry
	}
}

// WithDefaultLanguage sets the language used when a call leaves it empty.
func WithDefaultLanguage(lang string) Option {
	return func(s *ContentService) {
		s.defaultLang = lang
	}
}

// WithBatchWindow sets how many batch items run concurrently.
func WithBatchWindow(n int) Option {
	return func(s *ContentService) {
		s.batchWindow = n
	}
}

// WithMetrics enables Prometheus metrics collection on the default registry.
func WithMetrics() Option {
	return func(s *ContentService) {
		s.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(s *ContentService) {
		s.metrics = collector
	}
}

// WithLogger sets a custom logger for debug output.
func WithLogger(logger Logger) Option {
	return func(s *ContentService) {
		s.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a stderr console logger.
func WithSimpleLogger() Option {
	return func(s *ContentService) {
		if s.debug == nil {
			s.debug = DefaultDebugConfig()
		}
		s.debug.Enabled = true
		s.logger = NewSimpleLogger()
	}
}

// WithZapLogger routes debug output through an existing zap logger.
func WithZapLogger(logger *zap.Logger) Option {
	return func(s *ContentService) {
		s.logger = NewZapLogger(logger)
	}
}

// WithDebug enables debug logging with the default category configuration.
func WithDebug() Option {
	return func(s *ContentService) {
		if s.debug == nil {
			s.debug = DefaultDebugConfig()
		}
		s.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(s *ContentService) {
		s.debug = config
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs.
func WithRequestIDGenerator(gen func() string) Option {
	return func(s *ContentService) {
		if s.debug == nil {
			s.debug = DefaultDebugConfig()
		}
		s.debug.RequestIDGen = gen
	}
}

// WithMonitor attaches a request monitor that records every operation's
// method, parameters and outcome.
func WithMonitor(monitor RequestMonitor) Option {
	return func(s *ContentService) {
		s.monitor = monitor
	}
}

// retryConfig returns the retry configuration being assembled by options,
// allocating it from the defaults on first use.
func (s *ContentService) retryConfig() *RetryConfig {
	if s.emConfig.Retry == nil {
		cfg := DefaultRetryConfig()
		s.emConfig.Retry = &cfg
	}
	return s.emConfig.Retry
}

// ValidateConfiguration validates the service configuration and returns an
// error describing every problem found.
func (s *ContentService) ValidateConfiguration() error {
	var errs []string

	errs = append(errs, s.validateMirrorConfig()...)
	errs = append(errs, s.validateRetryConfig()...)
	errs = append(errs, s.validateBreakerConfig()...)
	errs = append(errs, s.validateCacheConfig()...)
	errs = append(errs, s.validateServiceConfig()...)
	errs = append(errs, s.validateDebugConfig()...)
	errs = append(errs, s.validateExtremeValues()...)

	if len(errs) > 0 {
		return &Error{
			Kind:      KindValidation,
			Message:   "configuration validation failed",
			Timestamp: time.Now(),
			Cause:     fmt.Errorf("validation errors: %v", errs),
		}
	}

	return nil
}

// validateMirrorConfig validates the mirror list and transport settings.
func (s *ContentService) validateMirrorConfig() []string {
	var errs []string

	for i, mirror := range s.emConfig.Mirrors {
		if strings.TrimSpace(mirror) == "" {
			errs = append(errs, fmt.Sprintf("mirrors[%d] must not be empty", i))
			continue
		}
		if !strings.Contains(mirror, "://") {
			errs = append(errs, fmt.Sprintf("mirrors[%d] %q must be an absolute URL", i, mirror))
		}
	}

	if s.emConfig.RequestTimeout < 0 {
		errs = append(errs, "requestTimeout must not be negative")
	}

	return errs
}

// validateRetryConfig validates retry-related configuration.
func (s *ContentService) validateRetryConfig() []string {
	var errs []string

	retry := s.emConfig.Retry
	if retry == nil {
		return nil
	}

	if retry.MaxRetries < 0 {
		errs = append(errs, "maxRetries must be non-negative")
	}
	if retry.BaseDelay < 0 {
		errs = append(errs, "baseDelay must not be negative")
	}
	if retry.MaxDelay < 0 {
		errs = append(errs, "maxDelay must not be negative")
	}
	if retry.BaseDelay > 0 && retry.MaxDelay > 0 && retry.MaxDelay < retry.BaseDelay {
		errs = append(errs, "maxDelay must be greater than or equal to baseDelay")
	}
	if retry.Multiplier < 0 {
		errs = append(errs, "backoffMultiplier must not be negative")
	}
	if retry.Jitter < 0 || retry.Jitter > 1 {
		errs = append(errs, "jitter must be between 0 and 1")
	}

	return errs
}

// validateBreakerConfig validates circuit breaker configuration.
func (s *ContentService) validateBreakerConfig() []string {
	var errs []string

	breaker := s.emConfig.Breaker
	if breaker.FailureThreshold < 0 {
		errs = append(errs, "circuitBreaker FailureThreshold must not be negative")
	}
	if breaker.ResetTimeout < 0 {
		errs = append(errs, "circuitBreaker ResetTimeout must not be negative")
	}
	if breaker.SuccessThreshold < 0 {
		errs = append(errs, "circuitBreaker SuccessThreshold must not be negative")
	}

	return errs
}

// validateCacheConfig validates the per-operation cache lifetimes.
func (s *ContentService) validateCacheConfig() []string {
	var errs []string

	if s.searchTTL <= 0 {
		errs = append(errs, "searchTTL must be positive")
	}
	if s.pageTTL <= 0 {
		errs = append(errs, "pageTTL must be positive")
	}
	if s.summaryTTL <= 0 {
		errs = append(errs, "summaryTTL must be positive")
	}
	if s.langLinksTTL <= 0 {
		errs = append(errs, "langLinksTTL must be positive")
	}

	return errs
}

// validateServiceConfig validates the facade-level settings.
func (s *ContentService) validateServiceConfig() []string {
	var errs []string

	if !langPattern.MatchString(s.defaultLang) {
		errs = append(errs, fmt.Sprintf("defaultLanguage %q is not a valid language code", s.defaultLang))
	}
	if s.batchWindow < 1 {
		errs = append(errs, "batchWindow must be at least 1")
	}

	return errs
}

// validateDebugConfig validates debug configuration.
func (s *ContentService) validateDebugConfig() []string {
	var errs []string

	if s.debug != nil && s.debug.Enabled {
		if s.debug.RequestIDGen == nil {
			errs = append(errs, "debug RequestIDGen must be set when debug is enabled")
		}
		if s.logger == nil {
			errs = append(errs, "logger must be set when debug is enabled")
		}
	}

	return errs
}

// validateExtremeValues flags configuration values that are technically valid
// but almost certainly mistakes.
func (s *ContentService) validateExtremeValues() []string {
	var errs []string

	if retry := s.emConfig.Retry; retry != nil {
		if retry.MaxRetries > 100 {
			errs = append(errs, "maxRetries > 100 may cause excessive resource usage")
		}
		if retry.BaseDelay > 10*time.Minute {
			errs = append(errs, "baseDelay > 10m may cause very long delays")
		}
		if retry.MaxDelay > time.Hour {
			errs = append(errs, "maxDelay > 1h may cause extremely long delays")
		}
	}

	if s.emConfig.RequestTimeout > 10*time.Minute {
		errs = append(errs, "requestTimeout > 10m may cause requests to hang for too long")
	}

	for _, ttl := range []struct {
		name  string
		value time.Duration
	}{
		{"searchTTL", s.searchTTL},
		{"pageTTL", s.pageTTL},
		{"summaryTTL", s.summaryTTL},
		{"langLinksTTL", s.langLinksTTL},
	} {
		if ttl.value > 24*time.Hour {
			errs = append(errs, fmt.Sprintf("%s > 24h may cause stale data issues", ttl.name))
		}
	}

	if s.batchWindow > 100 {
		errs = append(errs, "batchWindow > 100 may overwhelm the upstream API")
	}

	return errs
}

// IsValid reports whether configuration validation passed at construction.
func (s *ContentService) IsValid() bool {
	return s.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (s *ContentService) ValidationError() error {
	return s.validationError
}

// ValidateConfigurationStrict panics if the configuration is invalid.
func (s *ContentService) ValidateConfigurationStrict() {
	if err := s.ValidateConfiguration(); err != nil {
		panic(fmt.Sprintf("invalid service configuration: %v", err))
	}
}
