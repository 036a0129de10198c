package wikimcp

import (
	"context"
	"time"

	internalbackoff "github.com/1999AZZAR/wikipedia-mcp-server-sub001/internal/backoff"
)

// BackoffStrategy selects the delay algorithm between retry attempts.
type BackoffStrategy int

const (
	// ExponentialJitter uses exponential backoff with optional uniform jitter.
	ExponentialJitter BackoffStrategy = iota
	// DecorrelatedJitter uses AWS-style decorrelated jitter.
	DecorrelatedJitter
)

// RetryConfig governs how an operation is retried.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt, so an
	// operation runs at most MaxRetries+1 times. Default 3.
	MaxRetries int
	// BaseDelay is the delay before the first retry. Default 500ms.
	BaseDelay time.Duration
	// MaxDelay caps the grown delay. Default 10s.
	MaxDelay time.Duration
	// Multiplier grows the delay between consecutive retries. Default 2.0.
	Multiplier float64
	// Jitter in [0,1] randomizes each delay upward by up to that fraction.
	// Zero keeps the delay sequence deterministic and non-decreasing.
	Jitter float64
	// Strategy selects the backoff algorithm. Default ExponentialJitter.
	Strategy BackoffStrategy
	// IsRetryable decides whether a failed attempt may be retried.
	// Defaults to the package-level IsRetryable.
	IsRetryable func(error) bool
	// OnRetry, when set, is called before each retry sleep with the upcoming
	// attempt number (1-based), the chosen delay, and the error that caused
	// the retry. Used for logging and metrics.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryConfig returns the retry settings used when none are supplied.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
		Jitter:     0,
		Strategy:   ExponentialJitter,
	}
}

// RetryExecutor runs operations with backoff between attempts. Non-retryable
// errors propagate immediately; retryable ones are reattempted until the
// budget is spent, with context-aware sleeps in between.
type RetryExecutor struct {
	config RetryConfig
	calc   *internalbackoff.Calculator
	sleep  func(context.Context, time.Duration) error
}

// NewRetryExecutor creates an executor, filling zero config fields with the
// defaults from DefaultRetryConfig.
func NewRetryExecutor(config RetryConfig) *RetryExecutor {
	def := DefaultRetryConfig()
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = def.BaseDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = def.MaxDelay
	}
	if config.Multiplier <= 0 {
		config.Multiplier = def.Multiplier
	}
	if config.IsRetryable == nil {
		config.IsRetryable = IsRetryable
	}

	var calc *internalbackoff.Calculator
	switch config.Strategy {
	case DecorrelatedJitter:
		calc = internalbackoff.GetDecorrelatedJitterCalculator()
	default:
		calc = internalbackoff.GetExponentialJitterCalculator()
	}

	return &RetryExecutor{
		config: config,
		calc:   calc,
		sleep:  sleepContext,
	}
}

// Execute runs op until it succeeds, fails non-retryably, exhausts the retry
// budget, or ctx ends. The returned error is the last attempt's error, or the
// context error when cancellation interrupts a backoff sleep.
func (re *RetryExecutor) Execute(ctx context.Context, op func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= re.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := re.calc.Calculate(attempt-1, re.config.BaseDelay, re.config.MaxDelay, re.config.Multiplier, re.config.Jitter)
			if re.config.OnRetry != nil {
				re.config.OnRetry(attempt, delay, lastErr)
			}
			if err := re.sleep(ctx, delay); err != nil {
				return err
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !re.config.IsRetryable(err) {
			return err
		}
	}

	return lastErr
}

// MaxAttempts returns the total number of tries Execute may make.
func (re *RetryExecutor) MaxAttempts() int {
	return re.config.MaxRetries + 1
}

// sleepContext blocks for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
