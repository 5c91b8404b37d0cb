package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Backoff selects how the delay grows between attempts.
type Backoff int

const (
	// BackoffExponential multiplies the delay after every attempt.
	BackoffExponential Backoff = iota
	// BackoffFixed waits the same delay before every retry.
	BackoffFixed
)

// RetryConfig controls how many times an operation is attempted and how long
// to wait in between.
type RetryConfig struct {
	// MaxAttempts counts the first try. 1 disables retries. Default: 3.
	MaxAttempts int

	// Delay is the wait before the first retry. Default: 500ms.
	Delay time.Duration

	// MaxDelay caps exponential growth. Default: 30s.
	MaxDelay time.Duration

	// Backoff picks fixed or exponential delays.
	Backoff Backoff

	// Multiplier scales exponential delays. Default: 2.
	Multiplier float64

	// JitterFraction randomizes each delay by ±fraction. 0 disables jitter.
	JitterFraction float64

	// ShouldRetry decides whether an error is worth another attempt.
	// Nil means IsTransient.
	ShouldRetry func(err error) bool

	// OnRetry runs before each wait with the 1-based number of the failed
	// attempt and the attempts left.
	OnRetry func(attempt, remaining int, err error)
}

// DefaultRetryConfig returns exponential backoff suited to REST calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		Delay:          500 * time.Millisecond,
		MaxDelay:       30 * time.Second,
		Backoff:        BackoffExponential,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

// FixedRetry returns a config that tries attempts times with the same delay
// between tries and retries every error.
func FixedRetry(attempts int, delay time.Duration) RetryConfig {
	return RetryConfig{
		MaxAttempts: attempts,
		Delay:       delay,
		Backoff:     BackoffFixed,
		ShouldRetry: func(error) bool { return true },
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, the context
// ends, or the attempts run out. The last error is returned.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for operations that return a value.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = withDefaults(cfg)
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !shouldRetry(err) || attempt == cfg.MaxAttempts {
			return zero, lastErr
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, cfg.MaxAttempts-attempt, err)
		}

		timer := time.NewTimer(cfg.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}

func withDefaults(cfg RetryConfig) RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	if cfg.Delay == 0 && cfg.Backoff == BackoffExponential {
		cfg.Delay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	return cfg
}

// delay returns the wait after the given 1-based failed attempt.
func (cfg RetryConfig) delay(attempt int) time.Duration {
	d := float64(cfg.Delay)
	if cfg.Backoff == BackoffExponential {
		d *= math.Pow(cfg.Multiplier, float64(attempt-1))
		d = math.Min(d, float64(cfg.MaxDelay))
	}
	if cfg.JitterFraction > 0 {
		d += (rand.Float64()*2 - 1) * d * cfg.JitterFraction
	}
	return time.Duration(math.Max(d, 0))
}

// RetryLogger returns an OnRetry callback that logs each retry.
func RetryLogger(service, operation string) func(int, int, error) {
	return func(attempt, remaining int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("remaining", remaining),
			zap.Error(err),
		)
	}
}
