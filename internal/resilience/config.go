package resilience

import (
	"time"
)

// FromSettings builds an exponential RetryConfig from millisecond settings.
// Zero values keep the defaults.
func FromSettings(attempts, delayMs, maxDelayMs int) RetryConfig {
	cfg := DefaultRetryConfig()
	if attempts > 0 {
		cfg.MaxAttempts = attempts
	}
	if delayMs > 0 {
		cfg.Delay = time.Duration(delayMs) * time.Millisecond
	}
	if maxDelayMs > 0 {
		cfg.MaxDelay = time.Duration(maxDelayMs) * time.Millisecond
	}
	return cfg
}

// CircuitFromSettings builds a CircuitBreakerConfig. Zero values keep the defaults.
func CircuitFromSettings(failureThreshold, resetTimeoutSecs int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	return cfg
}
