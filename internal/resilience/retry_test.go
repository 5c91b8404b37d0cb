package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = NewTransientError(errors.New("503 from upstream"), 503)

func fastConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts: attempts,
		Delay:       time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

func TestDo_FirstAttemptSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(4), func(context.Context) error {
		calls++
		return errTransient
	})
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 4, calls)
}

func TestDo_NonTransientStopsImmediately(t *testing.T) {
	calls := 0
	permanent := errors.New("bad request")
	err := Do(context.Background(), fastConfig(5), func(context.Context) error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCanceledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, Delay: time.Hour, Backoff: BackoffFixed}

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, cfg, func(context.Context) error {
			calls++
			return errTransient
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errTransient)
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancel")
	}
}

func TestDo_OnRetryReportsRemaining(t *testing.T) {
	var attempts, remaining []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt, left int, _ error) {
		attempts = append(attempts, attempt)
		remaining = append(remaining, left)
	}
	_ = Do(context.Background(), cfg, func(context.Context) error { return errTransient })
	assert.Equal(t, []int{1, 2}, attempts)
	assert.Equal(t, []int{2, 1}, remaining)
}

func TestFixedRetry_RetriesAnyError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), FixedRetry(3, time.Millisecond), func(context.Context) error {
		calls++
		return errors.New("Not logged in")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestFixedRetry_DelayDoesNotGrow(t *testing.T) {
	cfg := withDefaults(FixedRetry(3, 3*time.Second))
	assert.Equal(t, 3*time.Second, cfg.delay(1))
	assert.Equal(t, 3*time.Second, cfg.delay(2))
	assert.Equal(t, 3*time.Second, cfg.delay(5))
}

func TestExponentialDelay_GrowsAndCaps(t *testing.T) {
	cfg := withDefaults(RetryConfig{Delay: 100 * time.Millisecond, MaxDelay: time.Second})
	assert.Equal(t, 100*time.Millisecond, cfg.delay(1))
	assert.Equal(t, 200*time.Millisecond, cfg.delay(2))
	assert.Equal(t, 400*time.Millisecond, cfg.delay(3))
	assert.Equal(t, time.Second, cfg.delay(10))
}

func TestExponentialDelay_JitterBounds(t *testing.T) {
	cfg := withDefaults(RetryConfig{Delay: time.Second, JitterFraction: 0.5})
	for i := 0; i < 100; i++ {
		d := cfg.delay(1)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

func TestDoVal(t *testing.T) {
	calls := 0
	v, err := DoVal(context.Background(), fastConfig(3), func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errTransient
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = DoVal(context.Background(), fastConfig(2), func(context.Context) (int, error) {
		return 7, errors.New("nope")
	})
	assert.Error(t, err)
	assert.Zero(t, v)
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(5, 250, 2000)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Delay)
	assert.Equal(t, 2*time.Second, cfg.MaxDelay)

	def := FromSettings(0, 0, 0)
	assert.Equal(t, DefaultRetryConfig().MaxAttempts, def.MaxAttempts)
}

func TestRetryLogger_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		RetryLogger("earthengine", "compute")(1, 2, errTransient)
	})
}
