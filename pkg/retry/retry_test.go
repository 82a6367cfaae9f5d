package retry

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestsync/pkg/errors"
	"nestsync/pkg/logger"
)

func fastConfig(maxAttempts int) *Config {
	return &Config{
		MaxAttempts: maxAttempts,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		RetryIf:     DefaultRetryIf,
		Context:     context.Background(),
		Logger:      logger.NewTestLogger(),
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		return nil
	}, fastConfig(3))

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientErrors(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		if calls < 3 {
			return errors.New(errors.ErrorTypeNetwork, "connection reset")
		}
		return nil
	}, fastConfig(5))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnFatalError(t *testing.T) {
	calls := 0
	fatal := errors.New(errors.ErrorTypeAuthFailed, "bad credentials")
	err := Do(func() error {
		calls++
		return fatal
	}, fastConfig(5))

	require.Error(t, err)
	assert.Equal(t, 1, calls, "auth errors must not be retried")
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthFailed))
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		return errors.New(errors.ErrorTypeServerError, "bad gateway")
	}, fastConfig(3))

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "max retry attempts (3) exceeded")
}

func TestDoContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(10)
	cfg.Context = ctx
	cfg.Backoff = &ConstantBackoff{Delay: time.Minute}

	done := make(chan error, 1)
	go func() {
		done <- Do(func() error {
			return errors.New(errors.ErrorTypeNetwork, "down")
		}, cfg)
	}()

	cancel()
	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "retry cancelled")
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after context cancellation")
	}
}

func TestDefaultRetryIf(t *testing.T) {
	assert.False(t, DefaultRetryIf(nil))
	assert.True(t, DefaultRetryIf(errors.New(errors.ErrorTypeNetwork, "x")))
	assert.True(t, DefaultRetryIf(errors.New(errors.ErrorTypeDownload, "x")))
	assert.False(t, DefaultRetryIf(errors.New(errors.ErrorTypeStorage, "x")))
	assert.False(t, DefaultRetryIf(context.Canceled))
	assert.True(t, DefaultRetryIf(stderrors.New("unknown")))
}

func TestExponentialBackoffGrowsAndCaps(t *testing.T) {
	eb := &ExponentialBackoff{
		BaseDelay:  time.Second,
		MaxDelay:   4 * time.Second,
		Multiplier: 2.0,
	}

	assert.Equal(t, time.Duration(0), eb.NextDelay(0))
	assert.Equal(t, time.Second, eb.NextDelay(1))
	assert.Equal(t, 2*time.Second, eb.NextDelay(2))
	assert.Equal(t, 4*time.Second, eb.NextDelay(3))
	assert.Equal(t, 4*time.Second, eb.NextDelay(10), "delay must cap at MaxDelay")
}

func TestExponentialBackoffJitterBounds(t *testing.T) {
	eb := &ExponentialBackoff{
		BaseDelay:    time.Second,
		MaxDelay:     time.Minute,
		Multiplier:   2.0,
		JitterFactor: 0.5,
	}

	for i := 0; i < 100; i++ {
		d := eb.NextDelay(2)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 3*time.Second)
	}
}

func TestWaitReturnsImmediatelyForZeroDelay(t *testing.T) {
	start := time.Now()
	require.NoError(t, Wait(context.Background(), 0))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
