package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/gear6io/slate/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	transientCode = errors.MustNewCode("backoff.transient_probe")
	fatalCode     = errors.MustNewCode("backoff.fatal_probe")
)

func testConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Factor:      2.0,
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), testConfig(), zerolog.Nop(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New(transientCode, "not yet", nil)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), testConfig(), zerolog.Nop(), func(ctx context.Context) error {
		attempts++
		return errors.New(transientCode, "always failing", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.True(t, errors.HasCode(err, AttemptsExhausted))
	// The last underlying failure stays reachable in the chain
	assert.True(t, errors.HasCode(err, transientCode))
}

func TestRetryIfStopsOnNonRetryable(t *testing.T) {
	attempts := 0
	err := RetryIf(context.Background(), testConfig(), zerolog.Nop(), func(ctx context.Context) error {
		attempts++
		if attempts == 2 {
			return errors.New(fatalCode, "structural failure", nil)
		}
		return errors.New(transientCode, "transient failure", nil)
	}, func(err error) bool {
		return errors.HasCode(err, transientCode)
	})

	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	assert.True(t, errors.HasCode(err, fatalCode))
	assert.False(t, errors.HasCode(err, AttemptsExhausted))
}

func TestRetryUnboundedStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	cfg := Fixed(time.Millisecond)
	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, cfg, zerolog.Nop(), func(ctx context.Context) error {
			attempts++
			return errors.New(transientCode, "never succeeding", nil)
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Greater(t, attempts, 1)
	case <-time.After(time.Second):
		t.Fatal("retry loop did not exit after context cancellation")
	}
}

func TestFixedConfigShape(t *testing.T) {
	cfg := Fixed(500 * time.Millisecond)
	assert.Equal(t, 0, cfg.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.BaseDelay)
	assert.Equal(t, cfg.BaseDelay, cfg.MaxDelay)
}
