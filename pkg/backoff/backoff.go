package backoff

import (
	"context"
	"fmt"
	"time"

	"github.com/gear6io/slate/pkg/errors"
	"github.com/rs/zerolog"
)

// Package-specific error codes for retry operations
var (
	AttemptsExhausted = errors.MustNewCode("backoff.attempts_exhausted")
)

// Config holds retry configuration. MaxAttempts <= 0 retries until the
// context is cancelled, which is the contract background maintenance
// passes rely on.
type Config struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Factor      float64       `yaml:"factor"`
}

// DefaultConfig returns default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Factor:      2.0,
	}
}

// Fixed returns a fixed-interval, unbounded retry configuration
func Fixed(delay time.Duration) Config {
	return Config{
		MaxAttempts: 0,
		BaseDelay:   delay,
		MaxDelay:    delay,
		Factor:      1.0,
	}
}

// Operation is a unit of work that can be retried
type Operation func(ctx context.Context) error

// Retry executes an operation with backoff until it succeeds, the attempt
// budget is exhausted, or the context is cancelled.
func Retry(ctx context.Context, config Config, logger zerolog.Logger, operation Operation) error {
	return RetryIf(ctx, config, logger, operation, func(error) bool { return true })
}

// RetryIf is Retry restricted to errors the predicate classifies as
// retryable; any other error returns immediately. Retry-vs-abort policy
// stays a pure function of the error, typically an errors.HasCode check.
func RetryIf(ctx context.Context, config Config, logger zerolog.Logger, operation Operation, retryable func(error) bool) error {
	var lastErr error
	delay := config.BaseDelay

	for attempt := 1; config.MaxAttempts <= 0 || attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := operation(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Int("attempt", attempt).
					Msg("Operation succeeded after retry")
			}
			return nil
		}

		if !retryable(err) {
			return err
		}

		lastErr = err

		// If this is the last attempt, don't wait
		if config.MaxAttempts > 0 && attempt == config.MaxAttempts {
			break
		}

		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", config.MaxAttempts).
			Dur("delay", delay).
			Msg("Operation failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * config.Factor)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return errors.New(AttemptsExhausted, "operation failed after retry attempts", lastErr).
		AddContext("max_attempts", fmt.Sprintf("%d", config.MaxAttempts))
}
