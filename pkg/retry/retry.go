// Package retry retries operations with backoff. Only the login handshake
// uses it; document fetches are never retried automatically.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "catlux/pkg/errors"
	"catlux/pkg/logger"
)

// Operation is a function that might need retrying
type Operation func(ctx context.Context) error

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the total number of attempts, at least 1
	MaxAttempts int
	Backoff     BackoffStrategy
	// RetryIf decides whether an error is worth another attempt
	RetryIf func(error) bool
	// OnRetry is called before each wait
	OnRetry func(attempt int, err error, delay time.Duration)
	Logger  logger.Logger
}

// DefaultConfig returns a retry configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff:     DefaultExponentialBackoff(),
		RetryIf:     DefaultRetryIf,
		Logger:      logger.GetLogger(),
	}
}

// DefaultRetryIf retries transient typed errors and never retries cancellation
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var fetchErr *errs.Error
	if errors.As(err, &fetchErr) {
		return errs.IsRetryable(fetchErr.Type)
	}
	return false
}

// Do runs op until it succeeds, returns a non-retryable error, runs out of
// attempts or ctx is done
func Do(ctx context.Context, op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = DefaultExponentialBackoff()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.DebugWithFields("operation succeeded after retry", map[string]interface{}{"attempt": attempt})
			}
			return nil
		}
		lastErr = err

		if !retryIf(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		delay := backoff.NextDelay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		log.WithError(err).WarnWithFields("retrying operation", map[string]interface{}{
			"attempt":      attempt,
			"delay_ms":     delay.Milliseconds(),
			"max_attempts": maxAttempts,
		})

		if err := Wait(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}

	log.WithError(lastErr).ErrorWithFields("max retry attempts exceeded", map[string]interface{}{"attempts": maxAttempts})
	return fmt.Errorf("max retry attempts (%d) exceeded: %w", maxAttempts, lastErr)
}
