package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	errs "likesync/pkg/errors"
	"likesync/pkg/logger"
)

// Operation is a function that performs an operation that might need retrying
type Operation func(ctx context.Context) error

// OperationWithResult is a function that returns a result and might need retrying
type OperationWithResult[T any] func(ctx context.Context) (T, error)

// Backoff returns the delay to wait after the given failed attempt (1-based)
type Backoff func(attempt int) time.Duration

// Exponential doubles base per attempt up to ceiling and returns a random
// delay in the upper half of that step
func Exponential(base, ceiling time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt <= 0 || base <= 0 || ceiling <= 0 {
			return 0
		}
		d := ceiling
		if shift := attempt - 1; shift < 32 && base<<shift < ceiling && base<<shift > 0 {
			d = base << shift
		}
		half := d / 2
		return half + time.Duration(rand.Int63n(int64(d-half+1)))
	}
}

// Constant waits d after every failed attempt
func Constant(d time.Duration) Backoff {
	return func(int) time.Duration { return d }
}

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the maximum number of attempts including the first (0 means unlimited)
	MaxAttempts int
	// Backoff computes the wait between attempts; nil retries immediately
	Backoff Backoff
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration)
	// Logger for retry attempts
	Logger logger.Logger
}

// DefaultConfig returns a retry configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff:     Exponential(time.Second, 30*time.Second),
		RetryIf:     DefaultRetryIf,
		Logger:      logger.GetLogger(),
	}
}

// DefaultRetryIf retries typed errors whose type is transient and any
// untyped error that is not a context cancellation
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *errs.Error
	if errors.As(err, &apiErr) {
		return errs.IsRetryable(apiErr.Type)
	}

	return true
}

// Do executes an operation with retry logic
func Do(ctx context.Context, op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}

	var lastErr error
	attempt := 0

	for {
		attempt++

		if cfg.MaxAttempts > 0 && attempt > cfg.MaxAttempts {
			if cfg.Logger != nil {
				cfg.Logger.ErrorWithFields("max retry attempts exceeded", map[string]interface{}{
					"attempts":   attempt - 1,
					"last_error": lastErr.Error(),
				})
			}
			return fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, lastErr)
		}

		err := op(ctx)
		if err == nil {
			if attempt > 1 && cfg.Logger != nil {
				cfg.Logger.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}

		lastErr = err

		if !retryIf(err) {
			return err
		}

		delay := time.Duration(0)
		if cfg.Backoff != nil {
			delay = cfg.Backoff(attempt)
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}

		if cfg.Logger != nil {
			cfg.Logger.WarnWithFields("retrying operation", map[string]interface{}{
				"attempt":      attempt,
				"error":        err.Error(),
				"delay_ms":     delay.Milliseconds(),
				"max_attempts": cfg.MaxAttempts,
			})
		}

		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// DoWithResult executes an operation that returns a result with retry logic
func DoWithResult[T any](ctx context.Context, op OperationWithResult[T], cfg *Config) (T, error) {
	var result T

	err := Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	}, cfg)

	return result, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
