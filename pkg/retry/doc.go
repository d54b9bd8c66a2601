// Package retry provides exponential backoff and retry logic for transient
// failures in X API calls.
//
// Only network errors and 5xx responses are retried by DefaultRetryIf.
// Authentication failures, 404s and 429s return immediately: the poll loop
// handles them (fatal exit, skip, or waiting for the next cycle).
//
// Basic usage:
//
//	cfg := &retry.Config{
//		MaxAttempts: 4,
//		Backoff:     retry.Exponential(time.Second, 30*time.Second),
//		RetryIf:     retry.DefaultRetryIf,
//		Logger:      logger.GetLogger(),
//	}
//	body, err := retry.DoWithResult(ctx, func(ctx context.Context) ([]byte, error) {
//		return fetch(ctx)
//	}, cfg)
package retry
