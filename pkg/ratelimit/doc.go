// Package ratelimit throttles outbound X API requests.
//
// TokenBucket wraps golang.org/x/time/rate behind the small Limiter
// interface the API client depends on, so tests can substitute Unlimited.
//
// Usage:
//
//	// 60 requests per minute, bursts of 5
//	limiter := ratelimit.NewPerMinute(60, 5)
//
//	if err := limiter.Wait(ctx); err != nil {
//	    return err // context cancelled
//	}
//	// Proceed with request
package ratelimit
