package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow checks if a request is allowed under the current rate limit
	Allow() bool
	// Wait blocks until the rate limit allows another request or ctx ends
	Wait(ctx context.Context) error
	// Reset resets the rate limiter state
	Reset()
}

// TokenBucket is a token bucket limiter backed by golang.org/x/time/rate
type TokenBucket struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	limiter *rate.Limiter
}

// NewTokenBucket creates a limiter allowing requests per period with the given burst
func NewTokenBucket(requests int, period time.Duration, burst int) *TokenBucket {
	if requests <= 0 {
		requests = 1
	}
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(float64(requests) / period.Seconds())
	return &TokenBucket{
		limit:   limit,
		burst:   burst,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// NewPerMinute creates a limiter for requestsPerMinute with the given burst
func NewPerMinute(requestsPerMinute, burst int) *TokenBucket {
	return NewTokenBucket(requestsPerMinute, time.Minute, burst)
}

// Allow checks if a request can proceed without waiting
func (tb *TokenBucket) Allow() bool {
	return tb.current().Allow()
}

// Wait blocks until a token is available
func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.current().Wait(ctx)
}

// Reset refills the bucket to its burst size
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.limiter = rate.NewLimiter(tb.limit, tb.burst)
}

func (tb *TokenBucket) current() *rate.Limiter {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.limiter
}

// Unlimited never blocks; used when rate limiting is disabled and in tests
type Unlimited struct{}

func (Unlimited) Allow() bool                    { return true }
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (Unlimited) Reset()                         {}
