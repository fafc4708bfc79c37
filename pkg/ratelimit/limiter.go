// Package ratelimit paces requests to the remote site.
package ratelimit

import (
	"context"
	"time"

	"catlux/pkg/config"

	"golang.org/x/time/rate"
)

// Limiter paces outgoing requests
type Limiter interface {
	// Allow reports whether a request may go out now, consuming a token if so
	Allow() bool
	// Wait blocks until a request may go out or ctx is done
	Wait(ctx context.Context) error
	// Reset refills the limiter
	Reset()
}

// TokenBucket allows bursts of up to burst requests and refills at a steady rate
type TokenBucket struct {
	limit rate.Limit
	burst int
	lim   *rate.Limiter
}

// NewTokenBucket creates a limiter allowing perMinute requests per minute.
// A non-positive perMinute disables limiting.
func NewTokenBucket(perMinute, burst int) *TokenBucket {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / time.Minute.Seconds())
	}
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{
		limit: limit,
		burst: burst,
		lim:   rate.NewLimiter(limit, burst),
	}
}

// FromConfig builds the request limiter described by cfg
func FromConfig(cfg *config.RateLimitConfig) *TokenBucket {
	if cfg == nil {
		return NewTokenBucket(0, 1)
	}
	return NewTokenBucket(cfg.RequestsPerMinute, cfg.BurstSize)
}

func (tb *TokenBucket) Allow() bool {
	return tb.lim.Allow()
}

func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.lim.Wait(ctx)
}

func (tb *TokenBucket) Reset() {
	tb.lim = rate.NewLimiter(tb.limit, tb.burst)
}

// Unlimited never blocks
type Unlimited struct{}

func (Unlimited) Allow() bool                    { return true }
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (Unlimited) Reset()                         {}
