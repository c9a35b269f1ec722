// Package ratelimiter throttles how fast the listener accepts connections.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket over accepted connections.
//
// The listener waits for a token before every Accept, so a flood of clients
// piles up in the kernel backlog instead of in the queue. A nil *RateLimiter
// is valid and never throttles.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a limiter admitting perSecond connections on average with bursts
// of up to burst. A burst of 0 defaults to perSecond.
//
// Returns nil when perSecond is 0, meaning "unlimited".
//
// Example:
//
//	// 200 accepts/s sustained, 400 in a burst
//	limiter := New(200, 400)
func New(perSecond, burst uint) *RateLimiter {
	if perSecond == 0 {
		return nil
	}
	if burst == 0 {
		burst = perSecond
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), int(burst)),
	}
}

// Wait blocks until a token is available or ctx is done.
//
// Returns the context error if ctx ends first.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return ctx.Err()
	}
	return r.limiter.Wait(ctx)
}

// Tokens returns the number of tokens currently in the bucket, for the
// periodic load log. The value is stale as soon as it is returned.
func (r *RateLimiter) Tokens() float64 {
	if r == nil {
		return 0
	}
	return r.limiter.Tokens()
}
