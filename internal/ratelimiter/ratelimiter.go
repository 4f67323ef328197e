// Package ratelimiter provides token-bucket request throttling for
// transfer sessions, wrapping golang.org/x/time/rate.
//
// The token bucket algorithm adds tokens at a constant rate and charges
// one token per request, so short bursts pass at full speed while the
// sustained rate stays bounded. A session that exhausts its bucket
// waits for the next token instead of being disconnected, which keeps
// misbehaving clients slow rather than broken.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter enforces a sustained requests-per-second rate with a
// configurable burst. All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter allowing requestsPerSecond sustained and
// burst immediate requests. requestsPerSecond of 0 means unlimited.
//
// The burst should typically be >= requestsPerSecond so a full second
// of traffic can be absorbed without waiting.
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst == 0 {
		burst = 1
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Allow reports whether a request may proceed right now, consuming a
// token if so. Use this to reject over-limit requests immediately.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or the context is cancelled.
// Use this to throttle requests rather than reject them.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Tokens returns the current number of available tokens. Primarily
// useful for monitoring and tests; the value may change immediately
// after the call.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
