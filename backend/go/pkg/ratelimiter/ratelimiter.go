package ratelimiter

import "context"

// RateLimiter is the interface for rate limiting outbound calls and inbound writes.
type RateLimiter interface {
	// Allow reports whether a call may proceed right now, consuming a token if so.
	Allow() bool
	// Wait blocks until a call may proceed or ctx is done.
	Wait(ctx context.Context) error
}
