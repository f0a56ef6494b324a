package resilience

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket shared by every caller of the external
// API. Capacity maxRequests, refilled continuously at maxRequests/per.
// Refill is computed from elapsed wall-clock time on each acquisition;
// there is no background timer. Under sustained overload callers wait
// longer rather than being rejected.
type RateLimiter struct {
	limiter *rate.Limiter
}

func NewRateLimiter(maxRequests int, per time.Duration) (*RateLimiter, error) {
	if maxRequests < 1 {
		return nil, fmt.Errorf("rate limiter capacity must be >= 1, got %d", maxRequests)
	}
	if per <= 0 {
		return nil, fmt.Errorf("rate limiter window must be positive, got %s", per)
	}
	limit := rate.Limit(float64(maxRequests) / per.Seconds())
	return &RateLimiter{limiter: rate.NewLimiter(limit, maxRequests)}, nil
}

// Acquire blocks until one token is available, then debits it. The only
// error condition is context cancellation.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
