// Package ratelimit caps the aggregate request rate of all workers.
package ratelimit

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket shared by every worker of a run. A nil *Limiter
// never blocks.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter allows maxRPS requests per second across all callers. A burst
// of zero or less defaults to one second worth of tokens. It returns nil
// when maxRPS is not positive.
func NewLimiter(maxRPS float64, burst int) *Limiter {
	if maxRPS <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = int(math.Max(1, math.Ceil(maxRPS)))
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(maxRPS), burst)}
}

// Wait blocks until a request may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// Limit reports the configured requests per second, or 0 for a nil Limiter.
func (l *Limiter) Limit() float64 {
	if l == nil {
		return 0
	}
	return float64(l.limiter.Limit())
}

// Burst reports the bucket size.
func (l *Limiter) Burst() int {
	if l == nil {
		return 0
	}
	return l.limiter.Burst()
}
