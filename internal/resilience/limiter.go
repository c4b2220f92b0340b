package resilience

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter enforces a minimum interval between calls to one backend.
// Shared by every call to that backend; safe for concurrent use.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter creates a limiter that admits callsPerSecond calls with no
// burst: consecutive calls are spaced at least 1/callsPerSecond apart.
func NewLimiter(callsPerSecond float64) *Limiter {
	if callsPerSecond <= 0 {
		callsPerSecond = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(callsPerSecond), 1)}
}

// Wait blocks until the backend's minimum interval has elapsed since the
// last admitted call, or until ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
