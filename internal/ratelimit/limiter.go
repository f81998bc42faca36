// Package ratelimit bounds submission rates per owner. The limiter is an
// injected dependency of the API layer so tests can substitute their own and
// so the policy can move to a shared store without touching callers.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter decides whether an owner may submit a run right now.
type Limiter interface {
	Allow(ownerID string) bool
}

type noopLimiter struct{}

func (noopLimiter) Allow(string) bool { return true }

// NewNoop returns a limiter that admits everything.
func NewNoop() Limiter {
	return noopLimiter{}
}

// OwnerLimiter keeps one token bucket per owner identity.
type OwnerLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewOwnerLimiter builds a per-owner limiter admitting perMinute submissions
// with the given burst. A non-positive rate disables limiting.
func NewOwnerLimiter(perMinute float64, burst int) Limiter {
	if perMinute <= 0 {
		return NewNoop()
	}
	if burst < 1 {
		burst = 1
	}
	return &OwnerLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perMinute / 60.0),
		burst:    burst,
	}
}

// Allow reports whether the owner has submission budget remaining.
func (l *OwnerLimiter) Allow(ownerID string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[ownerID]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[ownerID] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}
