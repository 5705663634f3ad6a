package gateway

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	maxTrackedSessions = 4096
	limiterIdleTTL     = 10 * time.Minute
)

// sessionLimiter enforces a per-session token bucket on submitted turns.
// Buckets of idle sessions expire from the cache.
type sessionLimiter struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	r        rate.Limit
	burst    int
}

// newSessionLimiter allows rpm turns per minute per session. rpm <= 0
// disables limiting.
func newSessionLimiter(rpm, burst int) *sessionLimiter {
	if burst <= 0 {
		burst = 1
	}
	l := &sessionLimiter{burst: burst}
	if rpm > 0 {
		l.r = rate.Limit(float64(rpm) / 60.0)
		l.limiters = expirable.NewLRU[string, *rate.Limiter](maxTrackedSessions, nil, limiterIdleTTL)
	}
	return l
}

// Allow reports whether session id may submit a turn now.
func (l *sessionLimiter) Allow(id string) bool {
	if l == nil || l.limiters == nil {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters.Get(id)
	if !ok {
		lim = rate.NewLimiter(l.r, l.burst)
	}
	// Re-adding refreshes the idle TTL.
	l.limiters.Add(id, lim)
	l.mu.Unlock()
	return lim.Allow()
}
