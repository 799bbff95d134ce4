package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter keeps a token bucket per key. The feed keys it by page id for
// signals and by scope for new connections.
type Limiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	maxKeys  int
}

// DefaultMaxKeys is the number of keys tracked before idle ones are evicted
const DefaultMaxKeys = 10000

// NewLimiter creates a new rate limiter
// perSecond: sustained signals allowed per page (e.g., 5)
// burst: max signals accepted at once (e.g., 10)
func NewLimiter(perSecond float64, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		maxKeys:  DefaultMaxKeys,
	}
}

// GetLimiter returns the rate limiter for key
func (l *Limiter) GetLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[key]
	if !exists {
		if len(l.limiters) >= l.maxKeys {
			l.evictIdleLocked()
		}
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = limiter
	}

	return limiter
}

// Allow reports whether one more event is allowed for key
func (l *Limiter) Allow(key string) bool {
	return l.GetLimiter(key).Allow()
}

// Tokens returns the tokens currently available to key
func (l *Limiter) Tokens(key string) float64 {
	return l.GetLimiter(key).Tokens()
}

// Forget drops the limiter of key
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, key)
}

// Len returns the number of keys being tracked
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// evictIdleLocked drops every key whose bucket has refilled completely. A
// full bucket behaves exactly like a new one, so nothing is lost.
func (l *Limiter) evictIdleLocked() {
	now := time.Now()
	for key, limiter := range l.limiters {
		if limiter.TokensAt(now) >= float64(l.burst) {
			delete(l.limiters, key)
		}
	}
}
