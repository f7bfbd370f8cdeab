// Package ratelimit gates alert ingestion per origin with token
// buckets.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter holds one token bucket per origin. Alerts from an origin
// that exceeds its sustained rate are rejected rather than queued.
// The zero value is not usable; call New.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rate    rate.Limit
	burst   int
}

// New creates a limiter allowing perSecond sustained events per origin
// with the given burst headroom.
func New(perSecond float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		rate:    rate.Limit(perSecond),
		burst:   burst,
	}
}

// Allow reports whether one more event from origin fits its budget.
// Unknown origins get a fresh bucket on first use.
func (l *Limiter) Allow(origin string) bool {
	l.mu.Lock()
	bucket, ok := l.buckets[origin]
	if !ok {
		bucket = rate.NewLimiter(l.rate, l.burst)
		l.buckets[origin] = bucket
	}
	l.mu.Unlock()
	return bucket.Allow()
}
