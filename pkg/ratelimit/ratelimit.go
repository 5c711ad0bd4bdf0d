// Package ratelimit keeps one token bucket per caller key.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter refills each key at perMin tokens a minute with a burst of perMin. A nil
// Limiter allows everything.
type Limiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*rate.Limiter
	now     func() time.Time
}

// New returns nil (no limit) for perMin <= 0.
func New(perMin int) *Limiter {
	if perMin <= 0 {
		return nil
	}
	return &Limiter{
		limit:   rate.Limit(float64(perMin) / 60.0),
		burst:   perMin,
		buckets: make(map[string]*rate.Limiter),
		now:     time.Now,
	}
}

// WithClock replaces the time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	if l != nil {
		l.now = now
	}
	return l
}

// Allow spends one token from key's bucket. An empty key shares the "unknown" bucket.
func (l *Limiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	if key == "" {
		key = "unknown"
	}
	return l.bucket(key).AllowN(l.now(), 1)
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = b
	}
	return b
}
