package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter is a token bucket per key. Every key refills at rate tokens per
// second up to burst.
type Limiter struct {
	mu     sync.Mutex
	m      map[string]*bucket
	rate   float64
	burst  float64
	now    func() time.Time
	pruned time.Time
}

// New creates a limiter. A burst below one is raised to one.
func New(rate, burst float64) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{m: make(map[string]*bucket), rate: rate, burst: burst, now: time.Now}
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: l.burst, last: now}
		l.m[key] = b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens += elapsed * l.rate
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
		b.last = now
	}
	l.pruneLocked(now)

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// pruneLocked drops buckets that have been idle long enough to be full
// again, at most once a minute.
func (l *Limiter) pruneLocked(now time.Time) {
	if now.Sub(l.pruned) < time.Minute {
		return
	}
	l.pruned = now
	full := time.Minute
	if l.rate > 0 {
		if d := time.Duration(l.burst / l.rate * float64(time.Second)); d > full {
			full = d
		}
	}
	for k, b := range l.m {
		if now.Sub(b.last) >= full {
			delete(l.m, k)
		}
	}
}
