package httpserver

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// OwnerLimiter keeps one token bucket per owner.
type OwnerLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	limit    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewOwnerLimiter allows perMinute requests per owner with the given burst.
func NewOwnerLimiter(perMinute float64, burst int) *OwnerLimiter {
	if burst < 1 {
		burst = 1
	}
	return &OwnerLimiter{
		limiters: make(map[string]*entry),
		limit:    rate.Limit(perMinute / 60),
		burst:    burst,
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

func (l *OwnerLimiter) Allow(owner string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.limiters[owner]
	if !ok {
		l.sweep(now)
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[owner] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// sweep drops buckets unused for longer than idle; a fresh bucket is full, so nothing is lost.
func (l *OwnerLimiter) sweep(now time.Time) {
	for k, e := range l.limiters {
		if now.Sub(e.lastSeen) > l.idle {
			delete(l.limiters, k)
		}
	}
}
