package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// minLimiterIdle bounds how often idle buckets are swept.
const minLimiterIdle = time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet holds one token bucket per identity. A bucket left alone long
// enough to refill completely is indistinguishable from a new one, so such
// buckets are evicted.
type limiterSet struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	limiters  map[string]*limiterEntry
	now       func() time.Time
}

// newLimiterSet returns nil when perSecond is not positive, which disables limiting.
func newLimiterSet(perSecond float64, burst int) *limiterSet {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	idle := time.Duration(float64(burst) / perSecond * float64(time.Second))
	if idle < minLimiterIdle {
		idle = minLimiterIdle
	}
	return &limiterSet{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		idle:     idle,
		limiters: make(map[string]*limiterEntry),
		now:      time.Now,
	}
}

func (s *limiterSet) allow(identity string) bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	now := s.now()
	s.sweep(now)
	e, ok := s.limiters[identity]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[identity] = e
	}
	e.lastSeen = now
	s.mu.Unlock()
	return e.limiter.AllowN(now, 1)
}

// sweep drops buckets idle for longer than s.idle, at most once per s.idle.
// Callers hold s.mu.
func (s *limiterSet) sweep(now time.Time) {
	if now.Sub(s.lastSweep) < s.idle {
		return
	}
	s.lastSweep = now
	for id, e := range s.limiters {
		if now.Sub(e.lastSeen) >= s.idle {
			delete(s.limiters, id)
		}
	}
}
