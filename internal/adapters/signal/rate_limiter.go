package signal

import (
	"sync"
	"time"

	"github.com/dkeye/Buster/internal/domain"
)

// RequestRateLimiter bounds how many requests one context may issue per
// interval. A nil limiter allows everything.
type RequestRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.ContextRef][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewRequestRateLimiter(limit int, interval time.Duration) *RequestRateLimiter {
	if limit <= 0 {
		return nil
	}
	return &RequestRateLimiter{
		history:  make(map[domain.ContextRef][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *RequestRateLimiter) Allow(ref domain.ContextRef) bool {
	if rl == nil {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[ref]
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[ref] = fresh
		return false
	}

	rl.history[ref] = append(fresh, now)
	return true
}

// Forget drops the history of a context that left.
func (rl *RequestRateLimiter) Forget(ref domain.ContextRef) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	delete(rl.history, ref)
	rl.mu.Unlock()
}
