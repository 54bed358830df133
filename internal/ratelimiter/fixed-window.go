package ratelimiter

import (
	"sync"
	"time"
)

// Limiter admits or rejects a request for a client key. RetryAfter tells
// the caller how long to wait when the request is rejected.
type Limiter interface {
	Allow(key string) (bool, time.Duration)
}

// FixedWindowRateLimiter counts requests per client IP inside a fixed
// window. Order creation and verification hit upstream gateways, so a
// burst from one client must not exhaust the upstream quota.
type FixedWindowRateLimiter struct {
	mu      sync.Mutex
	counts  map[string]int
	started time.Time
	limit   int
	window  time.Duration
}

func NewFixedWindowLimiter(limit int, window time.Duration) *FixedWindowRateLimiter {
	return &FixedWindowRateLimiter{
		counts:  make(map[string]int),
		started: time.Now(),
		limit:   limit,
		window:  window,
	}
}

func (rl *FixedWindowRateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(rl.started); elapsed >= rl.window {
		rl.counts = make(map[string]int)
		rl.started = now
	}

	if rl.counts[key] >= rl.limit {
		return false, rl.window - now.Sub(rl.started)
	}
	rl.counts[key]++
	return true, 0
}
