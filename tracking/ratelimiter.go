package tracking

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of a single RateLimiter.Check call.
type Decision struct {
	Limited   bool
	Limit     int
	Window    time.Duration
	Remaining int
	ResetAt   time.Time
}

// Err returns a *RateLimitError for a limited decision and nil otherwise.
func (d Decision) Err() error {
	if !d.Limited {
		return nil
	}
	return &RateLimitError{Limit: d.Limit, Window: d.Window, ResetAt: d.ResetAt}
}

// RateLimiter is a per-client sliding-window request counter. Every accepted
// request timestamp is kept until it leaves the window, so bursts that straddle
// a window boundary are still counted.
type RateLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	max    int
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter allows max requests per client within any trailing window.
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		hits:   make(map[string][]time.Time),
		max:    max,
		window: window,
		now:    time.Now,
	}
}

// Check purges the client's expired timestamps and records the request if the
// client is still under the limit. Rejected requests are not recorded.
func (rl *RateLimiter) Check(key string) Decision {
	now := rl.now()
	cutoff := now.Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	hits := rl.hits[key]
	kept := hits[:0]
	for _, t := range hits {
		if !t.Before(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= rl.max {
		rl.hits[key] = kept
		resetAt := now.Add(rl.window)
		if len(kept) > 0 {
			resetAt = kept[0].Add(rl.window)
		}
		return Decision{Limited: true, Limit: rl.max, Window: rl.window, Remaining: 0, ResetAt: resetAt}
	}

	kept = append(kept, now)
	rl.hits[key] = kept
	return Decision{
		Limit:     rl.max,
		Window:    rl.window,
		Remaining: rl.max - len(kept),
		ResetAt:   now.Add(rl.window),
	}
}

// Sweep drops every client whose timestamps have all left the window and
// returns how many were removed.
func (rl *RateLimiter) Sweep(now time.Time) int {
	cutoff := now.Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, hits := range rl.hits {
		if len(hits) == 0 || hits[len(hits)-1].Before(cutoff) {
			delete(rl.hits, key)
			removed++
		}
	}
	return removed
}

// Clients returns the number of tracked client keys.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.hits)
}

// Run sweeps idle clients every interval until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Sweep(rl.now())
		}
	}
}
