package tracking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(clock *fakeClock) *RateLimiter {
	rl := NewRateLimiter(20, time.Second)
	rl.now = clock.Now
	return rl
}

func TestRateLimiterRejectsTwentyFirstRequest(t *testing.T) {
	clock := newFakeClock()
	rl := newTestLimiter(clock)
	ip := "203.0.113.10"

	for i := 0; i < 20; i++ {
		d := rl.Check(ip)
		require.False(t, d.Limited, "request %d should be allowed", i+1)
		clock.Advance(10 * time.Millisecond)
	}

	d := rl.Check(ip)
	assert.True(t, d.Limited)
	assert.Equal(t, 0, d.Remaining)
	// The oldest surviving hit was recorded at t0, so the window reopens at t0+1s.
	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 1, 0, time.UTC), d.ResetAt)

	var rlErr *RateLimitError
	require.ErrorAs(t, d.Err(), &rlErr)
	assert.Equal(t, "Rate limit exceeded. Maximum 20 requests per second.", rlErr.Error())
}

func TestRateLimiterRejectedRequestIsNotRecorded(t *testing.T) {
	clock := newFakeClock()
	rl := newTestLimiter(clock)
	ip := "203.0.113.11"

	for i := 0; i < 20; i++ {
		rl.Check(ip)
	}
	for i := 0; i < 5; i++ {
		assert.True(t, rl.Check(ip).Limited)
	}

	clock.Advance(time.Second + time.Millisecond)
	d := rl.Check(ip)
	assert.False(t, d.Limited)
	assert.Equal(t, 19, d.Remaining)
}

func TestRateLimiterResetsAfterWindow(t *testing.T) {
	clock := newFakeClock()
	rl := newTestLimiter(clock)
	ip := "203.0.113.20"

	for i := 0; i < 20; i++ {
		require.False(t, rl.Check(ip).Limited)
	}
	require.True(t, rl.Check(ip).Limited)

	clock.Advance(1100 * time.Millisecond)
	for i := 0; i < 20; i++ {
		assert.False(t, rl.Check(ip).Limited, "request %d after reset should be allowed", i+1)
	}
	assert.True(t, rl.Check(ip).Limited)
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	clock := newFakeClock()
	rl := newTestLimiter(clock)
	ip := "203.0.113.21"

	// Ten hits late in one second and ten early in the next still share a window.
	clock.Advance(900 * time.Millisecond)
	for i := 0; i < 10; i++ {
		require.False(t, rl.Check(ip).Limited)
	}
	clock.Advance(200 * time.Millisecond)
	for i := 0; i < 10; i++ {
		require.False(t, rl.Check(ip).Limited)
	}
	assert.True(t, rl.Check(ip).Limited)

	// Once the first batch leaves the window ten more fit.
	clock.Advance(850 * time.Millisecond)
	for i := 0; i < 10; i++ {
		assert.False(t, rl.Check(ip).Limited)
	}
	assert.True(t, rl.Check(ip).Limited)
}

func TestRateLimiterRemainingIsMonotonic(t *testing.T) {
	clock := newFakeClock()
	rl := newTestLimiter(clock)
	ip := "203.0.113.22"

	prev := 20
	for i := 0; i < 20; i++ {
		d := rl.Check(ip)
		assert.Less(t, d.Remaining, prev)
		assert.Equal(t, clock.Now().Add(time.Second), d.ResetAt)
		prev = d.Remaining
	}
	assert.Equal(t, 0, prev)

	clock.Advance(2 * time.Second)
	assert.Equal(t, 19, rl.Check(ip).Remaining)
}

func TestRateLimiterIsPerClient(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(1, time.Second)
	rl.now = clock.Now

	assert.False(t, rl.Check("203.0.113.30").Limited)
	assert.False(t, rl.Check("203.0.113.31").Limited)
	assert.True(t, rl.Check("203.0.113.30").Limited)
}

func TestRateLimiterSweepRemovesIdleClients(t *testing.T) {
	clock := newFakeClock()
	rl := newTestLimiter(clock)

	rl.Check("203.0.113.40")
	clock.Advance(500 * time.Millisecond)
	rl.Check("203.0.113.41")
	require.Equal(t, 2, rl.Clients())

	clock.Advance(700 * time.Millisecond)
	assert.Equal(t, 1, rl.Sweep(clock.Now()))
	assert.Equal(t, 1, rl.Clients())

	clock.Advance(time.Second)
	assert.Equal(t, 1, rl.Sweep(clock.Now()))
	assert.Equal(t, 0, rl.Clients())
}

func TestRateLimiterConcurrentChecks(t *testing.T) {
	rl := NewRateLimiter(20, time.Minute)
	ip := "203.0.113.50"

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !rl.Check(ip).Limited {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, allowed)
}

func TestRateLimiterRunStopsOnCancel(t *testing.T) {
	rl := NewRateLimiter(20, time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		rl.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
