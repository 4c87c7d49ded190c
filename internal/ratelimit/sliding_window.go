package ratelimit

import (
	"sync"
	"time"
)

// SlidingWindowCounter approximates a rolling window limit with two fixed
// windows: the effective count is the current window's count plus the previous
// window's count weighted by how much of it still overlaps the rolling window.
//
// With a 24h window, a limit of 100, 80 requests yesterday and 30 minutes into
// today, the previous window still weighs 23.5/24, so roughly 22 requests
// remain.
type SlidingWindowCounter struct {
	mu          sync.Mutex
	curr        int
	prev        int
	windowStart time.Time
	window      time.Duration
	limit       int
	now         func() time.Time
}

// NewSlidingWindowCounter creates a counter allowing limit requests per window.
// Returns nil if limit <= 0; a nil counter allows everything.
func NewSlidingWindowCounter(limit int, window time.Duration) *SlidingWindowCounter {
	if limit <= 0 {
		return nil
	}
	return &SlidingWindowCounter{
		windowStart: time.Now(),
		window:      window,
		limit:       limit,
		now:         time.Now,
	}
}

// Allow consumes one request if the limit permits.
func (c *SlidingWindowCounter) Allow() bool {
	if c == nil {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.effective() >= float64(c.limit) {
		return false
	}
	c.curr++
	return true
}

// Check reports whether a request would be allowed, without consuming.
func (c *SlidingWindowCounter) Check() bool {
	if c == nil {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.effective() < float64(c.limit)
}

// Consume records one request if the limit still permits it.
func (c *SlidingWindowCounter) Consume() {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.effective() < float64(c.limit) {
		c.curr++
	}
}

// Remaining returns the approximate remaining quota, or -1 when unlimited.
func (c *SlidingWindowCounter) Remaining() int {
	if c == nil {
		return -1
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return max(0, int(float64(c.limit)-c.effective()))
}

// effective rotates windows as needed and returns the weighted count.
// Must be called with mu held.
func (c *SlidingWindowCounter) effective() float64 {
	elapsed := c.now().Sub(c.windowStart)
	if elapsed >= c.window {
		passed := elapsed / c.window
		if passed == 1 {
			c.prev = c.curr
		} else {
			c.prev = 0
		}
		c.curr = 0
		c.windowStart = c.windowStart.Add(passed * c.window)
		elapsed = c.now().Sub(c.windowStart)
	}

	overlap := float64(c.window-elapsed) / float64(c.window)
	overlap = min(1, max(0, overlap))
	return float64(c.curr) + float64(c.prev)*overlap
}
