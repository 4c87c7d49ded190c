// Package ratelimit provides token bucket and sliding window limiters used to
// shape inbound callback traffic per user and outbound VK API calls globally.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter implements a token bucket rate limiter.
// It is safe for concurrent use.
//
// Tokens accrue at refillRate per second up to maxTokens; each request takes one.
type Limiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// New creates a limiter that starts full.
//
//	// VK allows a community token 20 calls per second.
//	limiter := ratelimit.New(20, 20)
func New(maxTokens, refillRate float64) *Limiter {
	return &Limiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// refill must be called with mu held.
func (l *Limiter) refill(now time.Time) {
	if elapsed := now.Sub(l.lastRefill).Seconds(); elapsed > 0 {
		l.tokens = min(l.maxTokens, l.tokens+elapsed*l.refillRate)
	}
	l.lastRefill = now
}

// take consumes a token if one is available. Otherwise it reports how long
// until the next token accrues. Must be called with mu held.
func (l *Limiter) take() (time.Duration, bool) {
	l.refill(time.Now())
	if l.tokens >= 1 {
		l.tokens--
		return 0, true
	}
	if l.refillRate <= 0 {
		return time.Hour, false
	}
	return time.Duration((1 - l.tokens) / l.refillRate * float64(time.Second)), false
}

// Allow consumes a token and reports whether one was available. Non-blocking.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.take()
	return ok
}

// Check reports whether a token is available without consuming it.
// Pair with Consume under an external lock for multi-layer checks.
func (l *Limiter) Check() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill(time.Now())
	return l.tokens >= 1
}

// Consume takes a token if one is available. Call after Check passed.
func (l *Limiter) Consume() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.take()
}

// Wait blocks until a token is acquired or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		delay, ok := l.take()
		l.mu.Unlock()
		if ok {
			return nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Available returns the current number of tokens.
func (l *Limiter) Available() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill(time.Now())
	return l.tokens
}

// IsFull reports whether the bucket is at capacity, meaning the key is idle.
func (l *Limiter) IsFull() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill(time.Now())
	return l.tokens >= l.maxTokens
}

// Reset refills the bucket.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.tokens = l.maxTokens
	l.lastRefill = time.Now()
}
