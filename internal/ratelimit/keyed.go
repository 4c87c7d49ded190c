package ratelimit

import (
	"sync"
	"time"

	"github.com/snospb/vk-sno-bot/internal/metrics"
)

// KeyedConfig configures a KeyedLimiter instance.
type KeyedConfig struct {
	// Name identifies this limiter in metrics (e.g. "user")
	Name string

	// Token bucket settings
	Burst      float64 // Maximum tokens (burst capacity)
	RefillRate float64 // Tokens refilled per second

	// Optional rolling 24h limit (0 = disabled)
	DailyLimit int

	// How often idle keys are dropped
	CleanupPeriod time.Duration

	// Optional metrics reporter
	Metrics *metrics.Metrics
}

// KeyedLimiter keeps one token bucket (and optional daily counter) per VK
// user ID and drops idle entries in the background.
type KeyedLimiter struct {
	mu      sync.RWMutex
	entries map[int64]*keyedEntry
	config  KeyedConfig
	stopCh  chan struct{}
	once    sync.Once
}

// keyedEntry holds per-key state. Its mutex makes the check-then-consume
// across both layers atomic.
type keyedEntry struct {
	mu      sync.Mutex
	limiter *Limiter
	daily   *SlidingWindowCounter
}

// NewKeyedLimiter creates a per-key limiter and starts its cleanup loop.
// Call Stop when done.
func NewKeyedLimiter(cfg KeyedConfig) *KeyedLimiter {
	if cfg.CleanupPeriod <= 0 {
		cfg.CleanupPeriod = 5 * time.Minute
	}
	kl := &KeyedLimiter{
		entries: make(map[int64]*keyedEntry),
		config:  cfg,
		stopCh:  make(chan struct{}),
	}
	go kl.cleanupLoop()
	return kl
}

// Allow reports whether key may proceed and consumes from every layer if so.
// Key 0 (unknown sender) is never limited.
func (kl *KeyedLimiter) Allow(key int64) bool {
	if key == 0 {
		return true
	}

	entry := kl.entry(key)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if !entry.daily.Check() || !entry.limiter.Check() {
		if kl.config.Metrics != nil {
			kl.config.Metrics.RecordRateLimiterDrop(kl.config.Name)
		}
		return false
	}
	entry.daily.Consume()
	entry.limiter.Consume()
	return true
}

func (kl *KeyedLimiter) entry(key int64) *keyedEntry {
	kl.mu.RLock()
	e, ok := kl.entries[key]
	kl.mu.RUnlock()
	if ok {
		return e
	}

	kl.mu.Lock()
	defer kl.mu.Unlock()
	if e, ok = kl.entries[key]; ok {
		return e
	}
	e = &keyedEntry{
		limiter: New(kl.config.Burst, kl.config.RefillRate),
		daily:   NewSlidingWindowCounter(kl.config.DailyLimit, 24*time.Hour),
	}
	kl.entries[key] = e
	return e
}

// Available returns the tokens left for key; Burst for unseen keys.
func (kl *KeyedLimiter) Available(key int64) float64 {
	kl.mu.RLock()
	e, ok := kl.entries[key]
	kl.mu.RUnlock()
	if !ok {
		return kl.config.Burst
	}
	return e.limiter.Available()
}

// DailyRemaining returns the rolling daily quota left for key, or -1 when disabled.
func (kl *KeyedLimiter) DailyRemaining(key int64) int {
	if kl.config.DailyLimit <= 0 {
		return -1
	}
	kl.mu.RLock()
	e, ok := kl.entries[key]
	kl.mu.RUnlock()
	if !ok {
		return kl.config.DailyLimit
	}
	return e.daily.Remaining()
}

// ActiveCount returns the number of tracked keys.
func (kl *KeyedLimiter) ActiveCount() int {
	kl.mu.RLock()
	defer kl.mu.RUnlock()
	return len(kl.entries)
}

func (kl *KeyedLimiter) cleanupLoop() {
	ticker := time.NewTicker(kl.config.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-kl.stopCh:
			return
		case <-ticker.C:
			kl.sweep()
		}
	}
}

// sweep drops keys whose bucket has refilled. Keys with a daily limit are kept
// while they still have usage inside the rolling window.
func (kl *KeyedLimiter) sweep() {
	kl.mu.Lock()
	for key, e := range kl.entries {
		if !e.limiter.IsFull() {
			continue
		}
		if e.daily != nil && e.daily.Remaining() < kl.config.DailyLimit {
			continue
		}
		delete(kl.entries, key)
	}
	count := len(kl.entries)
	kl.mu.Unlock()

	if kl.config.Metrics != nil {
		kl.config.Metrics.SetRateLimiterUsers(kl.config.Name, count)
	}
}

// Stop ends the cleanup goroutine. Safe to call multiple times.
func (kl *KeyedLimiter) Stop() {
	kl.once.Do(func() { close(kl.stopCh) })
}
