package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/snospb/vk-sno-bot/internal/metrics"
)

func TestKeyedLimiter_Basic(t *testing.T) {
	t.Parallel()

	kl := NewKeyedLimiter(KeyedConfig{Name: "user", Burst: 1, RefillRate: 0.001, CleanupPeriod: time.Hour})
	defer kl.Stop()

	if !kl.Allow(1001) {
		t.Error("first request should pass")
	}
	if kl.Allow(1001) {
		t.Error("second request should be limited with burst 1")
	}
	if !kl.Allow(1002) {
		t.Error("other users are independent")
	}
	if !kl.Allow(0) || !kl.Allow(0) {
		t.Error("key 0 is never limited")
	}
}

func TestKeyedLimiter_RecordsDrops(t *testing.T) {
	t.Parallel()

	m := metrics.New(prometheus.NewRegistry())
	kl := NewKeyedLimiter(KeyedConfig{Name: "user", Burst: 1, RefillRate: 0.001, Metrics: m})
	defer kl.Stop()

	kl.Allow(7)
	kl.Allow(7)
	kl.Allow(7)

	if got := testutil.ToFloat64(m.RateLimiterDropped.WithLabelValues("user")); got != 2 {
		t.Errorf("drops = %v, want 2", got)
	}
}

func TestKeyedLimiter_Cleanup(t *testing.T) {
	t.Parallel()

	m := metrics.New(prometheus.NewRegistry())
	kl := NewKeyedLimiter(KeyedConfig{
		Name:          "user",
		Burst:         10,
		RefillRate:    1000,
		CleanupPeriod: 20 * time.Millisecond,
		Metrics:       m,
	})
	defer kl.Stop()

	kl.Allow(1)
	if n := kl.ActiveCount(); n != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", n)
	}

	deadline := time.Now().Add(time.Second)
	for kl.ActiveCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := kl.ActiveCount(); n != 0 {
		t.Errorf("ActiveCount() = %d after cleanup, want 0", n)
	}
}

func TestKeyedLimiter_CleanupKeepsDailyUsage(t *testing.T) {
	t.Parallel()

	kl := NewKeyedLimiter(KeyedConfig{
		Name:          "user",
		Burst:         10,
		RefillRate:    1000,
		DailyLimit:    5,
		CleanupPeriod: 20 * time.Millisecond,
	})
	defer kl.Stop()

	kl.Allow(1)
	time.Sleep(100 * time.Millisecond)

	if n := kl.ActiveCount(); n != 1 {
		t.Errorf("ActiveCount() = %d, want 1 while daily usage is inside the window", n)
	}
}

func TestKeyedLimiter_DailyLimit(t *testing.T) {
	t.Parallel()

	kl := NewKeyedLimiter(KeyedConfig{Name: "user", Burst: 100, RefillRate: 100, DailyLimit: 2})
	defer kl.Stop()

	if r := kl.DailyRemaining(5); r != 2 {
		t.Errorf("DailyRemaining(unseen) = %d, want 2", r)
	}
	kl.Allow(5)
	if r := kl.DailyRemaining(5); r != 1 {
		t.Errorf("DailyRemaining() = %d, want 1", r)
	}
	kl.Allow(5)
	if kl.Allow(5) {
		t.Error("third request should exceed the daily limit")
	}

	noDaily := NewKeyedLimiter(KeyedConfig{Name: "x", Burst: 1, RefillRate: 1})
	defer noDaily.Stop()
	if r := noDaily.DailyRemaining(5); r != -1 {
		t.Errorf("DailyRemaining() = %d, want -1 when disabled", r)
	}
}

func TestKeyedLimiter_Available(t *testing.T) {
	t.Parallel()

	kl := NewKeyedLimiter(KeyedConfig{Name: "user", Burst: 10, RefillRate: 0.001})
	defer kl.Stop()

	if v := kl.Available(42); v != 10 {
		t.Errorf("Available(unseen) = %v, want 10", v)
	}
	kl.Allow(42)
	if v := kl.Available(42); v >= 10 {
		t.Errorf("Available() = %v, want < 10 after use", v)
	}
}

func TestKeyedLimiter_Concurrent(t *testing.T) {
	t.Parallel()

	kl := NewKeyedLimiter(KeyedConfig{Name: "user", Burst: 1000, RefillRate: 1, CleanupPeriod: time.Hour})
	defer kl.Stop()

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Go(func() {
			key := int64(i%10 + 1)
			kl.Allow(key)
			kl.Available(key)
		})
	}
	wg.Wait()

	if n := kl.ActiveCount(); n != 10 {
		t.Errorf("ActiveCount() = %d, want 10", n)
	}
	kl.Stop()
	kl.Stop()
}
