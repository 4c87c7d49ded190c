package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/snospb/vk-sno-bot/internal/metrics"
)

func TestThrottle_Acquire(t *testing.T) {
	t.Parallel()

	m := metrics.New(prometheus.NewRegistry())
	th := NewThrottle("vk_send", 2, m)

	for range 2 {
		if err := th.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire() = %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := th.Acquire(ctx); err == nil {
		t.Fatal("Acquire() should fail when the burst is spent and the context expires")
	}

	if got := testutil.ToFloat64(m.RateLimiterDropped.WithLabelValues("vk_send")); got != 1 {
		t.Errorf("drops = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.RateLimiterWaitDuration); n != 1 {
		t.Errorf("wait histogram series = %d, want 1", n)
	}
}

func TestThrottle_NilMetrics(t *testing.T) {
	t.Parallel()

	th := NewThrottle("vk_send", 1, nil)
	if err := th.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() = %v", err)
	}
}
