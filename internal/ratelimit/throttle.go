package ratelimit

import (
	"context"
	"time"

	"github.com/snospb/vk-sno-bot/internal/metrics"
)

// Throttle paces outbound calls to an external API that enforces a
// requests-per-second budget. VK returns error 6 ("Too many requests per
// second") when a community token exceeds it, so callers wait instead.
type Throttle struct {
	*Limiter
	name    string
	metrics *metrics.Metrics
}

// NewThrottle creates a throttle allowing rps calls per second with a burst of rps.
// The name labels wait-time metrics; m may be nil.
func NewThrottle(name string, rps float64, m *metrics.Metrics) *Throttle {
	return &Throttle{
		Limiter: New(rps, rps),
		name:    name,
		metrics: m,
	}
}

// Acquire waits for a slot. The time spent waiting is recorded; a canceled
// wait is also counted as a drop.
func (t *Throttle) Acquire(ctx context.Context) error {
	start := time.Now()
	err := t.Wait(ctx)
	if t.metrics != nil {
		t.metrics.RecordRateLimiterWait(t.name, time.Since(start).Seconds())
		if err != nil {
			t.metrics.RecordRateLimiterDrop(t.name)
		}
	}
	return err
}
