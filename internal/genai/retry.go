package genai

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// CalculateBackoff returns the delay before retry number attempt using
// Full Jitter: random(0, min(max, initial * 2^(attempt-1))).
func CalculateBackoff(attempt int, initial, max time.Duration) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := time.Duration(float64(initial) * math.Pow(2, float64(attempt-1)))
	if delay > max {
		delay = max
	}
	if delay <= 0 {
		return 0
	}

	n, err := rand.Int(rand.Reader, big.NewInt(int64(delay)))
	if err != nil {
		return delay / 2
	}
	return time.Duration(n.Int64())
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HasSufficientBudget reports whether ctx has at least required time left.
func HasSufficientBudget(ctx context.Context, required time.Duration) bool {
	deadline, ok := ctx.Deadline()
	if !ok {
		return true
	}
	return time.Until(deadline) >= required
}

// withRetry calls fn until it succeeds, returns a non-retryable error, runs
// out of attempts, or the context budget cannot cover the next backoff.
// onRetry is called before each sleep.
func withRetry[T any](ctx context.Context, cfg RetryConfig, onRetry func(attempt int, backoff time.Duration, err error), fn func(context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	attempts := max(cfg.MaxAttempts, 1)

	for attempt := range attempts {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ClassifyError(err) != ActionRetry || attempt == attempts-1 {
			break
		}

		backoff := CalculateBackoff(attempt+1, cfg.InitialDelay, cfg.MaxDelay)
		if !HasSufficientBudget(ctx, backoff) {
			break
		}
		if onRetry != nil {
			onRetry(attempt+1, backoff, err)
		}
		if err := Sleep(ctx, backoff); err != nil {
			break
		}
	}

	return zero, lastErr
}
