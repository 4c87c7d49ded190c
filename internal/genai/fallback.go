package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/snospb/vk-sno-bot/internal/metrics"
)

// FallbackAnswerer walks a chain of answerers in order. Each one is retried
// on transient errors; any other failure moves on to the next provider.
type FallbackAnswerer struct {
	chain   []Answerer
	retry   RetryConfig
	metrics *metrics.Metrics
}

// NewFallbackAnswerer creates a fallback chain. Nil answerers are skipped.
// m may be nil.
func NewFallbackAnswerer(cfg RetryConfig, m *metrics.Metrics, answerers ...Answerer) *FallbackAnswerer {
	chain := make([]Answerer, 0, len(answerers))
	for _, a := range answerers {
		if a != nil {
			chain = append(chain, a)
		}
	}
	return &FallbackAnswerer{chain: chain, retry: cfg, metrics: m}
}

// Len returns the number of providers in the chain.
func (f *FallbackAnswerer) Len() int {
	if f == nil {
		return 0
	}
	return len(f.chain)
}

// Answer returns the first successful answer in the chain.
func (f *FallbackAnswerer) Answer(ctx context.Context, question string) (string, error) {
	if f.Len() == 0 {
		return "", errors.New("no AI provider configured")
	}

	var errs []error
	for i, a := range f.chain {
		provider := a.Provider()
		start := time.Now()

		answer, err := withRetry(ctx, f.retry,
			func(attempt int, backoff time.Duration, err error) {
				slog.DebugContext(ctx, "retrying AI request",
					"provider", provider,
					"attempt", attempt,
					"backoff", backoff,
					"error", err)
			},
			func(ctx context.Context) (string, error) {
				return a.Answer(ctx, question)
			})

		f.record(provider, err, time.Since(start))
		if err == nil {
			if i > 0 {
				from := f.chain[i-1].Provider()
				slog.InfoContext(ctx, "AI provider fallback succeeded", "from", from, "to", provider)
				if f.metrics != nil {
					f.metrics.RecordAIProviderFallback(string(from), string(provider))
				}
			}
			return answer, nil
		}

		errs = append(errs, err)
		slog.WarnContext(ctx, "AI provider failed",
			"provider", provider,
			"action", ClassifyError(err),
			"duration", time.Since(start),
			"error", err)

		if ctx.Err() != nil {
			break
		}
	}

	return "", fmt.Errorf("all providers failed: %w", errors.Join(errs...))
}

func (f *FallbackAnswerer) record(provider Provider, err error, d time.Duration) {
	if f.metrics == nil {
		return
	}
	f.metrics.RecordAIRequest(string(provider), errorLabel(err), d.Seconds())
}

// Provider returns the primary provider.
func (f *FallbackAnswerer) Provider() Provider {
	if f.Len() == 0 {
		return ""
	}
	return f.chain[0].Provider()
}

// Close closes every answerer in the chain.
func (f *FallbackAnswerer) Close() error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, a := range f.chain {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
