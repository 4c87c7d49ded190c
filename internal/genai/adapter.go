package genai

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/snospb/vk-sno-bot/internal/sentry"
)

// Adapter is the bot-facing AI backend. Every failure collapses into the
// ok=false result; Ask never returns an error and never panics.
type Adapter struct {
	answerer Answerer
	enabled  bool
	timeout  time.Duration
}

// NewAdapter wraps answerer. A nil answerer or an empty chain makes every
// Ask unavailable without network I/O.
func NewAdapter(enabled bool, timeout time.Duration, answerer Answerer) *Adapter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if f, ok := answerer.(*FallbackAnswerer); ok && f.Len() == 0 {
		answerer = nil
	}
	return &Adapter{answerer: answerer, enabled: enabled, timeout: timeout}
}

// Enabled reports the operator switch, regardless of provider availability.
func (a *Adapter) Enabled() bool {
	return a != nil && a.enabled
}

// Ask returns the answer and true, or "" and false when the AI backend is
// disabled, unconfigured, slow, failing, or returns blank text.
func (a *Adapter) Ask(ctx context.Context, question string) (answer string, ok bool) {
	if !a.Enabled() || a.answerer == nil || strings.TrimSpace(question) == "" {
		return "", false
	}

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic in AI adapter", "panic", r)
			sentry.CaptureMessage("panic in AI adapter")
			answer, ok = "", false
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	answer, err := a.answerer.Answer(ctx, question)
	if err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			sentry.CaptureExceptionWithContext(ctx, err)
		}
		slog.WarnContext(ctx, "AI backend unavailable", "error", err)
		return "", false
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", false
	}
	return answer, true
}

// Close releases provider resources.
func (a *Adapter) Close() error {
	if a == nil || a.answerer == nil {
		return nil
	}
	return a.answerer.Close()
}
