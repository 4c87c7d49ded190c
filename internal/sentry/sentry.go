// Package sentry reports errors and recovered panics to a Sentry-compatible
// backend (Better Stack Errors).
package sentry

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/snospb/vk-sno-bot/internal/ctxutil"
)

// Config holds Sentry configuration.
type Config struct {
	// Token is the Better Stack Errors application token.
	Token string

	// Host is the ingesting host (e.g., "errors.betterstack.com").
	Host string

	Environment string
	Release     string

	// SampleRate controls error sampling (0.0-1.0, zero means 1.0).
	SampleRate float64

	Debug bool

	// Secrets are scrubbed from event messages and exception values.
	Secrets []string
}

// Initialize sets up the Sentry SDK. An empty Token disables reporting.
// The DSN is built as https://TOKEN@HOST/1.
func Initialize(cfg Config) error {
	if cfg.Token == "" {
		return nil
	}
	if cfg.Host == "" {
		return fmt.Errorf("sentry host is required when token is provided")
	}

	// The project ID is required by the SDK but ignored by Better Stack.
	dsn := fmt.Sprintf("https://%s@%s/1", cfg.Token, cfg.Host)

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}

	secrets := make([]string, 0, len(cfg.Secrets))
	for _, s := range cfg.Secrets {
		if s != "" {
			secrets = append(secrets, s)
		}
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		SampleRate:       sampleRate,
		Debug:            cfg.Debug,
		AttachStacktrace: true,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return scrub(event, secrets)
		},
	})
}

// scrub replaces secrets (VK access token and similar) in event text.
func scrub(event *sentry.Event, secrets []string) *sentry.Event {
	if event == nil || len(secrets) == 0 {
		return event
	}
	replace := func(s string) string {
		for _, secret := range secrets {
			s = strings.ReplaceAll(s, secret, "[redacted]")
		}
		return s
	}
	event.Message = replace(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = replace(event.Exception[i].Value)
	}
	return event
}

// Flush waits for buffered events. Returns true if all were sent in time.
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// IsEnabled returns true if Sentry is initialized and active.
func IsEnabled() bool {
	return sentry.CurrentHub().Client() != nil
}

// CaptureException captures an error.
func CaptureException(err error) {
	sentry.CaptureException(err)
}

// CaptureExceptionWithContext captures an error tagged with the VK user,
// peer, and request IDs carried by ctx.
func CaptureExceptionWithContext(ctx context.Context, err error) {
	hub := scopedHub(ctx)
	hub.CaptureException(err)
}

// RecoverWithContext reports a recovered panic value.
func RecoverWithContext(ctx context.Context, recovered any) {
	hub := scopedHub(ctx)
	hub.RecoverWithContext(ctx, recovered)
}

// CaptureMessage captures a message.
func CaptureMessage(message string) {
	sentry.CaptureMessage(message)
}

// scopedHub clones the request or global hub and tags it with tracing IDs.
func scopedHub(ctx context.Context) *sentry.Hub {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub = hub.Clone()
	scope := hub.Scope()
	if id := ctxutil.GetUserID(ctx); id != 0 {
		scope.SetTag("user_id", strconv.FormatInt(id, 10))
	}
	if id := ctxutil.GetPeerID(ctx); id != 0 {
		scope.SetTag("peer_id", strconv.FormatInt(id, 10))
	}
	if id, ok := ctxutil.GetRequestID(ctx); ok {
		scope.SetTag("request_id", id)
	}
	return hub
}
