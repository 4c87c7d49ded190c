package bot

import (
	"context"
	"fmt"

	"github.com/snospb/vk-sno-bot/internal/catalog"
	"github.com/snospb/vk-sno-bot/internal/intent"
	"github.com/snospb/vk-sno-bot/internal/sentry"
	"github.com/snospb/vk-sno-bot/internal/vk"
)

// AIMarker prefixes every AI helper answer, including offline fallbacks.
const AIMarker = "🧠 "

// AI fallback reasons reported to metrics.
const (
	fallbackDisabled    = "disabled"
	fallbackUnavailable = "unavailable"
	fallbackPanic       = "panic"
)

// handleAIMessage answers text for a user in AI mode. The user stays in AI
// mode whatever happens here.
func (c *Controller) handleAIMessage(ctx context.Context, peerID int64, text string) {
	back := c.backToMenu()

	if !c.ai.Enabled() {
		c.recordFallback(fallbackDisabled)
		c.send(ctx, vk.Reply{PeerID: peerID, Text: c.catalog.System(catalog.SystemAIUnavailable), Keyboard: back})
		return
	}

	c.send(ctx, vk.Reply{PeerID: peerID, Text: c.catalog.System(catalog.SystemAIProcessing)})

	answer, reason := c.ask(ctx, text)
	if reason != "" {
		c.recordFallback(reason)
		answer = c.fallback(ctx, text)
	}
	c.send(ctx, vk.Reply{PeerID: peerID, Text: AIMarker + answer, Keyboard: back})
}

// ask returns the AI answer, or a non-empty fallback reason.
func (c *Controller) ask(ctx context.Context, text string) (answer, reason string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithField("panic", fmt.Sprint(r)).Error("Recovered panic in AI helper")
			sentry.RecoverWithContext(ctx, r)
			answer, reason = "", fallbackPanic
		}
	}()

	answer, ok := c.ai.Ask(ctx, text)
	if !ok {
		return "", fallbackUnavailable
	}
	return answer, ""
}

// fallback returns the offline reply. A panicking responder still yields the
// generic catalog text.
func (c *Controller) fallback(ctx context.Context, text string) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithField("panic", fmt.Sprint(r)).Error("Recovered panic in fallback responder")
			sentry.RecoverWithContext(ctx, r)
			reply = c.catalog.Fallback(intent.FallbackGeneral)
		}
	}()
	return c.responder.Reply(text)
}

func (c *Controller) recordFallback(reason string) {
	if c.metrics != nil {
		c.metrics.RecordAIFallback(reason)
	}
}
