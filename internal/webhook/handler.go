// Package webhook receives VK Callback API requests, acknowledges them right
// away, and hands message events to the bot controller in the background.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/snospb/vk-sno-bot/internal/bot"
	"github.com/snospb/vk-sno-bot/internal/ctxutil"
	"github.com/snospb/vk-sno-bot/internal/logger"
	"github.com/snospb/vk-sno-bot/internal/metrics"
	"github.com/snospb/vk-sno-bot/internal/ratelimit"
	"github.com/snospb/vk-sno-bot/internal/sentry"
	"github.com/snospb/vk-sno-bot/internal/vk"
)

// MaxBodyBytes caps a callback request body.
const MaxBodyBytes = 1 << 20

// ackBody is the reply VK expects for every event except confirmation.
const ackBody = "ok"

// Outcome labels for vkbot_webhook_requests_total.
const (
	statusConfirmed   = "confirmed"
	statusAccepted    = "accepted"
	statusIgnored     = "ignored"
	statusForbidden   = "forbidden"
	statusInvalid     = "invalid"
	statusRateLimited = "rate_limited"
	statusSuccess     = "success"
	statusPanic       = "panic"
)

// Processor handles one decoded message.
type Processor interface {
	HandleEvent(ctx context.Context, ev bot.Event)
}

// Config configures a Handler.
type Config struct {
	// ConfirmationToken is returned verbatim for confirmation requests.
	ConfirmationToken string
	// Secret is compared with the envelope secret; empty disables the check.
	Secret string
	// GroupID must match the envelope group_id; 0 disables the check.
	GroupID   int64
	Processor Processor
	// Limiter throttles events per VK user; nil disables limiting.
	Limiter *ratelimit.KeyedLimiter
	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// Handler serves the Callback API endpoint.
type Handler struct {
	confirmation string
	secret       []byte
	groupID      int64
	processor    Processor
	limiter      *ratelimit.KeyedLimiter
	logger       *logger.Logger
	metrics      *metrics.Metrics
	wg           sync.WaitGroup
}

// NewHandler creates a callback handler.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Processor == nil {
		return nil, errors.New("webhook: processor is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("webhook: logger is required")
	}
	return &Handler{
		confirmation: cfg.ConfirmationToken,
		secret:       []byte(cfg.Secret),
		groupID:      cfg.GroupID,
		processor:    cfg.Processor,
		limiter:      cfg.Limiter,
		logger:       cfg.Logger.WithModule("webhook"),
		metrics:      cfg.Metrics,
	}, nil
}

// Handle is the Gin handler for the callback endpoint.
func (h *Handler) Handle(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes))
	if err != nil {
		h.logger.WithError(err).Warn("Failed to read callback body")
		h.record("unknown", statusInvalid)
		c.String(http.StatusBadRequest, "bad request")
		return
	}

	var ev vk.CallbackEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		h.logger.WithError(err).Warn("Malformed callback body")
		h.record("unknown", statusInvalid)
		c.String(http.StatusBadRequest, "bad request")
		return
	}

	log := h.logger.WithField("event_type", ev.Type)
	if ev.EventID != "" {
		log = log.WithField("event_id", ev.EventID)
	}

	if !h.authorized(ev) {
		log.WithField("group_id", ev.GroupID).Warn("Rejected callback with wrong secret or group")
		h.record(ev.Type, statusForbidden)
		c.String(http.StatusForbidden, "forbidden")
		return
	}

	switch ev.Type {
	case vk.EventConfirmation:
		log.Info("Confirmation requested")
		h.record(ev.Type, statusConfirmed)
		c.String(http.StatusOK, h.confirmation)
	case vk.EventMessageNew:
		h.handleMessageNew(c, ev, log)
	default:
		log.Debug("Ignoring callback event")
		h.record(ev.Type, statusIgnored)
		c.String(http.StatusOK, ackBody)
	}
}

func (h *Handler) authorized(ev vk.CallbackEvent) bool {
	if len(h.secret) > 0 && subtle.ConstantTimeCompare(h.secret, []byte(ev.Secret)) != 1 {
		return false
	}
	if h.groupID != 0 && ev.GroupID != h.groupID {
		return false
	}
	return true
}

func (h *Handler) handleMessageNew(c *gin.Context, ev vk.CallbackEvent, log *logger.Logger) {
	msg, err := ev.DecodeMessageNew()
	if err != nil {
		log.WithError(err).Warn("Malformed message_new object")
		h.record(ev.Type, statusInvalid)
		c.String(http.StatusBadRequest, "bad request")
		return
	}

	// VK retries unless it gets "ok" quickly, so every accepted message is
	// acknowledged before processing starts.
	c.String(http.StatusOK, ackBody)

	if msg.FromID < 0 {
		log.WithField("from_id", msg.FromID).Debug("Ignoring message sent by a community")
		h.record(ev.Type, statusIgnored)
		return
	}
	if h.limiter != nil && !h.limiter.Allow(msg.FromID) {
		log.WithField("user_id", msg.FromID).Warn("User rate limit exceeded; dropping message")
		h.record(ev.Type, statusRateLimited)
		return
	}
	h.record(ev.Type, statusAccepted)

	ctx := ctxutil.PreserveTracing(c.Request.Context())
	if ev.EventID != "" {
		ctx = ctxutil.WithEventID(ctx, ev.EventID)
	}
	event := bot.Event{
		PeerID:  msg.PeerID,
		UserID:  msg.FromID,
		Text:    msg.Text,
		Payload: msg.Payload,
		EventID: ev.EventID,
	}

	h.wg.Go(func() {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				log.WithField("panic", fmt.Sprint(r)).Error("Panic in callback event processing")
				sentry.RecoverWithContext(ctx, r)
				h.record(ev.Type, statusPanic)
			}
		}()

		h.processor.HandleEvent(ctx, event)

		elapsed := time.Since(start)
		if h.metrics != nil {
			h.metrics.RecordEventDuration(ev.Type, elapsed.Seconds())
		}
		h.record(ev.Type, statusSuccess)
		log.WithField("user_id", msg.FromID).
			WithField("duration_ms", elapsed.Milliseconds()).
			Info("Event processed")
	})
}

func (h *Handler) record(eventType, status string) {
	if h.metrics == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	h.metrics.RecordWebhook(eventType, status)
}

// Shutdown waits for all async event processing to complete.
// It returns an error if the context is canceled before completion.
func (h *Handler) Shutdown(ctx context.Context) error {
	c := make(chan struct{})
	go func() {
		defer close(c)
		h.wg.Wait()
	}()

	select {
	case <-c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
