// Package bot routes incoming community messages to canned replies, the main
// menu, and the AI helper, and tracks which users are in AI helper mode.
package bot

import (
	"context"
	"errors"
	"time"

	"github.com/snospb/vk-sno-bot/internal/catalog"
	"github.com/snospb/vk-sno-bot/internal/ctxutil"
	"github.com/snospb/vk-sno-bot/internal/intent"
	"github.com/snospb/vk-sno-bot/internal/logger"
	"github.com/snospb/vk-sno-bot/internal/media"
	"github.com/snospb/vk-sno-bot/internal/metrics"
	"github.com/snospb/vk-sno-bot/internal/session"
	"github.com/snospb/vk-sno-bot/internal/vk"
)

// Intent sources reported to metrics.
const (
	SourcePayload  = "payload"
	SourceGreeting = "greeting_token"
	SourceText     = "text"
)

// AI mode transition directions reported to metrics.
const (
	transitionEnter = "enter"
	transitionExit  = "exit"
)

// Event is one incoming user message.
type Event struct {
	PeerID  int64
	UserID  int64
	Text    string
	Payload string
	// EventID is the Callback API event_id, used only for log correlation.
	EventID string
}

// Classifier maps free text to an intent.
type Classifier interface {
	Classify(text string) intent.Intent
}

// Responder produces the offline AI helper reply.
type Responder interface {
	Reply(text string) string
}

// Answerer is the AI backend as seen by the controller.
type Answerer interface {
	Enabled() bool
	Ask(ctx context.Context, question string) (string, bool)
}

// ImageResolver finds the picture attached to an intent reply.
type ImageResolver interface {
	Resolve(ctx context.Context, i intent.Intent) (media.Image, bool)
}

// Config holds the controller's collaborators.
type Config struct {
	Catalog    *catalog.Catalog
	Store      session.Store
	Locks      *session.UserLocks
	Classifier Classifier
	Responder  Responder
	AI         Answerer
	Sender     vk.Sender
	// Media is optional; replies go out text-only without it.
	Media   ImageResolver
	Logger  *logger.Logger
	Metrics *metrics.Metrics
	// Timeout bounds the handling of one event, AI call included.
	Timeout time.Duration
}

// Controller decides the reply for every event.
type Controller struct {
	catalog    *catalog.Catalog
	store      session.Store
	locks      *session.UserLocks
	classifier Classifier
	responder  Responder
	ai         Answerer
	sender     vk.Sender
	media      ImageResolver
	logger     *logger.Logger
	metrics    *metrics.Metrics
	timeout    time.Duration
}

// NewController validates cfg and builds a controller.
func NewController(cfg Config) (*Controller, error) {
	var errs []error
	if cfg.Catalog == nil {
		errs = append(errs, errors.New("catalog is required"))
	}
	if cfg.Store == nil {
		errs = append(errs, errors.New("session store is required"))
	}
	if cfg.Sender == nil {
		errs = append(errs, errors.New("sender is required"))
	}
	if cfg.AI == nil {
		errs = append(errs, errors.New("AI adapter is required"))
	}
	if cfg.Logger == nil {
		errs = append(errs, errors.New("logger is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	c := &Controller{
		catalog:    cfg.Catalog,
		store:      cfg.Store,
		locks:      cfg.Locks,
		classifier: cfg.Classifier,
		responder:  cfg.Responder,
		ai:         cfg.AI,
		sender:     cfg.Sender,
		media:      cfg.Media,
		logger:     cfg.Logger.WithModule("bot"),
		metrics:    cfg.Metrics,
		timeout:    cfg.Timeout,
	}
	if c.classifier == nil {
		c.classifier = intent.DefaultClassifier()
	}
	if c.responder == nil {
		c.responder = intent.NewResponder(cfg.Catalog)
	}
	if c.locks == nil {
		c.locks = session.NewUserLocks()
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}
	return c, nil
}

// HandleEvent processes one message. Events of the same user are handled one
// at a time; failures are logged and never surface to the caller.
func (c *Controller) HandleEvent(ctx context.Context, ev Event) {
	ctx = ctxutil.WithUserID(ctx, ev.UserID)
	ctx = ctxutil.WithPeerID(ctx, ev.PeerID)
	if ev.EventID != "" {
		ctx = ctxutil.WithEventID(ctx, ev.EventID)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	unlock := c.locks.Lock(ev.UserID)
	defer unlock()

	log := c.logger.WithField("user_id", ev.UserID).WithField("peer_id", ev.PeerID)

	if ev.Payload != "" {
		raw, err := vk.ParsePayload(ev.Payload)
		switch {
		case err != nil:
			log.WithError(err).WithField("payload", ev.Payload).Warn("Ignoring undecodable payload")
		case raw != "":
			c.dispatchRaw(ctx, raw, ev.PeerID, ev.UserID)
			return
		}
	}

	if ev.Text == "" {
		log.Debug("Event has neither payload nor text")
		return
	}

	if intent.IsGreetingToken(ev.Text) {
		c.recordIntent(intent.Greeting, SourceGreeting)
		c.DispatchIntent(ctx, intent.Greeting, ev.PeerID, ev.UserID)
		return
	}

	if !intent.IsCommand(ev.Text) {
		inAI, err := c.store.InAIMode(ctx, ev.UserID)
		if err != nil {
			log.WithError(err).Warn("Failed to read AI mode, treating user as normal")
		}
		if inAI {
			c.handleAIMessage(ctx, ev.PeerID, ev.Text)
			return
		}
	}

	i := c.classifier.Classify(ev.Text)
	log.WithField("intent", i).Debug("Classified text")
	c.recordIntent(i, SourceText)
	c.DispatchIntent(ctx, i, ev.PeerID, ev.UserID)
}

// dispatchRaw dispatches a payload intent. Names outside the closed set get
// the default reply without touching AI mode.
func (c *Controller) dispatchRaw(ctx context.Context, raw string, peerID, userID int64) {
	i, ok := intent.Parse(raw)
	if ok {
		c.recordIntent(i, SourcePayload)
		c.DispatchIntent(ctx, i, peerID, userID)
		return
	}

	c.logger.WithField("intent", raw).WithField("user_id", userID).Warn("Unknown payload intent")
	if c.metrics != nil {
		c.metrics.RecordUnknownIntent(SourcePayload)
	}
	c.send(ctx, vk.Reply{
		PeerID:   peerID,
		Text:     c.catalog.Template(intent.Default),
		Keyboard: vk.MainMenu(),
		Photo:    c.photo(ctx, intent.Default),
	})
}

// DispatchIntent applies the AI mode transition for i and sends its reply.
func (c *Controller) DispatchIntent(ctx context.Context, i intent.Intent, peerID, userID int64) {
	if !i.Valid() {
		i = intent.Default
	}

	keyboard := vk.MainMenu()
	switch i {
	case intent.AIHelper:
		if err := c.store.Enter(ctx, userID); err != nil {
			c.logger.WithError(err).WithField("user_id", userID).Error("Failed to enter AI mode")
		} else {
			c.recordTransition(transitionEnter)
		}
		keyboard = c.backToMenu()
	case intent.Greeting:
		if err := c.store.Exit(ctx, userID); err != nil {
			c.logger.WithError(err).WithField("user_id", userID).Error("Failed to exit AI mode")
		} else {
			c.recordTransition(transitionExit)
		}
	}

	c.send(ctx, vk.Reply{
		PeerID:   peerID,
		Text:     c.catalog.Template(i),
		Keyboard: keyboard,
		Photo:    c.photo(ctx, i),
	})
}

func (c *Controller) backToMenu() *vk.Keyboard {
	return vk.BackToMenu(c.catalog.System(catalog.SystemBackToMenu))
}

func (c *Controller) photo(ctx context.Context, i intent.Intent) *vk.Photo {
	if c.media == nil {
		return nil
	}
	img, ok := c.media.Resolve(ctx, i)
	if !ok {
		return nil
	}
	return &vk.Photo{Key: img.Name, Path: img.Path, URL: img.URL}
}

// send delivers r once. A failed send is logged and dropped.
func (c *Controller) send(ctx context.Context, r vk.Reply) bool {
	if err := c.sender.Send(ctx, r); err != nil {
		c.logger.WithError(err).WithField("peer_id", r.PeerID).Error("Failed to send reply")
		return false
	}
	return true
}

func (c *Controller) recordIntent(i intent.Intent, source string) {
	if c.metrics != nil {
		c.metrics.RecordIntent(i.String(), source)
	}
}

func (c *Controller) recordTransition(direction string) {
	if c.metrics != nil {
		c.metrics.RecordAIModeTransition(direction)
	}
}
