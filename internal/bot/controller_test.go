package bot

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snospb/vk-sno-bot/internal/catalog"
	"github.com/snospb/vk-sno-bot/internal/intent"
	"github.com/snospb/vk-sno-bot/internal/logger"
	"github.com/snospb/vk-sno-bot/internal/media"
	"github.com/snospb/vk-sno-bot/internal/metrics"
	"github.com/snospb/vk-sno-bot/internal/session"
	"github.com/snospb/vk-sno-bot/internal/vk"
)

const (
	testPeer = 2000000001
	testUser = 42
)

type fakeSender struct {
	mu      sync.Mutex
	replies []vk.Reply
	err     error
}

func (s *fakeSender) Send(_ context.Context, r vk.Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, r)
	return s.err
}

func (s *fakeSender) all() []vk.Reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]vk.Reply(nil), s.replies...)
}

func (s *fakeSender) reset() {
	s.mu.Lock()
	s.replies = nil
	s.mu.Unlock()
}

type fakeAI struct {
	enabled bool
	answer  string
	ok      bool
	panics  bool
	delay   time.Duration
	gate    chan struct{}

	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (a *fakeAI) Enabled() bool { return a.enabled }

func (a *fakeAI) Ask(context.Context, string) (string, bool) {
	a.calls.Add(1)
	n := a.inFlight.Add(1)
	defer a.inFlight.Add(-1)
	for {
		seen := a.maxSeen.Load()
		if n <= seen || a.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	if a.gate != nil {
		<-a.gate
	}
	if a.panics {
		panic("provider exploded")
	}
	return a.answer, a.ok
}

type spyClassifier struct {
	calls atomic.Int32
}

func (c *spyClassifier) Classify(text string) intent.Intent {
	c.calls.Add(1)
	return intent.DefaultClassifier().Classify(text)
}

type panicResponder struct{}

func (panicResponder) Reply(string) string { panic("responder exploded") }

type fakeResolver map[intent.Intent]media.Image

func (f fakeResolver) Resolve(_ context.Context, i intent.Intent) (media.Image, bool) {
	img, ok := f[i]
	return img, ok
}

type brokenStore struct {
	session.Store
}

func (brokenStore) InAIMode(context.Context, int64) (bool, error) {
	return false, errors.New("redis: connection refused")
}

type harness struct {
	ctrl       *Controller
	cat        *catalog.Catalog
	store      *session.MemoryStore
	sender     *fakeSender
	ai         *fakeAI
	classifier *spyClassifier
	metrics    *metrics.Metrics
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()

	h := &harness{
		cat:        catalog.MustBuiltin(),
		store:      session.NewMemoryStore(),
		sender:     &fakeSender{},
		ai:         &fakeAI{enabled: true, answer: "СНО объединяет студентов-исследователей.", ok: true},
		classifier: &spyClassifier{},
		metrics:    metrics.New(prometheus.NewRegistry()),
	}
	cfg := Config{
		Catalog:    h.cat,
		Store:      h.store,
		Classifier: h.classifier,
		AI:         h.ai,
		Sender:     h.sender,
		Logger:     logger.NewWithWriter("debug", io.Discard),
		Metrics:    h.metrics,
		Timeout:    5 * time.Second,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	ctrl, err := NewController(cfg)
	require.NoError(t, err)
	h.ctrl = ctrl
	return h
}

func (h *harness) text(text string) {
	h.ctrl.HandleEvent(context.Background(), Event{PeerID: testPeer, UserID: testUser, Text: text})
}

func (h *harness) button(i intent.Intent, label string) {
	h.ctrl.HandleEvent(context.Background(), Event{
		PeerID:  testPeer,
		UserID:  testUser,
		Text:    label,
		Payload: vk.EncodePayload(i),
	})
}

func (h *harness) inAI(t *testing.T) bool {
	t.Helper()
	in, err := h.store.InAIMode(context.Background(), testUser)
	require.NoError(t, err)
	return in
}

func (h *harness) backToMenu() *vk.Keyboard {
	return vk.BackToMenu(h.cat.System(catalog.SystemBackToMenu))
}

func TestNewController_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewController(Config{})
	require.Error(t, err)
	for _, want := range []string{"catalog", "session store", "sender", "AI adapter", "logger"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestHandleEvent_GreetingForNewUser(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.text("Привет")

	replies := h.sender.all()
	require.Len(t, replies, 1)
	assert.Equal(t, int64(testPeer), replies[0].PeerID)
	assert.Equal(t, h.cat.Template(intent.Greeting), replies[0].Text)
	assert.Equal(t, vk.MainMenu(), replies[0].Keyboard)
	assert.False(t, h.inAI(t))
	assert.Zero(t, h.classifier.calls.Load(), "greeting tokens skip classification")
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.IntentsTotal.WithLabelValues("greeting", SourceGreeting)), 0)
}

func TestHandleEvent_EnterAIModeAndAsk(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.button(intent.AIHelper, "🧠 Умный помощник")

	replies := h.sender.all()
	require.Len(t, replies, 1)
	assert.Equal(t, h.cat.Template(intent.AIHelper), replies[0].Text)
	assert.Equal(t, h.backToMenu(), replies[0].Keyboard)
	assert.True(t, h.inAI(t))

	h.sender.reset()
	h.text("что такое СНО")

	replies = h.sender.all()
	require.Len(t, replies, 2)
	assert.Equal(t, h.cat.System(catalog.SystemAIProcessing), replies[0].Text)
	assert.Nil(t, replies[0].Keyboard)
	assert.Equal(t, AIMarker+"СНО объединяет студентов-исследователей.", replies[1].Text)
	assert.Equal(t, h.backToMenu(), replies[1].Keyboard)
	assert.True(t, h.inAI(t))
	assert.Zero(t, h.classifier.calls.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.AIModeTransitionsTotal.WithLabelValues(transitionEnter)), 0)
}

func TestHandleEvent_GreetingLeavesAIMode(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	require.NoError(t, h.store.Enter(context.Background(), testUser))

	h.text("  ПРИВЕТ ")

	replies := h.sender.all()
	require.Len(t, replies, 1)
	assert.Equal(t, h.cat.Template(intent.Greeting), replies[0].Text)
	assert.Equal(t, vk.MainMenu(), replies[0].Keyboard)
	assert.False(t, h.inAI(t))
	assert.Zero(t, h.ai.calls.Load())
}

func TestHandleEvent_BackToMenuButton(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	require.NoError(t, h.store.Enter(context.Background(), testUser))

	h.button(intent.Greeting, h.cat.System(catalog.SystemBackToMenu))

	assert.False(t, h.inAI(t))
	assert.Zero(t, h.ai.calls.Load())
}

func TestHandleEvent_GreetingIsIdempotent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.text("hello")
	h.text("hello")

	replies := h.sender.all()
	require.Len(t, replies, 2)
	assert.Equal(t, replies[0], replies[1])
	assert.False(t, h.inAI(t))
}

func TestHandleEvent_AIUnavailableFallsBack(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.ai.answer, h.ai.ok = "", false
	require.NoError(t, h.store.Enter(context.Background(), testUser))

	const question = "хочу вступить в кружок"
	h.text(question)

	replies := h.sender.all()
	require.Len(t, replies, 2)
	assert.Equal(t, h.cat.System(catalog.SystemAIProcessing), replies[0].Text)
	want := AIMarker + intent.NewResponder(h.cat).Reply(question)
	assert.Equal(t, want, replies[1].Text)
	assert.Equal(t, h.cat.Fallback(intent.FallbackCircles), replies[1].Text[len(AIMarker):])
	assert.Equal(t, h.backToMenu(), replies[1].Keyboard)
	assert.True(t, h.inAI(t), "fallback keeps the user in AI mode")
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.AIFallbacksTotal.WithLabelValues(fallbackUnavailable)), 0)
}

func TestHandleEvent_AIDisabled(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.ai.enabled = false
	require.NoError(t, h.store.Enter(context.Background(), testUser))

	h.text("когда ближайшая конференция")

	replies := h.sender.all()
	require.Len(t, replies, 1, "no processing notice when AI is disabled")
	assert.Equal(t, h.cat.System(catalog.SystemAIUnavailable), replies[0].Text)
	assert.Equal(t, h.backToMenu(), replies[0].Keyboard)
	assert.True(t, h.inAI(t))
	assert.Zero(t, h.ai.calls.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.AIFallbacksTotal.WithLabelValues(fallbackDisabled)), 0)
}

func TestHandleEvent_AIPanicStillReplies(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.ai.panics = true
	require.NoError(t, h.store.Enter(context.Background(), testUser))

	h.text("расскажи про мероприятие")

	replies := h.sender.all()
	require.Len(t, replies, 2)
	assert.Equal(t, AIMarker+h.cat.Fallback(intent.FallbackEvents), replies[1].Text)
	assert.True(t, h.inAI(t))
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.AIFallbacksTotal.WithLabelValues(fallbackPanic)), 0)
}

func TestHandleEvent_ResponderPanicUsesGeneralReply(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(c *Config) { c.Responder = panicResponder{} })
	h.ai.ok = false
	require.NoError(t, h.store.Enter(context.Background(), testUser))

	h.text("любой вопрос")

	replies := h.sender.all()
	require.Len(t, replies, 2)
	assert.Equal(t, AIMarker+h.cat.Fallback(intent.FallbackGeneral), replies[1].Text)
}

func TestHandleEvent_PayloadWinsOverText(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	require.NoError(t, h.store.Enter(context.Background(), testUser))

	h.button(intent.Events, "привет")

	replies := h.sender.all()
	require.Len(t, replies, 1)
	assert.Equal(t, h.cat.Template(intent.Events), replies[0].Text)
	assert.Equal(t, vk.MainMenu(), replies[0].Keyboard)
	assert.Zero(t, h.classifier.calls.Load())
	assert.Zero(t, h.ai.calls.Load())
	assert.True(t, h.inAI(t), "only greeting leaves AI mode")
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.IntentsTotal.WithLabelValues("events", SourcePayload)), 0)
}

func TestHandleEvent_Payloads(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		payload   string
		text      string
		want      intent.Intent
		classify  bool
		unknown   bool
		startInAI bool
		wantInAI  bool
	}{
		{name: "legacy alias", payload: `{"intent":"мероприятия"}`, want: intent.Events},
		{name: "legacy greeting alias exits", payload: `{"intent":"приветствие"}`, want: intent.Greeting, startInAI: true},
		{name: "start command is not an intent", payload: `{"command":"start"}`, text: "Начать", want: intent.Greeting, classify: true},
		{name: "malformed payload falls through", payload: `{intent`, text: "контакты", want: intent.Contacts, classify: true},
		{name: "unknown intent gets default without exit", payload: `{"intent":"weather"}`, text: "погода", want: intent.Greeting, unknown: true, startInAI: true, wantInAI: true},
		{name: "blank intent is ignored", payload: `{"intent":"  "}`, text: "faq", want: intent.FAQ, classify: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			if tt.startInAI {
				require.NoError(t, h.store.Enter(context.Background(), testUser))
			}

			h.ctrl.HandleEvent(context.Background(), Event{PeerID: testPeer, UserID: testUser, Text: tt.text, Payload: tt.payload})

			replies := h.sender.all()
			require.Len(t, replies, 1)
			assert.Equal(t, h.cat.Template(tt.want), replies[0].Text)
			assert.Equal(t, vk.MainMenu(), replies[0].Keyboard)
			assert.Equal(t, tt.classify, h.classifier.calls.Load() > 0)
			assert.Equal(t, tt.wantInAI, h.inAI(t))
			unknown := testutil.ToFloat64(h.metrics.IntentUnknownTotal.WithLabelValues(SourcePayload))
			assert.Equal(t, tt.unknown, unknown == 1)
		})
	}
}

func TestHandleEvent_CommandBypassesAIMode(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	require.NoError(t, h.store.Enter(context.Background(), testUser))

	h.text("/start")

	replies := h.sender.all()
	require.Len(t, replies, 1)
	assert.Equal(t, h.cat.Template(intent.Greeting), replies[0].Text)
	assert.Zero(t, h.ai.calls.Load())
	assert.Equal(t, int32(1), h.classifier.calls.Load())
	assert.False(t, h.inAI(t))
}

func TestHandleEvent_ClassifiesText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want intent.Intent
	}{
		{"Какое ближайшее мероприятие?", intent.Events},
		{"Хочу в кружок", intent.Circles},
		{"как с вами связаться", intent.Contacts},
		{"у меня вопрос", intent.FAQ},
		{"абракадабра", intent.Greeting},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)

			h.text(tt.text)

			replies := h.sender.all()
			require.Len(t, replies, 1)
			assert.Equal(t, h.cat.Template(tt.want), replies[0].Text)
			assert.False(t, h.inAI(t))
		})
	}
}

func TestHandleEvent_EmptyEventIsIgnored(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.text("")
	h.ctrl.HandleEvent(context.Background(), Event{PeerID: testPeer, UserID: testUser, Payload: `{"command":"start"}`})

	assert.Empty(t, h.sender.all())
}

func TestHandleEvent_WhitespaceTextIsStillText(t *testing.T) {
	t.Parallel()

	t.Run("normal user gets the default menu", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)

		h.text("   ")

		replies := h.sender.all()
		require.Len(t, replies, 1)
		assert.Equal(t, h.cat.Template(intent.Default), replies[0].Text)
		assert.Equal(t, vk.MainMenu(), replies[0].Keyboard)
		assert.Equal(t, int32(1), h.classifier.calls.Load())
	})

	t.Run("AI mode user goes to the AI path", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		require.NoError(t, h.store.Enter(context.Background(), testUser))

		h.text(" \t ")

		assert.Equal(t, int32(1), h.ai.calls.Load())
		assert.Zero(t, h.classifier.calls.Load())
		assert.True(t, h.inAI(t))
	})
}

func TestHandleEvent_SendFailureIsNotRetried(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.sender.err = errors.New("vk api error 901: can't send messages")

	h.button(intent.AIHelper, "")
	require.Len(t, h.sender.all(), 1)
	assert.True(t, h.inAI(t), "state changes even when the reply is lost")

	h.text("вопрос про науку")
	assert.Len(t, h.sender.all(), 3, "processing notice and answer are each sent once")
}

func TestHandleEvent_StoreErrorTreatsUserAsNormal(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(c *Config) { c.Store = brokenStore{Store: session.NewMemoryStore()} })

	h.text("ближайшее мероприятие")

	replies := h.sender.all()
	require.Len(t, replies, 1)
	assert.Equal(t, h.cat.Template(intent.Events), replies[0].Text)
	assert.Zero(t, h.ai.calls.Load())
}

func TestDispatchIntent_AttachesImage(t *testing.T) {
	t.Parallel()
	resolver := fakeResolver{
		intent.Events: {Name: "events.jpg", Path: "/srv/images/events.jpg"},
		intent.FAQ:    {Name: "faq.jpg", URL: "https://storage.yandexcloud.net/sno/images/faq.jpg"},
	}
	h := newHarness(t, func(c *Config) { c.Media = resolver })

	h.ctrl.DispatchIntent(context.Background(), intent.Events, testPeer, testUser)
	h.ctrl.DispatchIntent(context.Background(), intent.FAQ, testPeer, testUser)
	h.ctrl.DispatchIntent(context.Background(), intent.Contacts, testPeer, testUser)

	replies := h.sender.all()
	require.Len(t, replies, 3)
	assert.Equal(t, &vk.Photo{Key: "events.jpg", Path: "/srv/images/events.jpg"}, replies[0].Photo)
	assert.Equal(t, &vk.Photo{Key: "faq.jpg", URL: "https://storage.yandexcloud.net/sno/images/faq.jpg"}, replies[1].Photo)
	assert.Nil(t, replies[2].Photo)
}

func TestDispatchIntent_InvalidIntentUsesDefault(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.ctrl.DispatchIntent(context.Background(), intent.Intent("schedule"), testPeer, testUser)

	replies := h.sender.all()
	require.Len(t, replies, 1)
	assert.Equal(t, h.cat.Template(intent.Greeting), replies[0].Text)
}

func TestHandleEvent_SameUserIsSerialized(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.ai.delay = 10 * time.Millisecond
	require.NoError(t, h.store.Enter(context.Background(), testUser))

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() { h.text("вопрос") })
	}
	wg.Wait()

	assert.Equal(t, int32(8), h.ai.calls.Load())
	assert.Equal(t, int32(1), h.ai.maxSeen.Load())
	assert.Len(t, h.sender.all(), 16)
}

func TestHandleEvent_UsersAreIndependent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.ctrl.HandleEvent(context.Background(), Event{PeerID: 1, UserID: 1, Payload: vk.EncodePayload(intent.AIHelper)})
	h.ctrl.HandleEvent(context.Background(), Event{PeerID: 2, UserID: 2, Text: "вопрос"})

	replies := h.sender.all()
	require.Len(t, replies, 2)
	assert.Equal(t, h.cat.Template(intent.FAQ), replies[1].Text)
	assert.Equal(t, int64(2), replies[1].PeerID)
	assert.Zero(t, h.ai.calls.Load())
}

func TestHandleEvent_SlowAIDoesNotBlockOtherUsers(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.ai.gate = make(chan struct{})
	require.NoError(t, h.store.Enter(context.Background(), 1))

	var wg sync.WaitGroup
	wg.Go(func() {
		h.ctrl.HandleEvent(context.Background(), Event{PeerID: 1, UserID: 1, Text: "как написать статью"})
	})
	require.Eventually(t, func() bool { return h.ai.inFlight.Load() == 1 }, time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		for id := int64(2); id < 200; id++ {
			h.ctrl.HandleEvent(context.Background(), Event{PeerID: id, UserID: id, Text: "вопрос"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("other users blocked while user 1 waits on the AI backend")
	}

	close(h.ai.gate)
	wg.Wait()
	assert.Equal(t, int32(1), h.ai.calls.Load())
}
