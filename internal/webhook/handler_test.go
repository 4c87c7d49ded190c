package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snospb/vk-sno-bot/internal/bot"
	"github.com/snospb/vk-sno-bot/internal/ctxutil"
	"github.com/snospb/vk-sno-bot/internal/logger"
	"github.com/snospb/vk-sno-bot/internal/metrics"
	"github.com/snospb/vk-sno-bot/internal/ratelimit"
)

const (
	testSecret       = "s3cr3t"
	testGroupID      = 229000001
	testConfirmation = "a1b2c3d4"
)

type recordingProcessor struct {
	mu     sync.Mutex
	events []bot.Event
	ctxs   []context.Context
	block  chan struct{}
	panics bool
}

func (p *recordingProcessor) HandleEvent(ctx context.Context, ev bot.Event) {
	if p.block != nil {
		<-p.block
	}
	if p.panics {
		panic("controller exploded")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	p.ctxs = append(p.ctxs, ctx)
}

func (p *recordingProcessor) all() []bot.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bot.Event(nil), p.events...)
}

func setupHandler(t *testing.T, mutate ...func(*Config)) (*Handler, *recordingProcessor, *metrics.Metrics, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	proc := &recordingProcessor{}
	m := metrics.New(prometheus.NewRegistry())
	cfg := Config{
		ConfirmationToken: testConfirmation,
		Secret:            testSecret,
		GroupID:           testGroupID,
		Processor:         proc,
		Logger:            logger.NewWithWriter("debug", io.Discard),
		Metrics:           m,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	h, err := NewHandler(cfg)
	require.NoError(t, err)

	router := gin.New()
	router.POST("/callback", h.Handle)
	return h, proc, m, router
}

func post(router http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func messageNew(fromID int64, text, payload string) string {
	obj := `{"message":{"id":1,"date":1700000000,"peer_id":` + itoa(fromID) + `,"from_id":` + itoa(fromID) + `,"text":` + quote(text)
	if payload != "" {
		obj += `,"payload":` + quote(payload)
	}
	obj += `}}`
	return `{"type":"message_new","group_id":229000001,"event_id":"evt-1","secret":"s3cr3t","v":"5.199","object":` + obj + `}`
}

func shutdown(t *testing.T, h *Handler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))
}

func TestNewHandler_RequiresProcessorAndLogger(t *testing.T) {
	t.Parallel()

	_, err := NewHandler(Config{Logger: logger.NewWithWriter("info", io.Discard)})
	require.Error(t, err)
	_, err = NewHandler(Config{Processor: &recordingProcessor{}})
	require.Error(t, err)
}

func TestHandle_Confirmation(t *testing.T) {
	t.Parallel()
	_, _, m, router := setupHandler(t)

	w := post(router, `{"type":"confirmation","group_id":229000001,"secret":"s3cr3t"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testConfirmation, w.Body.String())
	assert.InDelta(t, 1, testutil.ToFloat64(m.WebhookRequestsTotal.WithLabelValues("confirmation", statusConfirmed)), 0)
}

func TestHandle_Authorization(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"wrong secret", `{"type":"confirmation","group_id":229000001,"secret":"nope"}`, http.StatusForbidden},
		{"missing secret", `{"type":"confirmation","group_id":229000001}`, http.StatusForbidden},
		{"wrong group", `{"type":"confirmation","group_id":1,"secret":"s3cr3t"}`, http.StatusForbidden},
		{"valid", `{"type":"confirmation","group_id":229000001,"secret":"s3cr3t"}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, proc, _, router := setupHandler(t)

			w := post(router, tt.body)
			assert.Equal(t, tt.want, w.Code)
			assert.Empty(t, proc.all())
		})
	}
}

func TestHandle_ChecksDisabledWhenUnconfigured(t *testing.T) {
	t.Parallel()
	_, _, _, router := setupHandler(t, func(c *Config) {
		c.Secret = ""
		c.GroupID = 0
	})

	w := post(router, `{"type":"confirmation","group_id":5}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testConfirmation, w.Body.String())
}

func TestHandle_MalformedBody(t *testing.T) {
	t.Parallel()
	_, proc, m, router := setupHandler(t)

	w := post(router, `{"type":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(router, `{"type":"message_new","group_id":229000001,"secret":"s3cr3t","object":"oops"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Empty(t, proc.all())
	assert.InDelta(t, 1, testutil.ToFloat64(m.WebhookRequestsTotal.WithLabelValues("unknown", statusInvalid)), 0)
}

func TestHandle_BodyTooLarge(t *testing.T) {
	t.Parallel()
	_, _, _, router := setupHandler(t)

	w := post(router, `{"type":"message_new","pad":"`+strings.Repeat("x", MaxBodyBytes)+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandle_MessageNew(t *testing.T) {
	t.Parallel()
	h, proc, m, router := setupHandler(t)

	w := post(router, messageNew(42, "Привет", `{"intent":"events"}`))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ackBody, w.Body.String())

	shutdown(t, h)

	events := proc.all()
	require.Len(t, events, 1)
	assert.Equal(t, bot.Event{
		PeerID:  42,
		UserID:  42,
		Text:    "Привет",
		Payload: `{"intent":"events"}`,
		EventID: "evt-1",
	}, events[0])
	assert.Equal(t, "evt-1", ctxutil.GetEventID(proc.ctxs[0]))
	assert.InDelta(t, 1, testutil.ToFloat64(m.WebhookRequestsTotal.WithLabelValues("message_new", statusAccepted)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.WebhookRequestsTotal.WithLabelValues("message_new", statusSuccess)), 0)
}

func TestHandle_AcksBeforeProcessing(t *testing.T) {
	t.Parallel()
	h, proc, _, router := setupHandler(t)
	proc.block = make(chan struct{})

	w := post(router, messageNew(7, "вопрос", ""))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, proc.all())

	close(proc.block)
	shutdown(t, h)
	assert.Len(t, proc.all(), 1)
}

func TestHandle_IgnoresCommunityMessages(t *testing.T) {
	t.Parallel()
	h, proc, _, router := setupHandler(t)

	w := post(router, messageNew(-testGroupID, "рассылка", ""))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ackBody, w.Body.String())

	shutdown(t, h)
	assert.Empty(t, proc.all())
}

func TestHandle_OtherEventTypes(t *testing.T) {
	t.Parallel()
	h, proc, m, router := setupHandler(t)

	w := post(router, `{"type":"message_typing_state","group_id":229000001,"secret":"s3cr3t","object":{}}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ackBody, w.Body.String())

	shutdown(t, h)
	assert.Empty(t, proc.all())
	assert.InDelta(t, 1, testutil.ToFloat64(m.WebhookRequestsTotal.WithLabelValues("message_typing_state", statusIgnored)), 0)
}

func TestHandle_UserRateLimit(t *testing.T) {
	t.Parallel()
	m := metrics.New(prometheus.NewRegistry())
	limiter := ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:       "user",
		Burst:      2,
		RefillRate: 0.001,
		Metrics:    m,
	})
	t.Cleanup(limiter.Stop)

	h, proc, hm, router := setupHandler(t, func(c *Config) { c.Limiter = limiter })

	for range 4 {
		w := post(router, messageNew(42, "спам", ""))
		assert.Equal(t, http.StatusOK, w.Code, "dropped events are still acknowledged")
	}
	post(router, messageNew(43, "вопрос", ""))

	shutdown(t, h)
	assert.Len(t, proc.all(), 3)
	assert.InDelta(t, 2, testutil.ToFloat64(hm.WebhookRequestsTotal.WithLabelValues("message_new", statusRateLimited)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.RateLimiterDropped.WithLabelValues("user")), 0)
}

func TestHandle_RecoversProcessorPanic(t *testing.T) {
	t.Parallel()
	h, proc, m, router := setupHandler(t)
	proc.panics = true

	w := post(router, messageNew(42, "привет", ""))
	assert.Equal(t, http.StatusOK, w.Code)

	shutdown(t, h)
	assert.InDelta(t, 1, testutil.ToFloat64(m.WebhookRequestsTotal.WithLabelValues("message_new", statusPanic)), 0)
}

func TestShutdown_HonorsContext(t *testing.T) {
	t.Parallel()
	h, proc, _, router := setupHandler(t)
	proc.block = make(chan struct{})
	defer close(proc.block)

	post(router, messageNew(42, "вопрос", ""))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.Shutdown(ctx), context.DeadlineExceeded)
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
