package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		level string
		want  slog.Level
	}{
		{name: "trace", level: "trace", want: LevelTrace},
		{name: "debug", level: "debug", want: slog.LevelDebug},
		{name: "info", level: "info", want: slog.LevelInfo},
		{name: "warn alias", level: "warn", want: slog.LevelWarn},
		{name: "warning", level: "WARNING", want: slog.LevelWarn},
		{name: "error", level: "error", want: slog.LevelError},
		{name: "invalid defaults to info", level: "invalid", want: slog.LevelInfo},
		{name: "empty defaults to info", level: "", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			log := NewWithWriter(tt.level, &bytes.Buffer{})
			if got := log.Level(); got != tt.want {
				t.Errorf("NewWithWriter(%q).Level() = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestLevelName(t *testing.T) {
	t.Parallel()

	tests := map[slog.Level]string{
		LevelTrace:      "trace",
		slog.LevelDebug: "debug",
		slog.LevelInfo:  "info",
		slog.LevelWarn:  "warning",
		slog.LevelError: "error",
	}
	for level, want := range tests {
		if got := LevelName(level); got != want {
			t.Errorf("LevelName(%v) = %q, want %q", level, got, want)
		}
	}
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse JSON log %q: %v", buf.String(), err)
	}
	return entry
}

func TestLogger_JSONFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)
	log.Warn("disk almost full")

	entry := decodeLine(t, &buf)
	for _, field := range []string{"timestamp", "level", "message"} {
		if _, ok := entry[field]; !ok {
			t.Errorf("JSON log missing required field %q", field)
		}
	}
	if entry["message"] != "disk almost full" {
		t.Errorf("message = %v, want %q", entry["message"], "disk almost full")
	}
	if entry["level"] != "warning" {
		t.Errorf("level = %v, want %q", entry["level"], "warning")
	}
}

func TestLogger_WithModule(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewWithWriter("info", &buf).WithModule("bot").Info("dispatched")

	if entry := decodeLine(t, &buf); entry["module"] != "bot" {
		t.Errorf("module = %v, want %q", entry["module"], "bot")
	}
}

func TestLogger_WithRequestID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewWithWriter("info", &buf).WithRequestID("req-123").Info("callback")

	if entry := decodeLine(t, &buf); entry["request_id"] != "req-123" {
		t.Errorf("request_id = %v, want %q", entry["request_id"], "req-123")
	}
}

func TestLogger_WithError(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewWithWriter("info", &buf).WithError(&testError{msg: "boom"}).Error("send failed")

	if entry := decodeLine(t, &buf); entry["error"] != "boom" {
		t.Errorf("error = %v, want %q", entry["error"], "boom")
	}
}

func TestLogger_WithFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewWithWriter("info", &buf).WithFields(map[string]any{"intent": "faq", "count": 2}).Info("handled")

	entry := decodeLine(t, &buf)
	if entry["intent"] != "faq" {
		t.Errorf("intent = %v, want faq", entry["intent"])
	}
	if entry["count"] != float64(2) {
		t.Errorf("count = %v, want 2", entry["count"])
	}
}

func TestLogger_SetLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)
	derived := log.WithModule("bot")

	log.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug record written at info level: %s", buf.String())
	}

	if err := log.SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel(debug) error = %v", err)
	}
	if log.Level() != slog.LevelDebug {
		t.Errorf("Level() = %v, want debug", log.Level())
	}

	// Derived loggers share the level.
	derived.Debug("visible")
	if buf.Len() == 0 {
		t.Error("derived logger should follow the new level")
	}

	if err := log.SetLevel("verbose"); err == nil {
		t.Error("SetLevel(verbose) error = nil, want error")
	}
}

func TestLogger_Trace(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter("debug", &buf)
	log.Trace("payload")
	if buf.Len() != 0 {
		t.Fatal("trace record written at debug level")
	}

	_ = log.SetLevel("trace")
	log.Trace("payload")
	if entry := decodeLine(t, &buf); entry["level"] != "trace" {
		t.Errorf("level = %v, want trace", entry["level"])
	}
}

// captureHandler records messages for sink assertions.
type captureHandler struct {
	mu       sync.Mutex
	messages []string
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, r.Message)
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func (h *captureHandler) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.messages...)
}

func TestLogger_SinksFlushOnShutdown(t *testing.T) {
	t.Parallel()

	sink := &captureHandler{}
	log := NewWithOptions("info", &bytes.Buffer{}, Options{Sinks: []Sink{{Name: "empty"}, {Name: "capture", Handler: sink}}})

	log.Debug("below level")
	log.Info("first")
	log.Error("second")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := log.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	got := sink.snapshot()
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("sink received %v, want [first second]", got)
	}

	// Shutdown is idempotent.
	if err := log.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

type testError struct {
	msg string
}

func (e *testError) Error() string {
	return e.msg
}
