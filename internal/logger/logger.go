// Package logger provides structured logging utilities for the application.
// It wraps log/slog with JSON formatting, enriches records with tracing values
// from the context, and fans records out to optional remote and persistent sinks.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	slogbetterstack "github.com/samber/slog-betterstack"
)

// LevelTrace is one step below debug. Used for per-event payload dumps.
const LevelTrace = slog.Level(-8)

// Logger is the application logger
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
	async []*AsyncHandler
}

// Options configures optional log sinks.
type Options struct {
	// BetterStackToken enables log shipping to Better Stack when non-empty.
	BetterStackToken string
	// BetterStackEndpoint overrides the Better Stack ingesting endpoint.
	BetterStackEndpoint string
	// Sinks receive every record at or above the logger level, asynchronously
	// and in addition to the writer. The persistent log store registers here.
	Sinks []Sink
	// Async tunes the queue in front of every sink, Better Stack included.
	Async AsyncOptions
}

// New creates a new logger instance with JSON formatting
func New(level string) *Logger {
	return NewWithWriter(level, os.Stdout)
}

// NewWithWriter creates a new logger instance with JSON formatting writing to the provided writer
func NewWithWriter(level string, w io.Writer) *Logger {
	return NewWithOptions(level, w, Options{})
}

// NewWithOptions creates a logger writing JSON to w and to every configured sink.
// Remote and persistent sinks run behind AsyncHandler so slow I/O never blocks callers;
// call Shutdown to flush them.
func NewWithOptions(level string, w io.Writer, opts Options) *Logger {
	levelVar := new(slog.LevelVar)
	levelVar.Set(ParseLevel(level))

	handlers := []slog.Handler{
		slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       levelVar,
			ReplaceAttr: replaceAttr,
		}),
	}

	sinks := opts.Sinks
	if opts.BetterStackToken != "" {
		sinks = append(slices.Clone(sinks), Sink{
			Name: "betterstack",
			Handler: slogbetterstack.Option{
				Level:    levelVar,
				Token:    opts.BetterStackToken,
				Endpoint: opts.BetterStackEndpoint,
			}.NewBetterstackHandler(),
		})
	}

	var async []*AsyncHandler
	for _, sink := range sinks {
		if sink.Handler == nil {
			continue
		}
		h := NewAsyncHandler(Sink{
			Name:    sink.Name,
			Handler: &levelGate{handler: sink.Handler, level: levelVar},
		}, opts.Async)
		async = append(async, h)
		handlers = append(handlers, h)
	}

	var root slog.Handler = handlers[0]
	if len(handlers) > 1 {
		root = NewMultiHandler(handlers...)
	}

	return &Logger{
		Logger: slog.New(NewContextHandler(root)),
		level:  levelVar,
		async:  async,
	}
}

// ParseLevel maps a level name to a slog level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LevelName returns the lowercase name used in JSON output.
func LevelName(level slog.Level) string {
	switch {
	case level < slog.LevelDebug:
		return "trace"
	case level < slog.LevelInfo:
		return "debug"
	case level < slog.LevelWarn:
		return "info"
	case level < slog.LevelError:
		return "warning"
	default:
		return "error"
	}
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.TimeKey:
		a.Key = "timestamp"
	case slog.LevelKey:
		a.Key = "level"
		if lvl, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(LevelName(lvl))
		}
	case slog.MessageKey:
		a.Key = "message"
	}
	return a
}

// Level returns the current minimum level.
func (l *Logger) Level() slog.Level {
	return l.level.Level()
}

// SetLevel changes the minimum level for every handler of this logger.
func (l *Logger) SetLevel(level string) error {
	switch strings.ToLower(level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
	l.level.Set(ParseLevel(level))
	return nil
}

// Trace logs at LevelTrace.
func (l *Logger) Trace(msg string, args ...any) {
	l.Log(context.Background(), LevelTrace, msg, args...)
}

func (l *Logger) derive(inner *slog.Logger) *Logger {
	return &Logger{Logger: inner, level: l.level, async: l.async}
}

// WithModule creates a new entry with module field
func (l *Logger) WithModule(module string) *Logger {
	return l.derive(l.With("module", module))
}

// WithRequestID creates a new entry with request ID field
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.derive(l.With("request_id", requestID))
}

// WithError creates a new entry with error field
func (l *Logger) WithError(err error) *Logger {
	return l.derive(l.With("error", err))
}

// WithField creates a new entry with a single field
func (l *Logger) WithField(key string, value any) *Logger {
	return l.derive(l.With(key, value))
}

// WithFields creates a new entry with multiple fields
func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return l.derive(l.With(args...))
}

// Infof logs a formatted message at info level.
func (l *Logger) Infof(format string, args ...any) {
	l.Info(fmt.Sprintf(format, args...))
}

// Warnf logs a formatted message at warn level.
func (l *Logger) Warnf(format string, args ...any) {
	l.Warn(fmt.Sprintf(format, args...))
}

// Errorf logs a formatted message at error level.
func (l *Logger) Errorf(format string, args ...any) {
	l.Error(fmt.Sprintf(format, args...))
}

// Debugf logs a formatted message at debug level.
func (l *Logger) Debugf(format string, args ...any) {
	l.Debug(fmt.Sprintf(format, args...))
}

// SinkStats reports per-sink delivery counters in registration order.
func (l *Logger) SinkStats() []SinkStats {
	stats := make([]SinkStats, 0, len(l.async))
	for _, h := range l.async {
		stats = append(stats, h.Stats())
	}
	return stats
}

// Shutdown flushes every async sink. Records logged afterwards only reach the writer.
func (l *Logger) Shutdown(ctx context.Context) error {
	var errs []error
	for _, h := range l.async {
		if err := h.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// levelGate applies the logger's dynamic level to sinks that carry no level of their own.
type levelGate struct {
	handler slog.Handler
	level   slog.Leveler
}

func (g *levelGate) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= g.level.Level() && g.handler.Enabled(ctx, level)
}

func (g *levelGate) Handle(ctx context.Context, r slog.Record) error {
	return g.handler.Handle(ctx, r)
}

func (g *levelGate) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelGate{handler: g.handler.WithAttrs(attrs), level: g.level}
}

func (g *levelGate) WithGroup(name string) slog.Handler {
	return &levelGate{handler: g.handler.WithGroup(name), level: g.level}
}
