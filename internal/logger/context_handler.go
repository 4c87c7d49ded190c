package logger

import (
	"context"
	"log/slog"

	"github.com/snospb/vk-sno-bot/internal/ctxutil"
)

// ContextHandler wraps another slog.Handler and adds the tracing values
// stored by ctxutil (user_id, peer_id, request_id, event_id) to every record.
// Call sites only need the *Context logging variants to get correlated logs.
type ContextHandler struct {
	handler slog.Handler
}

// NewContextHandler creates a new ContextHandler that wraps the provided handler.
func NewContextHandler(handler slog.Handler) *ContextHandler {
	return &ContextHandler{handler: handler}
}

// Enabled delegates to the wrapped handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle adds the context values as attributes and delegates.
// Zero and empty values are skipped.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		if userID := ctxutil.GetUserID(ctx); userID != 0 {
			r.AddAttrs(slog.Int64("user_id", userID))
		}
		if peerID := ctxutil.GetPeerID(ctx); peerID != 0 {
			r.AddAttrs(slog.Int64("peer_id", peerID))
		}
		if requestID, ok := ctxutil.GetRequestID(ctx); ok && requestID != "" {
			r.AddAttrs(slog.String("request_id", requestID))
		}
		if eventID := ctxutil.GetEventID(ctx); eventID != "" {
			r.AddAttrs(slog.String("event_id", eventID))
		}
	}
	return h.handler.Handle(ctx, r)
}

// WithAttrs returns a new ContextHandler around the wrapped handler's WithAttrs.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{handler: h.handler.WithAttrs(attrs)}
}

// WithGroup returns a new ContextHandler around the wrapped handler's WithGroup.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{handler: h.handler.WithGroup(name)}
}
