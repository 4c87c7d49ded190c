package logstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// insertTimeout bounds one write from the log sink.
const insertTimeout = 5 * time.Second

// Handler is a slog.Handler that writes records into the store. Register it
// as a logger sink; the logger runs it behind an async queue.
type Handler struct {
	store  *Store
	attrs  []slog.Attr
	groups []string
}

// NewHandler returns a handler writing into s.
func NewHandler(s *Store) *Handler {
	return &Handler{store: s}
}

// Enabled accepts every level; the logger gates levels before sinks.
func (h *Handler) Enabled(context.Context, slog.Level) bool {
	return true
}

// Handle stores r with its attributes flattened into meta.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	meta := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		addAttr(meta, a)
	}

	target := meta
	for _, g := range h.groups {
		sub, ok := target[g].(map[string]any)
		if !ok {
			sub = make(map[string]any)
			target[g] = sub
		}
		target = sub
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(target, a)
		return true
	})
	pruneEmpty(meta)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), insertTimeout)
	defer cancel()
	return h.store.Insert(ctx, Entry{
		Timestamp: r.Time,
		Level:     FromSlog(r.Level),
		Message:   r.Message,
		Meta:      meta,
	})
}

// WithAttrs returns a handler that adds attrs to every record.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	// Attributes added inside a group are nested under it.
	nested := attrs
	for i := len(h.groups) - 1; i >= 0; i-- {
		nested = []slog.Attr{{Key: h.groups[i], Value: slog.GroupValue(nested...)}}
	}
	return &Handler{
		store:  h.store,
		attrs:  append(h.attrs[:len(h.attrs):len(h.attrs)], nested...),
		groups: h.groups,
	}
}

// WithGroup returns a handler that nests subsequent attributes under name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &Handler{
		store:  h.store,
		attrs:  h.attrs,
		groups: append(h.groups[:len(h.groups):len(h.groups)], name),
	}
}

func addAttr(m map[string]any, a slog.Attr) {
	v := a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	switch v.Kind() {
	case slog.KindGroup:
		group := v.Group()
		if len(group) == 0 {
			return
		}
		dst := m
		if a.Key != "" {
			sub, ok := m[a.Key].(map[string]any)
			if !ok {
				sub = make(map[string]any, len(group))
				m[a.Key] = sub
			}
			dst = sub
		}
		for _, ga := range group {
			addAttr(dst, ga)
		}
	case slog.KindTime:
		m[a.Key] = v.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindDuration:
		m[a.Key] = v.Duration().String()
	case slog.KindAny:
		switch x := v.Any().(type) {
		case error:
			m[a.Key] = x.Error()
		case json.Marshaler:
			m[a.Key] = x
		case fmt.Stringer:
			m[a.Key] = x.String()
		default:
			if _, err := json.Marshal(x); err != nil {
				m[a.Key] = fmt.Sprintf("%+v", x)
				return
			}
			m[a.Key] = x
		}
	default:
		m[a.Key] = v.Any()
	}
}

// pruneEmpty removes empty group maps left by WithGroup without attributes.
func pruneEmpty(m map[string]any) {
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			pruneEmpty(sub)
			if len(sub) == 0 {
				delete(m, k)
			}
		}
	}
}
