package logging

import (
	"context"
	"log/slog"
)

// StatusProvider returns attributes describing the live bridge state,
// e.g. the scheduler state and the current aircraft.
type StatusProvider func() []slog.Attr

// ContextHandler stamps every record at or above minLevel with the current bridge status.
type ContextHandler struct {
	inner    slog.Handler
	provider StatusProvider
	minLevel slog.Level
}

// NewContextHandler wraps inner. Records below minLevel pass through untouched.
func NewContextHandler(inner slog.Handler, provider StatusProvider, minLevel slog.Level) *ContextHandler {
	return &ContextHandler{inner: inner, provider: provider, minLevel: minLevel}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider != nil && r.Level >= h.minLevel {
		r.AddAttrs(slog.Attr{Key: "bridge", Value: slog.GroupValue(h.provider()...)})
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs), provider: h.provider, minLevel: h.minLevel}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{inner: h.inner.WithGroup(name), provider: h.provider, minLevel: h.minLevel}
}
