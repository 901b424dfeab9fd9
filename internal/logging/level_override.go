package logging

import (
	"context"
	"log/slog"
)

// levelOverrideHandler clamps records below a minimum level before they
// reach the wrapped handler. The wrapped handler runs at the most verbose
// level any branch needs; this wrapper keeps the console branch at the
// configured level while the stream branch sees everything.
type levelOverrideHandler struct {
	inner slog.Handler
	min   slog.Level
}

func newLevelOverrideHandler(inner slog.Handler, min slog.Level) slog.Handler {
	if inner == nil {
		return NoopHandler{}
	}
	return &levelOverrideHandler{inner: inner, min: min}
}

func (h *levelOverrideHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.min && h.inner.Enabled(ctx, level)
}

func (h *levelOverrideHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < h.min {
		return nil
	}
	return h.inner.Handle(ctx, record)
}

func (h *levelOverrideHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelOverrideHandler{inner: h.inner.WithAttrs(attrs), min: h.min}
}

func (h *levelOverrideHandler) WithGroup(name string) slog.Handler {
	return &levelOverrideHandler{inner: h.inner.WithGroup(name), min: h.min}
}
