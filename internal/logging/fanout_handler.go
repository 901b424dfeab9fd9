package logging

import (
	"context"
	"log/slog"
)

// fanoutHandler forwards each record to every wrapped handler that accepts
// its level. NewFromConfig uses it to pair the console branch with the JSON
// file copy.
type fanoutHandler struct {
	targets []slog.Handler
}

func newFanoutHandler(handlers ...slog.Handler) slog.Handler {
	targets := make([]slog.Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			targets = append(targets, h)
		}
	}
	switch len(targets) {
	case 0:
		return NoopHandler{}
	case 1:
		return targets[0]
	}
	return &fanoutHandler{targets: targets}
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, target := range h.targets {
		if target.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for i, target := range h.targets {
		// Per-handler level check; a debug-only branch must not drag debug
		// records onto the info console.
		if !target.Enabled(ctx, record.Level) {
			continue
		}
		rec := record
		if i < len(h.targets)-1 {
			rec = record.Clone()
		}
		if err := target.Handle(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	targets := make([]slog.Handler, len(h.targets))
	for i, target := range h.targets {
		targets[i] = target.WithAttrs(attrs)
	}
	return &fanoutHandler{targets: targets}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	targets := make([]slog.Handler, len(h.targets))
	for i, target := range h.targets {
		targets[i] = target.WithGroup(name)
	}
	return &fanoutHandler{targets: targets}
}
