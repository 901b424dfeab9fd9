package logging

import (
	"context"
	"log/slog"
)

// FieldSessionID keys the identifier of a single daemon run.
const FieldSessionID = "session_id"

// sessionIDHandler stamps every record with the daemon run identifier so
// archived events from different runs can be told apart.
type sessionIDHandler struct {
	next slog.Handler
	id   string
}

func newSessionIDHandler(next slog.Handler, id string) slog.Handler {
	if next == nil {
		return NoopHandler{}
	}
	return &sessionIDHandler{next: next, id: id}
}

func (h *sessionIDHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *sessionIDHandler) Handle(ctx context.Context, record slog.Record) error {
	record.AddAttrs(slog.String(FieldSessionID, h.id))
	return h.next.Handle(ctx, record)
}

func (h *sessionIDHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &sessionIDHandler{next: h.next.WithAttrs(attrs), id: h.id}
}

func (h *sessionIDHandler) WithGroup(name string) slog.Handler {
	return &sessionIDHandler{next: h.next.WithGroup(name), id: h.id}
}
