package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestNewFanoutHandlerCollapsesDegenerateCases(t *testing.T) {
	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Error("expected NoopHandler when every handler is nil")
	}

	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if got := newFanoutHandler(nil, inner, nil); got != inner {
		t.Error("expected the sole non-nil handler returned unwrapped")
	}
}

func TestFanoutHandlerEnabledIsUnionOfBranches(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	h := newFanoutHandler(
		slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)

	ctx := context.Background()
	if !h.Enabled(ctx, slog.LevelDebug) {
		t.Error("debug should be enabled while one branch accepts it")
	}

	strict := newFanoutHandler(
		slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelWarn}),
		slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	if strict.Enabled(ctx, slog.LevelDebug) {
		t.Error("debug should be disabled when no branch accepts it")
	}
}

func TestFanoutHandlerWritesToEveryAcceptingBranch(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	logger := slog.New(newFanoutHandler(
		slog.NewJSONHandler(&buf1, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&buf2, &slog.HandlerOptions{Level: slog.LevelInfo}),
	))

	logger.Info("queue drained")

	if buf1.Len() == 0 || buf2.Len() == 0 {
		t.Fatalf("expected both branches written, got %d and %d bytes", buf1.Len(), buf2.Len())
	}
}

func TestFanoutHandlerSkipsBranchesBelowTheirLevel(t *testing.T) {
	var console, file bytes.Buffer
	logger := slog.New(newFanoutHandler(
		slog.NewJSONHandler(&console, &slog.HandlerOptions{Level: slog.LevelWarn}),
		slog.NewJSONHandler(&file, &slog.HandlerOptions{Level: slog.LevelDebug}),
	))

	logger.Debug("stage progress 40%")

	if console.Len() != 0 {
		t.Error("warn-level branch should not see debug records")
	}
	if file.Len() == 0 {
		t.Error("debug-level branch should see debug records")
	}
}

func TestFanoutHandlerPropagatesAttrsAndGroups(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h := newFanoutHandler(
		slog.NewJSONHandler(&buf1, nil),
		slog.NewJSONHandler(&buf2, nil),
	)

	logger := slog.New(h.WithAttrs([]slog.Attr{slog.String(FieldJobID, "job-1")}).WithGroup("pipeline"))
	logger.Info("stage started", slog.String("stage", "transcribe"))

	for name, buf := range map[string]*bytes.Buffer{"first": &buf1, "second": &buf2} {
		if !bytes.Contains(buf.Bytes(), []byte(`"job_id"`)) {
			t.Errorf("expected job_id attr in %s branch", name)
		}
		if !bytes.Contains(buf.Bytes(), []byte(`"pipeline"`)) {
			t.Errorf("expected group in %s branch", name)
		}
	}
}

func TestFanoutHandlerClonesRecordsAcrossBranches(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	logger := slog.New(newFanoutHandler(
		slog.NewJSONHandler(&buf1, nil),
		slog.NewJSONHandler(&buf2, nil),
	))

	logger.Info("job completed", slog.String("status", "completed"))

	if !bytes.Contains(buf1.Bytes(), []byte(`"status"`)) || !bytes.Contains(buf2.Bytes(), []byte(`"status"`)) {
		t.Error("expected the attribute on both branches")
	}
}
