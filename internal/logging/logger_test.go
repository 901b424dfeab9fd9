package logging_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"autosub/internal/config"
	"autosub/internal/logging"
	"autosub/internal/services"
)

func TestNewFromConfigConsole(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg, nil)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger instance")
	}
	logger.Info("hello", logging.String("k", "v"))

	// Every record is also journaled as JSON under the log directory.
	data, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "autosub.log"))
	if err != nil {
		t.Fatalf("read daemon log: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"hello"`) {
		t.Fatalf("expected JSON copy in daemon log, got %q", string(data))
	}
}

func TestConsoleFormatIncludesSubjectAndFields(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "console.log")

	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithJobID(context.Background(), "job-abc1234567")
	ctx = services.WithStage(ctx, "transcribe")
	logging.WithContext(ctx, logger).Info("stage started",
		logging.String(logging.FieldComponent, "runner"),
		logging.Int("attempt", 1),
	)

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "runner") {
		t.Fatalf("expected component in output, got %q", out)
	}
	if !strings.Contains(out, "transcribe") {
		t.Fatalf("expected stage in output, got %q", out)
	}
	if !strings.Contains(out, "stage started") {
		t.Fatalf("expected message in output, got %q", out)
	}
	if !strings.Contains(out, "attempt=1") {
		t.Fatalf("expected extra field in output, got %q", out)
	}
}

func TestJSONFormatUsesShortKeys(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "json.log")

	logger, err := logging.New(logging.Options{
		Format:           "json",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("hello", logging.String("k", "v"))

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	for _, fragment := range []string{`"ts":`, `"level":"info"`, `"msg":"hello"`, `"k":"v"`} {
		if !strings.Contains(out, fragment) {
			t.Fatalf("expected %q in output, got %q", fragment, out)
		}
	}
}

func TestLevelFiltersBelowConfigured(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "filter.log")

	logger, err := logging.New(logging.Options{
		Format:           "json",
		Level:            "warn",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("suppressed")
	logger.Warn("kept")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "suppressed") {
		t.Fatalf("info record should be filtered, got %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn record should pass, got %q", out)
	}
}

func TestUnsupportedFormatRejected(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestStreamOptionCapturesDebugWhileConsoleStaysQuiet(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "stream.log")
	hub := logging.NewStreamHub(16)

	logger, err := logging.New(logging.Options{
		Format:           "json",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
		Stream:           hub,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("debug only")
	logger.Info("visible")

	events, _ := hub.Tail(10)
	if len(events) != 2 {
		t.Fatalf("expected hub to capture both records, got %d", len(events))
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(data), "debug only") {
		t.Fatalf("console branch should keep configured level, got %q", string(data))
	}
	if !strings.Contains(string(data), "visible") {
		t.Fatalf("expected info record on console branch, got %q", string(data))
	}
}

func TestSessionIDOptionStampsRecords(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "session.log")

	logger, err := logging.New(logging.Options{
		Format:           "json",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
		SessionID:        "run-1234",
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("hello")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"session_id":"run-1234"`) {
		t.Fatalf("expected session id in output, got %q", string(data))
	}
}
