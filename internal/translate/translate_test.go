package translate_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"autosub/internal/queue"
	"autosub/internal/services"
	"autosub/internal/testsupport"
	"autosub/internal/transcribe"
	"autosub/internal/translate"
)

func TestParseNumbered(t *testing.T) {
	lines, err := translate.ParseNumbered("1. Hallo\n2) Welt\nsome chatter\n3. Tschüss", 3)
	if err != nil {
		t.Fatalf("ParseNumbered: %v", err)
	}
	want := []string{"Hallo", "Welt", "Tschüss"}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i+1, lines[i], want[i])
		}
	}

	if _, err := translate.ParseNumbered("1. only one", 2); err == nil {
		t.Fatal("expected error for missing lines")
	}
}

func ollamaStub(t *testing.T, translateLine func(string) string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Prompt string `json:"prompt"`
			Stream bool   `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Stream {
			http.Error(w, "stub only supports stream=false", http.StatusBadRequest)
			return
		}
		var out strings.Builder
		for _, line := range strings.Split(strings.TrimSpace(req.Prompt), "\n") {
			parts := strings.SplitN(line, ". ", 2)
			if len(parts) != 2 {
				continue
			}
			fmt.Fprintf(&out, "%s. %s\n", parts[0], translateLine(parts[1]))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": out.String(), "done": true})
	}))
	t.Cleanup(server.Close)
	return server
}

func writeTranscript(t *testing.T, dir string, texts ...string) string {
	t.Helper()
	doc := &transcribe.Document{Language: "en"}
	for i, text := range texts {
		doc.Segments = append(doc.Segments, transcribe.Segment{
			Start: float64(i), End: float64(i) + 0.9, Text: text, Speaker: "SPEAKER_00",
		})
	}
	path := filepath.Join(dir, "transcript.json")
	if err := doc.Save(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExecuteTranslatesInBatches(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Translation.BatchLines = 2
	server := ollamaStub(t, func(line string) string { return "DE:" + line })
	cfg.Translation.BaseURL = server.URL

	transcriptPath := writeTranscript(t, t.TempDir(), "one", "two", "three", "four", "five")
	job := &queue.Job{
		ID:             "job-1",
		TargetLanguage: "de",
		State:          queue.PipelineState{TranscriptPath: transcriptPath},
	}

	var fractions []float64
	engine := translate.New(cfg)
	out, err := engine.Execute(context.Background(), job, func(fraction float64, _ string) {
		fractions = append(fractions, fraction)
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	doc, err := transcribe.LoadDocument(out.TranslatedPath)
	if err != nil {
		t.Fatalf("load translated: %v", err)
	}
	if len(doc.Segments) != 5 {
		t.Fatalf("segment count = %d, want 5", len(doc.Segments))
	}
	if doc.Segments[2].Text != "DE:three" {
		t.Errorf("segment 3 = %q", doc.Segments[2].Text)
	}
	if doc.Segments[2].Speaker != "SPEAKER_00" || doc.Segments[2].Start != 2 {
		t.Errorf("timing/speaker not preserved: %+v", doc.Segments[2])
	}
	if doc.Language != "de" {
		t.Errorf("document language = %q, want de", doc.Language)
	}
	// Three batches of two, two, one.
	if len(fractions) != 3 || fractions[len(fractions)-1] != 1 {
		t.Errorf("batch progress = %v", fractions)
	}
}

func TestExecutePrefersDiarizedTranscript(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	server := ollamaStub(t, func(line string) string { return line })
	cfg.Translation.BaseURL = server.URL

	dir := t.TempDir()
	raw := writeTranscript(t, dir, "raw line")
	diarizedDoc := &transcribe.Document{Segments: []transcribe.Segment{{Text: "diarized line", End: 1}}}
	diarized := filepath.Join(dir, "diarized.json")
	if err := diarizedDoc.Save(diarized); err != nil {
		t.Fatal(err)
	}

	job := &queue.Job{
		ID:             "job-2",
		TargetLanguage: "de",
		State:          queue.PipelineState{TranscriptPath: raw, DiarizedPath: diarized},
	}
	out, err := translate.New(cfg).Execute(context.Background(), job, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	doc, err := transcribe.LoadDocument(out.TranslatedPath)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Segments[0].Text != "diarized line" {
		t.Errorf("translated from %q, want the diarized transcript", doc.Segments[0].Text)
	}
}

func TestExecuteSkipsWhenDetectedLanguageMatchesTarget(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	// Any request would fail; the stage must never reach the server.
	cfg.Translation.BaseURL = "http://127.0.0.1:1"

	transcriptPath := writeTranscript(t, t.TempDir(), "already in english")
	job := &queue.Job{
		ID:               "job-skip",
		SourceLanguage:   "auto",
		DetectedLanguage: "en",
		TargetLanguage:   "en",
		State:            queue.PipelineState{TranscriptPath: transcriptPath},
	}

	var messages []string
	out, err := translate.New(cfg).Execute(context.Background(), job, func(_ float64, message string) {
		messages = append(messages, message)
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.TranslatedPath != "" {
		t.Errorf("pass-through wrote %q, downstream should keep reading the transcript", out.TranslatedPath)
	}
	if len(messages) != 1 || !strings.Contains(messages[0], "skipped") {
		t.Errorf("progress messages = %v, want a single skip notice", messages)
	}
}

func TestExecuteFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	t.Run("missing transcript", func(t *testing.T) {
		_, err := translate.New(cfg).Execute(context.Background(), &queue.Job{ID: "job-3", TargetLanguage: "de"}, nil)
		if !errors.Is(err, services.ErrStageExecution) {
			t.Fatalf("error = %v, want ErrStageExecution", err)
		}
	})

	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}))
		t.Cleanup(server.Close)
		cfg.Translation.BaseURL = server.URL

		transcriptPath := writeTranscript(t, t.TempDir(), "hello")
		job := &queue.Job{ID: "job-4", TargetLanguage: "de", State: queue.PipelineState{TranscriptPath: transcriptPath}}
		_, err := translate.New(cfg).Execute(context.Background(), job, nil)
		if !errors.Is(err, services.ErrExternalTool) {
			t.Fatalf("error = %v, want ErrExternalTool", err)
		}
	})

	t.Run("malformed response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"response": "sorry, I cannot help with that", "done": true})
		}))
		t.Cleanup(server.Close)
		cfg.Translation.BaseURL = server.URL

		transcriptPath := writeTranscript(t, t.TempDir(), "hello")
		job := &queue.Job{ID: "job-5", TargetLanguage: "de", State: queue.PipelineState{TranscriptPath: transcriptPath}}
		_, err := translate.New(cfg).Execute(context.Background(), job, nil)
		if !errors.Is(err, services.ErrExternalTool) {
			t.Fatalf("error = %v, want ErrExternalTool", err)
		}
	})
}

func TestClientPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			_, _ = w.Write([]byte(`{"models":[]}`))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)

	client := translate.NewClient(server.URL, "qwen2.5:7b", 5)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	down := translate.NewClient("http://127.0.0.1:1", "qwen2.5:7b", 1)
	if err := down.Ping(context.Background()); err == nil {
		t.Fatal("expected ping failure for unreachable server")
	}
}
