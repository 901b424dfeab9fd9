package deps

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"autosub/internal/config"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}

	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
}

func TestRequiredCoversPipelineTools(t *testing.T) {
	cfg := config.Default()
	names := map[string]bool{}
	for _, req := range Required(&cfg) {
		names[req.Name] = true
	}
	for _, want := range []string{"FFmpeg", "FFprobe", "WhisperX"} {
		if !names[want] {
			t.Errorf("Required missing %s", want)
		}
	}
}

func TestCheckOllama(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			_, _ = w.Write([]byte(`{"models":[]}`))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Translation.BaseURL = server.URL
	status := CheckOllama(context.Background(), &cfg)
	if !status.Available {
		t.Fatalf("expected reachable server, got %q", status.Detail)
	}

	cfg.Translation.BaseURL = "http://127.0.0.1:1"
	cfg.Translation.TimeoutSeconds = 1
	status = CheckOllama(context.Background(), &cfg)
	if status.Available {
		t.Fatal("expected unreachable server")
	}
	if !status.Optional {
		t.Fatal("ollama should be optional")
	}
}

func TestMissingRequired(t *testing.T) {
	statuses := []Status{
		{Name: "A", Available: true},
		{Name: "B", Available: false},
		{Name: "C", Available: false, Optional: true},
	}
	missing := MissingRequired(statuses)
	if len(missing) != 1 || missing[0].Name != "B" {
		t.Fatalf("missing = %+v", missing)
	}
}
