package testsupport

import (
	"context"
	"testing"

	"autosub/internal/config"
	"autosub/internal/queue"
	"autosub/internal/stage"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob creates and persists a minimal queued job for tests. The stage list
// defaults to extract → transcribe → build_subtitles.
func NewJob(t testing.TB, store *queue.Store, inputPath string, stages ...string) *queue.Job {
	t.Helper()

	if len(stages) == 0 {
		stages = []string{stage.Extract, stage.Transcribe, stage.BuildSubtitles}
	}
	job := &queue.Job{
		InputPath:     inputPath,
		OutputFormats: []string{"srt"},
		Stages:        stages,
	}
	if err := store.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("store.CreateJob: %v", err)
	}
	return job
}
