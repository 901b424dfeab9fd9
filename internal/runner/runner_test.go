package runner_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"autosub/internal/gate"
	"autosub/internal/logging"
	"autosub/internal/progress"
	"autosub/internal/queue"
	"autosub/internal/runner"
	"autosub/internal/stage"
	"autosub/internal/testsupport"
)

type stubHandler struct {
	name    string
	execute func(ctx context.Context, job *queue.Job, report stage.ProgressFunc) (*queue.StageOutput, error)
	calls   atomic.Int64
}

func (h *stubHandler) Execute(ctx context.Context, job *queue.Job, report stage.ProgressFunc) (*queue.StageOutput, error) {
	h.calls.Add(1)
	if h.execute != nil {
		return h.execute(ctx, job, report)
	}
	return &queue.StageOutput{Message: h.name + " done"}, nil
}

func (h *stubHandler) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(h.name)
}

func newRegistry(t *testing.T, handlers map[string]*stubHandler, gpuBound map[string]bool) *stage.Registry {
	t.Helper()
	registry := stage.NewRegistry()
	for name, handler := range handlers {
		if err := registry.Register(stage.Registration{Name: name, GPUBound: gpuBound[name], Handler: handler}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	return registry
}

func defaultHandlers() map[string]*stubHandler {
	return map[string]*stubHandler{
		stage.Extract:        {name: stage.Extract, execute: func(context.Context, *queue.Job, stage.ProgressFunc) (*queue.StageOutput, error) {
			return &queue.StageOutput{AudioPath: "/work/audio.wav"}, nil
		}},
		stage.Transcribe:     {name: stage.Transcribe, execute: func(context.Context, *queue.Job, stage.ProgressFunc) (*queue.StageOutput, error) {
			return &queue.StageOutput{TranscriptPath: "/work/transcript.json", DetectedLanguage: "en"}, nil
		}},
		stage.BuildSubtitles: {name: stage.BuildSubtitles, execute: func(context.Context, *queue.Job, stage.ProgressFunc) (*queue.StageOutput, error) {
			return &queue.StageOutput{SubtitlePaths: map[string]string{"srt": "/out/movie.srt"}}, nil
		}},
	}
}

func TestRunHappyPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	handlers := defaultHandlers()
	registry := newRegistry(t, handlers, nil)
	bus := progress.NewBus(64)

	job := testsupport.NewJob(t, store, "/in/movie.mkv")
	sub := bus.Subscribe(job.ID)

	r := runner.New(store, registry, gate.New(1, 0), bus, logging.NewNop(), time.Second)
	status, err := r.Run(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != queue.StatusCompleted {
		t.Fatalf("status = %s, want completed", status)
	}

	final, err := store.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if final.Status != queue.StatusCompleted {
		t.Fatalf("persisted status = %s, want completed", final.Status)
	}
	if final.ProgressPercent != 100 {
		t.Fatalf("progress = %.1f, want 100", final.ProgressPercent)
	}
	if final.StepIndex != final.TotalSteps {
		t.Fatalf("step index %d != total steps %d", final.StepIndex, final.TotalSteps)
	}
	if final.State.AudioPath != "/work/audio.wav" || final.State.TranscriptPath != "/work/transcript.json" {
		t.Fatalf("pipeline state not accumulated: %+v", final.State)
	}
	if final.DetectedLanguage != "en" {
		t.Fatalf("detected language = %q, want en", final.DetectedLanguage)
	}
	if final.CompletedAt == nil {
		t.Fatal("completed job should carry a completion timestamp")
	}

	// Step indexes in the event stream never move backwards; the stream ends
	// with a terminal event and a closed channel.
	lastStep := -1
	var lastEvent progress.Event
	for ev := range sub.Events() {
		if ev.Step < lastStep {
			t.Fatalf("step went backwards: %d after %d", ev.Step, lastStep)
		}
		lastStep = ev.Step
		lastEvent = ev
	}
	if lastEvent.Type != progress.EventTerminal {
		t.Fatalf("last event type = %s, want terminal", lastEvent.Type)
	}
	if lastEvent.Status != queue.StatusCompleted {
		t.Fatalf("terminal event status = %s, want completed", lastEvent.Status)
	}
}

func TestRunStopsOnStageFailureWithVerbatimMessage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	handlers := defaultHandlers()
	handlers[stage.Transcribe].execute = func(context.Context, *queue.Job, stage.ProgressFunc) (*queue.StageOutput, error) {
		return nil, errors.New("model load failed")
	}
	registry := newRegistry(t, handlers, nil)

	job := testsupport.NewJob(t, store, "/in/movie.mkv")
	r := runner.New(store, registry, gate.New(1, 0), progress.NewBus(8), logging.NewNop(), time.Second)

	status, err := r.Run(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != queue.StatusFailed {
		t.Fatalf("status = %s, want failed", status)
	}

	final, _ := store.GetJob(context.Background(), job.ID)
	if final.ErrorMessage != "model load failed" {
		t.Fatalf("error message = %q, want verbatim stage error", final.ErrorMessage)
	}
	if got := handlers[stage.BuildSubtitles].calls.Load(); got != 0 {
		t.Fatalf("build_subtitles ran %d times after failure, want 0", got)
	}
	if !final.State.HasCompleted(stage.Extract) {
		t.Fatal("extract output should be accumulated before the failure")
	}
	if final.State.HasCompleted(stage.Transcribe) {
		t.Fatal("failed stage must not be recorded as completed")
	}
}

func TestRetryResumesAfterAccumulatedStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	handlers := defaultHandlers()
	shouldFail := atomic.Bool{}
	shouldFail.Store(true)
	handlers[stage.Transcribe].execute = func(context.Context, *queue.Job, stage.ProgressFunc) (*queue.StageOutput, error) {
		if shouldFail.Load() {
			return nil, errors.New("model load failed")
		}
		return &queue.StageOutput{TranscriptPath: "/work/transcript.json"}, nil
	}
	registry := newRegistry(t, handlers, nil)

	job := testsupport.NewJob(t, store, "/in/movie.mkv")
	r := runner.New(store, registry, gate.New(1, 0), progress.NewBus(8), logging.NewNop(), time.Second)

	if status, err := r.Run(context.Background(), job.ID); err != nil || status != queue.StatusFailed {
		t.Fatalf("first run = (%s, %v), want failed", status, err)
	}
	extractRuns := handlers[stage.Extract].calls.Load()

	shouldFail.Store(false)
	if _, err := store.ResetForRetry(context.Background(), job.ID); err != nil {
		t.Fatalf("ResetForRetry: %v", err)
	}
	if status, err := r.Run(context.Background(), job.ID); err != nil || status != queue.StatusCompleted {
		t.Fatalf("retry run = (%s, %v), want completed", status, err)
	}

	if got := handlers[stage.Extract].calls.Load(); got != extractRuns {
		t.Fatalf("extract re-ran on retry: %d calls, want %d", got, extractRuns)
	}
	if got := handlers[stage.Transcribe].calls.Load(); got != 2 {
		t.Fatalf("transcribe calls = %d, want 2", got)
	}
}

func TestCancellationHonoredAtStageBoundary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	handlers := defaultHandlers()

	transcribeStarted := make(chan struct{})
	releaseTranscribe := make(chan struct{})
	handlers[stage.Transcribe].execute = func(context.Context, *queue.Job, stage.ProgressFunc) (*queue.StageOutput, error) {
		close(transcribeStarted)
		<-releaseTranscribe
		return &queue.StageOutput{TranscriptPath: "/work/transcript.json"}, nil
	}
	registry := newRegistry(t, handlers, nil)

	job := testsupport.NewJob(t, store, "/in/movie.mkv")
	r := runner.New(store, registry, gate.New(1, 0), progress.NewBus(8), logging.NewNop(), time.Second)

	result := make(chan queue.Status, 1)
	go func() {
		status, err := r.Run(context.Background(), job.ID)
		if err != nil {
			t.Errorf("Run: %v", err)
		}
		result <- status
	}()

	<-transcribeStarted
	if _, err := store.RequestCancel(context.Background(), job.ID); err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	close(releaseTranscribe)

	select {
	case status := <-result:
		if status != queue.StatusCancelled {
			t.Fatalf("status = %s, want cancelled", status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish after cancellation")
	}

	final, _ := store.GetJob(context.Background(), job.ID)
	if !final.State.HasCompleted(stage.Transcribe) {
		t.Fatal("in-flight stage must run to completion before cancellation applies")
	}
	if got := handlers[stage.BuildSubtitles].calls.Load(); got != 0 {
		t.Fatalf("stage after cancellation ran %d times, want 0", got)
	}
}

func TestGateTimeoutFailsRetryable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	handlers := defaultHandlers()
	registry := newRegistry(t, handlers, map[string]bool{stage.Transcribe: true})

	g := gate.New(1, 50*time.Millisecond)
	blocker, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer blocker()

	job := testsupport.NewJob(t, store, "/in/movie.mkv")
	r := runner.New(store, registry, g, progress.NewBus(8), logging.NewNop(), time.Second)

	status, err := r.Run(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != queue.StatusFailed {
		t.Fatalf("status = %s, want failed", status)
	}

	final, _ := store.GetJob(context.Background(), job.ID)
	if !final.Retryable {
		t.Fatal("gate timeout failure should be flagged retryable")
	}
	if got := handlers[stage.Transcribe].calls.Load(); got != 0 {
		t.Fatalf("gated stage executed %d times without a slot, want 0", got)
	}
}

func TestStagePanicBecomesFailedTransition(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	handlers := defaultHandlers()
	handlers[stage.Extract].execute = func(context.Context, *queue.Job, stage.ProgressFunc) (*queue.StageOutput, error) {
		panic("ffmpeg wrapper exploded")
	}
	registry := newRegistry(t, handlers, nil)

	job := testsupport.NewJob(t, store, "/in/movie.mkv")
	r := runner.New(store, registry, gate.New(1, 0), progress.NewBus(8), logging.NewNop(), time.Second)

	status, err := r.Run(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != queue.StatusFailed {
		t.Fatalf("status = %s, want failed", status)
	}
	final, _ := store.GetJob(context.Background(), job.ID)
	if final.ErrorMessage == "" {
		t.Fatal("panic should record an error message")
	}
}

func TestRunAlreadyCancelledJobIsNoop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	handlers := defaultHandlers()
	registry := newRegistry(t, handlers, nil)

	job := testsupport.NewJob(t, store, "/in/movie.mkv")
	if _, err := store.RequestCancel(context.Background(), job.ID); err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}

	r := runner.New(store, registry, gate.New(1, 0), progress.NewBus(8), logging.NewNop(), time.Second)
	status, err := r.Run(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != queue.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", status)
	}
	if got := handlers[stage.Extract].calls.Load(); got != 0 {
		t.Fatalf("stage ran %d times for a cancelled job, want 0", got)
	}
}
