package queue_test

import (
	"testing"

	"autosub/internal/queue"
)

func TestParseStatus(t *testing.T) {
	cases := []struct {
		input string
		want  queue.Status
		ok    bool
	}{
		{"queued", queue.StatusQueued, true},
		{" Processing ", queue.StatusProcessing, true},
		{"COMPLETED", queue.StatusCompleted, true},
		{"bogus", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := queue.ParseStatus(tc.input)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Fatalf("ParseStatus(%q) = %q, %v; want %q, %v", tc.input, got, ok, tc.want, tc.ok)
		}
	}
}

func TestStatusIsTerminal(t *testing.T) {
	terminal := []queue.Status{queue.StatusCompleted, queue.StatusFailed, queue.StatusCancelled}
	for _, status := range terminal {
		if !status.IsTerminal() {
			t.Fatalf("expected %s to be terminal", status)
		}
	}
	for _, status := range []queue.Status{queue.StatusQueued, queue.StatusProcessing} {
		if status.IsTerminal() {
			t.Fatalf("expected %s to be non-terminal", status)
		}
	}
}

func TestComputeBatchStatus(t *testing.T) {
	cases := []struct {
		name     string
		statuses []queue.Status
		want     queue.BatchStatus
	}{
		{"all completed", []queue.Status{queue.StatusCompleted, queue.StatusCompleted}, queue.BatchCompleted},
		{"all failed", []queue.Status{queue.StatusFailed, queue.StatusFailed}, queue.BatchFailed},
		{"mixed outcome", []queue.Status{queue.StatusCompleted, queue.StatusFailed}, queue.BatchPartial},
		{"cancelled member", []queue.Status{queue.StatusCompleted, queue.StatusCancelled}, queue.BatchPartial},
		{"still queued", []queue.Status{queue.StatusCompleted, queue.StatusQueued}, queue.BatchProcessing},
		{"still processing", []queue.Status{queue.StatusFailed, queue.StatusProcessing}, queue.BatchProcessing},
		{"all cancelled", []queue.Status{queue.StatusCancelled, queue.StatusCancelled}, queue.BatchPartial},
	}
	for _, tc := range cases {
		if got := queue.ComputeBatchStatus(tc.statuses); got != tc.want {
			t.Fatalf("%s: ComputeBatchStatus = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestPipelineStateApplyIsWriteOnce(t *testing.T) {
	state := queue.PipelineState{}
	state.Apply("extract", &queue.StageOutput{AudioPath: "/tmp/a.wav", DurationSeconds: 12.5})
	state.Apply("transcribe", &queue.StageOutput{TranscriptPath: "/tmp/t.json", AudioPath: "/tmp/other.wav"})

	if state.AudioPath != "/tmp/a.wav" {
		t.Fatalf("audio path should be write-once, got %q", state.AudioPath)
	}
	if state.TranscriptPath != "/tmp/t.json" {
		t.Fatalf("transcript path missing, got %q", state.TranscriptPath)
	}
	if !state.HasCompleted("extract") || !state.HasCompleted("transcribe") {
		t.Fatalf("completed record wrong: %v", state.Completed)
	}
	if state.HasCompleted("translate") {
		t.Fatal("translate should not be completed")
	}

	// Re-applying the same stage must not duplicate the record.
	state.Apply("extract", nil)
	if len(state.Completed) != 2 {
		t.Fatalf("expected 2 completed entries, got %v", state.Completed)
	}
}

func TestPipelineStateActiveTranscriptPath(t *testing.T) {
	state := queue.PipelineState{TranscriptPath: "/t.json"}
	if got := state.ActiveTranscriptPath(); got != "/t.json" {
		t.Fatalf("expected raw transcript, got %q", got)
	}
	state.DiarizedPath = "/d.json"
	if got := state.ActiveTranscriptPath(); got != "/d.json" {
		t.Fatalf("expected diarized transcript, got %q", got)
	}
	state.TranslatedPath = "/tr.json"
	if got := state.ActiveTranscriptPath(); got != "/tr.json" {
		t.Fatalf("expected translated transcript, got %q", got)
	}
}

func TestJobBandedPercent(t *testing.T) {
	job := &queue.Job{StepIndex: 1, TotalSteps: 4}
	if got := job.BandedPercent(0); got != 25 {
		t.Fatalf("band start: got %v, want 25", got)
	}
	if got := job.BandedPercent(0.5); got != 37.5 {
		t.Fatalf("band middle: got %v, want 37.5", got)
	}
	if got := job.BandedPercent(2); got != 50 {
		t.Fatalf("fraction should clamp to 1: got %v, want 50", got)
	}
	empty := &queue.Job{}
	if got := empty.BandedPercent(0.5); got != 0 {
		t.Fatalf("zero steps should yield 0, got %v", got)
	}
}

func TestJobProgressNeverMovesBackwards(t *testing.T) {
	job := &queue.Job{TotalSteps: 2}
	job.SetProgress("extract", "working", 40)
	job.SetProgress("extract", "stale update", 10)
	if job.ProgressPercent != 40 {
		t.Fatalf("percent regressed to %v", job.ProgressPercent)
	}
	if job.ProgressMessage != "stale update" {
		t.Fatalf("message should still update, got %q", job.ProgressMessage)
	}
}

func TestJobAdvanceStep(t *testing.T) {
	job := &queue.Job{TotalSteps: 2}
	job.AdvanceStep("extract")
	if job.StepIndex != 1 || job.ProgressPercent != 50 {
		t.Fatalf("after first stage: step=%d percent=%v", job.StepIndex, job.ProgressPercent)
	}
	job.AdvanceStep("transcribe")
	if job.StepIndex != 2 || job.ProgressPercent != 100 {
		t.Fatalf("after second stage: step=%d percent=%v", job.StepIndex, job.ProgressPercent)
	}
	// Step index is bounded by the stage count.
	job.AdvanceStep("extra")
	if job.StepIndex != 2 {
		t.Fatalf("step index exceeded total: %d", job.StepIndex)
	}
}

func TestTerminalSetters(t *testing.T) {
	job := &queue.Job{TotalSteps: 3, ProgressPercent: 30}

	failed := *job
	failed.SetFailed("whisperx: model load failed", true)
	if failed.Status != queue.StatusFailed || failed.ErrorMessage != "whisperx: model load failed" || !failed.Retryable {
		t.Fatalf("unexpected failed job: %+v", failed)
	}

	cancelled := *job
	cancelled.CancelRequested = true
	cancelled.SetCancelled("cancel requested")
	if cancelled.Status != queue.StatusCancelled || cancelled.CancelRequested {
		t.Fatalf("unexpected cancelled job: %+v", cancelled)
	}

	done := *job
	done.SetCompleted("all stages finished")
	if done.Status != queue.StatusCompleted || done.ProgressPercent != 100 || done.ErrorMessage != "" {
		t.Fatalf("unexpected completed job: %+v", done)
	}
}
