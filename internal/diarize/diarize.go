// Package diarize runs the WhisperX diarization pass, attaching speaker
// labels to the transcript.
package diarize

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"autosub/internal/config"
	"autosub/internal/fileutil"
	"autosub/internal/language"
	"autosub/internal/queue"
	"autosub/internal/services"
	"autosub/internal/stage"
	"autosub/internal/transcribe"
)

// Engine implements the diarize stage. It shells the same WhisperX binary as
// transcription, with the diarization pipeline enabled.
type Engine struct {
	cfg *config.Config
	run transcribe.Runner
}

// New constructs the diarize engine.
func New(cfg *config.Config) *Engine {
	return &Engine{cfg: cfg, run: transcribe.DefaultRunner}
}

// WithRunner replaces the command runner (tests).
func (e *Engine) WithRunner(run transcribe.Runner) *Engine {
	if run != nil {
		e.run = run
	}
	return e
}

// Execute re-runs WhisperX over the extracted audio with diarization enabled
// and records the speaker-labeled transcript.
func (e *Engine) Execute(ctx context.Context, job *queue.Job, report stage.ProgressFunc) (*queue.StageOutput, error) {
	audio := job.State.AudioPath
	if audio == "" {
		return nil, services.Wrap(services.ErrStageExecution, stage.Diarize, "diarize", "no extracted audio recorded for job", nil)
	}
	if e.cfg.Diarization.HuggingFaceToken == "" {
		return nil, services.Wrap(services.ErrConfiguration, stage.Diarize, "diarize", "diarization requires hf_token in [diarization]", nil)
	}

	workDir, err := fileutil.JobWorkDir(e.cfg.Paths.WorkDir, job.ID)
	if err != nil {
		return nil, services.Wrap(services.ErrStageExecution, stage.Diarize, "diarize", "prepare work dir", err)
	}
	outDir := filepath.Join(workDir, "diarize")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrStageExecution, stage.Diarize, "diarize", "prepare output dir", err)
	}

	onLine := func(line string) {
		if fraction, ok := transcribe.ParseProgress(line); ok && report != nil {
			report(fraction, "diarizing")
		}
	}

	if report != nil {
		report(0, "diarizing")
	}
	args := e.buildArgs(audio, outDir, job)
	if err := e.run(ctx, e.cfg.WhisperXBinary(), args, onLine); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrExternalTool, stage.Diarize, "whisperx", "diarization failed", err)
	}

	base := strings.TrimSuffix(filepath.Base(audio), filepath.Ext(audio))
	diarizedPath := filepath.Join(outDir, base+".json")
	doc, err := transcribe.LoadDocument(diarizedPath)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stage.Diarize, "whisperx", "diarized output missing or unreadable", err)
	}
	if len(doc.Segments) == 0 {
		return nil, services.Wrap(services.ErrExternalTool, stage.Diarize, "whisperx", "diarized transcript contains no segments", nil)
	}

	if report != nil {
		report(1, "diarization complete")
	}
	return &queue.StageOutput{DiarizedPath: diarizedPath}, nil
}

// HealthCheck verifies the WhisperX binary is on PATH and a token is set.
func (e *Engine) HealthCheck(ctx context.Context) stage.Health {
	if _, err := exec.LookPath(e.cfg.WhisperXBinary()); err != nil {
		return stage.Unhealthy(stage.Diarize, fmt.Sprintf("whisperx not found: %v", err))
	}
	if e.cfg.Diarization.HuggingFaceToken == "" {
		return stage.Unhealthy(stage.Diarize, "hf_token not configured")
	}
	return stage.Healthy(stage.Diarize)
}

func (e *Engine) buildArgs(audio, outDir string, job *queue.Job) []string {
	model := job.WhisperModel
	if model == "" {
		model = e.cfg.Transcription.Model
	}
	args := []string{
		audio,
		"--model", model,
		"--output_dir", outDir,
		"--output_format", "json",
		"--print_progress", "True",
		"--diarize",
		"--hf_token", e.cfg.Diarization.HuggingFaceToken,
	}
	if e.cfg.Diarization.MinSpeakers > 0 {
		args = append(args, "--min_speakers", strconv.Itoa(e.cfg.Diarization.MinSpeakers))
	}
	if e.cfg.Diarization.MaxSpeakers > 0 {
		args = append(args, "--max_speakers", strconv.Itoa(e.cfg.Diarization.MaxSpeakers))
	}
	if e.cfg.Transcription.Device != "" {
		args = append(args, "--device", e.cfg.Transcription.Device)
	}
	if e.cfg.Transcription.ComputeType != "" {
		args = append(args, "--compute_type", e.cfg.Transcription.ComputeType)
	}
	// Diarization runs after transcription, so the language is always known.
	if lang := activeLanguage(job); lang != "" {
		args = append(args, "--language", lang)
	}
	return args
}

func activeLanguage(job *queue.Job) string {
	if job.SourceLanguage != "" && job.SourceLanguage != language.Auto {
		return job.SourceLanguage
	}
	return job.DetectedLanguage
}
