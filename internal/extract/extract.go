// Package extract pulls the audio track out of an input video as a 16 kHz
// mono WAV, the input format WhisperX expects.
package extract

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"autosub/internal/config"
	"autosub/internal/fileutil"
	"autosub/internal/media/ffprobe"
	"autosub/internal/queue"
	"autosub/internal/services"
	"autosub/internal/stage"
)

// Runner executes an external command and returns its error.
type Runner func(ctx context.Context, name string, args ...string) error

// Prober inspects a media file.
type Prober func(ctx context.Context, path string) (ffprobe.Result, error)

// Engine implements the extract stage.
type Engine struct {
	cfg   *config.Config
	run   Runner
	probe Prober
}

// New constructs the extract engine with real ffmpeg/ffprobe invocations.
func New(cfg *config.Config) *Engine {
	e := &Engine{cfg: cfg}
	e.run = func(ctx context.Context, name string, args ...string) error {
		cmd := exec.CommandContext(ctx, name, args...)
		if output, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
		}
		return nil
	}
	e.probe = func(ctx context.Context, path string) (ffprobe.Result, error) {
		return ffprobe.Inspect(ctx, cfg.FFprobeBinary(), path)
	}
	return e
}

// WithRunner replaces the ffmpeg runner (tests).
func (e *Engine) WithRunner(run Runner) *Engine {
	if run != nil {
		e.run = run
	}
	return e
}

// WithProber replaces the ffprobe call (tests).
func (e *Engine) WithProber(probe Prober) *Engine {
	if probe != nil {
		e.probe = probe
	}
	return e
}

// Execute probes the input for duration and audio presence, then extracts the
// first audio stream into the job work dir.
func (e *Engine) Execute(ctx context.Context, job *queue.Job, report stage.ProgressFunc) (*queue.StageOutput, error) {
	if job.InputPath == "" {
		return nil, services.Wrap(services.ErrStageExecution, stage.Extract, "extract", "job has no input path", nil)
	}

	if report != nil {
		report(0, "probing input")
	}
	probed, err := e.probe(ctx, job.InputPath)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrExternalTool, stage.Extract, "ffprobe", "probe input", err)
	}
	if probed.AudioStreamCount() == 0 {
		return nil, services.Wrap(services.ErrStageExecution, stage.Extract, "extract", "input has no audio stream", nil)
	}

	workDir, err := fileutil.JobWorkDir(e.cfg.Paths.WorkDir, job.ID)
	if err != nil {
		return nil, services.Wrap(services.ErrStageExecution, stage.Extract, "extract", "prepare work dir", err)
	}
	audioPath := filepath.Join(workDir, "audio.wav")

	if report != nil {
		report(0.1, "extracting audio")
	}
	args := []string{
		"-y", "-nostdin",
		"-i", job.InputPath,
		"-vn",
		"-map", "0:a:0",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		audioPath,
	}
	if err := e.run(ctx, e.cfg.FFmpegBinary(), args...); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrExternalTool, stage.Extract, "ffmpeg", "audio extraction failed", err)
	}

	if report != nil {
		report(1, "audio extracted")
	}
	return &queue.StageOutput{
		AudioPath:       audioPath,
		DurationSeconds: probed.DurationSeconds(),
	}, nil
}

// HealthCheck verifies ffmpeg and ffprobe are on PATH.
func (e *Engine) HealthCheck(ctx context.Context) stage.Health {
	for _, binary := range []string{e.cfg.FFmpegBinary(), e.cfg.FFprobeBinary()} {
		if _, err := exec.LookPath(binary); err != nil {
			return stage.Unhealthy(stage.Extract, fmt.Sprintf("%s not found: %v", binary, err))
		}
	}
	return stage.Healthy(stage.Extract)
}
