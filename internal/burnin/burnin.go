// Package burnin re-encodes the input video with subtitles rendered into the
// picture.
package burnin

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"autosub/internal/config"
	"autosub/internal/fileutil"
	"autosub/internal/queue"
	"autosub/internal/services"
	"autosub/internal/stage"
	"autosub/internal/subtitles"
	"autosub/internal/textutil"
)

// Runner executes ffmpeg, feeding each output line to onLine. The engine
// passes -progress pipe:1 so ffmpeg emits parseable key=value lines.
type Runner func(ctx context.Context, name string, args []string, onLine func(line string)) error

func defaultRunner(ctx context.Context, name string, args []string, onLine func(line string)) error {
	cmd := exec.CommandContext(ctx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if onLine != nil {
			onLine(scanner.Text())
		}
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// ParseOutTime extracts elapsed encode time in seconds from an ffmpeg
// progress line (out_time_us= or out_time_ms=, both microseconds).
func ParseOutTime(line string) (float64, bool) {
	line = strings.TrimSpace(line)
	for _, key := range []string{"out_time_us=", "out_time_ms="} {
		if value, found := strings.CutPrefix(line, key); found {
			micros, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil || micros < 0 {
				return 0, false
			}
			return float64(micros) / 1e6, true
		}
	}
	return 0, false
}

// Engine implements the burn_in stage.
type Engine struct {
	cfg *config.Config
	run Runner
}

// New constructs the burn-in engine.
func New(cfg *config.Config) *Engine {
	return &Engine{cfg: cfg, run: defaultRunner}
}

// WithRunner replaces the ffmpeg runner (tests).
func (e *Engine) WithRunner(run Runner) *Engine {
	if run != nil {
		e.run = run
	}
	return e
}

// Execute re-encodes the input with the SRT artifact rendered in, writing a
// hardsubbed MP4 into the output directory.
func (e *Engine) Execute(ctx context.Context, job *queue.Job, report stage.ProgressFunc) (*queue.StageOutput, error) {
	subtitlePath := job.State.SubtitlePaths["srt"]
	if subtitlePath == "" {
		for _, path := range job.State.SubtitlePaths {
			subtitlePath = path
			break
		}
	}
	if subtitlePath == "" {
		return nil, services.Wrap(services.ErrStageExecution, stage.BurnIn, "burn-in", "no subtitle artifact recorded for job", nil)
	}

	workDir, err := fileutil.JobWorkDir(e.cfg.Paths.WorkDir, job.ID)
	if err != nil {
		return nil, services.Wrap(services.ErrStageExecution, stage.BurnIn, "burn-in", "prepare work dir", err)
	}

	base := strings.TrimSuffix(job.SourceFilename, filepath.Ext(job.SourceFilename))
	if base == "" {
		base = strings.TrimSuffix(filepath.Base(job.InputPath), filepath.Ext(job.InputPath))
	}
	base = textutil.SanitizeFileName(base)
	tmpPath := filepath.Join(workDir, "burnin.mp4")
	finalPath := filepath.Join(e.cfg.Paths.OutputDir, fmt.Sprintf("%s.%s.hardsub.mp4", base, job.TargetLanguage))

	total := job.State.DurationSeconds
	onLine := func(line string) {
		elapsed, ok := ParseOutTime(line)
		if !ok || total <= 0 || report == nil {
			return
		}
		report(elapsed/total, "encoding")
	}

	if report != nil {
		report(0, "encoding")
	}
	args := e.buildArgs(job.InputPath, subtitlePath, tmpPath)
	if err := e.run(ctx, e.cfg.FFmpegBinary(), args, onLine); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrExternalTool, stage.BurnIn, "ffmpeg", "burn-in encode failed", err)
	}
	if err := fileutil.MoveFile(tmpPath, finalPath); err != nil {
		return nil, services.Wrap(services.ErrStageExecution, stage.BurnIn, "burn-in", "move encoded video", err)
	}

	if report != nil {
		report(1, "encode complete")
	}
	return &queue.StageOutput{BurnedVideoPath: finalPath}, nil
}

// HealthCheck verifies ffmpeg is on PATH.
func (e *Engine) HealthCheck(ctx context.Context) stage.Health {
	if _, err := exec.LookPath(e.cfg.FFmpegBinary()); err != nil {
		return stage.Unhealthy(stage.BurnIn, fmt.Sprintf("ffmpeg not found: %v", err))
	}
	return stage.Healthy(stage.BurnIn)
}

func (e *Engine) buildArgs(input, subtitlePath, output string) []string {
	filter := fmt.Sprintf("subtitles=%s", escapeFilterPath(subtitlePath))
	style := subtitles.StyleFromConfig(e.cfg).ForceStyle()
	if style != "" {
		filter += fmt.Sprintf(":force_style='%s'", style)
	}

	preset := e.cfg.Video.Preset
	if preset == "" {
		preset = "medium"
	}
	crf := e.cfg.Video.CRF
	if crf <= 0 {
		crf = 23
	}
	return []string{
		"-y", "-nostdin",
		"-i", input,
		"-vf", filter,
		"-c:v", "libx264",
		"-preset", preset,
		"-crf", strconv.Itoa(crf),
		"-c:a", "copy",
		"-progress", "pipe:1",
		"-nostats",
		output,
	}
}

// escapeFilterPath quotes characters that are special inside an ffmpeg
// filter graph argument.
func escapeFilterPath(path string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`:`, `\:`,
		`'`, `\'`,
		`[`, `\[`,
		`]`, `\]`,
		`,`, `\,`,
		`;`, `\;`,
	)
	return replacer.Replace(path)
}
