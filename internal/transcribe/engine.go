package transcribe

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"autosub/internal/config"
	"autosub/internal/fileutil"
	"autosub/internal/language"
	"autosub/internal/queue"
	"autosub/internal/services"
	"autosub/internal/stage"
)

// Runner executes an external command, feeding each output line to onLine.
// WhisperX reports progress and the detected language on its output stream,
// so the engine watches lines rather than waiting for the exit code.
type Runner func(ctx context.Context, name string, args []string, onLine func(line string)) error

// DefaultRunner shells out via exec.CommandContext with stdout and stderr
// merged into the line stream.
func DefaultRunner(ctx context.Context, name string, args []string, onLine func(line string)) error {
	cmd := exec.CommandContext(ctx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	var tail []string
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		tail = append(tail, line)
		if len(tail) > 20 {
			tail = tail[1:]
		}
		if onLine != nil {
			onLine(line)
		}
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(strings.Join(tail, "\n")))
	}
	return nil
}

var (
	progressPattern = regexp.MustCompile(`(?i)progress[:=]?\s*([0-9]+(?:\.[0-9]+)?)%`)
	languagePattern = regexp.MustCompile(`(?i)detected language[:]?\s*([a-z]{2,3})`)
)

// ParseProgress extracts a 0..1 fraction from a WhisperX progress line.
func ParseProgress(line string) (float64, bool) {
	match := progressPattern.FindStringSubmatch(line)
	if match == nil {
		return 0, false
	}
	percent, err := strconv.ParseFloat(match[1], 64)
	if err != nil || percent < 0 {
		return 0, false
	}
	if percent > 100 {
		percent = 100
	}
	return percent / 100, true
}

// ParseDetectedLanguage extracts the language code from a WhisperX detection
// line, normalized to the repository's canonical form.
func ParseDetectedLanguage(line string) (string, bool) {
	match := languagePattern.FindStringSubmatch(line)
	if match == nil {
		return "", false
	}
	normalized, err := language.Normalize(match[1])
	if err != nil || normalized == "" {
		return "", false
	}
	return normalized, true
}

// Engine runs WhisperX transcription for the transcribe stage.
type Engine struct {
	cfg *config.Config
	run Runner
}

// New constructs the transcribe engine.
func New(cfg *config.Config) *Engine {
	return &Engine{cfg: cfg, run: DefaultRunner}
}

// WithRunner replaces the command runner (tests).
func (e *Engine) WithRunner(run Runner) *Engine {
	if run != nil {
		e.run = run
	}
	return e
}

// Execute transcribes the job's extracted audio into a JSON transcript.
func (e *Engine) Execute(ctx context.Context, job *queue.Job, report stage.ProgressFunc) (*queue.StageOutput, error) {
	audio := job.State.AudioPath
	if audio == "" {
		return nil, services.Wrap(services.ErrStageExecution, stage.Transcribe, "transcribe", "no extracted audio recorded for job", nil)
	}

	workDir, err := fileutil.JobWorkDir(e.cfg.Paths.WorkDir, job.ID)
	if err != nil {
		return nil, services.Wrap(services.ErrStageExecution, stage.Transcribe, "transcribe", "prepare work dir", err)
	}
	outDir := filepath.Join(workDir, "transcribe")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrStageExecution, stage.Transcribe, "transcribe", "prepare output dir", err)
	}

	detected := ""
	onLine := func(line string) {
		if fraction, ok := ParseProgress(line); ok && report != nil {
			report(fraction, "transcribing")
		}
		if code, ok := ParseDetectedLanguage(line); ok {
			detected = code
		}
	}

	args := e.buildArgs(audio, outDir, job)
	if report != nil {
		report(0, "transcribing")
	}
	if err := e.run(ctx, e.cfg.WhisperXBinary(), args, onLine); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrExternalTool, stage.Transcribe, "whisperx", "transcription failed", err)
	}

	base := strings.TrimSuffix(filepath.Base(audio), filepath.Ext(audio))
	transcriptPath := filepath.Join(outDir, base+".json")
	doc, err := LoadDocument(transcriptPath)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stage.Transcribe, "whisperx", "transcript output missing or unreadable", err)
	}
	if len(doc.Segments) == 0 {
		return nil, services.Wrap(services.ErrExternalTool, stage.Transcribe, "whisperx", "transcript contains no segments", nil)
	}
	if dropped := doc.CollapseRepeats(); dropped > 0 {
		if err := doc.Save(transcriptPath); err != nil {
			return nil, services.Wrap(services.ErrStageExecution, stage.Transcribe, "transcribe", "rewrite deduplicated transcript", err)
		}
	}
	if detected == "" && doc.Language != "" {
		if normalized, err := language.Normalize(doc.Language); err == nil {
			detected = normalized
		}
	}

	out := &queue.StageOutput{TranscriptPath: transcriptPath}
	if job.SourceLanguage == language.Auto {
		out.DetectedLanguage = detected
	}
	if report != nil {
		report(1, "transcription complete")
	}
	return out, nil
}

// HealthCheck verifies the WhisperX binary is on PATH.
func (e *Engine) HealthCheck(ctx context.Context) stage.Health {
	if _, err := exec.LookPath(e.cfg.WhisperXBinary()); err != nil {
		return stage.Unhealthy(stage.Transcribe, fmt.Sprintf("whisperx not found: %v", err))
	}
	return stage.Healthy(stage.Transcribe)
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
	}
	if e.cfg.Transcription.Device != "" {
		args = append(args, "--device", e.cfg.Transcription.Device)
	}
	if e.cfg.Transcription.ComputeType != "" {
		args = append(args, "--compute_type", e.cfg.Transcription.ComputeType)
	}
	if e.cfg.Transcription.BeamSize > 0 {
		args = append(args, "--beam_size", strconv.Itoa(e.cfg.Transcription.BeamSize))
	}
	if e.cfg.Transcription.CacheDir != "" {
		args = append(args, "--model_cache_only", "False", "--model_dir", e.cfg.Transcription.CacheDir)
	}
	if job.SourceLanguage != "" && job.SourceLanguage != language.Auto {
		args = append(args, "--language", job.SourceLanguage)
	}
	return args
}
