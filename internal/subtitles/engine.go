package subtitles

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"autosub/internal/config"
	"autosub/internal/queue"
	"autosub/internal/services"
	"autosub/internal/stage"
	"autosub/internal/textutil"
	"autosub/internal/transcribe"
)

const defaultMaxLineChars = 42

// Engine implements the build_subtitles stage.
type Engine struct {
	cfg *config.Config
}

// New constructs the subtitle assembly engine.
func New(cfg *config.Config) *Engine {
	return &Engine{cfg: cfg}
}

// Execute renders the final transcript into one subtitle file per requested
// format and moves them into the output directory.
func (e *Engine) Execute(ctx context.Context, job *queue.Job, report stage.ProgressFunc) (*queue.StageOutput, error) {
	sourcePath := job.State.ActiveTranscriptPath()
	if sourcePath == "" {
		return nil, services.Wrap(services.ErrStageExecution, stage.BuildSubtitles, "build", "no transcript recorded for job", nil)
	}
	doc, err := transcribe.LoadDocument(sourcePath)
	if err != nil {
		return nil, services.Wrap(services.ErrStageExecution, stage.BuildSubtitles, "build", "load transcript", err)
	}

	maxChars := e.cfg.Subtitles.MaxLineChars
	if maxChars <= 0 {
		maxChars = defaultMaxLineChars
	}
	cues := BuildCues(doc, maxChars, job.Diarize)
	if len(cues) == 0 {
		return nil, services.Wrap(services.ErrStageExecution, stage.BuildSubtitles, "build", "transcript produced no cues", nil)
	}

	formats := job.OutputFormats
	if len(formats) == 0 {
		formats = []string{"srt"}
	}
	if err := os.MkdirAll(e.cfg.Paths.OutputDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrStageExecution, stage.BuildSubtitles, "build", "prepare output dir", err)
	}

	base := strings.TrimSuffix(job.SourceFilename, filepath.Ext(job.SourceFilename))
	if base == "" {
		base = strings.TrimSuffix(filepath.Base(job.InputPath), filepath.Ext(job.InputPath))
	}
	base = textutil.SanitizeFileName(base)
	lang := job.TargetLanguage

	paths := make(map[string]string, len(formats))
	for i, format := range formats {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var content string
		switch format {
		case "srt":
			content = FormatSRT(cues)
		case "vtt":
			content = FormatVTT(cues)
		default:
			return nil, services.Wrap(services.ErrConfiguration, stage.BuildSubtitles, "build",
				fmt.Sprintf("unsupported output format %q", format), nil)
		}
		outPath := filepath.Join(e.cfg.Paths.OutputDir, fmt.Sprintf("%s.%s.%s", base, lang, format))
		if err := os.WriteFile(outPath, []byte(content), 0o644); err != nil {
			return nil, services.Wrap(services.ErrStageExecution, stage.BuildSubtitles, "build", "write subtitle file", err)
		}
		paths[format] = outPath
		if report != nil {
			report(float64(i+1)/float64(len(formats)), fmt.Sprintf("wrote %s", filepath.Base(outPath)))
		}
	}

	return &queue.StageOutput{SubtitlePaths: paths}, nil
}

// HealthCheck always reports ready: assembly needs no external tools.
func (e *Engine) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy(stage.BuildSubtitles)
}
