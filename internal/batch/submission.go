package batch

import (
	"fmt"
	"strings"

	"autosub/internal/config"
	"autosub/internal/language"
	"autosub/internal/queue"
	"autosub/internal/services"
	"autosub/internal/stage"
)

// JobOptions carries the submission-time configuration shared by a batch (or
// set directly on a single job). Zero values fall back to config defaults.
type JobOptions struct {
	SourceLanguage   string
	TargetLanguage   string
	OutputFormats    []string
	Diarize          bool
	BurnIn           bool
	WhisperModel     string
	TranslationModel string
	SubtitleStyle    string
	VideoPreset      string
	Priority         int
}

// FileSpec names one input file with its per-file overrides.
type FileSpec struct {
	Path string
	// SourceLanguage overrides the shared source language when non-empty.
	SourceLanguage string
	// Priority overrides the shared priority when set.
	Priority *int
}

var knownFormats = map[string]struct{}{
	"srt": {},
	"vtt": {},
}

// BuildJob validates a submission and produces the queued job, including its
// fixed stage sequence. Validation failures are configuration errors and
// nothing is persisted.
func BuildJob(cfg *config.Config, registry *stage.Registry, inputPath string, opts JobOptions) (*queue.Job, error) {
	inputPath = strings.TrimSpace(inputPath)
	if inputPath == "" {
		return nil, services.Wrap(services.ErrConfiguration, "", "submit", "input path is required", nil)
	}

	source := opts.SourceLanguage
	if strings.TrimSpace(source) == "" {
		source = language.Auto
	}
	sourceNorm, err := language.Normalize(source)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "submit", "invalid source language", err)
	}
	targetNorm, err := language.Normalize(opts.TargetLanguage)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "submit", "invalid target language", err)
	}
	if targetNorm == language.Auto {
		return nil, services.Wrap(services.ErrConfiguration, "", "submit", "target language cannot be auto", nil)
	}

	formats := opts.OutputFormats
	if len(formats) == 0 {
		formats = cfg.Subtitles.Formats
	}
	if len(formats) == 0 {
		formats = []string{"srt"}
	}
	normalized := make([]string, 0, len(formats))
	for _, format := range formats {
		format = strings.ToLower(strings.TrimSpace(format))
		if _, ok := knownFormats[format]; !ok {
			return nil, services.Wrap(services.ErrConfiguration, "", "submit",
				fmt.Sprintf("unsupported output format %q", format), nil)
		}
		normalized = append(normalized, format)
	}

	whisperModel := strings.TrimSpace(opts.WhisperModel)
	if whisperModel == "" {
		whisperModel = cfg.Transcription.Model
	}
	translationModel := strings.TrimSpace(opts.TranslationModel)
	if translationModel == "" {
		translationModel = cfg.Translation.Model
	}
	videoPreset := strings.TrimSpace(opts.VideoPreset)
	if videoPreset == "" {
		videoPreset = cfg.Video.Preset
	}

	stages := stage.Sequence(stage.SequenceOptions{
		Diarize:        opts.Diarize,
		SourceLanguage: sourceNorm,
		TargetLanguage: targetNorm,
		BurnIn:         opts.BurnIn,
	})
	if registry != nil {
		if err := registry.Validate(stages); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "", "submit", "invalid stage sequence", err)
		}
	}

	return &queue.Job{
		InputPath:        inputPath,
		SourceLanguage:   sourceNorm,
		TargetLanguage:   targetNorm,
		OutputFormats:    normalized,
		Diarize:          opts.Diarize,
		BurnIn:           opts.BurnIn,
		WhisperModel:     whisperModel,
		TranslationModel: translationModel,
		SubtitleStyle:    opts.SubtitleStyle,
		VideoPreset:      videoPreset,
		Priority:         opts.Priority,
		Stages:           stages,
		TotalSteps:       len(stages),
	}, nil
}
