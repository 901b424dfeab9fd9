// Package translate rewrites transcript lines into the target language via a
// local Ollama server.
package translate

import (
	"context"
	"fmt"
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
	"autosub/internal/transcribe"
)

const (
	defaultBatchLines = 20

	systemPrompt = "You are a professional subtitle translator. Translate each " +
		"numbered line into %s. Keep the meaning, register, and approximate " +
		"length of each line. Reply with the same numbered lines and nothing " +
		"else. Never merge, split, or reorder lines."
)

// Engine implements the translate stage.
type Engine struct {
	cfg    *config.Config
	client *Client
}

// New constructs the translate engine with a real Ollama client.
func New(cfg *config.Config) *Engine {
	return &Engine{
		cfg:    cfg,
		client: NewClient(cfg.Translation.BaseURL, cfg.Translation.Model, cfg.Translation.TimeoutSeconds),
	}
}

// WithClient replaces the Ollama client (tests).
func (e *Engine) WithClient(client *Client) *Engine {
	if client != nil {
		e.client = client
	}
	return e
}

// Execute translates the current transcript into the job's target language,
// batching lines per request and preserving segment timings and speakers.
func (e *Engine) Execute(ctx context.Context, job *queue.Job, report stage.ProgressFunc) (*queue.StageOutput, error) {
	sourcePath := job.State.ActiveTranscriptPath()
	if sourcePath == "" {
		return nil, services.Wrap(services.ErrStageExecution, stage.Translate, "translate", "no transcript recorded for job", nil)
	}

	// An "auto" source schedules this stage before the language is known.
	// When detection reveals the transcript is already in the target
	// language, the stage passes through instead of round-tripping every
	// line to Ollama.
	detected := job.DetectedLanguage
	if detected == "" {
		detected = job.SourceLanguage
	}
	if language.Same(detected, job.TargetLanguage) {
		if report != nil {
			report(1, fmt.Sprintf("transcript already in %s, translation skipped", language.DisplayName(job.TargetLanguage)))
		}
		return &queue.StageOutput{Message: "translation skipped"}, nil
	}
	doc, err := transcribe.LoadDocument(sourcePath)
	if err != nil {
		return nil, services.Wrap(services.ErrStageExecution, stage.Translate, "translate", "load transcript", err)
	}
	if len(doc.Segments) == 0 {
		return nil, services.Wrap(services.ErrStageExecution, stage.Translate, "translate", "transcript contains no segments", nil)
	}

	model := job.TranslationModel
	if model == "" {
		model = e.cfg.Translation.Model
	}
	client := e.client
	if model != client.Model() {
		client = NewClient(e.cfg.Translation.BaseURL, model, e.cfg.Translation.TimeoutSeconds, WithHTTPClient(e.client.httpClient))
	}

	batchSize := e.cfg.Translation.BatchLines
	if batchSize <= 0 {
		batchSize = defaultBatchLines
	}
	system := fmt.Sprintf(systemPrompt, language.DisplayName(job.TargetLanguage))

	translated := make([]transcribe.Segment, len(doc.Segments))
	copy(translated, doc.Segments)

	total := len(doc.Segments)
	for start := 0; start < total; start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + batchSize
		if end > total {
			end = total
		}
		prompt := buildPrompt(doc.Segments[start:end])
		response, err := client.Generate(ctx, system, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, services.Wrap(services.ErrExternalTool, stage.Translate, "ollama", "translation request failed", err)
		}
		lines, err := ParseNumbered(response, end-start)
		if err != nil {
			return nil, services.Wrap(services.ErrExternalTool, stage.Translate, "ollama", "malformed translation response", err)
		}
		for i, line := range lines {
			translated[start+i].Text = line
		}
		if report != nil {
			report(float64(end)/float64(total), fmt.Sprintf("translated %d/%d lines", end, total))
		}
	}

	workDir, err := fileutil.JobWorkDir(e.cfg.Paths.WorkDir, job.ID)
	if err != nil {
		return nil, services.Wrap(services.ErrStageExecution, stage.Translate, "translate", "prepare work dir", err)
	}
	outDoc := &transcribe.Document{Language: job.TargetLanguage, Segments: translated}
	outPath := filepath.Join(workDir, "translated.json")
	if err := outDoc.Save(outPath); err != nil {
		return nil, services.Wrap(services.ErrStageExecution, stage.Translate, "translate", "write translated transcript", err)
	}
	return &queue.StageOutput{TranslatedPath: outPath}, nil
}

// HealthCheck verifies the Ollama server answers.
func (e *Engine) HealthCheck(ctx context.Context) stage.Health {
	if err := e.client.Ping(ctx); err != nil {
		return stage.Unhealthy(stage.Translate, err.Error())
	}
	return stage.Healthy(stage.Translate)
}

func buildPrompt(segments []transcribe.Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		fmt.Fprintf(&b, "%d. %s\n", i+1, strings.TrimSpace(seg.Text))
	}
	return b.String()
}

var numberedLine = regexp.MustCompile(`^\s*(\d+)[.)]\s*(.*)$`)

// ParseNumbered extracts count numbered lines from a model response. The
// model occasionally wraps output in prose or code fences, so unnumbered
// lines are ignored.
func ParseNumbered(response string, count int) ([]string, error) {
	lines := make([]string, count)
	seen := 0
	for _, raw := range strings.Split(response, "\n") {
		match := numberedLine.FindStringSubmatch(raw)
		if match == nil {
			continue
		}
		index, err := strconv.Atoi(match[1])
		if err != nil || index < 1 || index > count {
			continue
		}
		if lines[index-1] == "" {
			seen++
		}
		lines[index-1] = strings.TrimSpace(match[2])
	}
	if seen != count {
		return nil, fmt.Errorf("expected %d numbered lines, found %d", count, seen)
	}
	return lines, nil
}
