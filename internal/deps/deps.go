// Package deps checks the external tools the pipeline shells out to.
package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"autosub/internal/config"
	"autosub/internal/translate"
)

// Requirement defines an external dependency the pipeline relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Required returns the binary requirements derived from configuration.
func Required(cfg *config.Config) []Requirement {
	return []Requirement{
		{Name: "FFmpeg", Command: cfg.FFmpegBinary(), Description: "audio extraction and subtitle burn-in"},
		{Name: "FFprobe", Command: cfg.FFprobeBinary(), Description: "media inspection"},
		{Name: "WhisperX", Command: cfg.WhisperXBinary(), Description: "transcription and diarization"},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// CheckOllama probes the translation backend. Translation only runs when the
// target differs from the source, so an unreachable server is reported as an
// optional dependency rather than a hard failure.
func CheckOllama(ctx context.Context, cfg *config.Config) Status {
	status := Status{
		Name:        "Ollama",
		Command:     cfg.Translation.BaseURL,
		Description: "subtitle translation backend",
		Optional:    true,
	}
	client := translate.NewClient(cfg.Translation.BaseURL, cfg.Translation.Model, cfg.Translation.TimeoutSeconds)
	if err := client.Ping(ctx); err != nil {
		status.Available = false
		status.Detail = err.Error()
		return status
	}
	status.Available = true
	return status
}

// Check runs the full preflight: required binaries plus the Ollama probe.
func Check(ctx context.Context, cfg *config.Config) []Status {
	results := CheckBinaries(Required(cfg))
	return append(results, CheckOllama(ctx, cfg))
}

// MissingRequired filters statuses down to unavailable non-optional entries.
func MissingRequired(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}
