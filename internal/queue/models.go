package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var allStatuses = []Status{
	StatusQueued,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// BatchStatus is the aggregate lifecycle of a batch of jobs.
type BatchStatus string

const (
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchPartial    BatchStatus = "partial"
	BatchFailed     BatchStatus = "failed"
)

// ComputeBatchStatus derives the aggregate batch status from member job
// statuses. The batch stays processing while any member can still make
// progress; otherwise the terminal mix decides the outcome.
func ComputeBatchStatus(statuses []Status) BatchStatus {
	completed := 0
	failed := 0
	for _, status := range statuses {
		switch status {
		case StatusQueued, StatusProcessing:
			return BatchProcessing
		case StatusCompleted:
			completed++
		case StatusFailed:
			failed++
		}
	}
	switch {
	case completed == len(statuses):
		return BatchCompleted
	case failed == len(statuses) && len(statuses) > 0:
		return BatchFailed
	default:
		return BatchPartial
	}
}

// StageOutput carries the artifacts a finished stage hands to the pipeline.
// Only the slots relevant to the stage are populated.
type StageOutput struct {
	AudioPath        string            `json:"audio_path,omitempty"`
	DurationSeconds  float64           `json:"duration_seconds,omitempty"`
	TranscriptPath   string            `json:"transcript_path,omitempty"`
	DiarizedPath     string            `json:"diarized_path,omitempty"`
	TranslatedPath   string            `json:"translated_path,omitempty"`
	SubtitlePaths    map[string]string `json:"subtitle_paths,omitempty"`
	BurnedVideoPath  string            `json:"burned_video_path,omitempty"`
	DetectedLanguage string            `json:"detected_language,omitempty"`
	Message          string            `json:"message,omitempty"`
}

// PipelineState accumulates stage outputs across a job's run. Slots are
// write-once: retries resume after the last completed stage and never clobber
// artifacts recorded by an earlier attempt.
type PipelineState struct {
	Completed       []string          `json:"completed,omitempty"`
	AudioPath       string            `json:"audio_path,omitempty"`
	DurationSeconds float64           `json:"duration_seconds,omitempty"`
	TranscriptPath  string            `json:"transcript_path,omitempty"`
	DiarizedPath    string            `json:"diarized_path,omitempty"`
	TranslatedPath  string            `json:"translated_path,omitempty"`
	SubtitlePaths   map[string]string `json:"subtitle_paths,omitempty"`
	BurnedVideoPath string            `json:"burned_video_path,omitempty"`
}

// HasCompleted reports whether a stage already finished in a prior attempt.
func (ps *PipelineState) HasCompleted(stage string) bool {
	if ps == nil {
		return false
	}
	for _, name := range ps.Completed {
		if name == stage {
			return true
		}
	}
	return false
}

// Apply records a finished stage and merges its output into the accumulated
// state. Already-populated slots are left untouched.
func (ps *PipelineState) Apply(stage string, out *StageOutput) {
	if ps == nil {
		return
	}
	if !ps.HasCompleted(stage) {
		ps.Completed = append(ps.Completed, stage)
	}
	if out == nil {
		return
	}
	if ps.AudioPath == "" {
		ps.AudioPath = out.AudioPath
	}
	if ps.DurationSeconds == 0 {
		ps.DurationSeconds = out.DurationSeconds
	}
	if ps.TranscriptPath == "" {
		ps.TranscriptPath = out.TranscriptPath
	}
	if ps.DiarizedPath == "" {
		ps.DiarizedPath = out.DiarizedPath
	}
	if ps.TranslatedPath == "" {
		ps.TranslatedPath = out.TranslatedPath
	}
	if ps.BurnedVideoPath == "" {
		ps.BurnedVideoPath = out.BurnedVideoPath
	}
	if len(out.SubtitlePaths) > 0 {
		if ps.SubtitlePaths == nil {
			ps.SubtitlePaths = make(map[string]string, len(out.SubtitlePaths))
		}
		for format, path := range out.SubtitlePaths {
			if _, exists := ps.SubtitlePaths[format]; !exists {
				ps.SubtitlePaths[format] = path
			}
		}
	}
}

// ActiveTranscriptPath returns the most refined transcript artifact available:
// translated wins over diarized, diarized over the raw transcript.
func (ps *PipelineState) ActiveTranscriptPath() string {
	if ps == nil {
		return ""
	}
	if ps.TranslatedPath != "" {
		return ps.TranslatedPath
	}
	if ps.DiarizedPath != "" {
		return ps.DiarizedPath
	}
	return ps.TranscriptPath
}

// Job represents a subtitle pipeline job persisted in SQLite.
type Job struct {
	ID               string
	BatchID          string
	Status           Status
	InputPath        string
	SourceFilename   string
	SourceLanguage   string
	TargetLanguage   string
	DetectedLanguage string
	OutputFormats    []string
	BurnIn           bool
	Diarize          bool
	WhisperModel     string
	TranslationModel string
	SubtitleStyle    string
	VideoPreset      string
	Priority         int
	Stages           []string
	StepIndex        int
	TotalSteps       int
	CurrentStage     string
	ProgressPercent  float64
	ProgressMessage  string
	State            PipelineState
	CancelRequested  bool
	ErrorMessage     string
	Retryable        bool
	CreatedAt        time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
	UpdatedAt        time.Time
	LastHeartbeat    *time.Time
}

// IsTerminal reports whether the job reached a terminal status.
func (j *Job) IsTerminal() bool {
	return j != nil && j.Status.IsTerminal()
}

// BandedPercent maps a stage-local fraction (0..1) into the overall progress
// band for the current step.
func (j *Job) BandedPercent(fraction float64) float64 {
	if j == nil || j.TotalSteps <= 0 {
		return 0
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	percent := (float64(j.StepIndex) + fraction) / float64(j.TotalSteps) * 100
	if percent > 100 {
		percent = 100
	}
	return percent
}

// SetProgress updates the stage, message, and percent fields together.
// Percent never moves backwards within a run.
func (j *Job) SetProgress(stage, message string, percent float64) {
	if j == nil {
		return
	}
	j.CurrentStage = stage
	j.ProgressMessage = message
	if percent > j.ProgressPercent {
		j.ProgressPercent = percent
	}
}

// AdvanceStep records a finished stage: the step index moves past it and the
// overall percent snaps to the completed-steps formula.
func (j *Job) AdvanceStep(stage string) {
	if j == nil {
		return
	}
	if j.StepIndex < j.TotalSteps {
		j.StepIndex++
	}
	j.CurrentStage = stage
	if j.TotalSteps > 0 {
		j.ProgressPercent = float64(j.StepIndex) / float64(j.TotalSteps) * 100
	}
}

// SetFailed marks the job failed with the stage error's verbatim message.
func (j *Job) SetFailed(message string, retryable bool) {
	if j == nil {
		return
	}
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.Retryable = retryable
	j.ProgressMessage = message
	j.LastHeartbeat = nil
}

// SetCancelled marks the job cancelled.
func (j *Job) SetCancelled(message string) {
	if j == nil {
		return
	}
	j.Status = StatusCancelled
	j.ProgressMessage = message
	j.CancelRequested = false
	j.LastHeartbeat = nil
}

// SetCompleted marks the job completed with full progress.
func (j *Job) SetCompleted(message string) {
	if j == nil {
		return
	}
	j.Status = StatusCompleted
	j.ErrorMessage = ""
	j.Retryable = false
	j.ProgressPercent = 100
	j.ProgressMessage = message
	j.LastHeartbeat = nil
}

// Batch groups jobs submitted together.
type Batch struct {
	ID            string
	Name          string
	Status        BatchStatus
	TotalJobs     int
	CompletedJobs int
	FailedJobs    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

// IsTerminal reports whether the batch reached a terminal aggregate status.
func (b *Batch) IsTerminal() bool {
	if b == nil {
		return false
	}
	switch b.Status {
	case BatchCompleted, BatchPartial, BatchFailed:
		return true
	default:
		return false
	}
}

// HealthSummary describes aggregated job counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Queued     int
	Processing int
	Completed  int
	Failed     int
	Cancelled  int
}

// DatabaseHealth captures diagnostic information about the job database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}
