package api

import (
	"time"

	"autosub/internal/deps"
	"autosub/internal/queue"
)

// JobOptionsPayload carries the submission-time configuration of a job. All
// fields are optional; zero values fall back to daemon config defaults.
type JobOptionsPayload struct {
	SourceLanguage   string   `json:"source_language,omitempty"`
	TargetLanguage   string   `json:"target_language,omitempty"`
	OutputFormats    []string `json:"output_formats,omitempty"`
	Diarize          bool     `json:"diarize,omitempty"`
	BurnIn           bool     `json:"burn_in,omitempty"`
	WhisperModel     string   `json:"whisper_model,omitempty"`
	TranslationModel string   `json:"translation_model,omitempty"`
	SubtitleStyle    string   `json:"subtitle_style,omitempty"`
	VideoPreset      string   `json:"video_preset,omitempty"`
	Priority         int      `json:"priority,omitempty"`
}

// SubmitJobRequest creates a single job.
type SubmitJobRequest struct {
	InputPath string `json:"input_path"`
	JobOptionsPayload
}

// BatchFilePayload names one input file with per-file overrides.
type BatchFilePayload struct {
	Path           string `json:"path"`
	SourceLanguage string `json:"source_language,omitempty"`
	Priority       *int   `json:"priority,omitempty"`
}

// SubmitBatchRequest creates a batch with shared defaults.
type SubmitBatchRequest struct {
	Name     string             `json:"name,omitempty"`
	Defaults JobOptionsPayload  `json:"defaults"`
	Files    []BatchFilePayload `json:"files"`
}

// JobView is the wire representation of a job.
type JobView struct {
	ID               string            `json:"id"`
	BatchID          string            `json:"batch_id,omitempty"`
	Status           string            `json:"status"`
	InputPath        string            `json:"input_path"`
	SourceFilename   string            `json:"source_filename"`
	SourceLanguage   string            `json:"source_language"`
	TargetLanguage   string            `json:"target_language"`
	DetectedLanguage string            `json:"detected_language,omitempty"`
	OutputFormats    []string          `json:"output_formats"`
	Diarize          bool              `json:"diarize"`
	BurnIn           bool              `json:"burn_in"`
	Priority         int               `json:"priority"`
	Stages           []string          `json:"stages"`
	StepIndex        int               `json:"step_index"`
	TotalSteps       int               `json:"total_steps"`
	CurrentStage     string            `json:"current_stage,omitempty"`
	ProgressPercent  float64           `json:"progress_percent"`
	ProgressMessage  string            `json:"progress_message,omitempty"`
	SubtitlePaths    map[string]string `json:"subtitle_paths,omitempty"`
	BurnedVideoPath  string            `json:"burned_video_path,omitempty"`
	CancelRequested  bool              `json:"cancel_requested,omitempty"`
	ErrorMessage     string            `json:"error_message,omitempty"`
	Retryable        bool              `json:"retryable,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	StartedAt        *time.Time        `json:"started_at,omitempty"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// FromJob converts a stored job into its wire form.
func FromJob(job *queue.Job) JobView {
	if job == nil {
		return JobView{}
	}
	return JobView{
		ID:               job.ID,
		BatchID:          job.BatchID,
		Status:           string(job.Status),
		InputPath:        job.InputPath,
		SourceFilename:   job.SourceFilename,
		SourceLanguage:   job.SourceLanguage,
		TargetLanguage:   job.TargetLanguage,
		DetectedLanguage: job.DetectedLanguage,
		OutputFormats:    job.OutputFormats,
		Diarize:          job.Diarize,
		BurnIn:           job.BurnIn,
		Priority:         job.Priority,
		Stages:           job.Stages,
		StepIndex:        job.StepIndex,
		TotalSteps:       job.TotalSteps,
		CurrentStage:     job.CurrentStage,
		ProgressPercent:  job.ProgressPercent,
		ProgressMessage:  job.ProgressMessage,
		SubtitlePaths:    job.State.SubtitlePaths,
		BurnedVideoPath:  job.State.BurnedVideoPath,
		CancelRequested:  job.CancelRequested,
		ErrorMessage:     job.ErrorMessage,
		Retryable:        job.Retryable,
		CreatedAt:        job.CreatedAt,
		StartedAt:        job.StartedAt,
		CompletedAt:      job.CompletedAt,
		UpdatedAt:        job.UpdatedAt,
	}
}

// BatchView is the wire representation of a batch.
type BatchView struct {
	ID            string     `json:"id"`
	Name          string     `json:"name,omitempty"`
	Status        string     `json:"status"`
	TotalJobs     int        `json:"total_jobs"`
	CompletedJobs int        `json:"completed_jobs"`
	FailedJobs    int        `json:"failed_jobs"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Jobs          []JobView  `json:"jobs,omitempty"`
}

// FromBatch converts a stored batch into its wire form.
func FromBatch(batch *queue.Batch, jobs []*queue.Job) BatchView {
	if batch == nil {
		return BatchView{}
	}
	view := BatchView{
		ID:            batch.ID,
		Name:          batch.Name,
		Status:        string(batch.Status),
		TotalJobs:     batch.TotalJobs,
		CompletedJobs: batch.CompletedJobs,
		FailedJobs:    batch.FailedJobs,
		CreatedAt:     batch.CreatedAt,
		UpdatedAt:     batch.UpdatedAt,
		CompletedAt:   batch.CompletedAt,
	}
	for _, job := range jobs {
		view.Jobs = append(view.Jobs, FromJob(job))
	}
	return view
}

// JobListResponse wraps /api/jobs.
type JobListResponse struct {
	Jobs []JobView `json:"jobs"`
}

// BatchListResponse wraps /api/batches.
type BatchListResponse struct {
	Batches []BatchView `json:"batches"`
}

// CancelResponse reports the outcome of a cancel request.
type CancelResponse struct {
	Outcome   string `json:"outcome,omitempty"`
	Cancelled int    `json:"cancelled,omitempty"`
	Flagged   int    `json:"flagged,omitempty"`
	Skipped   int    `json:"skipped,omitempty"`
}

// RetryResponse reports how many jobs were re-queued.
type RetryResponse struct {
	Retried int      `json:"retried"`
	Job     *JobView `json:"job,omitempty"`
}

// StatusResponse describes the running daemon.
type StatusResponse struct {
	Running       bool           `json:"running"`
	PID           int            `json:"pid"`
	Version       string         `json:"version,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	QueueCounts   map[string]int `json:"queue_counts"`
	GateInUse     int64          `json:"gate_in_use"`
	GateCapacity  int64          `json:"gate_capacity"`
	ActiveWorkers int64          `json:"active_workers"`
	MaxWorkers    int            `json:"max_workers"`
}

// DependencyStatus mirrors deps.Status on the wire.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional,omitempty"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// FromDependencyStatuses converts preflight results into wire form.
func FromDependencyStatuses(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, DependencyStatus{
			Name:        status.Name,
			Command:     status.Command,
			Description: status.Description,
			Optional:    status.Optional,
			Available:   status.Available,
			Detail:      status.Detail,
		})
	}
	return out
}

// HealthResponse wraps /api/health.
type HealthResponse struct {
	Healthy      bool               `json:"healthy"`
	Queue        QueueHealth        `json:"queue"`
	FreeDiskGiB  float64            `json:"free_disk_gib"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// QueueHealth summarizes job counts per lifecycle state.
type QueueHealth struct {
	Total      int `json:"total"`
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
