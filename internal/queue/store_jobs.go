package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateJob persists a new job. A missing ID is assigned, timestamps are
// stamped, and the status defaults to queued.
func (s *Store) CreateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if strings.TrimSpace(job.InputPath) == "" {
		return errors.New("job input path is empty")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = StatusQueued
	}
	if job.SourceFilename == "" {
		job.SourceFilename = filepath.Base(job.InputPath)
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	job.TotalSteps = len(job.Stages)

	return s.insertJob(ctx, s.execWithRetry, job)
}

type execFunc func(ctx context.Context, query string, args ...any) (sql.Result, error)

func (s *Store) insertJob(ctx context.Context, exec execFunc, job *Job) error {
	formats, err := encodeStringSlice(job.OutputFormats)
	if err != nil {
		return fmt.Errorf("encode output formats: %w", err)
	}
	stages, err := encodeStringSlice(job.Stages)
	if err != nil {
		return fmt.Errorf("encode stages: %w", err)
	}
	state, err := encodePipelineState(job.State)
	if err != nil {
		return fmt.Errorf("encode pipeline state: %w", err)
	}

	if _, err := exec(
		ctx,
		`INSERT INTO jobs (
            id, batch_id, status, input_path, source_filename, source_language,
            target_language, detected_language, output_formats, burn_in, diarize,
            whisper_model, translation_model, subtitle_style, video_preset,
            priority, stages, step_index, total_steps, current_stage,
            progress_percent, progress_message, pipeline_state, cancel_requested,
            error_message, retryable, created_at, started_at, completed_at,
            updated_at, last_heartbeat
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		nullableString(job.BatchID),
		job.Status,
		job.InputPath,
		nullableString(job.SourceFilename),
		nullableString(job.SourceLanguage),
		nullableString(job.TargetLanguage),
		nullableString(job.DetectedLanguage),
		formats,
		boolToInt(job.BurnIn),
		boolToInt(job.Diarize),
		nullableString(job.WhisperModel),
		nullableString(job.TranslationModel),
		nullableString(job.SubtitleStyle),
		nullableString(job.VideoPreset),
		job.Priority,
		stages,
		job.StepIndex,
		job.TotalSteps,
		nullableString(job.CurrentStage),
		job.ProgressPercent,
		nullableString(job.ProgressMessage),
		state,
		boolToInt(job.CancelRequested),
		nullableString(job.ErrorMessage),
		boolToInt(job.Retryable),
		job.CreatedAt.Format(time.RFC3339Nano),
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
		job.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(job.LastHeartbeat),
	); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob fetches a job by identifier. Missing jobs return (nil, nil).
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// JobFilter narrows ListJobs results.
type JobFilter struct {
	Statuses []Status
	BatchID  string
	Limit    int
}

// ListJobs returns jobs matching the filter, newest first.
func (s *Store) ListJobs(ctx context.Context, filter JobFilter) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var clauses []string
	var args []any

	if len(filter.Statuses) > 0 {
		clauses = append(clauses, `status IN (`+makePlaceholders(len(filter.Statuses))+`)`)
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	if filter.BatchID != "" {
		clauses = append(clauses, `batch_id = ?`)
		args = append(args, filter.BatchID)
	}
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, ` AND `)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateJob persists the full job row. The runner is the single writer while
// a job is processing.
func (s *Store) UpdateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	formats, err := encodeStringSlice(job.OutputFormats)
	if err != nil {
		return fmt.Errorf("encode output formats: %w", err)
	}
	stages, err := encodeStringSlice(job.Stages)
	if err != nil {
		return fmt.Errorf("encode stages: %w", err)
	}
	state, err := encodePipelineState(job.State)
	if err != nil {
		return fmt.Errorf("encode pipeline state: %w", err)
	}
	job.UpdatedAt = time.Now().UTC()

	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs
         SET batch_id = ?, status = ?, input_path = ?, source_filename = ?,
             source_language = ?, target_language = ?, detected_language = ?,
             output_formats = ?, burn_in = ?, diarize = ?, whisper_model = ?,
             translation_model = ?, subtitle_style = ?, video_preset = ?,
             priority = ?, stages = ?, step_index = ?, total_steps = ?,
             current_stage = ?, progress_percent = ?, progress_message = ?,
             pipeline_state = ?, cancel_requested = ?, error_message = ?,
             retryable = ?, started_at = ?, completed_at = ?, updated_at = ?,
             last_heartbeat = ?
         WHERE id = ?`,
		nullableString(job.BatchID),
		job.Status,
		job.InputPath,
		nullableString(job.SourceFilename),
		nullableString(job.SourceLanguage),
		nullableString(job.TargetLanguage),
		nullableString(job.DetectedLanguage),
		formats,
		boolToInt(job.BurnIn),
		boolToInt(job.Diarize),
		nullableString(job.WhisperModel),
		nullableString(job.TranslationModel),
		nullableString(job.SubtitleStyle),
		nullableString(job.VideoPreset),
		job.Priority,
		stages,
		job.StepIndex,
		job.TotalSteps,
		nullableString(job.CurrentStage),
		job.ProgressPercent,
		nullableString(job.ProgressMessage),
		state,
		boolToInt(job.CancelRequested),
		nullableString(job.ErrorMessage),
		boolToInt(job.Retryable),
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
		job.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(job.LastHeartbeat),
		job.ID,
	); err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// UpdateProgress writes only the progress columns, leaving the rest of the
// row untouched.
func (s *Store) UpdateProgress(ctx context.Context, id, currentStage string, stepIndex int, percent float64, message string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs
         SET current_stage = ?, step_index = ?, progress_percent = ?,
             progress_message = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(currentStage),
		stepIndex,
		percent,
		nullableString(message),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// MarkProcessing claims a queued job for execution. The conditional update
// makes the claim atomic: a false return means another worker got there first
// or the job left the queued state.
func (s *Store) MarkProcessing(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, started_at = COALESCE(started_at, ?), last_heartbeat = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusProcessing,
		now,
		now,
		now,
		id,
		StatusQueued,
	)
	if err != nil {
		return false, fmt.Errorf("mark processing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkTerminal persists a job that reached a terminal status, stamping the
// completion time.
func (s *Store) MarkTerminal(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if !job.Status.IsTerminal() {
		return fmt.Errorf("%w: status %s is not terminal", ErrInvalidTransition, job.Status)
	}
	if job.CompletedAt == nil {
		now := time.Now().UTC()
		job.CompletedAt = &now
	}
	job.LastHeartbeat = nil
	return s.UpdateJob(ctx, job)
}

// CancelOutcome reports how a cancellation request was applied.
type CancelOutcome string

const (
	CancelOutcomeNotFound  CancelOutcome = "not_found"
	CancelOutcomeCancelled CancelOutcome = "cancelled"
	CancelOutcomeFlagged   CancelOutcome = "flagged"
	CancelOutcomeNoop      CancelOutcome = "noop"
)

// RequestCancel applies the cancellation rules: a queued job transitions to
// cancelled directly, a processing job has its cancel flag set for the runner
// to honor at the next stage boundary, and terminal jobs are left untouched.
func (s *Store) RequestCancel(ctx context.Context, id string) (CancelOutcome, error) {
	ctx = ensureContext(ctx)
	outcome := CancelOutcomeNotFound
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin cancel tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var statusStr string
		row := tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, id)
		if err := row.Scan(&statusStr); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				outcome = CancelOutcomeNotFound
				return nil
			}
			return fmt.Errorf("read job status: %w", err)
		}

		now := time.Now().UTC().Format(time.RFC3339Nano)
		switch Status(statusStr) {
		case StatusQueued:
			if _, err := tx.ExecContext(ctx,
				`UPDATE jobs
                 SET status = ?, progress_message = ?, completed_at = ?, updated_at = ?, cancel_requested = 0
                 WHERE id = ?`,
				StatusCancelled, "cancelled before start", now, now, id,
			); err != nil {
				return fmt.Errorf("cancel queued job: %w", err)
			}
			outcome = CancelOutcomeCancelled
		case StatusProcessing:
			if _, err := tx.ExecContext(ctx,
				`UPDATE jobs SET cancel_requested = 1, updated_at = ? WHERE id = ?`,
				now, id,
			); err != nil {
				return fmt.Errorf("flag cancellation: %w", err)
			}
			outcome = CancelOutcomeFlagged
		default:
			outcome = CancelOutcomeNoop
		}
		return tx.Commit()
	})
	if err != nil {
		return CancelOutcomeNotFound, err
	}
	return outcome, nil
}

// ResetForRetry returns a failed or cancelled job to the queue. Pipeline
// state survives so the run resumes after the last completed stage; completed
// and in-flight jobs are rejected.
func (s *Store) ResetForRetry(ctx context.Context, id string) (*Job, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	switch job.Status {
	case StatusFailed, StatusCancelled:
	default:
		return nil, fmt.Errorf("%w: cannot retry job in status %s", ErrInvalidTransition, job.Status)
	}

	job.Status = StatusQueued
	job.ErrorMessage = ""
	job.Retryable = false
	job.CancelRequested = false
	job.CompletedAt = nil
	job.LastHeartbeat = nil
	job.StepIndex = len(job.State.Completed)
	if job.StepIndex > job.TotalSteps {
		job.StepIndex = job.TotalSteps
	}
	if job.TotalSteps > 0 {
		job.ProgressPercent = float64(job.StepIndex) / float64(job.TotalSteps) * 100
	} else {
		job.ProgressPercent = 0
	}
	job.CurrentStage = ""
	job.ProgressMessage = "retry requested"

	if err := s.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// NextQueued returns the next job to dispatch: highest priority first, then
// submission order.
func (s *Store) NextQueued(ctx context.Context) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY priority DESC, created_at, rowid LIMIT 1`,
		StatusQueued,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next queued: %w", err)
	}
	return job, nil
}

// CountByStatus returns a count of jobs grouped by status.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// DeleteJob removes a terminal job. Deleting a job that is queued or
// processing is rejected; missing jobs report false without error.
func (s *Store) DeleteJob(ctx context.Context, id string) (bool, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	if !job.Status.IsTerminal() {
		return false, fmt.Errorf("%w: cannot delete job in status %s", ErrInvalidTransition, job.Status)
	}
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE id = ? AND status IN (?, ?, ?)`,
		id, StatusCompleted, StatusFailed, StatusCancelled)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// DeleteTerminalBefore removes terminal jobs (outside batches) whose
// completion predates the cutoff. Batch members are removed with their batch.
func (s *Store) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM jobs
         WHERE batch_id IS NULL AND status IN (?, ?, ?)
           AND completed_at IS NOT NULL AND completed_at < ?`,
		StatusCompleted, StatusFailed, StatusCancelled,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("delete terminal jobs: %w", err)
	}
	return res.RowsAffected()
}
