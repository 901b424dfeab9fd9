package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const jobColumns = "id, batch_id, status, input_path, source_filename, source_language, target_language, detected_language, output_formats, burn_in, diarize, whisper_model, translation_model, subtitle_style, video_preset, priority, stages, step_index, total_steps, current_stage, progress_percent, progress_message, pipeline_state, cancel_requested, error_message, retryable, created_at, started_at, completed_at, updated_at, last_heartbeat"

const batchColumns = "id, name, status, total_jobs, completed_jobs, failed_jobs, created_at, updated_at, completed_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id               string
		batchID          sql.NullString
		statusStr        string
		inputPath        sql.NullString
		sourceFilename   sql.NullString
		sourceLanguage   sql.NullString
		targetLanguage   sql.NullString
		detectedLanguage sql.NullString
		outputFormats    sql.NullString
		burnIn           sql.NullInt64
		diarize          sql.NullInt64
		whisperModel     sql.NullString
		translationModel sql.NullString
		subtitleStyle    sql.NullString
		videoPreset      sql.NullString
		priority         sql.NullInt64
		stagesRaw        sql.NullString
		stepIndex        sql.NullInt64
		totalSteps       sql.NullInt64
		currentStage     sql.NullString
		progressPercent  sql.NullFloat64
		progressMessage  sql.NullString
		pipelineState    sql.NullString
		cancelRequested  sql.NullInt64
		errorMessage     sql.NullString
		retryable        sql.NullInt64
		createdRaw       sql.NullString
		startedRaw       sql.NullString
		completedRaw     sql.NullString
		updatedRaw       sql.NullString
		lastHeartbeatRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&batchID,
		&statusStr,
		&inputPath,
		&sourceFilename,
		&sourceLanguage,
		&targetLanguage,
		&detectedLanguage,
		&outputFormats,
		&burnIn,
		&diarize,
		&whisperModel,
		&translationModel,
		&subtitleStyle,
		&videoPreset,
		&priority,
		&stagesRaw,
		&stepIndex,
		&totalSteps,
		&currentStage,
		&progressPercent,
		&progressMessage,
		&pipelineState,
		&cancelRequested,
		&errorMessage,
		&retryable,
		&createdRaw,
		&startedRaw,
		&completedRaw,
		&updatedRaw,
		&lastHeartbeatRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:               id,
		BatchID:          batchID.String,
		Status:           Status(statusStr),
		InputPath:        inputPath.String,
		SourceFilename:   sourceFilename.String,
		SourceLanguage:   sourceLanguage.String,
		TargetLanguage:   targetLanguage.String,
		DetectedLanguage: detectedLanguage.String,
		WhisperModel:     whisperModel.String,
		TranslationModel: translationModel.String,
		SubtitleStyle:    subtitleStyle.String,
		VideoPreset:      videoPreset.String,
		Priority:         int(priority.Int64),
		StepIndex:        int(stepIndex.Int64),
		TotalSteps:       int(totalSteps.Int64),
		CurrentStage:     currentStage.String,
		ProgressPercent:  progressPercent.Float64,
		ProgressMessage:  progressMessage.String,
		ErrorMessage:     errorMessage.String,
	}
	job.BurnIn = burnIn.Int64 != 0
	job.Diarize = diarize.Int64 != 0
	job.CancelRequested = cancelRequested.Int64 != 0
	job.Retryable = retryable.Int64 != 0

	if formats, err := decodeStringSlice(outputFormats.String); err == nil {
		job.OutputFormats = formats
	}
	if stages, err := decodeStringSlice(stagesRaw.String); err == nil {
		job.Stages = stages
	}
	if pipelineState.Valid && pipelineState.String != "" {
		if err := json.Unmarshal([]byte(pipelineState.String), &job.State); err != nil {
			return nil, fmt.Errorf("decode pipeline state for job %s: %w", id, err)
		}
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			job.StartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			job.CompletedAt = &completed
		}
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			job.LastHeartbeat = &heartbeat
		}
	}
	return job, nil
}

func scanBatch(scanner interface{ Scan(dest ...any) error }) (*Batch, error) {
	var (
		id            string
		name          sql.NullString
		statusStr     string
		totalJobs     sql.NullInt64
		completedJobs sql.NullInt64
		failedJobs    sql.NullInt64
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
		completedRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&name,
		&statusStr,
		&totalJobs,
		&completedJobs,
		&failedJobs,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	batch := &Batch{
		ID:            id,
		Name:          name.String,
		Status:        BatchStatus(statusStr),
		TotalJobs:     int(totalJobs.Int64),
		CompletedJobs: int(completedJobs.Int64),
		FailedJobs:    int(failedJobs.Int64),
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		batch.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		batch.UpdatedAt = updated
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			batch.CompletedAt = &completed
		}
	}
	return batch, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func encodeStringSlice(values []string) (string, error) {
	if len(values) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeStringSlice(raw string) ([]string, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, err
	}
	return values, nil
}

func encodePipelineState(state PipelineState) (string, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
