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

// CreateBatchWithJobs inserts a batch and its member jobs in one transaction.
// Either everything is created or nothing is.
func (s *Store) CreateBatchWithJobs(ctx context.Context, batch *Batch, jobs []*Job) error {
	if batch == nil {
		return errors.New("batch is nil")
	}
	if len(jobs) == 0 {
		return errors.New("batch has no jobs")
	}
	ctx = ensureContext(ctx)

	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.Status == "" {
		batch.Status = BatchProcessing
	}
	now := time.Now().UTC()
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = now
	}
	batch.UpdatedAt = now
	batch.TotalJobs = len(jobs)

	for _, job := range jobs {
		if job == nil {
			return errors.New("batch contains nil job")
		}
		if strings.TrimSpace(job.InputPath) == "" {
			return errors.New("batch job input path is empty")
		}
		if job.ID == "" {
			job.ID = uuid.NewString()
		}
		job.BatchID = batch.ID
		if job.Status == "" {
			job.Status = StatusQueued
		}
		if job.SourceFilename == "" {
			job.SourceFilename = filepath.Base(job.InputPath)
		}
		if job.CreatedAt.IsZero() {
			job.CreatedAt = now
		}
		job.UpdatedAt = now
		job.TotalSteps = len(job.Stages)
	}

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin batch tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO batches (
                id, name, status, total_jobs, completed_jobs, failed_jobs,
                created_at, updated_at, completed_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			batch.ID,
			nullableString(batch.Name),
			batch.Status,
			batch.TotalJobs,
			batch.CompletedJobs,
			batch.FailedJobs,
			batch.CreatedAt.Format(time.RFC3339Nano),
			batch.UpdatedAt.Format(time.RFC3339Nano),
			nullableTime(batch.CompletedAt),
		); err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}

		for _, job := range jobs {
			if err := s.insertJob(ctx, tx.ExecContext, job); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// GetBatch fetches a batch by identifier. Missing batches return (nil, nil).
func (s *Store) GetBatch(ctx context.Context, id string) (*Batch, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = ?`, id)
	batch, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return batch, nil
}

// ListBatches returns all batches, newest first.
func (s *Store) ListBatches(ctx context.Context) ([]*Batch, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+batchColumns+` FROM batches ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var batches []*Batch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

// ListBatchJobs returns a batch's member jobs in submission order.
func (s *Store) ListBatchJobs(ctx context.Context, batchID string) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE batch_id = ? ORDER BY rowid`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch jobs: %w", err)
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

// RecomputeBatchStatus re-derives the batch aggregate from its member
// statuses and persists the result. Missing batches return (nil, nil).
func (s *Store) RecomputeBatchStatus(ctx context.Context, batchID string) (*Batch, error) {
	ctx = ensureContext(ctx)
	var updated *Batch
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin recompute tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		row := tx.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = ?`, batchID)
		batch, err := scanBatch(row)
		if errors.Is(err, sql.ErrNoRows) {
			updated = nil
			return nil
		}
		if err != nil {
			return fmt.Errorf("get batch: %w", err)
		}

		rows, err := tx.QueryContext(ctx, `SELECT status FROM jobs WHERE batch_id = ? ORDER BY rowid`, batchID)
		if err != nil {
			return fmt.Errorf("query member statuses: %w", err)
		}
		var statuses []Status
		completed := 0
		failed := 0
		for rows.Next() {
			var statusStr string
			if err := rows.Scan(&statusStr); err != nil {
				rows.Close()
				return err
			}
			status := Status(statusStr)
			statuses = append(statuses, status)
			switch status {
			case StatusCompleted:
				completed++
			case StatusFailed:
				failed++
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		batch.Status = ComputeBatchStatus(statuses)
		batch.CompletedJobs = completed
		batch.FailedJobs = failed
		batch.UpdatedAt = time.Now().UTC()
		if batch.IsTerminal() {
			if batch.CompletedAt == nil {
				now := batch.UpdatedAt
				batch.CompletedAt = &now
			}
		} else {
			batch.CompletedAt = nil
		}

		if _, err := tx.ExecContext(
			ctx,
			`UPDATE batches
             SET status = ?, completed_jobs = ?, failed_jobs = ?, updated_at = ?, completed_at = ?
             WHERE id = ?`,
			batch.Status,
			batch.CompletedJobs,
			batch.FailedJobs,
			batch.UpdatedAt.Format(time.RFC3339Nano),
			nullableTime(batch.CompletedAt),
			batch.ID,
		); err != nil {
			return fmt.Errorf("update batch: %w", err)
		}
		updated = batch
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteBatch removes a batch together with its member jobs. Batches with
// non-terminal members are rejected; missing batches report false.
func (s *Store) DeleteBatch(ctx context.Context, id string) (bool, error) {
	batch, err := s.GetBatch(ctx, id)
	if err != nil {
		return false, err
	}
	if batch == nil {
		return false, nil
	}

	var active int
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM jobs WHERE batch_id = ? AND status IN (?, ?)`,
		id, StatusQueued, StatusProcessing,
	)
	if err := row.Scan(&active); err != nil {
		return false, fmt.Errorf("count active members: %w", err)
	}
	if active > 0 {
		return false, fmt.Errorf("%w: batch %s has %d active jobs", ErrInvalidTransition, id, active)
	}

	// Member rows cascade via the batch_id foreign key.
	res, err := s.execWithRetry(ctx, `DELETE FROM batches WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete batch: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// DeleteTerminalBatchesBefore removes terminal batches (with their members)
// whose completion predates the cutoff.
func (s *Store) DeleteTerminalBatchesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM batches
         WHERE status IN (?, ?, ?)
           AND completed_at IS NOT NULL AND completed_at < ?`,
		BatchCompleted, BatchPartial, BatchFailed,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("delete terminal batches: %w", err)
	}
	return res.RowsAffected()
}

// ListActiveBatchIDs returns ids of batches not yet terminal, for the repair
// sweep that recomputes aggregates in case a terminal notification was lost.
func (s *Store) ListActiveBatchIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM batches WHERE status = ?`, BatchProcessing)
	if err != nil {
		return nil, fmt.Errorf("list active batches: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
