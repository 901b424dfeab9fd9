package batch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"autosub/internal/config"
	"autosub/internal/logging"
	"autosub/internal/notifications"
	"autosub/internal/progress"
	"autosub/internal/queue"
	"autosub/internal/scheduler"
	"autosub/internal/services"
	"autosub/internal/stage"
)

// Coordinator owns batch lifecycle operations.
type Coordinator struct {
	cfg      *config.Config
	store    *queue.Store
	sched    *scheduler.Scheduler
	registry *stage.Registry
	logger   *slog.Logger
	notifier notifications.Service
	bus      *progress.Bus
}

// NewCoordinator constructs a coordinator. The scheduler may be nil in tests
// that drive jobs manually.
func NewCoordinator(cfg *config.Config, store *queue.Store, sched *scheduler.Scheduler, registry *stage.Registry, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		cfg:      cfg,
		store:    store,
		sched:    sched,
		registry: registry,
		logger:   logger,
	}
}

// WithNotifier attaches a notification service for terminal job and batch
// events.
func (c *Coordinator) WithNotifier(notifier notifications.Service) *Coordinator {
	c.notifier = notifier
	return c
}

// WithBus attaches the progress bus so jobs cancelled straight from queued
// still deliver a terminal event to their watchers.
func (c *Coordinator) WithBus(bus *progress.Bus) *Coordinator {
	c.bus = bus
	return c
}

// Request describes a batch submission: a shared configuration applied to
// every file, with per-file overrides merged in.
type Request struct {
	Name     string
	Defaults JobOptions
	Files    []FileSpec
}

// Create validates the whole request, then creates the batch and its member
// jobs in a single transaction and nudges the scheduler. A validation failure
// on any file means nothing is created.
func (c *Coordinator) Create(ctx context.Context, req Request) (*queue.Batch, []*queue.Job, error) {
	if len(req.Files) == 0 {
		return nil, nil, services.Wrap(services.ErrConfiguration, "", "create batch", "batch requires at least one file", nil)
	}

	jobs := make([]*queue.Job, 0, len(req.Files))
	for i, file := range req.Files {
		opts := req.Defaults
		if strings.TrimSpace(file.SourceLanguage) != "" {
			opts.SourceLanguage = file.SourceLanguage
		}
		if file.Priority != nil {
			opts.Priority = *file.Priority
		}
		job, err := BuildJob(c.cfg, c.registry, file.Path, opts)
		if err != nil {
			return nil, nil, fmt.Errorf("file %d (%s): %w", i+1, file.Path, err)
		}
		jobs = append(jobs, job)
	}

	batch := &queue.Batch{
		Name:   strings.TrimSpace(req.Name),
		Status: queue.BatchProcessing,
	}
	if err := c.store.CreateBatchWithJobs(ctx, batch, jobs); err != nil {
		return nil, nil, err
	}

	c.logger.Info("batch created",
		logging.String(logging.FieldBatchID, batch.ID),
		logging.Int("jobs", len(jobs)),
	)
	if c.sched != nil {
		c.sched.Kick()
	}
	return batch, jobs, nil
}

// OnJobTerminal recomputes the batch aggregate after a member job reached a
// terminal status and emits notifications. Jobs outside batches only notify.
func (c *Coordinator) OnJobTerminal(ctx context.Context, job *queue.Job) {
	if job == nil {
		return
	}
	c.notifyJob(ctx, job)
	if job.BatchID == "" {
		return
	}
	batch, err := c.store.RecomputeBatchStatus(ctx, job.BatchID)
	if err != nil {
		c.logger.Error("batch status recompute failed",
			logging.Error(err),
			logging.String(logging.FieldBatchID, job.BatchID),
		)
		return
	}
	if batch != nil && batch.IsTerminal() {
		c.logger.Info("batch finished",
			logging.String(logging.FieldBatchID, batch.ID),
			logging.String("status", string(batch.Status)),
			logging.Int("completed", batch.CompletedJobs),
			logging.Int("failed", batch.FailedJobs),
		)
		if c.notifier != nil {
			if err := c.notifier.NotifyBatchFinished(ctx, batch); err != nil {
				c.logger.Warn("batch notification failed", logging.Error(err),
					logging.String(logging.FieldBatchID, batch.ID))
			}
		}
	}
}

func (c *Coordinator) notifyJob(ctx context.Context, job *queue.Job) {
	if c.notifier == nil {
		return
	}
	var err error
	switch job.Status {
	case queue.StatusCompleted:
		err = c.notifier.NotifyJobCompleted(ctx, job)
	case queue.StatusFailed:
		err = c.notifier.NotifyJobFailed(ctx, job)
	}
	if err != nil {
		c.logger.Warn("job notification failed", logging.Error(err),
			logging.String(logging.FieldJobID, job.ID))
	}
}

// CancelJob cancels a single job. A job cancelled while still queued reaches
// its terminal status without passing through a runner, so this path performs
// the bookkeeping the runner would have done: publish the terminal event,
// retire the job's subscriptions, and refresh the batch aggregate.
func (c *Coordinator) CancelJob(ctx context.Context, id string) (queue.CancelOutcome, error) {
	outcome, err := c.store.RequestCancel(ctx, id)
	if err != nil || outcome != queue.CancelOutcomeCancelled {
		return outcome, err
	}
	job, err := c.store.GetJob(ctx, id)
	if err != nil {
		return outcome, err
	}
	c.publishCancelled(job, id)
	if job != nil && job.BatchID != "" {
		if _, err := c.store.RecomputeBatchStatus(ctx, job.BatchID); err != nil {
			return outcome, err
		}
	}
	return outcome, nil
}

// publishCancelled emits the terminal event for a job cancelled before
// dispatch and closes its subscriptions. Retirement happens even when the
// job row cannot be re-read; watchers must never outlive a terminal job.
func (c *Coordinator) publishCancelled(job *queue.Job, id string) {
	if c.bus == nil {
		return
	}
	if job != nil {
		c.bus.Publish(progress.Event{
			Type:       progress.EventTerminal,
			JobID:      job.ID,
			BatchID:    job.BatchID,
			Status:     job.Status,
			Stage:      job.CurrentStage,
			Step:       job.StepIndex,
			TotalSteps: job.TotalSteps,
			Percent:    job.ProgressPercent,
			Message:    job.ProgressMessage,
		})
		id = job.ID
	}
	c.bus.Retire(id)
}

// CancelResult summarizes a batch cancellation fan-out.
type CancelResult struct {
	Cancelled int
	Flagged   int
	Skipped   int
}

// Cancel requests cancellation on every non-terminal member. Cancelling
// members that already finished is a no-op, so repeating the call is safe.
func (c *Coordinator) Cancel(ctx context.Context, batchID string) (CancelResult, error) {
	var result CancelResult
	batch, err := c.store.GetBatch(ctx, batchID)
	if err != nil {
		return result, err
	}
	if batch == nil {
		return result, fmt.Errorf("%w: batch %s", queue.ErrNotFound, batchID)
	}

	jobs, err := c.store.ListBatchJobs(ctx, batchID)
	if err != nil {
		return result, err
	}
	for _, job := range jobs {
		outcome, err := c.store.RequestCancel(ctx, job.ID)
		if err != nil {
			return result, err
		}
		switch outcome {
		case queue.CancelOutcomeCancelled:
			result.Cancelled++
			fresh, err := c.store.GetJob(ctx, job.ID)
			if err != nil {
				return result, err
			}
			c.publishCancelled(fresh, job.ID)
		case queue.CancelOutcomeFlagged:
			result.Flagged++
		default:
			result.Skipped++
		}
	}

	// Members cancelled straight from queued never pass through a runner, so
	// the aggregate is recomputed here rather than waiting on an observer.
	if _, err := c.store.RecomputeBatchStatus(ctx, batchID); err != nil {
		return result, err
	}
	return result, nil
}

// Retry re-submits the failed members of a batch, resuming each after its
// last accumulated stage. Completed and cancelled members are left alone;
// cancelled jobs retry individually through the job-level operation.
func (c *Coordinator) Retry(ctx context.Context, batchID string) (int, error) {
	batch, err := c.store.GetBatch(ctx, batchID)
	if err != nil {
		return 0, err
	}
	if batch == nil {
		return 0, fmt.Errorf("%w: batch %s", queue.ErrNotFound, batchID)
	}

	jobs, err := c.store.ListBatchJobs(ctx, batchID)
	if err != nil {
		return 0, err
	}
	retried := 0
	for _, job := range jobs {
		if job.Status != queue.StatusFailed {
			continue
		}
		if _, err := c.store.ResetForRetry(ctx, job.ID); err != nil {
			return retried, err
		}
		retried++
	}
	if retried > 0 {
		if _, err := c.store.RecomputeBatchStatus(ctx, batchID); err != nil {
			return retried, err
		}
		if c.sched != nil {
			c.sched.Kick()
		}
	}
	return retried, nil
}

// Delete removes a terminal batch together with its members.
func (c *Coordinator) Delete(ctx context.Context, batchID string) error {
	deleted, err := c.store.DeleteBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: batch %s", queue.ErrNotFound, batchID)
	}
	return nil
}
