package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"autosub/internal/gate"
	"autosub/internal/logging"
	"autosub/internal/progress"
	"autosub/internal/queue"
	"autosub/internal/services"
	"autosub/internal/stage"
	"autosub/internal/textutil"
)

// Runner executes one job at a time through its stage sequence.
type Runner struct {
	store             *queue.Store
	registry          *stage.Registry
	gate              *gate.Gate
	bus               *progress.Bus
	logger            *slog.Logger
	heartbeatInterval time.Duration
}

// New constructs a runner. The gate may be shared across runners; the
// registry must resolve every stage the scheduler dispatches.
func New(store *queue.Store, registry *stage.Registry, g *gate.Gate, bus *progress.Bus, logger *slog.Logger, heartbeatInterval time.Duration) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	if heartbeatInterval <= 0 {
		heartbeatInterval = 15 * time.Second
	}
	return &Runner{
		store:             store,
		registry:          registry,
		gate:              g,
		bus:               bus,
		logger:            logger,
		heartbeatInterval: heartbeatInterval,
	}
}

// ErrShutdown reports that the run stopped because the daemon is shutting
// down. The job stays in processing and is requeued on the next startup.
var ErrShutdown = errors.New("runner interrupted by shutdown")

// Run drives the job to a terminal status. It claims the job from the queue,
// executes the remaining stages in order, and returns the terminal status it
// recorded. A context cancellation mid-run returns ErrShutdown without a
// terminal transition.
func (r *Runner) Run(ctx context.Context, jobID string) (queue.Status, error) {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job == nil {
		return "", fmt.Errorf("%w: job %s", queue.ErrNotFound, jobID)
	}
	if job.IsTerminal() {
		return job.Status, nil
	}

	if job.Status == queue.StatusQueued {
		claimed, err := r.store.MarkProcessing(ctx, job.ID)
		if err != nil {
			return "", err
		}
		if !claimed {
			// Cancelled or claimed elsewhere between dispatch and now.
			refreshed, err := r.store.GetJob(ctx, job.ID)
			if err != nil {
				return "", err
			}
			if refreshed == nil {
				return "", fmt.Errorf("%w: job %s", queue.ErrNotFound, jobID)
			}
			return refreshed.Status, nil
		}
		job.Status = queue.StatusProcessing
		if job.StartedAt == nil {
			now := time.Now().UTC()
			job.StartedAt = &now
		}
	}

	runCtx := services.WithJobID(ctx, job.ID)
	if job.BatchID != "" {
		runCtx = services.WithBatchID(runCtx, job.BatchID)
	}
	logger := logging.WithContext(runCtx, r.logger)
	sampler := logging.NewProgressSampler(0)

	for idx := 0; idx < len(job.Stages); idx++ {
		stageName := job.Stages[idx]

		if job.State.HasCompleted(stageName) {
			// Retry resume: the artifact is already accumulated.
			if job.StepIndex <= idx {
				job.AdvanceStep(stageName)
			}
			continue
		}

		cancelled, err := r.cancelRequested(runCtx, job)
		if err != nil {
			return "", err
		}
		if cancelled {
			return r.finishCancelled(runCtx, logger, job)
		}

		reg, ok := r.registry.Resolve(stageName)
		if !ok {
			job.SetFailed(fmt.Sprintf("no handler registered for stage %s", stageName), false)
			return r.terminalFailed(runCtx, logger, job, stageName)
		}

		status, done, err := r.runStage(runCtx, logger, sampler, job, idx, reg)
		if err != nil || done {
			return status, err
		}
	}

	job.SetCompleted("all stages complete")
	if err := r.store.MarkTerminal(runCtx, job); err != nil {
		return "", err
	}
	r.publishTerminal(job, "completed")
	logger.Info("job completed",
		logging.String(logging.FieldEventType, "job_completed"),
		logging.Int("total_steps", job.TotalSteps),
	)
	return queue.StatusCompleted, nil
}

// runStage executes a single stage. done is true when the job reached a
// terminal status and the run loop must stop.
func (r *Runner) runStage(ctx context.Context, logger *slog.Logger, sampler *logging.ProgressSampler, job *queue.Job, idx int, reg stage.Registration) (queue.Status, bool, error) {
	stageCtx := services.WithStage(ctx, reg.Name)
	stageLogger := logging.WithContext(stageCtx, logger)

	if reg.GPUBound && r.gate != nil {
		release, err := r.gate.Acquire(stageCtx)
		if err != nil {
			if stageCtx.Err() != nil {
				return "", true, ErrShutdown
			}
			job.SetFailed(err.Error(), true)
			status, err := r.terminalFailed(stageCtx, stageLogger, job, reg.Name)
			return status, true, err
		}
		defer release()
	}

	job.SetProgress(reg.Name, fmt.Sprintf("%s started", reg.Name), job.BandedPercent(0))
	if err := r.store.UpdateProgress(stageCtx, job.ID, job.CurrentStage, job.StepIndex, job.ProgressPercent, job.ProgressMessage); err != nil {
		return "", true, err
	}
	r.publish(job, progress.EventStageStarted, fmt.Sprintf("%s started", reg.Name))
	stageLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int(logging.FieldStep, job.StepIndex+1),
		logging.Int("total_steps", job.TotalSteps),
		logging.String("lane", textutil.Ternary(reg.GPUBound, "gpu", "cpu")),
	)
	stageStart := time.Now()

	report := func(fraction float64, message string) {
		percent := job.BandedPercent(fraction)
		job.SetProgress(reg.Name, message, percent)
		if err := r.store.UpdateProgress(stageCtx, job.ID, reg.Name, job.StepIndex, job.ProgressPercent, message); err != nil {
			stageLogger.Warn("persist progress failed", logging.Error(err))
		}
		r.publish(job, progress.EventProgress, message)
		if sampler.ShouldLog(percent, reg.Name, message) {
			stageLogger.Debug("stage progress",
				logging.Float64("percent", percent),
				logging.String("message", message),
			)
		}
	}

	out, execErr := r.executeWithHeartbeat(stageCtx, reg.Handler, job, report)
	if execErr != nil {
		if stageCtx.Err() != nil && services.Cancelled(execErr) {
			stageLogger.Debug("stage interrupted by shutdown")
			return "", true, ErrShutdown
		}
		job.SetFailed(execErr.Error(), services.Retryable(execErr))
		status, err := r.terminalFailed(stageCtx, stageLogger, job, reg.Name)
		return status, true, err
	}

	job.State.Apply(reg.Name, out)
	if out != nil && out.DetectedLanguage != "" && job.DetectedLanguage == "" {
		job.DetectedLanguage = out.DetectedLanguage
	}
	job.AdvanceStep(reg.Name)
	job.ProgressMessage = fmt.Sprintf("%s complete", reg.Name)
	if err := r.store.UpdateJob(stageCtx, job); err != nil {
		return "", true, err
	}
	r.publish(job, progress.EventStageCompleted, job.ProgressMessage)
	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int(logging.FieldStep, job.StepIndex),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	return "", false, nil
}

// executeWithHeartbeat runs the stage handler while a side goroutine stamps
// the job heartbeat so stale-job reclamation can tell a live stage from a
// dead runner. Panics inside the handler surface as stage execution errors.
func (r *Runner) executeWithHeartbeat(ctx context.Context, handler stage.Handler, job *queue.Job, report stage.ProgressFunc) (out *queue.StageOutput, err error) {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go func() {
		defer hbWG.Done()
		ticker := time.NewTicker(r.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if hbErr := r.store.UpdateHeartbeat(hbCtx, job.ID); hbErr != nil && !errors.Is(hbErr, context.Canceled) {
					r.logger.Warn("heartbeat update failed", logging.Error(hbErr))
				}
			}
		}
	}()
	defer func() {
		hbCancel()
		hbWG.Wait()
		if recovered := recover(); recovered != nil {
			out = nil
			err = services.Wrap(services.ErrStageExecution, job.CurrentStage, "execute",
				fmt.Sprintf("stage panicked: %v", recovered), nil)
		}
	}()

	return handler.Execute(ctx, job, report)
}

func (r *Runner) cancelRequested(ctx context.Context, job *queue.Job) (bool, error) {
	fresh, err := r.store.GetJob(ctx, job.ID)
	if err != nil {
		return false, err
	}
	if fresh == nil {
		return false, fmt.Errorf("%w: job %s", queue.ErrNotFound, job.ID)
	}
	job.CancelRequested = fresh.CancelRequested
	return job.CancelRequested, nil
}

func (r *Runner) finishCancelled(ctx context.Context, logger *slog.Logger, job *queue.Job) (queue.Status, error) {
	job.SetCancelled("cancelled at stage boundary")
	if err := r.store.MarkTerminal(ctx, job); err != nil {
		return "", err
	}
	r.publishTerminal(job, "cancelled")
	logger.Info("job cancelled",
		logging.String(logging.FieldEventType, "job_cancelled"),
		logging.Int(logging.FieldStep, job.StepIndex),
	)
	return queue.StatusCancelled, nil
}

func (r *Runner) terminalFailed(ctx context.Context, logger *slog.Logger, job *queue.Job, stageName string) (queue.Status, error) {
	if err := r.store.MarkTerminal(ctx, job); err != nil {
		return "", err
	}
	r.publishTerminal(job, job.ErrorMessage)
	logging.ErrorWithContext(logger, "job failed", "job_failed",
		logging.String(logging.FieldStage, stageName),
		logging.String("error_message", job.ErrorMessage),
		logging.Bool("retryable", job.Retryable),
	)
	return queue.StatusFailed, nil
}

func (r *Runner) publish(job *queue.Job, eventType progress.EventType, message string) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(progress.Event{
		Type:       eventType,
		JobID:      job.ID,
		BatchID:    job.BatchID,
		Status:     job.Status,
		Stage:      job.CurrentStage,
		Step:       job.StepIndex,
		TotalSteps: job.TotalSteps,
		Percent:    job.ProgressPercent,
		Message:    message,
	})
}

func (r *Runner) publishTerminal(job *queue.Job, message string) {
	if r.bus == nil {
		return
	}
	r.publish(job, progress.EventTerminal, message)
	r.bus.Retire(job.ID)
}
