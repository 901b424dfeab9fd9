// Package scheduler admits queued jobs into execution while bounding how many
// run concurrently.
//
// Dispatch order is priority first, then submission time. Submission is
// non-blocking: callers get the persisted job id immediately and the dispatch
// loop picks the job up on its next pass. A separate monitor goroutine
// requeues processing jobs whose heartbeat went stale, recovering capacity
// lost to dead runners.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"autosub/internal/config"
	"autosub/internal/logging"
	"autosub/internal/queue"
	"autosub/internal/runner"
)

// TerminalFunc observes a job that reached a terminal status. The batch
// coordinator and notification hooks attach here.
type TerminalFunc func(ctx context.Context, job *queue.Job)

// Scheduler owns the dispatch loop.
type Scheduler struct {
	store  *queue.Store
	runner *runner.Runner
	logger *slog.Logger

	maxConcurrent    int
	pollInterval     time.Duration
	heartbeatTimeout time.Duration

	onTerminal TerminalFunc

	kick   chan struct{}
	active atomic.Int64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	loopWG  sync.WaitGroup
	jobWG   sync.WaitGroup
}

// New constructs a scheduler from pipeline config.
func New(cfg *config.Config, store *queue.Store, r *runner.Runner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	maxConcurrent := cfg.Pipeline.MaxConcurrentJobs
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	pollInterval := cfg.QueuePollInterval()
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Scheduler{
		store:            store,
		runner:           r,
		logger:           logger,
		maxConcurrent:    maxConcurrent,
		pollInterval:     pollInterval,
		heartbeatTimeout: cfg.HeartbeatTimeout(),
		kick:             make(chan struct{}, 1),
	}
}

// SetOnTerminal installs the terminal observer. Must be called before Start.
func (s *Scheduler) SetOnTerminal(fn TerminalFunc) {
	s.onTerminal = fn
}

// Start launches the dispatch loop and the stale-job monitor. Jobs stranded
// in processing by a previous daemon run are requeued first.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already running")
	}

	if requeued, err := s.store.ResetStuckProcessing(ctx); err != nil {
		return err
	} else if requeued > 0 {
		s.logger.Info("requeued jobs from previous run", logging.Int64("count", requeued))
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.loopWG.Add(2)
	go s.dispatchLoop(loopCtx)
	go s.monitorLoop(loopCtx)
	return nil
}

// Stop halts dispatching and waits for in-flight runners to observe the
// cancellation and return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.loopWG.Wait()
	s.jobWG.Wait()
}

// Running reports whether the dispatch loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Submit persists a new job and nudges the dispatch loop. The job id is
// available on the passed job as soon as this returns.
func (s *Scheduler) Submit(ctx context.Context, job *queue.Job) error {
	if err := s.store.CreateJob(ctx, job); err != nil {
		return err
	}
	s.Kick()
	return nil
}

// Kick wakes the dispatch loop without waiting for the next poll tick.
func (s *Scheduler) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// ActiveJobs reports how many jobs are currently executing.
func (s *Scheduler) ActiveJobs() int64 {
	return s.active.Load()
}

// MaxConcurrent reports the configured concurrency bound.
func (s *Scheduler) MaxConcurrent() int {
	return s.maxConcurrent
}

func (s *Scheduler) dispatchLoop(ctx context.Context) {
	defer s.loopWG.Done()
	for {
		s.dispatchReady(ctx)
		select {
		case <-ctx.Done():
			return
		case <-s.kick:
		case <-time.After(s.pollInterval):
		}
	}
}

// dispatchReady claims and launches queued jobs until the concurrency bound
// is reached or the queue drains.
func (s *Scheduler) dispatchReady(ctx context.Context) {
	for s.active.Load() < int64(s.maxConcurrent) {
		if ctx.Err() != nil {
			return
		}
		job, err := s.store.NextQueued(ctx)
		if err != nil {
			s.logger.Error("fetch next queued job failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_fetch_failed"),
			)
			return
		}
		if job == nil {
			return
		}
		claimed, err := s.store.MarkProcessing(ctx, job.ID)
		if err != nil {
			s.logger.Error("claim queued job failed", logging.Error(err), logging.String(logging.FieldJobID, job.ID))
			return
		}
		if !claimed {
			// The job left the queued state between fetch and claim.
			continue
		}

		s.active.Add(1)
		s.jobWG.Add(1)
		go s.runJob(ctx, job.ID)
	}
}

func (s *Scheduler) runJob(ctx context.Context, jobID string) {
	defer s.jobWG.Done()
	defer func() {
		s.active.Add(-1)
		s.Kick()
	}()

	status, err := s.runner.Run(ctx, jobID)
	if err != nil {
		if errors.Is(err, runner.ErrShutdown) || errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Error("job run failed",
			logging.Error(err),
			logging.String(logging.FieldJobID, jobID),
			logging.String(logging.FieldEventType, "job_run_failed"),
		)
		return
	}
	if !status.IsTerminal() || s.onTerminal == nil {
		return
	}

	// Terminal observers (batch recompute, notifications) run on a detached
	// context so daemon shutdown cannot lose the aggregate update.
	notifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	job, err := s.store.GetJob(notifyCtx, jobID)
	if err != nil || job == nil {
		s.logger.Warn("load terminal job for observers failed", logging.Error(err), logging.String(logging.FieldJobID, jobID))
		return
	}
	s.onTerminal(notifyCtx, job)
}

// monitorLoop periodically requeues processing jobs whose heartbeat expired.
func (s *Scheduler) monitorLoop(ctx context.Context) {
	defer s.loopWG.Done()
	if s.heartbeatTimeout <= 0 {
		return
	}
	interval := s.heartbeatTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.heartbeatTimeout)
			reclaimed, err := s.store.ReclaimStaleProcessing(ctx, cutoff)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					s.logger.Warn("reclaim stale processing failed", logging.Error(err))
				}
				continue
			}
			if reclaimed > 0 {
				s.logger.Info("reclaimed stale jobs",
					logging.Int64("count", reclaimed),
					logging.String(logging.FieldEventType, "heartbeat_reclaim"),
				)
				s.Kick()
			}
		}
	}
}
