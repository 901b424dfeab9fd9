package housekeeping

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"autosub/internal/config"
	"autosub/internal/fileutil"
	"autosub/internal/logging"
	"autosub/internal/queue"
)

// Janitor schedules and runs the maintenance sweeps.
type Janitor struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
	cron   *cron.Cron
}

// New constructs a janitor. Start wires the config schedules onto a cron
// runner; the individual sweeps are also callable directly.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Janitor{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "housekeeping"),
	}
}

// Start registers every configured sweep and begins the cron scheduler. An
// empty schedule disables that sweep.
func (j *Janitor) Start() error {
	j.cron = cron.New()
	entries := []struct {
		name     string
		schedule string
		run      func(context.Context)
	}{
		{"temp_cleanup", j.cfg.Housekeeping.TempCleanupSchedule, j.runLogged("temp cleanup", j.CleanWorkDirs)},
		{"job_purge", j.cfg.Housekeeping.JobPurgeSchedule, j.runLogged("retention purge", j.PurgeExpired)},
		{"batch_sync", j.cfg.Housekeeping.BatchSyncSchedule, j.runLogged("batch sync", j.SyncBatches)},
		{"health_check", j.cfg.Housekeeping.HealthCheckSchedule, j.runLogged("health sweep", j.HealthSweep)},
	}
	for _, entry := range entries {
		if entry.schedule == "" {
			continue
		}
		run := entry.run
		if _, err := j.cron.AddFunc(entry.schedule, func() {
			run(context.Background())
		}); err != nil {
			return fmt.Errorf("housekeeping schedule %s (%q): %w", entry.name, entry.schedule, err)
		}
	}
	j.cron.Start()
	return nil
}

// Stop halts the cron scheduler and waits for in-flight sweeps.
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
	j.cron = nil
}

func (j *Janitor) runLogged(name string, sweep func(context.Context) error) func(context.Context) {
	return func(ctx context.Context) {
		if err := sweep(ctx); err != nil {
			j.logger.Warn(name+" failed", logging.Error(err))
		}
	}
}

// CleanWorkDirs removes per-job work directories whose owning job is terminal
// or gone. Directories of queued and processing jobs are left alone.
func (j *Janitor) CleanWorkDirs(ctx context.Context) error {
	workRoot := j.cfg.Paths.WorkDir
	entries, err := os.ReadDir(workRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read work dir: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		job, err := j.store.GetJob(ctx, entry.Name())
		if err != nil {
			return err
		}
		if job != nil && !job.Status.IsTerminal() {
			continue
		}
		target := filepath.Join(workRoot, entry.Name())
		if err := os.RemoveAll(target); err != nil {
			j.logger.Warn("failed to remove work dir",
				logging.String("path", target), logging.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		j.logger.Info("cleaned job work directories", logging.Int("removed", removed))
	}
	return nil
}

// PurgeExpired deletes terminal jobs and batches older than the configured
// retention window. A non-positive retention disables the purge.
func (j *Janitor) PurgeExpired(ctx context.Context) error {
	days := j.cfg.Housekeeping.JobRetentionDays
	if days <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	jobs, err := j.store.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge jobs: %w", err)
	}
	batches, err := j.store.DeleteTerminalBatchesBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge batches: %w", err)
	}
	if jobs > 0 || batches > 0 {
		j.logger.Info("purged expired records",
			logging.Int64("jobs", jobs),
			logging.Int64("batches", batches),
			logging.String("cutoff", cutoff.Format(time.RFC3339)),
		)
	}
	return nil
}

// SyncBatches recomputes aggregates for every active batch, repairing counts
// that drifted from missed terminal callbacks.
func (j *Janitor) SyncBatches(ctx context.Context) error {
	ids, err := j.store.ListActiveBatchIDs(ctx)
	if err != nil {
		return fmt.Errorf("list active batches: %w", err)
	}
	for _, id := range ids {
		if _, err := j.store.RecomputeBatchStatus(ctx, id); err != nil {
			return fmt.Errorf("recompute batch %s: %w", id, err)
		}
	}
	return nil
}

// HealthSweep reclaims jobs with stale heartbeats and warns when free disk
// under the work root drops below the configured floor.
func (j *Janitor) HealthSweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-j.cfg.HeartbeatTimeout())
	reclaimed, err := j.store.ReclaimStaleProcessing(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("reclaim stale jobs: %w", err)
	}
	if reclaimed > 0 {
		j.logger.Warn("requeued jobs with stale heartbeats", logging.Int64("jobs", reclaimed))
	}

	if floor := j.cfg.Housekeeping.MinFreeDiskGiB; floor > 0 {
		free, err := fileutil.FreeSpace(j.cfg.Paths.WorkDir)
		if err != nil {
			j.logger.Warn("free disk check failed", logging.Error(err))
			return nil
		}
		freeGiB := float64(free) / (1 << 30)
		if freeGiB < float64(floor) {
			j.logger.Warn("free disk below threshold",
				logging.Alert("low_disk_space"),
				logging.Float64("free_gib", freeGiB),
				logging.Int("min_gib", floor),
			)
		}
	}
	return nil
}
