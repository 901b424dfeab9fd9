package daemon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/gofrs/flock"

	"autosub/internal/api"
	"autosub/internal/batch"
	"autosub/internal/burnin"
	"autosub/internal/config"
	"autosub/internal/diarize"
	"autosub/internal/extract"
	"autosub/internal/gate"
	"autosub/internal/housekeeping"
	"autosub/internal/logging"
	"autosub/internal/notifications"
	"autosub/internal/progress"
	"autosub/internal/queue"
	"autosub/internal/runner"
	"autosub/internal/scheduler"
	"autosub/internal/stage"
	"autosub/internal/subtitles"
	"autosub/internal/transcribe"
	"autosub/internal/translate"
)

// Daemon owns the assembled pipeline and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	store    *queue.Store
	hub      *logging.StreamHub
	bus      *progress.Bus
	gate     *gate.Gate
	registry *stage.Registry
	sched    *scheduler.Scheduler
	coord    *batch.Coordinator
	janitor  *housekeeping.Janitor
	server   *api.Server

	archive *logging.EventArchive

	lockPath string
	pidPath  string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc

	version string
}

// Options tune daemon construction.
type Options struct {
	// Version is reported on /api/status.
	Version string
	// Hub, when set, receives every log record for API streaming. New builds
	// one when nil.
	Hub *logging.StreamHub
}

// New assembles a daemon from config. The store is opened here; everything
// else waits for Start.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}

	hub := opts.Hub
	if hub == nil {
		hub = logging.NewStreamHub(2048)
	}
	archive, err := logging.NewEventArchive(filepath.Join(cfg.Paths.LogDir, "events.jsonl"))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open event archive: %w", err)
	}
	if archive != nil {
		hub.AddSink(archive)
	}
	bus := progress.NewBus(0)
	g := gate.New(int64(cfg.Pipeline.GPUSlots), cfg.GPUAcquireTimeout())

	registry := stage.NewRegistry()
	registrations := []stage.Registration{
		{Name: stage.Extract, Handler: extract.New(cfg)},
		{Name: stage.Transcribe, GPUBound: true, Handler: transcribe.New(cfg)},
		{Name: stage.Diarize, GPUBound: true, Handler: diarize.New(cfg)},
		{Name: stage.Translate, Handler: translate.New(cfg)},
		{Name: stage.BuildSubtitles, Handler: subtitles.New(cfg)},
		{Name: stage.BurnIn, Handler: burnin.New(cfg)},
	}
	for _, reg := range registrations {
		if err := registry.Register(reg); err != nil {
			store.Close()
			return nil, fmt.Errorf("register stage: %w", err)
		}
	}

	r := runner.New(store, registry, g, bus, logger, cfg.HeartbeatInterval())
	sched := scheduler.New(cfg, store, r, logger)
	coord := batch.NewCoordinator(cfg, store, sched, registry, logger).
		WithNotifier(notifications.NewService(cfg)).
		WithBus(bus)
	sched.SetOnTerminal(coord.OnJobTerminal)

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		hub:      hub,
		archive:  archive,
		bus:      bus,
		gate:     g,
		registry: registry,
		sched:    sched,
		coord:    coord,
		janitor:  housekeeping.New(cfg, store, logger),
		lockPath: filepath.Join(cfg.Paths.DataDir, "autosubd.lock"),
		pidPath:  filepath.Join(cfg.Paths.DataDir, "autosubd.pid"),
		version:  opts.Version,
	}
	d.lock = flock.New(d.lockPath)
	d.server = api.NewServer(cfg, api.Deps{
		Store:       store,
		Coordinator: coord,
		Scheduler:   sched,
		Gate:        g,
		Bus:         bus,
		Hub:         hub,
		Registry:    registry,
		Logger:      logger,
		Version:     opts.Version,
	})
	return d, nil
}

// Start acquires the instance lock, requeues jobs stranded by a previous run,
// then brings up the scheduler, housekeeping, and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another daemon instance holds %s", d.lockPath)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	logging.CleanupOldLogs(d.logger, d.cfg.Logging.RetentionDays, logging.RetentionTarget{
		Dir:     d.cfg.Paths.LogDir,
		Pattern: "*.log",
		Exclude: []string{filepath.Join(d.cfg.Paths.LogDir, "autosub.log")},
	})

	requeued, err := d.store.ResetStuckProcessing(runCtx)
	if err != nil {
		d.teardown()
		return fmt.Errorf("requeue stranded jobs: %w", err)
	}
	if requeued > 0 {
		d.logger.Info("requeued jobs from previous run", logging.Int64("jobs", requeued))
	}

	if err := d.sched.Start(runCtx); err != nil {
		d.teardown()
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := d.janitor.Start(); err != nil {
		d.sched.Stop()
		d.teardown()
		return fmt.Errorf("start housekeeping: %w", err)
	}
	if d.cfg.API.Enabled {
		if err := d.server.Start(runCtx); err != nil {
			d.janitor.Stop()
			d.sched.Stop()
			d.teardown()
			return fmt.Errorf("start api server: %w", err)
		}
	}

	if err := os.WriteFile(d.pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		d.logger.Warn("failed to write pid file", logging.Error(err))
	}

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("gpu_slots", d.cfg.Pipeline.GPUSlots),
		logging.Int("max_workers", d.cfg.Pipeline.MaxConcurrentJobs),
	)
	return nil
}

// Stop shuts components down in reverse start order and releases the lock.
// In-flight stages observe context cancellation and finish as cancelled or
// are requeued on the next start.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cfg.API.Enabled {
		d.server.Stop()
	}
	d.janitor.Stop()
	d.sched.Stop()
	d.teardown()
	_ = os.Remove(d.pidPath)
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

func (d *Daemon) teardown() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

// Close stops the daemon and closes the store and log archive.
func (d *Daemon) Close() error {
	d.Stop()
	if err := d.archive.Close(); err != nil {
		d.logger.Warn("failed to close event archive", logging.Error(err))
	}
	return d.store.Close()
}

// Running reports whether Start has completed and Stop has not.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// APIAddr returns the bound API address, empty when the API is disabled or
// the daemon is stopped.
func (d *Daemon) APIAddr() string {
	return d.server.Addr()
}

// ReadPID returns the pid recorded by a running daemon for this config, or
// zero when no pid file exists.
func ReadPID(cfg *config.Config) (int, error) {
	data, err := os.ReadFile(filepath.Join(cfg.Paths.DataDir, "autosubd.pid"))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	pid, err := strconv.Atoi(string(bytes.TrimSpace(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed pid file: %w", err)
	}
	return pid, nil
}

// Store exposes the queue store for in-process callers.
func (d *Daemon) Store() *queue.Store {
	return d.store
}

// Coordinator exposes the batch coordinator for in-process callers.
func (d *Daemon) Coordinator() *batch.Coordinator {
	return d.coord
}
