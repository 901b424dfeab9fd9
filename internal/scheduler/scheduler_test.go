package scheduler_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"autosub/internal/gate"
	"autosub/internal/logging"
	"autosub/internal/progress"
	"autosub/internal/queue"
	"autosub/internal/runner"
	"autosub/internal/scheduler"
	"autosub/internal/stage"
	"autosub/internal/testsupport"
)

type hookHandler struct {
	fn func(ctx context.Context, job *queue.Job) (*queue.StageOutput, error)
}

func (h *hookHandler) Execute(ctx context.Context, job *queue.Job, _ stage.ProgressFunc) (*queue.StageOutput, error) {
	if h.fn != nil {
		return h.fn(ctx, job)
	}
	return &queue.StageOutput{}, nil
}

func (h *hookHandler) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("stub")
}

func singleStageRegistry(t *testing.T, fn func(ctx context.Context, job *queue.Job) (*queue.StageOutput, error)) *stage.Registry {
	t.Helper()
	registry := stage.NewRegistry()
	if err := registry.Register(stage.Registration{Name: stage.Extract, Handler: &hookHandler{fn: fn}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	return registry
}

func waitFor(t *testing.T, timeout time.Duration, check func() bool, msg string) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if check() {
			return
		}
		select {
		case <-deadline:
			t.Fatal(msg)
		case <-time.After(25 * time.Millisecond):
		}
	}
}

func TestConcurrencyBoundRespected(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxConcurrentJobs(2))
	store := testsupport.MustOpenStore(t, cfg)

	var active, peak atomic.Int64
	release := make(chan struct{})
	registry := singleStageRegistry(t, func(ctx context.Context, job *queue.Job) (*queue.StageOutput, error) {
		current := active.Add(1)
		defer active.Add(-1)
		for {
			observed := peak.Load()
			if current <= observed || peak.CompareAndSwap(observed, current) {
				break
			}
		}
		<-release
		return &queue.StageOutput{}, nil
	})

	r := runner.New(store, registry, gate.New(1, 0), progress.NewBus(8), logging.NewNop(), time.Second)
	sched := scheduler.New(cfg, store, r, logging.NewNop())
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sched.Stop()

	for i := 0; i < 5; i++ {
		job := &queue.Job{InputPath: "/in/movie.mkv", Stages: []string{stage.Extract}, OutputFormats: []string{"srt"}}
		if err := sched.Submit(context.Background(), job); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	waitFor(t, 5*time.Second, func() bool { return active.Load() == 2 }, "two jobs should be executing")
	// Give the dispatch loop a chance to overshoot if it were going to.
	time.Sleep(100 * time.Millisecond)
	close(release)

	waitFor(t, 5*time.Second, func() bool {
		counts, err := store.CountByStatus(context.Background())
		return err == nil && counts[queue.StatusCompleted] == 5
	}, "all jobs should complete")

	if got := peak.Load(); got > 2 {
		t.Fatalf("peak concurrency %d exceeds bound 2", got)
	}
}

func TestPriorityThenSubmissionOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxConcurrentJobs(1))
	store := testsupport.MustOpenStore(t, cfg)

	var mu sync.Mutex
	var order []string
	registry := singleStageRegistry(t, func(ctx context.Context, job *queue.Job) (*queue.StageOutput, error) {
		mu.Lock()
		order = append(order, job.SourceFilename)
		mu.Unlock()
		return &queue.StageOutput{}, nil
	})

	// All jobs are queued before the scheduler starts so dispatch order is
	// fully determined by priority and submission time.
	names := []struct {
		file     string
		priority int
	}{
		{"low-first.mkv", 0},
		{"high.mkv", 5},
		{"low-second.mkv", 0},
	}
	for _, n := range names {
		job := &queue.Job{
			InputPath:      "/in/" + n.file,
			SourceFilename: n.file,
			Priority:       n.priority,
			Stages:         []string{stage.Extract},
		}
		if err := store.CreateJob(context.Background(), job); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	r := runner.New(store, registry, gate.New(1, 0), progress.NewBus(8), logging.NewNop(), time.Second)
	sched := scheduler.New(cfg, store, r, logging.NewNop())
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sched.Stop()

	waitFor(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, "all jobs should run")

	mu.Lock()
	defer mu.Unlock()
	want := []string{"high.mkv", "low-first.mkv", "low-second.mkv"}
	for i, file := range want {
		if order[i] != file {
			t.Fatalf("dispatch order = %v, want %v", order, want)
		}
	}
}

func TestSubmitIsNonBlockingWhileSaturated(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxConcurrentJobs(1))
	store := testsupport.MustOpenStore(t, cfg)

	release := make(chan struct{})
	registry := singleStageRegistry(t, func(ctx context.Context, job *queue.Job) (*queue.StageOutput, error) {
		<-release
		return &queue.StageOutput{}, nil
	})

	r := runner.New(store, registry, gate.New(1, 0), progress.NewBus(8), logging.NewNop(), time.Second)
	sched := scheduler.New(cfg, store, r, logging.NewNop())
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sched.Stop()

	first := &queue.Job{InputPath: "/in/a.mkv", Stages: []string{stage.Extract}}
	if err := sched.Submit(context.Background(), first); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool { return sched.ActiveJobs() == 1 }, "first job should start")

	start := time.Now()
	second := &queue.Job{InputPath: "/in/b.mkv", Stages: []string{stage.Extract}}
	if err := sched.Submit(context.Background(), second); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if second.ID == "" {
		t.Fatal("submission should assign an id immediately")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Submit blocked for %s while scheduler saturated", elapsed)
	}

	job, err := store.GetJob(context.Background(), second.ID)
	if err != nil || job == nil {
		t.Fatalf("second job not persisted: %v", err)
	}
	if job.Status != queue.StatusQueued {
		t.Fatalf("second job status = %s, want queued", job.Status)
	}

	close(release)
	waitFor(t, 5*time.Second, func() bool {
		counts, err := store.CountByStatus(context.Background())
		return err == nil && counts[queue.StatusCompleted] == 2
	}, "both jobs should complete")
}

func TestOnTerminalObserverFires(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxConcurrentJobs(1))
	store := testsupport.MustOpenStore(t, cfg)
	registry := singleStageRegistry(t, nil)

	var seen atomic.Int64
	r := runner.New(store, registry, gate.New(1, 0), progress.NewBus(8), logging.NewNop(), time.Second)
	sched := scheduler.New(cfg, store, r, logging.NewNop())
	sched.SetOnTerminal(func(ctx context.Context, job *queue.Job) {
		if job.Status == queue.StatusCompleted {
			seen.Add(1)
		}
	})
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sched.Stop()

	job := &queue.Job{InputPath: "/in/a.mkv", Stages: []string{stage.Extract}}
	if err := sched.Submit(context.Background(), job); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool { return seen.Load() == 1 }, "terminal observer should fire once")
}
