package stage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"autosub/internal/queue"
)

// ProgressFunc reports stage-local progress as a fraction in [0, 1] with an
// optional human-readable message. Handlers may call it from the goroutine
// executing the stage only.
type ProgressFunc func(fraction float64, message string)

// Handler describes the contract the job runner needs from each stage.
type Handler interface {
	Execute(ctx context.Context, job *queue.Job, report ProgressFunc) (*queue.StageOutput, error)
	HealthCheck(ctx context.Context) Health
}

// Registration binds a stage name to its handler and declares whether the
// stage must hold the GPU admission gate while executing.
type Registration struct {
	Name     string
	GPUBound bool
	Handler  Handler
}

// Registry maps stage names to registrations. Registration happens during
// daemon wiring; lookups are concurrent-safe afterwards.
type Registry struct {
	mu     sync.RWMutex
	stages map[string]Registration
}

// NewRegistry constructs an empty stage registry.
func NewRegistry() *Registry {
	return &Registry{stages: make(map[string]Registration)}
}

// Register adds a stage registration. Re-registering a name replaces the
// previous entry, which tests rely on to install stubs.
func (r *Registry) Register(reg Registration) error {
	if reg.Name == "" {
		return fmt.Errorf("stage registration requires a name")
	}
	if reg.Handler == nil {
		return fmt.Errorf("stage %s registration requires a handler", reg.Name)
	}
	r.mu.Lock()
	r.stages[reg.Name] = reg
	r.mu.Unlock()
	return nil
}

// Resolve looks up the registration for a stage name.
func (r *Registry) Resolve(name string) (Registration, bool) {
	r.mu.RLock()
	reg, ok := r.stages[name]
	r.mu.RUnlock()
	return reg, ok
}

// Names returns the registered stage names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.stages))
	for name := range r.stages {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Validate checks that every stage in the sequence resolves to a handler.
func (r *Registry) Validate(sequence []string) error {
	for _, name := range sequence {
		if _, ok := r.Resolve(name); !ok {
			return fmt.Errorf("unknown stage %q", name)
		}
	}
	return nil
}
