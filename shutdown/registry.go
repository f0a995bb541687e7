package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go_waifu2x/core"
)

// Shutdown priorities. Lower runs first.
const (
	PriorityWatcher  = 10
	PriorityDrain    = 20
	PriorityPool     = 30
	PriorityGPU      = 40
	PriorityDatabase = 50
	PriorityPartials = 60
	PriorityLogger   = 90
)

type shutdownEntry struct {
	name     string
	fn       core.ShutdownFunc
	priority int
	seq      int
}

// ShutdownRegistry holds named cleanup steps and runs them by priority.
// Steps with equal priority run in registration order.
type ShutdownRegistry struct {
	mu      sync.Mutex
	entries []shutdownEntry
	closed  bool
}

// NewShutdownRegistry creates an empty registry.
func NewShutdownRegistry() *ShutdownRegistry {
	return &ShutdownRegistry{}
}

// Register adds fn. Registration after Shutdown is ignored.
func (r *ShutdownRegistry) Register(name string, priority int, fn core.ShutdownFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || fn == nil {
		return
	}
	r.entries = append(r.entries, shutdownEntry{
		name:     name,
		fn:       fn,
		priority: priority,
		seq:      len(r.entries),
	})
}

// Shutdown runs every step even when some fail and joins their errors,
// each prefixed with the step name. Later calls return nil.
func (r *ShutdownRegistry) Shutdown(ctx context.Context, onStep func(name string, err error)) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sorted := r.sortedLocked()
	r.mu.Unlock()

	var errs []error
	for _, entry := range sorted {
		err := entry.fn(ctx)
		if err != nil {
			err = fmt.Errorf("%s: %w", entry.name, err)
			errs = append(errs, err)
		}
		if onStep != nil {
			onStep(entry.name, err)
		}
	}
	return errors.Join(errs...)
}

// Names returns the step names in execution order.
func (r *ShutdownRegistry) Names() []string {
	r.mu.Lock()
	sorted := r.sortedLocked()
	r.mu.Unlock()

	names := make([]string, len(sorted))
	for i, entry := range sorted {
		names[i] = entry.name
	}
	return names
}

// Count returns the number of registered steps.
func (r *ShutdownRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// IsClosed reports whether Shutdown has run.
func (r *ShutdownRegistry) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *ShutdownRegistry) sortedLocked() []shutdownEntry {
	sorted := make([]shutdownEntry, len(r.entries))
	copy(sorted, r.entries)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].priority != sorted[j].priority {
			return sorted[i].priority < sorted[j].priority
		}
		return sorted[i].seq < sorted[j].seq
	})
	return sorted
}
