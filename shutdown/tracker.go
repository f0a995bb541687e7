// Package shutdown coordinates graceful shutdown of the upscale commands:
// it stops intake, drains in-flight jobs and then closes resources in a
// fixed order.
package shutdown

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrTrackerClosed is returned when a job is started after draining began.
var ErrTrackerClosed = errors.New("job tracker is closed")

// ErrDrainTimeout is returned when in-flight jobs outlive the drain deadline.
var ErrDrainTimeout = errors.New("drain timeout: jobs did not finish in time")

// JobTracker records in-flight jobs by id so shutdown can wait for them
// and report the ones still running.
//
// Usage:
//
//	if !tracker.Start(job.ID, job.InputPath) {
//	    return shutdown.ErrTrackerClosed
//	}
//	defer tracker.Done(job.ID)
type JobTracker struct {
	mu     sync.Mutex
	active map[string]string
	idle   chan struct{}
	closed bool
}

// NewJobTracker creates an open tracker with no jobs.
func NewJobTracker() *JobTracker {
	idle := make(chan struct{})
	close(idle)
	return &JobTracker{active: make(map[string]string), idle: idle}
}

// Start registers job id with a label (usually the input path). It
// returns false once the tracker is closed or if id is already active.
// A true result must be paired with Done(id).
func (t *JobTracker) Start(id, label string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}
	if _, dup := t.active[id]; dup {
		return false
	}
	if len(t.active) == 0 {
		t.idle = make(chan struct{})
	}
	t.active[id] = label
	return true
}

// Done removes job id. Unknown ids are ignored.
func (t *JobTracker) Done(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.active[id]; !ok {
		return
	}
	delete(t.active, id)
	if len(t.active) == 0 {
		close(t.idle)
	}
}

// Close stops new jobs from starting. Running jobs are unaffected.
func (t *JobTracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// IsClosed reports whether Close was called.
func (t *JobTracker) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// ActiveCount returns the number of running jobs.
func (t *JobTracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Active returns the labels of running jobs, sorted.
func (t *JobTracker) Active() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	labels := make([]string, 0, len(t.active))
	for _, l := range t.active {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// Wait blocks until no job is running or ctx ends, in which case it
// returns ErrDrainTimeout.
func (t *JobTracker) Wait(ctx context.Context) error {
	t.mu.Lock()
	idle := t.idle
	t.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ErrDrainTimeout
	}
}
