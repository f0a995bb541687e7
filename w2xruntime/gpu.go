package w2xruntime

import (
	"fmt"
	"sync"
)

// GPUContext owns the GPU subsystem for the engines built from it.
//
// It replaces a process-wide init/destroy pair: the creator closes it, and
// Close refuses while engines created from it are still open. Closing an
// engine never closes its context.
type GPUContext struct {
	mu      sync.Mutex
	closed  bool
	engines map[*Engine]struct{}
}

// NewGPUContext initialises the GPU subsystem for a new owner.
func NewGPUContext() (*GPUContext, error) {
	if err := acquireGPUInstanceImpl(); err != nil {
		return nil, &EngineError{
			Op:      "init_gpu_instance",
			Code:    StatusGPUNotAvailable,
			Message: "GPU subsystem initialisation failed",
			Err:     fmt.Errorf("%w: %v", ErrGPUNotAvailable, err),
		}
	}
	return &GPUContext{engines: make(map[*Engine]struct{})}, nil
}

// DeviceCount returns the number of usable GPU devices. It is never
// negative and is 0 on a nil or closed context.
func (g *GPUContext) DeviceCount() int {
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return 0
	}
	if n := gpuCountImpl(); n > 0 {
		return n
	}
	return 0
}

// HeapBudget returns the usable heap of a device in megabytes.
// The value is informational; callers use it to choose a tile size.
func (g *GPUContext) HeapBudget(gpuID int) (uint32, error) {
	if g == nil {
		return 0, newError("get_heap_budget", ErrGPUNotAvailable, "no GPU context")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return 0, newError("get_heap_budget", ErrGPUContextClosed, "context closed")
	}
	if n := gpuCountImpl(); gpuID < 0 || gpuID >= n {
		return 0, newError("get_heap_budget", ErrInvalidGPU, "gpu id %d with %d device(s)", gpuID, n)
	}
	return heapBudgetImpl(gpuID), nil
}

// Engines returns the number of open engines attached to the context.
func (g *GPUContext) Engines() int {
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.engines)
}

// Closed reports whether Close has completed.
func (g *GPUContext) Closed() bool {
	if g == nil {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Close tears down the GPU subsystem for this owner. It fails with
// ErrGPUContextInUse while engines are open. Closing twice is a no-op.
func (g *GPUContext) Close() error {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	if n := len(g.engines); n > 0 {
		return newError("destroy_gpu_instance", ErrGPUContextInUse, "%d engine(s) still open", n)
	}
	g.closed = true
	releaseGPUInstanceImpl()
	return nil
}

func (g *GPUContext) attach(e *Engine) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrGPUContextClosed
	}
	g.engines[e] = struct{}{}
	return nil
}

func (g *GPUContext) detach(e *Engine) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.engines, e)
}

// usable checks that gpuID names a device of an open context.
func (g *GPUContext) usable(gpuID int) error {
	if g == nil {
		return ErrGPUNotAvailable
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrGPUContextClosed
	}
	if n := gpuCountImpl(); gpuID >= n {
		return fmt.Errorf("%w: gpu id %d with %d device(s)", ErrInvalidGPU, gpuID, n)
	}
	return nil
}
