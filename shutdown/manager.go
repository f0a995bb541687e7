package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"go_waifu2x/core"
	"go_waifu2x/logging"
)

// Manager ties signal handling, the job tracker and the cleanup registry
// together.
//
// Two contexts are handed out. Context is cancelled as soon as shutdown
// is requested; intake loops (the watcher, the batch feeder) stop on it.
// JobContext is cancelled only when draining runs out of time, so jobs
// that already started can finish and write their output.
//
// Usage:
//
//	m := shutdown.NewManager(logger, shutdown.WithTimeout(cfg.ShutdownTimeout))
//	m.Register("engine-pool", shutdown.PriorityPool, core.CloserShutdown(up))
//	m.Start()
//	defer m.Shutdown()
//
//	err := m.TrackJob(job.ID, job.InputPath, func(ctx context.Context) error {
//	    return run(ctx, job)
//	})
type Manager struct {
	logger  *logging.Logger
	timeout time.Duration

	mu       sync.Mutex
	started  bool
	shutdown bool

	ctx       context.Context
	cancel    context.CancelFunc
	jobCtx    context.Context
	jobCancel context.CancelFunc

	tracker  *JobTracker
	registry *ShutdownRegistry
	signals  *SignalCounter
	sigChan  chan os.Signal
	exit     func(code int)
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout bounds the whole shutdown sequence. Default 30s.
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// WithExitFunc replaces os.Exit for the forced exit on a second signal.
func WithExitFunc(exit func(code int)) ManagerOption {
	return func(m *Manager) {
		m.exit = exit
	}
}

// NewManager creates a Manager with the job drain step registered at
// PriorityDrain.
func NewManager(logger *logging.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	jobCtx, jobCancel := context.WithCancel(context.Background())

	m := &Manager{
		logger:    logger.Named("shutdown"),
		timeout:   30 * time.Second,
		ctx:       ctx,
		cancel:    cancel,
		jobCtx:    jobCtx,
		jobCancel: jobCancel,
		tracker:   NewJobTracker(),
		registry:  NewShutdownRegistry(),
		sigChan:   make(chan os.Signal, 1),
		exit:      os.Exit,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.signals = NewSignalCounter(2, func(sig os.Signal) {
		m.logger.Warn("second signal received, forcing exit",
			zap.String("signal", sig.String()),
			zap.Strings("in_flight", m.tracker.Active()))
		m.exit(SignalExitCode(sig))
	})
	m.registry.Register("drain-jobs", PriorityDrain, m.drain)
	return m
}

// Context is cancelled when shutdown is requested.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// JobContext is cancelled when in-flight jobs must be abandoned.
func (m *Manager) JobContext() context.Context {
	return m.jobCtx
}

// Register adds a cleanup step. See the Priority constants.
func (m *Manager) Register(name string, priority int, fn core.ShutdownFunc) {
	m.registry.Register(name, priority, fn)
	m.logger.Debug("registered shutdown handler",
		zap.String("name", name),
		zap.Int("priority", priority))
}

// Start listens for SIGINT and SIGTERM. The first signal cancels
// Context; the second exits the process immediately. Calling Start again
// is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range m.sigChan {
			m.handleSignal(sig)
		}
	}()
}

func (m *Manager) handleSignal(sig os.Signal) {
	if m.signals.Record(sig) == 1 {
		m.logger.Info("shutdown signal received",
			zap.String("signal", sig.String()),
			zap.Int("in_flight", m.tracker.ActiveCount()))
		m.cancel()
	}
}

// Trigger requests shutdown without a signal, for example when a batch
// has run out of work.
func (m *Manager) Trigger() {
	m.cancel()
}

// TrackJob runs fn with JobContext while counting it as in flight. Once
// draining has begun it returns ErrTrackerClosed without calling fn.
func (m *Manager) TrackJob(id, label string, fn func(ctx context.Context) error) error {
	if m.ctx.Err() != nil || !m.tracker.Start(id, label) {
		return ErrTrackerClosed
	}
	defer m.tracker.Done(id)
	return fn(m.jobCtx)
}

// drain stops intake and waits for running jobs. If ctx ends first the
// jobs are cancelled and given a moment to unwind.
func (m *Manager) drain(ctx context.Context) error {
	m.tracker.Close()
	if n := m.tracker.ActiveCount(); n > 0 {
		m.logger.Info("waiting for in-flight jobs", zap.Int("count", n))
	}

	err := m.tracker.Wait(ctx)
	if err == nil {
		return nil
	}

	m.logger.Warn("drain deadline reached, cancelling jobs",
		zap.Strings("in_flight", m.tracker.Active()))
	m.jobCancel()

	grace, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = m.tracker.Wait(grace)
	return err
}

// Shutdown cancels both intake and, after draining, job contexts, then
// runs the registered steps in priority order within the timeout. Only
// the first call does any work.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	started := m.started
	m.mu.Unlock()

	start := time.Now()
	m.cancel()
	m.logger.Info("shutting down",
		zap.Duration("timeout", m.timeout),
		zap.Strings("handlers", m.registry.Names()))

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	err := m.registry.Shutdown(ctx, func(name string, err error) {
		if err != nil {
			m.logger.Error("shutdown step failed", zap.String("step", name), zap.Error(err))
			return
		}
		m.logger.Debug("shutdown step done", zap.String("step", name))
	})
	m.jobCancel()

	if started {
		signal.Stop(m.sigChan)
		close(m.sigChan)
	}

	if err != nil {
		m.logger.Error("shutdown completed with errors", zap.Duration("duration", time.Since(start)))
		return err
	}
	m.logger.Info("shutdown complete", zap.Duration("duration", time.Since(start)))
	return nil
}

// ExitCode returns the code the process should exit with when it stops
// because of a signal, or core.ExitCodeSuccess when none was received.
func (m *Manager) ExitCode() int {
	return SignalExitCode(m.signals.Last())
}

// ActiveJobs returns the number of in-flight jobs.
func (m *Manager) ActiveJobs() int {
	return m.tracker.ActiveCount()
}

// IsShuttingDown reports whether shutdown was requested.
func (m *Manager) IsShuttingDown() bool {
	return m.ctx.Err() != nil
}

// RegisteredHandlers returns the step names in execution order.
func (m *Manager) RegisteredHandlers() []string {
	return m.registry.Names()
}
