package w2xruntime

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// PooledEngine wraps an Engine with pool bookkeeping.
type PooledEngine struct {
	*Engine
	poolID int
}

// PoolID identifies the engine within its pool.
func (pe *PooledEngine) PoolID() int {
	return pe.poolID
}

// EnginePool hands out loaded engines that share one GPUContext, one caller
// per engine at a time. Engines are created and loaded lazily on Acquire.
type EnginePool struct {
	mu        sync.Mutex
	engines   chan *PooledEngine
	gpu       *GPUContext
	cfg       Config
	paramPath string
	modelPath string
	maxSize   int
	closed    bool
	created   int
	nextID    int
}

// NewEnginePool creates a pool of at most maxSize engines. Every engine is
// built with cfg on gpu and loads paramPath/modelPath.
func NewEnginePool(gpu *GPUContext, cfg Config, paramPath, modelPath string, maxSize int) (*EnginePool, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: pool size %d", ErrInvalidConfig, maxSize)
	}
	return &EnginePool{
		engines:   make(chan *PooledEngine, maxSize),
		gpu:       gpu,
		cfg:       cfg,
		paramPath: paramPath,
		modelPath: modelPath,
		maxSize:   maxSize,
		nextID:    1,
	}, nil
}

// Upscale acquires an engine, upscales in and releases the engine. The
// returned buffer belongs to the caller and outlives the engine.
func (p *EnginePool) Upscale(ctx context.Context, in PixelBuffer) (*OwnedBuffer, error) {
	pe, err := p.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire engine: %w", err)
	}
	defer p.Release(pe)

	return pe.Upscale(in)
}

// Acquire returns an idle engine, creating one while the pool is below
// capacity. It waits for a release otherwise.
//
// Returns ErrPoolClosed after Close and ErrAcquireTimeout when ctx ends first.
func (p *EnginePool) Acquire(ctx context.Context) (*PooledEngine, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}

	select {
	case pe := <-p.engines:
		p.mu.Unlock()
		return pe, nil
	default:
	}

	if p.created < p.maxSize {
		poolID := p.nextID
		p.nextID++
		p.created++
		p.mu.Unlock()

		engine := NewEngine(p.gpu, p.cfg)
		if err := engine.Load(p.paramPath, p.modelPath); err != nil {
			_ = engine.Close()
			p.mu.Lock()
			p.created--
			p.mu.Unlock()
			return nil, err
		}
		return &PooledEngine{Engine: engine, poolID: poolID}, nil
	}
	p.mu.Unlock()

	select {
	case pe, ok := <-p.engines:
		if !ok {
			return nil, ErrPoolClosed
		}
		p.mu.Lock()
		closed := p.closed
		p.mu.Unlock()
		if closed {
			_ = pe.Close()
			return nil, ErrPoolClosed
		}
		return pe, nil
	case <-ctx.Done():
		return nil, ErrAcquireTimeout
	}
}

// Release returns an engine to the pool. Engines released after Close are
// closed instead. Passing nil is a no-op.
func (p *EnginePool) Release(pe *PooledEngine) {
	if pe == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		_ = pe.Close()
		p.created--
		return
	}

	select {
	case p.engines <- pe:
	default:
		_ = pe.Close()
		p.created--
	}
}

// Close closes every idle engine. Engines still acquired are closed when
// released. The GPU context is left open for its owner.
func (p *EnginePool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	close(p.engines)

	var errs []error
	for pe := range p.engines {
		if err := pe.Close(); err != nil {
			errs = append(errs, fmt.Errorf("engine %d: %w", pe.poolID, err))
		}
		p.created--
	}
	return errors.Join(errs...)
}

// Size returns the number of idle engines.
func (p *EnginePool) Size() int {
	return len(p.engines)
}

// Created returns the number of live engines, idle or acquired.
func (p *EnginePool) Created() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}

// MaxSize returns the pool capacity.
func (p *EnginePool) MaxSize() int {
	return p.maxSize
}

// IsClosed reports whether Close has been called.
func (p *EnginePool) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
