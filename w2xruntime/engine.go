package w2xruntime

import (
	"errors"
	"sync"
)

// Engine is one configured upscaler instance (the engine handle).
//
// Construction always succeeds. Invalid settings and unusable devices are
// reported by Load, and Process fails until Load has succeeded. Calls on
// one Engine are serialised.
type Engine struct {
	mu        sync.Mutex
	cfg       Config
	gpu       *GPUContext
	native    nativeEngine
	attachErr error
	loaded    bool
	closed    bool
	paramPath string
	modelPath string
}

// NewEngine creates an engine bound to gpu. The scale is clamped to
// MaxEngineScale. gpu may be nil for CPU-only engines (GPUID == CPUDeviceID).
func NewEngine(gpu *GPUContext, cfg Config) *Engine {
	cfg.Scale = ClampScale(cfg.Scale)
	e := &Engine{cfg: cfg, gpu: gpu}
	if gpu != nil {
		e.attachErr = gpu.attach(e)
	}
	return e
}

// Config returns the engine configuration after clamping.
func (e *Engine) Config() Config {
	return e.cfg
}

// Scale returns the factor one Process call applies.
func (e *Engine) Scale() int {
	return e.cfg.Scale
}

// Loaded reports whether a model has been loaded successfully.
func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// ModelPaths returns the param and model paths of the last successful Load.
func (e *Engine) ModelPaths() (paramPath, modelPath string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paramPath, e.modelPath
}

// OutputSize returns the output dimensions Process expects for an input of
// width x height.
func (e *Engine) OutputSize(width, height int) (int, int) {
	return width * e.cfg.Scale, height * e.cfg.Scale
}

// Load reads the param and model files. Paths are UTF-8 on every platform.
//
// Errors:
//   - ErrInvalidConfig: the engine configuration is out of range
//   - ErrGPUNotAvailable, ErrGPUContextClosed, ErrInvalidGPU: the device is unusable
//   - ErrModelNotFound: either file is missing
//   - ErrModelLoadFailed: the files could not be parsed
func (e *Engine) Load(paramPath, modelPath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return newError("load", ErrEngineClosed, "engine closed")
	}
	if e.attachErr != nil {
		return newError("load", e.attachErr, "engine built on a closed GPU context")
	}
	if err := e.cfg.Validate(); err != nil {
		return &EngineError{Op: "load", Code: StatusInvalidArgument, Message: err.Error(), Err: ErrInvalidConfig}
	}
	if e.cfg.GPUID != CPUDeviceID {
		if err := e.gpu.usable(e.cfg.GPUID); err != nil {
			return &EngineError{Op: "load", Code: StatusCode(err), Message: err.Error(), Err: err}
		}
	}

	if e.native == nil {
		native, err := newEngineImpl(e.cfg)
		if err != nil {
			return wrapNative("load", ErrModelLoadFailed, err)
		}
		e.native = native
	}

	e.loaded = false
	if err := e.native.load(paramPath, modelPath); err != nil {
		return wrapNative("load", ErrModelLoadFailed, err)
	}
	e.loaded = true
	e.paramPath, e.modelPath = paramPath, modelPath
	return nil
}

// Process upscales in on the configured device. outW and outH must equal
// OutputSize(in.Width, in.Height). in is read only for the duration of the
// call. The result is EngineOwned and must be released by the caller.
func (e *Engine) Process(in PixelBuffer, outW, outH int) (*OwnedBuffer, error) {
	return e.process("process", in, outW, outH, false)
}

// ProcessCPU is Process forced onto the CPU.
func (e *Engine) ProcessCPU(in PixelBuffer, outW, outH int) (*OwnedBuffer, error) {
	return e.process("process_cpu", in, outW, outH, true)
}

// Upscale runs Process with the output size derived from the engine scale.
// CPU-only engines run on the CPU path.
func (e *Engine) Upscale(in PixelBuffer) (*OwnedBuffer, error) {
	outW, outH := e.OutputSize(in.Width, in.Height)
	if e.cfg.GPUID == CPUDeviceID {
		return e.ProcessCPU(in, outW, outH)
	}
	return e.Process(in, outW, outH)
}

func (e *Engine) process(op string, in PixelBuffer, outW, outH int, cpu bool) (*OwnedBuffer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, newError(op, ErrEngineClosed, "engine closed")
	}
	if !e.loaded {
		return nil, newError(op, ErrModelNotLoaded, "call load before %s", op)
	}
	if err := in.Validate(); err != nil {
		return nil, &EngineError{Op: op, Code: StatusInvalidArgument, Message: err.Error(), Err: ErrInvalidBuffer}
	}
	wantW, wantH := in.Width*e.cfg.Scale, in.Height*e.cfg.Scale
	if outW != wantW || outH != wantH {
		return nil, newError(op, ErrDimensionMismatch,
			"declared %dx%d, scale %d of %dx%d gives %dx%d", outW, outH, e.cfg.Scale, in.Width, in.Height, wantW, wantH)
	}
	if !cpu && e.cfg.GPUID != CPUDeviceID {
		if err := e.gpu.usable(e.cfg.GPUID); err != nil {
			return nil, &EngineError{Op: op, Code: StatusCode(err), Message: err.Error(), Err: err}
		}
	}

	alloc, err := e.native.process(in, outW, outH, cpu || e.cfg.GPUID == CPUDeviceID)
	if err != nil {
		return nil, wrapNative(op, ErrProcessFailed, err)
	}
	want := outW * outH * in.Channels
	if got := len(alloc.bytes()); got != want {
		alloc.free()
		return nil, newError(op, ErrProcessFailed, "engine wrote %d bytes, declared %d", got, want)
	}
	return newEngineOwned(alloc, outW, outH, in.Channels), nil
}

// Close destroys the engine and detaches it from its GPU context. The
// context itself stays open. Buffers produced by the engine remain valid
// until released. A second Close returns ErrEngineClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return newError("free_waifu2x", ErrEngineClosed, "engine already closed")
	}
	e.closed = true
	e.loaded = false
	if e.native != nil {
		e.native.free()
		e.native = nil
	}
	if e.gpu != nil && e.attachErr == nil {
		e.gpu.detach(e)
	}
	return nil
}

// wrapNative keeps a backend sentinel when it is one of ours and falls back
// to the given class otherwise.
func wrapNative(op string, class, err error) *EngineError {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee
	}
	code := StatusCode(err)
	sentinel := err
	if code == StatusUnknown {
		code = StatusCode(class)
		sentinel = errors.Join(class, err)
	}
	return &EngineError{Op: op, Code: code, Message: err.Error(), Err: sentinel}
}
