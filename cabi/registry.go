package main

import (
	"fmt"
	"sync"
	"unsafe"

	"go_waifu2x/w2xruntime"
)

// lastError holds the message of the most recent failure.
var lastError struct {
	mu  sync.Mutex
	msg string
}

// fail records err and returns its status code.
func fail(err error) int {
	if err == nil {
		return w2xruntime.StatusOK
	}
	lastError.mu.Lock()
	lastError.msg = err.Error()
	lastError.mu.Unlock()
	return w2xruntime.StatusCode(err)
}

// takeLastError returns and clears the recorded message.
func takeLastError() string {
	lastError.mu.Lock()
	defer lastError.mu.Unlock()
	msg := lastError.msg
	lastError.msg = ""
	return msg
}

// engineEntry is what an engine handle refers to. gpu is kept so the
// context outlives every engine built from it.
type engineEntry struct {
	engine *w2xruntime.Engine
	gpu    *w2xruntime.GPUContext
}

// imageEntry is what an image (mat) handle refers to: the engine buffer
// and, when the backend keeps pixels in Go memory, the C copy handed out.
type imageEntry struct {
	buf   *w2xruntime.OwnedBuffer
	cdata unsafe.Pointer
}

// handleMu serialises handle deletion.
var handleMu sync.Mutex

// asGPU checks the type behind a handle value.
func asGPU(v any) (*w2xruntime.GPUContext, error) {
	gpu, ok := v.(*w2xruntime.GPUContext)
	if !ok {
		return nil, fmt.Errorf("%w: handle is %T, not a GPU context", w2xruntime.ErrInvalidConfig, v)
	}
	return gpu, nil
}

func asEngine(v any) (*engineEntry, error) {
	e, ok := v.(*engineEntry)
	if !ok {
		return nil, fmt.Errorf("%w: handle is %T, not an engine", w2xruntime.ErrInvalidConfig, v)
	}
	return e, nil
}

func asImage(v any) (*imageEntry, error) {
	img, ok := v.(*imageEntry)
	if !ok {
		return nil, fmt.Errorf("%w: handle is %T, not an image", w2xruntime.ErrInvalidConfig, v)
	}
	return img, nil
}

// newEngine builds and attaches an engine to gpu from the init_waifu2x
// arguments.
func newEngine(gpu *w2xruntime.GPUContext, gpuID int, tta bool, threads, noise, scale, tile, prepad int) *engineEntry {
	cfg := w2xruntime.Config{
		GPUID:      gpuID,
		TTAMode:    tta,
		NumThreads: threads,
		Noise:      noise,
		Scale:      scale,
		TileSize:   tile,
		PrePadding: prepad,
	}
	return &engineEntry{engine: w2xruntime.NewEngine(gpu, cfg), gpu: gpu}
}

// process runs one call of the engine. A zero-length input is rejected
// before the engine sees it.
func (e *engineEntry) process(in w2xruntime.PixelBuffer, outW, outH int, cpu bool) (*w2xruntime.OwnedBuffer, error) {
	if len(in.Data) == 0 {
		return nil, fmt.Errorf("%w: empty input", w2xruntime.ErrInvalidBuffer)
	}
	if cpu {
		return e.engine.ProcessCPU(in, outW, outH)
	}
	return e.engine.Process(in, outW, outH)
}
