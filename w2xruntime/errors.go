package w2xruntime

import (
	"errors"
	"fmt"
)

// Status codes returned across the C ABI. Zero is success; every failure
// class has its own negative code.
const (
	StatusOK                = 0
	StatusInvalidArgument   = -1
	StatusModelNotFound     = -2
	StatusModelLoadFailed   = -3
	StatusModelNotLoaded    = -4
	StatusDimensionMismatch = -5
	StatusGPUNotAvailable   = -6
	StatusInvalidGPU        = -7
	StatusProcessFailed     = -8
	StatusClosed            = -9
	StatusBufferReleased    = -10
	StatusBusy              = -11
	StatusUnknown           = -100
)

// Sentinel errors for common failure conditions.
// These are used for error checking with errors.Is().
var (
	// ErrModelNotFound indicates a param or model file does not exist.
	ErrModelNotFound = errors.New("w2xruntime: model file not found")

	// ErrModelLoadFailed indicates the model files exist but could not be loaded.
	ErrModelLoadFailed = errors.New("w2xruntime: failed to load model")

	// ErrModelNotLoaded indicates Process was called before a successful Load.
	ErrModelNotLoaded = errors.New("w2xruntime: model not loaded")

	// ErrInvalidConfig indicates an engine configuration value is out of range.
	ErrInvalidConfig = errors.New("w2xruntime: invalid engine configuration")

	// ErrInvalidBuffer indicates a pixel buffer violates len == w*h*c.
	ErrInvalidBuffer = errors.New("w2xruntime: invalid pixel buffer")

	// ErrDimensionMismatch indicates the declared output size does not match
	// the input size times the engine scale.
	ErrDimensionMismatch = errors.New("w2xruntime: output dimensions do not match scale")

	// ErrGPUNotAvailable indicates a GPU path was requested without a usable GPU context.
	ErrGPUNotAvailable = errors.New("w2xruntime: GPU not available")

	// ErrInvalidGPU indicates a GPU id outside the devices of the context.
	ErrInvalidGPU = errors.New("w2xruntime: invalid GPU id")

	// ErrProcessFailed indicates the engine failed during inference.
	ErrProcessFailed = errors.New("w2xruntime: process failed")

	// ErrEngineClosed indicates use of an engine after Close.
	ErrEngineClosed = errors.New("w2xruntime: engine closed")

	// ErrGPUContextClosed indicates use of a GPU context after Close.
	ErrGPUContextClosed = errors.New("w2xruntime: GPU context closed")

	// ErrGPUContextInUse indicates Close on a GPU context with live engines.
	ErrGPUContextInUse = errors.New("w2xruntime: GPU context has live engines")

	// ErrBufferReleased indicates a second release or a read after release.
	ErrBufferReleased = errors.New("w2xruntime: buffer already released")

	// ErrPoolClosed indicates the engine pool has been shut down.
	ErrPoolClosed = errors.New("w2xruntime: engine pool closed")

	// ErrAcquireTimeout indicates no pooled engine became free before the context ended.
	ErrAcquireTimeout = errors.New("w2xruntime: timeout acquiring engine from pool")
)

// EngineError carries the failing operation and its ABI status code
// alongside the sentinel it wraps.
type EngineError struct {
	Op      string // Operation that failed (e.g., "load", "process")
	Code    int    // Status code reported across the C ABI
	Message string // Human-readable detail
	Err     error  // Wrapped sentinel
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("waifu2x %s: %s (code: %d): %v", e.Op, e.Message, e.Code, e.Err)
	}
	return fmt.Sprintf("waifu2x %s: %s (code: %d)", e.Op, e.Message, e.Code)
}

// Unwrap returns the wrapped sentinel so errors.Is works through EngineError.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// statusTable orders sentinels by the code they map to.
var statusTable = []struct {
	err  error
	code int
}{
	{ErrInvalidConfig, StatusInvalidArgument},
	{ErrInvalidBuffer, StatusInvalidArgument},
	{ErrModelNotFound, StatusModelNotFound},
	{ErrModelLoadFailed, StatusModelLoadFailed},
	{ErrModelNotLoaded, StatusModelNotLoaded},
	{ErrDimensionMismatch, StatusDimensionMismatch},
	{ErrGPUNotAvailable, StatusGPUNotAvailable},
	{ErrInvalidGPU, StatusInvalidGPU},
	{ErrProcessFailed, StatusProcessFailed},
	{ErrEngineClosed, StatusClosed},
	{ErrGPUContextClosed, StatusClosed},
	{ErrPoolClosed, StatusClosed},
	{ErrBufferReleased, StatusBufferReleased},
	{ErrGPUContextInUse, StatusBusy},
	{ErrAcquireTimeout, StatusBusy},
}

// StatusCode maps an error to the integer status used by the C ABI.
// nil maps to StatusOK; errors not produced by this package map to StatusUnknown.
func StatusCode(err error) int {
	if err == nil {
		return StatusOK
	}
	var ee *EngineError
	if errors.As(err, &ee) && ee.Code != 0 {
		return ee.Code
	}
	for _, s := range statusTable {
		if errors.Is(err, s.err) {
			return s.code
		}
	}
	return StatusUnknown
}

// newError builds an EngineError whose code is derived from the sentinel.
func newError(op string, sentinel error, format string, args ...any) *EngineError {
	return &EngineError{
		Op:      op,
		Code:    StatusCode(sentinel),
		Message: fmt.Sprintf(format, args...),
		Err:     sentinel,
	}
}
