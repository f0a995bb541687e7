package main

/*
#include <stdint.h>
#include <stdlib.h>
#include <string.h>

#include "w2x_image.h"
*/
import "C"

import (
	"fmt"
	"runtime/cgo"
	"unsafe"

	"go_waifu2x/w2xruntime"
)

func lookup(h C.uintptr_t) (v any, err error) {
	if h == 0 {
		return nil, fmt.Errorf("%w: null handle", w2xruntime.ErrInvalidConfig)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: stale handle", w2xruntime.ErrInvalidConfig)
		}
	}()
	return cgo.Handle(h).Value(), nil
}

// take resolves h, runs claim on its value and deletes the handle when
// claim succeeds. Racing frees of one handle are serialised, so only one
// of them gets the value and the rest see a stale handle.
func take(h C.uintptr_t, claim func(v any) error) (any, error) {
	handleMu.Lock()
	defer handleMu.Unlock()
	v, err := lookup(h)
	if err != nil {
		return nil, err
	}
	if err := claim(v); err != nil {
		return nil, err
	}
	cgo.Handle(h).Delete()
	return v, nil
}

//export init_gpu_instance
func init_gpu_instance() C.uintptr_t {
	gpu, err := w2xruntime.NewGPUContext()
	if err != nil {
		fail(err)
		return 0
	}
	return C.uintptr_t(cgo.NewHandle(gpu))
}

//export destroy_gpu_instance
func destroy_gpu_instance(ctx C.uintptr_t) C.int {
	_, err := take(ctx, func(v any) error {
		gpu, err := asGPU(v)
		if err != nil {
			return err
		}
		return gpu.Close()
	})
	return C.int(fail(err))
}

//export get_gpu_count
func get_gpu_count(ctx C.uintptr_t) C.int {
	v, err := lookup(ctx)
	if err != nil {
		fail(err)
		return 0
	}
	gpu, err := asGPU(v)
	if err != nil {
		fail(err)
		return 0
	}
	return C.int(gpu.DeviceCount())
}

//export get_heap_budget
func get_heap_budget(ctx C.uintptr_t, gpuid C.int) C.uint32_t {
	v, err := lookup(ctx)
	if err != nil {
		fail(err)
		return 0
	}
	gpu, err := asGPU(v)
	if err != nil {
		fail(err)
		return 0
	}
	budget, err := gpu.HeapBudget(int(gpuid))
	if err != nil {
		fail(err)
		return 0
	}
	return C.uint32_t(budget)
}

//export init_waifu2x
func init_waifu2x(ctx C.uintptr_t, gpuid, tta, threads, noise, scale, tile, prepad C.int) C.uintptr_t {
	v, err := lookup(ctx)
	if err != nil {
		fail(err)
		return 0
	}
	gpu, err := asGPU(v)
	if err != nil {
		fail(err)
		return 0
	}
	e := newEngine(gpu, int(gpuid), tta != 0, int(threads), int(noise), int(scale), int(tile), int(prepad))
	return C.uintptr_t(cgo.NewHandle(e))
}

//export load
func load(engine C.uintptr_t, param, model *C.char) C.int {
	v, err := lookup(engine)
	if err != nil {
		return C.int(fail(err))
	}
	e, err := asEngine(v)
	if err != nil {
		return C.int(fail(err))
	}
	if param == nil || model == nil {
		return C.int(fail(fmt.Errorf("%w: null path", w2xruntime.ErrModelNotFound)))
	}
	return C.int(fail(e.engine.Load(C.GoString(param), C.GoString(model))))
}

//export process
func process(engine C.uintptr_t, in *C.Image, out *C.Image, mat *C.uintptr_t) C.int {
	return runProcess(engine, in, out, mat, false)
}

//export process_cpu
func process_cpu(engine C.uintptr_t, in *C.Image, out *C.Image, mat *C.uintptr_t) C.int {
	return runProcess(engine, in, out, mat, true)
}

// runProcess upscales in into an engine buffer. out.data points at the
// pixels until free_image(*mat) is called.
func runProcess(engine C.uintptr_t, in *C.Image, out *C.Image, mat *C.uintptr_t, cpu bool) C.int {
	if out == nil || mat == nil {
		return C.int(fail(fmt.Errorf("%w: null output", w2xruntime.ErrInvalidBuffer)))
	}
	buf, code := processInto(engine, in, out, cpu)
	if buf == nil {
		return code
	}

	entry := &imageEntry{buf: buf}
	pixels, err := buf.View().Bytes()
	if err != nil {
		_ = buf.Release()
		return C.int(fail(err))
	}
	if nativeEngineMemory {
		out.data = (*C.uchar)(unsafe.Pointer(&pixels[0]))
	} else {
		entry.cdata = C.malloc(C.size_t(len(pixels)))
		C.memcpy(entry.cdata, unsafe.Pointer(&pixels[0]), C.size_t(len(pixels)))
		out.data = (*C.uchar)(entry.cdata)
	}
	*mat = C.uintptr_t(cgo.NewHandle(entry))
	return C.int(w2xruntime.StatusOK)
}

// processInto validates the C images and runs the engine. out.c is set
// from the input; out.w and out.h are the caller's declared size.
func processInto(engine C.uintptr_t, in *C.Image, out *C.Image, cpu bool) (*w2xruntime.OwnedBuffer, C.int) {
	v, err := lookup(engine)
	if err != nil {
		return nil, C.int(fail(err))
	}
	e, err := asEngine(v)
	if err != nil {
		return nil, C.int(fail(err))
	}
	if in == nil || in.data == nil || in.w <= 0 || in.h <= 0 || in.c <= 0 {
		return nil, C.int(fail(fmt.Errorf("%w: null or empty input", w2xruntime.ErrInvalidBuffer)))
	}

	n := int(in.w) * int(in.h) * int(in.c)
	pb := w2xruntime.PixelBuffer{
		Data:     unsafe.Slice((*byte)(unsafe.Pointer(in.data)), n),
		Width:    int(in.w),
		Height:   int(in.h),
		Channels: int(in.c),
	}
	buf, err := e.process(pb, int(out.w), int(out.h), cpu)
	if err != nil {
		return nil, C.int(fail(err))
	}
	out.c = in.c
	return buf, C.int(w2xruntime.StatusOK)
}

//export free_image
func free_image(mat C.uintptr_t) {
	v, err := take(mat, func(v any) error {
		_, err := asImage(v)
		return err
	})
	if err != nil {
		fail(err)
		return
	}
	img := v.(*imageEntry)
	if img.cdata != nil {
		C.free(img.cdata)
		img.cdata = nil
	}
	if err := img.buf.Release(); err != nil {
		fail(err)
	}
}

// process_detached is process without an allocation handle: out.data is
// malloc memory owned by the caller and freed with free_buffer.
//
//export process_detached
func process_detached(engine C.uintptr_t, in *C.Image, out *C.Image, cpu C.int) C.int {
	if out == nil {
		return C.int(fail(fmt.Errorf("%w: null output", w2xruntime.ErrInvalidBuffer)))
	}
	buf, code := processInto(engine, in, out, cpu != 0)
	if buf == nil {
		return code
	}
	defer buf.Release()

	pixels, err := buf.View().Bytes()
	if err != nil {
		return C.int(fail(err))
	}
	cdata := C.malloc(C.size_t(len(pixels)))
	C.memcpy(cdata, unsafe.Pointer(&pixels[0]), C.size_t(len(pixels)))
	out.data = (*C.uchar)(cdata)
	return C.int(w2xruntime.StatusOK)
}

//export free_buffer
func free_buffer(data *C.uchar) {
	if data != nil {
		C.free(unsafe.Pointer(data))
	}
}

//export free_waifu2x
func free_waifu2x(engine C.uintptr_t) {
	v, err := take(engine, func(v any) error {
		_, err := asEngine(v)
		return err
	})
	if err != nil {
		fail(err)
		return
	}
	if err := v.(*engineEntry).engine.Close(); err != nil {
		fail(err)
	}
}

// w2x_last_error returns the last failure message, or NULL when there
// is none. The string is freed with w2x_free_string.
//
//export w2x_last_error
func w2x_last_error() *C.char {
	msg := takeLastError()
	if msg == "" {
		return nil
	}
	return C.CString(msg)
}

//export w2x_free_string
func w2x_free_string(s *C.char) {
	if s != nil {
		C.free(unsafe.Pointer(s))
	}
}
