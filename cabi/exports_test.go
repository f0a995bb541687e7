//go:build cgo && (!ncnn || stub)

package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go_waifu2x/w2xruntime"
)

// openEngine creates a GPU context and a loaded CPU engine through the
// exports. Cleanup frees both.
func openEngine(t *testing.T) (gpu, engine uintptr) {
	t.Helper()
	lastErrorString()

	g := init_gpu_instance()
	if g == 0 {
		t.Fatalf("init_gpu_instance() = 0: %s", lastErrorString())
	}
	if n := get_gpu_count(g); n < 0 {
		t.Errorf("get_gpu_count() = %d, want >= 0", n)
	}

	e := init_waifu2x(g, w2xruntime.CPUDeviceID, 0, 1, 0, 4, 400, 18)
	if e == 0 {
		t.Fatalf("init_waifu2x() = 0: %s", lastErrorString())
	}

	param, bin := writeModelFiles(t)
	cParam, cBin := cString(param), cString(bin)
	defer freeCString(cParam)
	defer freeCString(cBin)
	if rc := load(e, cParam, cBin); rc != 0 {
		t.Fatalf("load() = %d: %s", rc, lastErrorString())
	}

	t.Cleanup(func() {
		free_waifu2x(e)
		destroy_gpu_instance(g)
	})
	return uintptr(g), uintptr(e)
}

func testPixels(w, h, c int) []byte {
	pixels := make([]byte, w*h*c)
	for i := range pixels {
		pixels[i] = byte(i * 7)
	}
	return pixels
}

func TestExports_LoadMissingModel(t *testing.T) {
	_, engine := openEngine(t)

	missing := cString(filepath.Join(t.TempDir(), "missing.param"))
	defer freeCString(missing)
	if rc := load(cHandle(engine), missing, missing); rc != w2xruntime.StatusModelNotFound {
		t.Errorf("load(missing) = %d, want %d", rc, w2xruntime.StatusModelNotFound)
	}
	if msg := lastErrorString(); msg == "" {
		t.Error("w2x_last_error() empty after a failed load")
	}
}

func TestExports_ProcessFreeImageCycles(t *testing.T) {
	_, engine := openEngine(t)

	in := newInputImage(testPixels(4, 4, 3), 4, 4, 3)
	defer freeInputImage(in)

	live := w2xruntime.LiveAllocations()
	for i := 0; i < 1000; i++ {
		out := newOutputImage(8, 8)
		mat := cHandle(0)

		var rc int
		if i%2 == 0 {
			rc = int(process_cpu(cHandle(engine), in, out, &mat))
		} else {
			rc = int(process(cHandle(engine), in, out, &mat))
		}
		if rc != 0 {
			freeImageStruct(out)
			t.Fatalf("cycle %d: process = %d: %s", i, rc, lastErrorString())
		}
		if w, h, c := imageShape(out); w != 8 || h != 8 || c != 3 {
			t.Fatalf("cycle %d: output %dx%dx%d, want 8x8x3", i, w, h, c)
		}
		if imageData(out) == nil || mat == 0 {
			t.Fatalf("cycle %d: no output data or allocation handle", i)
		}
		free_image(mat)
		freeImageStruct(out)
	}
	if got := w2xruntime.LiveAllocations(); got != live {
		t.Errorf("LiveAllocations() after 1000 cycles = %d, want %d", got, live)
	}
	if msg := lastErrorString(); msg != "" {
		t.Errorf("unexpected error recorded: %s", msg)
	}
}

func TestExports_DoubleFreeImage(t *testing.T) {
	_, engine := openEngine(t)

	in := newInputImage(testPixels(2, 2, 4), 2, 2, 4)
	defer freeInputImage(in)
	out := newOutputImage(4, 4)
	defer freeImageStruct(out)

	mat := cHandle(0)
	if rc := process_cpu(cHandle(engine), in, out, &mat); rc != 0 {
		t.Fatalf("process_cpu() = %d: %s", rc, lastErrorString())
	}
	live := w2xruntime.LiveAllocations()

	free_image(mat)
	if msg := lastErrorString(); msg != "" {
		t.Fatalf("first free_image() recorded %q", msg)
	}
	free_image(mat)
	if msg := lastErrorString(); !strings.Contains(msg, "stale handle") {
		t.Errorf("second free_image() error = %q, want stale handle", msg)
	}
	if got := w2xruntime.LiveAllocations(); got != live-1 {
		t.Errorf("LiveAllocations() = %d, want %d", got, live-1)
	}

	// An engine handle is not an image; the engine stays usable.
	free_image(cHandle(engine))
	if msg := lastErrorString(); !strings.Contains(msg, "not an image") {
		t.Errorf("free_image(engine) error = %q", msg)
	}
	out2 := newOutputImage(4, 4)
	defer freeImageStruct(out2)
	if rc := process_cpu(cHandle(engine), in, out2, &mat); rc != 0 {
		t.Fatalf("process_cpu() after misuse = %d: %s", rc, lastErrorString())
	}
	free_image(mat)
}

func TestExports_ConcurrentFreeImage(t *testing.T) {
	_, engine := openEngine(t)

	in := newInputImage(testPixels(2, 2, 3), 2, 2, 3)
	defer freeInputImage(in)

	live := w2xruntime.LiveAllocations()
	for i := 0; i < 100; i++ {
		out := newOutputImage(4, 4)
		mat := cHandle(0)
		if rc := process_cpu(cHandle(engine), in, out, &mat); rc != 0 {
			freeImageStruct(out)
			t.Fatalf("process_cpu() = %d: %s", rc, lastErrorString())
		}

		var wg sync.WaitGroup
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				free_image(mat)
			}()
		}
		wg.Wait()
		freeImageStruct(out)
	}
	lastErrorString()
	if got := w2xruntime.LiveAllocations(); got != live {
		t.Errorf("LiveAllocations() = %d, want %d", got, live)
	}
}

func TestExports_ProcessDetached(t *testing.T) {
	_, engine := openEngine(t)

	pixels := testPixels(3, 2, 3)
	in := newInputImage(pixels, 3, 2, 3)
	defer freeInputImage(in)

	live := w2xruntime.LiveAllocations()
	for i := 0; i < 1000; i++ {
		out := newOutputImage(6, 4)
		if rc := process_detached(cHandle(engine), in, out, 1); rc != 0 {
			freeImageStruct(out)
			t.Fatalf("cycle %d: process_detached() = %d: %s", i, rc, lastErrorString())
		}
		if i == 0 {
			got := imagePixels(out)
			if len(got) != 6*4*3 {
				t.Errorf("detached output holds %d bytes, want %d", len(got), 6*4*3)
			}
			if bytes.Equal(got, make([]byte, len(got))) {
				t.Error("detached output is all zero")
			}
		}
		free_buffer(imageData(out))
		freeImageStruct(out)
	}
	if got := w2xruntime.LiveAllocations(); got != live {
		t.Errorf("LiveAllocations() = %d, want %d", got, live)
	}
	free_buffer(nil)
}

func TestExports_ProcessRejectsBadBuffers(t *testing.T) {
	_, engine := openEngine(t)

	in := newInputImage(testPixels(4, 4, 3), 4, 4, 3)
	defer freeInputImage(in)

	out := newOutputImage(7, 8)
	defer freeImageStruct(out)
	mat := cHandle(0)
	if rc := process(cHandle(engine), in, out, &mat); rc != w2xruntime.StatusDimensionMismatch {
		t.Errorf("process(7x8 output) = %d, want %d", rc, w2xruntime.StatusDimensionMismatch)
	}
	if imageData(out) != nil || mat != 0 {
		t.Error("failed process left output data or an allocation handle")
	}

	empty := newInputImage(nil, 4, 4, 3)
	defer freeInputImage(empty)
	out8 := newOutputImage(8, 8)
	defer freeImageStruct(out8)
	if rc := process_cpu(cHandle(engine), empty, out8, &mat); rc != w2xruntime.StatusInvalidArgument {
		t.Errorf("process_cpu(no data) = %d, want %d", rc, w2xruntime.StatusInvalidArgument)
	}
	if rc := process_cpu(cHandle(engine), in, out8, nil); rc != w2xruntime.StatusInvalidArgument {
		t.Errorf("process_cpu(nil mat) = %d, want %d", rc, w2xruntime.StatusInvalidArgument)
	}
	if rc := process_cpu(0, in, out8, &mat); rc != w2xruntime.StatusInvalidArgument {
		t.Errorf("process_cpu(null engine) = %d, want %d", rc, w2xruntime.StatusInvalidArgument)
	}
	lastErrorString()
}

func TestExports_GPUContextOutlivesEngines(t *testing.T) {
	lastErrorString()
	gpu := init_gpu_instance()
	engine := init_waifu2x(gpu, w2xruntime.CPUDeviceID, 0, 1, 0, 2, 400, 18)

	if rc := destroy_gpu_instance(gpu); rc != w2xruntime.StatusBusy {
		t.Errorf("destroy_gpu_instance() with a live engine = %d, want %d", rc, w2xruntime.StatusBusy)
	}
	if n := get_gpu_count(gpu); n < 0 {
		t.Errorf("get_gpu_count() after refused destroy = %d", n)
	}

	free_waifu2x(engine)
	if msg := lastErrorString(); msg != "" {
		t.Errorf("free_waifu2x() recorded %q", msg)
	}
	free_waifu2x(engine)
	if msg := lastErrorString(); !strings.Contains(msg, "stale handle") {
		t.Errorf("second free_waifu2x() error = %q, want stale handle", msg)
	}

	if rc := destroy_gpu_instance(gpu); rc != w2xruntime.StatusOK {
		t.Errorf("destroy_gpu_instance() = %d: %s", rc, lastErrorString())
	}
	if rc := destroy_gpu_instance(gpu); rc == w2xruntime.StatusOK {
		t.Error("second destroy_gpu_instance() succeeded")
	}
	lastErrorString()
}
