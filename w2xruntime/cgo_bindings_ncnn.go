//go:build ncnn && cgo && !stub

// Native bindings for the waifu2x ncnn shim.
//
// The shim (waifu2x_shim.cpp, compiled by cgo with this file) wraps
// waifu2x-ncnn-vulkan in C entry points prefixed with ncnn_waifu2x_ so that
// the cabi package can export the unprefixed names. ncnn_waifu2x_free
// deletes the upscaler only; GPU teardown happens through
// ncnn_waifu2x_destroy_gpu_instance when the last GPUContext closes. Paths
// are passed as UTF-8 and the shim widens them on Windows.
//
// Point CGO_CXXFLAGS at the waifu2x-ncnn-vulkan and ncnn headers and
// CGO_LDFLAGS at their libraries:
//
//	CGO_CXXFLAGS="-I$W2X_SRC -I$NCNN/include/ncnn" \
//	CGO_LDFLAGS="-L$W2X_BUILD -L$NCNN/lib" go build -tags ncnn ./...

package w2xruntime

/*
#cgo CXXFLAGS: -std=c++11
#cgo LDFLAGS: -lwaifu2x-ncnn-vulkan -lncnn -lstdc++
#include <stdint.h>
#include <stdlib.h>

typedef struct {
	unsigned char *data;
	int w;
	int h;
	int c;
} w2x_image;

extern void *ncnn_waifu2x_init(int gpuid, int tta_mode, int num_threads, int noise, int scale, int tilesize, int prepadding);
extern void ncnn_waifu2x_init_gpu_instance(void);
extern void ncnn_waifu2x_destroy_gpu_instance(void);
extern int ncnn_waifu2x_get_gpu_count(void);
extern uint32_t ncnn_waifu2x_get_heap_budget(int gpuid);
extern int ncnn_waifu2x_load(void *w, const char *param_path, const char *model_path);
extern int ncnn_waifu2x_process(void *w, const w2x_image *in, w2x_image *out, void **mat_ptr);
extern int ncnn_waifu2x_process_cpu(void *w, const w2x_image *in, w2x_image *out, void **mat_ptr);
extern void ncnn_waifu2x_free_image(void *mat_ptr);
extern void ncnn_waifu2x_free(void *w);
*/
import "C"

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"unsafe"
)

// gpuRefs counts open GPUContexts; ncnn keeps a single instance per process.
var gpuRefs struct {
	mu   sync.Mutex
	refs int
}

func acquireGPUInstanceImpl() error {
	gpuRefs.mu.Lock()
	defer gpuRefs.mu.Unlock()
	if gpuRefs.refs == 0 {
		C.ncnn_waifu2x_init_gpu_instance()
	}
	gpuRefs.refs++
	return nil
}

func releaseGPUInstanceImpl() {
	gpuRefs.mu.Lock()
	defer gpuRefs.mu.Unlock()
	if gpuRefs.refs == 0 {
		return
	}
	gpuRefs.refs--
	if gpuRefs.refs == 0 {
		C.ncnn_waifu2x_destroy_gpu_instance()
	}
}

func gpuCountImpl() int {
	return int(C.ncnn_waifu2x_get_gpu_count())
}

func heapBudgetImpl(gpuID int) uint32 {
	return uint32(C.ncnn_waifu2x_get_heap_budget(C.int(gpuID)))
}

func backendInfoImpl() string {
	return "ncnn (native waifu2x shim)"
}

type ncnnEngine struct {
	ptr unsafe.Pointer
}

func newEngineImpl(cfg Config) (nativeEngine, error) {
	ptr := C.ncnn_waifu2x_init(
		C.int(cfg.GPUID),
		C.int(boolToInt(cfg.TTAMode)),
		C.int(cfg.NumThreads),
		C.int(cfg.Noise),
		C.int(cfg.Scale),
		C.int(cfg.TileSize),
		C.int(cfg.PrePadding),
	)
	if ptr == nil {
		return nil, fmt.Errorf("%w: ncnn_waifu2x_init returned NULL", ErrModelLoadFailed)
	}
	return &ncnnEngine{ptr: ptr}, nil
}

func (n *ncnnEngine) load(paramPath, modelPath string) error {
	// The shim only reports a non-zero code, so missing files are detected here.
	for _, p := range []string{paramPath, modelPath} {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrModelNotFound, p)
		}
	}

	cParam := C.CString(paramPath)
	defer C.free(unsafe.Pointer(cParam))
	cModel := C.CString(modelPath)
	defer C.free(unsafe.Pointer(cModel))

	if rc := C.ncnn_waifu2x_load(n.ptr, cParam, cModel); rc != 0 {
		return fmt.Errorf("%w: ncnn_waifu2x_load returned %d", ErrModelLoadFailed, int(rc))
	}
	return nil
}

func (n *ncnnEngine) process(in PixelBuffer, outW, outH int, cpu bool) (nativeAlloc, error) {
	var pinner runtime.Pinner
	pinner.Pin(&in.Data[0])
	defer pinner.Unpin()

	cIn := C.w2x_image{
		data: (*C.uchar)(unsafe.Pointer(&in.Data[0])),
		w:    C.int(in.Width),
		h:    C.int(in.Height),
		c:    C.int(in.Channels),
	}
	cOut := C.w2x_image{w: C.int(outW), h: C.int(outH), c: C.int(in.Channels)}
	var mat unsafe.Pointer

	var rc C.int
	if cpu {
		rc = C.ncnn_waifu2x_process_cpu(n.ptr, &cIn, &cOut, &mat)
	} else {
		rc = C.ncnn_waifu2x_process(n.ptr, &cIn, &cOut, &mat)
	}
	if rc != 0 {
		if mat != nil {
			C.ncnn_waifu2x_free_image(mat)
		}
		return nil, fmt.Errorf("%w: native process returned %d", ErrProcessFailed, int(rc))
	}
	if cOut.data == nil || mat == nil {
		if mat != nil {
			C.ncnn_waifu2x_free_image(mat)
		}
		return nil, fmt.Errorf("%w: native process returned no output", ErrProcessFailed)
	}

	size := int(cOut.w) * int(cOut.h) * int(cOut.c)
	return &matAlloc{
		mat:  mat,
		data: unsafe.Slice((*byte)(unsafe.Pointer(cOut.data)), size),
	}, nil
}

func (n *ncnnEngine) free() {
	if n.ptr != nil {
		C.ncnn_waifu2x_free(n.ptr)
		n.ptr = nil
	}
}

// matAlloc is an output matrix owned by the native allocator.
type matAlloc struct {
	mat  unsafe.Pointer
	data []byte
}

func (m *matAlloc) bytes() []byte { return m.data }

func (m *matAlloc) free() {
	if m.mat != nil {
		C.ncnn_waifu2x_free_image(m.mat)
		m.mat = nil
		m.data = nil
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
