//go:build !ncnn || !cgo || stub

// Software backend used when the native waifu2x shim is not linked.
// Build with: go build
// Or explicitly: go build -tags stub

package w2xruntime

import (
	"bufio"
	"fmt"
	"image"
	"os"
	"strings"
	"sync"

	"golang.org/x/image/draw"
)

// ncnnParamMagic is the first line of every ncnn .param file.
const ncnnParamMagic = "7767517"

var stubGPU struct {
	mu   sync.Mutex
	refs int
}

// acquireGPUInstanceImpl counts owners; there is no device to initialise.
func acquireGPUInstanceImpl() error {
	stubGPU.mu.Lock()
	stubGPU.refs++
	stubGPU.mu.Unlock()
	return nil
}

func releaseGPUInstanceImpl() {
	stubGPU.mu.Lock()
	if stubGPU.refs > 0 {
		stubGPU.refs--
	}
	stubGPU.mu.Unlock()
}

// gpuCountImpl reports no GPU devices.
func gpuCountImpl() int {
	return 0
}

func heapBudgetImpl(gpuID int) uint32 {
	return 0
}

func backendInfoImpl() string {
	return "software (no native waifu2x library linked)"
}

// softwareEngine resamples with Catmull-Rom instead of running the network.
type softwareEngine struct {
	cfg    Config
	loaded bool
}

func newEngineImpl(cfg Config) (nativeEngine, error) {
	return &softwareEngine{cfg: cfg}, nil
}

// load applies the same file checks the native engine fails on: both files
// must exist, the param file must carry the ncnn magic and the weights must
// not be empty.
func (s *softwareEngine) load(paramPath, modelPath string) error {
	for _, p := range []string{paramPath, modelPath} {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrModelNotFound, p)
		} else if err != nil {
			return fmt.Errorf("%w: unable to access %s: %v", ErrModelLoadFailed, p, err)
		}
	}

	f, err := os.Open(paramPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelLoadFailed, err)
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("%w: %s is empty", ErrModelLoadFailed, paramPath)
	}
	if strings.TrimSpace(line) != ncnnParamMagic {
		return fmt.Errorf("%w: %s is not an ncnn param file", ErrModelLoadFailed, paramPath)
	}

	info, err := os.Stat(modelPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelLoadFailed, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", ErrModelLoadFailed, modelPath)
	}

	s.loaded = true
	return nil
}

func (s *softwareEngine) process(in PixelBuffer, outW, outH int, cpu bool) (nativeAlloc, error) {
	if !s.loaded {
		return nil, ErrModelNotLoaded
	}
	if !cpu {
		return nil, fmt.Errorf("%w: software backend has no GPU path", ErrGPUNotAvailable)
	}

	src := wrapPixels(in)
	var dst draw.Image
	if in.Channels == 1 {
		dst = image.NewGray(image.Rect(0, 0, outW, outH))
	} else {
		dst = image.NewNRGBA(image.Rect(0, 0, outW, outH))
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	return &heapAlloc{data: packPixels(dst, in.Channels)}, nil
}

func (s *softwareEngine) free() {
	s.loaded = false
}

// heapAlloc is engine memory owned by the Go heap.
type heapAlloc struct {
	data []byte
}

func (h *heapAlloc) bytes() []byte { return h.data }
func (h *heapAlloc) free()         { h.data = nil }

// wrapPixels exposes in as an image. 1 and 4 channel buffers are aliased,
// 2 and 3 channel buffers are expanded to NRGBA.
func wrapPixels(in PixelBuffer) image.Image {
	rect := image.Rect(0, 0, in.Width, in.Height)
	switch in.Channels {
	case 1:
		return &image.Gray{Pix: in.Data, Stride: in.Width, Rect: rect}
	case 4:
		return &image.NRGBA{Pix: in.Data, Stride: in.Width * 4, Rect: rect}
	}

	img := image.NewNRGBA(rect)
	n := in.Width * in.Height
	for i := 0; i < n; i++ {
		s := in.Data[i*in.Channels:]
		d := img.Pix[i*4 : i*4+4]
		if in.Channels == 2 {
			d[0], d[1], d[2], d[3] = s[0], s[0], s[0], s[1]
		} else {
			d[0], d[1], d[2], d[3] = s[0], s[1], s[2], 0xff
		}
	}
	return img
}

// packPixels returns the interleaved bytes of dst with the given channel count.
func packPixels(dst draw.Image, channels int) []byte {
	switch d := dst.(type) {
	case *image.Gray:
		return d.Pix
	case *image.NRGBA:
		if channels == 4 {
			return d.Pix
		}
		n := d.Rect.Dx() * d.Rect.Dy()
		out := make([]byte, n*channels)
		for i := 0; i < n; i++ {
			p := d.Pix[i*4 : i*4+4]
			o := out[i*channels:]
			if channels == 2 {
				o[0], o[1] = p[0], p[3]
			} else {
				o[0], o[1], o[2] = p[0], p[1], p[2]
			}
		}
		return out
	}
	return nil
}
