//go:build !ncnn || !cgo || stub

package w2xruntime

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// writeModelPair creates a minimal ncnn param/bin pair and returns their paths.
func writeModelPair(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	paramPath := filepath.Join(dir, "noise0_scale2.0x_model.param")
	modelPath := filepath.Join(dir, "noise0_scale2.0x_model.bin")
	if err := os.WriteFile(paramPath, []byte("7767517\n3 3\nInput input 0 1 input\n"), 0644); err != nil {
		t.Fatalf("write param: %v", err)
	}
	if err := os.WriteFile(modelPath, []byte{0, 0, 0, 0, 1, 2, 3, 4}, 0644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return paramPath, modelPath
}

func cpuConfig() Config {
	cfg := DefaultConfig()
	cfg.GPUID = CPUDeviceID
	return cfg
}

// newLoadedEngine returns a CPU engine with a loaded model and registers cleanup.
func newLoadedEngine(t *testing.T, cfg Config) (*GPUContext, *Engine) {
	t.Helper()
	gpu, err := NewGPUContext()
	if err != nil {
		t.Fatalf("NewGPUContext() error: %v", err)
	}
	engine := NewEngine(gpu, cfg)
	t.Cleanup(func() {
		_ = engine.Close()
		_ = gpu.Close()
	})

	paramPath, modelPath := writeModelPair(t)
	if err := engine.Load(paramPath, modelPath); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	return gpu, engine
}

func TestNewEngine_ClampsScale(t *testing.T) {
	cfg := cpuConfig()
	cfg.Scale = 4
	engine := NewEngine(nil, cfg)
	defer engine.Close()

	if engine.Config().Scale != 2 {
		t.Errorf("Config().Scale = %d, want 2", engine.Config().Scale)
	}
	if w, h := engine.OutputSize(10, 20); w != 20 || h != 40 {
		t.Errorf("OutputSize(10, 20) = %dx%d, want 20x40", w, h)
	}
}

func TestNewEngine_DefersInvalidGPU(t *testing.T) {
	gpu, err := NewGPUContext()
	if err != nil {
		t.Fatalf("NewGPUContext() error: %v", err)
	}
	defer gpu.Close()

	cfg := DefaultConfig()
	cfg.GPUID = 7
	engine := NewEngine(gpu, cfg)
	if engine == nil {
		t.Fatal("NewEngine() returned nil")
	}
	defer engine.Close()

	paramPath, modelPath := writeModelPair(t)
	err = engine.Load(paramPath, modelPath)
	if !errors.Is(err, ErrInvalidGPU) {
		t.Errorf("Load() = %v, want ErrInvalidGPU", err)
	}
	if StatusCode(err) != StatusInvalidGPU {
		t.Errorf("StatusCode() = %d, want %d", StatusCode(err), StatusInvalidGPU)
	}
}

func TestEngineLoad(t *testing.T) {
	paramPath, modelPath := writeModelPair(t)
	dir := t.TempDir()

	badParam := filepath.Join(dir, "bad.param")
	if err := os.WriteFile(badParam, []byte("not a param file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	emptyModel := filepath.Join(dir, "empty.bin")
	if err := os.WriteFile(emptyModel, nil, 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		paramPath string
		modelPath string
		wantErr   error
	}{
		{"valid pair", paramPath, modelPath, nil},
		{"missing model", paramPath, filepath.Join(dir, "missing.bin"), ErrModelNotFound},
		{"missing param", filepath.Join(dir, "missing.param"), modelPath, ErrModelNotFound},
		{"bad param header", badParam, modelPath, ErrModelLoadFailed},
		{"empty weights", paramPath, emptyModel, ErrModelLoadFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(nil, cpuConfig())
			defer engine.Close()

			err := engine.Load(tt.paramPath, tt.modelPath)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Load() unexpected error: %v", err)
				}
				if !engine.Loaded() {
					t.Error("Loaded() = false after successful Load")
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Load() = %v, want %v", err, tt.wantErr)
			}
			if engine.Loaded() {
				t.Error("Loaded() = true after failed Load")
			}
		})
	}
}

func TestEngineLoad_UTF8Path(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "モデル")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	paramPath, modelPath := writeModelPair(t)
	for _, p := range []string{paramPath, modelPath} {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, filepath.Base(p)), data, 0644); err != nil {
			t.Fatal(err)
		}
	}

	engine := NewEngine(nil, cpuConfig())
	defer engine.Close()
	err := engine.Load(filepath.Join(dir, filepath.Base(paramPath)), filepath.Join(dir, filepath.Base(modelPath)))
	if err != nil {
		t.Errorf("Load() with UTF-8 path: %v", err)
	}
}

func TestEngineProcess_BeforeLoad(t *testing.T) {
	engine := NewEngine(nil, cpuConfig())
	defer engine.Close()

	in, _ := NewPixelBuffer(4, 4, 3)
	_, err := engine.ProcessCPU(in, 8, 8)
	if !errors.Is(err, ErrModelNotLoaded) {
		t.Errorf("ProcessCPU() before Load = %v, want ErrModelNotLoaded", err)
	}
}

func TestEngineProcess_64x64RGB(t *testing.T) {
	_, engine := newLoadedEngine(t, cpuConfig())

	in, _ := NewPixelBuffer(64, 64, 3)
	for i := range in.Data {
		in.Data[i] = byte(i % 251)
	}

	out, err := engine.Process(in, 128, 128)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	defer out.Release()

	if out.Width() != 128 || out.Height() != 128 || out.Channels() != 3 {
		t.Errorf("output %dx%dx%d, want 128x128x3", out.Width(), out.Height(), out.Channels())
	}
	if out.Ownership() != EngineOwned {
		t.Errorf("Ownership() = %v, want engine", out.Ownership())
	}
	data, err := out.View().Bytes()
	if err != nil || data == nil {
		t.Fatalf("Bytes() = nil, %v", err)
	}
	if len(data) != 128*128*3 {
		t.Errorf("len(data) = %d, want %d", len(data), 128*128*3)
	}
}

func TestEngineProcess_ScaleFourAppliesTwo(t *testing.T) {
	cfg := cpuConfig()
	cfg.Scale = 4
	_, engine := newLoadedEngine(t, cfg)

	in, _ := NewPixelBuffer(8, 8, 3)
	if _, err := engine.ProcessCPU(in, 32, 32); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("4x declared output = %v, want ErrDimensionMismatch", err)
	}
	out, err := engine.ProcessCPU(in, 16, 16)
	if err != nil {
		t.Fatalf("2x output: %v", err)
	}
	out.Release()
}

func TestEngineProcess_DimensionMismatch(t *testing.T) {
	_, engine := newLoadedEngine(t, cpuConfig())
	before := LiveAllocations()

	in, _ := NewPixelBuffer(10, 10, 3)
	tests := []struct {
		name       string
		outW, outH int
	}{
		{"smaller", 19, 20},
		{"larger", 21, 20},
		{"unscaled", 10, 10},
		{"swapped scale", 40, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := engine.ProcessCPU(in, tt.outW, tt.outH)
			if !errors.Is(err, ErrDimensionMismatch) {
				t.Errorf("ProcessCPU(%d, %d) = %v, want ErrDimensionMismatch", tt.outW, tt.outH, err)
			}
			if out != nil {
				t.Error("no buffer should be returned on mismatch")
			}
		})
	}

	if LiveAllocations() != before {
		t.Errorf("mismatched calls leaked %d allocation(s)", LiveAllocations()-before)
	}
}

func TestEngineProcess_InvalidInput(t *testing.T) {
	_, engine := newLoadedEngine(t, cpuConfig())

	in := PixelBuffer{Data: make([]byte, 10), Width: 4, Height: 4, Channels: 3}
	if _, err := engine.ProcessCPU(in, 8, 8); !errors.Is(err, ErrInvalidBuffer) {
		t.Errorf("short input = %v, want ErrInvalidBuffer", err)
	}
}

func TestEngineProcess_Channels(t *testing.T) {
	_, engine := newLoadedEngine(t, cpuConfig())

	for channels := 1; channels <= 4; channels++ {
		in, _ := NewPixelBuffer(5, 3, channels)
		for i := range in.Data {
			in.Data[i] = 200
		}
		out, err := engine.ProcessCPU(in, 10, 6)
		if err != nil {
			t.Fatalf("%d channels: %v", channels, err)
		}
		if out.Len() != 10*6*channels {
			t.Errorf("%d channels: Len() = %d, want %d", channels, out.Len(), 10*6*channels)
		}
		// A flat image stays flat under resampling.
		if v, err := out.View().At(4, 2, 0); err != nil || v < 199 || v > 201 {
			t.Errorf("%d channels: At(4,2,0) = %d, %v; want ~200", channels, v, err)
		}
		if err := out.Release(); err != nil {
			t.Errorf("%d channels: Release() error: %v", channels, err)
		}
	}
}

func TestEngineProcess_AllocFreeCycles(t *testing.T) {
	_, engine := newLoadedEngine(t, cpuConfig())
	before := LiveAllocations()

	in, _ := NewPixelBuffer(4, 4, 3)
	for i := 0; i < 1000; i++ {
		out, err := engine.ProcessCPU(in, 8, 8)
		if err != nil {
			t.Fatalf("cycle %d: ProcessCPU() error: %v", i, err)
		}
		if err := out.Release(); err != nil {
			t.Fatalf("cycle %d: Release() error: %v", i, err)
		}
		if err := out.Release(); !errors.Is(err, ErrBufferReleased) {
			t.Fatalf("cycle %d: double Release() = %v, want ErrBufferReleased", i, err)
		}
	}

	if LiveAllocations() != before {
		t.Errorf("LiveAllocations() = %d after 1000 cycles, want %d", LiveAllocations(), before)
	}
}

func TestEngineProcess_GPUPathWithoutDevice(t *testing.T) {
	engine := NewEngine(nil, DefaultConfig())
	defer engine.Close()

	paramPath, modelPath := writeModelPair(t)
	if err := engine.Load(paramPath, modelPath); !errors.Is(err, ErrGPUNotAvailable) {
		t.Errorf("Load() on GPU 0 without context = %v, want ErrGPUNotAvailable", err)
	}
}

func TestEngineClose(t *testing.T) {
	gpu, engine := newLoadedEngine(t, cpuConfig())

	in, _ := NewPixelBuffer(4, 4, 1)
	out, err := engine.ProcessCPU(in, 8, 8)
	if err != nil {
		t.Fatalf("ProcessCPU() error: %v", err)
	}

	if gpu.Engines() != 1 {
		t.Errorf("Engines() = %d, want 1", gpu.Engines())
	}
	if err := engine.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := engine.Close(); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("second Close() = %v, want ErrEngineClosed", err)
	}
	if _, err := engine.ProcessCPU(in, 8, 8); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("ProcessCPU() after Close = %v, want ErrEngineClosed", err)
	}

	// Closing the engine leaves the GPU context open.
	if gpu.Closed() {
		t.Error("engine Close() closed the GPU context")
	}
	if gpu.Engines() != 0 {
		t.Errorf("Engines() = %d after Close, want 0", gpu.Engines())
	}

	// Buffers outlive the engine that produced them.
	if _, err := out.View().Bytes(); err != nil {
		t.Errorf("buffer unreadable after engine Close: %v", err)
	}
	if err := out.Release(); err != nil {
		t.Errorf("Release() after engine Close: %v", err)
	}
}
