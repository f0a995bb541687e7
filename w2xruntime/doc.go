// Package w2xruntime binds the waifu2x upscaling engine and defines who owns
// every pixel buffer that crosses the native boundary.
//
// # Overview
//
// The package exposes three objects:
//
//   - GPUContext: the GPU subsystem, owned explicitly by the caller that
//     created it. Engines register with it and it cannot be closed while any
//     of them is alive.
//   - Engine: one configured upscaler instance. Construction never fails;
//     configuration and device problems surface from Load or Process.
//   - OwnedBuffer: an output image together with its ownership tag
//     (SelfOwned or EngineOwned). Release is the only way to free it.
//
// A BorrowedView gives read access to an OwnedBuffer without the ability to
// free it.
//
// # Build Tags
//
// The default build uses a pure Go software backend with no GPU devices. It
// checks model files the way the engine does and resamples images on the CPU,
// which keeps every ownership rule testable without the native library.
//
// Build with the ncnn tag to link the native waifu2x shim:
//
//	CGO_CFLAGS="-I/path/to/waifu2x-shim/include" \
//	CGO_LDFLAGS="-L/path/to/waifu2x-shim/build -lwaifu2x_shim" \
//	go build -tags ncnn
//
// # Typical Use
//
//	gpu, err := w2xruntime.NewGPUContext()
//	if err != nil {
//		return err
//	}
//	defer gpu.Close()
//
//	engine := w2xruntime.NewEngine(gpu, w2xruntime.DefaultConfig())
//	defer engine.Close()
//
//	if err := engine.Load(paramPath, modelPath); err != nil {
//		return err
//	}
//
//	out, err := engine.Upscale(input)
//	if err != nil {
//		return err
//	}
//	defer out.Release()
//
// # Thread Safety
//
// Engine serialises calls on the same handle. Use EnginePool to run several
// engines in parallel over one GPUContext.
package w2xruntime
