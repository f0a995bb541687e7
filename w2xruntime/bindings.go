package w2xruntime

// Backend hooks implemented once per build:
//
//   - cgo_bindings_ncnn.go (tag ncnn): the native waifu2x shim
//   - cgo_bindings_stub.go (default): the pure Go software backend
//
// Each build provides:
//
//	acquireGPUInstanceImpl() error
//	releaseGPUInstanceImpl()
//	gpuCountImpl() int
//	heapBudgetImpl(gpuID int) uint32
//	newEngineImpl(cfg Config) (nativeEngine, error)
//	backendInfoImpl() string

// nativeEngine is one upscaler instance inside a backend.
type nativeEngine interface {
	// load reads the architecture (param) and weights (model) files.
	load(paramPath, modelPath string) error

	// process upscales in into a new allocation of exactly
	// outW*outH*in.Channels bytes. in is only read during the call.
	process(in PixelBuffer, outW, outH int, cpu bool) (nativeAlloc, error)

	// free destroys the instance. It must not touch the GPU subsystem.
	free()
}

// BackendInfo describes the compiled-in backend.
func BackendInfo() string {
	return backendInfoImpl()
}
