// Package upscaler turns whole images into upscaled images. It picks the
// model files, tile size and device, then runs as many 2x engine passes
// as the requested scale needs.
package upscaler

import (
	"context"
	"fmt"
	"image"
	"math/bits"
	"time"

	"go.uber.org/zap"

	"go_waifu2x/core"
	"go_waifu2x/imageio"
	"go_waifu2x/logging"
	"go_waifu2x/w2xruntime"
)

// Options configures an Upscaler.
type Options struct {
	Model     ModelType
	Noise     int // -1..3
	Scale     int // 1, 2, 4, 8, 16 or 32
	GPUID     int // device index, w2xruntime.CPUDeviceID, or core.GPUAuto
	TileSize  int // 0 picks from the heap budget
	TTA       bool
	Threads   int
	ModelsDir string
	// Workers bounds how many images are upscaled at once.
	Workers int
}

// OptionsFromConfig maps the application config onto Options.
func OptionsFromConfig(cfg *core.AppConfig) (Options, error) {
	model, err := ParseModelType(cfg.Model)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Model:     model,
		Noise:     cfg.Noise,
		Scale:     cfg.Scale,
		GPUID:     cfg.GPU,
		TileSize:  cfg.TileSize,
		TTA:       cfg.TTA,
		Threads:   cfg.Threads,
		ModelsDir: cfg.ModelsDir,
		Workers:   cfg.Workers,
	}, nil
}

// Upscaler upscales images with a pool of engines sharing one GPU context.
// Safe for concurrent use; at most Options.Workers images run at once.
type Upscaler struct {
	opts      Options
	gpuInfo   core.GPUInfo
	tileSize  int
	passes    int
	paramPath string
	binPath   string
	pool      *w2xruntime.EnginePool
	logger    *logging.Logger
	metrics   *logging.MetricsLogger

	// acquireTimeout bounds the wait for an idle engine (W2X_ACQUIRE_TIMEOUT)
	acquireTimeout time.Duration
}

// New validates opts against gpu, resolves the model files and loads the
// first engine so missing or broken models are reported here. gpu stays
// owned by the caller and must outlive the Upscaler.
func New(gpu *w2xruntime.GPUContext, opts Options, logger *logging.Logger) (*Upscaler, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("upscaler")

	if opts.Noise < w2xruntime.MinNoise || opts.Noise > w2xruntime.MaxNoise {
		return nil, fmt.Errorf("%w: %w", w2xruntime.ErrInvalidConfig, core.ErrInvalidNoise(opts.Noise))
	}
	if !core.ValidScale(opts.Scale) {
		return nil, fmt.Errorf("%w: %w", w2xruntime.ErrInvalidConfig, core.ErrInvalidScale(opts.Scale))
	}
	if opts.Scale == 1 && opts.Noise == -1 {
		return nil, fmt.Errorf("%w: scale 1 with noise -1 has no model and would leave the image unchanged", w2xruntime.ErrInvalidConfig)
	}
	if opts.Threads < 1 {
		opts.Threads = w2xruntime.DefaultNumThreads
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	info, err := resolveGPU(gpu, opts.GPUID)
	if err != nil {
		return nil, err
	}
	opts.GPUID = info.GPUID

	tileSize := opts.TileSize
	if tileSize == 0 {
		tileSize = w2xruntime.DefaultTileSize
		if !info.IsCPU() {
			tileSize = opts.Model.TileSizeForBudget(info.HeapBudgetMB)
		}
	}

	engineScale := w2xruntime.ClampScale(opts.Scale)
	cfg := w2xruntime.Config{
		GPUID:      opts.GPUID,
		TTAMode:    opts.TTA,
		NumThreads: opts.Threads,
		Noise:      opts.Noise,
		Scale:      engineScale,
		TileSize:   tileSize,
		PrePadding: opts.Model.PrePadding(opts.Noise, opts.Scale),
	}
	paramPath, binPath := ModelPaths(opts.ModelsDir, opts.Model, opts.Noise, opts.Scale)

	pool, err := w2xruntime.NewEnginePool(gpu, cfg, paramPath, binPath, opts.Workers)
	if err != nil {
		return nil, err
	}
	pe, err := pool.Acquire(context.Background())
	if err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("load %s: %w", paramPath, err)
	}
	pool.Release(pe)

	u := &Upscaler{
		opts:           opts,
		gpuInfo:        info,
		tileSize:       tileSize,
		passes:         passesFor(opts.Scale),
		paramPath:      paramPath,
		binPath:        binPath,
		pool:           pool,
		logger:         logger,
		metrics:        logging.NewMetricsLogger(logger),
		acquireTimeout: w2xruntime.LoadRuntimeConfig().AcquireTimeout,
	}
	u.metrics.LogGPU("upscaler ready", info)
	logger.Debug("model resolved",
		zap.String("model", opts.Model.String()),
		zap.String("param", paramPath),
		zap.Int("tile_size", tileSize),
		zap.Int("passes", u.passes))
	return u, nil
}

// resolveGPU turns a requested device id into the device that will run,
// with its heap budget. core.GPUAuto picks GPU 0 when one exists.
func resolveGPU(gpu *w2xruntime.GPUContext, requested int) (core.GPUInfo, error) {
	info := core.GPUInfo{GPUID: requested, Backend: w2xruntime.BackendInfo()}
	if gpu != nil {
		info.DeviceCount = gpu.DeviceCount()
	}

	if requested == core.GPUAuto {
		info.GPUID = w2xruntime.CPUDeviceID
		if info.DeviceCount > 0 {
			info.GPUID = 0
		}
	}
	if info.GPUID < w2xruntime.CPUDeviceID || info.GPUID >= info.DeviceCount && info.GPUID != w2xruntime.CPUDeviceID {
		return info, fmt.Errorf("%w: %w", w2xruntime.ErrInvalidGPU, core.ErrInvalidGPU(info.GPUID, info.DeviceCount))
	}
	if info.IsCPU() {
		return info, nil
	}

	budget, err := gpu.HeapBudget(info.GPUID)
	if err != nil {
		return info, err
	}
	info.HeapBudgetMB = budget
	return info, nil
}

// passesFor returns how many 2x passes reach scale; scale 1 is one
// denoise-only pass.
func passesFor(scale int) int {
	if scale <= 2 {
		return 1
	}
	return bits.Len(uint(scale)) - 1
}

// GPUInfo describes the device the upscaler runs on.
func (u *Upscaler) GPUInfo() core.GPUInfo {
	return u.gpuInfo
}

// TileSize returns the tile edge in use.
func (u *Upscaler) TileSize() int {
	return u.tileSize
}

// Passes returns the number of engine passes per image.
func (u *Upscaler) Passes() int {
	return u.passes
}

// Options returns the options after defaults and GPU resolution.
func (u *Upscaler) Options() Options {
	return u.opts
}

// ModelPaths returns the param and bin files the engines loaded.
func (u *Upscaler) ModelPaths() (paramPath, binPath string) {
	return u.paramPath, u.binPath
}

// Upscale returns img enlarged by Options.Scale. Gray images come back as
// RGB and images with transparency keep their alpha channel.
func (u *Upscaler) Upscale(ctx context.Context, img image.Image) (image.Image, error) {
	if img == nil {
		return nil, imageio.ErrEmptyImage
	}
	in, err := imageio.ToPixelBuffer(img)
	if err != nil {
		return nil, err
	}

	out, err := u.UpscaleBuffer(ctx, in)
	if err != nil {
		return nil, err
	}
	defer out.Release()

	pixels, err := out.View().Bytes()
	if err != nil {
		return nil, err
	}
	return imageio.FromPixelBuffer(w2xruntime.PixelBuffer{
		Data:     pixels,
		Width:    out.Width(),
		Height:   out.Height(),
		Channels: out.Channels(),
	})
}

// UpscaleBuffer runs every pass on one pooled engine. Each intermediate
// buffer is released once the next pass has consumed it; the returned
// buffer belongs to the caller.
func (u *Upscaler) UpscaleBuffer(ctx context.Context, in w2xruntime.PixelBuffer) (*w2xruntime.OwnedBuffer, error) {
	timer := u.metrics.StartUpscale(u.opts.Model.String(), u.opts.Noise, u.opts.Scale, u.tileSize, u.gpuInfo)

	out, err := u.runPasses(ctx, in)
	if err != nil {
		u.metrics.FailUpscale(timer, err)
		return nil, err
	}
	u.metrics.EndUpscale(timer, in.Width, in.Height, out.Width(), out.Height(), in.Channels, u.passes)
	return out, nil
}

func (u *Upscaler) runPasses(ctx context.Context, in w2xruntime.PixelBuffer) (*w2xruntime.OwnedBuffer, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, u.acquireTimeout)
	pe, err := u.pool.Acquire(acquireCtx)
	cancel()
	if err != nil {
		// Shutdown while every engine is busy is a cancellation, not a timeout.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	defer u.pool.Release(pe)

	var prev *w2xruntime.OwnedBuffer
	current := in
	for pass := 0; pass < u.passes; pass++ {
		if err := ctx.Err(); err != nil {
			releaseQuietly(prev)
			return nil, err
		}

		next, err := pe.Upscale(current)
		releaseQuietly(prev)
		if err != nil {
			return nil, fmt.Errorf("pass %d/%d: %w", pass+1, u.passes, err)
		}
		prev = next

		pixels, err := next.View().Bytes()
		if err != nil {
			releaseQuietly(next)
			return nil, err
		}
		current = w2xruntime.PixelBuffer{
			Data:     pixels,
			Width:    next.Width(),
			Height:   next.Height(),
			Channels: next.Channels(),
		}
	}
	return prev, nil
}

func releaseQuietly(b *w2xruntime.OwnedBuffer) {
	if b != nil {
		_ = b.Release()
	}
}

// Close shuts the engine pool down. The GPU context is left to its owner.
func (u *Upscaler) Close() error {
	return u.pool.Close()
}
