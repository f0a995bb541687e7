package logging

import (
	"time"

	"go.uber.org/zap"

	"go_waifu2x/core"
)

// MetricsLogger logs the start and end of upscale operations.
//
// Example:
//
//	ml := NewMetricsLogger(logger)
//	timer := ml.StartUpscale("cunet", 2, 2, gpu)
//	// ... run passes ...
//	ml.EndUpscale(timer, in, out, passes)
type MetricsLogger struct {
	logger *Logger
}

// NewMetricsLogger wraps logger.
func NewMetricsLogger(logger *Logger) *MetricsLogger {
	return &MetricsLogger{logger: logger}
}

// UpscaleTimer carries the settings of an upscale in progress.
type UpscaleTimer struct {
	Model     string
	Noise     int
	Scale     int
	TileSize  int
	GPU       core.GPUInfo
	StartTime time.Time
}

// StartUpscale begins timing an upscale.
func (ml *MetricsLogger) StartUpscale(model string, noise, scale, tileSize int, gpu core.GPUInfo) *UpscaleTimer {
	return &UpscaleTimer{
		Model:     model,
		Noise:     noise,
		Scale:     scale,
		TileSize:  tileSize,
		GPU:       gpu,
		StartTime: time.Now(),
	}
}

// EndUpscale logs the completed upscale and returns its metrics.
func (ml *MetricsLogger) EndUpscale(timer *UpscaleTimer, inW, inH, outW, outH, channels, passes int) UpscaleMetrics {
	duration := time.Since(timer.StartTime)
	m := UpscaleMetrics{
		Model:               timer.Model,
		Noise:               timer.Noise,
		Scale:               timer.Scale,
		Passes:              passes,
		TileSize:            timer.TileSize,
		InputWidth:          inW,
		InputHeight:         inH,
		OutputWidth:         outW,
		OutputHeight:        outH,
		Channels:            channels,
		Duration:            duration,
		MegapixelsPerSecond: throughput(outW, outH, duration),
		GPU:                 timer.GPU,
	}
	ml.logger.Info("upscale complete", UpscaleFields(m))
	return m
}

// FailUpscale logs an upscale that returned err.
func (ml *MetricsLogger) FailUpscale(timer *UpscaleTimer, err error) {
	ml.logger.Error("upscale failed",
		zap.String("model", timer.Model),
		zap.Int("scale", timer.Scale),
		zap.Duration("elapsed", time.Since(timer.StartTime)),
		GPUFields(timer.GPU),
		zap.Error(err))
}

// LogGPU logs a device description, used at startup and by the gpus command.
func (ml *MetricsLogger) LogGPU(msg string, gpu core.GPUInfo) {
	ml.logger.Info(msg, GPUFields(gpu))
}

// Logger returns the wrapped logger.
func (ml *MetricsLogger) Logger() *Logger {
	return ml.logger
}
