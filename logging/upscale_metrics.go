package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"go_waifu2x/core"
)

// UpscaleMetrics describes one completed upscale.
// Implements zapcore.ObjectMarshaler so it logs as a nested object.
//
// Example:
//
//	logger.Info("upscale complete", zap.Object("upscale", metrics))
type UpscaleMetrics struct {
	Model    string `json:"model"`
	Noise    int    `json:"noise"`
	Scale    int    `json:"scale"`
	Passes   int    `json:"passes"`
	TileSize int    `json:"tile_size"`

	InputWidth   int `json:"input_width"`
	InputHeight  int `json:"input_height"`
	OutputWidth  int `json:"output_width"`
	OutputHeight int `json:"output_height"`
	Channels     int `json:"channels"`

	Duration time.Duration `json:"duration"`
	// MegapixelsPerSecond is output megapixels over Duration
	MegapixelsPerSecond float64 `json:"megapixels_per_second"`

	GPU core.GPUInfo `json:"gpu"`
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
// Duration is encoded in milliseconds.
func (m UpscaleMetrics) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("model", m.Model)
	enc.AddInt("noise", m.Noise)
	enc.AddInt("scale", m.Scale)
	enc.AddInt("passes", m.Passes)
	enc.AddInt("tile_size", m.TileSize)
	enc.AddInt("input_width", m.InputWidth)
	enc.AddInt("input_height", m.InputHeight)
	enc.AddInt("output_width", m.OutputWidth)
	enc.AddInt("output_height", m.OutputHeight)
	enc.AddInt("channels", m.Channels)
	enc.AddInt64("duration_ms", m.Duration.Milliseconds())
	enc.AddFloat64("megapixels_per_second", m.MegapixelsPerSecond)
	return enc.AddObject("gpu", m.GPU)
}

// throughput returns output megapixels per second, 0 for a zero duration.
func throughput(outW, outH int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(outW*outH) / 1e6 / d.Seconds()
}

// UpscaleFields returns the metrics as a single "upscale" object field.
func UpscaleFields(m UpscaleMetrics) zap.Field {
	return zap.Object("upscale", m)
}

// GPUFields returns the device description as a "gpu" object field.
func GPUFields(g core.GPUInfo) zap.Field {
	return zap.Object("gpu", g)
}

// ImageFields describes an image by its dimensions.
func ImageFields(width, height, channels int) []zap.Field {
	return []zap.Field{
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Int("channels", channels),
	}
}
