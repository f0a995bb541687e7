package w2xruntime

import "fmt"

// Device ids.
const (
	// CPUDeviceID selects CPU execution instead of a GPU device.
	CPUDeviceID = -1
)

// Engine configuration defaults and limits.
const (
	DefaultGPUID      = 0
	DefaultNumThreads = 1
	DefaultNoise      = 0
	DefaultScale      = 2
	DefaultTileSize   = 400
	DefaultPrePadding = 18

	// MaxEngineScale is the largest factor a single engine pass applies.
	// Larger requests are clamped to it.
	MaxEngineScale = 2

	MinNoise    = -1
	MaxNoise    = 3
	MinTileSize = 32
	MaxChannels = 4
)

// Config holds the settings an Engine is built with.
type Config struct {
	GPUID      int  // GPU device index, or CPUDeviceID
	TTAMode    bool // Test-time augmentation (8x slower, slightly better)
	NumThreads int  // Worker threads inside the engine
	Noise      int  // Denoise level, -1 (none) to 3
	Scale      int  // Upscale factor for one pass, clamped to MaxEngineScale
	TileSize   int  // Tile edge in pixels for bounded-memory inference
	PrePadding int  // Overlap added around each tile
}

// DefaultConfig returns a Config using the package defaults.
func DefaultConfig() Config {
	return Config{
		GPUID:      DefaultGPUID,
		NumThreads: DefaultNumThreads,
		Noise:      DefaultNoise,
		Scale:      DefaultScale,
		TileSize:   DefaultTileSize,
		PrePadding: DefaultPrePadding,
	}
}

// ClampScale applies the engine's scale policy: anything at or above
// MaxEngineScale becomes MaxEngineScale, smaller values are kept as given.
func ClampScale(scale int) int {
	if scale >= MaxEngineScale {
		return MaxEngineScale
	}
	return scale
}

// Validate reports the first out-of-range field as ErrInvalidConfig.
// Scale is checked after clamping, so only values below 1 fail.
func (c Config) Validate() error {
	switch {
	case c.GPUID < CPUDeviceID:
		return fmt.Errorf("%w: gpu id %d", ErrInvalidConfig, c.GPUID)
	case c.NumThreads < 1:
		return fmt.Errorf("%w: num threads %d", ErrInvalidConfig, c.NumThreads)
	case c.Noise < MinNoise || c.Noise > MaxNoise:
		return fmt.Errorf("%w: noise %d not in [%d, %d]", ErrInvalidConfig, c.Noise, MinNoise, MaxNoise)
	case ClampScale(c.Scale) < 1:
		return fmt.Errorf("%w: scale %d", ErrInvalidConfig, c.Scale)
	case c.TileSize < MinTileSize:
		return fmt.Errorf("%w: tile size %d below %d", ErrInvalidConfig, c.TileSize, MinTileSize)
	case c.PrePadding < 0:
		return fmt.Errorf("%w: pre-padding %d", ErrInvalidConfig, c.PrePadding)
	}
	return nil
}

// PixelBuffer describes one interleaved, row-major image plane.
// Data must hold exactly Width*Height*Channels bytes.
type PixelBuffer struct {
	Data     []byte
	Width    int
	Height   int
	Channels int
}

// NewPixelBuffer allocates a zeroed buffer of the given shape.
func NewPixelBuffer(width, height, channels int) (PixelBuffer, error) {
	b := PixelBuffer{Width: width, Height: height, Channels: channels}
	if err := b.validateShape(); err != nil {
		return PixelBuffer{}, err
	}
	b.Data = make([]byte, b.Len())
	return b, nil
}

// Len returns the byte length implied by the buffer's dimensions.
func (b PixelBuffer) Len() int {
	return b.Width * b.Height * b.Channels
}

// Validate checks the shape and that len(Data) == Width*Height*Channels.
func (b PixelBuffer) Validate() error {
	if err := b.validateShape(); err != nil {
		return err
	}
	if len(b.Data) != b.Len() {
		return fmt.Errorf("%w: have %d bytes, want %d (%dx%dx%d)",
			ErrInvalidBuffer, len(b.Data), b.Len(), b.Width, b.Height, b.Channels)
	}
	return nil
}

func (b PixelBuffer) validateShape() error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidBuffer, b.Width, b.Height)
	}
	if b.Channels < 1 || b.Channels > MaxChannels {
		return fmt.Errorf("%w: %d channels", ErrInvalidBuffer, b.Channels)
	}
	return nil
}
