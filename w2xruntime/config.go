package w2xruntime

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// RuntimeConfig holds engine and pool settings read from the environment.
type RuntimeConfig struct {
	Engine Config

	// Pool configuration
	PoolSize       int           // Engines held by an EnginePool
	AcquireTimeout time.Duration // Wait for an idle engine

	// Model configuration
	ParamPath string // .param file (architecture)
	ModelPath string // .bin file (weights)
}

// Pool defaults.
const (
	DefaultPoolSize              = 1
	DefaultAcquireTimeoutSeconds = 60
	MaxPoolSize                  = 16
)

// LoadRuntimeConfig reads W2X_* variables. Invalid or missing values fall
// back to the defaults.
//
//	W2X_GPU_ID          device index, -1 for CPU
//	W2X_TTA             true/false
//	W2X_THREADS         engine worker threads
//	W2X_NOISE           -1..3
//	W2X_SCALE           clamped to 2
//	W2X_TILE_SIZE       >= 32
//	W2X_PREPADDING      >= 0
//	W2X_POOL_SIZE       1..16
//	W2X_ACQUIRE_TIMEOUT seconds
//	W2X_PARAM_PATH, W2X_MODEL_PATH
func LoadRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		Engine: Config{
			GPUID:      parseRange(os.Getenv("W2X_GPU_ID"), DefaultGPUID, CPUDeviceID, 255),
			TTAMode:    parseBool(os.Getenv("W2X_TTA"), false),
			NumThreads: parseRange(os.Getenv("W2X_THREADS"), DefaultNumThreads, 1, 256),
			Noise:      parseRange(os.Getenv("W2X_NOISE"), DefaultNoise, MinNoise, MaxNoise),
			Scale:      ClampScale(parseRange(os.Getenv("W2X_SCALE"), DefaultScale, 1, 1<<10)),
			TileSize:   parseRange(os.Getenv("W2X_TILE_SIZE"), DefaultTileSize, MinTileSize, 1<<14),
			PrePadding: parseRange(os.Getenv("W2X_PREPADDING"), DefaultPrePadding, 0, 1<<8),
		},
		PoolSize:       parseRange(os.Getenv("W2X_POOL_SIZE"), DefaultPoolSize, 1, MaxPoolSize),
		AcquireTimeout: parseTimeout(os.Getenv("W2X_ACQUIRE_TIMEOUT")),
		ParamPath:      os.Getenv("W2X_PARAM_PATH"),
		ModelPath:      os.Getenv("W2X_MODEL_PATH"),
	}
}

// parseRange parses an int and returns def when s is empty, malformed or
// outside [min, max].
func parseRange(s string, def, min, max int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < min || v > max {
		return def
	}
	return v
}

func parseBool(s string, def bool) bool {
	if s == "" {
		return def
	}
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return v
}

// parseTimeout parses seconds and returns the default when invalid.
func parseTimeout(s string) time.Duration {
	seconds := parseRange(s, DefaultAcquireTimeoutSeconds, 1, 24*60*60)
	return time.Duration(seconds) * time.Second
}
