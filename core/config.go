package core

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names the optional YAML config file.
const ConfigFileEnv = "W2X_CONFIG"

// GPUAuto selects the first GPU when one is present and the CPU otherwise.
const GPUAuto = -2

// DefaultModelBaseURL hosts the waifu2x ncnn model files.
const DefaultModelBaseURL = "https://raw.githubusercontent.com/nihui/waifu2x-ncnn-vulkan/master/models"

// AppConfig holds the settings of the waifu2x command. Values come from
// defaults, then the YAML file, then W2X_* environment variables; command
// flags are applied last by the CLI.
type AppConfig struct {
	// Model
	ModelsDir    string `yaml:"models_dir"`
	ModelBaseURL string `yaml:"model_base_url"`
	Model        string `yaml:"model"`
	Noise        int    `yaml:"noise"`
	Scale        int    `yaml:"scale"`

	// Engine
	GPU      int  `yaml:"gpu"`
	TileSize int  `yaml:"tile_size"` // 0 picks from the GPU heap budget
	Threads  int  `yaml:"threads"`
	TTA      bool `yaml:"tta"`
	Workers  int  `yaml:"workers"`

	// Output
	OutputFormat  string `yaml:"output_format"`
	JPEGQuality   int    `yaml:"jpeg_quality"`
	MaxInputSize  string `yaml:"max_input_size"`
	MaxInputBytes int64  `yaml:"-"`

	// Job ledger
	DatabasePath string        `yaml:"database_path"`
	JobRetention time.Duration `yaml:"job_retention"`

	// Watch mode
	WatchDir      string        `yaml:"watch_dir"`
	WatchOutput   string        `yaml:"watch_output"`
	WatchInterval time.Duration `yaml:"watch_interval"`

	// Process
	LogFile         string        `yaml:"log_file"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultAppConfig returns the built-in defaults, rooted at the data directory.
func DefaultAppConfig() *AppConfig {
	dataDir := GetDataDirectory()
	return &AppConfig{
		ModelsDir:       filepath.Join(dataDir, "models"),
		ModelBaseURL:    DefaultModelBaseURL,
		Model:           "cunet",
		Noise:           0,
		Scale:           2,
		GPU:             GPUAuto,
		TileSize:        0,
		Threads:         1,
		Workers:         1,
		OutputFormat:    "png",
		JPEGQuality:     95,
		MaxInputSize:    "64MB",
		DatabasePath:    filepath.Join(dataDir, "jobs.db"),
		JobRetention:    30 * 24 * time.Hour,
		WatchInterval:   5 * time.Second,
		LogFile:         filepath.Join(dataDir, "waifu2x.log"),
		ShutdownTimeout: 30 * time.Second,
	}
}

// LoadConfig builds an AppConfig. path, or W2X_CONFIG when path is empty,
// names an optional YAML file; an explicitly named file must exist.
func LoadConfig(path string) (*AppConfig, error) {
	cfg := DefaultAppConfig()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(ConfigFileEnv)
		explicit = path != ""
	}
	if explicit {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile overlays the keys present in the YAML file at path.
func (c *AppConfig) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return ErrInvalidConfigFile(path, "file not found")
	}
	if err != nil {
		return ErrInvalidConfigFile(path, err.Error())
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return ErrInvalidConfigFile(path, err.Error())
	}
	return nil
}

// applyEnv overlays W2X_* variables that are set and valid.
func (c *AppConfig) applyEnv() {
	c.ModelsDir = GetEnvOrDefault("W2X_MODELS_DIR", c.ModelsDir)
	c.ModelBaseURL = GetEnvOrDefault("W2X_MODEL_BASE_URL", c.ModelBaseURL)
	c.Model = GetEnvOrDefault("W2X_MODEL", c.Model)
	c.Noise = ParseIntEnv("W2X_NOISE", c.Noise)
	c.Scale = ParseIntEnv("W2X_SCALE", c.Scale)

	c.GPU = ParseIntEnv("W2X_GPU", c.GPU)
	c.TileSize = ParseIntEnv("W2X_TILE_SIZE", c.TileSize)
	c.Threads = ParseIntEnv("W2X_THREADS", c.Threads)
	c.TTA = ParseBoolEnv("W2X_TTA", c.TTA)
	c.Workers = ParseIntEnv("W2X_WORKERS", c.Workers)

	c.OutputFormat = GetEnvOrDefault("W2X_OUTPUT_FORMAT", c.OutputFormat)
	c.JPEGQuality = ParseIntEnv("W2X_JPEG_QUALITY", c.JPEGQuality)
	c.MaxInputSize = GetEnvOrDefault("W2X_MAX_INPUT_SIZE", c.MaxInputSize)

	c.DatabasePath = GetEnvOrDefault("W2X_DB_PATH", c.DatabasePath)
	c.JobRetention = ParseDurationEnv("W2X_JOB_RETENTION", c.JobRetention)

	c.WatchDir = GetEnvOrDefault("W2X_WATCH_DIR", c.WatchDir)
	c.WatchOutput = GetEnvOrDefault("W2X_WATCH_OUTPUT", c.WatchOutput)
	c.WatchInterval = ParseDurationEnv("W2X_WATCH_INTERVAL", c.WatchInterval)

	c.LogFile = GetEnvOrDefault("W2X_LOG_FILE", c.LogFile)
	c.ShutdownTimeout = ParseDurationEnv("W2X_SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
}

// Validate checks ranges that do not depend on the model or device and
// resolves MaxInputSize into MaxInputBytes.
func (c *AppConfig) Validate() error {
	if c.Noise < -1 || c.Noise > 3 {
		return ErrInvalidNoise(c.Noise)
	}
	if !ValidScale(c.Scale) {
		return ErrInvalidScale(c.Scale)
	}
	if c.Scale == 1 && c.Noise == -1 {
		return &ConfigError{
			Code:    ErrCodeInvalidNoise,
			Message: "Scale 1 with noise -1 would leave the image unchanged",
			Action:  "Set W2X_NOISE to 0..3 or W2X_SCALE above 1",
		}
	}
	if c.GPU < GPUAuto {
		return ErrInvalidGPU(c.GPU, 0)
	}
	if c.TileSize != 0 && c.TileSize < 32 {
		return ErrInvalidValue("tile size", c.TileSize, "Set W2X_TILE_SIZE to 0 (auto) or at least 32")
	}
	if c.Threads < 1 {
		c.Threads = 1
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		c.JPEGQuality = 95
	}
	if c.ModelsDir == "" {
		return ErrMissingConfig("W2X_MODELS_DIR")
	}
	if c.WatchInterval <= 0 {
		c.WatchInterval = 5 * time.Second
	}

	size, err := ParseBytes(c.MaxInputSize)
	if err != nil {
		return ErrInvalidValue("max input size", c.MaxInputSize, "Set W2X_MAX_INPUT_SIZE to a size such as 64MB")
	}
	c.MaxInputBytes = size
	return nil
}

// ValidScale reports whether scale is a power of two from 1 to 32.
func ValidScale(scale int) bool {
	switch scale {
	case 1, 2, 4, 8, 16, 32:
		return true
	}
	return false
}
