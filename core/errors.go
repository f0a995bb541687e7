package core

import (
	"errors"
	"fmt"
)

// ConfigError represents a configuration-related error with actionable instructions.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for configuration errors
const (
	ErrCodeModelsDirMissing  = "MODELS_DIR_MISSING"
	ErrCodeInvalidGPU        = "INVALID_GPU"
	ErrCodeInvalidScale      = "INVALID_SCALE"
	ErrCodeInvalidNoise      = "INVALID_NOISE"
	ErrCodeInvalidModel      = "INVALID_MODEL"
	ErrCodeInvalidConfigFile = "INVALID_CONFIG_FILE"
	ErrCodeMissingConfig     = "MISSING_CONFIG"
	ErrCodeInvalidValue      = "INVALID_VALUE"
)

// ErrModelsDirMissing returns an error for a models directory that does not exist.
func ErrModelsDirMissing(path string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeModelsDirMissing,
		Message: fmt.Sprintf("Models directory not found: %s", path),
		Action:  "Set W2X_MODELS_DIR or run 'waifu2x models pull' to download the models",
	}
}

// ErrInvalidGPU returns an error for a GPU id outside the detected devices.
func ErrInvalidGPU(gpuID, deviceCount int) *ConfigError {
	action := fmt.Sprintf("Set W2X_GPU to -1 for CPU or a device id between 0 and %d", deviceCount-1)
	if deviceCount <= 0 {
		action = "No GPU detected. Set W2X_GPU to -1 to run on the CPU"
	}
	return &ConfigError{
		Code:    ErrCodeInvalidGPU,
		Message: fmt.Sprintf("Invalid GPU id %d", gpuID),
		Action:  action,
	}
}

// ErrInvalidScale returns an error for an unsupported scale factor.
func ErrInvalidScale(scale int) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidScale,
		Message: fmt.Sprintf("Invalid scale %d", scale),
		Action:  "Set W2X_SCALE to one of 1, 2, 4, 8, 16 or 32",
	}
}

// ErrInvalidNoise returns an error for a denoise level outside -1..3.
func ErrInvalidNoise(noise int) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidNoise,
		Message: fmt.Sprintf("Invalid noise level %d", noise),
		Action:  "Set W2X_NOISE to a value between -1 and 3",
	}
}

// ErrInvalidModel returns an error for an unknown model name.
func ErrInvalidModel(name string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidModel,
		Message: fmt.Sprintf("Unknown model %q", name),
		Action:  "Set W2X_MODEL to cunet, upconv7-anime or upconv7-photo",
	}
}

// ErrInvalidConfigFile returns an error for a YAML config file that cannot be parsed.
func ErrInvalidConfigFile(path string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidConfigFile,
		Message: fmt.Sprintf("Invalid config file %s: %s", path, reason),
		Action:  "Fix the YAML syntax or remove the file to use defaults",
	}
}

// ErrMissingConfig returns an error for missing required configuration
func ErrMissingConfig(varName string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingConfig,
		Message: fmt.Sprintf("Missing required configuration: %s", varName),
		Action:  fmt.Sprintf("Set %s in your .env file or config file", varName),
	}
}

// ErrInvalidValue returns an error for a setting whose value is out of range.
func ErrInvalidValue(name string, value any, action string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidValue,
		Message: fmt.Sprintf("Invalid %s %v", name, value),
		Action:  action,
	}
}

// IsConfigError reports whether err is, or wraps, a ConfigError.
func IsConfigError(err error) (*ConfigError, bool) {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an error if it's a ConfigError
func GetErrorCode(err error) string {
	if configErr, ok := IsConfigError(err); ok {
		return configErr.Code
	}
	return ""
}
