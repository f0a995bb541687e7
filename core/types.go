package core

import (
	"time"

	"go.uber.org/zap/zapcore"
)

// GPUInfo describes the device an upscale ran on.
// Implements zapcore.ObjectMarshaler for structured logging.
type GPUInfo struct {
	// GPUID is the device index, -1 for CPU
	GPUID int `json:"gpu_id" yaml:"gpu_id"`
	// DeviceCount is the number of GPU devices visible to the engine
	DeviceCount int `json:"device_count" yaml:"device_count"`
	// HeapBudgetMB is the usable heap reported by the device (megabytes)
	HeapBudgetMB uint32 `json:"heap_budget_mb" yaml:"heap_budget_mb"`
	// Backend names the compiled-in engine backend
	Backend string `json:"backend" yaml:"backend"`
}

// IsCPU reports whether the work runs on the CPU path.
func (g GPUInfo) IsCPU() bool {
	return g.GPUID < 0
}

// MarshalLogObject implements zapcore.ObjectMarshaler for structured logging.
func (g GPUInfo) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("gpu_id", g.GPUID)
	enc.AddInt("device_count", g.DeviceCount)
	enc.AddUint32("heap_budget_mb", g.HeapBudgetMB)
	if g.Backend != "" {
		enc.AddString("backend", g.Backend)
	}
	return nil
}

// JobStatus is the lifecycle state of an upscale job.
type JobStatus string

// JobStatus values
const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// IsTerminal reports whether the job will not change state again.
func (s JobStatus) IsTerminal() bool {
	return s == JobDone || s == JobFailed
}

// UpscaleJob is one input file processed by a batch or the watcher.
type UpscaleJob struct {
	// ID is a UUID assigned when the job is recorded
	ID string `json:"id"`
	// BatchID groups jobs started by the same command
	BatchID string `json:"batch_id"`
	// InputPath and OutputPath are absolute file paths
	InputPath  string `json:"input_path"`
	OutputPath string `json:"output_path"`
	// InputSHA256 identifies the input content for resume decisions
	InputSHA256 string `json:"input_sha256,omitempty"`
	// Model, Noise and Scale are the settings the job ran with
	Model string `json:"model"`
	Noise int    `json:"noise"`
	Scale int    `json:"scale"`
	// Input and output dimensions, filled in when known
	Width     int `json:"width"`
	Height    int `json:"height"`
	OutWidth  int `json:"out_width"`
	OutHeight int `json:"out_height"`
	// Status and ErrorMessage report the outcome
	Status       JobStatus `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
