// Package metrics keeps in-memory statistics about upscale jobs.
// This file contains the plain data types.
package metrics

import "time"

// JobRecord is the outcome of one file.
type JobRecord struct {
	// ID is the ledger job id; empty for skipped files
	ID string `json:"id"`

	// Input is the source file path
	Input string `json:"input"`

	// Model is the network name, e.g. "cunet"
	Model string `json:"model"`

	// Status is one of the JobStatus constants
	Status string `json:"status"`

	// OutputPixels is width*height of the result, 0 when none was written
	OutputPixels int64 `json:"output_pixels"`

	// Duration is the time spent on the file
	Duration time.Duration `json:"duration"`

	FinishedAt time.Time `json:"finished_at"`

	// ErrorMsg holds the failure for JobStatusFailed
	ErrorMsg string `json:"error_msg,omitempty"`
}

// JobMetrics aggregates every recorded job.
type JobMetrics struct {
	TotalProcessed int64 `json:"total_processed"`
	Done           int64 `json:"done"`
	Failed         int64 `json:"failed"`
	Skipped        int64 `json:"skipped"`
	Cancelled      int64 `json:"cancelled"`

	// ByModel holds per-network statistics
	ByModel map[string]*ModelMetrics `json:"by_model"`
}

// ModelMetrics summarises the jobs of one network.
type ModelMetrics struct {
	// Count includes every status
	Count int64 `json:"count"`

	// SuccessRate is the percentage of done jobs among done and failed (0-100)
	SuccessRate float64 `json:"success_rate"`

	// AvgDuration is the mean time of done jobs
	AvgDuration time.Duration `json:"avg_duration"`

	// MegapixelsPerSecond is output throughput over done jobs
	MegapixelsPerSecond float64 `json:"megapixels_per_second"`
}

// Status values for JobRecord.
const (
	JobStatusDone      = "done"
	JobStatusFailed    = "failed"
	JobStatusSkipped   = "skipped"
	JobStatusCancelled = "cancelled"
)
