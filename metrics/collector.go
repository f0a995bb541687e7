package metrics

// Collector records job outcomes and reports aggregates. Implementations
// are safe for concurrent use.
type Collector interface {
	// RecordJob adds a finished job.
	RecordJob(job JobRecord)

	// JobMetrics returns totals and per-model statistics.
	JobMetrics() JobMetrics

	// RecentJobs returns up to limit records, oldest first.
	RecentJobs(limit int) []JobRecord
}
