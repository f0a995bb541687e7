package metrics

import (
	"sync"
	"time"
)

// Store is the in-memory Collector. It keeps the most recent jobs in a
// ring buffer and running totals for everything ever recorded.
//
// Usage:
//
//	store := metrics.NewStore(metrics.DefaultStoreConfig(), time.Now())
//	store.RecordJob(rec)
//	m := store.JobMetrics()
type Store struct {
	mu sync.RWMutex

	history []JobRecord
	cap     int
	head    int
	size    int

	totals  JobMetrics
	byModel map[string]*modelStats

	startTime time.Time
}

type modelStats struct {
	count        int64
	done         int64
	failed       int64
	doneDuration time.Duration
	donePixels   int64
}

// StoreConfig configures a Store.
type StoreConfig struct {
	// HistoryCapacity is the number of recent jobs kept
	HistoryCapacity int
}

// DefaultStoreConfig keeps the last 100 jobs.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{HistoryCapacity: 100}
}

// NewStore creates a Store. startTime is the base for Uptime.
func NewStore(config StoreConfig, startTime time.Time) *Store {
	capacity := config.HistoryCapacity
	if capacity < 1 {
		capacity = 100
	}
	return &Store{
		history:   make([]JobRecord, capacity),
		cap:       capacity,
		byModel:   make(map[string]*modelStats),
		startTime: startTime,
	}
}

// RecordJob implements Collector.
func (s *Store) RecordJob(job JobRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[s.head] = job
	s.head = (s.head + 1) % s.cap
	if s.size < s.cap {
		s.size++
	}

	s.totals.TotalProcessed++
	stats, ok := s.byModel[job.Model]
	if !ok {
		stats = &modelStats{}
		s.byModel[job.Model] = stats
	}
	stats.count++

	switch job.Status {
	case JobStatusDone:
		s.totals.Done++
		stats.done++
		stats.doneDuration += job.Duration
		stats.donePixels += job.OutputPixels
	case JobStatusFailed:
		s.totals.Failed++
		stats.failed++
	case JobStatusSkipped:
		s.totals.Skipped++
	case JobStatusCancelled:
		s.totals.Cancelled++
	}
}

// JobMetrics implements Collector.
func (s *Store) JobMetrics() JobMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := s.totals
	m.ByModel = make(map[string]*ModelMetrics, len(s.byModel))
	for model, stats := range s.byModel {
		mm := &ModelMetrics{Count: stats.count}
		if attempted := stats.done + stats.failed; attempted > 0 {
			mm.SuccessRate = float64(stats.done) / float64(attempted) * 100
		}
		if stats.done > 0 {
			mm.AvgDuration = stats.doneDuration / time.Duration(stats.done)
		}
		if secs := stats.doneDuration.Seconds(); secs > 0 {
			mm.MegapixelsPerSecond = float64(stats.donePixels) / 1e6 / secs
		}
		m.ByModel[model] = mm
	}
	return m
}

// RecentJobs implements Collector.
func (s *Store) RecentJobs(limit int) []JobRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || s.size == 0 {
		return []JobRecord{}
	}
	if limit > s.size {
		limit = s.size
	}

	result := make([]JobRecord, limit)
	for i := 0; i < limit; i++ {
		idx := (s.head - limit + i + s.cap) % s.cap
		result[i] = s.history[idx]
	}
	return result
}

// Uptime returns the time since the store was created.
func (s *Store) Uptime() time.Duration {
	return time.Since(s.startTime)
}

var _ Collector = (*Store)(nil)
