package core

import (
	"sync"
	"time"
)

// ProgressInfo is a snapshot of a ProgressTracker. Units are whatever
// the tracker counts: bytes for model downloads, images for batches.
type ProgressInfo struct {
	Total   int64 // 0 when unknown
	Done    int64
	Percent float64 // -1 when Total is unknown
	Rate    float64 // units per second, smoothed
	ETA     time.Duration
	Elapsed time.Duration
}

// ProgressTracker measures progress toward a total with a smoothed rate.
// Safe for concurrent use.
type ProgressTracker struct {
	mu sync.RWMutex

	total      int64
	done       int64
	start      time.Time
	lastUpdate time.Time
	lastDone   int64
	rate       float64
	alpha      float64
}

// NewProgressTracker creates a tracker; total is 0 when unknown.
func NewProgressTracker(total int64) *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{
		total:      total,
		start:      now,
		lastUpdate: now,
		alpha:      0.3,
	}
}

// Update adds n completed units.
func (p *ProgressTracker) Update(n int64) {
	if n <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done += n
	p.updateRate(time.Now())
}

// SetDone sets the absolute completed count (e.g. bytes already on disk
// when a download resumes).
func (p *ProgressTracker) SetDone(done int64) {
	if done < 0 {
		done = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = done
	p.lastDone = done
}

// SetTotal updates the expected total.
func (p *ProgressTracker) SetTotal(total int64) {
	if total < 0 {
		total = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
}

// updateRate folds the latest interval into the moving average.
// Must be called with mu held.
func (p *ProgressTracker) updateRate(now time.Time) {
	elapsed := now.Sub(p.lastUpdate).Seconds()
	if elapsed < 0.1 {
		return
	}
	instant := float64(p.done-p.lastDone) / elapsed
	if p.rate == 0 {
		p.rate = instant
	} else {
		p.rate = p.alpha*instant + (1-p.alpha)*p.rate
	}
	p.lastUpdate = now
	p.lastDone = p.done
}

// Progress returns the current snapshot.
func (p *ProgressTracker) Progress() ProgressInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()

	info := ProgressInfo{
		Total:   p.total,
		Done:    p.done,
		Percent: -1,
		Rate:    p.rate,
		Elapsed: time.Since(p.start),
	}
	if p.total > 0 {
		info.Percent = float64(p.done) / float64(p.total) * 100
		if info.Percent > 100 {
			info.Percent = 100
		}
		if p.rate > 0 && p.done < p.total {
			info.ETA = time.Duration(float64(p.total-p.done) / p.rate * float64(time.Second))
		}
	}
	return info
}

// Done returns the completed count.
func (p *ProgressTracker) Done() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.done
}

// Total returns the expected total.
func (p *ProgressTracker) Total() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.total
}

// IsComplete reports Done >= Total; always false when Total is unknown.
func (p *ProgressTracker) IsComplete() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.total > 0 && p.done >= p.total
}
