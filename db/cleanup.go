package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// CleanupResult reports one retention pass.
type CleanupResult struct {
	// JobsDeleted counts finished jobs older than the retention window
	JobsDeleted int64
	// BatchesDeleted counts batches left without jobs
	BatchesDeleted int64
	Duration       time.Duration
}

// Cleanup deletes done and failed jobs last updated before now minus
// retention, drops batches that no longer have jobs and runs VACUUM.
// Pending and running jobs are never removed.
func (d *Database) Cleanup(ctx context.Context, retention time.Duration) (CleanupResult, error) {
	start := time.Now()
	var result CleanupResult

	if retention < 0 {
		return result, fmt.Errorf("retention must be non-negative, got %v", retention)
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	conn, err := d.conn()
	if err != nil {
		return result, err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	cutoff := start.Add(-retention).UnixMilli()
	res, err := tx.ExecContext(ctx,
		`DELETE FROM jobs WHERE status IN ('done', 'failed') AND updated_at < ?`, cutoff)
	if err != nil {
		return result, fmt.Errorf("failed to delete jobs: %w", err)
	}
	if result.JobsDeleted, err = res.RowsAffected(); err != nil {
		return result, err
	}

	res, err = tx.ExecContext(ctx,
		`DELETE FROM batches WHERE started_at < ?
		 AND NOT EXISTS (SELECT 1 FROM jobs WHERE jobs.batch_id = batches.id)`, cutoff)
	if err != nil {
		return result, fmt.Errorf("failed to delete batches: %w", err)
	}
	if result.BatchesDeleted, err = res.RowsAffected(); err != nil {
		return result, err
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if result.JobsDeleted > 0 {
		if _, err := conn.ExecContext(ctx, "VACUUM"); err != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("cleanup succeeded but VACUUM failed: %w", err)
		}
	}

	result.Duration = time.Since(start)
	d.logger.Debug("ledger cleanup",
		zap.Int64("jobs_deleted", result.JobsDeleted),
		zap.Int64("batches_deleted", result.BatchesDeleted),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// CleanupSchedulerConfig configures StartCleanupScheduler.
type CleanupSchedulerConfig struct {
	Retention time.Duration
	Interval  time.Duration
	// OnCleanup is called after each run (optional)
	OnCleanup func(result CleanupResult, err error)
}

// DefaultCleanupSchedulerConfig keeps 30 days and runs daily.
func DefaultCleanupSchedulerConfig() CleanupSchedulerConfig {
	return CleanupSchedulerConfig{
		Retention: 30 * 24 * time.Hour,
		Interval:  24 * time.Hour,
	}
}

// StartCleanupScheduler runs Cleanup immediately and then every
// config.Interval until ctx is cancelled. The returned channel is closed
// when the goroutine exits.
func (d *Database) StartCleanupScheduler(ctx context.Context, config CleanupSchedulerConfig) <-chan struct{} {
	done := make(chan struct{})
	if config.Interval <= 0 {
		config.Interval = DefaultCleanupSchedulerConfig().Interval
	}

	run := func() {
		result, err := d.Cleanup(ctx, config.Retention)
		if err != nil && ctx.Err() == nil {
			d.logger.Warn("ledger cleanup failed", zap.Error(err))
		}
		if config.OnCleanup != nil {
			config.OnCleanup(result, err)
		}
	}

	go func() {
		defer close(done)
		run()

		ticker := time.NewTicker(config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
	return done
}
