package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"go_waifu2x/core"
)

var (
	// ErrJobNotFound is returned when no job matches the query.
	ErrJobNotFound = errors.New("db: job not found")
	// ErrInvalidTransition is returned when a job is moved to a status its
	// current status cannot reach.
	ErrInvalidTransition = errors.New("db: invalid job status transition")
)

const jobColumns = `id, batch_id, input_path, output_path, input_sha256, model, noise, scale,
	width, height, out_width, out_height, status, error_message, duration_ms,
	created_at, updated_at`

// BatchSummary counts the jobs of one batch by status.
type BatchSummary struct {
	BatchID string
	Total   int
	Pending int
	Running int
	Done    int
	Failed  int
	// Elapsed is the sum of job durations
	Elapsed time.Duration
}

// Complete reports whether every job reached a terminal status.
func (s BatchSummary) Complete() bool {
	return s.Pending == 0 && s.Running == 0
}

// Repository reads and writes upscale jobs.
type Repository struct {
	db  *Database
	now func() time.Time
}

// NewRepository creates a Repository on an open Database.
func NewRepository(db *Database) *Repository {
	return &Repository{db: db, now: time.Now}
}

// NewBatchID returns a fresh batch identifier.
func NewBatchID() string {
	return uuid.NewString()
}

// StartBatch records the start of a batch and returns its id.
func (r *Repository) StartBatch(ctx context.Context, command string) (string, error) {
	id := NewBatchID()
	err := r.exec(ctx, `INSERT INTO batches (id, command, started_at) VALUES (?, ?, ?)`,
		id, command, r.now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("failed to start batch: %w", err)
	}
	return id, nil
}

// FinishBatch stamps the batch end time.
func (r *Repository) FinishBatch(ctx context.Context, batchID string) error {
	if err := r.exec(ctx, `UPDATE batches SET finished_at = ? WHERE id = ?`,
		r.now().UnixMilli(), batchID); err != nil {
		return fmt.Errorf("failed to finish batch: %w", err)
	}
	return nil
}

// CreateJob inserts job as pending. An empty ID is filled with a UUID;
// CreatedAt, UpdatedAt and Status are set on job.
func (r *Repository) CreateJob(ctx context.Context, job *core.UpscaleJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := r.now()
	job.Status = core.JobPending
	job.CreatedAt = now
	job.UpdatedAt = now

	err := r.exec(ctx, `INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.BatchID, job.InputPath, job.OutputPath, job.InputSHA256,
		job.Model, job.Noise, job.Scale,
		job.Width, job.Height, job.OutWidth, job.OutHeight,
		string(job.Status), job.ErrorMessage, job.DurationMs,
		now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// MarkRunning moves a pending job to running and records the input size.
func (r *Repository) MarkRunning(ctx context.Context, id string, width, height int) error {
	return r.transition(ctx, id, core.JobPending,
		`UPDATE jobs SET status = 'running', width = ?, height = ?, updated_at = ?
		 WHERE id = ? AND status = 'pending'`,
		width, height, r.now().UnixMilli(), id)
}

// MarkDone moves a running job to done.
func (r *Repository) MarkDone(ctx context.Context, id string, outWidth, outHeight int, elapsed time.Duration) error {
	return r.transition(ctx, id, core.JobRunning,
		`UPDATE jobs SET status = 'done', out_width = ?, out_height = ?, duration_ms = ?,
		 error_message = '', updated_at = ?
		 WHERE id = ? AND status = 'running'`,
		outWidth, outHeight, elapsed.Milliseconds(), r.now().UnixMilli(), id)
}

// MarkFailed moves a pending or running job to failed with the error text.
func (r *Repository) MarkFailed(ctx context.Context, id string, cause error, elapsed time.Duration) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return r.transition(ctx, id, core.JobRunning,
		`UPDATE jobs SET status = 'failed', error_message = ?, duration_ms = ?, updated_at = ?
		 WHERE id = ? AND status IN ('pending', 'running')`,
		msg, elapsed.Milliseconds(), r.now().UnixMilli(), id)
}

// FailInterrupted marks every running job failed. It is called at
// startup to settle jobs left behind by a process that did not shut down
// cleanly.
func (r *Repository) FailInterrupted(ctx context.Context) (int64, error) {
	d := r.db
	d.mu.RLock()
	defer d.mu.RUnlock()
	conn, err := d.conn()
	if err != nil {
		return 0, err
	}

	res, err := conn.ExecContext(ctx,
		`UPDATE jobs SET status = 'failed', error_message = 'interrupted', updated_at = ?
		 WHERE status = 'running'`, r.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to settle interrupted jobs: %w", err)
	}
	return res.RowsAffected()
}

// GetJob returns the job with id or ErrJobNotFound.
func (r *Repository) GetJob(ctx context.Context, id string) (*core.UpscaleJob, error) {
	jobs, err := r.query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return jobs[0], nil
}

// ListBatch returns the jobs of a batch in creation order.
func (r *Repository) ListBatch(ctx context.Context, batchID string) ([]*core.UpscaleJob, error) {
	return r.query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE batch_id = ?
		ORDER BY created_at, rowid`, batchID)
}

// FindDoneByInput returns the latest done job that produced outputPath
// from the same input content and settings, or ErrJobNotFound. An empty
// inputSHA matches any content.
func (r *Repository) FindDoneByInput(ctx context.Context, inputPath, inputSHA, outputPath, model string, noise, scale int) (*core.UpscaleJob, error) {
	jobs, err := r.query(ctx, `SELECT `+jobColumns+` FROM jobs
		WHERE input_path = ? AND output_path = ? AND model = ? AND noise = ? AND scale = ?
		  AND status = 'done' AND (? = '' OR input_sha256 = ?)
		ORDER BY updated_at DESC LIMIT 1`,
		inputPath, outputPath, model, noise, scale, inputSHA, inputSHA)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, ErrJobNotFound
	}
	return jobs[0], nil
}

// BatchSummary counts the jobs of batchID by status.
func (r *Repository) BatchSummary(ctx context.Context, batchID string) (BatchSummary, error) {
	summary := BatchSummary{BatchID: batchID}

	d := r.db
	d.mu.RLock()
	defer d.mu.RUnlock()
	conn, err := d.conn()
	if err != nil {
		return summary, err
	}

	rows, err := conn.QueryContext(ctx,
		`SELECT status, COUNT(*), COALESCE(SUM(duration_ms), 0) FROM jobs
		 WHERE batch_id = ? GROUP BY status`, batchID)
	if err != nil {
		return summary, fmt.Errorf("failed to summarize batch: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		var ms int64
		if err := rows.Scan(&status, &count, &ms); err != nil {
			return summary, fmt.Errorf("failed to scan batch summary: %w", err)
		}
		summary.Total += count
		summary.Elapsed += time.Duration(ms) * time.Millisecond
		switch core.JobStatus(status) {
		case core.JobPending:
			summary.Pending = count
		case core.JobRunning:
			summary.Running = count
		case core.JobDone:
			summary.Done = count
		case core.JobFailed:
			summary.Failed = count
		}
	}
	return summary, rows.Err()
}

// transition runs an UPDATE guarded by the job's current status. When no
// row changes it tells a missing job apart from a wrong starting status.
func (r *Repository) transition(ctx context.Context, id string, from core.JobStatus, query string, args ...any) error {
	d := r.db
	d.mu.RLock()
	defer d.mu.RUnlock()
	conn, err := d.conn()
	if err != nil {
		return err
	}

	res, err := conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var status string
	err = conn.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to read job %s: %w", id, err)
	}
	return fmt.Errorf("%w: job %s is %s, expected %s", ErrInvalidTransition, id, status, from)
}

func (r *Repository) exec(ctx context.Context, query string, args ...any) error {
	d := r.db
	d.mu.RLock()
	defer d.mu.RUnlock()
	conn, err := d.conn()
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, query, args...)
	return err
}

func (r *Repository) query(ctx context.Context, query string, args ...any) ([]*core.UpscaleJob, error) {
	d := r.db
	d.mu.RLock()
	defer d.mu.RUnlock()
	conn, err := d.conn()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*core.UpscaleJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(rows *sql.Rows) (*core.UpscaleJob, error) {
	var job core.UpscaleJob
	var status string
	var created, updated int64
	err := rows.Scan(&job.ID, &job.BatchID, &job.InputPath, &job.OutputPath, &job.InputSHA256,
		&job.Model, &job.Noise, &job.Scale,
		&job.Width, &job.Height, &job.OutWidth, &job.OutHeight,
		&status, &job.ErrorMessage, &job.DurationMs, &created, &updated)
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	job.Status = core.JobStatus(status)
	job.CreatedAt = time.UnixMilli(created)
	job.UpdatedAt = time.UnixMilli(updated)
	return &job, nil
}
