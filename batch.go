package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"go_waifu2x/core"
	"go_waifu2x/db"
	"go_waifu2x/imageio"
	"go_waifu2x/logging"
	"go_waifu2x/metrics"
	"go_waifu2x/shutdown"
	"go_waifu2x/upscaler"
)

// ErrInputTooLarge is returned for inputs above the configured size limit.
var ErrInputTooLarge = errors.New("input file exceeds the size limit")

// batchItem is one input file and where its result goes.
type batchItem struct {
	Input  string
	Output string
}

type fileResult int

const (
	resultDone fileResult = iota
	resultSkipped
	resultFailed
	resultCancelled
)

// String returns the metrics status name.
func (r fileResult) String() string {
	switch r {
	case resultDone:
		return metrics.JobStatusDone
	case resultSkipped:
		return metrics.JobStatusSkipped
	case resultFailed:
		return metrics.JobStatusFailed
	default:
		return metrics.JobStatusCancelled
	}
}

// batchStats counts outcomes of one run.
type batchStats struct {
	Done      int
	Skipped   int
	Failed    int
	Cancelled int
}

func (s *batchStats) add(r fileResult) {
	switch r {
	case resultDone:
		s.Done++
	case resultSkipped:
		s.Skipped++
	case resultFailed:
		s.Failed++
	case resultCancelled:
		s.Cancelled++
	}
}

func (s batchStats) total() int {
	return s.Done + s.Skipped + s.Failed + s.Cancelled
}

type batchConfig struct {
	Upscaler      *upscaler.Upscaler
	Repo          *db.Repository
	Manager       *shutdown.Manager
	Logger        *logging.Logger
	Format        string
	Quality       int
	MaxInputBytes int64
	BatchID       string
	// Metrics receives every outcome when set
	Metrics metrics.Collector
	// Resume skips inputs whose output was already produced by a done job
	Resume bool
}

// batchRunner upscales files through the shared Upscaler, recording each
// one as a job in the ledger.
type batchRunner struct {
	batchConfig
	format imageio.Format
}

func newBatchRunner(cfg batchConfig) (*batchRunner, error) {
	format, err := imageio.ParseFormat(cfg.Format)
	if err != nil {
		return nil, core.ErrInvalidValue("output format", cfg.Format, "Use png, jpg, bmp or tif")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	return &batchRunner{batchConfig: cfg, format: format}, nil
}

// plan pairs each input with an output path for this runner's scale and
// format.
func (b *batchRunner) plan(inputs []string, outDir string) []batchItem {
	return planOutputs(inputs, outDir, b.Upscaler.Options().Scale, b.format)
}

// planOutputs pairs each input with an output path. With an empty outDir
// results go next to their inputs as "<name>_x<scale>.<ext>"; otherwise
// into outDir as "<name>.<ext>". Inputs that would collide get their
// source extension appended to the name.
func planOutputs(inputs []string, outDir string, scale int, format imageio.Format) []batchItem {
	items := make([]batchItem, 0, len(inputs))
	used := make(map[string]bool, len(inputs))

	for _, in := range inputs {
		dir, name := filepath.Dir(in), filepath.Base(in)
		ext := filepath.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		if outDir == "" {
			stem = fmt.Sprintf("%s_x%d", stem, scale)
		} else {
			dir = outDir
		}

		out := filepath.Join(dir, stem+format.Extension())
		if used[out] || sameFile(in, out) {
			out = filepath.Join(dir, stem+"_"+strings.TrimPrefix(strings.ToLower(ext), ".")+format.Extension())
		}
		used[out] = true
		items = append(items, batchItem{Input: in, Output: out})
	}
	return items
}

func sameFile(a, b string) bool {
	ia, err := os.Stat(a)
	if err != nil {
		return false
	}
	ib, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ia, ib)
}

// run feeds items to Options.Workers goroutines until all are processed or
// ctx is cancelled. Items never started are not counted.
func (b *batchRunner) run(ctx context.Context, items []batchItem) batchStats {
	workers := b.Upscaler.Options().Workers
	if workers < 1 {
		workers = 1
	}

	work := make(chan batchItem)
	var (
		mu    sync.Mutex
		stats batchStats
		wg    sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range work {
				r := b.processFile(it)
				mu.Lock()
				stats.add(r)
				mu.Unlock()
			}
		}()
	}

feed:
	for _, it := range items {
		select {
		case <-ctx.Done():
			break feed
		case work <- it:
		}
	}
	close(work)
	wg.Wait()
	return stats
}

// processFile runs one item end to end and records the outcome.
func (b *batchRunner) processFile(it batchItem) fileResult {
	rec := metrics.JobRecord{Input: it.Input, Model: b.Upscaler.Options().Model.String()}
	start := time.Now()
	result := b.runFile(it, &rec)

	if b.Metrics != nil {
		rec.Status = result.String()
		rec.Duration = time.Since(start)
		rec.FinishedAt = time.Now()
		b.Metrics.RecordJob(rec)
	}
	return result
}

// runFile does the work of processFile. Ledger writes use a background
// context so outcomes are recorded even while shutting down.
func (b *batchRunner) runFile(it batchItem, rec *metrics.JobRecord) fileResult {
	ledger := context.Background()
	opts := b.Upscaler.Options()
	log := b.Logger.With(zap.String("input", it.Input))

	sha, err := core.ComputeSHA256(it.Input)
	if err != nil {
		log.Error("failed to read input", zap.Error(err))
		rec.ErrorMsg = err.Error()
		return resultFailed
	}

	if b.Resume {
		_, err := b.Repo.FindDoneByInput(ledger, it.Input, sha, it.Output, opts.Model.String(), opts.Noise, opts.Scale)
		if err == nil {
			if _, statErr := os.Stat(it.Output); statErr == nil {
				log.Debug("skipping, already upscaled", zap.String("output", it.Output))
				return resultSkipped
			}
		} else if !errors.Is(err, db.ErrJobNotFound) {
			log.Warn("resume lookup failed", zap.Error(err))
		}
	}

	job := &core.UpscaleJob{
		BatchID:     b.BatchID,
		InputPath:   it.Input,
		OutputPath:  it.Output,
		InputSHA256: sha,
		Model:       opts.Model.String(),
		Noise:       opts.Noise,
		Scale:       opts.Scale,
	}
	if err := b.Repo.CreateJob(ledger, job); err != nil {
		log.Error("failed to record job", zap.Error(err))
		rec.ErrorMsg = err.Error()
		return resultFailed
	}
	rec.ID = job.ID

	start := time.Now()
	err = b.Manager.TrackJob(job.ID, it.Input, func(ctx context.Context) error {
		return b.upscaleFile(ctx, job, it)
	})
	elapsed := time.Since(start)

	switch {
	case err == nil:
		if err := b.Repo.MarkDone(ledger, job.ID, job.OutWidth, job.OutHeight, elapsed); err != nil {
			log.Error("failed to record job completion", zap.Error(err))
		}
		rec.OutputPixels = int64(job.OutWidth) * int64(job.OutHeight)
		log.Info("upscaled",
			zap.String("output", it.Output),
			zap.Int("width", job.OutWidth),
			zap.Int("height", job.OutHeight),
			zap.Duration("duration", elapsed))
		return resultDone

	case errors.Is(err, shutdown.ErrTrackerClosed) || errors.Is(err, context.Canceled):
		_ = b.Repo.MarkFailed(ledger, job.ID, errInterrupted, elapsed)
		log.Warn("job cancelled by shutdown")
		return resultCancelled

	default:
		if markErr := b.Repo.MarkFailed(ledger, job.ID, err, elapsed); markErr != nil {
			log.Error("failed to record job failure", zap.Error(markErr))
		}
		rec.ErrorMsg = err.Error()
		log.Error("upscale failed", zap.Error(err))
		return resultFailed
	}
}

// upscaleFile decodes, upscales and writes one image, filling in the
// job's dimensions.
func (b *batchRunner) upscaleFile(ctx context.Context, job *core.UpscaleJob, it batchItem) error {
	info, err := os.Stat(it.Input)
	if err != nil {
		return err
	}
	if b.MaxInputBytes > 0 && info.Size() > b.MaxInputBytes {
		return fmt.Errorf("%w: %s is %s, limit %s", ErrInputTooLarge, it.Input,
			core.FormatBytes(info.Size()), core.FormatBytes(b.MaxInputBytes))
	}

	img, _, err := imageio.DecodeFile(it.Input)
	if err != nil {
		return err
	}
	bounds := img.Bounds()
	job.Width, job.Height = bounds.Dx(), bounds.Dy()
	if err := b.Repo.MarkRunning(context.Background(), job.ID, job.Width, job.Height); err != nil {
		return err
	}

	outDir := filepath.Dir(it.Output)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	scale := int64(b.Upscaler.Options().Scale)
	estimate := int64(job.Width) * scale * int64(job.Height) * scale * 4
	if err := core.CheckDiskSpace(outDir, estimate); err != nil {
		return err
	}

	out, err := b.Upscaler.Upscale(ctx, img)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := imageio.EncodeFile(it.Output, out, b.Quality); err != nil {
		return err
	}

	ob := out.Bounds()
	job.OutWidth, job.OutHeight = ob.Dx(), ob.Dy()
	return nil
}

// collectInputs expands files and directories (one level deep) into a
// sorted, de-duplicated list of supported images. Partial writes are
// ignored.
func collectInputs(args []string) ([]string, error) {
	seen := make(map[string]bool)
	var inputs []string
	add := func(path string) error {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		if !seen[abs] {
			seen[abs] = true
			inputs = append(inputs, abs)
		}
		return nil
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if !imageio.IsSupportedInput(arg) {
				return nil, fmt.Errorf("%w: %s", imageio.ErrUnsupportedFormat, arg)
			}
			if err := add(arg); err != nil {
				return nil, err
			}
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || strings.HasSuffix(name, core.PartialSuffix) || !imageio.IsSupportedInput(name) {
				continue
			}
			if err := add(filepath.Join(arg, name)); err != nil {
				return nil, err
			}
		}
	}

	sort.Strings(inputs)
	return inputs, nil
}
