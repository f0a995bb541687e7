package main

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go_waifu2x/core"
	"go_waifu2x/db"
	"go_waifu2x/imageio"
	"go_waifu2x/logging"
	"go_waifu2x/shutdown"
)

func newWatchCommand(a *app) *cobra.Command {
	var pf pipelineFlags
	var dir, output string
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Upscale images as they appear in a directory",
		Long: `watch polls a directory and upscales every new or changed image once
its size has stopped changing. Results go to the output directory,
"upscaled" inside the watched directory by default.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := cmd.Flags()
			if fs.Changed("dir") {
				a.cfg.WatchDir = dir
			}
			if fs.Changed("output") {
				a.cfg.WatchOutput = output
			}
			if fs.Changed("interval") {
				a.cfg.WatchInterval = interval
			}
			if err := pf.apply(fs, a.cfg); err != nil {
				return err
			}

			session, err := a.openWatch(true)
			if err != nil {
				return err
			}
			if err := session.run(); err != nil {
				return err
			}
			if code := session.p.mgr.ExitCode(); code != core.ExitCodeSuccess {
				return &exitError{code: code, err: errInterrupted}
			}
			return nil
		},
	}

	addPipelineFlags(cmd.Flags(), &pf)
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "directory to watch (default $W2X_WATCH_DIR)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output directory (default <dir>/upscaled)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval")
	return cmd
}

// resolveWatchDirs fills in the output directory and rejects layouts
// where results would be picked up again as inputs.
func resolveWatchDirs(cfg *core.AppConfig) (dir, out string, err error) {
	if cfg.WatchDir == "" {
		return "", "", core.ErrMissingConfig("W2X_WATCH_DIR")
	}
	if dir, err = filepath.Abs(cfg.WatchDir); err != nil {
		return "", "", err
	}
	out = cfg.WatchOutput
	if out == "" {
		out = filepath.Join(dir, "upscaled")
	}
	if out, err = filepath.Abs(out); err != nil {
		return "", "", err
	}
	if out == dir {
		return "", "", core.ErrInvalidValue("watch output", out, "Set W2X_WATCH_OUTPUT to a directory other than the watched one")
	}
	if info, statErr := os.Stat(dir); statErr != nil || !info.IsDir() {
		return "", "", core.ErrInvalidValue("watch directory", dir, "Create the directory or set W2X_WATCH_DIR")
	}
	return dir, out, nil
}

// watchSession is a running watch loop with its pipeline.
type watchSession struct {
	p       *pipeline
	watcher *watcher
	batchID string
}

// openWatch builds the pipeline for watch mode. The ledger is pruned
// daily while the session runs.
func (a *app) openWatch(listenSignals bool) (*watchSession, error) {
	dir, out, err := resolveWatchDirs(a.cfg)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(out, 0755); err != nil {
		return nil, err
	}

	p, err := a.openPipeline(listenSignals, out)
	if err != nil {
		return nil, err
	}

	batchID, err := p.repo.StartBatch(context.Background(), "watch")
	if err != nil {
		p.close()
		return nil, err
	}
	runner, err := a.runner(p, batchID, true)
	if err != nil {
		p.close()
		return nil, err
	}

	cleanupDone := p.db.StartCleanupScheduler(p.mgr.Context(), db.CleanupSchedulerConfig{
		Retention: a.cfg.JobRetention,
		Interval:  24 * time.Hour,
	})
	p.mgr.Register("ledger-cleanup", shutdown.PriorityWatcher, func(ctx context.Context) error {
		select {
		case <-cleanupDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	w := newWatcher(dir, out, a.cfg.WatchInterval, runner, a.logger)
	return &watchSession{p: p, watcher: w, batchID: batchID}, nil
}

// run polls until shutdown is requested, then tears the pipeline down.
func (s *watchSession) run() error {
	s.watcher.run(s.p.mgr.Context())

	m := s.p.stats.JobMetrics()
	s.watcher.logger.Info("watch session summary",
		zap.Int64("done", m.Done),
		zap.Int64("failed", m.Failed),
		zap.Int64("skipped", m.Skipped),
		zap.Int64("cancelled", m.Cancelled),
		zap.Duration("uptime", s.p.stats.Uptime()))
	if err := s.p.repo.FinishBatch(context.Background(), s.batchID); err != nil {
		s.watcher.logger.Warn("failed to close batch", zap.Error(err))
	}
	return s.p.close()
}

// stop requests shutdown; run returns once teardown is complete.
func (s *watchSession) stop() {
	s.p.mgr.Trigger()
}

type fileState struct {
	size    int64
	modTime time.Time
}

// watcher finds images in one directory that are ready to process. A
// file is ready when two consecutive polls see the same size and
// modification time, and that state has not been processed yet.
type watcher struct {
	dir      string
	outDir   string
	interval time.Duration
	runner   *batchRunner
	logger   *logging.Logger

	seen    map[string]fileState
	handled map[string]fileState
}

func newWatcher(dir, outDir string, interval time.Duration, runner *batchRunner, logger *logging.Logger) *watcher {
	return &watcher{
		dir:      dir,
		outDir:   outDir,
		interval: interval,
		runner:   runner,
		logger:   logger.Named("watch"),
		seen:     make(map[string]fileState),
		handled:  make(map[string]fileState),
	}
}

func (w *watcher) run(ctx context.Context) {
	w.logger.Info("watching directory",
		zap.String("dir", w.dir),
		zap.String("output", w.outDir),
		zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		w.processReady(ctx)
		select {
		case <-ctx.Done():
			w.logger.Info("watch stopped")
			return
		case <-ticker.C:
		}
	}
}

// processReady runs one poll and upscales whatever it reports.
func (w *watcher) processReady(ctx context.Context) {
	ready, err := w.poll()
	if err != nil {
		w.logger.Warn("poll failed", zap.Error(err))
		return
	}
	if len(ready) == 0 || ctx.Err() != nil {
		return
	}

	w.logger.Info("new images", zap.Int("count", len(ready)))
	stats := w.runner.run(ctx, w.runner.plan(ready, w.outDir))
	for _, path := range ready[:min(len(ready), stats.total())] {
		w.handled[path] = w.seen[path]
	}
	if stats.Failed > 0 {
		w.logger.Warn("some images failed", zap.Int("failed", stats.Failed))
	}
}

// poll lists the directory and returns the files that are ready, sorted.
func (w *watcher) poll() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, err
	}

	current := make(map[string]fileState, len(entries))
	var ready []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasSuffix(name, core.PartialSuffix) || !imageio.IsSupportedInput(name) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(w.dir, name)
		state := fileState{size: info.Size(), modTime: info.ModTime()}
		current[path] = state

		prev, seen := w.seen[path]
		if !seen || prev != state || state.size == 0 {
			continue
		}
		if done, ok := w.handled[path]; ok && done == state {
			continue
		}
		ready = append(ready, path)
	}

	for path := range w.handled {
		if _, ok := current[path]; !ok {
			delete(w.handled, path)
		}
	}
	w.seen = current
	sort.Strings(ready)
	return ready, nil
}
