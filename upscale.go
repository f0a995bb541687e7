package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go_waifu2x/core"
	"go_waifu2x/db"
	"go_waifu2x/metrics"
)

func newUpscaleCommand(a *app) *cobra.Command {
	var (
		pf     pipelineFlags
		outDir string
		resume bool
	)

	cmd := &cobra.Command{
		Use:   "upscale [flags] <file|dir>...",
		Short: "Upscale image files or the images in directories",
		Example: `  waifu2x upscale -s 2 -n 1 art.png
  waifu2x upscale -m upconv7-photo -s 4 -o out/ photos/
  waifu2x upscale --resume -o out/ photos/`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := pf.apply(cmd.Flags(), a.cfg); err != nil {
				return err
			}
			return a.runUpscale(cmd.OutOrStdout(), args, outDir, resume)
		},
	}

	addPipelineFlags(cmd.Flags(), &pf)
	cmd.Flags().StringVarP(&outDir, "output", "o", "", "output directory (default: next to each input as <name>_x<scale>)")
	cmd.Flags().BoolVar(&resume, "resume", false, "skip inputs already upscaled with the same settings")
	return cmd
}

// runUpscale processes one batch. A shutdown signal stops intake, lets
// running jobs finish and returns the signal's exit code.
func (a *app) runUpscale(w io.Writer, args []string, outDir string, resume bool) error {
	inputs, err := collectInputs(args)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no supported images in %v", args)
	}
	if outDir != "" {
		if outDir, err = filepath.Abs(outDir); err != nil {
			return err
		}
	}

	p, err := a.openPipeline(true, partialDirs(inputs, outDir)...)
	if err != nil {
		return err
	}
	defer p.close()

	batchID, err := p.repo.StartBatch(context.Background(), "upscale")
	if err != nil {
		return err
	}
	runner, err := a.runner(p, batchID, resume)
	if err != nil {
		return err
	}

	items := runner.plan(inputs, outDir)
	a.logger.Info("batch started",
		zap.String("batch_id", batchID),
		zap.Int("files", len(items)),
		zap.Object("gpu", p.up.GPUInfo()),
		zap.Int("tile_size", p.up.TileSize()))

	start := time.Now()
	stats := runner.run(p.mgr.Context(), items)
	interrupted := p.mgr.IsShuttingDown()

	if err := p.repo.FinishBatch(context.Background(), batchID); err != nil {
		a.logger.Warn("failed to close batch", zap.Error(err))
	}
	summary, err := p.repo.BatchSummary(context.Background(), batchID)
	if err != nil {
		a.logger.Warn("failed to summarize batch", zap.Error(err))
		summary = db.BatchSummary{BatchID: batchID}
	}
	printSummary(w, summary, stats, p.stats.JobMetrics(), len(items), time.Since(start))

	if shutdownErr := p.close(); shutdownErr != nil {
		a.logger.Error("shutdown failed", zap.Error(shutdownErr))
	}

	switch {
	case interrupted:
		return &exitError{code: p.mgr.ExitCode(), err: errInterrupted}
	case stats.Failed > 0:
		return fmt.Errorf("%w: %d of %d files", core.ErrPartialFailure, stats.Failed, len(items))
	}
	return nil
}

// partialDirs lists the directories outputs are written to.
func partialDirs(inputs []string, outDir string) []string {
	if outDir != "" {
		return []string{outDir}
	}
	set := make(map[string]bool)
	for _, in := range inputs {
		set[filepath.Dir(in)] = true
	}
	dirs := make([]string, 0, len(set))
	for d := range set {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

// printSummary writes the outcome of a batch run.
func printSummary(w io.Writer, summary db.BatchSummary, stats batchStats, jobs metrics.JobMetrics, planned int, elapsed time.Duration) {
	fmt.Fprintln(w)
	header := color.New(color.FgCyan, color.Bold)
	header.Fprintf(w, "━━━ Batch %s ━━━\n", shortID(summary.BatchID))

	line := func(c *color.Color, icon, label string, n int) {
		if n == 0 {
			return
		}
		c.Fprintf(w, "  %s %-10s %d\n", icon, label, n)
	}
	line(color.New(color.FgGreen), "✓", "upscaled", stats.Done)
	line(color.New(color.FgHiBlack), "○", "skipped", stats.Skipped)
	line(color.New(color.FgRed), "✗", "failed", stats.Failed)
	line(color.New(color.FgYellow), "⚠", "cancelled", stats.Cancelled)
	line(color.New(color.FgYellow), "⚠", "not started", planned-stats.total())

	dim := color.New(color.FgHiBlack)
	dim.Fprintf(w, "  %d files in %v", planned, elapsed.Round(time.Millisecond))
	if summary.Elapsed > 0 {
		dim.Fprintf(w, " (%v upscaling)", summary.Elapsed.Round(time.Millisecond))
	}
	fmt.Fprintln(w)
	for _, name := range sortedKeys(jobs.ByModel) {
		m := jobs.ByModel[name]
		if m.AvgDuration == 0 {
			continue
		}
		dim.Fprintf(w, "  %s: %v per image, %.2f MP/s\n", name, m.AvgDuration.Round(time.Millisecond), m.MegapixelsPerSecond)
	}
	fmt.Fprintln(w)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
