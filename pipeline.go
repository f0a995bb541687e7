package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"go_waifu2x/core"
	"go_waifu2x/db"
	"go_waifu2x/metrics"
	"go_waifu2x/shutdown"
	"go_waifu2x/upscaler"
	"go_waifu2x/w2xruntime"
)

// pipeline is everything a processing command needs, registered with the
// shutdown manager in teardown order.
type pipeline struct {
	gpu  *w2xruntime.GPUContext
	up   *upscaler.Upscaler
	db   *db.Database
	repo *db.Repository
	mgr  *shutdown.Manager
	// stats accumulates job outcomes for summaries
	stats *metrics.Store
}

// openPipeline creates the GPU context, loads the engines and opens the
// job ledger. outputDirs are swept for partial writes on shutdown. When
// listenSignals is false the caller stops the manager itself (service
// mode).
func (a *app) openPipeline(listenSignals bool, outputDirs ...string) (*pipeline, error) {
	mgr := shutdown.NewManager(a.logger, shutdown.WithTimeout(a.cfg.ShutdownTimeout))
	mgr.Register("logger", shutdown.PriorityLogger, func(ctx context.Context) error {
		_ = a.logger.Sync()
		return nil
	})

	opts, err := upscaler.OptionsFromConfig(a.cfg)
	if err != nil {
		return nil, err
	}

	gpu, err := w2xruntime.NewGPUContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create GPU context: %w", err)
	}

	up, err := upscaler.New(gpu, opts, a.logger)
	if err != nil {
		_ = gpu.Close()
		if errors.Is(err, w2xruntime.ErrModelNotFound) {
			return nil, fmt.Errorf("%w (run `waifu2x models pull --model %s`)", err, opts.Model)
		}
		return nil, err
	}

	database, err := db.Open(a.cfg.DatabasePath, a.logger)
	if err != nil {
		_ = up.Close()
		_ = gpu.Close()
		return nil, err
	}
	repo := db.NewRepository(database)

	if n, err := repo.FailInterrupted(context.Background()); err != nil {
		a.logger.Warn("failed to settle interrupted jobs", zap.Error(err))
	} else if n > 0 {
		a.logger.Info("marked jobs from an interrupted run as failed", zap.Int64("count", n))
	}

	mgr.Register("engine-pool", shutdown.PriorityPool, core.CloserShutdown(up))
	mgr.Register("gpu-context", shutdown.PriorityGPU, core.CloserShutdown(gpu))
	mgr.Register("database", shutdown.PriorityDatabase, core.CloserShutdown(database))
	mgr.Register("remove-partials", shutdown.PriorityPartials, shutdown.RemovePartials(a.logger, outputDirs...))

	if listenSignals {
		mgr.Start()
	}
	return &pipeline{
		gpu:   gpu,
		up:    up,
		db:    database,
		repo:  repo,
		mgr:   mgr,
		stats: metrics.NewStore(metrics.DefaultStoreConfig(), time.Now()),
	}, nil
}

// close runs the shutdown sequence.
func (p *pipeline) close() error {
	return p.mgr.Shutdown()
}

// runner returns a batch runner for this pipeline.
func (a *app) runner(p *pipeline, batchID string, resume bool) (*batchRunner, error) {
	return newBatchRunner(batchConfig{
		Upscaler:      p.up,
		Repo:          p.repo,
		Manager:       p.mgr,
		Logger:        a.logger,
		Format:        a.cfg.OutputFormat,
		Quality:       a.cfg.JPEGQuality,
		MaxInputBytes: a.cfg.MaxInputBytes,
		BatchID:       batchID,
		Metrics:       p.stats,
		Resume:        resume,
	})
}
