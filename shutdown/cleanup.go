package shutdown

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"go_waifu2x/core"
	"go_waifu2x/logging"
)

// RemovePartials returns a step that deletes leftover "*.partial" image
// writes under each directory. Model directories are not passed here since
// interrupted downloads resume from their partial files.
// Missing directories are skipped. Failures are logged, never returned,
// so the steps after it still run.
//
//	m.Register("remove-partials", shutdown.PriorityPartials,
//	    shutdown.RemovePartials(logger, cfg.WatchOutput))
func RemovePartials(logger *logging.Logger, dirs ...string) core.ShutdownFunc {
	return func(ctx context.Context) error {
		removed, failed := 0, 0
		for _, dir := range dirs {
			if dir == "" {
				continue
			}
			r, f := removePartialsIn(ctx, logger, dir)
			removed += r
			failed += f
		}
		if removed > 0 || failed > 0 {
			logger.Info("partial files cleaned up",
				zap.Int("removed", removed),
				zap.Int("failed", failed))
		}
		return nil
	}
}

func removePartialsIn(ctx context.Context, logger *logging.Logger, dir string) (removed, failed int) {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return fs.SkipAll
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), core.PartialSuffix) {
			return nil
		}

		if err := os.Remove(path); err != nil {
			failed++
			logger.Warn("failed to remove partial file", zap.String("file", path), zap.Error(err))
			return nil
		}
		removed++
		logger.Debug("removed partial file", zap.String("file", path))
		return nil
	})
	if err != nil {
		logger.Warn("partial cleanup interrupted",
			zap.String("directory", dir),
			zap.Error(err))
	}
	return removed, failed
}
