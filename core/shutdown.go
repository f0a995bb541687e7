package core

import (
	"context"
	"io"
)

// ShutdownFunc is a cleanup step run during graceful shutdown. It should
// honour ctx's deadline and be safe to call more than once.
type ShutdownFunc func(ctx context.Context) error

// CloserShutdown adapts an io.Closer (engine pool, GPU context, job
// database) to a ShutdownFunc. A nil closer is a no-op.
func CloserShutdown(c io.Closer) ShutdownFunc {
	return func(ctx context.Context) error {
		if c == nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return c.Close()
	}
}
