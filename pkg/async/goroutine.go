package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/platinummonkey/eams/pkg/observability"
)

// Run executes fn under a timeout and converts a panic into an error.
// The panic and its stack are logged under taskName.
func Run(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) (err error) {
	ctx := parentCtx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parentCtx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			logger.WithField("task", taskName).
				WithField("panic", r).
				WithField("stack", string(debug.Stack())).
				Error("PANIC recovered in background task")
			err = fmt.Errorf("%s: %w", taskName, observability.MustRecover(r))
		}
	}()

	return fn(ctx)
}

// SafeGo executes a function in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Timeout enforcement
// - Error logging
//
// Use this instead of bare `go func()` for work that outlives the caller.
//
// Example:
//
//	SafeGo(ctx, logger, time.Minute, "initial grant audit", func(ctx context.Context) error {
//	    _, err := auditor.Run(ctx)
//	    return err
//	})
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		if err := Run(parentCtx, logger, timeout, taskName, fn); err != nil {
			logger.WithField("task", taskName).WithError(err).Warn("background task failed")
		}
	}()
}
