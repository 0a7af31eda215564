// Package async runs background work with panic recovery and timeouts.
//
// Run executes a task synchronously and turns a panic into an error. SafeGo runs
// the same task on its own goroutine and logs the outcome.
//
//	async.SafeGo(ctx, logger, time.Minute, "initial grant audit", func(ctx context.Context) error {
//		_, err := auditor.Run(ctx)
//		return err
//	})
//
// The scheduled jobs in package jobs use Run so a failing audit never takes the
// scheduler down.
package async
