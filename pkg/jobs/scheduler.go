package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/eams/pkg/async"
	"github.com/platinummonkey/eams/pkg/observability"
)

// Scheduler runs named jobs on cron schedules
type Scheduler struct {
	cron   *cron.Cron
	logger *observability.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler. Overlapping runs of the same job are skipped.
func NewScheduler(logger *observability.Logger) *Scheduler {
	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl))),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add schedules fn under a standard five-field cron spec. Each run gets its own
// timeout and a panic fails only that run.
func (s *Scheduler) Add(spec, name string, timeout time.Duration, fn func(context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		err := async.Run(s.ctx, s.logger, timeout, name, fn)
		entry := s.logger.WithField("job", name).WithField("duration_ms", time.Since(start).Milliseconds())
		if err != nil {
			entry.WithError(err).Error("scheduled job failed")
			return
		}
		entry.Debug("scheduled job finished")
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	return nil
}

// ScheduleGrantAudit registers the auditor under spec
func (s *Scheduler) ScheduleGrantAudit(spec string, auditor *GrantAuditor, timeout time.Duration) error {
	return s.Add(spec, GrantAuditLock, timeout, func(ctx context.Context) error {
		_, err := auditor.Run(ctx)
		return err
	})
}

// Start begins running jobs in the background
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts the structured logger to cron.Logger
type cronLogger struct {
	logger *observability.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(pairs(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(pairs(keysAndValues)).WithError(err).Error("cron: " + msg)
}

func pairs(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
