package audit

import (
	"context"
	"errors"
)

// MultiLogger logs to multiple audit loggers. Search is served by the first
// logger that implements Searcher.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a new multi-logger that writes to multiple destinations.
// nil loggers are dropped.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

// Log logs an audit event to all configured loggers, continuing past failures
func (m *MultiLogger) Log(ctx context.Context, event *AuditEvent) error {
	var errs []error
	for _, logger := range m.loggers {
		if err := logger.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Searcher returns the first logger that can search, or nil
func (m *MultiLogger) Searcher() Searcher {
	for _, logger := range m.loggers {
		if s, ok := logger.(Searcher); ok {
			return s
		}
	}
	return nil
}

// Close closes all loggers
func (m *MultiLogger) Close() error {
	var errs []error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
