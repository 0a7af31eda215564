package audit

import (
	"context"

	"github.com/platinummonkey/eams/pkg/observability"
)

// StructuredLogger writes audit events into the application log stream. It is
// write-only; pair it with a Searcher when events must be queryable.
type StructuredLogger struct {
	logger *observability.Logger
}

// NewStructuredLogger creates a logger that emits one log line per event
func NewStructuredLogger(logger *observability.Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger.WithField("component", "audit")}
}

// Log writes event at info level, or warn for denials and failures
func (l *StructuredLogger) Log(ctx context.Context, event *AuditEvent) error {
	fields := map[string]interface{}{
		"event_type": string(event.EventType),
		"status":     string(event.Status),
	}
	for k, v := range map[string]string{
		"user_id":       event.UserID,
		"username":      event.Username,
		"resource_type": string(event.ResourceType),
		"resource_id":   event.ResourceID,
		"company_id":    event.CompanyID,
		"request_id":    event.RequestID,
	} {
		if v != "" {
			fields[k] = v
		}
	}
	if len(event.Metadata) > 0 {
		fields["metadata"] = event.Metadata
	}
	if event.Changes != nil {
		fields["changes"] = event.Changes
	}

	entry := l.logger.WithFields(fields)
	msg := event.Message
	if msg == "" {
		msg = string(event.EventType)
	}
	if event.Status == EventStatusSuccess {
		entry.Info(msg)
	} else {
		entry.Warn(msg)
	}
	return nil
}

// Close is a no-op
func (l *StructuredLogger) Close() error {
	return nil
}
