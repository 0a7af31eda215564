package audit

import (
	"context"
	"time"

	"github.com/platinummonkey/eams/pkg/contextkeys"
	"github.com/platinummonkey/eams/pkg/rbac"
)

// Logger records audit events. Implementations must be safe for concurrent use.
type Logger interface {
	Log(ctx context.Context, event *AuditEvent) error
	Close() error
}

// Searcher is implemented by loggers that can read events back
type Searcher interface {
	Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error)
}

// NewNoOpLogger returns a logger that discards events
func NewNoOpLogger() Logger {
	return noOpLogger{}
}

type noOpLogger struct{}

func (noOpLogger) Log(ctx context.Context, event *AuditEvent) error { return nil }
func (noOpLogger) Close() error                                     { return nil }

// NewEvent builds an event attributed to actor, carrying the request ID from ctx.
// actor may be nil for unauthenticated events.
func NewEvent(ctx context.Context, eventType EventType, status EventStatus, actor *rbac.User) *AuditEvent {
	event := &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
	}
	if actor != nil {
		event.UserID = actor.ID
		event.Username = actor.Email
	}
	return event
}

// OnResource sets the resource the event concerns
func (e *AuditEvent) OnResource(resourceType ResourceType, resourceID, companyID string) *AuditEvent {
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	e.CompanyID = companyID
	return e
}

// WithMetadata adds a metadata entry
func (e *AuditEvent) WithMetadata(key string, value interface{}) *AuditEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}
