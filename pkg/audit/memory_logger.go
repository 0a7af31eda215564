package audit

import (
	"context"
	"sync"
)

// MemoryLogger keeps the most recent events in process memory
type MemoryLogger struct {
	mu       sync.RWMutex
	events   []*AuditEvent
	capacity int
	nextID   int64
}

// NewMemoryLogger creates a logger retaining at most capacity events
func NewMemoryLogger(capacity int) *MemoryLogger {
	if capacity <= 0 {
		capacity = MaxSearchLimit
	}
	return &MemoryLogger{capacity: capacity}
}

// Log stores a copy of event, evicting the oldest when full
func (l *MemoryLogger) Log(ctx context.Context, event *AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	event.ID = l.nextID
	stored := *event
	if len(l.events) == l.capacity {
		l.events = append(l.events[:0], l.events[1:]...)
	}
	l.events = append(l.events, &stored)
	return nil
}

// Search returns matching events, newest first
func (l *MemoryLogger) Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error) {
	filter.Normalize()

	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*AuditEvent, 0)
	skipped := 0
	for i := len(l.events) - 1; i >= 0 && len(out) < filter.Limit; i-- {
		if !filter.Matches(l.events[i]) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		e := *l.events[i]
		out = append(out, &e)
	}
	return out, nil
}

// Close is a no-op
func (l *MemoryLogger) Close() error {
	return nil
}
