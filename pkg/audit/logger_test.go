package audit

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/eams/pkg/contextkeys"
	"github.com/platinummonkey/eams/pkg/observability"
	"github.com/platinummonkey/eams/pkg/rbac"
)

func TestNewEvent(t *testing.T) {
	ctx := contextkeys.WithRequestID(context.Background(), "req-9")
	actor := &rbac.User{ID: "admin", Email: "admin@example.com"}

	event := NewEvent(ctx, EventTypeAuthzPermissionGrant, EventStatusSuccess, actor).
		OnResource(ResourceTypeGrant, "g-1", "c1").
		WithMetadata("target_user_id", "u-1")

	assert.Equal(t, "req-9", event.RequestID)
	assert.Equal(t, "admin", event.UserID)
	assert.Equal(t, "admin@example.com", event.Username)
	assert.Equal(t, "c1", event.CompanyID)
	assert.Equal(t, "u-1", event.Metadata["target_user_id"])
	assert.False(t, event.Timestamp.IsZero())

	anonymous := NewEvent(context.Background(), EventTypeAuthLoginFailed, EventStatusFailure, nil)
	assert.Empty(t, anonymous.UserID)
}

func TestSearchFilter_Matches(t *testing.T) {
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	event := &AuditEvent{
		Timestamp: ts, EventType: EventTypeAuthzRoleChange, Status: EventStatusSuccess,
		UserID: "admin", ResourceType: ResourceTypeUser, ResourceID: "u-1", CompanyID: "c1",
	}
	before, after := ts.Add(-time.Hour), ts.Add(time.Hour)
	denied := EventStatusDenied

	tests := []struct {
		name   string
		filter SearchFilter
		want   bool
	}{
		{"empty", SearchFilter{}, true},
		{"time window", SearchFilter{StartTime: &before, EndTime: &after}, true},
		{"starts later", SearchFilter{StartTime: &after}, false},
		{"other user", SearchFilter{UserID: "other"}, false},
		{"event type", SearchFilter{EventTypes: []EventType{EventTypeAuthLogin, EventTypeAuthzRoleChange}}, true},
		{"other event type", SearchFilter{EventTypes: []EventType{EventTypeAuthLogin}}, false},
		{"status", SearchFilter{Status: &denied}, false},
		{"resource", SearchFilter{ResourceType: ResourceTypeUser, ResourceID: "u-1"}, true},
		{"company in scope", SearchFilter{CompanyIDs: []string{"c1", "c2"}}, true},
		{"company out of scope", SearchFilter{CompanyIDs: []string{"c2"}}, false},
		{"empty company scope", SearchFilter{CompanyIDs: []string{}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(event))
		})
	}
}

func TestSearchFilter_Normalize(t *testing.T) {
	f := SearchFilter{Offset: -3}
	f.Normalize()
	assert.Equal(t, DefaultSearchLimit, f.Limit)
	assert.Equal(t, 0, f.Offset)

	f = SearchFilter{Limit: MaxSearchLimit + 1}
	f.Normalize()
	assert.Equal(t, MaxSearchLimit, f.Limit)
}

func TestMemoryLogger(t *testing.T) {
	ctx := context.Background()
	logger := NewMemoryLogger(3)

	for _, id := range []string{"u-1", "u-2", "u-3", "u-4"} {
		require.NoError(t, logger.Log(ctx, &AuditEvent{EventType: EventTypeAdminUserCreate, ResourceID: id}))
	}

	events, err := logger.Search(ctx, SearchFilter{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	// newest first, oldest evicted
	assert.Equal(t, "u-4", events[0].ResourceID)
	assert.Equal(t, "u-2", events[2].ResourceID)
	assert.Equal(t, int64(4), events[0].ID)

	page, err := logger.Search(ctx, SearchFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "u-3", page[0].ResourceID)
}

type failingLogger struct{ closed bool }

func (f *failingLogger) Log(context.Context, *AuditEvent) error { return errors.New("sink down") }
func (f *failingLogger) Close() error {
	f.closed = true
	return nil
}

func TestMultiLogger(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryLogger(10)
	failing := &failingLogger{}
	multi := NewMultiLogger(failing, nil, mem)

	err := multi.Log(ctx, &AuditEvent{EventType: EventTypeAuthLogin})
	assert.ErrorContains(t, err, "sink down")

	// the healthy sink still received the event
	events, err := mem.Search(ctx, SearchFilter{})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	assert.Same(t, mem, multi.Searcher())
	require.NoError(t, multi.Close())
	assert.True(t, failing.closed)

	assert.Nil(t, NewMultiLogger(NewNoOpLogger()).Searcher())
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(observability.NewLogger(observability.DebugLevel, &buf))

	require.NoError(t, logger.Log(context.Background(), &AuditEvent{
		EventType: EventTypeAuthzAccessDenied,
		Status:    EventStatusDenied,
		UserID:    "reader",
		Message:   "access denied",
		Metadata:  map[string]interface{}{"check": "can_manage_users"},
	}))

	out := buf.String()
	assert.Contains(t, out, "access denied")
	assert.Contains(t, out, "authz.access_denied")
	assert.Contains(t, out, "can_manage_users")
	assert.Contains(t, out, "WARN")
}
