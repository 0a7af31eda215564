package audit

import (
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthLogin       EventType = "auth.login"
	EventTypeAuthLoginFailed EventType = "auth.login_failed"

	// Authorization events
	EventTypeAuthzAccessDenied     EventType = "authz.access_denied"
	EventTypeAuthzPermissionGrant  EventType = "authz.permission_grant"
	EventTypeAuthzPermissionRevoke EventType = "authz.permission_revoke"
	EventTypeAuthzRoleChange       EventType = "authz.role_change"

	// Admin events
	EventTypeAdminUserCreate    EventType = "admin.user_create"
	EventTypeAdminCompanyCreate EventType = "admin.company_create"

	// Data mutation events
	EventTypeDataProjectCreate     EventType = "data.project_create"
	EventTypeDataApplicationCreate EventType = "data.application_create"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being accessed
type ResourceType string

const (
	ResourceTypeUser        ResourceType = "user"
	ResourceTypeCompany     ResourceType = "company"
	ResourceTypeProject     ResourceType = "project"
	ResourceTypeApplication ResourceType = "application"
	ResourceTypeGrant       ResourceType = "grant"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`

	// Resource information
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`
	// CompanyID is the tenant the event concerns, when there is one
	CompanyID string `json:"company_id,omitempty"`

	RequestID string                 `json:"request_id,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`

	// Changes tracking (before/after for updates)
	Changes *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// SearchFilter represents filters for searching audit logs
type SearchFilter struct {
	// Time range
	StartTime *time.Time
	EndTime   *time.Time

	UserID     string
	EventTypes []EventType
	Status     *EventStatus

	ResourceType ResourceType
	ResourceID   string
	// CompanyIDs restricts results to events for these companies; nil means no restriction
	CompanyIDs []string

	// Pagination
	Limit  int
	Offset int
}

// DefaultSearchLimit caps searches that do not set a limit
const DefaultSearchLimit = 100

// MaxSearchLimit is the largest page a search returns
const MaxSearchLimit = 1000

// Normalize clamps the page size
func (f *SearchFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultSearchLimit
	}
	if f.Limit > MaxSearchLimit {
		f.Limit = MaxSearchLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// Matches reports whether event passes the filter. Pagination is not applied.
func (f SearchFilter) Matches(event *AuditEvent) bool {
	if f.StartTime != nil && event.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && event.Timestamp.After(*f.EndTime) {
		return false
	}
	if f.UserID != "" && event.UserID != f.UserID {
		return false
	}
	if len(f.EventTypes) > 0 && !containsType(f.EventTypes, event.EventType) {
		return false
	}
	if f.Status != nil && event.Status != *f.Status {
		return false
	}
	if f.ResourceType != "" && event.ResourceType != f.ResourceType {
		return false
	}
	if f.ResourceID != "" && event.ResourceID != f.ResourceID {
		return false
	}
	if f.CompanyIDs != nil && !containsString(f.CompanyIDs, event.CompanyID) {
		return false
	}
	return true
}

func containsType(types []EventType, t EventType) bool {
	for _, et := range types {
		if et == t {
			return true
		}
	}
	return false
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
