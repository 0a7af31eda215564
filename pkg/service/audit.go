package service

import (
	"context"
	"fmt"

	"github.com/platinummonkey/eams/pkg/audit"
	"github.com/platinummonkey/eams/pkg/observability"
	"github.com/platinummonkey/eams/pkg/permissions"
	"github.com/platinummonkey/eams/pkg/rbac"
)

// SetAudit configures where permission changes and denials are recorded.
// searcher may be nil, which disables ListAuditEvents.
func (s *DataService) SetAudit(logger audit.Logger, searcher audit.Searcher) {
	if logger == nil {
		logger = audit.NewNoOpLogger()
	}
	s.audit = logger
	s.auditSearch = searcher
}

// record writes event; audit failures are logged and never fail the caller
func (s *DataService) record(ctx context.Context, event *audit.AuditEvent) {
	if err := s.audit.Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).
			WithField("event_type", string(event.EventType)).
			Warn("failed to record audit event")
	}
}

// auditScope returns the companies whose events caller may read. nil means every
// company; ok is false when caller may not read the audit log at all.
func (s *DataService) auditScope(caller *rbac.User) (companies []string, ok bool) {
	held := caller.GrantedPermissions()
	if permissions.HasAnyPermission(held, []permissions.Permission{permissions.SystemAdmin, permissions.ViewAuditLogs}) {
		return nil, true
	}
	if s.checker.RoleOf(caller).IsPrimaryAdmin() {
		return nil, true
	}
	if s.checker.CanManageUsers(caller, "") {
		ids := rbac.AccessibleCompanyIDs(caller)
		if ids == nil {
			ids = []string{}
		}
		return ids, true
	}
	return nil, false
}

// ListAuditEvents searches the audit log. Administrators below primary_admin only
// see events for companies they can reach.
func (s *DataService) ListAuditEvents(ctx context.Context, caller *rbac.User, filter audit.SearchFilter) (events []*audit.AuditEvent, err error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	ctx, span := s.span(ctx, "ListAuditEvents", caller)
	defer func() { observability.EndSpan(span, err) }()

	if s.auditSearch == nil {
		return nil, fmt.Errorf("%w: audit search is not configured", ErrUnavailable)
	}

	scope, ok := s.auditScope(caller)
	if !s.decide(ctx, "can_view_audit_log", caller, ok) {
		return nil, fmt.Errorf("%w: cannot view the audit log", ErrForbidden)
	}
	if scope != nil {
		filter.CompanyIDs = intersect(filter.CompanyIDs, scope)
	}

	events, err = s.auditSearch.Search(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	return events, nil
}

// intersect narrows requested to allowed; an unset request means all of allowed
func intersect(requested, allowed []string) []string {
	if requested == nil {
		return allowed
	}
	set := make(map[string]struct{}, len(allowed))
	for _, id := range allowed {
		set[id] = struct{}{}
	}
	out := []string{}
	for _, id := range requested {
		if _, ok := set[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
