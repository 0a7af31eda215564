// Package audit records changes to the permission model and access denials.
//
// # Events
//
// Events carry the acting user, the resource, and the company the resource
// belongs to. Role changes record the old and new role in Changes.
//
//	event := audit.NewEvent(ctx, audit.EventTypeAuthzPermissionGrant, audit.EventStatusSuccess, caller).
//		OnResource(audit.ResourceTypeGrant, grant.ID, grant.CompanyID).
//		WithMetadata("target_user_id", userID)
//	_ = logger.Log(ctx, event)
//
// # Loggers
//
//   - DBLogger: PostgreSQL audit_events table, searchable
//   - MemoryLogger: bounded in-process buffer, searchable
//   - StructuredLogger: one line per event in the application log
//   - MultiLogger: fans out to several loggers
//
// Audit failures never fail the operation being audited; the service logs them
// and continues.
package audit
