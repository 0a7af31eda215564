package permissions

import (
	"encoding/json"
	"time"
)

// Permission is a fine-grained capability tag checked by membership
type Permission string

const (
	// User management
	ManageUsers Permission = "manage_users"
	ViewUsers   Permission = "view_users"
	CreateUsers Permission = "create_users"
	EditUsers   Permission = "edit_users"
	DeleteUsers Permission = "delete_users"

	// Company management
	ManageCompanies Permission = "manage_companies"
	ViewCompanies   Permission = "view_companies"
	CreateCompanies Permission = "create_companies"
	EditCompanies   Permission = "edit_companies"
	DeleteCompanies Permission = "delete_companies"

	// Project management
	ManageProjects Permission = "manage_projects"
	ViewProjects   Permission = "view_projects"
	CreateProjects Permission = "create_projects"
	EditProjects   Permission = "edit_projects"
	DeleteProjects Permission = "delete_projects"

	// Application management
	ManageApplications Permission = "manage_applications"
	ViewApplications   Permission = "view_applications"
	CreateApplications Permission = "create_applications"
	EditApplications   Permission = "edit_applications"
	DeleteApplications Permission = "delete_applications"

	// System administration
	SystemAdmin          Permission = "system_admin"
	ViewAuditLogs        Permission = "view_audit_logs"
	ManageSystemSettings Permission = "manage_system_settings"
)

// AccessType is the coarse kind of access a grant confers
type AccessType string

const (
	AccessRead  AccessType = "read"
	AccessWrite AccessType = "write"
	AccessAdmin AccessType = "admin"
)

// Valid reports whether the access type is one of the known values
func (a AccessType) Valid() bool {
	switch a {
	case AccessRead, AccessWrite, AccessAdmin:
		return true
	}
	return false
}

// AccessLevel describes how much of a company a user may reach
type AccessLevel string

const (
	FullAccess     AccessLevel = "full_access"
	LimitedAccess  AccessLevel = "limited_access"
	ReadOnlyAccess AccessLevel = "read_only_access"
	NoAccess       AccessLevel = "no_access"
)

// Grant scopes a permission set to one company and an optional project subset.
// A grant is immutable once created; changes are made by replacing it.
type Grant struct {
	ID          string       `json:"id,omitempty" yaml:"id,omitempty"`
	CompanyID   string       `json:"companyId" yaml:"companyId"`
	ProjectIDs  []string     `json:"projectIds" yaml:"projectIds"`
	Permissions []Permission `json:"permissions" yaml:"permissions"`
	AccessType  AccessType   `json:"accessType" yaml:"accessType"`
	Level       AccessLevel  `json:"level,omitempty" yaml:"level,omitempty"`
	GrantedBy   string       `json:"grantedBy,omitempty" yaml:"grantedBy,omitempty"`
	GrantedAt   time.Time    `json:"grantedAt" yaml:"grantedAt"`
	// ExpiresAt is recorded but not enforced by any access check.
	ExpiresAt *time.Time `json:"expiresAt" yaml:"expiresAt,omitempty"`
}

// MarshalJSON writes nil project and permission lists as empty arrays
func (g Grant) MarshalJSON() ([]byte, error) {
	type alias Grant
	out := alias(g)
	if out.ProjectIDs == nil {
		out.ProjectIDs = []string{}
	}
	if out.Permissions == nil {
		out.Permissions = []Permission{}
	}
	return json.Marshal(out)
}

// EffectiveLevel returns the explicit level when present, otherwise the level implied by
// the access type.
func (g Grant) EffectiveLevel() AccessLevel {
	if g.Level != "" {
		return g.Level
	}
	switch g.AccessType {
	case AccessAdmin:
		return FullAccess
	case AccessWrite:
		return LimitedAccess
	default:
		return ReadOnlyAccess
	}
}

// Allows reports whether the grant lists the permission
func (g Grant) Allows(p Permission) bool {
	return HasPermission(g.Permissions, p)
}

// Expired reports whether the grant has an expiry at or before t
func (g Grant) Expired(t time.Time) bool {
	return g.ExpiresAt != nil && !g.ExpiresAt.After(t)
}

// Subject is anything carrying an explicit permission list and company grants
type Subject interface {
	GrantedPermissions() []Permission
	CompanyGrants() []Grant
}
