package rbac

import (
	"encoding/json"
	"time"

	"github.com/platinummonkey/eams/pkg/permissions"
)

// AuthScheme records which permission scheme populated a user record.
// The two schemes are never reconciled: a user is either role based or grant based.
type AuthScheme interface {
	authScheme()
}

// RoleScheme evaluates a user through the role catalog
type RoleScheme struct {
	Role RoleID `json:"role"`
}

// GrantScheme evaluates a user through an explicit permission list
type GrantScheme struct {
	Permissions []permissions.Permission `json:"permissions"`
}

func (RoleScheme) authScheme()  {}
func (GrantScheme) authScheme() {}

// Scheme names used in persistence and JSON
const (
	SchemeRole  = "role"
	SchemeGrant = "grants"
)

// SchemeName returns the persisted name of a scheme
func SchemeName(s AuthScheme) string {
	switch s.(type) {
	case GrantScheme, *GrantScheme:
		return SchemeGrant
	default:
		return SchemeRole
	}
}

// User is the canonical user record seen by the access checks
type User struct {
	ID                string              `json:"id"`
	Email             string              `json:"email"`
	FirstName         string              `json:"first_name,omitempty"`
	LastName          string              `json:"last_name,omitempty"`
	Scheme            AuthScheme          `json:"-"`
	PrimaryCompanyID  string              `json:"primary_company_id,omitempty"`
	AssignedCompanyID string              `json:"assigned_company_id,omitempty"`
	CompanyAccess     []permissions.Grant `json:"company_access"`
	AssignedProjects  []string            `json:"assigned_projects"`
	IsActive          bool                `json:"is_active"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
	CreatedBy         string              `json:"created_by,omitempty"`
}

// RoleID returns the role identifier when the user is role based
func (u *User) RoleID() (RoleID, bool) {
	if u == nil {
		return "", false
	}
	switch s := u.Scheme.(type) {
	case RoleScheme:
		return s.Role, true
	case *RoleScheme:
		if s != nil {
			return s.Role, true
		}
	}
	return "", false
}

// GrantedPermissions returns the explicit permission list of a grant-based user.
// Role-based users carry no explicit list.
func (u *User) GrantedPermissions() []permissions.Permission {
	if u == nil {
		return nil
	}
	switch s := u.Scheme.(type) {
	case GrantScheme:
		return s.Permissions
	case *GrantScheme:
		if s != nil {
			return s.Permissions
		}
	}
	return nil
}

// CompanyGrants returns the user's company access grants
func (u *User) CompanyGrants() []permissions.Grant {
	if u == nil {
		return nil
	}
	return u.CompanyAccess
}

// HasProject reports whether projectID is in the assigned project list
func (u *User) HasProject(projectID string) bool {
	if u == nil {
		return false
	}
	for _, p := range u.AssignedProjects {
		if p == projectID {
			return true
		}
	}
	return false
}

// FullName joins first and last name
func (u *User) FullName() string {
	if u == nil {
		return ""
	}
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// MarshalJSON flattens the scheme into scheme, user_type and permissions fields
func (u User) MarshalJSON() ([]byte, error) {
	type alias User
	out := struct {
		alias
		Scheme      string                   `json:"scheme"`
		UserType    RoleID                   `json:"user_type,omitempty"`
		Permissions []permissions.Permission `json:"permissions,omitempty"`
	}{
		alias:  alias(u),
		Scheme: SchemeName(u.Scheme),
	}
	if id, ok := u.RoleID(); ok {
		out.UserType = id
	}
	out.Permissions = u.GrantedPermissions()
	return json.Marshal(out)
}

// UnmarshalJSON restores the scheme written by MarshalJSON
func (u *User) UnmarshalJSON(data []byte) error {
	type alias User
	in := struct {
		*alias
		Scheme      string                   `json:"scheme"`
		UserType    RoleID                   `json:"user_type"`
		Permissions []permissions.Permission `json:"permissions"`
	}{alias: (*alias)(u)}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.Scheme == SchemeGrant {
		u.Scheme = GrantScheme{Permissions: in.Permissions}
	} else {
		u.Scheme = RoleScheme{Role: in.UserType}
	}
	return nil
}

var _ permissions.Subject = (*User)(nil)
