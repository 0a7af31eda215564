package rbac

import (
	"fmt"
)

// RoleID identifies a user type in the role catalog
type RoleID string

// Built-in user types
const (
	RolePrimaryAdmin        RoleID = "primary_admin"
	RolePrimarySuperUser    RoleID = "primary_super_user"
	RolePrimaryStandardUser RoleID = "primary_standard_user"
	RolePrimaryReadOnly     RoleID = "primary_read_only"
	RoleCompanyAdmin        RoleID = "company_admin"
	RoleCompanySuperUser    RoleID = "company_super_user"
	RoleCompanyStandardUser RoleID = "company_standard_user"
	RoleCompanyReadOnly     RoleID = "company_read_only"
)

// FallbackRole is returned for unknown or missing role identifiers
const FallbackRole = RoleCompanyReadOnly

// AllRoleIDs returns the built-in user types in catalog order
func AllRoleIDs() []RoleID {
	return []RoleID{
		RolePrimaryAdmin,
		RolePrimarySuperUser,
		RolePrimaryStandardUser,
		RolePrimaryReadOnly,
		RoleCompanyAdmin,
		RoleCompanySuperUser,
		RoleCompanyStandardUser,
		RoleCompanyReadOnly,
	}
}

// Level is the coarse rank of a role
type Level string

const (
	LevelAdmin     Level = "admin"
	LevelSuperUser Level = "super_user"
	LevelStandard  Level = "standard"
	LevelReadOnly  Level = "read_only"
)

// Valid reports whether l is a known level
func (l Level) Valid() bool {
	switch l {
	case LevelAdmin, LevelSuperUser, LevelStandard, LevelReadOnly:
		return true
	}
	return false
}

// Role permission strings
const (
	PermReadAll              = "read_all"
	PermWriteAll             = "write_all"
	PermAdminAll             = "admin_all"
	PermManageUsers          = "manage_users"
	PermManageCompanies      = "manage_companies"
	PermManagePrimaryCompany = "manage_primary_company"

	PermReadCompany        = "read_company"
	PermWriteCompany       = "write_company"
	PermAdminCompany       = "admin_company"
	PermManageCompanyUsers = "manage_company_users"

	PermReadProject  = "read_project"
	PermWriteProject = "write_project"
	PermAdminProject = "admin_project"

	PermReadApplication   = "read_application"
	PermWriteApplication  = "write_application"
	PermDeleteApplication = "delete_application"
)

// ScopeFlags widen or narrow what a role reaches
type ScopeFlags struct {
	CanAccessAllProjects    bool `json:"can_access_all_projects" yaml:"canAccessAllProjects"`
	CanAccessAllCompanies   bool `json:"can_access_all_companies" yaml:"canAccessAllCompanies"`
	CanManageUsers          bool `json:"can_manage_users" yaml:"canManageUsers"`
	CanManageCompanies      bool `json:"can_manage_companies" yaml:"canManageCompanies"`
	CanManagePrimaryCompany bool `json:"can_manage_primary_company" yaml:"canManagePrimaryCompany"`
	IsPrimaryCompanyRole    bool `json:"is_primary_company_role" yaml:"isPrimaryCompany"`
}

// Role describes a user type and its fixed permission set
type Role struct {
	ID          RoleID     `json:"id" yaml:"id"`
	DisplayName string     `json:"display_name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Permissions []string   `json:"permissions" yaml:"permissions"`
	Scope       ScopeFlags `json:"scope" yaml:",inline"`
	Level       Level      `json:"level" yaml:"level"`
}

// String returns the role identifier
func (r Role) String() string {
	return string(r.ID)
}

// IsPrimaryAdmin reports whether the role is the primary company administrator
func (r Role) IsPrimaryAdmin() bool {
	return r.Scope.IsPrimaryCompanyRole && r.Level == LevelAdmin
}

// IsPrimarySuperUser reports whether the role is a primary company super user
func (r Role) IsPrimarySuperUser() bool {
	return r.Scope.IsPrimaryCompanyRole && r.Level == LevelSuperUser
}

// IsCompanyAdmin reports whether the role administers a single non-primary company
func (r Role) IsCompanyAdmin() bool {
	return !r.Scope.IsPrimaryCompanyRole && r.Level == LevelAdmin
}

func (r Role) validate() error {
	if r.ID == "" {
		return fmt.Errorf("role id is required")
	}
	if !r.Level.Valid() {
		return fmt.Errorf("role %s: invalid level %q", r.ID, r.Level)
	}
	if r.DisplayName == "" {
		return fmt.Errorf("role %s: name is required", r.ID)
	}
	return nil
}
