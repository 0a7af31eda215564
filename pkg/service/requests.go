package service

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/platinummonkey/eams/pkg/permissions"
	"github.com/platinummonkey/eams/pkg/rbac"
)

// NewUser is a user creation request. Exactly one of Role and Permissions selects the
// permission scheme.
type NewUser struct {
	Email             string   `json:"email"`
	FirstName         string   `json:"first_name"`
	LastName          string   `json:"last_name"`
	Role              string   `json:"role,omitempty"`
	Permissions       []string `json:"permissions,omitempty"`
	PrimaryCompanyID  string   `json:"primary_company_id,omitempty"`
	AssignedCompanyID string   `json:"assigned_company_id,omitempty"`
	AssignedProjects  []string `json:"assigned_projects,omitempty"`
}

// Validate checks required fields and the scheme choice
func (r NewUser) Validate() error {
	if strings.TrimSpace(r.Email) == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return fmt.Errorf("%w: invalid email %q", ErrInvalidInput, r.Email)
	}
	switch {
	case r.Role == "" && len(r.Permissions) == 0:
		return fmt.Errorf("%w: role or permissions is required", ErrInvalidInput)
	case r.Role != "" && len(r.Permissions) > 0:
		return fmt.Errorf("%w: role and permissions are mutually exclusive", ErrInvalidInput)
	}
	_, err := parsePermissions(r.Permissions)
	return err
}

// RoleUpdate changes the user type of an existing user
type RoleUpdate struct {
	Role string `json:"role"`
}

// NewCompany is a company creation request
type NewCompany struct {
	Name         string `json:"name"`
	Type         string `json:"type,omitempty"`
	Industry     string `json:"industry,omitempty"`
	Size         string `json:"size,omitempty"`
	Location     string `json:"location,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty"`
}

// NewProject is a project creation request
type NewProject struct {
	CompanyID      string     `json:"company_id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Status         string     `json:"status,omitempty"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	ProjectManager string     `json:"project_manager,omitempty"`
	Budget         float64    `json:"budget,omitempty"`
}

// NewApplication is an application creation request. ProjectID is taken from the route.
type NewApplication struct {
	ProjectID   string `json:"-"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Owner       string `json:"owner,omitempty"`
	Criticality string `json:"criticality,omitempty"`
	Status      string `json:"status,omitempty"`
}

// GrantRequest asks for a company access grant for a user
type GrantRequest struct {
	CompanyID   string     `json:"company_id"`
	ProjectIDs  []string   `json:"project_ids,omitempty"`
	Permissions []string   `json:"permissions"`
	AccessType  string     `json:"access_type,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Validate checks the request against the permission catalog
func (r GrantRequest) Validate(now time.Time) error {
	if strings.TrimSpace(r.CompanyID) == "" {
		return fmt.Errorf("%w: company_id is required", ErrInvalidInput)
	}
	if len(r.Permissions) == 0 {
		return fmt.Errorf("%w: at least one permission is required", ErrInvalidInput)
	}
	if _, err := parsePermissions(r.Permissions); err != nil {
		return err
	}
	if r.AccessType != "" && !permissions.AccessType(r.AccessType).Valid() {
		return fmt.Errorf("%w: invalid access_type %q", ErrInvalidInput, r.AccessType)
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.After(now) {
		return fmt.Errorf("%w: expires_at must be in the future", ErrInvalidInput)
	}
	return nil
}

// AccessQuery asks whether the caller may act on a resource
type AccessQuery struct {
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	Action       string `json:"action"`
}

// AccessDecision is the answer to an AccessQuery
type AccessDecision struct {
	Allowed            bool   `json:"allowed"`
	RequiredPermission string `json:"required_permission,omitempty"`
}

// Profile is the caller's own view of their access
type Profile struct {
	User                 *rbac.User      `json:"user"`
	Role                 rbac.Role       `json:"role"`
	IsPrimaryCompanyUser bool            `json:"is_primary_company_user"`
	AccessibleCompanyIDs []string        `json:"accessible_company_ids"`
	CanManageUsers       bool            `json:"can_manage_users"`
	CanManageCompanies   bool            `json:"can_manage_companies"`
	AccessLevels         []CompanyAccess `json:"access_levels"`
}

// CompanyAccess reports the caller's access level for one reachable company
type CompanyAccess struct {
	CompanyID string                  `json:"company_id"`
	Level     permissions.AccessLevel `json:"level"`
}

func parsePermissions(raw []string) ([]permissions.Permission, error) {
	out := make([]permissions.Permission, 0, len(raw))
	for _, s := range raw {
		p := permissions.Permission(strings.TrimSpace(s))
		if !permissions.IsKnown(p) {
			return nil, fmt.Errorf("%w: unknown permission %q", ErrInvalidInput, s)
		}
		out = append(out, p)
	}
	return out, nil
}
