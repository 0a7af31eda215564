package rbac

import (
	"github.com/platinummonkey/eams/pkg/permissions"
)

// Checker answers role-based access questions against an injected catalog.
// It holds no mutable state and is safe for concurrent use.
type Checker struct {
	catalog *Catalog
}

// NewChecker creates a checker. A nil catalog selects DefaultCatalog.
func NewChecker(catalog *Catalog) *Checker {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Checker{catalog: catalog}
}

// Catalog returns the catalog the checker evaluates against
func (c *Checker) Catalog() *Catalog {
	return c.catalog
}

// RoleOf resolves the role of a user. Users without a role-based scheme and nil users
// resolve to the fallback role.
func (c *Checker) RoleOf(user *User) Role {
	id, ok := user.RoleID()
	if !ok {
		return c.catalog.Role(FallbackRole)
	}
	return c.catalog.Role(id)
}

// RoleHasPermission reports whether role's permission set contains permission
func RoleHasPermission(role Role, permission string) bool {
	for _, p := range role.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// HasRolePermission reports whether the user's role carries permission
func (c *Checker) HasRolePermission(user *User, permission string) bool {
	if user == nil {
		return false
	}
	return RoleHasPermission(c.RoleOf(user), permission)
}

// CanAccessProject reports whether user may reach projectID.
// There is no company-level fallback for projects.
func (c *Checker) CanAccessProject(user *User, projectID string) bool {
	if user == nil {
		return false
	}
	if c.RoleOf(user).Scope.CanAccessAllProjects {
		return true
	}
	return user.HasProject(projectID)
}

// CanAccessCompany reports whether user may reach companyID.
//
// Primary super users are governed by their grant list and primary company only; the
// assigned-company rule applies to every other role.
func (c *Checker) CanAccessCompany(user *User, companyID string) bool {
	if user == nil {
		return false
	}
	role := c.RoleOf(user)
	if role.Scope.CanAccessAllCompanies {
		return true
	}
	if role.IsPrimarySuperUser() {
		return hasGrantFor(user, companyID) || (companyID != "" && user.PrimaryCompanyID == companyID)
	}
	return companyID != "" && user.AssignedCompanyID == companyID
}

// CanManageUsers reports whether user may manage users. An empty targetCompanyID asks
// whether the user may manage users anywhere.
func (c *Checker) CanManageUsers(user *User, targetCompanyID string) bool {
	if user == nil {
		return false
	}
	role := c.RoleOf(user)
	if !role.Scope.CanManageUsers {
		return false
	}

	switch {
	case role.IsPrimaryAdmin():
		return true
	case role.IsPrimarySuperUser():
		if targetCompanyID == "" {
			return true
		}
		return hasGrantFor(user, targetCompanyID) || user.PrimaryCompanyID == targetCompanyID
	case !role.Scope.IsPrimaryCompanyRole:
		return targetCompanyID == "" || user.AssignedCompanyID == targetCompanyID
	}
	return false
}

// CanManageCompanies reports the role flag directly. A true value covers every company,
// not only the ones the user can access.
func (c *Checker) CanManageCompanies(user *User) bool {
	if user == nil {
		return false
	}
	return c.RoleOf(user).Scope.CanManageCompanies
}

// CompanyAccessLevel returns how much of companyID the user reaches
func (c *Checker) CompanyAccessLevel(user *User, companyID string) permissions.AccessLevel {
	if user == nil {
		return permissions.NoAccess
	}
	if c.RoleOf(user).Scope.IsPrimaryCompanyRole && companyID != "" && user.PrimaryCompanyID == companyID {
		return permissions.FullAccess
	}
	if g, ok := permissions.FindGrant(user.CompanyAccess, companyID); ok {
		return g.EffectiveLevel()
	}
	return permissions.NoAccess
}

// AvailableRolesToAssign lists the user types the caller may give to new users
func (c *Checker) AvailableRolesToAssign(user *User) []RoleID {
	if user == nil {
		return []RoleID{}
	}
	role := c.RoleOf(user)

	switch {
	case role.IsPrimaryAdmin():
		return AllRoleIDs()
	case role.IsPrimarySuperUser():
		return []RoleID{
			RolePrimarySuperUser,
			RolePrimaryStandardUser,
			RolePrimaryReadOnly,
			RoleCompanyAdmin,
			RoleCompanySuperUser,
			RoleCompanyStandardUser,
			RoleCompanyReadOnly,
		}
	case role.IsCompanyAdmin():
		return []RoleID{
			RoleCompanySuperUser,
			RoleCompanyStandardUser,
			RoleCompanyReadOnly,
		}
	}
	return []RoleID{}
}

// CanAssignRole enforces the role assignment matrix together with the user management
// scope for the company the new user will belong to.
func (c *Checker) CanAssignRole(user *User, target RoleID, targetCompanyID string) bool {
	if user == nil {
		return false
	}
	allowed := false
	for _, id := range c.AvailableRolesToAssign(user) {
		if id == target {
			allowed = true
			break
		}
	}
	return allowed && c.CanManageUsers(user, targetCompanyID)
}

// IsPrimaryCompanyUser reports whether the user's role belongs to the primary company
func (c *Checker) IsPrimaryCompanyUser(user *User) bool {
	if user == nil {
		return false
	}
	return c.RoleOf(user).Scope.IsPrimaryCompanyRole
}

// UserLevel returns the coarse level of the user's role
func (c *Checker) UserLevel(user *User) Level {
	return c.RoleOf(user).Level
}

// CanAccessAllCompanies reports the role flag
func (c *Checker) CanAccessAllCompanies(user *User) bool {
	if user == nil {
		return false
	}
	return c.RoleOf(user).Scope.CanAccessAllCompanies
}

func hasGrantFor(user *User, companyID string) bool {
	if companyID == "" {
		return false
	}
	_, ok := permissions.FindGrant(user.CompanyAccess, companyID)
	return ok
}
