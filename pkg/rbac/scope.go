package rbac

import (
	"github.com/platinummonkey/eams/pkg/permissions"
)

// CompanyRecord is any record that identifies a company
type CompanyRecord interface {
	CompanyKey() string
}

// ProjectRecord is any record owned by a company
type ProjectRecord interface {
	OwnerCompanyID() string
}

// AccessibleCompanyIDs returns the caller's assigned company, primary company and every
// granted company, de-duplicated, in that order.
func AccessibleCompanyIDs(caller *User) []string {
	if caller == nil {
		return []string{}
	}
	seen := make(map[string]struct{})
	out := make([]string, 0, 2+len(caller.CompanyAccess))
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	add(caller.AssignedCompanyID)
	add(caller.PrimaryCompanyID)
	for _, id := range permissions.GrantCompanyIDs(caller.CompanyAccess) {
		add(id)
	}
	return out
}

// FilterUsers returns the users visible to caller.
//
// Admin-level callers see the input unchanged. Super-user-level callers see users assigned
// to, or granted access to, any company the caller can reach. Everyone else sees only
// their own record.
func (c *Checker) FilterUsers(users []User, caller *User) []User {
	if caller == nil {
		return []User{}
	}

	switch c.RoleOf(caller).Level {
	case LevelAdmin:
		return append(make([]User, 0, len(users)), users...)
	case LevelSuperUser:
		accessible := make(map[string]struct{})
		for _, id := range AccessibleCompanyIDs(caller) {
			accessible[id] = struct{}{}
		}
		out := make([]User, 0, len(users))
		for _, u := range users {
			if reachesAny(u, accessible) {
				out = append(out, u)
			}
		}
		return out
	}

	out := make([]User, 0, 1)
	for _, u := range users {
		if u.ID != "" && u.ID == caller.ID {
			out = append(out, u)
		}
	}
	return out
}

func reachesAny(u User, accessible map[string]struct{}) bool {
	if _, ok := accessible[u.AssignedCompanyID]; ok && u.AssignedCompanyID != "" {
		return true
	}
	for _, g := range u.CompanyAccess {
		if _, ok := accessible[g.CompanyID]; ok && g.CompanyID != "" {
			return true
		}
	}
	return false
}

// FilterCompanies returns the companies visible to caller. Admin-level and primary company
// callers see everything; others see only their assigned company. Company access grants
// are not consulted.
func FilterCompanies[T CompanyRecord](c *Checker, companies []T, caller *User) []T {
	if caller == nil {
		return []T{}
	}
	if seesAllTenants(c.RoleOf(caller)) {
		return append(make([]T, 0, len(companies)), companies...)
	}
	out := make([]T, 0, 1)
	for _, co := range companies {
		if caller.AssignedCompanyID != "" && co.CompanyKey() == caller.AssignedCompanyID {
			out = append(out, co)
		}
	}
	return out
}

// FilterProjects returns the projects visible to caller using the same rule as
// FilterCompanies applied to the owning company.
func FilterProjects[T ProjectRecord](c *Checker, projects []T, caller *User) []T {
	if caller == nil {
		return []T{}
	}
	if seesAllTenants(c.RoleOf(caller)) {
		return append(make([]T, 0, len(projects)), projects...)
	}
	out := make([]T, 0)
	for _, p := range projects {
		if caller.AssignedCompanyID != "" && p.OwnerCompanyID() == caller.AssignedCompanyID {
			out = append(out, p)
		}
	}
	return out
}

func seesAllTenants(role Role) bool {
	return role.Level == LevelAdmin || role.Scope.IsPrimaryCompanyRole
}
