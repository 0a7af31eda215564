package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/eams/pkg/permissions"
)

type company struct{ id string }

func (c company) CompanyKey() string { return c.id }

type project struct{ id, companyID string }

func (p project) OwnerCompanyID() string { return p.companyID }

func directory() []User {
	return []User{
		{ID: "u1", AssignedCompanyID: "C1"},
		{ID: "u2", AssignedCompanyID: "C2"},
		{ID: "u3", AssignedCompanyID: "C3", CompanyAccess: []permissions.Grant{{CompanyID: "C2"}}},
		{ID: "u4", AssignedCompanyID: "P"},
		{ID: "u5"},
	}
}

func TestAccessibleCompanyIDs(t *testing.T) {
	u := &User{
		AssignedCompanyID: "C1",
		PrimaryCompanyID:  "P",
		CompanyAccess:     []permissions.Grant{{CompanyID: "C2"}, {CompanyID: "C1"}, {CompanyID: ""}},
	}
	assert.Equal(t, []string{"C1", "P", "C2"}, AccessibleCompanyIDs(u))
	assert.Equal(t, []string{}, AccessibleCompanyIDs(nil))
}

func TestFilterUsers(t *testing.T) {
	c := NewChecker(nil)
	users := directory()

	t.Run("admin level sees everything in order", func(t *testing.T) {
		for _, id := range []RoleID{RolePrimaryAdmin, RoleCompanyAdmin} {
			caller := roleUser("x", id)
			assert.Equal(t, users, c.FilterUsers(users, caller), id)
		}
	})

	t.Run("super user sees accessible companies", func(t *testing.T) {
		caller := roleUser("s", RolePrimarySuperUser)
		caller.PrimaryCompanyID = "P"
		caller.CompanyAccess = []permissions.Grant{{CompanyID: "C2"}}

		got := c.FilterUsers(users, caller)
		ids := make([]string, 0, len(got))
		for _, u := range got {
			ids = append(ids, u.ID)
		}
		assert.Equal(t, []string{"u2", "u3", "u4"}, ids)
	})

	t.Run("company super user sees own company", func(t *testing.T) {
		caller := roleUser("s", RoleCompanySuperUser)
		caller.AssignedCompanyID = "C1"
		got := c.FilterUsers(users, caller)
		assert.Len(t, got, 1)
		assert.Equal(t, "u1", got[0].ID)
	})

	t.Run("others see only themselves", func(t *testing.T) {
		caller := roleUser("u2", RoleCompanyStandardUser)
		caller.AssignedCompanyID = "C2"
		got := c.FilterUsers(users, caller)
		assert.Len(t, got, 1)
		assert.Equal(t, "u2", got[0].ID)

		stranger := roleUser("nobody", RolePrimaryReadOnly)
		assert.Empty(t, c.FilterUsers(users, stranger))
	})

	t.Run("idempotent", func(t *testing.T) {
		for _, id := range AllRoleIDs() {
			caller := roleUser("u3", id)
			caller.AssignedCompanyID = "C3"
			caller.PrimaryCompanyID = "P"
			once := c.FilterUsers(users, caller)
			assert.Equal(t, once, c.FilterUsers(once, caller), id)
		}
	})

	t.Run("nil caller", func(t *testing.T) {
		got := c.FilterUsers(users, nil)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("input untouched", func(t *testing.T) {
		in := directory()
		caller := roleUser("u1", RoleCompanyReadOnly)
		_ = c.FilterUsers(in, caller)
		assert.Equal(t, directory(), in)
	})
}

func TestFilterCompanies(t *testing.T) {
	c := NewChecker(nil)
	companies := []company{{"P"}, {"C1"}, {"C2"}}

	for _, id := range []RoleID{RolePrimaryAdmin, RolePrimaryReadOnly, RoleCompanyAdmin} {
		assert.Equal(t, companies, FilterCompanies(c, companies, roleUser("x", id)), id)
	}

	// grants are not consulted
	caller := roleUser("x", RoleCompanySuperUser)
	caller.AssignedCompanyID = "C1"
	caller.CompanyAccess = []permissions.Grant{{CompanyID: "C2"}}
	assert.Equal(t, []company{{"C1"}}, FilterCompanies(c, companies, caller))

	unassigned := roleUser("x", RoleCompanyStandardUser)
	assert.Empty(t, FilterCompanies(c, companies, unassigned))

	got := FilterCompanies(c, companies, nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFilterProjects(t *testing.T) {
	c := NewChecker(nil)
	projects := []project{{"p1", "C1"}, {"p2", "C2"}, {"p3", "C1"}}

	assert.Equal(t, projects, FilterProjects(c, projects, roleUser("x", RolePrimaryStandardUser)))

	caller := roleUser("x", RoleCompanyReadOnly)
	caller.AssignedCompanyID = "C1"
	caller.CompanyAccess = []permissions.Grant{{CompanyID: "C2"}}
	got := FilterProjects(c, projects, caller)
	assert.Equal(t, []project{{"p1", "C1"}, {"p3", "C1"}}, got)
	assert.Equal(t, got, FilterProjects(c, got, caller))

	assert.Empty(t, FilterProjects(c, projects, nil))
}
