package rbac

import (
	"fmt"
	"testing"

	"github.com/platinummonkey/eams/pkg/permissions"
)

// benchUsers builds n users spread over 100 companies, every tenth holding a grant
func benchUsers(n int) []User {
	users := make([]User, n)
	for i := range users {
		u := User{
			ID:                fmt.Sprintf("u-%d", i),
			Scheme:            RoleScheme{Role: RoleCompanyStandardUser},
			AssignedCompanyID: fmt.Sprintf("c-%d", i%100),
			AssignedProjects:  []string{fmt.Sprintf("p-%d", i%500)},
		}
		if i%10 == 0 {
			u.CompanyAccess = []permissions.Grant{{ID: fmt.Sprintf("g-%d", i), CompanyID: fmt.Sprintf("c-%d", (i+1)%100)}}
		}
		users[i] = u
	}
	return users
}

func BenchmarkFilterUsers(b *testing.B) {
	checker := NewChecker(nil)
	users := benchUsers(10000)

	callers := map[string]*User{
		"admin":      {ID: "admin", Scheme: RoleScheme{Role: RolePrimaryAdmin}},
		"super_user": {ID: "super", Scheme: RoleScheme{Role: RolePrimarySuperUser}, PrimaryCompanyID: "primary", CompanyAccess: []permissions.Grant{{CompanyID: "c-1"}, {CompanyID: "c-2"}}},
		"standard":   {ID: "std", Scheme: RoleScheme{Role: RoleCompanyStandardUser}, AssignedCompanyID: "c-3"},
	}
	for name, caller := range callers {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				checker.FilterUsers(users, caller)
			}
		})
	}
}

func BenchmarkFilterProjects(b *testing.B) {
	checker := NewChecker(nil)
	projects := make([]project, 5000)
	for i := range projects {
		projects[i] = project{id: fmt.Sprintf("p-%d", i), companyID: fmt.Sprintf("c-%d", i%100)}
	}
	caller := &User{ID: "std", Scheme: RoleScheme{Role: RoleCompanyStandardUser}, AssignedCompanyID: "c-7"}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		FilterProjects(checker, projects, caller)
	}
}

func BenchmarkPredicates(b *testing.B) {
	checker := NewChecker(nil)
	user := &User{
		ID:                "writer",
		Scheme:            RoleScheme{Role: RoleCompanyStandardUser},
		AssignedCompanyID: "c-1",
		AssignedProjects:  []string{"p-1", "p-2", "p-3"},
	}

	b.Run("CanAccessProject", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			checker.CanAccessProject(user, "p-3")
		}
	})
	b.Run("HasRolePermission", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			checker.HasRolePermission(user, "edit_projects")
		}
	})
	b.Run("CanAssignRole", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			checker.CanAssignRole(user, RoleCompanyReadOnly, "c-1")
		}
	})
}
