package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/eams/pkg/observability"
	"github.com/platinummonkey/eams/pkg/permissions"
	"github.com/platinummonkey/eams/pkg/rbac"
	"github.com/platinummonkey/eams/pkg/storage"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *DataService
	store   *storage.MemoryStore
	metrics *observability.Metrics
	users   map[string]*rbac.User
}

func roleUser(id string, role rbac.RoleID, mutate func(*rbac.User)) *rbac.User {
	u := &rbac.User{
		ID:       id,
		Email:    id + "@example.com",
		Scheme:   rbac.RoleScheme{Role: role},
		IsActive: true,
	}
	if mutate != nil {
		mutate(u)
	}
	return u
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()

	for _, id := range []string{"primary", "c1", "c2"} {
		require.NoError(t, store.CreateCompany(ctx, &storage.Company{ID: id, Name: id}))
	}
	require.NoError(t, store.CreateProject(ctx, &storage.Project{ID: "p1", CompanyID: "c1", Name: "P1"}))
	require.NoError(t, store.CreateProject(ctx, &storage.Project{ID: "p2", CompanyID: "c2", Name: "P2"}))
	require.NoError(t, store.CreateApplication(ctx, &storage.Application{ID: "a1", ProjectID: "p1", Name: "A1"}))

	users := map[string]*rbac.User{
		"admin": roleUser("admin", rbac.RolePrimaryAdmin, func(u *rbac.User) { u.PrimaryCompanyID = "primary" }),
		"super": roleUser("super", rbac.RolePrimarySuperUser, func(u *rbac.User) {
			u.PrimaryCompanyID = "primary"
			u.CompanyAccess = []permissions.Grant{{
				ID:          "g-super",
				CompanyID:   "c1",
				Permissions: []permissions.Permission{permissions.ViewProjects},
				AccessType:  permissions.AccessRead,
			}}
		}),
		"cadmin": roleUser("cadmin", rbac.RoleCompanyAdmin, func(u *rbac.User) { u.AssignedCompanyID = "c1" }),
		"writer": roleUser("writer", rbac.RoleCompanyStandardUser, func(u *rbac.User) {
			u.AssignedCompanyID = "c1"
			u.AssignedProjects = []string{"p1"}
		}),
		"reader": roleUser("reader", rbac.RoleCompanyReadOnly, func(u *rbac.User) {
			u.AssignedCompanyID = "c2"
			u.AssignedProjects = []string{"p2"}
		}),
	}
	for _, id := range []string{"admin", "super", "cadmin", "writer", "reader"} {
		require.NoError(t, store.CreateUser(ctx, users[id]))
	}

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	svc := NewDataService(store, rbac.NewChecker(nil), metrics, observability.NewLogger(observability.ErrorLevel, &bytes.Buffer{}))
	svc.now = func() time.Time { return fixedNow }

	return &fixture{svc: svc, store: store, metrics: metrics, users: users}
}

func TestNilCaller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ListUsers(ctx, nil)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = f.svc.Dashboard(ctx, nil)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = f.svc.CreateCompany(ctx, nil, NewCompany{Name: "x"})
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.ErrorIs(t, f.svc.RevokeCompanyAccess(ctx, nil, "writer", "g"), ErrUnauthenticated)
}

func ids(users []rbac.User) []string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = u.ID
	}
	return out
}

func TestListUsers(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		caller string
		want   []string
	}{
		{"admin", []string{"admin", "super", "cadmin", "writer", "reader"}},
		{"cadmin", []string{"admin", "super", "cadmin", "writer", "reader"}},
		{"super", []string{"super", "cadmin", "writer"}},
		{"reader", []string{"reader"}},
		{"writer", []string{"writer"}},
	}

	for _, tt := range tests {
		t.Run(tt.caller, func(t *testing.T) {
			users, err := f.svc.ListUsers(context.Background(), f.users[tt.caller])
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, ids(users))
		})
	}
}

func TestListCompaniesAndProjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	companies, err := f.svc.ListCompanies(ctx, f.users["reader"])
	require.NoError(t, err)
	require.Len(t, companies, 1)
	assert.Equal(t, "c2", companies[0].ID)

	// grants are not consulted by the company filter
	companies, err = f.svc.ListCompanies(ctx, f.users["super"])
	require.NoError(t, err)
	assert.Len(t, companies, 3)

	projects, err := f.svc.ListProjects(ctx, f.users["writer"])
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "p1", projects[0].ID)

	// one series each for companies and projects
	assert.Equal(t, 2, testutil.CollectAndCount(f.metrics.FilterResults))
}

func TestListApplications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	apps, err := f.svc.ListApplications(ctx, f.users["writer"], "p1")
	require.NoError(t, err)
	assert.Len(t, apps, 1)

	_, err = f.svc.ListApplications(ctx, f.users["writer"], "p2")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.ListApplications(ctx, f.users["writer"], "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	apps, err = f.svc.ListApplications(ctx, f.users["admin"], "p2")
	require.NoError(t, err)
	assert.Empty(t, apps)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.AuthzDecisionsTotal.WithLabelValues("can_access_project", "deny")))
}

func TestCreateUser(t *testing.T) {
	tests := []struct {
		name    string
		caller  string
		req     NewUser
		wantErr error
		check   func(t *testing.T, u *rbac.User)
	}{
		{
			name:   "company admin creates user in own company",
			caller: "cadmin",
			req:    NewUser{Email: "new@example.com", Role: "company_standard_user", AssignedCompanyID: "c1"},
			check: func(t *testing.T, u *rbac.User) {
				role, ok := u.RoleID()
				assert.True(t, ok)
				assert.Equal(t, rbac.RoleCompanyStandardUser, role)
				assert.Equal(t, "cadmin", u.CreatedBy)
				assert.True(t, u.IsActive)
			},
		},
		{
			name:    "company admin cannot create in another company",
			caller:  "cadmin",
			req:     NewUser{Email: "new@example.com", Role: "company_standard_user", AssignedCompanyID: "c2"},
			wantErr: ErrForbidden,
		},
		{
			name:    "company admin cannot assign primary roles",
			caller:  "cadmin",
			req:     NewUser{Email: "new@example.com", Role: "primary_admin", AssignedCompanyID: "c1"},
			wantErr: ErrForbidden,
		},
		{
			name:   "primary users inherit the primary company",
			caller: "admin",
			req:    NewUser{Email: "ro@example.com", Role: "primary_read_only"},
			check: func(t *testing.T, u *rbac.User) {
				assert.Equal(t, "primary", u.PrimaryCompanyID)
			},
		},
		{
			name:    "unknown role",
			caller:  "admin",
			req:     NewUser{Email: "new@example.com", Role: "wizard"},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "duplicate email",
			caller:  "admin",
			req:     NewUser{Email: "writer@example.com", Role: "company_read_only", AssignedCompanyID: "c1"},
			wantErr: ErrConflict,
		},
		{
			name:   "permission based user",
			caller: "admin",
			req:    NewUser{Email: "perm@example.com", Permissions: []string{"view_users"}, AssignedCompanyID: "c1"},
			check: func(t *testing.T, u *rbac.User) {
				assert.Equal(t, rbac.SchemeGrant, rbac.SchemeName(u.Scheme))
				assert.Equal(t, []permissions.Permission{permissions.ViewUsers}, u.GrantedPermissions())
			},
		},
		{
			name:    "permission based user needs user management",
			caller:  "writer",
			req:     NewUser{Email: "perm@example.com", Permissions: []string{"view_users"}, AssignedCompanyID: "c1"},
			wantErr: ErrForbidden,
		},
		{
			name:   "company admin defaults to own company",
			caller: "cadmin",
			req:    NewUser{Email: "new@example.com", Role: "company_read_only"},
			check: func(t *testing.T, u *rbac.User) {
				assert.Equal(t, "c1", u.AssignedCompanyID)
			},
		},
		{
			name:    "company role needs a company",
			caller:  "admin",
			req:     NewUser{Email: "new@example.com", Role: "company_read_only"},
			wantErr: ErrInvalidInput,
		},
		{
			name:   "company admin grant user defaults to own company",
			caller: "cadmin",
			req:    NewUser{Email: "perm@example.com", Permissions: []string{"view_projects"}},
			check: func(t *testing.T, u *rbac.User) {
				assert.Equal(t, "c1", u.AssignedCompanyID)
			},
		},
		{
			name:    "company admin cannot hand out system_admin",
			caller:  "cadmin",
			req:     NewUser{Email: "perm@example.com", Permissions: []string{"view_users", "system_admin"}, AssignedCompanyID: "c1"},
			wantErr: ErrForbidden,
		},
		{
			name:    "company admin cannot hand out view_audit_logs",
			caller:  "cadmin",
			req:     NewUser{Email: "perm@example.com", Permissions: []string{"view_audit_logs"}},
			wantErr: ErrForbidden,
		},
		{
			name:    "primary super user cannot hand out manage_system_settings",
			caller:  "super",
			req:     NewUser{Email: "perm@example.com", Permissions: []string{"manage_system_settings"}, AssignedCompanyID: "c1"},
			wantErr: ErrForbidden,
		},
		{
			name:   "primary admin hands out system_admin",
			caller: "admin",
			req:    NewUser{Email: "perm@example.com", Permissions: []string{"system_admin"}, AssignedCompanyID: "c1"},
			check: func(t *testing.T, u *rbac.User) {
				assert.Equal(t, []permissions.Permission{permissions.SystemAdmin}, u.GrantedPermissions())
			},
		},
		{
			name:    "unknown permission",
			caller:  "admin",
			req:     NewUser{Email: "perm@example.com", Permissions: []string{"fly"}},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "role and permissions together",
			caller:  "admin",
			req:     NewUser{Email: "x@example.com", Role: "company_read_only", Permissions: []string{"view_users"}},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "bad email",
			caller:  "admin",
			req:     NewUser{Email: "not-an-email", Role: "company_read_only"},
			wantErr: ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			u, err := f.svc.CreateUser(context.Background(), f.users[tt.caller], tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, u.ID)
			stored, err := f.store.GetUserByEmail(context.Background(), tt.req.Email)
			require.NoError(t, err)
			assert.Equal(t, u.ID, stored.ID)
			if tt.check != nil {
				tt.check(t, u)
			}
		})
	}
}

func TestUpdateUserRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.UpdateUserRole(ctx, f.users["cadmin"], "writer", RoleUpdate{Role: "company_super_user"})
	require.NoError(t, err)
	role, _ := u.RoleID()
	assert.Equal(t, rbac.RoleCompanySuperUser, role)

	stored, err := f.store.GetUser(ctx, "writer")
	require.NoError(t, err)
	role, _ = stored.RoleID()
	assert.Equal(t, rbac.RoleCompanySuperUser, role)

	_, err = f.svc.UpdateUserRole(ctx, f.users["cadmin"], "writer", RoleUpdate{Role: "primary_admin"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.UpdateUserRole(ctx, f.users["cadmin"], "reader", RoleUpdate{Role: "company_read_only"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.UpdateUserRole(ctx, f.users["admin"], "admin", RoleUpdate{Role: "primary_read_only"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.UpdateUserRole(ctx, f.users["admin"], "ghost", RoleUpdate{Role: "primary_read_only"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.UpdateUserRole(ctx, f.users["admin"], "writer", RoleUpdate{Role: "wizard"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpdateUserRole_ScopedToTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	extra := []*rbac.User{
		// primary admin without any company on record
		roleUser("ops", rbac.RolePrimaryAdmin, nil),
		roleUser("cadmin2", rbac.RoleCompanyAdmin, func(u *rbac.User) { u.AssignedCompanyID = "c1" }),
		{
			ID:                "auditor",
			Email:             "auditor@example.com",
			Scheme:            rbac.GrantScheme{Permissions: []permissions.Permission{permissions.ViewAuditLogs}},
			AssignedCompanyID: "c1",
			IsActive:          true,
		},
	}
	for _, u := range extra {
		require.NoError(t, f.store.CreateUser(ctx, u))
	}

	tests := []struct {
		name    string
		caller  string
		target  string
		role    rbac.RoleID
		wantErr error
	}{
		{"company admin cannot demote primary admin", "cadmin", "admin", rbac.RoleCompanyReadOnly, ErrForbidden},
		{"company admin cannot demote companyless primary admin", "cadmin", "ops", rbac.RoleCompanyReadOnly, ErrForbidden},
		{"company admin cannot change primary super user", "cadmin", "super", rbac.RoleCompanyReadOnly, ErrForbidden},
		{"company admin cannot change a peer admin", "cadmin", "cadmin2", rbac.RoleCompanyReadOnly, ErrForbidden},
		{"company admin cannot strip privileged permissions", "cadmin", "auditor", rbac.RoleCompanyReadOnly, ErrForbidden},
		{"primary super user cannot change primary admin", "super", "admin", rbac.RolePrimaryReadOnly, ErrForbidden},
		{"primary admin changes primary super user", "admin", "super", rbac.RolePrimaryReadOnly, nil},
		{"primary admin changes companyless user", "admin", "ops", rbac.RolePrimaryReadOnly, nil},
		{"primary admin converts grant user", "admin", "auditor", rbac.RoleCompanyReadOnly, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before, err := f.store.GetUser(ctx, tt.target)
			require.NoError(t, err)

			_, err = f.svc.UpdateUserRole(ctx, f.users[tt.caller], tt.target, RoleUpdate{Role: string(tt.role)})
			stored, getErr := f.store.GetUser(ctx, tt.target)
			require.NoError(t, getErr)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, before.Scheme, stored.Scheme)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, rbac.RoleScheme{Role: tt.role}, stored.Scheme)
		})
	}
}

func TestCreateCompany(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateCompany(ctx, f.users["reader"], NewCompany{Name: "Acme"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.CreateCompany(ctx, f.users["admin"], NewCompany{Name: "  "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	company, err := f.svc.CreateCompany(ctx, f.users["super"], NewCompany{Name: " Acme "})
	require.NoError(t, err)
	assert.Equal(t, "Acme", company.Name)
	assert.Equal(t, storage.DefaultCompanyType, company.Type)
	assert.Equal(t, storage.DefaultCompanyStatus, company.Status)
	assert.Equal(t, "super", company.CreatedBy)
}

func TestCreateProject(t *testing.T) {
	start := fixedNow
	end := fixedNow.Add(-time.Hour)

	tests := []struct {
		name    string
		caller  string
		req     NewProject
		wantErr error
	}{
		{"standard user in own company", "writer", NewProject{CompanyID: "c1", Name: "New"}, nil},
		{"standard user elsewhere", "writer", NewProject{CompanyID: "c2", Name: "New"}, ErrForbidden},
		{"read only user", "reader", NewProject{CompanyID: "c2", Name: "New"}, ErrForbidden},
		{"write_all anywhere", "admin", NewProject{CompanyID: "c2", Name: "New"}, nil},
		{"missing company", "admin", NewProject{CompanyID: "ghost", Name: "New"}, ErrInvalidInput},
		{"missing name", "admin", NewProject{CompanyID: "c1"}, ErrInvalidInput},
		{"dates reversed", "admin", NewProject{CompanyID: "c1", Name: "New", StartDate: &start, EndDate: &end}, ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			p, err := f.svc.CreateProject(context.Background(), f.users[tt.caller], tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, storage.DefaultProjectStatus, p.Status)
			assert.Equal(t, tt.caller, p.CreatedBy)
		})
	}
}

func TestCreateApplication(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	app, err := f.svc.CreateApplication(ctx, f.users["writer"], NewApplication{ProjectID: "p1", Name: "Portal"})
	require.NoError(t, err)
	assert.Equal(t, storage.DefaultCriticality, app.Criticality)
	assert.Equal(t, "p1", app.ProjectID)

	// company admins have no project-level fallback
	_, err = f.svc.CreateApplication(ctx, f.users["cadmin"], NewApplication{ProjectID: "p1", Name: "Portal"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.CreateApplication(ctx, f.users["reader"], NewApplication{ProjectID: "p2", Name: "Portal"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.CreateApplication(ctx, f.users["admin"], NewApplication{ProjectID: "ghost", Name: "Portal"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGrantAndRevokeCompanyAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	expires := fixedNow.Add(24 * time.Hour)

	grant, err := f.svc.GrantCompanyAccess(ctx, f.users["super"], "writer", GrantRequest{
		CompanyID:   "c1",
		ProjectIDs:  []string{"p1"},
		Permissions: []string{"view_projects", "edit_projects"},
		AccessType:  "write",
		ExpiresAt:   &expires,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, grant.ID)
	assert.Equal(t, permissions.AccessWrite, grant.AccessType)
	assert.Equal(t, permissions.LimitedAccess, grant.EffectiveLevel())
	assert.Equal(t, "super", grant.GrantedBy)
	assert.Equal(t, &expires, grant.ExpiresAt)

	stored, err := f.store.GetUser(ctx, "writer")
	require.NoError(t, err)
	require.Len(t, stored.CompanyAccess, 1)
	assert.Equal(t, grant.ID, stored.CompanyAccess[0].ID)

	t.Run("grant rejections", func(t *testing.T) {
		past := fixedNow.Add(-time.Minute)
		cases := []struct {
			caller string
			user   string
			req    GrantRequest
			want   error
		}{
			{"super", "writer", GrantRequest{CompanyID: "c2", Permissions: []string{"view_projects"}}, ErrForbidden},
			{"reader", "writer", GrantRequest{CompanyID: "c2", Permissions: []string{"view_projects"}}, ErrForbidden},
			{"admin", "writer", GrantRequest{CompanyID: "c2", Permissions: []string{"fly"}}, ErrInvalidInput},
			{"admin", "writer", GrantRequest{CompanyID: "c2"}, ErrInvalidInput},
			{"admin", "writer", GrantRequest{CompanyID: "c2", Permissions: []string{"view_projects"}, AccessType: "owner"}, ErrInvalidInput},
			{"admin", "writer", GrantRequest{CompanyID: "c2", Permissions: []string{"view_projects"}, ExpiresAt: &past}, ErrInvalidInput},
			{"admin", "ghost", GrantRequest{CompanyID: "c2", Permissions: []string{"view_projects"}}, ErrNotFound},
			{"super", "writer", GrantRequest{CompanyID: "c1", Permissions: []string{"view_projects", "system_admin"}}, ErrForbidden},
			{"cadmin", "writer", GrantRequest{CompanyID: "c1", Permissions: []string{"view_audit_logs"}}, ErrForbidden},
		}
		for _, c := range cases {
			_, err := f.svc.GrantCompanyAccess(ctx, f.users[c.caller], c.user, c.req)
			assert.ErrorIs(t, err, c.want, "%s -> %s %+v", c.caller, c.user, c.req)
		}
	})

	t.Run("revoke", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.RevokeCompanyAccess(ctx, f.users["reader"], "writer", grant.ID), ErrForbidden)
		assert.ErrorIs(t, f.svc.RevokeCompanyAccess(ctx, f.users["cadmin"], "writer", "nope"), ErrNotFound)

		require.NoError(t, f.svc.RevokeCompanyAccess(ctx, f.users["cadmin"], "writer", grant.ID))
		stored, err := f.store.GetUser(ctx, "writer")
		require.NoError(t, err)
		assert.Empty(t, stored.CompanyAccess)
	})
}

func TestValidateAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	granted := &rbac.User{ID: "g", Scheme: rbac.GrantScheme{Permissions: []permissions.Permission{permissions.ViewUsers}}}

	tests := []struct {
		name     string
		caller   *rbac.User
		query    AccessQuery
		allowed  bool
		required string
	}{
		{"direct permission", granted, AccessQuery{ResourceType: "user", Action: "read"}, true, "view_users"},
		{"missing permission", granted, AccessQuery{ResourceType: "company", ResourceID: "c1", Action: "delete"}, false, "delete_companies"},
		{"grant on company", f.users["super"], AccessQuery{ResourceType: "project", ResourceID: "c1", Action: "read"}, true, "view_projects"},
		{"grant on other company", f.users["super"], AccessQuery{ResourceType: "project", ResourceID: "c2", Action: "read"}, false, "view_projects"},
		{"unknown resource", granted, AccessQuery{ResourceType: "planet", Action: "read"}, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := f.svc.ValidateAccess(ctx, tt.caller, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.required, d.RequiredPermission)
		})
	}

	_, err := f.svc.ValidateAccess(ctx, granted, AccessQuery{ResourceType: "user"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestProfileAndRoles(t *testing.T) {
	f := newFixture(t)

	p, err := f.svc.Profile(context.Background(), f.users["super"])
	require.NoError(t, err)
	assert.Equal(t, rbac.RolePrimarySuperUser, p.Role.ID)
	assert.True(t, p.IsPrimaryCompanyUser)
	assert.Equal(t, []string{"primary", "c1"}, p.AccessibleCompanyIDs)
	assert.Equal(t, []CompanyAccess{
		{CompanyID: "primary", Level: permissions.FullAccess},
		{CompanyID: "c1", Level: permissions.ReadOnlyAccess},
	}, p.AccessLevels)

	roles, err := f.svc.AssignableRoles(f.users["cadmin"])
	require.NoError(t, err)
	require.Len(t, roles, 3)
	assert.Equal(t, rbac.RoleCompanySuperUser, roles[0].ID)

	roles, err = f.svc.AssignableRoles(f.users["reader"])
	require.NoError(t, err)
	assert.Empty(t, roles)

	assert.Len(t, f.svc.Roles(), 8)
	assert.NotEmpty(t, f.svc.PermissionCatalog())
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	summary, err := f.svc.Dashboard(ctx, f.users["reader"])
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Users)
	assert.Equal(t, 1, summary.Companies)
	assert.Equal(t, 1, summary.Projects)
	assert.Equal(t, []string{"c2"}, summary.AccessibleCompanyIDs)
	assert.Zero(t, summary.AssignableRoles)

	summary, err = f.svc.Dashboard(ctx, f.users["admin"])
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Users)
	assert.Equal(t, 3, summary.Companies)
	assert.Equal(t, 2, summary.Projects)
	assert.Equal(t, 8, summary.AssignableRoles)
}

type failingStore struct {
	*storage.MemoryStore
}

func (failingStore) ListCompanies(context.Context) ([]storage.Company, error) {
	return nil, errors.New("replica unavailable")
}

func TestDashboard_PropagatesErrors(t *testing.T) {
	f := newFixture(t)
	svc := NewDataService(failingStore{f.store}, f.svc.Checker(), nil, observability.NewLogger(observability.ErrorLevel, &bytes.Buffer{}))

	_, err := svc.Dashboard(context.Background(), f.users["admin"])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replica unavailable")
}
