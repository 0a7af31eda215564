package rbac

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	cat := DefaultCatalog()
	roles := cat.Roles()
	require.Len(t, roles, 8)

	for i, id := range AllRoleIDs() {
		assert.Equal(t, id, roles[i].ID)
	}

	admin := cat.Role(RolePrimaryAdmin)
	assert.Equal(t, "Primary Company Admin", admin.DisplayName)
	assert.Equal(t, LevelAdmin, admin.Level)
	assert.True(t, admin.Scope.CanAccessAllCompanies)
	assert.True(t, admin.Scope.CanManagePrimaryCompany)
	assert.True(t, admin.IsPrimaryAdmin())

	super := cat.Role(RolePrimarySuperUser)
	assert.False(t, super.Scope.CanAccessAllCompanies)
	assert.True(t, super.Scope.CanAccessAllProjects)
	assert.True(t, super.IsPrimarySuperUser())

	companyAdmin := cat.Role(RoleCompanyAdmin)
	assert.True(t, companyAdmin.IsCompanyAdmin())
	assert.True(t, companyAdmin.Scope.CanManageUsers)
	assert.False(t, companyAdmin.Scope.CanManageCompanies)
	assert.Equal(t, []string{PermReadCompany, PermWriteCompany, PermAdminCompany, PermManageCompanyUsers}, companyAdmin.Permissions)

	readOnly := cat.Role(RoleCompanyReadOnly)
	assert.Equal(t, []string{PermReadCompany}, readOnly.Permissions)
	assert.Equal(t, LevelReadOnly, readOnly.Level)

	assert.Same(t, cat, DefaultCatalog())
}

func TestCatalog_UnknownRoleFallsBack(t *testing.T) {
	cat := DefaultCatalog()
	for _, id := range []RoleID{"", "admin", "PRIMARY_ADMIN", "company_read_only ", "superuser"} {
		assert.Equal(t, RoleCompanyReadOnly, cat.Role(id).ID, "id %q", id)
	}

	_, ok := cat.Lookup("admin")
	assert.False(t, ok)
	r, ok := cat.Lookup(RoleCompanyAdmin)
	require.True(t, ok)
	assert.Equal(t, RoleCompanyAdmin, r.ID)
}

func TestCatalog_RolesAreCopies(t *testing.T) {
	cat := DefaultCatalog()
	r := cat.Role(RolePrimaryAdmin)
	r.Permissions[0] = "mutated"

	roles := cat.Roles()
	roles[0].Permissions[0] = "mutated"

	assert.Equal(t, PermReadAll, cat.Role(RolePrimaryAdmin).Permissions[0])
}

func TestLoadCatalog_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "unknown field",
			doc:  "roles:\n  - id: primary_admin\n    bogus: true\n",
			want: "failed to decode role catalog",
		},
		{
			name: "missing roles",
			doc:  "roles:\n  - id: primary_admin\n    name: Admin\n    level: admin\n",
			want: "missing role id",
		},
		{
			name: "bad level",
			doc:  "roles:\n  - id: primary_admin\n    name: Admin\n    level: root\n",
			want: "invalid level",
		},
		{
			name: "unknown id",
			doc:  "roles:\n  - id: root\n    name: Root\n    level: admin\n",
			want: "unknown role id",
		},
		{
			name: "duplicate",
			doc: "roles:\n  - id: primary_admin\n    name: A\n    level: admin\n" +
				"  - id: primary_admin\n    name: B\n    level: admin\n",
			want: "duplicate role id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCatalog(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewCatalog_RoundTrip(t *testing.T) {
	cat, err := NewCatalog(DefaultCatalog().Roles())
	require.NoError(t, err)
	assert.Equal(t, DefaultCatalog().Roles(), cat.Roles())
}

func TestLoadCatalogFile_Missing(t *testing.T) {
	_, err := LoadCatalogFile(t.TempDir() + "/missing.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open role catalog")
}
