package identity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/eams/pkg/permissions"
	"github.com/platinummonkey/eams/pkg/rbac"
)

func decode(t *testing.T, doc string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(doc), &m))
	return m
}

func TestNormalize_StoredRecord(t *testing.T) {
	rec := decode(t, `{
		"UserID": "u-1",
		"Email": "ada@example.com",
		"FirstName": "Ada",
		"LastName": "Lovelace",
		"UserType": "company_admin",
		"AssignedCompanyId": "C1",
		"PrimaryCompanyId": "",
		"IsPrimaryCompany": false,
		"AssignedProjects": ["p1", "p2"],
		"CompanyAccess": [],
		"IsActive": true,
		"CreatedAt": "2025-01-02T03:04:05.000Z",
		"CreatedBy": "system"
	}`)

	u, err := Normalize(rec)
	require.NoError(t, err)

	assert.Equal(t, "u-1", u.ID)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, "Ada Lovelace", u.FullName())
	assert.Equal(t, rbac.RoleScheme{Role: rbac.RoleCompanyAdmin}, u.Scheme)
	assert.Equal(t, "C1", u.AssignedCompanyID)
	assert.Empty(t, u.PrimaryCompanyID)
	assert.Equal(t, []string{"p1", "p2"}, u.AssignedProjects)
	assert.Equal(t, []permissions.Grant{}, u.CompanyAccess)
	assert.True(t, u.IsActive)
	assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), u.CreatedAt)
	assert.Equal(t, "system", u.CreatedBy)
}

func TestNormalize_RoleKeys(t *testing.T) {
	for _, key := range []string{"userType", "UserType", "user_type", "custom:user_type", "role", "Role"} {
		u, err := Normalize(map[string]any{key: "primary_super_user"})
		require.NoError(t, err, key)
		id, ok := u.RoleID()
		require.True(t, ok, key)
		assert.Equal(t, rbac.RolePrimarySuperUser, id, key)
	}
}

func TestNormalize_LegacyLevelResolvesToLeastPrivilege(t *testing.T) {
	u, err := Normalize(map[string]any{"UserID": "u", "UserLevel": "admin"})
	require.NoError(t, err)

	id, ok := u.RoleID()
	require.True(t, ok)
	assert.Equal(t, rbac.RoleID("admin"), id)
	assert.Equal(t, rbac.RoleCompanyReadOnly, rbac.NewChecker(nil).RoleOf(u).ID)
}

func TestNormalize_GrantScheme(t *testing.T) {
	u, err := Normalize(decode(t, `{
		"id": "g-1",
		"permissions": ["view_users", "system_admin"],
		"companyAccess": [{
			"companyId": "C1",
			"projectIds": ["p1"],
			"permissions": ["view_projects"],
			"accessType": "write",
			"grantedBy": "admin",
			"grantedAt": "2025-06-01T00:00:00Z",
			"expiresAt": "2025-12-31T00:00:00Z"
		}]
	}`))
	require.NoError(t, err)

	assert.Equal(t, rbac.GrantScheme{Permissions: []permissions.Permission{permissions.ViewUsers, permissions.SystemAdmin}}, u.Scheme)
	require.Len(t, u.CompanyAccess, 1)
	g := u.CompanyAccess[0]
	assert.Equal(t, "C1", g.CompanyID)
	assert.Equal(t, []string{"p1"}, g.ProjectIDs)
	assert.Equal(t, permissions.AccessWrite, g.AccessType)
	assert.Equal(t, permissions.LimitedAccess, g.EffectiveLevel())
	assert.Equal(t, "admin", g.GrantedBy)
	require.NotNil(t, g.ExpiresAt)
	assert.Equal(t, 2025, g.ExpiresAt.Year())
}

func TestNormalize_RoleWinsOverPermissions(t *testing.T) {
	u, err := Normalize(map[string]any{"userType": "company_read_only", "permissions": []any{"system_admin"}})
	require.NoError(t, err)
	assert.Nil(t, u.GrantedPermissions())
}

func TestNormalize_BareStringCompanyAccess(t *testing.T) {
	u, err := Normalize(map[string]any{
		"userType":      "primary_super_user",
		"companyAccess": []any{"C1", "", "C2"},
	})
	require.NoError(t, err)
	require.Len(t, u.CompanyAccess, 2)
	assert.Equal(t, "C1", u.CompanyAccess[0].CompanyID)
	assert.Equal(t, permissions.ReadOnlyAccess, u.CompanyAccess[0].EffectiveLevel())

	legacy, err := Normalize(decode(t, `{"userType":"primary_super_user","companyAccess":[{"companyId":"C1","level":"full_access"}]}`))
	require.NoError(t, err)
	assert.Equal(t, permissions.FullAccess, legacy.CompanyAccess[0].EffectiveLevel())
}

func TestNormalize_PrimaryCompanyFlag(t *testing.T) {
	u, err := Normalize(map[string]any{
		"custom:user_type":          "primary_standard_user",
		"custom:company_id":         "P",
		"custom:is_primary_company": "true",
	})
	require.NoError(t, err)
	assert.Equal(t, "P", u.PrimaryCompanyID)
	assert.Equal(t, "P", u.AssignedCompanyID)
}

func TestNormalize_Defaults(t *testing.T) {
	u, err := Normalize(map[string]any{})
	require.NoError(t, err)
	assert.True(t, u.IsActive)
	assert.NotNil(t, u.CompanyAccess)
	assert.NotNil(t, u.AssignedProjects)
	assert.Equal(t, rbac.RoleCompanyReadOnly, rbac.NewChecker(nil).RoleOf(u).ID)
}

func TestNormalize_Errors(t *testing.T) {
	tests := []struct {
		name   string
		record map[string]any
	}{
		{"company access not a list", map[string]any{"companyAccess": "C1"}},
		{"company access entry type", map[string]any{"companyAccess": []any{42.0}}},
		{"grant without company", map[string]any{"companyAccess": []any{map[string]any{"level": "full_access"}}}},
		{"bad timestamp", map[string]any{"createdAt": "yesterday"}},
		{"bad grant timestamp", map[string]any{"companyAccess": []any{map[string]any{"companyId": "C1", "expiresAt": "soon"}}}},
		{"projects not a list", map[string]any{"assignedProjects": 3.0}},
		{"active not a bool", map[string]any{"isActive": "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.record)
			assert.ErrorIs(t, err, ErrMalformedRecord)
		})
	}

	_, err := Normalize(nil)
	assert.ErrorIs(t, err, ErrNilRecord)
}

func TestFromClaims(t *testing.T) {
	u, err := FromClaims(Claims{
		"sub":                       "abc-123",
		"id":                        "ignored",
		"email":                     "ops@example.com",
		"given_name":                "Op",
		"custom:user_type":          "company_standard_user",
		"custom:company_id":         "C1",
		"custom:is_primary_company": "false",
	})
	require.NoError(t, err)
	assert.Equal(t, "abc-123", u.ID)
	assert.Equal(t, "ops@example.com", u.Email)
	assert.Equal(t, "C1", u.AssignedCompanyID)
	assert.Empty(t, u.PrimaryCompanyID)

	c := rbac.NewChecker(nil)
	assert.True(t, c.CanAccessCompany(u, "C1"))
	assert.False(t, c.CanAccessCompany(u, "C2"))

	_, err = FromClaims(Claims{"email": "x@example.com"})
	assert.ErrorIs(t, err, ErrMissingSubject)

	_, err = FromClaims(Claims{"sub": "s", "companyAccess": "C1"})
	assert.ErrorIs(t, err, ErrMalformedRecord)
}
