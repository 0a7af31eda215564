package rbac

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/eams/pkg/permissions"
)

func TestUser_JSONKeepsScheme(t *testing.T) {
	created := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	t.Run("role", func(t *testing.T) {
		in := User{
			ID:                "u1",
			Email:             "a@example.com",
			Scheme:            RoleScheme{Role: RoleCompanyAdmin},
			AssignedCompanyID: "C1",
			CompanyAccess: []permissions.Grant{{
				CompanyID:   "C2",
				ProjectIDs:  []string{},
				Permissions: []permissions.Permission{},
				AccessType:  permissions.AccessRead,
				GrantedAt:   created,
			}},
			AssignedProjects: []string{"p1"},
			IsActive:         true,
			CreatedAt:        created,
			UpdatedAt:        created,
		}

		data, err := json.Marshal(in)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"scheme":"role"`)
		assert.Contains(t, string(data), `"user_type":"company_admin"`)
		assert.NotContains(t, string(data), `"permissions":null`)
		assert.Contains(t, string(data), `"projectIds":[]`)

		var out User
		require.NoError(t, json.Unmarshal(data, &out))
		assert.Equal(t, in, out)
	})

	t.Run("grants", func(t *testing.T) {
		in := User{
			ID:     "u2",
			Scheme: GrantScheme{Permissions: []permissions.Permission{permissions.ViewUsers}},
		}
		data, err := json.Marshal(in)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"scheme":"grants"`)

		var out User
		require.NoError(t, json.Unmarshal(data, &out))
		assert.Equal(t, in.Scheme, out.Scheme)
	})
}

func TestUser_JSONGrantWithoutLists(t *testing.T) {
	in := User{
		ID:            "u3",
		Scheme:        RoleScheme{Role: RoleCompanyReadOnly},
		CompanyAccess: []permissions.Grant{{CompanyID: "C2", AccessType: permissions.AccessRead}},
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"projectIds":[]`)
	assert.Contains(t, string(data), `"permissions":[]`)

	var out User
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out.CompanyAccess, 1)
	assert.Empty(t, out.CompanyAccess[0].Permissions)
	assert.Empty(t, out.CompanyAccess[0].ProjectIDs)
}
