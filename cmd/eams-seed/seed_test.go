package main

import (
	"context"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/eams/pkg/permissions"
	"github.com/platinummonkey/eams/pkg/rbac"
	"github.com/platinummonkey/eams/pkg/storage"
)

const sampleSeed = `
companies:
  - id: primary
    name: Acme Consulting
    type: primary
  - id: c1
    name: Globex
projects:
  - id: p1
    companyId: c1
    name: Migration
applications:
  - id: a1
    projectId: p1
    name: Billing
users:
  - id: admin
    email: admin@acme.example.com
    role: primary_admin
    primaryCompanyId: primary
  - id: auditor
    email: auditor@acme.example.com
    permissions: [view_users, view_companies]
  - id: consultant
    email: consultant@acme.example.com
    role: primary_super_user
    primaryCompanyId: primary
    companyAccess:
      - id: g1
        companyId: c1
        accessType: read
        permissions: [view_projects]
        expiresAt: 2030-01-01T00:00:00Z
`

func newTestLogger() (*logrus.Logger, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

func TestParseSeedFile(t *testing.T) {
	seed, err := ParseSeedFile(strings.NewReader(sampleSeed))
	require.NoError(t, err)

	assert.Len(t, seed.Companies, 2)
	assert.Len(t, seed.Projects, 1)
	assert.Len(t, seed.Applications, 1)
	require.Len(t, seed.Users, 3)

	grant := seed.Users[2].CompanyAccess[0]
	assert.Equal(t, permissions.AccessRead, grant.AccessType)
	require.NotNil(t, grant.ExpiresAt)
	assert.Equal(t, 2030, grant.ExpiresAt.Year())
}

func TestParseSeedFile_RejectsUnknownKeys(t *testing.T) {
	_, err := ParseSeedFile(strings.NewReader("companies:\n  - id: c1\n    colour: red\n"))
	assert.Error(t, err)
}

func TestParseSeedFile_Empty(t *testing.T) {
	seed, err := ParseSeedFile(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, seed.Users)
}

func TestSeedUser_Scheme(t *testing.T) {
	role := SeedUser{Email: "a@example.com", Role: "company_admin"}.User()
	assert.Equal(t, rbac.RoleScheme{Role: rbac.RoleCompanyAdmin}, role.Scheme)

	grants := SeedUser{Email: "b@example.com", Permissions: []permissions.Permission{permissions.ViewUsers}}.User()
	assert.Equal(t, rbac.GrantScheme{Permissions: []permissions.Permission{permissions.ViewUsers}}, grants.Scheme)

	// an empty entry still resolves through the role catalog
	bare := SeedUser{Email: "c@example.com"}.User()
	assert.Equal(t, rbac.RoleScheme{}, bare.Scheme)
	assert.True(t, bare.IsActive)
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	seed, err := ParseSeedFile(strings.NewReader(sampleSeed))
	require.NoError(t, err)

	store := storage.NewMemoryStore()
	logger, hook := newTestLogger()

	summary, err := Apply(ctx, store, seed, logger)
	require.NoError(t, err)
	assert.Equal(t, SeedSummary{Created: 7}, summary)
	assert.NotEmpty(t, hook.AllEntries())

	user, err := store.GetUser(ctx, "consultant")
	require.NoError(t, err)
	require.Len(t, user.CompanyAccess, 1)
	assert.Equal(t, "c1", user.CompanyAccess[0].CompanyID)

	company, err := store.GetCompany(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, storage.DefaultCompanyType, company.Type)

	// re-running skips everything
	summary, err = Apply(ctx, store, seed, logger)
	require.NoError(t, err)
	assert.Equal(t, SeedSummary{Skipped: 7}, summary)
}

func TestApply_UnknownCompany(t *testing.T) {
	seed := &SeedFile{Projects: []SeedProject{{ID: "p1", CompanyID: "missing", Name: "Orphan"}}}
	logger, _ := newTestLogger()

	_, err := Apply(context.Background(), storage.NewMemoryStore(), seed, logger)
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestApply_UserWithoutEmail(t *testing.T) {
	seed := &SeedFile{Users: []SeedUser{{ID: "ghost", Role: "company_read_only"}}}
	logger, _ := newTestLogger()

	_, err := Apply(context.Background(), storage.NewMemoryStore(), seed, logger)
	assert.ErrorContains(t, err, "no email")
}
