package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/eams/pkg/audit"
	"github.com/platinummonkey/eams/pkg/permissions"
	"github.com/platinummonkey/eams/pkg/rbac"
)

func eventTypes(events []*audit.AuditEvent) []audit.EventType {
	out := make([]audit.EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.EventType)
	}
	return out
}

func TestAudit_RecordsChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mem := audit.NewMemoryLogger(100)
	f.svc.SetAudit(mem, mem)

	_, err := f.svc.UpdateUserRole(ctx, f.users["cadmin"], "writer", RoleUpdate{Role: string(rbac.RoleCompanyReadOnly)})
	require.NoError(t, err)

	grant, err := f.svc.GrantCompanyAccess(ctx, f.users["super"], "writer", GrantRequest{
		CompanyID:   "c1",
		Permissions: []string{"view_projects"},
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.RevokeCompanyAccess(ctx, f.users["super"], "writer", grant.ID))

	_, err = f.svc.CreateCompany(ctx, f.users["reader"], NewCompany{Name: "Nope"})
	require.ErrorIs(t, err, ErrForbidden)

	events, err := mem.Search(ctx, audit.SearchFilter{})
	require.NoError(t, err)
	assert.Equal(t, []audit.EventType{
		audit.EventTypeAuthzAccessDenied,
		audit.EventTypeAuthzPermissionRevoke,
		audit.EventTypeAuthzPermissionGrant,
		audit.EventTypeAuthzRoleChange,
	}, eventTypes(events))

	roleChange := events[3]
	assert.Equal(t, "cadmin", roleChange.UserID)
	assert.Equal(t, "writer", roleChange.ResourceID)
	assert.Equal(t, "c1", roleChange.CompanyID)
	require.NotNil(t, roleChange.Changes)
	assert.Equal(t, string(rbac.RoleCompanyStandardUser), roleChange.Changes.Before["role"])
	assert.Equal(t, string(rbac.RoleCompanyReadOnly), roleChange.Changes.After["role"])

	granted := events[2]
	assert.Equal(t, grant.ID, granted.ResourceID)
	assert.Equal(t, "writer", granted.Metadata["target_user_id"])

	denied := events[0]
	assert.Equal(t, audit.EventStatusDenied, denied.Status)
	assert.Equal(t, "can_manage_companies", denied.Metadata["check"])
}

func TestAudit_RecordsCreations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mem := audit.NewMemoryLogger(100)
	f.svc.SetAudit(mem, nil)

	company, err := f.svc.CreateCompany(ctx, f.users["admin"], NewCompany{Name: "Initech"})
	require.NoError(t, err)
	project, err := f.svc.CreateProject(ctx, f.users["admin"], NewProject{Name: "Rollout", CompanyID: company.ID})
	require.NoError(t, err)
	_, err = f.svc.CreateApplication(ctx, f.users["admin"], NewApplication{Name: "Portal", ProjectID: project.ID})
	require.NoError(t, err)
	_, err = f.svc.CreateUser(ctx, f.users["admin"], NewUser{
		Email:             "new@example.com",
		Role:              string(rbac.RoleCompanyAdmin),
		AssignedCompanyID: company.ID,
	})
	require.NoError(t, err)

	events, err := mem.Search(ctx, audit.SearchFilter{CompanyIDs: []string{company.ID}})
	require.NoError(t, err)
	assert.Equal(t, []audit.EventType{
		audit.EventTypeAdminUserCreate,
		audit.EventTypeDataApplicationCreate,
		audit.EventTypeDataProjectCreate,
		audit.EventTypeAdminCompanyCreate,
	}, eventTypes(events))
	assert.Equal(t, string(rbac.RoleCompanyAdmin), events[0].Metadata["role"])
}

type brokenAudit struct{}

func (brokenAudit) Log(context.Context, *audit.AuditEvent) error { return errors.New("audit sink down") }
func (brokenAudit) Close() error                                 { return nil }

func TestAudit_FailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.svc.SetAudit(brokenAudit{}, nil)

	_, err := f.svc.CreateCompany(context.Background(), f.users["admin"], NewCompany{Name: "Initech"})
	assert.NoError(t, err)
}

func TestListAuditEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ListAuditEvents(ctx, f.users["admin"], audit.SearchFilter{})
	require.ErrorIs(t, err, ErrUnavailable)

	mem := audit.NewMemoryLogger(100)
	f.svc.SetAudit(mem, mem)

	// one event in each tenant and one without a company
	require.NoError(t, mem.Log(ctx, &audit.AuditEvent{EventType: audit.EventTypeAuthzRoleChange, CompanyID: "c1"}))
	require.NoError(t, mem.Log(ctx, &audit.AuditEvent{EventType: audit.EventTypeAuthzRoleChange, CompanyID: "c2"}))
	require.NoError(t, mem.Log(ctx, &audit.AuditEvent{EventType: audit.EventTypeAuthLogin}))

	tests := []struct {
		name    string
		caller  string
		filter  audit.SearchFilter
		want    int
		wantErr error
	}{
		{"primary admin sees everything", "admin", audit.SearchFilter{}, 3, nil},
		{"primary admin narrows by company", "admin", audit.SearchFilter{CompanyIDs: []string{"c2"}}, 1, nil},
		{"company admin sees own company", "cadmin", audit.SearchFilter{}, 1, nil},
		{"company admin cannot widen scope", "cadmin", audit.SearchFilter{CompanyIDs: []string{"c2"}}, 0, nil},
		{"read only user is refused", "reader", audit.SearchFilter{}, 0, ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := f.svc.ListAuditEvents(ctx, f.users[tt.caller], tt.filter)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, events, tt.want)
		})
	}

	t.Run("explicit permission grants full access", func(t *testing.T) {
		auditor := &rbac.User{ID: "auditor", Scheme: rbac.GrantScheme{Permissions: []permissions.Permission{permissions.ViewAuditLogs}}}
		events, err := f.svc.ListAuditEvents(ctx, auditor, audit.SearchFilter{EventTypes: []audit.EventType{audit.EventTypeAuthzRoleChange}})
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	_, err = f.svc.ListAuditEvents(ctx, nil, audit.SearchFilter{})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestIntersect(t *testing.T) {
	assert.Equal(t, []string{"c1"}, intersect(nil, []string{"c1"}))
	assert.Equal(t, []string{"c2"}, intersect([]string{"c2", "c9"}, []string{"c1", "c2"}))
	assert.Equal(t, []string{}, intersect([]string{"c9"}, []string{"c1"}))
}
