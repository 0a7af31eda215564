package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/eams/pkg/observability"
	"github.com/platinummonkey/eams/pkg/rbac"
)

// DashboardSummary counts what the caller can see
type DashboardSummary struct {
	Users                int      `json:"users"`
	Companies            int      `json:"companies"`
	Projects             int      `json:"projects"`
	AccessibleCompanyIDs []string `json:"accessible_company_ids"`
	AssignableRoles      int      `json:"assignable_roles"`
}

// Dashboard loads the visible users, companies and projects concurrently and returns
// their counts. The first failure cancels the other loads.
func (s *DataService) Dashboard(ctx context.Context, caller *rbac.User) (summary *DashboardSummary, err error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	ctx, span := s.span(ctx, "Dashboard", caller)
	defer func() { observability.EndSpan(span, err) }()

	summary = &DashboardSummary{
		AccessibleCompanyIDs: rbac.AccessibleCompanyIDs(caller),
		AssignableRoles:      len(s.checker.AvailableRolesToAssign(caller)),
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		users, err := s.ListUsers(ctx, caller)
		summary.Users = len(users)
		return err
	})
	eg.Go(func() error {
		companies, err := s.ListCompanies(ctx, caller)
		summary.Companies = len(companies)
		return err
	})
	eg.Go(func() error {
		projects, err := s.ListProjects(ctx, caller)
		summary.Projects = len(projects)
		return err
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return summary, nil
}
