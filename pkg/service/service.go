package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/eams/pkg/audit"
	"github.com/platinummonkey/eams/pkg/observability"
	"github.com/platinummonkey/eams/pkg/permissions"
	"github.com/platinummonkey/eams/pkg/rbac"
	"github.com/platinummonkey/eams/pkg/storage"
)

// DataService reads and writes the directory on behalf of a caller, applying the access
// checks and list filters to every operation
type DataService struct {
	store   storage.Store
	checker *rbac.Checker
	metrics *observability.Metrics
	logger  *observability.Logger
	now     func() time.Time

	audit       audit.Logger
	auditSearch audit.Searcher
}

// NewDataService creates a DataService. metrics may be nil.
func NewDataService(store storage.Store, checker *rbac.Checker, metrics *observability.Metrics, logger *observability.Logger) *DataService {
	return &DataService{
		store:   store,
		checker: checker,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
		audit:   audit.NewNoOpLogger(),
	}
}

// Checker returns the checker the service evaluates with
func (s *DataService) Checker() *rbac.Checker {
	return s.checker
}

func (s *DataService) span(ctx context.Context, op string, caller *rbac.User) (context.Context, trace.Span) {
	if caller == nil {
		return observability.StartOperation(ctx, op, "", "")
	}
	return observability.StartOperation(ctx, op, caller.ID, s.checker.RoleOf(caller).String())
}

// decide records an access decision and logs denials
func (s *DataService) decide(ctx context.Context, check string, caller *rbac.User, allowed bool) bool {
	s.metrics.RecordDecision(check, allowed)
	observability.RecordDecision(ctx, check, allowed)
	if !allowed {
		observability.FromContext(ctx).WithDecision(check, false).WithField("user_id", caller.ID).Info("access denied")
		s.record(ctx, audit.NewEvent(ctx, audit.EventTypeAuthzAccessDenied, audit.EventStatusDenied, caller).
			WithMetadata("check", check))
	}
	return allowed
}

// Profile returns the caller's role and reachable companies
func (s *DataService) Profile(ctx context.Context, caller *rbac.User) (*Profile, error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	ids := rbac.AccessibleCompanyIDs(caller)
	levels := make([]CompanyAccess, 0, len(ids))
	for _, id := range ids {
		levels = append(levels, CompanyAccess{CompanyID: id, Level: s.checker.CompanyAccessLevel(caller, id)})
	}
	return &Profile{
		User:                 caller,
		Role:                 s.checker.RoleOf(caller),
		IsPrimaryCompanyUser: s.checker.IsPrimaryCompanyUser(caller),
		AccessibleCompanyIDs: ids,
		CanManageUsers:       s.checker.CanManageUsers(caller, ""),
		CanManageCompanies:   s.checker.CanManageCompanies(caller),
		AccessLevels:         levels,
	}, nil
}

// Roles returns the role catalog
func (s *DataService) Roles() []rbac.Role {
	return s.checker.Catalog().Roles()
}

// AssignableRoles returns the roles the caller may give to new users
func (s *DataService) AssignableRoles(caller *rbac.User) ([]rbac.Role, error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	ids := s.checker.AvailableRolesToAssign(caller)
	out := make([]rbac.Role, 0, len(ids))
	for _, id := range ids {
		if role, ok := s.checker.Catalog().Lookup(id); ok {
			out = append(out, role)
		}
	}
	return out, nil
}

// ListUsers returns the users visible to the caller
func (s *DataService) ListUsers(ctx context.Context, caller *rbac.User) (users []rbac.User, err error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	ctx, span := s.span(ctx, "ListUsers", caller)
	defer func() { observability.EndSpan(span, err) }()

	all, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	users = s.checker.FilterUsers(all, caller)
	s.metrics.RecordFilter("users", len(users))
	span.SetAttributes(observability.AttrVisible.Int(len(users)))
	return users, nil
}

// ListCompanies returns the companies visible to the caller
func (s *DataService) ListCompanies(ctx context.Context, caller *rbac.User) (companies []storage.Company, err error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	ctx, span := s.span(ctx, "ListCompanies", caller)
	defer func() { observability.EndSpan(span, err) }()

	all, err := s.store.ListCompanies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	companies = rbac.FilterCompanies(s.checker, all, caller)
	s.metrics.RecordFilter("companies", len(companies))
	return companies, nil
}

// ListProjects returns the projects visible to the caller
func (s *DataService) ListProjects(ctx context.Context, caller *rbac.User) (projects []storage.Project, err error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	ctx, span := s.span(ctx, "ListProjects", caller)
	defer func() { observability.EndSpan(span, err) }()

	all, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	projects = rbac.FilterProjects(s.checker, all, caller)
	s.metrics.RecordFilter("projects", len(projects))
	return projects, nil
}

// ListApplications returns the applications of a project the caller can access
func (s *DataService) ListApplications(ctx context.Context, caller *rbac.User, projectID string) (apps []storage.Application, err error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	ctx, span := s.span(ctx, "ListApplications", caller)
	defer func() { observability.EndSpan(span, err) }()

	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if !s.decide(ctx, "can_access_project", caller, s.checker.CanAccessProject(caller, projectID)) {
		return nil, fmt.Errorf("%w: no access to project %s", ErrForbidden, projectID)
	}

	apps, err = s.store.ListApplications(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	s.metrics.RecordFilter("applications", len(apps))
	return apps, nil
}

// CreateUser creates a user. Role-based users need the role assignment matrix and user
// management scope for their company; grant-based users need user management scope.
func (s *DataService) CreateUser(ctx context.Context, caller *rbac.User, req NewUser) (user *rbac.User, err error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	ctx, span := s.span(ctx, "CreateUser", caller)
	defer func() { observability.EndSpan(span, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	user = &rbac.User{
		Email:             strings.TrimSpace(req.Email),
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		PrimaryCompanyID:  req.PrimaryCompanyID,
		AssignedCompanyID: req.AssignedCompanyID,
		CompanyAccess:     []permissions.Grant{},
		AssignedProjects:  append([]string{}, req.AssignedProjects...),
		IsActive:          true,
		CreatedBy:         caller.ID,
	}

	if user.AssignedCompanyID == "" {
		user.AssignedCompanyID = s.defaultCompany(caller)
	}

	if req.Role != "" {
		roleID := rbac.RoleID(req.Role)
		role, ok := s.checker.Catalog().Lookup(roleID)
		if !ok {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, req.Role)
		}

		// primary company users inherit the caller's primary company and are scoped by it
		company := user.AssignedCompanyID
		if role.Scope.IsPrimaryCompanyRole {
			if user.PrimaryCompanyID == "" {
				user.PrimaryCompanyID = caller.PrimaryCompanyID
			}
			company = user.PrimaryCompanyID
		} else if company == "" {
			return nil, fmt.Errorf("%w: assigned_company_id is required for role %s", ErrInvalidInput, roleID)
		}

		if !s.decide(ctx, "can_assign_role", caller, s.checker.CanAssignRole(caller, roleID, company)) {
			return nil, fmt.Errorf("%w: cannot assign role %s", ErrForbidden, roleID)
		}
		user.Scheme = rbac.RoleScheme{Role: roleID}
	} else {
		if !s.decide(ctx, "can_manage_users", caller, s.checker.CanManageUsers(caller, user.AssignedCompanyID)) {
			return nil, fmt.Errorf("%w: cannot manage users of company %q", ErrForbidden, user.AssignedCompanyID)
		}
		perms, _ := parsePermissions(req.Permissions)
		if p, ok := s.canHandOut(caller, perms); !s.decide(ctx, "can_grant_permission", caller, ok) {
			return nil, fmt.Errorf("%w: cannot grant %s", ErrForbidden, p)
		}
		user.Scheme = rbac.GrantScheme{Permissions: perms}
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"user_id":    user.ID,
		"scheme":     rbac.SchemeName(user.Scheme),
		"created_by": caller.ID,
	}).Info("user created")

	event := audit.NewEvent(ctx, audit.EventTypeAdminUserCreate, audit.EventStatusSuccess, caller).
		OnResource(audit.ResourceTypeUser, user.ID, userCompany(user)).
		WithMetadata("scheme", rbac.SchemeName(user.Scheme))
	if id, ok := user.RoleID(); ok {
		event.WithMetadata("role", string(id))
	}
	s.record(ctx, event)
	return user, nil
}

// UpdateUserRole moves an existing user to another role
func (s *DataService) UpdateUserRole(ctx context.Context, caller *rbac.User, userID string, req RoleUpdate) (user *rbac.User, err error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	ctx, span := s.span(ctx, "UpdateUserRole", caller)
	defer func() { observability.EndSpan(span, err) }()

	roleID := rbac.RoleID(req.Role)
	if _, ok := s.checker.Catalog().Lookup(roleID); !ok {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, req.Role)
	}
	if caller.ID == userID {
		return nil, fmt.Errorf("%w: cannot change your own role", ErrForbidden)
	}

	user, err = s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !s.decide(ctx, "can_manage_user", caller, s.canManageUser(caller, user)) {
		return nil, fmt.Errorf("%w: cannot manage user %s", ErrForbidden, userID)
	}
	if !s.decide(ctx, "can_assign_role", caller, s.checker.CanAssignRole(caller, roleID, userCompany(user))) {
		return nil, fmt.Errorf("%w: cannot assign role %s", ErrForbidden, roleID)
	}

	previous := s.checker.RoleOf(user).ID
	scheme := rbac.RoleScheme{Role: roleID}
	if err := s.store.UpdateUserRole(ctx, userID, scheme); err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	user.Scheme = scheme

	event := audit.NewEvent(ctx, audit.EventTypeAuthzRoleChange, audit.EventStatusSuccess, caller).
		OnResource(audit.ResourceTypeUser, user.ID, userCompany(user))
	event.Changes = &audit.ChangeDetails{
		Before: map[string]interface{}{"role": string(previous)},
		After:  map[string]interface{}{"role": string(roleID)},
	}
	s.record(ctx, event)
	return user, nil
}

// CreateCompany creates a company
func (s *DataService) CreateCompany(ctx context.Context, caller *rbac.User, req NewCompany) (company *storage.Company, err error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	ctx, span := s.span(ctx, "CreateCompany", caller)
	defer func() { observability.EndSpan(span, err) }()

	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if !s.decide(ctx, "can_manage_companies", caller, s.checker.CanManageCompanies(caller)) {
		return nil, fmt.Errorf("%w: cannot manage companies", ErrForbidden)
	}

	company = &storage.Company{
		Name:         strings.TrimSpace(req.Name),
		Type:         req.Type,
		Industry:     req.Industry,
		Size:         req.Size,
		Location:     req.Location,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
		CreatedBy:    caller.ID,
	}
	company.ApplyDefaults()
	if err := s.store.CreateCompany(ctx, company); err != nil {
		return nil, fmt.Errorf("failed to create company: %w", err)
	}
	s.record(ctx, audit.NewEvent(ctx, audit.EventTypeAdminCompanyCreate, audit.EventStatusSuccess, caller).
		OnResource(audit.ResourceTypeCompany, company.ID, company.ID))
	return company, nil
}

// canWriteCompany is the project and application write rule: write_all anywhere, or
// write_company inside a reachable company
func (s *DataService) canWriteCompany(caller *rbac.User, companyID string) bool {
	if s.checker.HasRolePermission(caller, rbac.PermWriteAll) {
		return true
	}
	return s.checker.HasRolePermission(caller, rbac.PermWriteCompany) && s.checker.CanAccessCompany(caller, companyID)
}

// CreateProject creates a project inside a company the caller may write to
func (s *DataService) CreateProject(ctx context.Context, caller *rbac.User, req NewProject) (project *storage.Project, err error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	ctx, span := s.span(ctx, "CreateProject", caller)
	defer func() { observability.EndSpan(span, err) }()

	switch {
	case strings.TrimSpace(req.Name) == "":
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	case strings.TrimSpace(req.CompanyID) == "":
		return nil, fmt.Errorf("%w: company_id is required", ErrInvalidInput)
	case req.StartDate != nil && req.EndDate != nil && req.EndDate.Before(*req.StartDate):
		return nil, fmt.Errorf("%w: end_date is before start_date", ErrInvalidInput)
	}

	if _, err := s.store.GetCompany(ctx, req.CompanyID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: company %s does not exist", ErrInvalidInput, req.CompanyID)
		}
		return nil, fmt.Errorf("failed to load company: %w", err)
	}
	if !s.decide(ctx, "can_create_project", caller, s.canWriteCompany(caller, req.CompanyID)) {
		return nil, fmt.Errorf("%w: cannot create projects in company %s", ErrForbidden, req.CompanyID)
	}

	project = &storage.Project{
		CompanyID:      req.CompanyID,
		Name:           strings.TrimSpace(req.Name),
		Description:    req.Description,
		Status:         req.Status,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		ProjectManager: req.ProjectManager,
		Budget:         req.Budget,
		CreatedBy:      caller.ID,
	}
	project.ApplyDefaults()
	if err := s.store.CreateProject(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	s.record(ctx, audit.NewEvent(ctx, audit.EventTypeDataProjectCreate, audit.EventStatusSuccess, caller).
		OnResource(audit.ResourceTypeProject, project.ID, project.CompanyID))
	return project, nil
}

// CreateApplication creates an application inside a project the caller can access and
// write to
func (s *DataService) CreateApplication(ctx context.Context, caller *rbac.User, req NewApplication) (app *storage.Application, err error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	ctx, span := s.span(ctx, "CreateApplication", caller)
	defer func() { observability.EndSpan(span, err) }()

	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	project, err := s.store.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	allowed := s.checker.CanAccessProject(caller, project.ID) && s.canWriteCompany(caller, project.CompanyID)
	if !s.decide(ctx, "can_create_application", caller, allowed) {
		return nil, fmt.Errorf("%w: cannot create applications in project %s", ErrForbidden, project.ID)
	}

	app = &storage.Application{
		ProjectID:   project.ID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Owner:       req.Owner,
		Criticality: req.Criticality,
		Status:      req.Status,
		CreatedBy:   caller.ID,
	}
	app.ApplyDefaults()
	if err := s.store.CreateApplication(ctx, app); err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}
	s.record(ctx, audit.NewEvent(ctx, audit.EventTypeDataApplicationCreate, audit.EventStatusSuccess, caller).
		OnResource(audit.ResourceTypeApplication, app.ID, project.CompanyID).
		WithMetadata("project_id", project.ID))
	return app, nil
}

// GrantCompanyAccess adds a company access grant to a user
func (s *DataService) GrantCompanyAccess(ctx context.Context, caller *rbac.User, userID string, req GrantRequest) (grant *permissions.Grant, err error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	ctx, span := s.span(ctx, "GrantCompanyAccess", caller)
	defer func() { observability.EndSpan(span, err) }()

	now := s.now()
	if err := req.Validate(now); err != nil {
		return nil, err
	}
	if !s.decide(ctx, "can_manage_users", caller, s.checker.CanManageUsers(caller, req.CompanyID)) {
		return nil, fmt.Errorf("%w: cannot manage users of company %s", ErrForbidden, req.CompanyID)
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	perms, _ := parsePermissions(req.Permissions)
	if p, ok := s.canHandOut(caller, perms); !s.decide(ctx, "can_grant_permission", caller, ok) {
		return nil, fmt.Errorf("%w: cannot grant %s", ErrForbidden, p)
	}
	g := permissions.CreateAccessGrant(req.CompanyID, req.ProjectIDs, perms)
	if req.AccessType != "" {
		g.AccessType = permissions.AccessType(req.AccessType)
	}
	g.GrantedBy = caller.ID
	g.ExpiresAt = req.ExpiresAt

	if err := s.store.PutGrant(ctx, userID, g); err != nil {
		return nil, fmt.Errorf("failed to store grant: %w", err)
	}

	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"user_id":    userID,
		"company_id": g.CompanyID,
		"grant_id":   g.ID,
		"granted_by": caller.ID,
	}).Info("company access granted")

	event := audit.NewEvent(ctx, audit.EventTypeAuthzPermissionGrant, audit.EventStatusSuccess, caller).
		OnResource(audit.ResourceTypeGrant, g.ID, g.CompanyID).
		WithMetadata("target_user_id", userID).
		WithMetadata("access_type", string(g.AccessType))
	if g.ExpiresAt != nil {
		event.WithMetadata("expires_at", g.ExpiresAt.UTC().Format(time.RFC3339))
	}
	s.record(ctx, event)
	return &g, nil
}

// RevokeCompanyAccess removes a grant from a user
func (s *DataService) RevokeCompanyAccess(ctx context.Context, caller *rbac.User, userID, grantID string) (err error) {
	if caller == nil {
		return ErrUnauthenticated
	}
	ctx, span := s.span(ctx, "RevokeCompanyAccess", caller)
	defer func() { observability.EndSpan(span, err) }()

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}

	var found *permissions.Grant
	for i := range user.CompanyAccess {
		if user.CompanyAccess[i].ID == grantID {
			found = &user.CompanyAccess[i]
			break
		}
	}
	if found == nil {
		return fmt.Errorf("grant %s: %w", grantID, ErrNotFound)
	}
	if !s.decide(ctx, "can_manage_users", caller, s.checker.CanManageUsers(caller, found.CompanyID)) {
		return fmt.Errorf("%w: cannot manage users of company %s", ErrForbidden, found.CompanyID)
	}

	if err := s.store.RemoveGrant(ctx, userID, grantID); err != nil {
		return fmt.Errorf("failed to remove grant: %w", err)
	}
	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"user_id":    userID,
		"grant_id":   grantID,
		"revoked_by": caller.ID,
	}).Info("company access revoked")

	s.record(ctx, audit.NewEvent(ctx, audit.EventTypeAuthzPermissionRevoke, audit.EventStatusSuccess, caller).
		OnResource(audit.ResourceTypeGrant, grantID, found.CompanyID).
		WithMetadata("target_user_id", userID))
	return nil
}

// ValidateAccess answers a resource/action query for the caller's explicit permissions
// and grants
func (s *DataService) ValidateAccess(ctx context.Context, caller *rbac.User, q AccessQuery) (*AccessDecision, error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	if q.ResourceType == "" || q.Action == "" {
		return nil, fmt.Errorf("%w: resource_type and action are required", ErrInvalidInput)
	}

	resource := permissions.ResourceType(q.ResourceType)
	action := permissions.Action(q.Action)
	required, _ := permissions.RequiredPermission(resource, action)
	allowed := permissions.ValidateAccess(caller, resource, q.ResourceID, action)
	s.decide(ctx, "validate_access", caller, allowed)

	return &AccessDecision{Allowed: allowed, RequiredPermission: string(required)}, nil
}

// defaultCompany is the company new users land in when the request names none.
// Company-scoped callers can only create users inside their own company.
func (s *DataService) defaultCompany(caller *rbac.User) string {
	if s.checker.IsPrimaryCompanyUser(caller) {
		return ""
	}
	return caller.AssignedCompanyID
}

// canManageUser reports whether caller may change target. The target's company must be
// in the caller's user management scope, and the caller must be able to assign the
// target's current role and hand out its explicit permissions.
func (s *DataService) canManageUser(caller, target *rbac.User) bool {
	company := userCompany(target)
	if company == "" {
		if !s.checker.RoleOf(caller).IsPrimaryAdmin() {
			return false
		}
	} else if !s.checker.CanManageUsers(caller, company) {
		return false
	}
	if !slices.Contains(s.checker.AvailableRolesToAssign(caller), s.checker.RoleOf(target).ID) {
		return false
	}
	_, ok := s.canHandOut(caller, target.GrantedPermissions())
	return ok
}

// canHandOut reports whether caller may give perms to someone else. System
// administration permissions need a primary admin or a caller holding the same
// permission; the first one that fails is returned.
func (s *DataService) canHandOut(caller *rbac.User, perms []permissions.Permission) (permissions.Permission, bool) {
	if s.checker.RoleOf(caller).IsPrimaryAdmin() {
		return "", true
	}
	held := caller.GrantedPermissions()
	for _, p := range perms {
		if permissions.IsPrivileged(p) && !permissions.HasPermission(held, p) {
			return p, false
		}
	}
	return "", true
}

// userCompany is the company a user belongs to for audit attribution and user
// management scope
func userCompany(u *rbac.User) string {
	if u.AssignedCompanyID != "" {
		return u.AssignedCompanyID
	}
	return u.PrimaryCompanyID
}

// PermissionCatalog returns the permission catalog grouped for display
func (s *DataService) PermissionCatalog() []permissions.CategoryInfo {
	return permissions.Categories()
}
