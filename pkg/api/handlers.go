package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/eams/pkg/audit"
	"github.com/platinummonkey/eams/pkg/contextkeys"
	"github.com/platinummonkey/eams/pkg/httputil"
	"github.com/platinummonkey/eams/pkg/identity"
	"github.com/platinummonkey/eams/pkg/observability"
	"github.com/platinummonkey/eams/pkg/service"
)

// serviceErrors maps service sentinels onto HTTP statuses
var serviceErrors = []httputil.ErrorClass{
	{Err: service.ErrInvalidInput, Status: http.StatusBadRequest},
	{Err: service.ErrUnauthenticated, Status: http.StatusUnauthorized},
	{Err: service.ErrForbidden, Status: http.StatusForbidden},
	{Err: service.ErrNotFound, Status: http.StatusNotFound},
	{Err: service.ErrConflict, Status: http.StatusConflict},
	{Err: service.ErrUnavailable, Status: http.StatusServiceUnavailable},
}

// writeServiceError reports classified service errors as they are. Anything else
// is logged and reported without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if httputil.WriteClassified(w, err, serviceErrors) {
		return
	}
	observability.FromContext(r.Context()).WithError(err).WithField("path", r.URL.Path).Error("request failed")
	httputil.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
}

// getProfile handles GET /api/me
func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	caller := contextkeys.GetUser(r.Context())
	profile, err := s.svc.Profile(r.Context(), caller)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	// fill display attributes the stored record lacks from the token
	if claims := identity.Claims(contextkeys.GetClaims(r.Context())); claims != nil && profile.User.Email == "" {
		user := *profile.User
		user.Email = claims.Email()
		profile.User = &user
	}
	httputil.WriteSuccess(w, profile)
}

// listAssignableRoles handles GET /api/me/assignable-roles
func (s *Server) listAssignableRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.svc.AssignableRoles(contextkeys.GetUser(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

// getDashboard handles GET /api/dashboard
func (s *Server) getDashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Dashboard(r.Context(), contextkeys.GetUser(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, summary)
}

// listRoles handles GET /api/roles
func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, s.svc.Roles())
}

// listPermissions handles GET /api/permissions
func (s *Server) listPermissions(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, s.svc.PermissionCatalog())
}

// validateAccess handles POST /api/access/validate
func (s *Server) validateAccess(w http.ResponseWriter, r *http.Request) {
	var query service.AccessQuery
	if !httputil.ParseJSONOrError(w, r, &query) {
		return
	}
	decision, err := s.svc.ValidateAccess(r.Context(), contextkeys.GetUser(r.Context()), query)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, decision)
}

// listUsers handles GET /api/users
func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.svc.ListUsers(r.Context(), contextkeys.GetUser(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, users)
}

// createUser handles POST /api/users
func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req service.NewUser
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	user, err := s.svc.CreateUser(r.Context(), contextkeys.GetUser(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, user)
}

// updateUserRole handles PUT /api/users/{id}/role
func (s *Server) updateUserRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req service.RoleUpdate
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	user, err := s.svc.UpdateUserRole(r.Context(), contextkeys.GetUser(r.Context()), userID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// grantCompanyAccess handles POST /api/users/{id}/company-access
func (s *Server) grantCompanyAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req service.GrantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	grant, err := s.svc.GrantCompanyAccess(r.Context(), contextkeys.GetUser(r.Context()), userID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, grant)
}

// revokeCompanyAccess handles DELETE /api/users/{id}/company-access/{grant_id}
func (s *Server) revokeCompanyAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	grantID, ok := httputil.ParsePathStringOrError(w, r, "grant_id")
	if !ok {
		return
	}
	if err := s.svc.RevokeCompanyAccess(r.Context(), contextkeys.GetUser(r.Context()), userID, grantID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// listCompanies handles GET /api/companies
func (s *Server) listCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := s.svc.ListCompanies(r.Context(), contextkeys.GetUser(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, companies)
}

// createCompany handles POST /api/companies
func (s *Server) createCompany(w http.ResponseWriter, r *http.Request) {
	var req service.NewCompany
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	company, err := s.svc.CreateCompany(r.Context(), contextkeys.GetUser(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, company)
}

// listProjects handles GET /api/projects
func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.svc.ListProjects(r.Context(), contextkeys.GetUser(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, projects)
}

// createProject handles POST /api/projects
func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var req service.NewProject
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	project, err := s.svc.CreateProject(r.Context(), contextkeys.GetUser(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, project)
}

// listApplications handles GET /api/projects/{id}/applications
func (s *Server) listApplications(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	apps, err := s.svc.ListApplications(r.Context(), contextkeys.GetUser(r.Context()), projectID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, apps)
}

// createApplication handles POST /api/projects/{id}/applications
func (s *Server) createApplication(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req service.NewApplication
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.ProjectID = projectID
	app, err := s.svc.CreateApplication(r.Context(), contextkeys.GetUser(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, app)
}

// listAuditEvents handles GET /api/audit-events
func (s *Server) listAuditEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAuditFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	events, err := s.svc.ListAuditEvents(r.Context(), contextkeys.GetUser(r.Context()), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, events)
}

// parseAuditFilter reads audit search parameters from the query string
func parseAuditFilter(r *http.Request) (audit.SearchFilter, error) {
	q := r.URL.Query()
	filter := audit.SearchFilter{
		UserID:       q.Get("user_id"),
		ResourceType: audit.ResourceType(q.Get("resource_type")),
		ResourceID:   q.Get("resource_id"),
	}

	if v := q.Get("event_type"); v != "" {
		for _, et := range strings.Split(v, ",") {
			filter.EventTypes = append(filter.EventTypes, audit.EventType(strings.TrimSpace(et)))
		}
	}
	if v := q.Get("company_id"); v != "" {
		filter.CompanyIDs = strings.Split(v, ",")
	}
	if v := q.Get("status"); v != "" {
		status := audit.EventStatus(v)
		filter.Status = &status
	}
	for key, dst := range map[string]**time.Time{"since": &filter.StartTime, "until": &filter.EndTime} {
		if v := q.Get(key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return filter, errors.New(key + " must be an RFC3339 timestamp")
			}
			*dst = &t
		}
	}
	for key, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if v := q.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return filter, errors.New(key + " must be a non-negative integer")
			}
			*dst = n
		}
	}
	return filter, nil
}
