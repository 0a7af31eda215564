package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/eams/pkg/permissions"
	"github.com/platinummonkey/eams/pkg/rbac"
)

// MemoryStore implements Store in process memory. Lists are returned in insertion order.
type MemoryStore struct {
	mu           sync.RWMutex
	users        []*rbac.User
	companies    []*Company
	projects     []*Project
	applications []*Application
	now          func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// ListUsers returns every user
func (s *MemoryStore) ListUsers(ctx context.Context) ([]rbac.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]rbac.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *cloneUser(u))
	}
	return out, nil
}

// GetUser returns a user by ID
func (s *MemoryStore) GetUser(ctx context.Context, id string) (*rbac.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u := s.findUser(id)
	if u == nil {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return cloneUser(u), nil
}

// GetUserByEmail returns a user by email, compared case-insensitively
func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*rbac.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
}

// CreateUser stores a new user, assigning an ID and timestamps when unset
func (s *MemoryStore) CreateUser(ctx context.Context, user *rbac.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if s.findUser(user.ID) != nil {
		return fmt.Errorf("user %s: %w", user.ID, ErrConflict)
	}
	for _, u := range s.users {
		if user.Email != "" && strings.EqualFold(u.Email, user.Email) {
			return fmt.Errorf("user %s: %w", user.Email, ErrConflict)
		}
	}
	s.stamp(&user.CreatedAt, &user.UpdatedAt)
	s.users = append(s.users, cloneUser(user))
	return nil
}

// UpdateUserRole replaces a user's scheme
func (s *MemoryStore) UpdateUserRole(ctx context.Context, id string, scheme rbac.AuthScheme) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.findUser(id)
	if u == nil {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	u.Scheme = scheme
	u.UpdatedAt = s.now().UTC()
	return nil
}

// PutGrant adds a grant, replacing any grant with the same ID
func (s *MemoryStore) PutGrant(ctx context.Context, userID string, grant permissions.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.findUser(userID)
	if u == nil {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if grant.ID == "" {
		grant.ID = uuid.NewString()
	}
	for i, g := range u.CompanyAccess {
		if g.ID == grant.ID {
			u.CompanyAccess[i] = grant
			return nil
		}
	}
	u.CompanyAccess = append(u.CompanyAccess, grant)
	u.UpdatedAt = s.now().UTC()
	return nil
}

// RemoveGrant deletes a grant by ID
func (s *MemoryStore) RemoveGrant(ctx context.Context, userID, grantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.findUser(userID)
	if u == nil {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	for i, g := range u.CompanyAccess {
		if g.ID == grantID {
			u.CompanyAccess = append(u.CompanyAccess[:i], u.CompanyAccess[i+1:]...)
			u.UpdatedAt = s.now().UTC()
			return nil
		}
	}
	return fmt.Errorf("grant %s: %w", grantID, ErrNotFound)
}

// ListCompanies returns every company
func (s *MemoryStore) ListCompanies(ctx context.Context) ([]Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Company, 0, len(s.companies))
	for _, c := range s.companies {
		out = append(out, *c)
	}
	return out, nil
}

// GetCompany returns a company by ID
func (s *MemoryStore) GetCompany(ctx context.Context, id string) (*Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.companies {
		if c.ID == id {
			out := *c
			return &out, nil
		}
	}
	return nil, fmt.Errorf("company %s: %w", id, ErrNotFound)
}

// CreateCompany stores a new company
func (s *MemoryStore) CreateCompany(ctx context.Context, company *Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if company.ID == "" {
		company.ID = uuid.NewString()
	}
	for _, c := range s.companies {
		if c.ID == company.ID {
			return fmt.Errorf("company %s: %w", company.ID, ErrConflict)
		}
	}
	company.ApplyDefaults()
	s.stamp(&company.CreatedAt, &company.UpdatedAt)
	stored := *company
	s.companies = append(s.companies, &stored)
	return nil
}

// ListProjects returns every project
func (s *MemoryStore) ListProjects(ctx context.Context) ([]Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, *p)
	}
	return out, nil
}

// GetProject returns a project by ID
func (s *MemoryStore) GetProject(ctx context.Context, id string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.projects {
		if p.ID == id {
			out := *p
			return &out, nil
		}
	}
	return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
}

// CreateProject stores a new project
func (s *MemoryStore) CreateProject(ctx context.Context, project *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	for _, p := range s.projects {
		if p.ID == project.ID {
			return fmt.Errorf("project %s: %w", project.ID, ErrConflict)
		}
	}
	project.ApplyDefaults()
	s.stamp(&project.CreatedAt, &project.UpdatedAt)
	stored := *project
	s.projects = append(s.projects, &stored)
	return nil
}

// ListApplications returns the applications of a project
func (s *MemoryStore) ListApplications(ctx context.Context, projectID string) ([]Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Application, 0)
	for _, a := range s.applications {
		if a.ProjectID == projectID {
			out = append(out, *a)
		}
	}
	return out, nil
}

// CreateApplication stores a new application
func (s *MemoryStore) CreateApplication(ctx context.Context, app *Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	for _, a := range s.applications {
		if a.ID == app.ID {
			return fmt.Errorf("application %s: %w", app.ID, ErrConflict)
		}
	}
	app.ApplyDefaults()
	s.stamp(&app.CreatedAt, &app.UpdatedAt)
	stored := *app
	s.applications = append(s.applications, &stored)
	return nil
}

// ListExpiredGrants returns grants whose expiry is at or before now
func (s *MemoryStore) ListExpiredGrants(ctx context.Context, now time.Time) ([]ExpiredGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ExpiredGrant
	for _, u := range s.users {
		for _, g := range u.CompanyAccess {
			if g.Expired(now) {
				out = append(out, ExpiredGrant{UserID: u.ID, Email: u.Email, Grant: g})
			}
		}
	}
	return out, nil
}

// Ping always succeeds
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) findUser(id string) *rbac.User {
	for _, u := range s.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (s *MemoryStore) stamp(created, updated *time.Time) {
	now := s.now().UTC()
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

var _ Store = (*MemoryStore)(nil)
