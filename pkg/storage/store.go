package storage

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/eams/pkg/permissions"
	"github.com/platinummonkey/eams/pkg/rbac"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a record violates a uniqueness constraint
	ErrConflict = errors.New("already exists")
)

// UserStore persists users and their company access grants
type UserStore interface {
	ListUsers(ctx context.Context) ([]rbac.User, error)
	GetUser(ctx context.Context, id string) (*rbac.User, error)
	GetUserByEmail(ctx context.Context, email string) (*rbac.User, error)
	CreateUser(ctx context.Context, user *rbac.User) error
	UpdateUserRole(ctx context.Context, id string, scheme rbac.AuthScheme) error
	PutGrant(ctx context.Context, userID string, grant permissions.Grant) error
	RemoveGrant(ctx context.Context, userID, grantID string) error
}

// DirectoryStore persists companies, projects and applications
type DirectoryStore interface {
	ListCompanies(ctx context.Context) ([]Company, error)
	GetCompany(ctx context.Context, id string) (*Company, error)
	CreateCompany(ctx context.Context, company *Company) error
	ListProjects(ctx context.Context) ([]Project, error)
	GetProject(ctx context.Context, id string) (*Project, error)
	CreateProject(ctx context.Context, project *Project) error
	ListApplications(ctx context.Context, projectID string) ([]Application, error)
	CreateApplication(ctx context.Context, app *Application) error
}

// Store is the full persistence surface used by the service layer
type Store interface {
	UserStore
	DirectoryStore
	ListExpiredGrants(ctx context.Context, now time.Time) ([]ExpiredGrant, error)
	Ping(ctx context.Context) error
}
