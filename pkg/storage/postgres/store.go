package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/platinummonkey/eams/pkg/permissions"
	"github.com/platinummonkey/eams/pkg/rbac"
	"github.com/platinummonkey/eams/pkg/storage"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

const userColumns = `id, email, first_name, last_name, scheme, user_type, permissions,
	primary_company_id, assigned_company_id, assigned_projects, is_active,
	created_at, updated_at, created_by`

const grantColumns = `id, user_id, company_id, project_ids, permissions, access_type, level,
	granted_by, granted_at, expires_at`

const companyColumns = `id, name, type, industry, size, location, contact_email, contact_phone,
	status, created_at, updated_at, created_by`

const projectColumns = `id, company_id, name, description, status, start_date, end_date,
	project_manager, budget, created_at, updated_at, created_by`

const applicationColumns = `id, project_id, name, description, owner, criticality, status,
	created_at, updated_at, created_by`

// Store implements storage.Store on PostgreSQL. User reads and all writes use the
// primary; directory listings are served from a replica when one is configured.
type Store struct {
	conns *ConnectionManager
	now   func() time.Time
}

// NewStore creates a store over conns
func NewStore(conns *ConnectionManager) *Store {
	return &Store{conns: conns, now: time.Now}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// ListUsers returns every user with their grants
func (s *Store) ListUsers(ctx context.Context) ([]rbac.User, error) {
	db := s.conns.Primary()

	rows, err := db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]rbac.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	grants, err := s.queryGrants(ctx, db, "SELECT "+grantColumns+" FROM company_access_grants ORDER BY granted_at, id")
	if err != nil {
		return nil, err
	}
	byUser := make(map[string][]permissions.Grant)
	for _, g := range grants {
		byUser[g.userID] = append(byUser[g.userID], g.Grant)
	}
	for i := range users {
		if g, ok := byUser[users[i].ID]; ok {
			users[i].CompanyAccess = g
		}
	}
	return users, nil
}

// GetUser returns a user by ID
func (s *Store) GetUser(ctx context.Context, id string) (*rbac.User, error) {
	row := s.conns.Primary().QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	return s.loadUser(ctx, row, id)
}

// GetUserByEmail returns a user by email, compared case-insensitively
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*rbac.User, error) {
	row := s.conns.Primary().QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE LOWER(email) = LOWER($1)", email)
	return s.loadUser(ctx, row, email)
}

func (s *Store) loadUser(ctx context.Context, row *sql.Row, key string) (*rbac.User, error) {
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", key, storage.ErrNotFound)
	} else if err != nil {
		return nil, err
	}

	grants, err := s.queryGrants(ctx, s.conns.Primary(),
		"SELECT "+grantColumns+" FROM company_access_grants WHERE user_id = $1 ORDER BY granted_at, id", u.ID)
	if err != nil {
		return nil, err
	}
	for _, g := range grants {
		u.CompanyAccess = append(u.CompanyAccess, g.Grant)
	}
	return u, nil
}

// CreateUser stores a user and its grants in one transaction
func (s *Store) CreateUser(ctx context.Context, user *rbac.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	role, perms := schemeColumns(user.Scheme)

	tx, err := s.conns.Primary().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		user.ID,
		user.Email,
		nullString(user.FirstName),
		nullString(user.LastName),
		rbac.SchemeName(user.Scheme),
		nullString(role),
		pq.Array(perms),
		nullString(user.PrimaryCompanyID),
		nullString(user.AssignedCompanyID),
		pq.Array(nonNil(user.AssignedProjects)),
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
		nullString(user.CreatedBy),
	)
	if err != nil {
		tx.Rollback()
		return mapError(err, "user "+user.Email)
	}

	for i := range user.CompanyAccess {
		if user.CompanyAccess[i].ID == "" {
			user.CompanyAccess[i].ID = uuid.NewString()
		}
		if err := upsertGrant(ctx, tx, user.ID, user.CompanyAccess[i]); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user %s: %w", user.ID, err)
	}
	return nil
}

// UpdateUserRole replaces a user's scheme
func (s *Store) UpdateUserRole(ctx context.Context, id string, scheme rbac.AuthScheme) error {
	role, perms := schemeColumns(scheme)
	res, err := s.conns.Primary().ExecContext(ctx, `
		UPDATE users SET scheme = $2, user_type = $3, permissions = $4, updated_at = $5
		WHERE id = $1
	`, id, rbac.SchemeName(scheme), nullString(role), pq.Array(perms), s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update user %s: %w", id, err)
	}
	return requireAffected(res, "user "+id)
}

// PutGrant adds a grant, replacing any grant with the same ID
func (s *Store) PutGrant(ctx context.Context, userID string, grant permissions.Grant) error {
	if grant.ID == "" {
		grant.ID = uuid.NewString()
	}
	if grant.GrantedAt.IsZero() {
		grant.GrantedAt = s.now().UTC()
	}
	return upsertGrant(ctx, s.conns.Primary(), userID, grant)
}

// RemoveGrant deletes a grant by ID
func (s *Store) RemoveGrant(ctx context.Context, userID, grantID string) error {
	res, err := s.conns.Primary().ExecContext(ctx,
		"DELETE FROM company_access_grants WHERE id = $1 AND user_id = $2", grantID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove grant %s: %w", grantID, err)
	}
	return requireAffected(res, "grant "+grantID)
}

// ListExpiredGrants returns grants whose expiry is at or before now
func (s *Store) ListExpiredGrants(ctx context.Context, now time.Time) ([]storage.ExpiredGrant, error) {
	rows, err := s.conns.Replica().QueryContext(ctx, `
		SELECT g.id, g.user_id, g.company_id, g.project_ids, g.permissions, g.access_type, g.level,
			g.granted_by, g.granted_at, g.expires_at, u.email
		FROM company_access_grants g
		JOIN users u ON u.id = g.user_id
		WHERE g.expires_at IS NOT NULL AND g.expires_at <= $1
		ORDER BY g.expires_at, g.id
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired grants: %w", err)
	}
	defer rows.Close()

	var out []storage.ExpiredGrant
	for rows.Next() {
		var email string
		g, err := scanGrant(rows, &email)
		if err != nil {
			return nil, err
		}
		out = append(out, storage.ExpiredGrant{UserID: g.userID, Email: email, Grant: g.Grant})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list expired grants: %w", err)
	}
	return out, nil
}

// ListCompanies returns every company
func (s *Store) ListCompanies(ctx context.Context) ([]storage.Company, error) {
	rows, err := s.conns.Replica().QueryContext(ctx, "SELECT "+companyColumns+" FROM companies ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	out := make([]storage.Company, 0)
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	return out, nil
}

// GetCompany returns a company by ID
func (s *Store) GetCompany(ctx context.Context, id string) (*storage.Company, error) {
	row := s.conns.Replica().QueryRowContext(ctx, "SELECT "+companyColumns+" FROM companies WHERE id = $1", id)
	c, err := scanCompany(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("company %s: %w", id, storage.ErrNotFound)
	}
	return c, err
}

// CreateCompany stores a new company
func (s *Store) CreateCompany(ctx context.Context, company *storage.Company) error {
	if company.ID == "" {
		company.ID = uuid.NewString()
	}
	company.ApplyDefaults()
	s.stamp(&company.CreatedAt, &company.UpdatedAt)

	_, err := s.conns.Primary().ExecContext(ctx, `
		INSERT INTO companies (`+companyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		company.ID,
		company.Name,
		company.Type,
		nullString(company.Industry),
		company.Size,
		nullString(company.Location),
		nullString(company.ContactEmail),
		nullString(company.ContactPhone),
		company.Status,
		company.CreatedAt,
		company.UpdatedAt,
		nullString(company.CreatedBy),
	)
	if err != nil {
		return mapError(err, "company "+company.ID)
	}
	return nil
}

// ListProjects returns every project
func (s *Store) ListProjects(ctx context.Context) ([]storage.Project, error) {
	rows, err := s.conns.Replica().QueryContext(ctx, "SELECT "+projectColumns+" FROM projects ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	out := make([]storage.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return out, nil
}

// GetProject returns a project by ID
func (s *Store) GetProject(ctx context.Context, id string) (*storage.Project, error) {
	row := s.conns.Replica().QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE id = $1", id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, storage.ErrNotFound)
	}
	return p, err
}

// CreateProject stores a new project
func (s *Store) CreateProject(ctx context.Context, project *storage.Project) error {
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	project.ApplyDefaults()
	s.stamp(&project.CreatedAt, &project.UpdatedAt)

	_, err := s.conns.Primary().ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		project.ID,
		project.CompanyID,
		project.Name,
		nullString(project.Description),
		project.Status,
		nullTime(project.StartDate),
		nullTime(project.EndDate),
		nullString(project.ProjectManager),
		project.Budget,
		project.CreatedAt,
		project.UpdatedAt,
		nullString(project.CreatedBy),
	)
	if err != nil {
		return mapError(err, "project "+project.ID)
	}
	return nil
}

// ListApplications returns the applications of a project
func (s *Store) ListApplications(ctx context.Context, projectID string) ([]storage.Application, error) {
	rows, err := s.conns.Replica().QueryContext(ctx,
		"SELECT "+applicationColumns+" FROM applications WHERE project_id = $1 ORDER BY created_at, id", projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	out := make([]storage.Application, 0)
	for rows.Next() {
		var (
			a                      storage.Application
			desc, owner, createdBy sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Name, &desc, &owner, &a.Criticality, &a.Status,
			&a.CreatedAt, &a.UpdatedAt, &createdBy); err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		a.Description = desc.String
		a.Owner = owner.String
		a.CreatedBy = createdBy.String
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	return out, nil
}

// CreateApplication stores a new application
func (s *Store) CreateApplication(ctx context.Context, app *storage.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	app.ApplyDefaults()
	s.stamp(&app.CreatedAt, &app.UpdatedAt)

	_, err := s.conns.Primary().ExecContext(ctx, `
		INSERT INTO applications (`+applicationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		app.ID,
		app.ProjectID,
		app.Name,
		nullString(app.Description),
		nullString(app.Owner),
		app.Criticality,
		app.Status,
		app.CreatedAt,
		app.UpdatedAt,
		nullString(app.CreatedBy),
	)
	if err != nil {
		return mapError(err, "application "+app.ID)
	}
	return nil
}

// Ping checks the primary connection
func (s *Store) Ping(ctx context.Context) error {
	return s.conns.Primary().PingContext(ctx)
}

func (s *Store) stamp(created, updated *time.Time) {
	now := s.now().UTC()
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func upsertGrant(ctx context.Context, db execer, userID string, g permissions.Grant) error {
	accessType := g.AccessType
	if accessType == "" {
		accessType = permissions.AccessRead
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO company_access_grants (`+grantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			company_id = EXCLUDED.company_id,
			project_ids = EXCLUDED.project_ids,
			permissions = EXCLUDED.permissions,
			access_type = EXCLUDED.access_type,
			level = EXCLUDED.level,
			granted_by = EXCLUDED.granted_by,
			granted_at = EXCLUDED.granted_at,
			expires_at = EXCLUDED.expires_at
	`,
		g.ID,
		userID,
		g.CompanyID,
		pq.Array(nonNil(g.ProjectIDs)),
		pq.Array(permissionStrings(g.Permissions)),
		string(accessType),
		nullString(string(g.Level)),
		nullString(g.GrantedBy),
		g.GrantedAt,
		nullTime(g.ExpiresAt),
	)
	if err != nil {
		return mapError(err, "user "+userID)
	}
	return nil
}

type userGrant struct {
	permissions.Grant
	userID string
}

func (s *Store) queryGrants(ctx context.Context, db querier, query string, args ...interface{}) ([]userGrant, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query grants: %w", err)
	}
	defer rows.Close()

	var out []userGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query grants: %w", err)
	}
	return out, nil
}

func scanGrant(row scanner, extra ...interface{}) (userGrant, error) {
	var (
		g                 userGrant
		projectIDs, perms []string
		accessType        string
		level, grantedBy  sql.NullString
		expiresAt         sql.NullTime
	)
	dest := []interface{}{
		&g.ID, &g.userID, &g.CompanyID, pq.Array(&projectIDs), pq.Array(&perms), &accessType, &level,
		&grantedBy, &g.GrantedAt, &expiresAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return userGrant{}, fmt.Errorf("failed to scan grant: %w", err)
	}
	g.ProjectIDs = nonNil(projectIDs)
	g.Permissions = toPermissions(perms)
	g.AccessType = permissions.AccessType(accessType)
	g.Level = permissions.AccessLevel(level.String)
	g.GrantedBy = grantedBy.String
	if expiresAt.Valid {
		t := expiresAt.Time
		g.ExpiresAt = &t
	}
	return g, nil
}

func scanUser(row scanner) (*rbac.User, error) {
	var (
		u                             rbac.User
		firstName, lastName, userType sql.NullString
		primary, assigned, createdBy  sql.NullString
		scheme                        string
		perms, projects               []string
	)
	err := row.Scan(
		&u.ID, &u.Email, &firstName, &lastName, &scheme, &userType, pq.Array(&perms),
		&primary, &assigned, pq.Array(&projects), &u.IsActive,
		&u.CreatedAt, &u.UpdatedAt, &createdBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	} else if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	u.FirstName = firstName.String
	u.LastName = lastName.String
	u.PrimaryCompanyID = primary.String
	u.AssignedCompanyID = assigned.String
	u.CreatedBy = createdBy.String
	u.AssignedProjects = nonNil(projects)
	u.CompanyAccess = make([]permissions.Grant, 0)
	if scheme == rbac.SchemeGrant {
		u.Scheme = rbac.GrantScheme{Permissions: toPermissions(perms)}
	} else {
		u.Scheme = rbac.RoleScheme{Role: rbac.RoleID(userType.String)}
	}
	return &u, nil
}

func scanCompany(row scanner) (*storage.Company, error) {
	var (
		c                                storage.Company
		industry, location, email, phone sql.NullString
		createdBy                        sql.NullString
	)
	err := row.Scan(&c.ID, &c.Name, &c.Type, &industry, &c.Size, &location, &email, &phone,
		&c.Status, &c.CreatedAt, &c.UpdatedAt, &createdBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	} else if err != nil {
		return nil, fmt.Errorf("failed to scan company: %w", err)
	}
	c.Industry = industry.String
	c.Location = location.String
	c.ContactEmail = email.String
	c.ContactPhone = phone.String
	c.CreatedBy = createdBy.String
	return &c, nil
}

func scanProject(row scanner) (*storage.Project, error) {
	var (
		p                        storage.Project
		desc, manager, createdBy sql.NullString
		start, end               sql.NullTime
	)
	err := row.Scan(&p.ID, &p.CompanyID, &p.Name, &desc, &p.Status, &start, &end,
		&manager, &p.Budget, &p.CreatedAt, &p.UpdatedAt, &createdBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	} else if err != nil {
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}
	p.Description = desc.String
	p.ProjectManager = manager.String
	p.CreatedBy = createdBy.String
	if start.Valid {
		t := start.Time
		p.StartDate = &t
	}
	if end.Valid {
		t := end.Time
		p.EndDate = &t
	}
	return &p, nil
}

// schemeColumns splits a scheme into the user_type and permissions columns
func schemeColumns(scheme rbac.AuthScheme) (string, []string) {
	switch s := scheme.(type) {
	case rbac.GrantScheme:
		return "", permissionStrings(s.Permissions)
	case *rbac.GrantScheme:
		if s != nil {
			return "", permissionStrings(s.Permissions)
		}
	case rbac.RoleScheme:
		return string(s.Role), []string{}
	case *rbac.RoleScheme:
		if s != nil {
			return string(s.Role), []string{}
		}
	}
	return "", []string{}
}

func mapError(err error, what string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%s: %w", what, storage.ErrConflict)
		case pqForeignKeyViolation:
			return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
		}
	}
	return fmt.Errorf("failed to write %s: %w", what, err)
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func permissionStrings(perms []permissions.Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

func toPermissions(s []string) []permissions.Permission {
	out := make([]permissions.Permission, len(s))
	for i, p := range s {
		out[i] = permissions.Permission(p)
	}
	return out
}

var _ storage.Store = (*Store)(nil)
