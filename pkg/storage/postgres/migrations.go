package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/eams/pkg/observability"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the schema migrations in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create companies table",
			SQL: `
				CREATE TABLE IF NOT EXISTS companies (
					id TEXT PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					type VARCHAR(50) NOT NULL DEFAULT 'client',
					industry VARCHAR(255),
					size VARCHAR(50) NOT NULL DEFAULT 'Small',
					location VARCHAR(255),
					contact_email VARCHAR(255),
					contact_phone VARCHAR(50),
					status VARCHAR(50) NOT NULL DEFAULT 'Active',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					created_by TEXT
				);
			`,
		},
		{
			Version:     2,
			Description: "Create projects and applications tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS projects (
					id TEXT PRIMARY KEY,
					company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					status VARCHAR(50) NOT NULL DEFAULT 'Planning',
					start_date TIMESTAMPTZ,
					end_date TIMESTAMPTZ,
					project_manager VARCHAR(255),
					budget NUMERIC(14, 2) NOT NULL DEFAULT 0,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					created_by TEXT
				);

				CREATE INDEX IF NOT EXISTS idx_projects_company_id ON projects(company_id);

				CREATE TABLE IF NOT EXISTS applications (
					id TEXT PRIMARY KEY,
					project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					owner VARCHAR(255),
					criticality VARCHAR(50) NOT NULL DEFAULT 'Medium',
					status VARCHAR(50) NOT NULL DEFAULT 'Active',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					created_by TEXT
				);

				CREATE INDEX IF NOT EXISTS idx_applications_project_id ON applications(project_id);
			`,
		},
		{
			Version:     3,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					email VARCHAR(255) NOT NULL,
					first_name VARCHAR(255),
					last_name VARCHAR(255),
					scheme VARCHAR(20) NOT NULL DEFAULT 'role',
					user_type VARCHAR(50),
					permissions TEXT[] NOT NULL DEFAULT '{}',
					primary_company_id TEXT,
					assigned_company_id TEXT,
					assigned_projects TEXT[] NOT NULL DEFAULT '{}',
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					created_by TEXT
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(LOWER(email));
				CREATE INDEX IF NOT EXISTS idx_users_assigned_company_id ON users(assigned_company_id);
			`,
		},
		{
			Version:     4,
			Description: "Create company_access_grants table",
			SQL: `
				CREATE TABLE IF NOT EXISTS company_access_grants (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					company_id TEXT NOT NULL,
					project_ids TEXT[] NOT NULL DEFAULT '{}',
					permissions TEXT[] NOT NULL DEFAULT '{}',
					access_type VARCHAR(20) NOT NULL DEFAULT 'read',
					level VARCHAR(50),
					granted_by TEXT,
					granted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMPTZ
				);

				CREATE INDEX IF NOT EXISTS idx_grants_user_id ON company_access_grants(user_id);
				CREATE INDEX IF NOT EXISTS idx_grants_expires_at ON company_access_grants(expires_at);
			`,
		},
		{
			Version:     5,
			Description: "Create audit_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_events (
					id BIGSERIAL PRIMARY KEY,
					timestamp TIMESTAMPTZ NOT NULL,
					event_type VARCHAR(100) NOT NULL,
					status VARCHAR(20) NOT NULL,
					user_id TEXT,
					username TEXT,
					resource_type VARCHAR(50),
					resource_id TEXT,
					company_id TEXT,
					request_id VARCHAR(100),
					message TEXT,
					metadata JSONB,
					changes JSONB
				);

				CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp DESC);
				CREATE INDEX IF NOT EXISTS idx_audit_events_event_type ON audit_events(event_type);
				CREATE INDEX IF NOT EXISTS idx_audit_events_user_id ON audit_events(user_id);
				CREATE INDEX IF NOT EXISTS idx_audit_events_company_id ON audit_events(company_id);
				CREATE INDEX IF NOT EXISTS idx_audit_events_resource ON audit_events(resource_type, resource_id);
			`,
		},
	}
}

// Migrate applies every pending migration, each in its own transaction
func Migrate(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS eams_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM eams_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}

		log := logger.WithFields(map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		})
		log.Info("Running migration")

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO eams_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
