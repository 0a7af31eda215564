package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/eams/pkg/permissions"
	"github.com/platinummonkey/eams/pkg/rbac"
	"github.com/platinummonkey/eams/pkg/storage"
)

// SeedFile is the YAML document loaded by eams-seed
type SeedFile struct {
	Companies    []SeedCompany     `yaml:"companies"`
	Projects     []SeedProject     `yaml:"projects"`
	Applications []SeedApplication `yaml:"applications"`
	Users        []SeedUser        `yaml:"users"`
}

type SeedCompany struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Type         string `yaml:"type"`
	Industry     string `yaml:"industry"`
	Size         string `yaml:"size"`
	Location     string `yaml:"location"`
	ContactEmail string `yaml:"contactEmail"`
}

type SeedProject struct {
	ID          string  `yaml:"id"`
	CompanyID   string  `yaml:"companyId"`
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Status      string  `yaml:"status"`
	Budget      float64 `yaml:"budget"`
}

type SeedApplication struct {
	ID          string `yaml:"id"`
	ProjectID   string `yaml:"projectId"`
	Name        string `yaml:"name"`
	Owner       string `yaml:"owner"`
	Criticality string `yaml:"criticality"`
}

// SeedUser carries either a role or an explicit permission list
type SeedUser struct {
	ID                string                   `yaml:"id"`
	Email             string                   `yaml:"email"`
	FirstName         string                   `yaml:"firstName"`
	LastName          string                   `yaml:"lastName"`
	Role              string                   `yaml:"role"`
	Permissions       []permissions.Permission `yaml:"permissions"`
	PrimaryCompanyID  string                   `yaml:"primaryCompanyId"`
	AssignedCompanyID string                   `yaml:"assignedCompanyId"`
	AssignedProjects  []string                 `yaml:"assignedProjects"`
	CompanyAccess     []permissions.Grant      `yaml:"companyAccess"`
}

// User converts the entry into a stored user record
func (u SeedUser) User() *rbac.User {
	var scheme rbac.AuthScheme = rbac.RoleScheme{Role: rbac.RoleID(u.Role)}
	if u.Role == "" && len(u.Permissions) > 0 {
		scheme = rbac.GrantScheme{Permissions: u.Permissions}
	}
	return &rbac.User{
		ID:                u.ID,
		Email:             u.Email,
		FirstName:         u.FirstName,
		LastName:          u.LastName,
		Scheme:            scheme,
		PrimaryCompanyID:  u.PrimaryCompanyID,
		AssignedCompanyID: u.AssignedCompanyID,
		CompanyAccess:     u.CompanyAccess,
		AssignedProjects:  u.AssignedProjects,
		IsActive:          true,
		CreatedBy:         "eams-seed",
	}
}

// ParseSeedFile decodes a seed document, rejecting unknown keys
func ParseSeedFile(r io.Reader) (*SeedFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var seed SeedFile
	if err := dec.Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &seed, nil
}

// SeedSummary counts what Apply created and skipped
type SeedSummary struct {
	Created int
	Skipped int
}

// Apply writes the seed into store in dependency order. Records that already
// exist are skipped so the seed can be re-run.
func Apply(ctx context.Context, store storage.Store, seed *SeedFile, logger logrus.FieldLogger) (SeedSummary, error) {
	var summary SeedSummary

	record := func(kind, id string, err error) error {
		entry := logger.WithFields(logrus.Fields{"kind": kind, "id": id})
		switch {
		case err == nil:
			summary.Created++
			entry.Info("Created")
			return nil
		case errors.Is(err, storage.ErrConflict):
			summary.Skipped++
			entry.Debug("Already exists, skipping")
			return nil
		default:
			return fmt.Errorf("failed to seed %s %s: %w", kind, id, err)
		}
	}

	for _, c := range seed.Companies {
		company := &storage.Company{
			ID: c.ID, Name: c.Name, Type: c.Type, Industry: c.Industry,
			Size: c.Size, Location: c.Location, ContactEmail: c.ContactEmail,
			CreatedBy: "eams-seed",
		}
		if err := record("company", c.ID, store.CreateCompany(ctx, company)); err != nil {
			return summary, err
		}
	}

	for _, p := range seed.Projects {
		if _, err := store.GetCompany(ctx, p.CompanyID); err != nil {
			return summary, fmt.Errorf("project %s references company %s: %w", p.ID, p.CompanyID, err)
		}
		project := &storage.Project{
			ID: p.ID, CompanyID: p.CompanyID, Name: p.Name, Description: p.Description,
			Status: p.Status, Budget: p.Budget, CreatedBy: "eams-seed",
		}
		if err := record("project", p.ID, store.CreateProject(ctx, project)); err != nil {
			return summary, err
		}
	}

	for _, a := range seed.Applications {
		app := &storage.Application{
			ID: a.ID, ProjectID: a.ProjectID, Name: a.Name, Owner: a.Owner,
			Criticality: a.Criticality, CreatedBy: "eams-seed",
		}
		if err := record("application", a.ID, store.CreateApplication(ctx, app)); err != nil {
			return summary, err
		}
	}

	for _, u := range seed.Users {
		if u.Email == "" {
			return summary, fmt.Errorf("user %s has no email", u.ID)
		}
		if err := record("user", u.Email, store.CreateUser(ctx, u.User())); err != nil {
			return summary, err
		}
	}

	return summary, nil
}
