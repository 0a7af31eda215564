package storage

import (
	"time"

	"github.com/platinummonkey/eams/pkg/permissions"
)

// Defaults applied when a record is created without them
const (
	DefaultCompanyType   = "client"
	DefaultCompanySize   = "Small"
	DefaultCompanyStatus = "Active"
	DefaultProjectStatus = "Planning"
	DefaultAppStatus     = "Active"
	DefaultCriticality   = "Medium"
)

// Company is a tenant
type Company struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Industry     string    `json:"industry,omitempty"`
	Size         string    `json:"size"`
	Location     string    `json:"location,omitempty"`
	ContactEmail string    `json:"contact_email,omitempty"`
	ContactPhone string    `json:"contact_phone,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	CreatedBy    string    `json:"created_by,omitempty"`
}

// CompanyKey identifies the company for list filtering
func (c Company) CompanyKey() string { return c.ID }

// ApplyDefaults fills unset optional fields
func (c *Company) ApplyDefaults() {
	if c.Type == "" {
		c.Type = DefaultCompanyType
	}
	if c.Size == "" {
		c.Size = DefaultCompanySize
	}
	if c.Status == "" {
		c.Status = DefaultCompanyStatus
	}
}

// Project belongs to one company
type Project struct {
	ID             string     `json:"id"`
	CompanyID      string     `json:"company_id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Status         string     `json:"status"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	ProjectManager string     `json:"project_manager,omitempty"`
	Budget         float64    `json:"budget"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CreatedBy      string     `json:"created_by,omitempty"`
}

// OwnerCompanyID identifies the owning company for list filtering
func (p Project) OwnerCompanyID() string { return p.CompanyID }

// ApplyDefaults fills unset optional fields
func (p *Project) ApplyDefaults() {
	if p.Status == "" {
		p.Status = DefaultProjectStatus
	}
}

// Application belongs to one project
type Application struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Owner       string    `json:"owner,omitempty"`
	Criticality string    `json:"criticality"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CreatedBy   string    `json:"created_by,omitempty"`
}

// ApplyDefaults fills unset optional fields
func (a *Application) ApplyDefaults() {
	if a.Status == "" {
		a.Status = DefaultAppStatus
	}
	if a.Criticality == "" {
		a.Criticality = DefaultCriticality
	}
}

// ExpiredGrant is a company access grant whose expiry has passed
type ExpiredGrant struct {
	UserID string            `json:"user_id"`
	Email  string            `json:"email"`
	Grant  permissions.Grant `json:"grant"`
}
