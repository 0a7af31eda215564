package rbac

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed roles.yaml
var builtinRolesYAML []byte

// Catalog is an immutable registry of the built-in roles
type Catalog struct {
	roles []Role
	byID  map[RoleID]Role
}

type catalogDocument struct {
	Roles []Role `yaml:"roles"`
}

var defaultCatalog = sync.OnceValues(func() (*Catalog, error) {
	return LoadCatalog(bytes.NewReader(builtinRolesYAML))
})

// DefaultCatalog returns the catalog compiled into the binary.
// It panics if the embedded document is invalid, which is a build defect.
func DefaultCatalog() *Catalog {
	c, err := defaultCatalog()
	if err != nil {
		panic(fmt.Sprintf("rbac: embedded role catalog is invalid: %v", err))
	}
	return c
}

// LoadCatalog parses a YAML role document
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var doc catalogDocument
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode role catalog: %w", err)
	}
	return NewCatalog(doc.Roles)
}

// LoadCatalogFile parses a YAML role document from disk
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open role catalog: %w", err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

// NewCatalog validates roles and builds a catalog.
// Every built-in user type must appear exactly once and no other identifiers are allowed.
func NewCatalog(roles []Role) (*Catalog, error) {
	known := make(map[RoleID]struct{}, 8)
	for _, id := range AllRoleIDs() {
		known[id] = struct{}{}
	}

	c := &Catalog{
		roles: make([]Role, 0, len(roles)),
		byID:  make(map[RoleID]Role, len(roles)),
	}
	for _, r := range roles {
		if err := r.validate(); err != nil {
			return nil, err
		}
		if _, ok := known[r.ID]; !ok {
			return nil, fmt.Errorf("unknown role id %q", r.ID)
		}
		if _, dup := c.byID[r.ID]; dup {
			return nil, fmt.Errorf("duplicate role id %q", r.ID)
		}
		r.Permissions = append([]string(nil), r.Permissions...)
		c.byID[r.ID] = r
		c.roles = append(c.roles, r)
	}
	for id := range known {
		if _, ok := c.byID[id]; !ok {
			return nil, fmt.Errorf("missing role id %q", id)
		}
	}
	return c, nil
}

// Role resolves an identifier. Unknown or empty identifiers resolve to the
// company_read_only role.
func (c *Catalog) Role(id RoleID) Role {
	if r, ok := c.byID[id]; ok {
		return r.clone()
	}
	return c.byID[FallbackRole].clone()
}

// Lookup resolves an identifier without falling back
func (c *Catalog) Lookup(id RoleID) (Role, bool) {
	r, ok := c.byID[id]
	if !ok {
		return Role{}, false
	}
	return r.clone(), true
}

// Roles returns all roles in catalog order
func (c *Catalog) Roles() []Role {
	out := make([]Role, len(c.roles))
	for i, r := range c.roles {
		out[i] = r.clone()
	}
	return out
}

func (r Role) clone() Role {
	r.Permissions = append([]string(nil), r.Permissions...)
	return r
}
