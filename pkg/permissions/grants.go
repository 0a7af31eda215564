package permissions

import (
	"time"

	"github.com/google/uuid"
)

// now is swapped in tests
var now = time.Now

// HasPermission reports whether held contains p
func HasPermission(held []Permission, p Permission) bool {
	for _, h := range held {
		if h == p {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether held contains at least one of required.
// An empty requirement is never satisfied.
func HasAnyPermission(held []Permission, required []Permission) bool {
	for _, p := range required {
		if HasPermission(held, p) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether held contains every entry of required.
// An empty requirement is always satisfied.
func HasAllPermissions(held []Permission, required []Permission) bool {
	for _, p := range required {
		if !HasPermission(held, p) {
			return false
		}
	}
	return true
}

// CreateAccessGrant builds a read grant for a company and project subset
func CreateAccessGrant(companyID string, projectIDs []string, perms []Permission) Grant {
	projects := make([]string, len(projectIDs))
	copy(projects, projectIDs)
	granted := make([]Permission, len(perms))
	copy(granted, perms)

	return Grant{
		ID:          uuid.New().String(),
		CompanyID:   companyID,
		ProjectIDs:  projects,
		Permissions: granted,
		AccessType:  AccessRead,
		GrantedAt:   now().UTC(),
		ExpiresAt:   nil,
	}
}

// FindGrant returns the first grant for companyID
func FindGrant(grants []Grant, companyID string) (Grant, bool) {
	for _, g := range grants {
		if g.CompanyID == companyID {
			return g, true
		}
	}
	return Grant{}, false
}

// GrantCompanyIDs lists the company IDs of grants in order, without duplicates
func GrantCompanyIDs(grants []Grant) []string {
	ids := make([]string, 0, len(grants))
	seen := make(map[string]struct{}, len(grants))
	for _, g := range grants {
		if g.CompanyID == "" {
			continue
		}
		if _, ok := seen[g.CompanyID]; ok {
			continue
		}
		seen[g.CompanyID] = struct{}{}
		ids = append(ids, g.CompanyID)
	}
	return ids
}
