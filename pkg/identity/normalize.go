package identity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/eams/pkg/permissions"
	"github.com/platinummonkey/eams/pkg/rbac"
)

var (
	// ErrNilRecord is returned when there is no record to normalize
	ErrNilRecord = errors.New("nil user record")
	// ErrMalformedRecord is returned when a field has an unusable shape
	ErrMalformedRecord = errors.New("malformed user record")
)

// Legacy key names, in lookup order
var (
	idKeys             = []string{"UserID", "userId", "id", "sub"}
	emailKeys          = []string{"email", "Email", "Username"}
	firstNameKeys      = []string{"firstName", "FirstName", "given_name"}
	lastNameKeys       = []string{"lastName", "LastName", "family_name"}
	roleKeys           = []string{"userType", "UserType", "user_type", "custom:user_type", "role", "Role", "custom:role"}
	levelKeys          = []string{"UserLevel", "userLevel"}
	permissionKeys     = []string{"permissions", "Permissions"}
	companyAccessKeys  = []string{"companyAccess", "CompanyAccess"}
	projectKeys        = []string{"assignedProjects", "AssignedProjects"}
	primaryCompanyKeys = []string{"primaryCompanyId", "PrimaryCompanyId", "custom:primary_company_id"}
	assignedKeys       = []string{"assignedCompanyId", "AssignedCompanyId", "custom:company_id"}
	isPrimaryKeys      = []string{"isPrimaryCompany", "IsPrimaryCompany", "custom:is_primary_company"}
	activeKeys         = []string{"isActive", "IsActive"}
	createdAtKeys      = []string{"createdAt", "CreatedAt"}
	updatedAtKeys      = []string{"updatedAt", "UpdatedAt"}
	createdByKeys      = []string{"createdBy", "CreatedBy"}

	grantCompanyKeys = []string{"companyId", "CompanyId", "company_id"}
)

// Normalize maps any of the legacy user record shapes into the canonical user.
//
// The scheme is chosen from the keys present: a role key selects the role scheme, an
// explicit permission list selects the grant scheme, and a legacy UserLevel is carried as
// a role identifier that the catalog will not recognise.
func Normalize(record map[string]any) (*rbac.User, error) {
	if record == nil {
		return nil, ErrNilRecord
	}

	u := &rbac.User{
		ID:                lookupString(record, idKeys...),
		Email:             lookupString(record, emailKeys...),
		FirstName:         lookupString(record, firstNameKeys...),
		LastName:          lookupString(record, lastNameKeys...),
		PrimaryCompanyID:  lookupString(record, primaryCompanyKeys...),
		AssignedCompanyID: lookupString(record, assignedKeys...),
		CreatedBy:         lookupString(record, createdByKeys...),
		IsActive:          true,
	}

	scheme, err := schemeOf(record)
	if err != nil {
		return nil, err
	}
	u.Scheme = scheme

	if raw, ok := lookup(record, companyAccessKeys...); ok {
		grants, err := parseCompanyAccess(raw)
		if err != nil {
			return nil, err
		}
		u.CompanyAccess = grants
	}

	if raw, ok := lookup(record, projectKeys...); ok {
		projects, err := stringList(raw, "assignedProjects")
		if err != nil {
			return nil, err
		}
		u.AssignedProjects = projects
	}

	if raw, ok := lookup(record, activeKeys...); ok && raw != nil {
		active, err := boolValue(raw, "isActive")
		if err != nil {
			return nil, err
		}
		u.IsActive = active
	}

	if raw, ok := lookup(record, isPrimaryKeys...); ok && raw != nil {
		isPrimary, err := boolValue(raw, "isPrimaryCompany")
		if err != nil {
			return nil, err
		}
		if isPrimary && u.PrimaryCompanyID == "" {
			u.PrimaryCompanyID = u.AssignedCompanyID
		}
	}

	if u.CreatedAt, err = lookupTime(record, "createdAt", createdAtKeys...); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = lookupTime(record, "updatedAt", updatedAtKeys...); err != nil {
		return nil, err
	}

	if u.CompanyAccess == nil {
		u.CompanyAccess = []permissions.Grant{}
	}
	if u.AssignedProjects == nil {
		u.AssignedProjects = []string{}
	}
	return u, nil
}

func schemeOf(record map[string]any) (rbac.AuthScheme, error) {
	if role := lookupString(record, roleKeys...); role != "" {
		return rbac.RoleScheme{Role: rbac.RoleID(role)}, nil
	}
	if raw, ok := lookup(record, permissionKeys...); ok {
		perms, err := stringList(raw, "permissions")
		if err != nil {
			return nil, err
		}
		out := make([]permissions.Permission, len(perms))
		for i, p := range perms {
			out[i] = permissions.Permission(p)
		}
		return rbac.GrantScheme{Permissions: out}, nil
	}
	// legacy levels are not catalog identifiers and resolve to the fallback role
	return rbac.RoleScheme{Role: rbac.RoleID(lookupString(record, levelKeys...))}, nil
}

func parseCompanyAccess(raw any) ([]permissions.Grant, error) {
	var items []any
	switch v := raw.(type) {
	case nil:
		return []permissions.Grant{}, nil
	case []any:
		items = v
	case []string:
		items = make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
	case []map[string]any:
		items = make([]any, len(v))
		for i, m := range v {
			items[i] = m
		}
	case []permissions.Grant:
		return append([]permissions.Grant(nil), v...), nil
	default:
		return nil, fmt.Errorf("%w: companyAccess must be a list, got %T", ErrMalformedRecord, raw)
	}

	grants := make([]permissions.Grant, 0, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case string:
			if v == "" {
				continue
			}
			grants = append(grants, permissions.Grant{CompanyID: v, AccessType: permissions.AccessRead})
		case map[string]any:
			g, err := parseGrant(v)
			if err != nil {
				return nil, fmt.Errorf("companyAccess[%d]: %w", i, err)
			}
			grants = append(grants, g)
		default:
			return nil, fmt.Errorf("%w: companyAccess[%d] has type %T", ErrMalformedRecord, i, item)
		}
	}
	return grants, nil
}

func parseGrant(m map[string]any) (permissions.Grant, error) {
	g := permissions.Grant{
		ID:         lookupString(m, "id", "grantId"),
		CompanyID:  lookupString(m, grantCompanyKeys...),
		AccessType: permissions.AccessType(lookupString(m, "accessType")),
		Level:      permissions.AccessLevel(lookupString(m, "level")),
		GrantedBy:  lookupString(m, "grantedBy"),
	}
	if g.CompanyID == "" {
		return g, fmt.Errorf("%w: grant without companyId", ErrMalformedRecord)
	}
	if g.AccessType == "" {
		g.AccessType = permissions.AccessRead
	}

	if raw, ok := lookup(m, "projectIds"); ok {
		ids, err := stringList(raw, "projectIds")
		if err != nil {
			return g, err
		}
		g.ProjectIDs = ids
	}
	if raw, ok := lookup(m, "permissions"); ok {
		perms, err := stringList(raw, "permissions")
		if err != nil {
			return g, err
		}
		g.Permissions = make([]permissions.Permission, len(perms))
		for i, p := range perms {
			g.Permissions[i] = permissions.Permission(p)
		}
	}

	var err error
	if g.GrantedAt, err = lookupTime(m, "grantedAt", "grantedAt"); err != nil {
		return g, err
	}
	expires, err := lookupTime(m, "expiresAt", "expiresAt")
	if err != nil {
		return g, err
	}
	if !expires.IsZero() {
		g.ExpiresAt = &expires
	}
	return g, nil
}

func lookup(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func lookupString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func lookupTime(m map[string]any, field string, keys ...string) (time.Time, error) {
	raw, ok := lookup(m, keys...)
	if !ok || raw == nil {
		return time.Time{}, nil
	}
	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		if v == "" {
			return time.Time{}, nil
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, field, err)
		}
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %s has type %T", ErrMalformedRecord, field, raw)
}

func stringList(raw any, field string) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return []string{}, nil
	case []string:
		return append([]string{}, v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	case string:
		// Cognito attributes carry lists as comma separated strings
		if v == "" {
			return []string{}, nil
		}
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s must be a list, got %T", ErrMalformedRecord, field, raw)
}

func boolValue(raw any, field string) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, field, err)
		}
		return b, nil
	}
	return false, fmt.Errorf("%w: %s has type %T", ErrMalformedRecord, field, raw)
}
