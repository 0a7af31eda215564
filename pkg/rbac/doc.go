// Package rbac implements the role-based half of the EAMS multi-tenant permission model.
//
// # Overview
//
// Every role-based user holds exactly one of eight built-in user types. A user type is a
// Role: a fixed permission set, a handful of scope flags and a coarse level. The roles are
// split between the primary company (the operator of the deployment) and client companies.
//
//	primary_admin          admin       every company, every user
//	primary_super_user     super_user  primary company plus granted companies
//	primary_standard_user  standard    primary company, read and write
//	primary_read_only      read_only   primary company, read
//	company_admin          admin       assigned company, manages its users
//	company_super_user     super_user  assigned company
//	company_standard_user  standard    assigned company, read and write
//	company_read_only      read_only   assigned company, read
//
// # Catalog
//
// The catalog is parsed once from the embedded roles.yaml and never changes afterwards.
// Catalog.Role is total: an unknown or empty identifier resolves to company_read_only.
//
//	catalog := rbac.DefaultCatalog()
//	checker := rbac.NewChecker(catalog)
//
// # Predicates
//
// Checker answers the access questions used by the data service:
//
//	checker.CanAccessCompany(user, "c-1")
//	checker.CanManageUsers(user, "")        // "" means any company
//	checker.AvailableRolesToAssign(user)
//
// A nil user is always denied. Users populated under the grant scheme (GrantScheme) have no
// catalog role and are evaluated as company_read_only by these predicates; their explicit
// permissions are checked with permissions.ValidateAccess instead.
//
// # Filters
//
// FilterUsers, FilterCompanies and FilterProjects reduce query results to what a caller may
// see. The three rules differ on purpose: the user filter honors company access grants, the
// company and project filters do not.
package rbac
