// Package permissions implements the dynamic permission scheme: an explicit list of
// permission strings carried on a user, plus company access grants that scope a
// permission set to one company and a subset of its projects.
//
// The scheme is independent of the role catalog in pkg/rbac. Callers must know which
// scheme a user record was populated under; see rbac.AuthScheme.
//
//	grant := permissions.CreateAccessGrant("acme", []string{"p1"}, []permissions.Permission{
//		permissions.ViewProjects,
//	})
//	ok := permissions.ValidateAccess(user, permissions.ResourceProject, "p1", permissions.ActionRead)
//
// Grant expiry is recorded on the grant but no function in this package compares it with
// the current time when deciding access.
package permissions
