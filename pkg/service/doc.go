// Package service exposes the EAMS directory to authenticated callers.
//
// Every DataService operation takes the caller resolved by the authentication
// middleware. Reads are passed through the rbac list filters; writes are gated by the
// rbac predicates and the permission catalog:
//
//	ListUsers, ListCompanies, ListProjects   rbac filters
//	ListApplications                         CanAccessProject
//	CreateUser (role)                        CanAssignRole for the new user's company
//	CreateUser (permissions)                 CanManageUsers for the new user's company
//	CreateCompany                            CanManageCompanies
//	CreateProject                            write_all, or write_company in a reachable company
//	CreateApplication                        CanAccessProject plus the project write rule
//	GrantCompanyAccess, RevokeCompanyAccess  CanManageUsers for the grant's company
//	ValidateAccess                           permissions.ValidateAccess
//
// Failures wrap ErrInvalidInput, ErrUnauthenticated, ErrForbidden, ErrNotFound or
// ErrConflict so the HTTP layer can map them with errors.Is. Grant expiry is recorded
// but never consulted.
package service
