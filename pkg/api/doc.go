// Package api provides the HTTP REST API server for EAMS.
//
// # Overview
//
// Every /api route runs behind bearer token authentication. The authenticated caller is
// resolved to a stored user (or built from token claims for unprovisioned subjects) and
// every handler delegates to service.DataService, which applies the access checks and
// list filters. Handlers never evaluate permissions themselves.
//
// # Routes
//
//	GET    /api/me                                  caller profile and access levels
//	GET    /api/me/assignable-roles                 roles the caller may assign
//	GET    /api/dashboard                           visible record counts
//	GET    /api/roles                               role catalog
//	GET    /api/permissions                         permission catalog by category
//	POST   /api/access/validate                     resource/action access query
//	GET    /api/audit-events                        audit trail within the caller's companies
//	GET    /api/users                               visible users
//	POST   /api/users                               create a role or grant based user
//	PUT    /api/users/{id}/role                     change a user's role
//	POST   /api/users/{id}/company-access           add a company access grant
//	DELETE /api/users/{id}/company-access/{grant_id} remove a grant
//	GET    /api/companies                           visible companies
//	POST   /api/companies                           create a company
//	GET    /api/projects                            visible projects
//	POST   /api/projects                            create a project
//	GET    /api/projects/{id}/applications          applications of an accessible project
//	POST   /api/projects/{id}/applications          create an application
//
// When the identity provider has a redirect URL and client secret, /auth/login and
// /auth/callback run the authorization code flow and return the issued tokens.
//
// # Errors
//
// Service errors map to statuses with errors.Is: invalid input 400, unauthenticated 401,
// forbidden 403, not found 404, conflict 409, unavailable 503. Anything else is logged and returned as a
// generic 500. Error bodies are httputil.ErrorResponse and carry the request ID.
//
// # Usage
//
//	server := api.NewServer(svc, authMiddleware, logger, api.Options{Metrics: metrics})
//	http.ListenAndServe(":8080", server.Handler())
package api
