// Package identity sits at the boundary between external user records and the
// permission model.
//
// Normalize maps the legacy record shapes (userType vs UserType vs UserLevel, bare string
// company access lists, Cognito custom attributes) into one canonical rbac.User. The
// access checks only ever see that canonical shape.
//
// Provider verifies OpenID Connect ID tokens with go-oidc and, when a client secret and
// redirect URL are configured, runs the authorization code login flow with oauth2.
package identity
