// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/eams/pkg/contextkeys"
//	ctx = contextkeys.WithUser(ctx, user)
//	user := contextkeys.GetUser(ctx)
package contextkeys

import (
	"context"

	"github.com/platinummonkey/eams/pkg/rbac"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// UserKey contains the canonical caller
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: All /api endpoints
	// Type: *rbac.User
	UserKey Key = "user"

	// ClaimsKey contains the verified identity token claims
	// Set by: middleware.AuthMiddleware
	// Used by: /api/me for display attributes missing from the stored record
	// Type: map[string]any
	ClaimsKey Key = "claims"

	// RequestIDKey contains request ID string (UUID)
	// Set by: middleware.RequestIDMiddleware
	// Used by: Logger, error responses
	// Type: string
	RequestIDKey Key = "request_id"
)

// WithUser adds the authenticated caller to the context
func WithUser(ctx context.Context, user *rbac.User) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// GetUser retrieves the authenticated caller, or nil
func GetUser(ctx context.Context) *rbac.User {
	if user, ok := ctx.Value(UserKey).(*rbac.User); ok {
		return user
	}
	return nil
}

// WithClaims adds verified token claims to the context
func WithClaims(ctx context.Context, claims map[string]any) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// GetClaims retrieves verified token claims, or nil
func GetClaims(ctx context.Context) map[string]any {
	if claims, ok := ctx.Value(ClaimsKey).(map[string]any); ok {
		return claims
	}
	return nil
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
