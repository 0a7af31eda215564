package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/eams/pkg/contextkeys"
	"github.com/platinummonkey/eams/pkg/httputil"
	"github.com/platinummonkey/eams/pkg/identity"
	"github.com/platinummonkey/eams/pkg/observability"
	"github.com/platinummonkey/eams/pkg/rbac"
	"github.com/platinummonkey/eams/pkg/storage"
)

// UserLookup loads the stored record of an authenticated subject
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*rbac.User, error)
}

// AuthMiddleware authenticates bearer ID tokens and resolves the caller
type AuthMiddleware struct {
	verifier identity.TokenVerifier
	users    UserLookup
	logger   *observability.Logger
}

// NewAuthMiddleware creates a new authentication middleware. users may be nil, in which
// case the caller is always built from token claims.
func NewAuthMiddleware(verifier identity.TokenVerifier, users UserLookup, logger *observability.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		users:    users,
		logger:   logger,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		ctx := r.Context()
		claims, err := m.verifier.Verify(ctx, strings.TrimSpace(parts[1]))
		if err != nil {
			m.logger.WithError(err).Debug("token verification failed")
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		user, err := m.resolve(ctx, claims)
		if err != nil {
			if errors.Is(err, identity.ErrMissingSubject) {
				httputil.WriteUnauthorized(w, "token has no subject")
				return
			}
			m.logger.WithError(err).WithField("sub", claims.Subject()).Error("failed to resolve caller")
			httputil.WriteInternalError(w, errors.New("failed to resolve caller"))
			return
		}

		ctx = contextkeys.WithUser(ctx, user)
		ctx = contextkeys.WithClaims(ctx, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolve prefers the stored record and falls back to the token attributes for users
// that were never provisioned
func (m *AuthMiddleware) resolve(ctx context.Context, claims identity.Claims) (*rbac.User, error) {
	if claims.Subject() == "" {
		return nil, identity.ErrMissingSubject
	}
	if m.users != nil {
		user, err := m.users.GetUser(ctx, claims.Subject())
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}
	return identity.FromClaims(claims)
}

// GetUser extracts the authenticated caller from the request
func GetUser(r *http.Request) *rbac.User {
	return contextkeys.GetUser(r.Context())
}
