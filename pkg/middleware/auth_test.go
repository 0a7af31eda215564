package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/eams/pkg/contextkeys"
	"github.com/platinummonkey/eams/pkg/identity"
	"github.com/platinummonkey/eams/pkg/observability"
	"github.com/platinummonkey/eams/pkg/rbac"
	"github.com/platinummonkey/eams/pkg/storage"
)

type fakeVerifier map[string]identity.Claims

func (f fakeVerifier) Verify(_ context.Context, raw string) (identity.Claims, error) {
	claims, ok := f[raw]
	if !ok {
		return nil, errors.New("bad signature")
	}
	return claims, nil
}

type fakeLookup struct {
	users map[string]*rbac.User
	err   error
}

func (f *fakeLookup) GetUser(_ context.Context, id string) (*rbac.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, storage.ErrNotFound
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, &bytes.Buffer{})
}

func newTestAuth(users UserLookup) *AuthMiddleware {
	verifier := fakeVerifier{
		"stored-token": {"sub": "u1", "email": "stored@example.com"},
		"claims-token": {"sub": "u2", "email": "new@example.com", "custom:user_type": "company_admin", "custom:company_id": "c9"},
		"no-sub-token": {"email": "nobody@example.com"},
	}
	return NewAuthMiddleware(verifier, users, testLogger())
}

func serve(handler http.Handler, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	m := newTestAuth(&fakeLookup{})
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"missing header", "", "missing authorization header"},
		{"wrong scheme", "Basic abc", "invalid authorization header format"},
		{"empty token", "Bearer  ", "invalid authorization header format"},
		{"unverifiable token", "Bearer forged", "invalid or expired token"},
		{"no subject", "Bearer no-sub-token", "token has no subject"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(handler, tt.header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), tt.want)
		})
	}
}

func TestAuthMiddleware_ResolvesCaller(t *testing.T) {
	stored := &rbac.User{ID: "u1", Email: "stored@example.com", Scheme: rbac.RoleScheme{Role: rbac.RolePrimaryAdmin}}
	m := newTestAuth(&fakeLookup{users: map[string]*rbac.User{"u1": stored}})

	var got *rbac.User
	var claims map[string]any
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetUser(r)
		claims = contextkeys.GetClaims(r.Context())
	}))

	t.Run("stored record wins", func(t *testing.T) {
		w := serve(handler, "Bearer stored-token")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Same(t, stored, got)
		assert.Equal(t, "stored@example.com", claims["email"])
	})

	t.Run("unprovisioned user built from claims", func(t *testing.T) {
		w := serve(handler, "bearer claims-token")
		require.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, got)
		assert.Equal(t, "u2", got.ID)
		role, ok := got.RoleID()
		assert.True(t, ok)
		assert.Equal(t, rbac.RoleCompanyAdmin, role)
		assert.Equal(t, "c9", got.AssignedCompanyID)
	})
}

func TestAuthMiddleware_StoreFailure(t *testing.T) {
	m := newTestAuth(&fakeLookup{err: errors.New("connection refused")})
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	w := serve(handler, "Bearer stored-token")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestAuthMiddleware_NoStore(t *testing.T) {
	m := newTestAuth(nil)

	var got *rbac.User
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetUser(r)
	}))

	w := serve(handler, "Bearer stored-token")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.ID)
}
