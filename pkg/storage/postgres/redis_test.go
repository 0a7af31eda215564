package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/eams/pkg/permissions"
	"github.com/platinummonkey/eams/pkg/rbac"
)

func setupRedisUserCache(t *testing.T) (*RedisUserCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cache, err := NewRedisUserCache(RedisConfig{
		URL:      "redis://" + mr.Addr(),
		TTL:      time.Minute,
		PoolSize: 4,
	})
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	return cache, mr
}

func TestNewRedisUserCache_Errors(t *testing.T) {
	_, err := NewRedisUserCache(RedisConfig{URL: "invalid://url"})
	assert.Error(t, err)

	_, err = NewRedisUserCache(RedisConfig{URL: "redis://localhost:1"})
	assert.Error(t, err)
}

func TestRedisUserCache_RoundTrip(t *testing.T) {
	cache, mr := setupRedisUserCache(t)
	ctx := context.Background()

	miss, err := cache.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, miss)

	user := &rbac.User{
		ID:                "u1",
		Email:             "u1@example.com",
		Scheme:            rbac.GrantScheme{Permissions: []permissions.Permission{permissions.ViewUsers}},
		AssignedCompanyID: "C1",
		CompanyAccess:     []permissions.Grant{{ID: "g1", CompanyID: "C2", AccessType: permissions.AccessRead}},
		AssignedProjects:  []string{"P1"},
		IsActive:          true,
	}
	require.NoError(t, cache.SetUser(ctx, user))
	assert.True(t, mr.Exists(userKeyPrefix+"u1"))
	assert.Equal(t, time.Minute, mr.TTL(userKeyPrefix+"u1"))

	got, err := cache.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []permissions.Permission{permissions.ViewUsers}, got.GrantedPermissions())
	require.Len(t, got.CompanyAccess, 1)
	assert.Equal(t, "C2", got.CompanyAccess[0].CompanyID)

	require.NoError(t, cache.InvalidateUser(ctx, "u1"))
	assert.False(t, mr.Exists(userKeyPrefix+"u1"))
}

func TestRedisUserCache_CorruptEntryIsDropped(t *testing.T) {
	cache, mr := setupRedisUserCache(t)
	require.NoError(t, mr.Set(userKeyPrefix+"bad", "{not json"))

	_, err := cache.GetUser(context.Background(), "bad")
	assert.Error(t, err)
	assert.False(t, mr.Exists(userKeyPrefix+"bad"))
}

func TestRedisUserCache_Expiry(t *testing.T) {
	cache, mr := setupRedisUserCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetUser(ctx, &rbac.User{ID: "u1", Scheme: rbac.RoleScheme{Role: rbac.RoleCompanyAdmin}}))
	mr.FastForward(2 * time.Minute)

	got, err := cache.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisUserCache_Lock(t *testing.T) {
	cache, mr := setupRedisUserCache(t)
	ctx := context.Background()

	ok, err := cache.TryLock(ctx, "grant-audit", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cache.TryLock(ctx, "grant-audit", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Unlock(ctx, "grant-audit"))
	mr.FastForward(time.Second)

	ok, err = cache.TryLock(ctx, "grant-audit", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, cache.Ping(ctx))
}
