package storage

import (
	"context"
	"slices"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/eams/pkg/permissions"
	"github.com/platinummonkey/eams/pkg/rbac"
)

// Cache tiers reported to a CacheObserver
const (
	TierMemory = "memory"
	TierShared = "shared"
)

// UserCache is a shared user cache. GetUser returns nil, nil on a miss.
type UserCache interface {
	GetUser(ctx context.Context, id string) (*rbac.User, error)
	SetUser(ctx context.Context, user *rbac.User) error
	InvalidateUser(ctx context.Context, id string) error
}

// CacheObserver receives cache hit and miss events
type CacheObserver interface {
	CacheHit(tier string)
	CacheMiss(tier string)
}

// CacheConfig sizes the in-process tier
type CacheConfig struct {
	Size int
	TTL  time.Duration
}

// DefaultCacheConfig returns the in-process defaults
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{Size: 1024, TTL: time.Minute}
}

// CachedUserStore serves GetUser from memory, then the shared cache, then the store
type CachedUserStore struct {
	Store
	l1       *lru.LRU[string, rbac.User]
	l2       UserCache
	observer CacheObserver
}

// NewCachedUserStore wraps store. shared and observer may be nil.
func NewCachedUserStore(store Store, cfg CacheConfig, shared UserCache, observer CacheObserver) *CachedUserStore {
	if cfg.Size <= 0 {
		cfg.Size = DefaultCacheConfig().Size
	}
	return &CachedUserStore{
		Store:    store,
		l1:       lru.NewLRU[string, rbac.User](cfg.Size, nil, cfg.TTL),
		l2:       shared,
		observer: observer,
	}
}

// GetUser returns a user by ID
func (c *CachedUserStore) GetUser(ctx context.Context, id string) (*rbac.User, error) {
	if u, ok := c.l1.Get(id); ok {
		c.hit(TierMemory)
		return cloneUser(&u), nil
	}
	c.miss(TierMemory)

	if c.l2 != nil {
		if u, err := c.l2.GetUser(ctx, id); err == nil && u != nil {
			c.hit(TierShared)
			c.l1.Add(id, *cloneUser(u))
			return u, nil
		}
		c.miss(TierShared)
	}

	u, err := c.Store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	c.l1.Add(id, *cloneUser(u))
	if c.l2 != nil {
		c.l2.SetUser(ctx, u)
	}
	return u, nil
}

// CreateUser persists a user and drops any stale cache entry for it
func (c *CachedUserStore) CreateUser(ctx context.Context, user *rbac.User) error {
	if err := c.Store.CreateUser(ctx, user); err != nil {
		return err
	}
	c.Invalidate(ctx, user.ID)
	return nil
}

// UpdateUserRole changes a user's scheme
func (c *CachedUserStore) UpdateUserRole(ctx context.Context, id string, scheme rbac.AuthScheme) error {
	if err := c.Store.UpdateUserRole(ctx, id, scheme); err != nil {
		return err
	}
	c.Invalidate(ctx, id)
	return nil
}

// PutGrant adds or replaces a company access grant
func (c *CachedUserStore) PutGrant(ctx context.Context, userID string, grant permissions.Grant) error {
	if err := c.Store.PutGrant(ctx, userID, grant); err != nil {
		return err
	}
	c.Invalidate(ctx, userID)
	return nil
}

// RemoveGrant deletes a company access grant
func (c *CachedUserStore) RemoveGrant(ctx context.Context, userID, grantID string) error {
	if err := c.Store.RemoveGrant(ctx, userID, grantID); err != nil {
		return err
	}
	c.Invalidate(ctx, userID)
	return nil
}

// Invalidate drops a user from both tiers
func (c *CachedUserStore) Invalidate(ctx context.Context, id string) {
	c.l1.Remove(id)
	if c.l2 != nil {
		c.l2.InvalidateUser(ctx, id)
	}
}

// Len returns the number of users held in memory
func (c *CachedUserStore) Len() int {
	return c.l1.Len()
}

func (c *CachedUserStore) hit(tier string) {
	if c.observer != nil {
		c.observer.CacheHit(tier)
	}
}

func (c *CachedUserStore) miss(tier string) {
	if c.observer != nil {
		c.observer.CacheMiss(tier)
	}
}

func cloneUser(u *rbac.User) *rbac.User {
	out := *u
	out.AssignedProjects = slices.Clone(u.AssignedProjects)
	out.CompanyAccess = slices.Clone(u.CompanyAccess)
	for i, g := range out.CompanyAccess {
		out.CompanyAccess[i].ProjectIDs = slices.Clone(g.ProjectIDs)
		out.CompanyAccess[i].Permissions = slices.Clone(g.Permissions)
	}
	if gs, ok := u.Scheme.(rbac.GrantScheme); ok {
		out.Scheme = rbac.GrantScheme{Permissions: slices.Clone(gs.Permissions)}
	}
	return &out
}

var _ Store = (*CachedUserStore)(nil)
