package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/eams/pkg/rbac"
	"github.com/platinummonkey/eams/pkg/storage"
)

const userKeyPrefix = "eams:user:"

// RedisConfig configures the shared user cache
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
	TTL        time.Duration
}

// RedisUserCache is the shared user cache tier
type RedisUserCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisUserCache connects to Redis and verifies the connection
func NewRedisUserCache(config RedisConfig) (*RedisUserCache, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if config.Password != "" {
		opts.Password = config.Password
	}
	if config.DB > 0 {
		opts.DB = config.DB
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := config.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisUserCache{client: client, ttl: ttl}, nil
}

// GetUser returns a cached user, or nil on a miss
func (c *RedisUserCache) GetUser(ctx context.Context, id string) (*rbac.User, error) {
	key := userKeyPrefix + id

	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var user rbac.User
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		c.client.Del(ctx, key)
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &user, nil
}

// SetUser caches a user for the configured TTL
func (c *RedisUserCache) SetUser(ctx context.Context, user *rbac.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	return c.client.Set(ctx, userKeyPrefix+user.ID, data, c.ttl).Err()
}

// InvalidateUser removes a user from the cache
func (c *RedisUserCache) InvalidateUser(ctx context.Context, id string) error {
	return c.client.Del(ctx, userKeyPrefix+id).Err()
}

// TryLock takes a named lock for ttl. It reports false when another holder has it.
func (c *RedisUserCache) TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, "eams:lock:"+name, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

// Unlock releases a named lock
func (c *RedisUserCache) Unlock(ctx context.Context, name string) error {
	return c.client.Del(ctx, "eams:lock:"+name).Err()
}

// Ping checks the connection
func (c *RedisUserCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Client returns the underlying client for health checks
func (c *RedisUserCache) Client() *redis.Client {
	return c.client
}

// Close closes the Redis connection
func (c *RedisUserCache) Close() error {
	return c.client.Close()
}

var _ storage.UserCache = (*RedisUserCache)(nil)
