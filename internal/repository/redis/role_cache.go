package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/avalon-platform/identity-service/internal/core/port"
)

// RolePermissionCache caches role and permission association lookups for
// the directory provider, which is read-through against the local mirror.
type RolePermissionCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRolePermissionCache constructs a Redis-backed association cache.
func NewRolePermissionCache(client *redis.Client, keyPrefix string, ttl time.Duration) *RolePermissionCache {
	if keyPrefix == "" {
		keyPrefix = "identity:assoc"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RolePermissionCache{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (c *RolePermissionCache) roleKey(userID string) string {
	return fmt.Sprintf("%s:roles:%s", c.keyPrefix, userID)
}

func (c *RolePermissionCache) permissionKey(userID string) string {
	return fmt.Sprintf("%s:permissions:%s", c.keyPrefix, userID)
}

// GetRoles returns the cached role names for the user; the bool reports a hit.
func (c *RolePermissionCache) GetRoles(ctx context.Context, userID string) ([]string, bool, error) {
	return c.get(ctx, c.roleKey(userID))
}

// SetRoles caches the role names for the user with the configured TTL.
func (c *RolePermissionCache) SetRoles(ctx context.Context, userID string, roles []string) error {
	return c.set(ctx, c.roleKey(userID), roles)
}

// GetPermissions returns the cached permission names for the user; the bool
// reports a hit.
func (c *RolePermissionCache) GetPermissions(ctx context.Context, userID string) ([]string, bool, error) {
	return c.get(ctx, c.permissionKey(userID))
}

// SetPermissions caches the permission names for the user with the
// configured TTL.
func (c *RolePermissionCache) SetPermissions(ctx context.Context, userID string, permissions []string) error {
	return c.set(ctx, c.permissionKey(userID), permissions)
}

// Invalidate drops both cached sets for the user.
func (c *RolePermissionCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, c.roleKey(userID), c.permissionKey(userID)).Err(); err != nil {
		return fmt.Errorf("invalidate association cache: %w", err)
	}
	return nil
}

func (c *RolePermissionCache) get(ctx context.Context, key string) ([]string, bool, error) {
	raw, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get association cache: %w", err)
	}

	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, false, fmt.Errorf("decode association cache: %w", err)
	}

	return values, true, nil
}

func (c *RolePermissionCache) set(ctx context.Context, key string, values []string) error {
	raw, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode association cache: %w", err)
	}

	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set association cache: %w", err)
	}

	return nil
}

var _ port.RolePermissionCache = (*RolePermissionCache)(nil)
