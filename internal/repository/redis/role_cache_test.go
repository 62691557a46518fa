package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

func newCacheForTest(t *testing.T, prefix string, ttl time.Duration) (*RolePermissionCache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRolePermissionCache(client, prefix, ttl), srv
}

func TestRolePermissionCacheRoundTrip(t *testing.T) {
	cache, _ := newCacheForTest(t, "identity:assoc", time.Minute)
	ctx := context.Background()

	if err := cache.SetRoles(ctx, "user-1", []string{"Editors", "Viewers"}); err != nil {
		t.Fatalf("SetRoles returned error: %v", err)
	}

	roles, hit, err := cache.GetRoles(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetRoles returned error: %v", err)
	}
	if !hit {
		t.Fatal("expected a cache hit")
	}
	if len(roles) != 2 || roles[0] != "Editors" || roles[1] != "Viewers" {
		t.Fatalf("unexpected roles: %v", roles)
	}

	if err := cache.SetPermissions(ctx, "user-1", []string{"docs.read"}); err != nil {
		t.Fatalf("SetPermissions returned error: %v", err)
	}
	permissions, hit, err := cache.GetPermissions(ctx, "user-1")
	if err != nil || !hit {
		t.Fatalf("expected permission hit, hit=%v err=%v", hit, err)
	}
	if len(permissions) != 1 || permissions[0] != "docs.read" {
		t.Fatalf("unexpected permissions: %v", permissions)
	}
}

func TestRolePermissionCacheMiss(t *testing.T) {
	cache, _ := newCacheForTest(t, "identity:assoc", time.Minute)

	roles, hit, err := cache.GetRoles(context.Background(), "absent")
	if err != nil {
		t.Fatalf("GetRoles returned error: %v", err)
	}
	if hit || roles != nil {
		t.Fatalf("expected a miss, hit=%v roles=%v", hit, roles)
	}
}

func TestRolePermissionCacheInvalidate(t *testing.T) {
	cache, _ := newCacheForTest(t, "identity:assoc", time.Minute)
	ctx := context.Background()

	if err := cache.SetRoles(ctx, "user-1", []string{"Editors"}); err != nil {
		t.Fatalf("SetRoles returned error: %v", err)
	}
	if err := cache.SetPermissions(ctx, "user-1", []string{"docs.read"}); err != nil {
		t.Fatalf("SetPermissions returned error: %v", err)
	}

	if err := cache.Invalidate(ctx, "user-1"); err != nil {
		t.Fatalf("Invalidate returned error: %v", err)
	}

	if _, hit, _ := cache.GetRoles(ctx, "user-1"); hit {
		t.Fatal("role entry must be dropped")
	}
	if _, hit, _ := cache.GetPermissions(ctx, "user-1"); hit {
		t.Fatal("permission entry must be dropped")
	}
}

func TestRolePermissionCacheTTLExpiry(t *testing.T) {
	cache, srv := newCacheForTest(t, "identity:assoc", 30*time.Second)
	ctx := context.Background()

	if err := cache.SetRoles(ctx, "user-1", []string{"Editors"}); err != nil {
		t.Fatalf("SetRoles returned error: %v", err)
	}

	srv.FastForward(31 * time.Second)

	if _, hit, _ := cache.GetRoles(ctx, "user-1"); hit {
		t.Fatal("entry must expire after the configured TTL")
	}
}

func TestRolePermissionCacheDefaults(t *testing.T) {
	cache, _ := newCacheForTest(t, "", 0)

	if cache.keyPrefix != "identity:assoc" {
		t.Fatalf("expected default key prefix, got %q", cache.keyPrefix)
	}
	if cache.ttl != 5*time.Minute {
		t.Fatalf("expected default TTL, got %v", cache.ttl)
	}
	if got := cache.roleKey("u"); got != "identity:assoc:roles:u" {
		t.Fatalf("unexpected role key %q", got)
	}
	if got := cache.permissionKey("u"); got != "identity:assoc:permissions:u" {
		t.Fatalf("unexpected permission key %q", got)
	}
}
