package provider

import (
	"context"
	"strings"

	"github.com/avalon-platform/identity-service/internal/core/domain"
	"github.com/avalon-platform/identity-service/internal/core/port"
)

// currentUser answers authorization queries for the principal carried on
// the context. It delegates to the owning provider's identity service so
// each variant's lookup strategy (direct query vs cached read-through)
// applies uniformly.
type currentUser struct {
	identity port.IdentityService
}

func newCurrentUser(identity port.IdentityService) *currentUser {
	return &currentUser{identity: identity}
}

// Principal returns the authenticated principal or nil when the context
// carries no authentication.
func (c *currentUser) Principal(ctx context.Context) *port.Principal {
	p, ok := port.PrincipalFromContext(ctx)
	if !ok {
		return nil
	}
	return &p
}

func (c *currentUser) IsInRole(ctx context.Context, name string) (bool, error) {
	roles, err := c.GetRoles(ctx)
	if err != nil {
		return false, err
	}

	normalized := domain.NormalizeRoleName(name)
	for _, role := range roles {
		if domain.NormalizeRoleName(role) == normalized {
			return true, nil
		}
	}
	return false, nil
}

func (c *currentUser) GetRoles(ctx context.Context) ([]string, error) {
	p, ok := port.PrincipalFromContext(ctx)
	if !ok {
		return []string{}, nil
	}
	return c.identity.GetUserRoles(ctx, p.UserID)
}

func (c *currentUser) HasPermission(ctx context.Context, name string) (bool, error) {
	permissions, err := c.GetPermissions(ctx)
	if err != nil {
		return false, err
	}

	normalized := strings.ToLower(strings.TrimSpace(name))
	for _, permission := range permissions {
		if strings.ToLower(permission) == normalized {
			return true, nil
		}
	}
	return false, nil
}

func (c *currentUser) GetPermissions(ctx context.Context) ([]string, error) {
	p, ok := port.PrincipalFromContext(ctx)
	if !ok {
		return []string{}, nil
	}
	return c.identity.GetEffectivePermissions(ctx, p.UserID)
}

var _ port.CurrentUser = (*currentUser)(nil)
