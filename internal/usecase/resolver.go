package usecase

import (
	"context"
	"fmt"

	"github.com/avalon-platform/identity-service/internal/core/domain"
	"github.com/avalon-platform/identity-service/internal/core/port"
)

// ResolverService computes effective permission sets. Resolution is
// read-only and freely concurrent: it batch-fetches permissions for all of
// the user's roles in a single query and never triggers directory
// synchronization.
type ResolverService struct {
	roles       port.RoleRepository
	permissions port.PermissionRepository
}

// NewResolverService constructs a ResolverService.
func NewResolverService(roles port.RoleRepository, permissions port.PermissionRepository) *ResolverService {
	return &ResolverService{roles: roles, permissions: permissions}
}

// EffectivePermissions returns the deduplicated permission names reachable
// through every role assigned to the user, sorted by normalized name.
func (s *ResolverService) EffectivePermissions(ctx context.Context, userID domain.UserAccountID) ([]domain.PermissionName, error) {
	roles, err := s.roles.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list roles for user: %w", err)
	}

	roleIDs := make([]domain.RoleID, 0, len(roles))
	for _, role := range roles {
		roleIDs = append(roleIDs, role.ID)
	}

	permissionsByRole, err := s.permissions.ListByRoles(ctx, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("list permissions for roles: %w", err)
	}

	return domain.EffectivePermissions(roles, permissionsByRole), nil
}

// HasPermission reports whether the named permission is reachable through
// at least one of the user's roles.
func (s *ResolverService) HasPermission(ctx context.Context, userID domain.UserAccountID, name string) (bool, error) {
	resolved, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return domain.ContainsPermission(resolved, name), nil
}
