package port

import (
	"context"

	"github.com/avalon-platform/identity-service/internal/core/domain"
)

// PermissionRepository manages permission storage.
type PermissionRepository interface {
	Create(ctx context.Context, permission *domain.Permission) error
	GetByID(ctx context.Context, id domain.PermissionID) (*domain.Permission, error)
	// GetByName looks a permission up by its normalized name.
	GetByName(ctx context.Context, name domain.PermissionName) (*domain.Permission, error)
	Update(ctx context.Context, permission *domain.Permission) error
	ListByRole(ctx context.Context, roleID domain.RoleID) ([]domain.Permission, error)
	// ListByRoles batch-fetches permissions for all given roles in one
	// query, keyed by role. Used by permission resolution to avoid N+1
	// fan-out.
	ListByRoles(ctx context.Context, roleIDs []domain.RoleID) (map[domain.RoleID][]domain.Permission, error)
	// ListByUser returns the distinct permissions reachable through the
	// user's assigned roles.
	ListByUser(ctx context.Context, userID domain.UserAccountID) ([]domain.Permission, error)
}
