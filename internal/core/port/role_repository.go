package port

import (
	"context"

	"github.com/avalon-platform/identity-service/internal/core/domain"
)

// RoleRepository handles role persistence and the role/permission join.
type RoleRepository interface {
	Create(ctx context.Context, role *domain.Role) error
	List(ctx context.Context) ([]*domain.Role, error)
	GetByID(ctx context.Context, id domain.RoleID) (*domain.Role, error)
	// GetByName looks a role up by its normalized (upper-invariant) name.
	GetByName(ctx context.Context, name string) (*domain.Role, error)
	Update(ctx context.Context, role *domain.Role) error
	Delete(ctx context.Context, id domain.RoleID) error

	// AttachPermissions inserts role/permission pairs, skipping duplicates,
	// and returns the number of rows actually inserted.
	AttachPermissions(ctx context.Context, roleID domain.RoleID, permissionIDs []domain.PermissionID) (int, error)
	// DetachPermissions deletes role/permission pairs and returns the number
	// of rows actually deleted.
	DetachPermissions(ctx context.Context, roleID domain.RoleID, permissionIDs []domain.PermissionID) (int, error)
	ListByUser(ctx context.Context, userID domain.UserAccountID) ([]*domain.Role, error)
}
