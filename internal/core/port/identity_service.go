package port

import (
	"context"

	"github.com/avalon-platform/identity-service/internal/core/domain"
)

// RoleInput captures a role together with its permission names for the
// role management operations.
type RoleInput struct {
	Name            string
	Description     string
	PermissionNames []string
}

// RoleView is the provider-agnostic read model for a role.
type RoleView struct {
	ID              domain.RoleID
	Name            string
	Description     string
	IsSystemDefined bool
	PermissionNames []string
}

// IdentityService is the management capability both identity providers
// satisfy. Expected outcomes (not found, already exists, not assigned,
// validation failure) surface as *domain.Error values; infrastructure
// failures surface with KindUnavailable and may be retried by the caller.
type IdentityService interface {
	GetUserByID(ctx context.Context, id domain.UserAccountID) (*domain.UserAccount, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	GetUserByEmail(ctx context.Context, email domain.Email) (*domain.UserAccount, error)
	// CreateUser mirrors the account into the provider's native store. The
	// password is meaningful only for the local-credential variant; the
	// directory variant rejects a non-empty password with a validation error.
	CreateUser(ctx context.Context, account *domain.UserAccount, password string) (domain.UserAccountID, error)
	UpdateUser(ctx context.Context, account *domain.UserAccount) error
	DeleteUser(ctx context.Context, id domain.UserAccountID) error

	// AddUserToRole assigns the named role; assigning an already-held role
	// is a no-op. RemoveUserFromRole revokes it; removing a role the user
	// does not hold fails with KindNotAssigned. Both resolve the role by
	// normalized name.
	AddUserToRole(ctx context.Context, userID domain.UserAccountID, roleName string) error
	RemoveUserFromRole(ctx context.Context, userID domain.UserAccountID, roleName string) error
	GetUserRoles(ctx context.Context, userID domain.UserAccountID) ([]string, error)

	GetRoles(ctx context.Context) ([]RoleView, error)
	CreateRole(ctx context.Context, input RoleInput) (domain.RoleID, error)
	UpdateRole(ctx context.Context, roleID domain.RoleID, input RoleInput) error
	DeleteRole(ctx context.Context, roleID domain.RoleID) error
	GetPermissionsForRole(ctx context.Context, roleName string) ([]string, error)

	// GetEffectivePermissions resolves the deduplicated permission set
	// reachable through every role assigned to the user.
	GetEffectivePermissions(ctx context.Context, userID domain.UserAccountID) ([]string, error)
}

// Provider couples the two capability interfaces a back-end must satisfy
// and names itself for diagnostics.
type Provider interface {
	Name() domain.ProviderName
	Identity() IdentityService
	CurrentUser() CurrentUser
}
