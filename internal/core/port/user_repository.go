package port

import (
	"context"

	"github.com/avalon-platform/identity-service/internal/core/domain"
)

// UserRepository exposes persistence behavior for user accounts.
type UserRepository interface {
	Create(ctx context.Context, user *domain.UserAccount) error
	GetByID(ctx context.Context, id domain.UserAccountID) (*domain.UserAccount, error)
	GetByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	GetByEmail(ctx context.Context, email domain.Email) (*domain.UserAccount, error)
	Update(ctx context.Context, user *domain.UserAccount) error
	Delete(ctx context.Context, id domain.UserAccountID) error

	// AssignRole inserts the user/role pair; a duplicate insert is a safe
	// no-op and reports false.
	AssignRole(ctx context.Context, userID domain.UserAccountID, roleID domain.RoleID) (bool, error)
	// RevokeRole deletes the user/role pair; deleting an absent pair is a
	// safe no-op and reports false.
	RevokeRole(ctx context.Context, userID domain.UserAccountID, roleID domain.RoleID) (bool, error)
	ListRoleIDs(ctx context.Context, userID domain.UserAccountID) ([]domain.RoleID, error)
}

// CredentialRepository stores password material for the local-credential
// provider. The directory provider never touches it.
type CredentialRepository interface {
	SetPasswordHash(ctx context.Context, userID domain.UserAccountID, hash string) error
	GetPasswordHash(ctx context.Context, userID domain.UserAccountID) (string, error)
	DeletePasswordHash(ctx context.Context, userID domain.UserAccountID) error
}
