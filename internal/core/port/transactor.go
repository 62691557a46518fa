package port

import "context"

// RepositorySet groups the repositories bound to a single transaction.
type RepositorySet struct {
	Users       UserRepository
	Credentials CredentialRepository
	Roles       RoleRepository
	Permissions PermissionRepository
}

// Transactor runs fn inside one store transaction: every write fn performs
// commits together or not at all. The repositories handed to fn are only
// valid for the duration of the call.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(repos RepositorySet) error) error
}
