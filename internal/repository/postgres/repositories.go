package postgres

import (
	"context"
	"fmt"

	"github.com/avalon-platform/identity-service/internal/core/port"
)

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	pool pgPool

	Users       *UserRepository
	Credentials *CredentialRepository
	Roles       *RoleRepository
	Permissions *PermissionRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool pgPool) *Repositories {
	return &Repositories{
		pool:        pool,
		Users:       NewUserRepository(pool),
		Credentials: NewCredentialRepository(pool),
		Roles:       NewRoleRepository(pool),
		Permissions: NewPermissionRepository(pool),
	}
}

// WithinTx runs fn with repository clones bound to one transaction. An error
// from fn rolls back every write; commit happens only when fn succeeds.
func (r *Repositories) WithinTx(ctx context.Context, fn func(repos port.RepositorySet) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(port.RepositorySet{
		Users:       r.Users.WithTx(tx),
		Credentials: r.Credentials.WithTx(tx),
		Roles:       r.Roles.WithTx(tx),
		Permissions: r.Permissions.WithTx(tx),
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

var _ port.Transactor = (*Repositories)(nil)
