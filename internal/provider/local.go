package provider

import (
	"context"

	"go.uber.org/zap"

	"github.com/avalon-platform/identity-service/internal/core/domain"
	"github.com/avalon-platform/identity-service/internal/core/port"
	"github.com/avalon-platform/identity-service/internal/infra/security"
	"github.com/avalon-platform/identity-service/internal/usecase"
)

// LocalProvider is the identity back-end that owns its own user and
// credential store. It has full CRUD authority over users, roles, and
// permissions in the local database.
type LocalProvider struct {
	identity    *localIdentityService
	currentUser *currentUser
}

// NewLocalProvider wires the local-credential provider.
func NewLocalProvider(
	users port.UserRepository,
	credentials port.CredentialRepository,
	roles port.RoleRepository,
	permissions port.PermissionRepository,
	tx port.Transactor,
	resolver *usecase.ResolverService,
	publisher port.EventPublisher,
	passwords *security.PasswordPolicy,
	logger *zap.Logger,
) *LocalProvider {
	identity := &localIdentityService{
		roleAdmin: newRoleAdmin(users, roles, permissions, tx, resolver, publisher, logger),
		users:     users,
		passwords: passwords,
	}
	return &LocalProvider{
		identity:    identity,
		currentUser: newCurrentUser(identity),
	}
}

// Name identifies the provider for diagnostics.
func (p *LocalProvider) Name() domain.ProviderName { return domain.ProviderLocalCredential }

// Identity returns the management capability.
func (p *LocalProvider) Identity() port.IdentityService { return p.identity }

// CurrentUser returns the authenticated-user capability.
func (p *LocalProvider) CurrentUser() port.CurrentUser { return p.currentUser }

type localIdentityService struct {
	*roleAdmin
	users     port.UserRepository
	passwords *security.PasswordPolicy
}

func (s *localIdentityService) GetUserByID(ctx context.Context, id domain.UserAccountID) (*domain.UserAccount, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err, "user")
	}
	return user, nil
}

func (s *localIdentityService) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, mapStoreErr(err, "user")
	}
	return user, nil
}

func (s *localIdentityService) GetUserByEmail(ctx context.Context, email domain.Email) (*domain.UserAccount, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, mapStoreErr(err, "user")
	}
	return user, nil
}

// CreateUser stores the account and, when a password is supplied, validates
// it against the configured policy and stores its argon2id hash.
func (s *localIdentityService) CreateUser(ctx context.Context, account *domain.UserAccount, password string) (domain.UserAccountID, error) {
	if account == nil {
		return domain.UserAccountID{}, domain.Validationf("account is required")
	}

	var hash string
	if password != "" {
		if err := s.passwords.Validate(password, account.Username, account.Email.String()); err != nil {
			return domain.UserAccountID{}, err
		}
		var err error
		hash, err = security.HashPassword(password)
		if err != nil {
			return domain.UserAccountID{}, domain.WrapError(domain.KindUnavailable, "hash password", err)
		}
	}

	// The account row and its credential commit or roll back together.
	err := s.tx.WithinTx(ctx, func(repos port.RepositorySet) error {
		if err := repos.Users.Create(ctx, account); err != nil {
			return mapStoreErr(err, "user")
		}
		if hash != "" {
			if err := repos.Credentials.SetPasswordHash(ctx, account.ID, hash); err != nil {
				return mapStoreErr(err, "credential")
			}
		}
		return nil
	})
	if err != nil {
		return domain.UserAccountID{}, err
	}

	s.dispatchEvents(ctx, account.Events())
	account.ClearEvents()
	return account.ID, nil
}

func (s *localIdentityService) UpdateUser(ctx context.Context, account *domain.UserAccount) error {
	if account == nil {
		return domain.Validationf("account is required")
	}
	if err := s.users.Update(ctx, account); err != nil {
		return mapStoreErr(err, "user")
	}
	s.dispatchEvents(ctx, account.Events())
	account.ClearEvents()
	return nil
}

func (s *localIdentityService) DeleteUser(ctx context.Context, id domain.UserAccountID) error {
	return s.tx.WithinTx(ctx, func(repos port.RepositorySet) error {
		if err := repos.Credentials.DeletePasswordHash(ctx, id); err != nil {
			return mapStoreErr(err, "credential")
		}
		if err := repos.Users.Delete(ctx, id); err != nil {
			return mapStoreErr(err, "user")
		}
		return nil
	})
}

var _ port.IdentityService = (*localIdentityService)(nil)
