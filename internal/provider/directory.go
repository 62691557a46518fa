package provider

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/avalon-platform/identity-service/internal/core/domain"
	"github.com/avalon-platform/identity-service/internal/core/port"
	"github.com/avalon-platform/identity-service/internal/repository"
	"github.com/avalon-platform/identity-service/internal/usecase"
)

// DirectoryProvider delegates authentication to an external directory and
// mirrors user records into the local store on first sight. It is largely
// read-through: user lookups fall back to the directory, while role and
// permission associations live locally and are cached in Redis.
type DirectoryProvider struct {
	identity    *directoryIdentityService
	currentUser *currentUser
}

// NewDirectoryProvider wires the directory-backed provider.
func NewDirectoryProvider(
	users port.UserRepository,
	roles port.RoleRepository,
	permissions port.PermissionRepository,
	tx port.Transactor,
	resolver *usecase.ResolverService,
	publisher port.EventPublisher,
	directory port.DirectoryClient,
	cache port.RolePermissionCache,
	logger *zap.Logger,
) *DirectoryProvider {
	identity := &directoryIdentityService{
		roleAdmin: newRoleAdmin(users, roles, permissions, tx, resolver, publisher, logger),
		users:     users,
		directory: directory,
		cache:     cache,
		logger:    logger,
	}
	return &DirectoryProvider{
		identity:    identity,
		currentUser: newCurrentUser(identity),
	}
}

// Name identifies the provider for diagnostics.
func (p *DirectoryProvider) Name() domain.ProviderName { return domain.ProviderDirectory }

// Identity returns the management capability.
func (p *DirectoryProvider) Identity() port.IdentityService { return p.identity }

// CurrentUser returns the authenticated-user capability.
func (p *DirectoryProvider) CurrentUser() port.CurrentUser { return p.currentUser }

type directoryIdentityService struct {
	*roleAdmin
	users     port.UserRepository
	directory port.DirectoryClient
	cache     port.RolePermissionCache
	logger    *zap.Logger
}

func (s *directoryIdentityService) GetUserByID(ctx context.Context, id domain.UserAccountID) (*domain.UserAccount, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err, "user")
	}
	return user, nil
}

func (s *directoryIdentityService) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, mapStoreErr(err, "user")
	}

	remote, err := s.directory.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, mapStoreErr(err, "user")
	}
	return s.mirror(ctx, remote)
}

func (s *directoryIdentityService) GetUserByEmail(ctx context.Context, email domain.Email) (*domain.UserAccount, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, mapStoreErr(err, "user")
	}

	remote, err := s.directory.GetUserByEmail(ctx, email.String())
	if err != nil {
		return nil, mapStoreErr(err, "user")
	}
	return s.mirror(ctx, remote)
}

// mirror persists a directory user into the local store so it gains a
// stable UserAccountID. A concurrent mirror of the same user loses the
// insert race and re-reads the winner's row.
func (s *directoryIdentityService) mirror(ctx context.Context, remote *port.DirectoryUser) (*domain.UserAccount, error) {
	if remote == nil {
		return nil, domain.NotFoundf("user not found")
	}

	email, err := domain.NewEmail(remote.Email)
	if err != nil {
		return nil, err
	}

	account, err := domain.NewUserAccount(remote.Username, email, domain.ProviderDirectory)
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			existing, lookupErr := s.users.GetByUsername(ctx, remote.Username)
			if lookupErr != nil {
				return nil, mapStoreErr(lookupErr, "user")
			}
			return existing, nil
		}
		return nil, mapStoreErr(err, "user")
	}

	s.logger.Info("mirrored directory user",
		zap.String("user_id", account.ID.String()),
		zap.String("username", account.Username),
	)
	return account, nil
}

// CreateUser mirrors the account into the local store. The directory owns
// authentication, so a password is rejected.
func (s *directoryIdentityService) CreateUser(ctx context.Context, account *domain.UserAccount, password string) (domain.UserAccountID, error) {
	if account == nil {
		return domain.UserAccountID{}, domain.Validationf("account is required")
	}
	if password != "" {
		return domain.UserAccountID{}, domain.Validationf("directory provider does not manage credentials")
	}

	if err := s.users.Create(ctx, account); err != nil {
		return domain.UserAccountID{}, mapStoreErr(err, "user")
	}

	s.dispatchEvents(ctx, account.Events())
	account.ClearEvents()
	return account.ID, nil
}

func (s *directoryIdentityService) UpdateUser(ctx context.Context, account *domain.UserAccount) error {
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

func (s *directoryIdentityService) DeleteUser(ctx context.Context, id domain.UserAccountID) error {
	if err := s.users.Delete(ctx, id); err != nil {
		return mapStoreErr(err, "user")
	}
	if err := s.cache.Invalidate(ctx, id.String()); err != nil {
		s.logger.Warn("invalidate association cache", zap.Error(err))
	}
	return nil
}

// AddUserToRole and RemoveUserFromRole keep the shared role admin behavior
// but invalidate the association cache so stale sets do not linger for the
// full TTL.
func (s *directoryIdentityService) AddUserToRole(ctx context.Context, userID domain.UserAccountID, roleName string) error {
	if err := s.roleAdmin.AddUserToRole(ctx, userID, roleName); err != nil {
		return err
	}
	s.invalidateCache(ctx, userID)
	return nil
}

func (s *directoryIdentityService) RemoveUserFromRole(ctx context.Context, userID domain.UserAccountID, roleName string) error {
	if err := s.roleAdmin.RemoveUserFromRole(ctx, userID, roleName); err != nil {
		return err
	}
	s.invalidateCache(ctx, userID)
	return nil
}

func (s *directoryIdentityService) invalidateCache(ctx context.Context, userID domain.UserAccountID) {
	if err := s.cache.Invalidate(ctx, userID.String()); err != nil {
		s.logger.Warn("invalidate association cache", zap.Error(err))
	}
}

// GetUserRoles serves from the Redis cache when possible; on a miss it
// reads the persisted assignments and repopulates the cache.
func (s *directoryIdentityService) GetUserRoles(ctx context.Context, userID domain.UserAccountID) ([]string, error) {
	if cached, hit, err := s.cache.GetRoles(ctx, userID.String()); err != nil {
		s.logger.Warn("read association cache", zap.Error(err))
	} else if hit {
		return cached, nil
	}

	roles, err := s.roleAdmin.GetUserRoles(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetRoles(ctx, userID.String(), roles); err != nil {
		s.logger.Warn("write association cache", zap.Error(err))
	}
	return roles, nil
}

// GetEffectivePermissions serves from the Redis cache when possible.
func (s *directoryIdentityService) GetEffectivePermissions(ctx context.Context, userID domain.UserAccountID) ([]string, error) {
	if cached, hit, err := s.cache.GetPermissions(ctx, userID.String()); err != nil {
		s.logger.Warn("read association cache", zap.Error(err))
	} else if hit {
		return cached, nil
	}

	permissions, err := s.roleAdmin.GetEffectivePermissions(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetPermissions(ctx, userID.String(), permissions); err != nil {
		s.logger.Warn("write association cache", zap.Error(err))
	}
	return permissions, nil
}

var _ port.IdentityService = (*directoryIdentityService)(nil)
