package provider

import (
	"context"

	"github.com/avalon-platform/identity-service/internal/core/domain"
	"github.com/avalon-platform/identity-service/internal/core/port"
	"github.com/avalon-platform/identity-service/internal/infra/telemetry"
)

// Instrument wraps a provider so every identity operation increments the
// operations counter with its outcome kind.
func Instrument(inner port.Provider, metrics *telemetry.IdentityMetrics) port.Provider {
	if metrics == nil {
		return inner
	}
	return &instrumentedProvider{
		inner: inner,
		identity: &instrumentedIdentity{
			inner:    inner.Identity(),
			provider: string(inner.Name()),
			metrics:  metrics,
		},
	}
}

type instrumentedProvider struct {
	inner    port.Provider
	identity *instrumentedIdentity
}

func (p *instrumentedProvider) Name() domain.ProviderName      { return p.inner.Name() }
func (p *instrumentedProvider) Identity() port.IdentityService { return p.identity }
func (p *instrumentedProvider) CurrentUser() port.CurrentUser  { return p.inner.CurrentUser() }

type instrumentedIdentity struct {
	inner    port.IdentityService
	provider string
	metrics  *telemetry.IdentityMetrics
}

func (s *instrumentedIdentity) observe(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(domain.KindOf(err))
	}
	s.metrics.Operations.WithLabelValues(s.provider, operation, outcome).Inc()
}

func (s *instrumentedIdentity) GetUserByID(ctx context.Context, id domain.UserAccountID) (*domain.UserAccount, error) {
	user, err := s.inner.GetUserByID(ctx, id)
	s.observe("get_user_by_id", err)
	return user, err
}

func (s *instrumentedIdentity) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	user, err := s.inner.GetUserByUsername(ctx, username)
	s.observe("get_user_by_username", err)
	return user, err
}

func (s *instrumentedIdentity) GetUserByEmail(ctx context.Context, email domain.Email) (*domain.UserAccount, error) {
	user, err := s.inner.GetUserByEmail(ctx, email)
	s.observe("get_user_by_email", err)
	return user, err
}

func (s *instrumentedIdentity) CreateUser(ctx context.Context, account *domain.UserAccount, password string) (domain.UserAccountID, error) {
	id, err := s.inner.CreateUser(ctx, account, password)
	s.observe("create_user", err)
	return id, err
}

func (s *instrumentedIdentity) UpdateUser(ctx context.Context, account *domain.UserAccount) error {
	err := s.inner.UpdateUser(ctx, account)
	s.observe("update_user", err)
	return err
}

func (s *instrumentedIdentity) DeleteUser(ctx context.Context, id domain.UserAccountID) error {
	err := s.inner.DeleteUser(ctx, id)
	s.observe("delete_user", err)
	return err
}

func (s *instrumentedIdentity) AddUserToRole(ctx context.Context, userID domain.UserAccountID, roleName string) error {
	err := s.inner.AddUserToRole(ctx, userID, roleName)
	s.observe("add_user_to_role", err)
	return err
}

func (s *instrumentedIdentity) RemoveUserFromRole(ctx context.Context, userID domain.UserAccountID, roleName string) error {
	err := s.inner.RemoveUserFromRole(ctx, userID, roleName)
	s.observe("remove_user_from_role", err)
	return err
}

func (s *instrumentedIdentity) GetUserRoles(ctx context.Context, userID domain.UserAccountID) ([]string, error) {
	roles, err := s.inner.GetUserRoles(ctx, userID)
	s.observe("get_user_roles", err)
	return roles, err
}

func (s *instrumentedIdentity) GetRoles(ctx context.Context) ([]port.RoleView, error) {
	roles, err := s.inner.GetRoles(ctx)
	s.observe("get_roles", err)
	return roles, err
}

func (s *instrumentedIdentity) CreateRole(ctx context.Context, input port.RoleInput) (domain.RoleID, error) {
	id, err := s.inner.CreateRole(ctx, input)
	s.observe("create_role", err)
	return id, err
}

func (s *instrumentedIdentity) UpdateRole(ctx context.Context, roleID domain.RoleID, input port.RoleInput) error {
	err := s.inner.UpdateRole(ctx, roleID, input)
	s.observe("update_role", err)
	return err
}

func (s *instrumentedIdentity) DeleteRole(ctx context.Context, roleID domain.RoleID) error {
	err := s.inner.DeleteRole(ctx, roleID)
	s.observe("delete_role", err)
	return err
}

func (s *instrumentedIdentity) GetPermissionsForRole(ctx context.Context, roleName string) ([]string, error) {
	names, err := s.inner.GetPermissionsForRole(ctx, roleName)
	s.observe("get_permissions_for_role", err)
	return names, err
}

func (s *instrumentedIdentity) GetEffectivePermissions(ctx context.Context, userID domain.UserAccountID) ([]string, error) {
	names, err := s.inner.GetEffectivePermissions(ctx, userID)
	s.observe("get_effective_permissions", err)
	return names, err
}

var _ port.IdentityService = (*instrumentedIdentity)(nil)
