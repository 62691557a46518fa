package provider

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/avalon-platform/identity-service/internal/core/domain"
	"github.com/avalon-platform/identity-service/internal/core/port"
	"github.com/avalon-platform/identity-service/internal/infra/security"
	"github.com/avalon-platform/identity-service/internal/usecase"
)

// Deps carries everything a provider variant may need. The factory hands
// each variant only what it uses.
type Deps struct {
	Users       port.UserRepository
	Credentials port.CredentialRepository
	Roles       port.RoleRepository
	Permissions port.PermissionRepository
	Tx          port.Transactor
	Resolver    *usecase.ResolverService
	Publisher   port.EventPublisher
	Directory   port.DirectoryClient
	Cache       port.RolePermissionCache
	Passwords   *security.PasswordPolicy
	Logger      *zap.Logger
}

// ParseKind validates the configured provider selector. Exactly two values
// are recognized; anything else is a startup error.
func ParseKind(raw string) (domain.ProviderName, error) {
	switch domain.ProviderName(raw) {
	case domain.ProviderLocalCredential, domain.ProviderDirectory:
		return domain.ProviderName(raw), nil
	}
	return "", domain.Validationf("unknown identity provider %q (expected %q or %q)",
		raw, domain.ProviderLocalCredential, domain.ProviderDirectory)
}

var activeName atomic.Value

// ActiveProviderName reports which variant the factory selected, or the
// empty name before selection.
func ActiveProviderName() domain.ProviderName {
	if name, ok := activeName.Load().(domain.ProviderName); ok {
		return name
	}
	return ""
}

// New selects the provider variant backing both capability interfaces.
// Selection happens exactly once at process start; the choice is immutable
// for the life of the process and never re-evaluated per request.
func New(kind domain.ProviderName, deps Deps) (port.Provider, error) {
	p, err := build(kind, deps)
	if err != nil {
		return nil, err
	}
	activeName.Store(kind)
	return p, nil
}

func build(kind domain.ProviderName, deps Deps) (port.Provider, error) {
	if deps.Tx == nil {
		return nil, domain.Validationf("identity provider requires a store transactor")
	}
	switch kind {
	case domain.ProviderLocalCredential:
		if deps.Credentials == nil || deps.Passwords == nil {
			return nil, domain.Validationf("local-credential provider requires credential storage and a password policy")
		}
		return NewLocalProvider(
			deps.Users, deps.Credentials, deps.Roles, deps.Permissions, deps.Tx,
			deps.Resolver, deps.Publisher, deps.Passwords, deps.Logger,
		), nil
	case domain.ProviderDirectory:
		if deps.Directory == nil || deps.Cache == nil {
			return nil, domain.Validationf("directory provider requires a directory client and an association cache")
		}
		return NewDirectoryProvider(
			deps.Users, deps.Roles, deps.Permissions, deps.Tx,
			deps.Resolver, deps.Publisher, deps.Directory, deps.Cache, deps.Logger,
		), nil
	}
	return nil, domain.Validationf("unknown identity provider %q", kind)
}
