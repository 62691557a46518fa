package port

import (
	"context"

	"github.com/avalon-platform/identity-service/internal/core/domain"
)

// Principal carries the authenticated identity for a request. It is
// threaded through the context by the transport layer; the core never keeps
// a process-wide "current user".
type Principal struct {
	UserID   domain.UserAccountID
	Username string
	Email    domain.Email
}

type principalContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

// CurrentUser exposes the authenticated user's identity and authorization
// state. Implementations read the principal from the context; all queries
// are I/O-bound and return a typed unavailable failure on store outage
// rather than panicking.
type CurrentUser interface {
	// Principal returns the authenticated principal or nil when the
	// context carries no authentication.
	Principal(ctx context.Context) *Principal
	IsInRole(ctx context.Context, name string) (bool, error)
	GetRoles(ctx context.Context) ([]string, error)
	HasPermission(ctx context.Context, name string) (bool, error)
	GetPermissions(ctx context.Context) ([]string, error)
}
