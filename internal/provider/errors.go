package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/avalon-platform/identity-service/internal/core/domain"
	"github.com/avalon-platform/identity-service/internal/repository"
)

// mapStoreErr translates repository and context failures into typed domain
// errors so callers can branch on kind. Domain errors pass through
// unchanged.
func mapStoreErr(err error, what string) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}

	switch {
	case errors.Is(err, repository.ErrNotFound):
		return domain.NotFoundf("%s not found", what)
	case errors.Is(err, repository.ErrDuplicate):
		return domain.WrapError(domain.KindAlreadyExists, fmt.Sprintf("%s already exists", what), err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.WrapError(domain.KindCanceled, "operation canceled", err)
	default:
		return domain.WrapError(domain.KindUnavailable, "identity store unavailable", err)
	}
}
