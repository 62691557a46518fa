package port

import (
	"context"

	"github.com/avalon-platform/identity-service/internal/core/domain"
)

// EventPublisher delivers domain events to external consumers after the
// owning transaction commits. Delivery is at-least-once; consumers must be
// idempotent. Emission order matches mutation order within a single
// aggregate operation.
type EventPublisher interface {
	Publish(ctx context.Context, events ...domain.Event) error
}
