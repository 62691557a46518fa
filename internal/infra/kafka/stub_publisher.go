package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/avalon-platform/identity-service/internal/core/domain"
	"github.com/avalon-platform/identity-service/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for
// development environments without a broker.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) Publish(_ context.Context, events ...domain.Event) error {
	for _, event := range events {
		p.logger.Info("Stub event published",
			zap.String("event_type", event.EventType()),
			zap.String("aggregate_id", event.AggregateID()),
			zap.Any("payload", payloadFor(event)),
		)
	}
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
