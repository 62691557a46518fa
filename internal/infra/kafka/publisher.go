package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/avalon-platform/identity-service/internal/core/domain"
	"github.com/avalon-platform/identity-service/internal/core/port"
	"github.com/avalon-platform/identity-service/internal/infra/config"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID     string           `json:"event_id"`
	EventType   string           `json:"event_type"`
	AggregateID string           `json:"aggregate_id"`
	Timestamp   time.Time        `json:"timestamp"`
	Version     string           `json:"version"`
	Payload     any              `json:"payload"`
	Metadata    envelopeMetadata `json:"metadata,omitempty"`
}

// Publish enqueues one message per event, keyed by aggregate identifier so
// per-aggregate ordering is preserved within a partition.
func (p *EventPublisher) Publish(ctx context.Context, events ...domain.Event) error {
	for _, event := range events {
		if err := p.publishOne(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (p *EventPublisher) publishOne(ctx context.Context, event domain.Event) error {
	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:     uuid.NewString(),
		EventType:   event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   time.Now().UTC(),
		Version:     domain.EventSchemaVersion,
		Payload:     payloadFor(event),
		Metadata:    metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(event.EventType()),
		Key:   sarama.StringEncoder(event.AggregateID()),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// payloadFor flattens a domain event into its wire payload. Events carry only
// identifiers and the changed fields; consumers re-query for current state.
func payloadFor(event domain.Event) any {
	switch e := event.(type) {
	case domain.RoleCreated:
		return struct {
			RoleID          string `json:"role_id"`
			Name            string `json:"name"`
			IsSystemDefined bool   `json:"is_system_defined"`
		}{e.RoleID.String(), e.Name, e.IsSystemDefined}

	case domain.RolePermissionAdded:
		return struct {
			RoleID       string `json:"role_id"`
			PermissionID string `json:"permission_id"`
		}{e.RoleID.String(), e.PermissionID.String()}

	case domain.RolePermissionRemoved:
		return struct {
			RoleID       string `json:"role_id"`
			PermissionID string `json:"permission_id"`
		}{e.RoleID.String(), e.PermissionID.String()}

	case domain.PermissionCreated:
		return struct {
			PermissionID string `json:"permission_id"`
			Name         string `json:"name"`
			Type         string `json:"permission_type"`
		}{e.PermissionID.String(), e.Name.String(), string(e.Type)}

	case domain.PermissionTypeChanged:
		return struct {
			PermissionID string `json:"permission_id"`
			Type         string `json:"permission_type"`
		}{e.PermissionID.String(), string(e.Type)}

	case domain.PermissionDescriptionChanged:
		return struct {
			PermissionID string `json:"permission_id"`
			Description  string `json:"description"`
		}{e.PermissionID.String(), e.Description}

	case domain.UserRoleAdded:
		return struct {
			UserID string `json:"user_id"`
			RoleID string `json:"role_id"`
		}{e.UserID.String(), e.RoleID.String()}

	case domain.UserRoleRemoved:
		return struct {
			UserID string `json:"user_id"`
			RoleID string `json:"role_id"`
		}{e.UserID.String(), e.RoleID.String()}

	default:
		return event
	}
}

var _ port.EventPublisher = (*EventPublisher)(nil)
