package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"tokendrop/contexts/token-distribution/airdrop-service/ports"
	sharedevents "tokendrop/internal/shared/events"
	sharedoutbox "tokendrop/internal/shared/outbox"
)

// Bus is the broker surface the publisher needs. The platform messaging
// adapter satisfies it; a nil bus degrades to log-only publishing.
type Bus interface {
	Publish(ctx context.Context, topic string, message ports.OutboxMessage) error
}

// Publisher emits relayed outbox rows as canonical envelopes, onto the bus
// when one is wired and always onto the log stream.
type Publisher struct {
	bus    Bus
	logger *slog.Logger
}

func NewPublisher(bus Bus, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{bus: bus, logger: logger}
}

func (p Publisher) Publish(ctx context.Context, message ports.OutboxMessage) error {
	row := sharedoutbox.Message{
		ID:        message.OutboxID,
		EventType: message.EventType,
		Payload:   message.Payload,
		Status:    "published",
	}
	envelope := sharedevents.Envelope{
		EventID:        row.ID,
		EventType:      row.EventType,
		SourceService:  "airdrop-service",
		OccurredAtUTC:  message.CreatedAt,
		EntityType:     "distribution",
		EntityID:       message.PartitionKey,
		PayloadVersion: 1,
		Payload:        json.RawMessage(row.Payload),
	}
	encoded, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	if p.bus != nil {
		if err := p.bus.Publish(ctx, message.EventType, message); err != nil {
			return err
		}
	}
	p.logger.Info("airdrop event published",
		"event", "airdrop_event_published",
		"module", "token-distribution/airdrop-service",
		"layer", "adapter",
		"event_id", envelope.EventID,
		"event_type", envelope.EventType,
		"envelope", string(encoded),
	)
	return nil
}

var _ ports.EventPublisher = (*Publisher)(nil)
