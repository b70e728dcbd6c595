package workers

import (
	"context"
	"log/slog"
	"time"

	application "tokendrop/contexts/token-distribution/airdrop-service/application"
	"tokendrop/contexts/token-distribution/airdrop-service/ports"
)

// OutboxRelay drains pending outbox rows and publishes them downstream.
// Rows that fail to publish stay pending and are retried on the next cycle.
type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	BatchSize int
	Logger    *slog.Logger
}

func (r OutboxRelay) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}

	pending, err := r.Outbox.ListPendingOutbox(ctx, limit)
	if err != nil {
		logger.Error("airdrop outbox list failed",
			"event", "airdrop_outbox_list_failed",
			"module", "token-distribution/airdrop-service",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	var firstErr error
	for _, message := range pending {
		if err := r.Publisher.Publish(ctx, message); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			logger.Error("airdrop outbox publish failed",
				"event", "airdrop_outbox_publish_failed",
				"module", "token-distribution/airdrop-service",
				"layer", "worker",
				"outbox_id", message.OutboxID,
				"event_type", message.EventType,
				"error", err.Error(),
			)
			continue
		}
		if err := r.Outbox.MarkOutboxPublished(ctx, message.OutboxID, r.now()); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			logger.Error("airdrop outbox mark published failed",
				"event", "airdrop_outbox_mark_published_failed",
				"module", "token-distribution/airdrop-service",
				"layer", "worker",
				"outbox_id", message.OutboxID,
				"error", err.Error(),
			)
		}
	}
	if len(pending) > 0 {
		logger.Info("airdrop outbox relay cycle completed",
			"event", "airdrop_outbox_relay_cycle_completed",
			"module", "token-distribution/airdrop-service",
			"layer", "worker",
			"pending_count", len(pending),
		)
	}
	return firstErr
}

func (r OutboxRelay) now() time.Time {
	if r.Clock == nil {
		return time.Now().UTC()
	}
	return r.Clock.Now().UTC()
}
