package ports

import (
	"context"
	"time"

	"tokendrop/contexts/token-distribution/airdrop-service/domain/entities"
	"tokendrop/contexts/token-distribution/airdrop-service/domain/valueobjects"
)

// AllocationRepository owns the share, token and interrupted bookkeeping
// plus the single configured ledger reference. Authorization is enforced by
// the application layer, not by the repository.
type AllocationRepository interface {
	PutShare(ctx context.Context, allocation entities.ShareAllocation) error
	GetShare(ctx context.Context, participant valueobjects.Identity) (entities.ShareAllocation, bool, error)
	// ListShares pages ordered by participant. An out-of-range start index
	// yields an empty page, never an error.
	ListShares(ctx context.Context, startIndex, limit int) ([]entities.ShareAllocation, error)
	// SnapshotShares returns every share allocation in stable participant
	// order; a distribution run is computed from exactly one snapshot.
	SnapshotShares(ctx context.Context) ([]entities.ShareAllocation, error)
	DeleteShare(ctx context.Context, participant valueobjects.Identity) error

	PutToken(ctx context.Context, allocation entities.TokenAllocation) error
	GetToken(ctx context.Context, participant valueobjects.Identity) (entities.TokenAllocation, bool, error)
	ListTokens(ctx context.Context, startIndex, limit int) ([]entities.TokenAllocation, error)

	AddInterrupted(ctx context.Context, record entities.InterruptedDistribution) error
	ListInterrupted(ctx context.Context) ([]entities.InterruptedDistribution, error)

	SetLedgerReference(ctx context.Context, ledger valueobjects.Identity) error
	GetLedgerReference(ctx context.Context) (valueobjects.Identity, error)

	// RemoveAll clears shares, tokens, interrupted records and the ledger
	// reference. Idempotent.
	RemoveAll(ctx context.Context) error
}

// LedgerClient is the proxy to the external value-transfer service. Remote
// failures surface as opaque messages; callers never interpret them.
type LedgerClient interface {
	Transfer(ctx context.Context, ledger, destination valueobjects.Identity, amount valueobjects.Amount) error
	FeePerTransfer(ctx context.Context, ledger valueobjects.Identity) (valueobjects.Amount, error)
	BalanceOf(ctx context.Context, ledger, account valueobjects.Identity) (valueobjects.Amount, error)
}

// AuthorizationGate answers whether a caller is a controller of this
// service. Consulted before every mutation and every validate twin.
type AuthorizationGate interface {
	IsController(ctx context.Context, caller valueobjects.Identity) bool
}

// Clock abstracts current time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator abstracts UUID generation for run ids and outbox rows.
type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// EventEnvelope is the outbox payload appended alongside state changes.
type EventEnvelope struct {
	EventID       string
	EventType     string
	OccurredAt    time.Time
	SourceService string
	PartitionKey  string
	SchemaVersion int
	Data          []byte
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

// OutboxMessage is a pending outbox row read back by the relay worker.
type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

// EventPublisher delivers relayed outbox messages to the downstream bus.
type EventPublisher interface {
	Publish(ctx context.Context, message OutboxMessage) error
}
