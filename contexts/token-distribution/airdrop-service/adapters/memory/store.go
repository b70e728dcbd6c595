package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"tokendrop/contexts/token-distribution/airdrop-service/domain/entities"
	"tokendrop/contexts/token-distribution/airdrop-service/domain/valueobjects"
	"tokendrop/contexts/token-distribution/airdrop-service/ports"

	"github.com/google/uuid"
)

type outboxRecord struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
	PublishedAt  *time.Time
}

// Store is the in-memory allocation repository used for tests and
// single-process runs. It also provides the clock, id generation and
// outbox ports, mirroring what the durable adapter offers.
type Store struct {
	mu sync.RWMutex

	ledger      valueobjects.Identity
	shares      map[valueobjects.Identity]entities.ShareAllocation
	tokens      map[valueobjects.Identity]entities.TokenAllocation
	interrupted []entities.InterruptedDistribution
	outbox      map[string]outboxRecord
}

func NewStore(seed []entities.ShareAllocation) *Store {
	shares := make(map[valueobjects.Identity]entities.ShareAllocation, len(seed))
	for _, allocation := range seed {
		shares[allocation.Participant] = allocation
	}
	return &Store{
		ledger: valueobjects.Anonymous,
		shares: shares,
		tokens: make(map[valueobjects.Identity]entities.TokenAllocation),
		outbox: make(map[string]outboxRecord),
	}
}

func (s *Store) PutShare(_ context.Context, allocation entities.ShareAllocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shares[allocation.Participant] = allocation
	return nil
}

func (s *Store) GetShare(_ context.Context, participant valueobjects.Identity) (entities.ShareAllocation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allocation, found := s.shares[participant]
	return allocation, found, nil
}

func (s *Store) ListShares(_ context.Context, startIndex, limit int) ([]entities.ShareAllocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return pageSlice(s.sortedShares(), startIndex, limit), nil
}

func (s *Store) SnapshotShares(_ context.Context) ([]entities.ShareAllocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sortedShares(), nil
}

func (s *Store) DeleteShare(_ context.Context, participant valueobjects.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.shares, participant)
	return nil
}

func (s *Store) PutToken(_ context.Context, allocation entities.TokenAllocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[allocation.Participant] = allocation
	return nil
}

func (s *Store) GetToken(_ context.Context, participant valueobjects.Identity) (entities.TokenAllocation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allocation, found := s.tokens[participant]
	return allocation, found, nil
}

func (s *Store) ListTokens(_ context.Context, startIndex, limit int) ([]entities.TokenAllocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allocations := make([]entities.TokenAllocation, 0, len(s.tokens))
	for _, allocation := range s.tokens {
		allocations = append(allocations, allocation)
	}
	sort.Slice(allocations, func(i, j int) bool {
		return allocations[i].Participant < allocations[j].Participant
	})
	return pageSlice(allocations, startIndex, limit), nil
}

func (s *Store) AddInterrupted(_ context.Context, record entities.InterruptedDistribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.interrupted = append(s.interrupted, record)
	return nil
}

func (s *Store) ListInterrupted(_ context.Context) ([]entities.InterruptedDistribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]entities.InterruptedDistribution, len(s.interrupted))
	copy(records, s.interrupted)
	return records, nil
}

func (s *Store) SetLedgerReference(_ context.Context, ledger valueobjects.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledger = ledger
	return nil
}

func (s *Store) GetLedgerReference(_ context.Context) (valueobjects.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.ledger, nil
}

func (s *Store) RemoveAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledger = valueobjects.Anonymous
	s.shares = make(map[valueobjects.Identity]entities.ShareAllocation)
	s.tokens = make(map[valueobjects.Identity]entities.TokenAllocation)
	s.interrupted = nil
	return nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	if _, exists := s.outbox[outboxID]; exists {
		return nil
	}
	s.outbox[outboxID] = outboxRecord{
		OutboxID:     outboxID,
		EventType:    envelope.EventType,
		PartitionKey: envelope.PartitionKey,
		Payload:      append([]byte(nil), envelope.Data...),
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows := make([]outboxRecord, 0, len(s.outbox))
	for _, row := range s.outbox {
		if row.PublishedAt == nil {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	messages := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt,
		})
	}
	return messages, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return nil
	}
	timestamp := publishedAt.UTC()
	row.PublishedAt = &timestamp
	s.outbox[outboxID] = row
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (s *Store) sortedShares() []entities.ShareAllocation {
	allocations := make([]entities.ShareAllocation, 0, len(s.shares))
	for _, allocation := range s.shares {
		allocations = append(allocations, allocation)
	}
	sort.Slice(allocations, func(i, j int) bool {
		return allocations[i].Participant < allocations[j].Participant
	})
	return allocations
}

func pageSlice[T any](items []T, startIndex, limit int) []T {
	if startIndex < 0 {
		startIndex = 0
	}
	if limit <= 0 {
		limit = 100
	}
	if startIndex >= len(items) {
		return []T{}
	}
	end := startIndex + limit
	if end > len(items) {
		end = len(items)
	}
	return items[startIndex:end]
}

var _ ports.AllocationRepository = (*Store)(nil)
var _ ports.Clock = (*Store)(nil)
var _ ports.IDGenerator = (*Store)(nil)
var _ ports.OutboxWriter = (*Store)(nil)
var _ ports.OutboxRepository = (*Store)(nil)
