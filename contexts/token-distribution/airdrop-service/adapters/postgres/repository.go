package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"tokendrop/contexts/token-distribution/airdrop-service/domain/entities"
	"tokendrop/contexts/token-distribution/airdrop-service/domain/valueobjects"
	"tokendrop/contexts/token-distribution/airdrop-service/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ledgerConfigRowID is the primary key of the single ledger reference row.
const ledgerConfigRowID = "ledger"

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{db: db, logger: logger}
}

func (r *Repository) PutShare(ctx context.Context, allocation entities.ShareAllocation) error {
	row := shareAllocationModel{
		Participant: allocation.Participant.String(),
		Shares:      allocation.Shares.String(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "participant"}},
			DoUpdates: clause.AssignmentColumns([]string{"shares", "updated_at"}),
		}).
		Create(&row).Error; err != nil {
		return r.logError("airdrop_repo_put_share_failed", err,
			"participant", row.Participant,
		)
	}
	return nil
}

func (r *Repository) GetShare(ctx context.Context, participant valueobjects.Identity) (entities.ShareAllocation, bool, error) {
	var row shareAllocationModel
	err := r.db.WithContext(ctx).
		Where("participant = ?", participant.String()).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.ShareAllocation{}, false, nil
		}
		return entities.ShareAllocation{}, false, r.logError("airdrop_repo_get_share_failed", err,
			"participant", participant.String(),
		)
	}
	allocation, err := row.toEntity()
	if err != nil {
		return entities.ShareAllocation{}, false, err
	}
	return allocation, true, nil
}

func (r *Repository) ListShares(ctx context.Context, startIndex, limit int) ([]entities.ShareAllocation, error) {
	if limit <= 0 {
		limit = 100
	}
	if startIndex < 0 {
		startIndex = 0
	}
	var rows []shareAllocationModel
	if err := r.db.WithContext(ctx).
		Order("participant ASC").
		Offset(startIndex).
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("airdrop_repo_list_shares_failed", err,
			"start_index", startIndex,
		)
	}
	return shareRowsToEntities(rows)
}

func (r *Repository) SnapshotShares(ctx context.Context) ([]entities.ShareAllocation, error) {
	var rows []shareAllocationModel
	if err := r.db.WithContext(ctx).
		Order("participant ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("airdrop_repo_snapshot_shares_failed", err)
	}
	return shareRowsToEntities(rows)
}

func (r *Repository) DeleteShare(ctx context.Context, participant valueobjects.Identity) error {
	if err := r.db.WithContext(ctx).
		Where("participant = ?", participant.String()).
		Delete(&shareAllocationModel{}).Error; err != nil {
		return r.logError("airdrop_repo_delete_share_failed", err,
			"participant", participant.String(),
		)
	}
	return nil
}

func (r *Repository) PutToken(ctx context.Context, allocation entities.TokenAllocation) error {
	paidAt := allocation.PaidAt.UTC()
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}
	row := tokenAllocationModel{
		Participant: allocation.Participant.String(),
		Tokens:      allocation.Tokens.String(),
		PaidAt:      paidAt,
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "participant"}},
			DoUpdates: clause.AssignmentColumns([]string{"tokens", "paid_at"}),
		}).
		Create(&row).Error; err != nil {
		return r.logError("airdrop_repo_put_token_failed", err,
			"participant", row.Participant,
		)
	}
	return nil
}

func (r *Repository) GetToken(ctx context.Context, participant valueobjects.Identity) (entities.TokenAllocation, bool, error) {
	var row tokenAllocationModel
	err := r.db.WithContext(ctx).
		Where("participant = ?", participant.String()).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.TokenAllocation{}, false, nil
		}
		return entities.TokenAllocation{}, false, r.logError("airdrop_repo_get_token_failed", err,
			"participant", participant.String(),
		)
	}
	allocation, err := row.toEntity()
	if err != nil {
		return entities.TokenAllocation{}, false, err
	}
	return allocation, true, nil
}

func (r *Repository) ListTokens(ctx context.Context, startIndex, limit int) ([]entities.TokenAllocation, error) {
	if limit <= 0 {
		limit = 100
	}
	if startIndex < 0 {
		startIndex = 0
	}
	var rows []tokenAllocationModel
	if err := r.db.WithContext(ctx).
		Order("participant ASC").
		Offset(startIndex).
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("airdrop_repo_list_tokens_failed", err,
			"start_index", startIndex,
		)
	}
	allocations := make([]entities.TokenAllocation, 0, len(rows))
	for _, row := range rows {
		allocation, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		allocations = append(allocations, allocation)
	}
	return allocations, nil
}

func (r *Repository) AddInterrupted(ctx context.Context, record entities.InterruptedDistribution) error {
	row := interruptedDistributionModel{
		ID:          strings.TrimSpace(record.ID),
		RunID:       strings.TrimSpace(record.RunID),
		Participant: record.Participant.String(),
		Tokens:      record.Tokens.String(),
		Reason:      record.Reason,
		Attempts:    record.Attempts,
		RecordedAt:  record.RecordedAt.UTC(),
	}
	if row.RecordedAt.IsZero() {
		row.RecordedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			r.logWarn("airdrop_repo_interrupted_duplicate",
				"record_id", row.ID,
				"participant", row.Participant,
			)
			return nil
		}
		return r.logError("airdrop_repo_add_interrupted_failed", err,
			"record_id", row.ID,
			"participant", row.Participant,
		)
	}
	return nil
}

func (r *Repository) ListInterrupted(ctx context.Context) ([]entities.InterruptedDistribution, error) {
	var rows []interruptedDistributionModel
	if err := r.db.WithContext(ctx).
		Order("recorded_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("airdrop_repo_list_interrupted_failed", err)
	}
	records := make([]entities.InterruptedDistribution, 0, len(rows))
	for _, row := range rows {
		record, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (r *Repository) SetLedgerReference(ctx context.Context, ledger valueobjects.Identity) error {
	row := ledgerConfigModel{
		ID:        ledgerConfigRowID,
		Ledger:    ledger.String(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"ledger", "updated_at"}),
		}).
		Create(&row).Error; err != nil {
		return r.logError("airdrop_repo_set_ledger_failed", err,
			"ledger", row.Ledger,
		)
	}
	return nil
}

func (r *Repository) GetLedgerReference(ctx context.Context) (valueobjects.Identity, error) {
	var row ledgerConfigModel
	err := r.db.WithContext(ctx).
		Where("id = ?", ledgerConfigRowID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return valueobjects.Anonymous, nil
		}
		return valueobjects.Anonymous, r.logError("airdrop_repo_get_ledger_failed", err)
	}
	return valueobjects.Identity(row.Ledger), nil
}

func (r *Repository) RemoveAll(ctx context.Context) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&shareAllocationModel{}).Error; err != nil {
			return r.logError("airdrop_repo_reset_shares_failed", err)
		}
		if err := tx.Where("1 = 1").Delete(&tokenAllocationModel{}).Error; err != nil {
			return r.logError("airdrop_repo_reset_tokens_failed", err)
		}
		if err := tx.Where("1 = 1").Delete(&interruptedDistributionModel{}).Error; err != nil {
			return r.logError("airdrop_repo_reset_interrupted_failed", err)
		}
		if err := tx.Where("id = ?", ledgerConfigRowID).Delete(&ledgerConfigModel{}).Error; err != nil {
			return r.logError("airdrop_repo_reset_ledger_failed", err)
		}
		return nil
	})
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	row := airdropOutboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      envelope.Data,
		Status:       "pending",
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return r.logError("airdrop_repo_append_outbox_failed", err,
			"outbox_id", row.OutboxID,
			"event_type", row.EventType,
		)
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []airdropOutboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", "pending").
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("airdrop_repo_list_pending_outbox_failed", err)
	}
	messages := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return messages, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&airdropOutboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       "published",
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("airdrop_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	return nil
}

func (r *Repository) logError(event string, err error, args ...any) error {
	attrs := append([]any{
		"event", event,
		"module", "token-distribution/airdrop-service",
		"layer", "adapter",
		"error", err.Error(),
	}, args...)
	r.logger.Error("airdrop repository operation failed", attrs...)
	return err
}

func (r *Repository) logWarn(event string, args ...any) {
	attrs := append([]any{
		"event", event,
		"module", "token-distribution/airdrop-service",
		"layer", "adapter",
	}, args...)
	r.logger.Warn("airdrop repository anomaly", attrs...)
}

type shareAllocationModel struct {
	Participant string    `gorm:"column:participant;primaryKey"`
	Shares      string    `gorm:"column:shares;type:numeric"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (shareAllocationModel) TableName() string {
	return "share_allocations"
}

func (m shareAllocationModel) toEntity() (entities.ShareAllocation, error) {
	shares, err := valueobjects.ParseAmount(m.Shares)
	if err != nil {
		return entities.ShareAllocation{}, err
	}
	return entities.ShareAllocation{
		Participant: valueobjects.Identity(m.Participant),
		Shares:      shares,
	}, nil
}

type tokenAllocationModel struct {
	Participant string    `gorm:"column:participant;primaryKey"`
	Tokens      string    `gorm:"column:tokens;type:numeric"`
	PaidAt      time.Time `gorm:"column:paid_at"`
}

func (tokenAllocationModel) TableName() string {
	return "token_allocations"
}

func (m tokenAllocationModel) toEntity() (entities.TokenAllocation, error) {
	tokens, err := valueobjects.ParseAmount(m.Tokens)
	if err != nil {
		return entities.TokenAllocation{}, err
	}
	return entities.TokenAllocation{
		Participant: valueobjects.Identity(m.Participant),
		Tokens:      tokens,
		PaidAt:      m.PaidAt.UTC(),
	}, nil
}

type interruptedDistributionModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	RunID       string    `gorm:"column:run_id"`
	Participant string    `gorm:"column:participant"`
	Tokens      string    `gorm:"column:tokens;type:numeric"`
	Reason      string    `gorm:"column:reason"`
	Attempts    int       `gorm:"column:attempts"`
	RecordedAt  time.Time `gorm:"column:recorded_at"`
}

func (interruptedDistributionModel) TableName() string {
	return "interrupted_distributions"
}

func (m interruptedDistributionModel) toEntity() (entities.InterruptedDistribution, error) {
	tokens, err := valueobjects.ParseAmount(m.Tokens)
	if err != nil {
		return entities.InterruptedDistribution{}, err
	}
	return entities.InterruptedDistribution{
		ID:          m.ID,
		RunID:       m.RunID,
		Participant: valueobjects.Identity(m.Participant),
		Tokens:      tokens,
		Reason:      m.Reason,
		Attempts:    m.Attempts,
		RecordedAt:  m.RecordedAt.UTC(),
	}, nil
}

type ledgerConfigModel struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Ledger    string    `gorm:"column:ledger"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (ledgerConfigModel) TableName() string {
	return "ledger_config"
}

type airdropOutboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (airdropOutboxModel) TableName() string {
	return "airdrop_outbox"
}

func shareRowsToEntities(rows []shareAllocationModel) ([]entities.ShareAllocation, error) {
	allocations := make([]entities.ShareAllocation, 0, len(rows))
	for _, row := range rows {
		allocation, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		allocations = append(allocations, allocation)
	}
	return allocations, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ports.AllocationRepository = (*Repository)(nil)
var _ ports.OutboxWriter = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
