package commands

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	application "tokendrop/contexts/token-distribution/airdrop-service/application"
	"tokendrop/contexts/token-distribution/airdrop-service/domain/entities"
	domainerrors "tokendrop/contexts/token-distribution/airdrop-service/domain/errors"
	"tokendrop/contexts/token-distribution/airdrop-service/domain/valueobjects"
	"tokendrop/contexts/token-distribution/airdrop-service/ports"
)

// transferAttempts bounds the per-participant transfer loop: one initial
// attempt plus two retries. Every remote failure is retried identically up
// to this bound and then parked; the engine never classifies failures.
const transferAttempts = 3

type SetLedgerReferenceCommand struct {
	Caller valueobjects.Identity
	Ledger valueobjects.Identity
}

type AddAllocationsCommand struct {
	Caller      valueobjects.Identity
	Allocations []entities.ShareAllocation
}

type ResetCommand struct {
	Caller valueobjects.Identity
}

type DistributeCommand struct {
	Caller valueobjects.Identity
}

type UseCase struct {
	Repository ports.AllocationRepository
	Ledger     ports.LedgerClient
	Gate       ports.AuthorizationGate
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Outbox     ports.OutboxWriter
	// TreasuryAccount is the service's own ledger account, the one debited
	// by transfers and checked for solvency before a run.
	TreasuryAccount valueobjects.Identity
	Logger          *slog.Logger

	// mu serializes the mutating surface. A reset can only run before or
	// after a distribution run, never inside one.
	mu sync.Mutex
}

func (uc *UseCase) SetLedgerReference(ctx context.Context, cmd SetLedgerReferenceCommand) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if err := uc.checkSetLedgerReference(ctx, cmd); err != nil {
		return err
	}
	if err := uc.Repository.SetLedgerReference(ctx, cmd.Ledger); err != nil {
		application.ResolveLogger(uc.Logger).Error("airdrop ledger reference update failed",
			"event", "airdrop_ledger_reference_update_failed",
			"module", "token-distribution/airdrop-service",
			"layer", "application",
			"ledger", cmd.Ledger.String(),
			"error", err.Error(),
		)
		return err
	}
	application.ResolveLogger(uc.Logger).Info("airdrop ledger reference set",
		"event", "airdrop_ledger_reference_set",
		"module", "token-distribution/airdrop-service",
		"layer", "application",
		"ledger", cmd.Ledger.String(),
	)
	return nil
}

// ValidateSetLedgerReference re-checks every precondition of
// SetLedgerReference without mutating state.
func (uc *UseCase) ValidateSetLedgerReference(ctx context.Context, cmd SetLedgerReferenceCommand) error {
	return uc.checkSetLedgerReference(ctx, cmd)
}

func (uc *UseCase) checkSetLedgerReference(ctx context.Context, cmd SetLedgerReferenceCommand) error {
	if err := uc.authorize(ctx, cmd.Caller, "set_ledger_reference"); err != nil {
		return err
	}
	if cmd.Ledger.IsAnonymous() {
		application.ResolveLogger(uc.Logger).Warn("airdrop ledger reference rejected",
			"event", "airdrop_ledger_reference_rejected",
			"module", "token-distribution/airdrop-service",
			"layer", "application",
		)
		return domainerrors.ErrInvalidAllocationInput
	}
	return nil
}

func (uc *UseCase) AddAllocations(ctx context.Context, cmd AddAllocationsCommand) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if err := uc.checkAddAllocations(ctx, cmd); err != nil {
		return err
	}
	for _, allocation := range cmd.Allocations {
		if err := uc.Repository.PutShare(ctx, allocation); err != nil {
			application.ResolveLogger(uc.Logger).Error("airdrop share upsert failed",
				"event", "airdrop_share_upsert_failed",
				"module", "token-distribution/airdrop-service",
				"layer", "application",
				"participant", allocation.Participant.String(),
				"error", err.Error(),
			)
			return err
		}
	}
	uc.appendOutbox(ctx, "airdrop.allocations_added", "allocations", map[string]any{
		"count": len(cmd.Allocations),
	})
	application.ResolveLogger(uc.Logger).Info("airdrop allocations added",
		"event", "airdrop_allocations_added",
		"module", "token-distribution/airdrop-service",
		"layer", "application",
		"count", len(cmd.Allocations),
	)
	return nil
}

// ValidateAddAllocations re-checks every precondition of AddAllocations
// without mutating state.
func (uc *UseCase) ValidateAddAllocations(ctx context.Context, cmd AddAllocationsCommand) error {
	return uc.checkAddAllocations(ctx, cmd)
}

func (uc *UseCase) checkAddAllocations(ctx context.Context, cmd AddAllocationsCommand) error {
	if err := uc.authorize(ctx, cmd.Caller, "add_allocations"); err != nil {
		return err
	}
	logger := application.ResolveLogger(uc.Logger)
	if len(cmd.Allocations) == 0 {
		logger.Warn("airdrop allocations rejected",
			"event", "airdrop_allocations_rejected",
			"module", "token-distribution/airdrop-service",
			"layer", "application",
			"reason", "empty batch",
		)
		return domainerrors.ErrInvalidAllocationInput
	}
	// The batch is atomic: one invalid entry rejects the whole call before
	// any upsert happens.
	for _, allocation := range cmd.Allocations {
		if allocation.Participant.IsAnonymous() || allocation.Shares.IsZero() {
			logger.Warn("airdrop allocations rejected",
				"event", "airdrop_allocations_rejected",
				"module", "token-distribution/airdrop-service",
				"layer", "application",
				"participant", allocation.Participant.String(),
				"reason", "anonymous participant or zero shares",
			)
			return domainerrors.ErrInvalidAllocationInput
		}
	}
	return nil
}

func (uc *UseCase) Reset(ctx context.Context, cmd ResetCommand) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if err := uc.authorize(ctx, cmd.Caller, "reset"); err != nil {
		return err
	}
	if err := uc.Repository.RemoveAll(ctx); err != nil {
		application.ResolveLogger(uc.Logger).Error("airdrop reset failed",
			"event", "airdrop_reset_failed",
			"module", "token-distribution/airdrop-service",
			"layer", "application",
			"error", err.Error(),
		)
		return err
	}
	uc.appendOutbox(ctx, "airdrop.state_reset", "state", map[string]any{})
	application.ResolveLogger(uc.Logger).Info("airdrop state reset",
		"event", "airdrop_state_reset",
		"module", "token-distribution/airdrop-service",
		"layer", "application",
	)
	return nil
}

// ValidateReset re-checks the Reset preconditions without mutating state.
func (uc *UseCase) ValidateReset(ctx context.Context, cmd ResetCommand) error {
	return uc.authorize(ctx, cmd.Caller, "reset")
}

// Distribute computes the payout schedule from the current share snapshot
// and drives the ledger through it. A participant whose transfer exhausts
// its attempts is parked as an interrupted distribution; the run still
// completes and reports overall success.
func (uc *UseCase) Distribute(ctx context.Context, cmd DistributeCommand) (entities.DistributionRun, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	logger := application.ResolveLogger(uc.Logger)
	plan, err := uc.planDistribution(ctx, cmd.Caller)
	if err != nil {
		return entities.DistributionRun{}, err
	}

	runID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		logger.Error("airdrop run id generation failed",
			"event", "airdrop_run_id_generation_failed",
			"module", "token-distribution/airdrop-service",
			"layer", "application",
			"error", err.Error(),
		)
		return entities.DistributionRun{}, err
	}

	run := entities.DistributionRun{
		RunID:          runID,
		TokensPerShare: plan.tokensPerShare,
		TotalFee:       plan.totalFee,
		Payouts:        make([]entities.PayoutResult, 0, len(plan.snapshot)),
	}
	for _, share := range plan.snapshot {
		payout := plan.tokensPerShare.Mul(share.Shares)
		transferErr := uc.transferWithRetry(ctx, plan.ledger, share.Participant, payout)

		// The share is consumed on attempt, regardless of outcome; a
		// participant is never eligible for a second run. Recovery for
		// parked entries happens out-of-band.
		if err := uc.Repository.DeleteShare(ctx, share.Participant); err != nil {
			logger.Error("airdrop share consume failed",
				"event", "airdrop_share_consume_failed",
				"module", "token-distribution/airdrop-service",
				"layer", "application",
				"run_id", runID,
				"participant", share.Participant.String(),
				"error", err.Error(),
			)
			return entities.DistributionRun{}, err
		}

		if transferErr == nil {
			if err := uc.Repository.PutToken(ctx, entities.TokenAllocation{
				Participant: share.Participant,
				Tokens:      payout,
				PaidAt:      uc.now(),
			}); err != nil {
				logger.Error("airdrop token allocation record failed",
					"event", "airdrop_token_allocation_record_failed",
					"module", "token-distribution/airdrop-service",
					"layer", "application",
					"run_id", runID,
					"participant", share.Participant.String(),
					"error", err.Error(),
				)
				return entities.DistributionRun{}, err
			}
			run.PaidCount++
			run.Payouts = append(run.Payouts, entities.PayoutResult{
				Participant: share.Participant,
				Tokens:      payout,
				Outcome:     entities.PayoutOutcomePaid,
			})
			continue
		}

		recordID, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return entities.DistributionRun{}, err
		}
		record := entities.InterruptedDistribution{
			ID:          recordID,
			RunID:       runID,
			Participant: share.Participant,
			Tokens:      payout,
			Reason:      transferErr.Error(),
			Attempts:    transferAttempts,
			RecordedAt:  uc.now(),
		}
		if err := uc.Repository.AddInterrupted(ctx, record); err != nil {
			logger.Error("airdrop interrupted record failed",
				"event", "airdrop_interrupted_record_failed",
				"module", "token-distribution/airdrop-service",
				"layer", "application",
				"run_id", runID,
				"participant", share.Participant.String(),
				"error", err.Error(),
			)
			return entities.DistributionRun{}, err
		}
		uc.appendOutbox(ctx, "airdrop.transfer_interrupted", share.Participant.String(), map[string]any{
			"run_id":      runID,
			"participant": share.Participant.String(),
			"tokens":      payout.String(),
			"reason":      transferErr.Error(),
		})
		logger.Warn("airdrop transfer parked after retries",
			"event", "airdrop_transfer_parked",
			"module", "token-distribution/airdrop-service",
			"layer", "application",
			"run_id", runID,
			"participant", share.Participant.String(),
			"tokens", payout.String(),
			"error", transferErr.Error(),
		)
		run.InterruptedCount++
		run.Payouts = append(run.Payouts, entities.PayoutResult{
			Participant: share.Participant,
			Tokens:      payout,
			Outcome:     entities.PayoutOutcomeInterrupted,
			Reason:      transferErr.Error(),
		})
	}

	run.CompletedAt = uc.now()
	uc.appendOutbox(ctx, "airdrop.distribution_completed", runID, map[string]any{
		"run_id":            runID,
		"tokens_per_share":  run.TokensPerShare.String(),
		"paid_count":        run.PaidCount,
		"interrupted_count": run.InterruptedCount,
	})
	logger.Info("airdrop distribution completed",
		"event", "airdrop_distribution_completed",
		"module", "token-distribution/airdrop-service",
		"layer", "application",
		"run_id", runID,
		"tokens_per_share", run.TokensPerShare.String(),
		"paid_count", run.PaidCount,
		"interrupted_count", run.InterruptedCount,
	)
	return run, nil
}

// ValidateDistribute performs the full distribution feasibility check
// without consuming any share or issuing any transfer. Its accept/reject
// decision matches what Distribute would decide before transferring.
func (uc *UseCase) ValidateDistribute(ctx context.Context, cmd DistributeCommand) error {
	_, err := uc.planDistribution(ctx, cmd.Caller)
	return err
}

type payoutPlan struct {
	ledger         valueobjects.Identity
	snapshot       []entities.ShareAllocation
	fee            valueobjects.Amount
	totalFee       valueobjects.Amount
	tokensPerShare valueobjects.Amount
}

// planDistribution is the single source of the payout schedule. Both the
// validate twin and the mutating call derive their decision from it, so the
// two can never diverge for the same state and input.
func (uc *UseCase) planDistribution(ctx context.Context, caller valueobjects.Identity) (payoutPlan, error) {
	logger := application.ResolveLogger(uc.Logger)
	if err := uc.authorize(ctx, caller, "distribute"); err != nil {
		return payoutPlan{}, err
	}

	ledger, err := uc.Repository.GetLedgerReference(ctx)
	if err != nil {
		return payoutPlan{}, err
	}
	if ledger.IsAnonymous() {
		logger.Warn("airdrop distribution rejected",
			"event", "airdrop_distribution_rejected",
			"module", "token-distribution/airdrop-service",
			"layer", "application",
			"reason", "ledger reference not configured",
		)
		return payoutPlan{}, domainerrors.ErrLedgerNotConfigured
	}

	snapshot, err := uc.Repository.SnapshotShares(ctx)
	if err != nil {
		return payoutPlan{}, err
	}
	if len(snapshot) == 0 {
		return payoutPlan{}, domainerrors.ErrEmptyAllocationList
	}

	shareSum := valueobjects.ZeroAmount()
	for _, share := range snapshot {
		shareSum = shareSum.Add(share.Shares)
	}
	// Unreachable when allocations go through AddAllocations input checks;
	// fail closed instead of dividing by zero.
	if shareSum.IsZero() {
		return payoutPlan{}, domainerrors.ErrZeroShareSum
	}

	fee, err := uc.Ledger.FeePerTransfer(ctx, ledger)
	if err != nil {
		return payoutPlan{}, err
	}
	balance, err := uc.Ledger.BalanceOf(ctx, ledger, uc.TreasuryAccount)
	if err != nil {
		return payoutPlan{}, err
	}

	totalFee := fee.MulUint64(uint64(len(snapshot)))
	if totalFee.Cmp(balance) > 0 {
		logger.Warn("airdrop distribution rejected",
			"event", "airdrop_distribution_rejected",
			"module", "token-distribution/airdrop-service",
			"layer", "application",
			"reason", "balance below aggregate fees",
			"balance", balance.String(),
			"total_fee", totalFee.String(),
		)
		return payoutPlan{}, domainerrors.ErrInsufficientBalance
	}

	tokensPerShare := balance.Sub(totalFee).Div(shareSum)
	if tokensPerShare.IsZero() {
		logger.Warn("airdrop distribution rejected",
			"event", "airdrop_distribution_rejected",
			"module", "token-distribution/airdrop-service",
			"layer", "application",
			"reason", "tokens per share rounds to zero",
			"balance", balance.String(),
			"share_sum", shareSum.String(),
		)
		return payoutPlan{}, domainerrors.ErrZeroPayoutRate
	}

	return payoutPlan{
		ledger:         ledger,
		snapshot:       snapshot,
		fee:            fee,
		totalFee:       totalFee,
		tokensPerShare: tokensPerShare,
	}, nil
}

func (uc *UseCase) transferWithRetry(
	ctx context.Context,
	ledger, destination valueobjects.Identity,
	amount valueobjects.Amount,
) error {
	var lastErr error
	for attempt := 1; attempt <= transferAttempts; attempt++ {
		lastErr = uc.Ledger.Transfer(ctx, ledger, destination, amount)
		if lastErr == nil {
			return nil
		}
		application.ResolveLogger(uc.Logger).Warn("airdrop transfer attempt failed",
			"event", "airdrop_transfer_attempt_failed",
			"module", "token-distribution/airdrop-service",
			"layer", "application",
			"participant", destination.String(),
			"attempt", attempt,
			"error", lastErr.Error(),
		)
	}
	return lastErr
}

func (uc *UseCase) authorize(ctx context.Context, caller valueobjects.Identity, operation string) error {
	if caller.IsAnonymous() || !uc.Gate.IsController(ctx, caller) {
		application.ResolveLogger(uc.Logger).Warn("airdrop unauthorized caller",
			"event", "airdrop_unauthorized_caller",
			"module", "token-distribution/airdrop-service",
			"layer", "application",
			"caller", caller.String(),
			"operation", operation,
		)
		return domainerrors.ErrUnauthorized
	}
	return nil
}

func (uc *UseCase) appendOutbox(ctx context.Context, eventType, partitionKey string, data map[string]any) {
	logger := application.ResolveLogger(uc.Logger)
	if uc.Outbox == nil {
		return
	}
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		logger.Error("airdrop outbox event id generation failed",
			"event", "airdrop_outbox_event_id_generation_failed",
			"module", "token-distribution/airdrop-service",
			"layer", "application",
			"event_type", eventType,
			"error", err.Error(),
		)
		return
	}
	payload, err := json.Marshal(data)
	if err != nil {
		logger.Error("airdrop outbox payload marshal failed",
			"event", "airdrop_outbox_payload_marshal_failed",
			"module", "token-distribution/airdrop-service",
			"layer", "application",
			"event_type", eventType,
			"error", err.Error(),
		)
		return
	}
	if err := uc.Outbox.AppendOutbox(ctx, ports.EventEnvelope{
		EventID:       eventID,
		EventType:     eventType,
		OccurredAt:    uc.now(),
		SourceService: "airdrop-service",
		PartitionKey:  partitionKey,
		SchemaVersion: 1,
		Data:          payload,
	}); err != nil {
		logger.Error("airdrop outbox append failed",
			"event", "airdrop_outbox_append_failed",
			"module", "token-distribution/airdrop-service",
			"layer", "application",
			"event_id", eventID,
			"event_type", eventType,
			"error", err.Error(),
		)
	}
}

func (uc *UseCase) now() time.Time {
	if uc.Clock == nil {
		return time.Now().UTC()
	}
	return uc.Clock.Now().UTC()
}
