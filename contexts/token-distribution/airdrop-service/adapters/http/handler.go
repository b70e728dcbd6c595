package httpadapter

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "tokendrop/contexts/token-distribution/airdrop-service/application"
	"tokendrop/contexts/token-distribution/airdrop-service/application/commands"
	"tokendrop/contexts/token-distribution/airdrop-service/application/queries"
	"tokendrop/contexts/token-distribution/airdrop-service/domain/entities"
	domainerrors "tokendrop/contexts/token-distribution/airdrop-service/domain/errors"
	"tokendrop/contexts/token-distribution/airdrop-service/domain/valueobjects"
	httptransport "tokendrop/contexts/token-distribution/airdrop-service/transport/http"
)

type Handler struct {
	Commands *commands.UseCase
	Queries  queries.UseCase
	Logger   *slog.Logger
}

func (h Handler) SetLedgerReferenceHandler(ctx context.Context, caller string, req httptransport.SetLedgerReferenceRequest) error {
	cmd, err := setLedgerReferenceCommand(caller, req)
	if err != nil {
		return err
	}
	if err := h.Commands.SetLedgerReference(ctx, cmd); err != nil {
		h.logFailed("airdrop_http_set_ledger_failed", caller, err)
		return err
	}
	return nil
}

func (h Handler) ValidateSetLedgerReferenceHandler(ctx context.Context, caller string, req httptransport.SetLedgerReferenceRequest) error {
	cmd, err := setLedgerReferenceCommand(caller, req)
	if err != nil {
		return err
	}
	return h.Commands.ValidateSetLedgerReference(ctx, cmd)
}

func (h Handler) AddAllocationsHandler(ctx context.Context, caller string, req httptransport.AddAllocationsRequest) error {
	cmd, err := addAllocationsCommand(caller, req)
	if err != nil {
		return err
	}
	if err := h.Commands.AddAllocations(ctx, cmd); err != nil {
		h.logFailed("airdrop_http_add_allocations_failed", caller, err)
		return err
	}
	return nil
}

func (h Handler) ValidateAddAllocationsHandler(ctx context.Context, caller string, req httptransport.AddAllocationsRequest) error {
	cmd, err := addAllocationsCommand(caller, req)
	if err != nil {
		return err
	}
	return h.Commands.ValidateAddAllocations(ctx, cmd)
}

func (h Handler) ResetHandler(ctx context.Context, caller string) error {
	if err := h.Commands.Reset(ctx, commands.ResetCommand{Caller: identity(caller)}); err != nil {
		h.logFailed("airdrop_http_reset_failed", caller, err)
		return err
	}
	return nil
}

func (h Handler) ValidateResetHandler(ctx context.Context, caller string) error {
	return h.Commands.ValidateReset(ctx, commands.ResetCommand{Caller: identity(caller)})
}

func (h Handler) DistributeHandler(ctx context.Context, caller string) (httptransport.DistributionRunResponse, error) {
	run, err := h.Commands.Distribute(ctx, commands.DistributeCommand{Caller: identity(caller)})
	if err != nil {
		h.logFailed("airdrop_http_distribute_failed", caller, err)
		return httptransport.DistributionRunResponse{}, err
	}
	return distributionRunResponse(run), nil
}

func (h Handler) ValidateDistributeHandler(ctx context.Context, caller string) error {
	return h.Commands.ValidateDistribute(ctx, commands.DistributeCommand{Caller: identity(caller)})
}

func (h Handler) GetShareAllocationHandler(ctx context.Context, participant string) (httptransport.ShareAllocationDTO, error) {
	allocation, found, err := h.Queries.GetShareAllocation(ctx, identity(participant))
	if err != nil {
		return httptransport.ShareAllocationDTO{}, err
	}
	if !found {
		return httptransport.ShareAllocationDTO{}, domainerrors.ErrAllocationNotFound
	}
	return httptransport.ShareAllocationDTO{
		Participant: allocation.Participant.String(),
		Shares:      allocation.Shares.String(),
	}, nil
}

func (h Handler) GetTokenAllocationHandler(ctx context.Context, participant string) (httptransport.TokenAllocationDTO, error) {
	allocation, found, err := h.Queries.GetTokenAllocation(ctx, identity(participant))
	if err != nil {
		return httptransport.TokenAllocationDTO{}, err
	}
	if !found {
		return httptransport.TokenAllocationDTO{}, domainerrors.ErrAllocationNotFound
	}
	return httptransport.TokenAllocationDTO{
		Participant: allocation.Participant.String(),
		Tokens:      allocation.Tokens.String(),
		PaidAt:      allocation.PaidAt.Format(time.RFC3339),
	}, nil
}

func (h Handler) GetLedgerReferenceHandler(ctx context.Context) (httptransport.LedgerReferenceResponse, error) {
	ledger, err := h.Queries.GetLedgerReference(ctx)
	if err != nil {
		return httptransport.LedgerReferenceResponse{}, err
	}
	return httptransport.LedgerReferenceResponse{
		Ledger:     ledger.String(),
		Configured: !ledger.IsAnonymous(),
	}, nil
}

func (h Handler) ListSharesHandler(ctx context.Context, startIndex int) (httptransport.SharePageResponse, error) {
	allocations, err := h.Queries.ListShares(ctx, startIndex)
	if err != nil {
		return httptransport.SharePageResponse{}, err
	}
	page := httptransport.SharePageResponse{
		Allocations: make([]httptransport.ShareAllocationDTO, 0, len(allocations)),
		StartIndex:  startIndex,
	}
	for _, allocation := range allocations {
		page.Allocations = append(page.Allocations, httptransport.ShareAllocationDTO{
			Participant: allocation.Participant.String(),
			Shares:      allocation.Shares.String(),
		})
	}
	return page, nil
}

func (h Handler) ListTokensHandler(ctx context.Context, startIndex int) (httptransport.TokenPageResponse, error) {
	allocations, err := h.Queries.ListTokens(ctx, startIndex)
	if err != nil {
		return httptransport.TokenPageResponse{}, err
	}
	page := httptransport.TokenPageResponse{
		Allocations: make([]httptransport.TokenAllocationDTO, 0, len(allocations)),
		StartIndex:  startIndex,
	}
	for _, allocation := range allocations {
		page.Allocations = append(page.Allocations, httptransport.TokenAllocationDTO{
			Participant: allocation.Participant.String(),
			Tokens:      allocation.Tokens.String(),
			PaidAt:      allocation.PaidAt.Format(time.RFC3339),
		})
	}
	return page, nil
}

func (h Handler) ListInterruptedHandler(ctx context.Context) (httptransport.InterruptedListResponse, error) {
	records, err := h.Queries.ListInterrupted(ctx)
	if err != nil {
		return httptransport.InterruptedListResponse{}, err
	}
	resp := httptransport.InterruptedListResponse{
		Records: make([]httptransport.InterruptedDistributionDTO, 0, len(records)),
	}
	for _, record := range records {
		resp.Records = append(resp.Records, httptransport.InterruptedDistributionDTO{
			ID:          record.ID,
			RunID:       record.RunID,
			Participant: record.Participant.String(),
			Tokens:      record.Tokens.String(),
			Reason:      record.Reason,
			Attempts:    record.Attempts,
			RecordedAt:  record.RecordedAt.Format(time.RFC3339),
		})
	}
	return resp, nil
}

func setLedgerReferenceCommand(caller string, req httptransport.SetLedgerReferenceRequest) (commands.SetLedgerReferenceCommand, error) {
	return commands.SetLedgerReferenceCommand{
		Caller: identity(caller),
		Ledger: identity(req.Ledger),
	}, nil
}

func addAllocationsCommand(caller string, req httptransport.AddAllocationsRequest) (commands.AddAllocationsCommand, error) {
	allocations := make([]entities.ShareAllocation, 0, len(req.Allocations))
	for _, entry := range req.Allocations {
		shares, err := valueobjects.ParseAmount(strings.TrimSpace(entry.Shares))
		if err != nil {
			return commands.AddAllocationsCommand{}, domainerrors.ErrInvalidAllocationInput
		}
		allocations = append(allocations, entities.ShareAllocation{
			Participant: identity(entry.Participant),
			Shares:      shares,
		})
	}
	return commands.AddAllocationsCommand{
		Caller:      identity(caller),
		Allocations: allocations,
	}, nil
}

func distributionRunResponse(run entities.DistributionRun) httptransport.DistributionRunResponse {
	resp := httptransport.DistributionRunResponse{
		RunID:            run.RunID,
		TokensPerShare:   run.TokensPerShare.String(),
		TotalFee:         run.TotalFee.String(),
		PaidCount:        run.PaidCount,
		InterruptedCount: run.InterruptedCount,
		Payouts:          make([]httptransport.PayoutResultDTO, 0, len(run.Payouts)),
		CompletedAt:      run.CompletedAt.Format(time.RFC3339),
	}
	for _, payout := range run.Payouts {
		resp.Payouts = append(resp.Payouts, httptransport.PayoutResultDTO{
			Participant: payout.Participant.String(),
			Tokens:      payout.Tokens.String(),
			Outcome:     string(payout.Outcome),
			Reason:      payout.Reason,
		})
	}
	return resp
}

func identity(v string) valueobjects.Identity {
	return valueobjects.Identity(strings.TrimSpace(v))
}

func (h Handler) logFailed(event, caller string, err error) {
	application.ResolveLogger(h.Logger).Warn("airdrop http call failed",
		"event", event,
		"module", "token-distribution/airdrop-service",
		"layer", "adapter",
		"caller", strings.TrimSpace(caller),
		"error", err.Error(),
	)
}
