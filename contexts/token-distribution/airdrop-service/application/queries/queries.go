package queries

import (
	"context"
	"log/slog"

	application "tokendrop/contexts/token-distribution/airdrop-service/application"
	"tokendrop/contexts/token-distribution/airdrop-service/domain/entities"
	"tokendrop/contexts/token-distribution/airdrop-service/domain/valueobjects"
	"tokendrop/contexts/token-distribution/airdrop-service/ports"
)

// PageSize caps every listing call. A start index at or beyond the
// collection size yields an empty page, never an error.
const PageSize = 100

type UseCase struct {
	Repository ports.AllocationRepository
	Logger     *slog.Logger
}

func (uc UseCase) GetShareAllocation(ctx context.Context, participant valueobjects.Identity) (entities.ShareAllocation, bool, error) {
	allocation, found, err := uc.Repository.GetShare(ctx, participant)
	if err != nil {
		uc.logFailed(ctx, "airdrop_query_share_failed", participant, err)
		return entities.ShareAllocation{}, false, err
	}
	return allocation, found, nil
}

func (uc UseCase) GetTokenAllocation(ctx context.Context, participant valueobjects.Identity) (entities.TokenAllocation, bool, error) {
	allocation, found, err := uc.Repository.GetToken(ctx, participant)
	if err != nil {
		uc.logFailed(ctx, "airdrop_query_token_failed", participant, err)
		return entities.TokenAllocation{}, false, err
	}
	return allocation, found, nil
}

func (uc UseCase) GetLedgerReference(ctx context.Context) (valueobjects.Identity, error) {
	return uc.Repository.GetLedgerReference(ctx)
}

func (uc UseCase) ListShares(ctx context.Context, startIndex int) ([]entities.ShareAllocation, error) {
	if startIndex < 0 {
		startIndex = 0
	}
	return uc.Repository.ListShares(ctx, startIndex, PageSize)
}

func (uc UseCase) ListTokens(ctx context.Context, startIndex int) ([]entities.TokenAllocation, error) {
	if startIndex < 0 {
		startIndex = 0
	}
	return uc.Repository.ListTokens(ctx, startIndex, PageSize)
}

func (uc UseCase) ListInterrupted(ctx context.Context) ([]entities.InterruptedDistribution, error) {
	return uc.Repository.ListInterrupted(ctx)
}

func (uc UseCase) logFailed(_ context.Context, event string, participant valueobjects.Identity, err error) {
	application.ResolveLogger(uc.Logger).Warn("airdrop query failed",
		"event", event,
		"module", "token-distribution/airdrop-service",
		"layer", "application",
		"participant", participant.String(),
		"error", err.Error(),
	)
}
