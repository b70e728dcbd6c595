package airdropservice

import (
	"log/slog"

	httpadapter "tokendrop/contexts/token-distribution/airdrop-service/adapters/http"
	"tokendrop/contexts/token-distribution/airdrop-service/adapters/memory"
	"tokendrop/contexts/token-distribution/airdrop-service/application/commands"
	"tokendrop/contexts/token-distribution/airdrop-service/application/queries"
	"tokendrop/contexts/token-distribution/airdrop-service/domain/entities"
	"tokendrop/contexts/token-distribution/airdrop-service/domain/valueobjects"
	"tokendrop/contexts/token-distribution/airdrop-service/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Store   *memory.Store
}

type Dependencies struct {
	Repository      ports.AllocationRepository
	Ledger          ports.LedgerClient
	Gate            ports.AuthorizationGate
	Clock           ports.Clock
	IDGen           ports.IDGenerator
	Outbox          ports.OutboxWriter
	TreasuryAccount valueobjects.Identity
	Logger          *slog.Logger
}

func NewModule(deps Dependencies) Module {
	commandUseCase := &commands.UseCase{
		Repository:      deps.Repository,
		Ledger:          deps.Ledger,
		Gate:            deps.Gate,
		Clock:           deps.Clock,
		IDGen:           deps.IDGen,
		Outbox:          deps.Outbox,
		TreasuryAccount: deps.TreasuryAccount,
		Logger:          deps.Logger,
	}
	queryUseCase := queries.UseCase{
		Repository: deps.Repository,
		Logger:     deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Commands: commandUseCase,
			Queries:  queryUseCase,
			Logger:   deps.Logger,
		},
	}
}

// NewInMemoryModule wires the module against the in-memory store, for tests
// and single-process runs without Postgres.
func NewInMemoryModule(
	seed []entities.ShareAllocation,
	ledger ports.LedgerClient,
	gate ports.AuthorizationGate,
	treasury valueobjects.Identity,
	logger *slog.Logger,
) Module {
	store := memory.NewStore(seed)
	module := NewModule(Dependencies{
		Repository:      store,
		Ledger:          ledger,
		Gate:            gate,
		Clock:           store,
		IDGen:           store,
		Outbox:          store,
		TreasuryAccount: treasury,
		Logger:          logger,
	})
	module.Store = store
	return module
}
