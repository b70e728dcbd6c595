package commands_test

import (
	"context"
	"errors"
	"testing"

	"tokendrop/contexts/token-distribution/airdrop-service/adapters/memory"
	"tokendrop/contexts/token-distribution/airdrop-service/adapters/staticauth"
	"tokendrop/contexts/token-distribution/airdrop-service/application/commands"
	"tokendrop/contexts/token-distribution/airdrop-service/domain/entities"
	domainerrors "tokendrop/contexts/token-distribution/airdrop-service/domain/errors"
	"tokendrop/contexts/token-distribution/airdrop-service/domain/valueobjects"
)

const (
	controller = valueobjects.Identity("ops-admin")
	outsider   = valueobjects.Identity("stranger")
	treasury   = valueobjects.Identity("treasury-main")
	ledgerRef  = valueobjects.Identity("ledger-primary")
)

type transferCall struct {
	destination valueobjects.Identity
	amount      valueobjects.Amount
}

// ledgerStub satisfies the ledger port with a scripted fee, balance and
// per-destination failure budget.
type ledgerStub struct {
	fee      valueobjects.Amount
	balance  valueobjects.Amount
	failures map[valueobjects.Identity]int

	transfers []transferCall
	attempts  map[valueobjects.Identity]int
}

func (l *ledgerStub) Transfer(_ context.Context, _, destination valueobjects.Identity, amount valueobjects.Amount) error {
	if l.attempts == nil {
		l.attempts = make(map[valueobjects.Identity]int)
	}
	l.attempts[destination]++
	if l.failures[destination] > 0 {
		l.failures[destination]--
		return domainerrors.NewRemoteError("transfer", "ledger unavailable")
	}
	l.transfers = append(l.transfers, transferCall{destination: destination, amount: amount})
	return nil
}

func (l *ledgerStub) FeePerTransfer(_ context.Context, _ valueobjects.Identity) (valueobjects.Amount, error) {
	return l.fee, nil
}

func (l *ledgerStub) BalanceOf(_ context.Context, _, _ valueobjects.Identity) (valueobjects.Amount, error) {
	return l.balance, nil
}

func amount(t *testing.T, raw string) valueobjects.Amount {
	t.Helper()
	v, err := valueobjects.ParseAmount(raw)
	if err != nil {
		t.Fatalf("parse amount %q: %v", raw, err)
	}
	return v
}

func share(t *testing.T, participant, shares string) entities.ShareAllocation {
	t.Helper()
	return entities.ShareAllocation{
		Participant: valueobjects.Identity(participant),
		Shares:      amount(t, shares),
	}
}

func newUseCase(store *memory.Store, ledger *ledgerStub) *commands.UseCase {
	return &commands.UseCase{
		Repository:      store,
		Ledger:          ledger,
		Gate:            staticauth.NewGate([]valueobjects.Identity{controller}),
		Clock:           store,
		IDGen:           store,
		Outbox:          store,
		TreasuryAccount: treasury,
	}
}

func configureLedger(t *testing.T, uc *commands.UseCase) {
	t.Helper()
	err := uc.SetLedgerReference(context.Background(), commands.SetLedgerReferenceCommand{
		Caller: controller,
		Ledger: ledgerRef,
	})
	if err != nil {
		t.Fatalf("set ledger reference: %v", err)
	}
}

func TestDistributeSplitsBalanceProportionally(t *testing.T) {
	store := memory.NewStore([]entities.ShareAllocation{
		share(t, "alice", "1"),
		share(t, "bob", "3"),
	})
	ledger := &ledgerStub{fee: amount(t, "0"), balance: amount(t, "100")}
	uc := newUseCase(store, ledger)
	configureLedger(t, uc)

	run, err := uc.Distribute(context.Background(), commands.DistributeCommand{Caller: controller})
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if run.TokensPerShare.String() != "25" {
		t.Fatalf("tokens per share = %s, want 25", run.TokensPerShare)
	}
	if run.PaidCount != 2 || run.InterruptedCount != 0 {
		t.Fatalf("paid=%d interrupted=%d, want 2/0", run.PaidCount, run.InterruptedCount)
	}

	alice, found, err := store.GetToken(context.Background(), "alice")
	if err != nil || !found {
		t.Fatalf("alice token allocation missing: found=%v err=%v", found, err)
	}
	if alice.Tokens.String() != "25" {
		t.Fatalf("alice tokens = %s, want 25", alice.Tokens)
	}
	bob, found, _ := store.GetToken(context.Background(), "bob")
	if !found || bob.Tokens.String() != "75" {
		t.Fatalf("bob tokens = %s found=%v, want 75", bob.Tokens, found)
	}

	remaining, err := store.SnapshotShares(context.Background())
	if err != nil {
		t.Fatalf("snapshot shares: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("share register not consumed, %d entries remain", len(remaining))
	}
	if len(ledger.transfers) != 2 {
		t.Fatalf("ledger transfers = %d, want 2", len(ledger.transfers))
	}
}

func TestDistributeDeductsAggregateFees(t *testing.T) {
	store := memory.NewStore([]entities.ShareAllocation{share(t, "alice", "1")})
	ledger := &ledgerStub{fee: amount(t, "1"), balance: amount(t, "2")}
	uc := newUseCase(store, ledger)
	configureLedger(t, uc)

	run, err := uc.Distribute(context.Background(), commands.DistributeCommand{Caller: controller})
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if run.TokensPerShare.String() != "1" {
		t.Fatalf("tokens per share = %s, want 1", run.TokensPerShare)
	}
	if run.TotalFee.String() != "1" {
		t.Fatalf("total fee = %s, want 1", run.TotalFee)
	}
	if len(ledger.transfers) != 1 || ledger.transfers[0].amount.String() != "1" {
		t.Fatalf("transfer amount wrong: %+v", ledger.transfers)
	}
}

func TestDistributeParksPayoutAfterExhaustedRetries(t *testing.T) {
	store := memory.NewStore([]entities.ShareAllocation{
		share(t, "alice", "1"),
		share(t, "bob", "1"),
	})
	ledger := &ledgerStub{
		fee:      amount(t, "0"),
		balance:  amount(t, "100"),
		failures: map[valueobjects.Identity]int{"bob": 3},
	}
	uc := newUseCase(store, ledger)
	configureLedger(t, uc)

	run, err := uc.Distribute(context.Background(), commands.DistributeCommand{Caller: controller})
	if err != nil {
		t.Fatalf("distribute must succeed even with parked payouts: %v", err)
	}
	if run.PaidCount != 1 || run.InterruptedCount != 1 {
		t.Fatalf("paid=%d interrupted=%d, want 1/1", run.PaidCount, run.InterruptedCount)
	}
	if got := ledger.attempts["bob"]; got != 3 {
		t.Fatalf("bob transfer attempts = %d, want 3", got)
	}

	records, err := store.ListInterrupted(context.Background())
	if err != nil {
		t.Fatalf("list interrupted: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("interrupted records = %d, want 1", len(records))
	}
	record := records[0]
	if record.Participant != "bob" || record.Tokens.String() != "50" || record.Attempts != 3 {
		t.Fatalf("interrupted record wrong: %+v", record)
	}
	if record.Reason == "" {
		t.Fatalf("interrupted record must carry the failure reason")
	}

	if _, found, _ := store.GetToken(context.Background(), "bob"); found {
		t.Fatalf("parked payout must not appear as a token allocation")
	}
	if _, found, _ := store.GetShare(context.Background(), "bob"); found {
		t.Fatalf("attempted share must be consumed even when parked")
	}
}

func TestDistributeRecoversWithinRetryBudget(t *testing.T) {
	store := memory.NewStore([]entities.ShareAllocation{share(t, "alice", "1")})
	ledger := &ledgerStub{
		fee:      amount(t, "0"),
		balance:  amount(t, "10"),
		failures: map[valueobjects.Identity]int{"alice": 2},
	}
	uc := newUseCase(store, ledger)
	configureLedger(t, uc)

	run, err := uc.Distribute(context.Background(), commands.DistributeCommand{Caller: controller})
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if run.PaidCount != 1 || run.InterruptedCount != 0 {
		t.Fatalf("paid=%d interrupted=%d, want 1/0", run.PaidCount, run.InterruptedCount)
	}
	if got := ledger.attempts["alice"]; got != 3 {
		t.Fatalf("alice transfer attempts = %d, want 3", got)
	}
	if records, _ := store.ListInterrupted(context.Background()); len(records) != 0 {
		t.Fatalf("recovered transfer must not be parked")
	}
}

func TestDistributeKeepsRemainderWithTreasury(t *testing.T) {
	store := memory.NewStore([]entities.ShareAllocation{
		share(t, "alice", "3"),
		share(t, "bob", "7"),
	})
	ledger := &ledgerStub{fee: amount(t, "1"), balance: amount(t, "103")}
	uc := newUseCase(store, ledger)
	configureLedger(t, uc)

	run, err := uc.Distribute(context.Background(), commands.DistributeCommand{Caller: controller})
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	// 103 balance, 2 aggregate fee, 10 shares: 101/10 truncates to 10.
	if run.TokensPerShare.String() != "10" {
		t.Fatalf("tokens per share = %s, want 10", run.TokensPerShare)
	}

	paidOut := valueobjects.ZeroAmount()
	for _, payout := range run.Payouts {
		paidOut = paidOut.Add(payout.Tokens)
	}
	spent := paidOut.Add(run.TotalFee)
	if spent.Cmp(ledger.balance) > 0 {
		t.Fatalf("spent %s exceeds treasury balance %s", spent, ledger.balance)
	}
	if paidOut.String() != "100" {
		t.Fatalf("paid out = %s, want 100 with remainder 1 retained", paidOut)
	}
}

func TestDistributeRejections(t *testing.T) {
	tests := []struct {
		name    string
		seed    []entities.ShareAllocation
		fee     string
		balance string
		caller  valueobjects.Identity
		ledger  bool
		wantErr error
	}{
		{
			name:    "unauthorized caller",
			seed:    []entities.ShareAllocation{share(t, "alice", "1")},
			fee:     "0",
			balance: "100",
			caller:  outsider,
			ledger:  true,
			wantErr: domainerrors.ErrUnauthorized,
		},
		{
			name:    "anonymous caller",
			seed:    []entities.ShareAllocation{share(t, "alice", "1")},
			fee:     "0",
			balance: "100",
			caller:  valueobjects.Anonymous,
			ledger:  true,
			wantErr: domainerrors.ErrUnauthorized,
		},
		{
			name:    "ledger not configured",
			seed:    []entities.ShareAllocation{share(t, "alice", "1")},
			fee:     "0",
			balance: "100",
			caller:  controller,
			ledger:  false,
			wantErr: domainerrors.ErrLedgerNotConfigured,
		},
		{
			name:    "empty share register",
			seed:    nil,
			fee:     "0",
			balance: "100",
			caller:  controller,
			ledger:  true,
			wantErr: domainerrors.ErrEmptyAllocationList,
		},
		{
			name:    "fees exceed balance",
			seed:    []entities.ShareAllocation{share(t, "alice", "1"), share(t, "bob", "1")},
			fee:     "10",
			balance: "15",
			caller:  controller,
			ledger:  true,
			wantErr: domainerrors.ErrInsufficientBalance,
		},
		{
			name:    "payout rate rounds to zero",
			seed:    []entities.ShareAllocation{share(t, "alice", "1000")},
			fee:     "0",
			balance: "100",
			caller:  controller,
			ledger:  true,
			wantErr: domainerrors.ErrZeroPayoutRate,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := memory.NewStore(tc.seed)
			ledger := &ledgerStub{fee: amount(t, tc.fee), balance: amount(t, tc.balance)}
			uc := newUseCase(store, ledger)
			if tc.ledger {
				configureLedger(t, uc)
			}

			_, err := uc.Distribute(context.Background(), commands.DistributeCommand{Caller: tc.caller})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("distribute error = %v, want %v", err, tc.wantErr)
			}
			// The validate twin must reach the same verdict.
			if err := uc.ValidateDistribute(context.Background(), commands.DistributeCommand{Caller: tc.caller}); !errors.Is(err, tc.wantErr) {
				t.Fatalf("validate error = %v, want %v", err, tc.wantErr)
			}
			// A rejected run leaves the share register untouched.
			remaining, _ := store.SnapshotShares(context.Background())
			if len(remaining) != len(tc.seed) {
				t.Fatalf("rejected run mutated the share register: %d != %d", len(remaining), len(tc.seed))
			}
			if len(ledger.transfers) != 0 {
				t.Fatalf("rejected run issued %d transfers", len(ledger.transfers))
			}
		})
	}
}

func TestValidateDistributeAcceptsWithoutSideEffects(t *testing.T) {
	store := memory.NewStore([]entities.ShareAllocation{
		share(t, "alice", "1"),
		share(t, "bob", "3"),
	})
	ledger := &ledgerStub{fee: amount(t, "0"), balance: amount(t, "100")}
	uc := newUseCase(store, ledger)
	configureLedger(t, uc)

	if err := uc.ValidateDistribute(context.Background(), commands.DistributeCommand{Caller: controller}); err != nil {
		t.Fatalf("validate: %v", err)
	}
	remaining, _ := store.SnapshotShares(context.Background())
	if len(remaining) != 2 {
		t.Fatalf("validate consumed shares: %d remain", len(remaining))
	}
	if len(ledger.transfers) != 0 || len(ledger.attempts) != 0 {
		t.Fatalf("validate issued transfers")
	}
	tokens, _ := store.ListTokens(context.Background(), 0, 100)
	if len(tokens) != 0 {
		t.Fatalf("validate recorded token allocations")
	}

	// The accepted simulation must carry through to the real run.
	run, err := uc.Distribute(context.Background(), commands.DistributeCommand{Caller: controller})
	if err != nil {
		t.Fatalf("distribute after accepted validate: %v", err)
	}
	if run.PaidCount != 2 {
		t.Fatalf("paid count = %d, want 2", run.PaidCount)
	}
}

func TestAddAllocationsUpsertsByParticipant(t *testing.T) {
	store := memory.NewStore(nil)
	uc := newUseCase(store, &ledgerStub{})

	err := uc.AddAllocations(context.Background(), commands.AddAllocationsCommand{
		Caller:      controller,
		Allocations: []entities.ShareAllocation{share(t, "alice", "1")},
	})
	if err != nil {
		t.Fatalf("add allocations: %v", err)
	}
	err = uc.AddAllocations(context.Background(), commands.AddAllocationsCommand{
		Caller:      controller,
		Allocations: []entities.ShareAllocation{share(t, "alice", "5"), share(t, "bob", "2")},
	})
	if err != nil {
		t.Fatalf("add allocations: %v", err)
	}

	alice, found, _ := store.GetShare(context.Background(), "alice")
	if !found || alice.Shares.String() != "5" {
		t.Fatalf("alice shares = %s found=%v, want 5 after upsert", alice.Shares, found)
	}
	all, _ := store.SnapshotShares(context.Background())
	if len(all) != 2 {
		t.Fatalf("share register size = %d, want 2", len(all))
	}
}

func TestAddAllocationsRejectsInvalidBatchesAtomically(t *testing.T) {
	tests := []struct {
		name        string
		allocations []entities.ShareAllocation
	}{
		{name: "empty batch", allocations: nil},
		{
			name: "zero shares",
			allocations: []entities.ShareAllocation{
				{Participant: "alice", Shares: valueobjects.ZeroAmount()},
			},
		},
		{
			name: "anonymous participant",
			allocations: []entities.ShareAllocation{
				{Participant: valueobjects.Anonymous, Shares: mustAmount("3")},
			},
		},
		{
			name: "one bad entry rejects the whole batch",
			allocations: []entities.ShareAllocation{
				{Participant: "alice", Shares: mustAmount("1")},
				{Participant: "bob", Shares: valueobjects.ZeroAmount()},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := memory.NewStore(nil)
			uc := newUseCase(store, &ledgerStub{})

			cmd := commands.AddAllocationsCommand{Caller: controller, Allocations: tc.allocations}
			if err := uc.AddAllocations(context.Background(), cmd); !errors.Is(err, domainerrors.ErrInvalidAllocationInput) {
				t.Fatalf("add error = %v, want ErrInvalidAllocationInput", err)
			}
			if err := uc.ValidateAddAllocations(context.Background(), cmd); !errors.Is(err, domainerrors.ErrInvalidAllocationInput) {
				t.Fatalf("validate error = %v, want ErrInvalidAllocationInput", err)
			}
			all, _ := store.SnapshotShares(context.Background())
			if len(all) != 0 {
				t.Fatalf("rejected batch stored %d entries", len(all))
			}
		})
	}
}

func TestSetLedgerReferenceRejectsAnonymous(t *testing.T) {
	store := memory.NewStore(nil)
	uc := newUseCase(store, &ledgerStub{})

	cmd := commands.SetLedgerReferenceCommand{Caller: controller, Ledger: valueobjects.Anonymous}
	if err := uc.SetLedgerReference(context.Background(), cmd); !errors.Is(err, domainerrors.ErrInvalidAllocationInput) {
		t.Fatalf("set error = %v, want ErrInvalidAllocationInput", err)
	}
	if err := uc.ValidateSetLedgerReference(context.Background(), cmd); !errors.Is(err, domainerrors.ErrInvalidAllocationInput) {
		t.Fatalf("validate error = %v, want ErrInvalidAllocationInput", err)
	}
	if ref, _ := store.GetLedgerReference(context.Background()); !ref.IsAnonymous() {
		t.Fatalf("rejected call stored ledger reference %q", ref)
	}
}

func TestMutationsRequireController(t *testing.T) {
	store := memory.NewStore([]entities.ShareAllocation{share(t, "alice", "1")})
	uc := newUseCase(store, &ledgerStub{fee: mustAmount("0"), balance: mustAmount("100")})
	ctx := context.Background()

	calls := map[string]func() error{
		"set ledger reference": func() error {
			return uc.SetLedgerReference(ctx, commands.SetLedgerReferenceCommand{Caller: outsider, Ledger: ledgerRef})
		},
		"add allocations": func() error {
			return uc.AddAllocations(ctx, commands.AddAllocationsCommand{
				Caller:      outsider,
				Allocations: []entities.ShareAllocation{share(t, "bob", "1")},
			})
		},
		"reset": func() error {
			return uc.Reset(ctx, commands.ResetCommand{Caller: outsider})
		},
		"validate reset": func() error {
			return uc.ValidateReset(ctx, commands.ResetCommand{Caller: outsider})
		},
	}
	for name, call := range calls {
		if err := call(); !errors.Is(err, domainerrors.ErrUnauthorized) {
			t.Fatalf("%s error = %v, want ErrUnauthorized", name, err)
		}
	}
	if all, _ := store.SnapshotShares(ctx); len(all) != 1 {
		t.Fatalf("unauthorized calls mutated state")
	}
}

func TestResetClearsAllStateAndIsIdempotent(t *testing.T) {
	store := memory.NewStore([]entities.ShareAllocation{
		share(t, "alice", "1"),
		share(t, "bob", "1"),
	})
	ledger := &ledgerStub{
		fee:      mustAmount("0"),
		balance:  mustAmount("100"),
		failures: map[valueobjects.Identity]int{"bob": 3},
	}
	uc := newUseCase(store, ledger)
	configureLedger(t, uc)

	if _, err := uc.Distribute(context.Background(), commands.DistributeCommand{Caller: controller}); err != nil {
		t.Fatalf("distribute: %v", err)
	}

	if err := uc.Reset(context.Background(), commands.ResetCommand{Caller: controller}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if all, _ := store.SnapshotShares(context.Background()); len(all) != 0 {
		t.Fatalf("reset left shares behind")
	}
	if tokens, _ := store.ListTokens(context.Background(), 0, 100); len(tokens) != 0 {
		t.Fatalf("reset left token allocations behind")
	}
	if records, _ := store.ListInterrupted(context.Background()); len(records) != 0 {
		t.Fatalf("reset left interrupted records behind")
	}
	if ref, _ := store.GetLedgerReference(context.Background()); !ref.IsAnonymous() {
		t.Fatalf("reset left ledger reference %q", ref)
	}

	if err := uc.Reset(context.Background(), commands.ResetCommand{Caller: controller}); err != nil {
		t.Fatalf("second reset must be a no-op, got %v", err)
	}
}

func mustAmount(raw string) valueobjects.Amount {
	v, err := valueobjects.ParseAmount(raw)
	if err != nil {
		panic(err)
	}
	return v
}
