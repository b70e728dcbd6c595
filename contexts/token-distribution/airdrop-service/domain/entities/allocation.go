package entities

import (
	"time"

	"tokendrop/contexts/token-distribution/airdrop-service/domain/valueobjects"
)

// ShareAllocation is a participant's weight in the next distribution run.
type ShareAllocation struct {
	Participant valueobjects.Identity
	Shares      valueobjects.Amount
}

// TokenAllocation is the receipt ledger entry for a confirmed payout.
type TokenAllocation struct {
	Participant valueobjects.Identity
	Tokens      valueobjects.Amount
	PaidAt      time.Time
}

// InterruptedDistribution is a computed payout that exhausted its transfer
// retries. The amount is owed but undelivered and needs manual reconciliation.
type InterruptedDistribution struct {
	ID          string
	RunID       string
	Participant valueobjects.Identity
	Tokens      valueobjects.Amount
	Reason      string
	Attempts    int
	RecordedAt  time.Time
}

type PayoutOutcome string

const (
	PayoutOutcomePaid        PayoutOutcome = "paid"
	PayoutOutcomeInterrupted PayoutOutcome = "interrupted"
)

// PayoutResult is the per-participant outcome of one distribution run.
type PayoutResult struct {
	Participant valueobjects.Identity
	Tokens      valueobjects.Amount
	Outcome     PayoutOutcome
	Reason      string
}

// DistributionRun summarizes one completed run. Interrupted entries do not
// fail the run; they are reported here and parked for reconciliation.
type DistributionRun struct {
	RunID            string
	TokensPerShare   valueobjects.Amount
	TotalFee         valueobjects.Amount
	PaidCount        int
	InterruptedCount int
	Payouts          []PayoutResult
	CompletedAt      time.Time
}
