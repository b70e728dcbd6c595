package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SetLedgerReferenceRequest struct {
	Ledger string `json:"ledger"`
}

type AllocationEntry struct {
	Participant string `json:"participant"`
	Shares      string `json:"shares"`
}

type AddAllocationsRequest struct {
	Allocations []AllocationEntry `json:"allocations"`
}

type ValidateResponse struct {
	Valid bool   `json:"valid"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

type ShareAllocationDTO struct {
	Participant string `json:"participant"`
	Shares      string `json:"shares"`
}

type TokenAllocationDTO struct {
	Participant string `json:"participant"`
	Tokens      string `json:"tokens"`
	PaidAt      string `json:"paid_at"`
}

type InterruptedDistributionDTO struct {
	ID          string `json:"id"`
	RunID       string `json:"run_id"`
	Participant string `json:"participant"`
	Tokens      string `json:"tokens"`
	Reason      string `json:"reason"`
	Attempts    int    `json:"attempts"`
	RecordedAt  string `json:"recorded_at"`
}

type LedgerReferenceResponse struct {
	Ledger     string `json:"ledger"`
	Configured bool   `json:"configured"`
}

type PayoutResultDTO struct {
	Participant string `json:"participant"`
	Tokens      string `json:"tokens"`
	Outcome     string `json:"outcome"`
	Reason      string `json:"reason,omitempty"`
}

type DistributionRunResponse struct {
	RunID            string            `json:"run_id"`
	TokensPerShare   string            `json:"tokens_per_share"`
	TotalFee         string            `json:"total_fee"`
	PaidCount        int               `json:"paid_count"`
	InterruptedCount int               `json:"interrupted_count"`
	Payouts          []PayoutResultDTO `json:"payouts"`
	CompletedAt      string            `json:"completed_at"`
}

type SharePageResponse struct {
	Allocations []ShareAllocationDTO `json:"allocations"`
	StartIndex  int                  `json:"start_index"`
}

type TokenPageResponse struct {
	Allocations []TokenAllocationDTO `json:"allocations"`
	StartIndex  int                  `json:"start_index"`
}

type InterruptedListResponse struct {
	Records []InterruptedDistributionDTO `json:"records"`
}
