package httpserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	airdropservice "tokendrop/contexts/token-distribution/airdrop-service"
	"tokendrop/contexts/token-distribution/airdrop-service/adapters/staticauth"
	"tokendrop/contexts/token-distribution/airdrop-service/domain/entities"
	"tokendrop/contexts/token-distribution/airdrop-service/domain/valueobjects"
	airdrophttp "tokendrop/contexts/token-distribution/airdrop-service/transport/http"
	"tokendrop/internal/platform/httpserver"
)

type ledgerStub struct {
	fee     uint64
	balance uint64
}

func (l ledgerStub) Transfer(context.Context, valueobjects.Identity, valueobjects.Identity, valueobjects.Amount) error {
	return nil
}

func (l ledgerStub) FeePerTransfer(context.Context, valueobjects.Identity) (valueobjects.Amount, error) {
	return valueobjects.AmountFromUint64(l.fee), nil
}

func (l ledgerStub) BalanceOf(context.Context, valueobjects.Identity, valueobjects.Identity) (valueobjects.Amount, error) {
	return valueobjects.AmountFromUint64(l.balance), nil
}

func newTestHandler(seed []entities.ShareAllocation, ledger ledgerStub) http.Handler {
	module := airdropservice.NewInMemoryModule(
		seed,
		ledger,
		staticauth.NewGate([]valueobjects.Identity{"ops-admin"}),
		"treasury-main",
		nil,
	)
	return httpserver.New(module, nil, ":0").Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path, caller, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set("X-Caller-Id", caller)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAllocationLifecycleOverHTTP(t *testing.T) {
	handler := newTestHandler(nil, ledgerStub{fee: 0, balance: 100})

	rec := doJSON(t, handler, http.MethodPut, "/api/airdrop/v1/ledger-reference", "ops-admin",
		`{"ledger":"ledger-primary"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("set ledger reference status = %d body=%s", rec.Code, rec.Body)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/airdrop/v1/allocations", "ops-admin",
		`{"allocations":[{"participant":"alice","shares":"1"},{"participant":"bob","shares":"3"}]}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("add allocations status = %d body=%s", rec.Code, rec.Body)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/airdrop/v1/allocations/alice", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get allocation status = %d", rec.Code)
	}
	var allocation airdrophttp.ShareAllocationDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &allocation); err != nil {
		t.Fatalf("decode allocation: %v", err)
	}
	if allocation.Shares != "1" {
		t.Fatalf("alice shares = %s, want 1", allocation.Shares)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/airdrop/v1/distributions", "ops-admin", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("distribute status = %d body=%s", rec.Code, rec.Body)
	}
	var run airdrophttp.DistributionRunResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.TokensPerShare != "25" || run.PaidCount != 2 {
		t.Fatalf("run = %+v, want 25 per share over 2 payouts", run)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/airdrop/v1/payouts/bob", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get payout status = %d", rec.Code)
	}
	var payout airdrophttp.TokenAllocationDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &payout); err != nil {
		t.Fatalf("decode payout: %v", err)
	}
	if payout.Tokens != "75" {
		t.Fatalf("bob tokens = %s, want 75", payout.Tokens)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/airdrop/v1/allocations/alice", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("consumed allocation status = %d, want 404", rec.Code)
	}
}

func TestMutationsRejectNonControllers(t *testing.T) {
	handler := newTestHandler(nil, ledgerStub{})

	paths := map[string]string{
		"PUT /api/airdrop/v1/ledger-reference": `{"ledger":"ledger-primary"}`,
		"POST /api/airdrop/v1/allocations":     `{"allocations":[{"participant":"alice","shares":"1"}]}`,
		"POST /api/airdrop/v1/distributions":   "",
		"POST /api/airdrop/v1/reset":           "",
	}
	for route, body := range paths {
		parts := strings.SplitN(route, " ", 2)
		rec := doJSON(t, handler, parts[0], parts[1], "stranger", body)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s status = %d, want 403", route, rec.Code)
		}
		var resp airdrophttp.ErrorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode error response for %s: %v", route, err)
		}
		if resp.Code != "unauthorized" {
			t.Fatalf("%s error code = %s, want unauthorized", route, resp.Code)
		}
	}
}

func TestValidateTwinsReportRejectionInBody(t *testing.T) {
	handler := newTestHandler(nil, ledgerStub{fee: 0, balance: 100})

	// No ledger reference configured, so a distribution cannot start.
	rec := doJSON(t, handler, http.MethodPost, "/api/airdrop/v1/distributions/validate", "ops-admin", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("validate status = %d, want 200", rec.Code)
	}
	var resp airdrophttp.ValidateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode validate response: %v", err)
	}
	if resp.Valid {
		t.Fatalf("validate accepted with no ledger configured")
	}
	if resp.Code != "ledger_not_configured" {
		t.Fatalf("validate code = %s, want ledger_not_configured", resp.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/airdrop/v1/reset/validate", "ops-admin", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("validate reset status = %d", rec.Code)
	}
	resp = airdrophttp.ValidateResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode validate response: %v", err)
	}
	if !resp.Valid {
		t.Fatalf("validate reset rejected a controller: %+v", resp)
	}
}

func TestDistributionPreconditionFailuresMapToConflict(t *testing.T) {
	handler := newTestHandler(nil, ledgerStub{fee: 0, balance: 100})

	rec := doJSON(t, handler, http.MethodPut, "/api/airdrop/v1/ledger-reference", "ops-admin",
		`{"ledger":"ledger-primary"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("set ledger reference status = %d", rec.Code)
	}

	// Empty share register.
	rec = doJSON(t, handler, http.MethodPost, "/api/airdrop/v1/distributions", "ops-admin", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("distribute status = %d, want 409", rec.Code)
	}
	var resp airdrophttp.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Code != "empty_allocation_list" {
		t.Fatalf("error code = %s, want empty_allocation_list", resp.Code)
	}
}

func TestAddAllocationsRejectsMalformedShares(t *testing.T) {
	handler := newTestHandler(nil, ledgerStub{})

	rec := doJSON(t, handler, http.MethodPost, "/api/airdrop/v1/allocations", "ops-admin",
		`{"allocations":[{"participant":"alice","shares":"1.5"}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp airdrophttp.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Code != "invalid_allocation_input" {
		t.Fatalf("error code = %s, want invalid_allocation_input", resp.Code)
	}
}

func TestListSharesRejectsNegativeStartIndex(t *testing.T) {
	handler := newTestHandler(nil, ledgerStub{})

	rec := doJSON(t, handler, http.MethodGet, "/api/airdrop/v1/allocations?start_index=-1", "", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/airdrop/v1/allocations?start_index=500", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("out-of-range status = %d, want 200", rec.Code)
	}
	var page airdrophttp.SharePageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page.Allocations) != 0 {
		t.Fatalf("out-of-range page len = %d, want 0", len(page.Allocations))
	}
}
