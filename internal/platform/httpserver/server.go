package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	airdropservice "tokendrop/contexts/token-distribution/airdrop-service"
	airdroperrors "tokendrop/contexts/token-distribution/airdrop-service/domain/errors"
	airdrophttp "tokendrop/contexts/token-distribution/airdrop-service/transport/http"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "tokendrop/internal/platform/httpserver/docs"
)

type Server struct {
	mux     *http.ServeMux
	logger  *slog.Logger
	addr    string
	airdrop airdropservice.Module
}

func New(airdrop airdropservice.Module, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:     http.NewServeMux(),
		logger:  logger,
		addr:    addr,
		airdrop: airdrop,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("PUT /api/airdrop/v1/ledger-reference", s.handleSetLedgerReference)
	s.mux.HandleFunc("POST /api/airdrop/v1/ledger-reference/validate", s.handleValidateSetLedgerReference)
	s.mux.HandleFunc("POST /api/airdrop/v1/allocations", s.handleAddAllocations)
	s.mux.HandleFunc("POST /api/airdrop/v1/allocations/validate", s.handleValidateAddAllocations)
	s.mux.HandleFunc("POST /api/airdrop/v1/distributions", s.handleDistribute)
	s.mux.HandleFunc("POST /api/airdrop/v1/distributions/validate", s.handleValidateDistribute)
	s.mux.HandleFunc("POST /api/airdrop/v1/reset", s.handleReset)
	s.mux.HandleFunc("POST /api/airdrop/v1/reset/validate", s.handleValidateReset)

	s.mux.HandleFunc("GET /api/airdrop/v1/ledger-reference", s.handleGetLedgerReference)
	s.mux.HandleFunc("GET /api/airdrop/v1/allocations", s.handleListShares)
	s.mux.HandleFunc("GET /api/airdrop/v1/allocations/{participant}", s.handleGetShareAllocation)
	s.mux.HandleFunc("GET /api/airdrop/v1/payouts", s.handleListTokens)
	s.mux.HandleFunc("GET /api/airdrop/v1/payouts/{participant}", s.handleGetTokenAllocation)
	s.mux.HandleFunc("GET /api/airdrop/v1/interrupted", s.handleListInterrupted)
}

func (s *Server) handleSetLedgerReference(w http.ResponseWriter, r *http.Request) {
	var req airdrophttp.SetLedgerReferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAirdropError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}
	if err := s.airdrop.Handler.SetLedgerReferenceHandler(r.Context(), callerID(r), req); err != nil {
		writeAirdropDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleValidateSetLedgerReference(w http.ResponseWriter, r *http.Request) {
	var req airdrophttp.SetLedgerReferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAirdropError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}
	writeValidateResult(w, s.airdrop.Handler.ValidateSetLedgerReferenceHandler(r.Context(), callerID(r), req))
}

func (s *Server) handleAddAllocations(w http.ResponseWriter, r *http.Request) {
	var req airdrophttp.AddAllocationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAirdropError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}
	if err := s.airdrop.Handler.AddAllocationsHandler(r.Context(), callerID(r), req); err != nil {
		writeAirdropDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleValidateAddAllocations(w http.ResponseWriter, r *http.Request) {
	var req airdrophttp.AddAllocationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAirdropError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}
	writeValidateResult(w, s.airdrop.Handler.ValidateAddAllocationsHandler(r.Context(), callerID(r), req))
}

func (s *Server) handleDistribute(w http.ResponseWriter, r *http.Request) {
	resp, err := s.airdrop.Handler.DistributeHandler(r.Context(), callerID(r))
	if err != nil {
		writeAirdropDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleValidateDistribute(w http.ResponseWriter, r *http.Request) {
	writeValidateResult(w, s.airdrop.Handler.ValidateDistributeHandler(r.Context(), callerID(r)))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.airdrop.Handler.ResetHandler(r.Context(), callerID(r)); err != nil {
		writeAirdropDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleValidateReset(w http.ResponseWriter, r *http.Request) {
	writeValidateResult(w, s.airdrop.Handler.ValidateResetHandler(r.Context(), callerID(r)))
}

func (s *Server) handleGetLedgerReference(w http.ResponseWriter, r *http.Request) {
	resp, err := s.airdrop.Handler.GetLedgerReferenceHandler(r.Context())
	if err != nil {
		writeAirdropDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetShareAllocation(w http.ResponseWriter, r *http.Request) {
	resp, err := s.airdrop.Handler.GetShareAllocationHandler(r.Context(), r.PathValue("participant"))
	if err != nil {
		writeAirdropDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetTokenAllocation(w http.ResponseWriter, r *http.Request) {
	resp, err := s.airdrop.Handler.GetTokenAllocationHandler(r.Context(), r.PathValue("participant"))
	if err != nil {
		writeAirdropDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListShares(w http.ResponseWriter, r *http.Request) {
	startIndex, ok := startIndexParam(w, r)
	if !ok {
		return
	}
	resp, err := s.airdrop.Handler.ListSharesHandler(r.Context(), startIndex)
	if err != nil {
		writeAirdropDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	startIndex, ok := startIndexParam(w, r)
	if !ok {
		return
	}
	resp, err := s.airdrop.Handler.ListTokensHandler(r.Context(), startIndex)
	if err != nil {
		writeAirdropDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListInterrupted(w http.ResponseWriter, r *http.Request) {
	resp, err := s.airdrop.Handler.ListInterruptedHandler(r.Context())
	if err != nil {
		writeAirdropDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func callerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Caller-Id"))
}

func startIndexParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("start_index")
	if raw == "" {
		return 0, true
	}
	startIndex, err := strconv.Atoi(raw)
	if err != nil || startIndex < 0 {
		writeAirdropError(w, http.StatusBadRequest, "invalid_start_index", "start_index must be a non-negative integer")
		return 0, false
	}
	return startIndex, true
}

// writeValidateResult reports the validate twin's accept/reject decision.
// The simulation itself succeeds either way, so the status is 200 and the
// classification rides in the body.
func writeValidateResult(w http.ResponseWriter, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, airdrophttp.ValidateResponse{Valid: true})
		return
	}
	writeJSON(w, http.StatusOK, airdrophttp.ValidateResponse{
		Valid: false,
		Code:  airdropErrorCode(err),
		Error: err.Error(),
	})
}

func writeAirdropDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, airdroperrors.ErrUnauthorized):
		writeAirdropError(w, http.StatusForbidden, "unauthorized", err.Error())
	case errors.Is(err, airdroperrors.ErrLedgerNotConfigured):
		writeAirdropError(w, http.StatusConflict, "ledger_not_configured", err.Error())
	case errors.Is(err, airdroperrors.ErrInvalidAllocationInput):
		writeAirdropError(w, http.StatusBadRequest, "invalid_allocation_input", err.Error())
	case errors.Is(err, airdroperrors.ErrEmptyAllocationList):
		writeAirdropError(w, http.StatusConflict, "empty_allocation_list", err.Error())
	case errors.Is(err, airdroperrors.ErrZeroShareSum):
		writeAirdropError(w, http.StatusConflict, "zero_share_sum", err.Error())
	case errors.Is(err, airdroperrors.ErrInsufficientBalance):
		writeAirdropError(w, http.StatusConflict, "insufficient_balance", err.Error())
	case errors.Is(err, airdroperrors.ErrZeroPayoutRate):
		writeAirdropError(w, http.StatusConflict, "zero_payout_rate", err.Error())
	case errors.Is(err, airdroperrors.ErrAllocationNotFound):
		writeAirdropError(w, http.StatusNotFound, "allocation_not_found", err.Error())
	case airdroperrors.IsRemote(err):
		writeAirdropError(w, http.StatusBadGateway, "ledger_remote_failure", err.Error())
	default:
		writeAirdropError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func airdropErrorCode(err error) string {
	switch {
	case errors.Is(err, airdroperrors.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, airdroperrors.ErrLedgerNotConfigured):
		return "ledger_not_configured"
	case errors.Is(err, airdroperrors.ErrInvalidAllocationInput):
		return "invalid_allocation_input"
	case errors.Is(err, airdroperrors.ErrEmptyAllocationList):
		return "empty_allocation_list"
	case errors.Is(err, airdroperrors.ErrZeroShareSum):
		return "zero_share_sum"
	case errors.Is(err, airdroperrors.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, airdroperrors.ErrZeroPayoutRate):
		return "zero_payout_rate"
	case airdroperrors.IsRemote(err):
		return "ledger_remote_failure"
	default:
		return "internal_error"
	}
}

func writeAirdropError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, airdrophttp.ErrorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
