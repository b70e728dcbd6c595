package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainerrors "tokendrop/contexts/token-distribution/airdrop-service/domain/errors"
	"tokendrop/contexts/token-distribution/airdrop-service/domain/valueobjects"
	"tokendrop/contexts/token-distribution/airdrop-service/ports"
)

const defaultTimeout = 10 * time.Second

// Client talks to the remote ledger service over HTTP. Every failure,
// transport-level or reported by the ledger, is wrapped as an opaque
// RemoteError; the engine never inspects the message.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
}

type transferRequest struct {
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
}

type errorResponse struct {
	Message string `json:"message"`
}

type amountResponse struct {
	Amount string `json:"amount"`
}

func (c *Client) Transfer(ctx context.Context, ledger, destination valueobjects.Identity, amount valueobjects.Amount) error {
	body, err := json.Marshal(transferRequest{
		Destination: destination.String(),
		Amount:      amount.String(),
	})
	if err != nil {
		return domainerrors.NewRemoteError("transfer", err.Error())
	}

	endpoint := c.ledgerPath(ledger, "transfers")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domainerrors.NewRemoteError("transfer", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domainerrors.NewRemoteError("transfer", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		message := readErrorMessage(resp)
		c.logger.Warn("ledger transfer rejected",
			"event", "ledger_transfer_rejected",
			"module", "token-distribution/airdrop-service",
			"layer", "adapter",
			"destination", destination.String(),
			"status", resp.StatusCode,
			"message", message,
		)
		return domainerrors.NewRemoteError("transfer", message)
	}
	return nil
}

func (c *Client) FeePerTransfer(ctx context.Context, ledger valueobjects.Identity) (valueobjects.Amount, error) {
	return c.fetchAmount(ctx, "fee", c.ledgerPath(ledger, "fee"))
}

func (c *Client) BalanceOf(ctx context.Context, ledger, account valueobjects.Identity) (valueobjects.Amount, error) {
	endpoint := c.ledgerPath(ledger, "accounts/"+url.PathEscape(account.String())+"/balance")
	return c.fetchAmount(ctx, "balance_of", endpoint)
}

func (c *Client) fetchAmount(ctx context.Context, op, endpoint string) (valueobjects.Amount, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return valueobjects.Amount{}, domainerrors.NewRemoteError(op, err.Error())
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return valueobjects.Amount{}, domainerrors.NewRemoteError(op, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return valueobjects.Amount{}, domainerrors.NewRemoteError(op, readErrorMessage(resp))
	}

	var payload amountResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return valueobjects.Amount{}, domainerrors.NewRemoteError(op, err.Error())
	}
	amount, err := valueobjects.ParseAmount(payload.Amount)
	if err != nil {
		return valueobjects.Amount{}, domainerrors.NewRemoteError(op, err.Error())
	}
	return amount, nil
}

func (c *Client) ledgerPath(ledger valueobjects.Identity, suffix string) string {
	return fmt.Sprintf("%s/v1/ledgers/%s/%s", c.baseURL, url.PathEscape(ledger.String()), suffix)
}

func readErrorMessage(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(body) == 0 {
		return fmt.Sprintf("status %d", resp.StatusCode)
	}
	var payload errorResponse
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(body))
}

var _ ports.LedgerClient = (*Client)(nil)
