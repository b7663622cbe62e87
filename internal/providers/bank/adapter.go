// Package bank provides the settlement client for the bank simulator API.
package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"paygate/internal/common/money"
	"paygate/internal/payment"
)

// Config holds bank adapter configuration.
type Config struct {
	BaseURL string        `envconfig:"BANK_URL" default:"http://localhost:8080"`
	APIKey  string        `envconfig:"BANK_API_KEY"`
	Timeout time.Duration `envconfig:"BANK_TIMEOUT" default:"30s"`
}

// submitRequest is the wire format the bank expects. Amounts are sent in
// minor units.
type submitRequest struct {
	PaymentID    string `json:"payment_id"`
	PayerAccount string `json:"payer_account"`
	PayeeAccount string `json:"payee_account"`
	Currency     string `json:"currency"`
	AmountMinor  int64  `json:"amount"`
}

// submitResponse is the bank's settlement decision.
type submitResponse struct {
	Authorized        bool   `json:"authorized"`
	AuthorizationCode string `json:"authorization_code"`
	Error             string `json:"error,omitempty"`
}

// Client implements payment.SettlementClient against the bank's HTTP API.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a bank client.
func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// Submit sends the payment to the bank and maps its decision to a
// settlement outcome. Network failures, 5xx responses, and malformed
// responses return an error (the transport path); every readable decision
// returns an outcome.
func (c *Client) Submit(ctx context.Context, req *payment.PaymentRequest) (*payment.SettlementOutcome, error) {
	amount := money.NewFromMajor(req.Amount, money.Currency(req.Currency))

	body, err := json.Marshal(submitRequest{
		PaymentID:    req.ID,
		PayerAccount: req.PayerAccount,
		PayeeAccount: req.PayeeAccount,
		Currency:     req.Currency,
		AmountMinor:  amount.AmountMinor,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	c.logger.Debug("submitting payment to bank",
		"payment_id", req.ID,
		"amount_minor", amount.AmountMinor,
		"currency", req.Currency,
	)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode >= 500 {
		return nil, fmt.Errorf("bank api error: status=%d body=%s", httpResp.StatusCode, string(respBody))
	}

	var resp submitResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		reason := resp.Error
		if reason == "" {
			reason = fmt.Sprintf("bank rejected request with status %d", httpResp.StatusCode)
		}
		return &payment.SettlementOutcome{
			Authorized: false,
			Reason:     reason,
			Retryable:  httpResp.StatusCode == http.StatusTooManyRequests,
		}, nil
	}

	if resp.Authorized {
		if resp.AuthorizationCode == "" {
			// An authorization without a reference is unusable; treat it
			// like a transport fault so the retry policy applies.
			return nil, fmt.Errorf("bank authorized without an authorization code")
		}
		return &payment.SettlementOutcome{
			Authorized: true,
			Reference:  resp.AuthorizationCode,
		}, nil
	}

	reason := resp.Error
	if reason == "" {
		reason = "declined by bank"
	}
	return &payment.SettlementOutcome{
		Authorized: false,
		Reason:     reason,
	}, nil
}
