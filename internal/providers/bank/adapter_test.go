package bank

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paygate/internal/payment"
)

func testRequest() *payment.PaymentRequest {
	return &payment.PaymentRequest{
		ID:           "p1",
		Amount:       100.00,
		Currency:     "USD",
		PayerAccount: "A1",
		PayeeAccount: "B2",
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{BaseURL: server.URL, Timeout: time.Second}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSubmitAuthorized(t *testing.T) {
	var received submitRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		json.NewEncoder(w).Encode(submitResponse{Authorized: true, AuthorizationCode: "auth-123"})
	})

	outcome, err := client.Submit(context.Background(), testRequest())
	require.NoError(t, err)

	assert.True(t, outcome.Authorized)
	assert.Equal(t, "auth-123", outcome.Reference)

	// 100.00 USD travels as 10000 minor units.
	assert.Equal(t, int64(10000), received.AmountMinor)
	assert.Equal(t, "p1", received.PaymentID)
	assert.Equal(t, "A1", received.PayerAccount)
	assert.Equal(t, "B2", received.PayeeAccount)
}

func TestSubmitDeclined(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(submitResponse{Authorized: false, Error: "insufficient funds"})
	})

	outcome, err := client.Submit(context.Background(), testRequest())
	require.NoError(t, err)

	assert.False(t, outcome.Authorized)
	assert.False(t, outcome.Retryable)
	assert.Equal(t, "insufficient funds", outcome.Reason)
}

func TestSubmitDeclinedWithoutReason(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(submitResponse{Authorized: false})
	})

	outcome, err := client.Submit(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "declined by bank", outcome.Reason)
}

func TestSubmitServerErrorIsTransport(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	outcome, err := client.Submit(context.Background(), testRequest())
	assert.Error(t, err)
	assert.Nil(t, outcome)
}

func TestSubmitRejectionIsBusinessFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(submitResponse{Error: "unknown account"})
	})

	outcome, err := client.Submit(context.Background(), testRequest())
	require.NoError(t, err)

	assert.False(t, outcome.Authorized)
	assert.False(t, outcome.Retryable)
	assert.Equal(t, "unknown account", outcome.Reason)
}

func TestSubmitRateLimitIsRetryable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(submitResponse{Error: "slow down"})
	})

	outcome, err := client.Submit(context.Background(), testRequest())
	require.NoError(t, err)

	assert.False(t, outcome.Authorized)
	assert.True(t, outcome.Retryable)
}

func TestSubmitAuthorizedWithoutCodeIsTransport(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(submitResponse{Authorized: true})
	})

	_, err := client.Submit(context.Background(), testRequest())
	assert.Error(t, err)
}

func TestSubmitUnreachable(t *testing.T) {
	client := New(Config{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := client.Submit(context.Background(), testRequest())
	assert.Error(t, err)
}
