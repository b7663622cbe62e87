// Package payment implements the payment processing engine: request
// validation, the submission/settlement workflow, and the concurrency-safe
// record store backing status lookups.
package payment

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a payment record.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// PaymentRequest is an inbound request to move money from a payer to a
// payee. It is immutable once validated; the processor never mutates it.
type PaymentRequest struct {
	ID           string            `json:"id"`
	Amount       float64           `json:"amount"`
	Currency     string            `json:"currency"`
	PayerAccount string            `json:"payerAccount"`
	PayeeAccount string            `json:"payeeAccount"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the request.
func (r *PaymentRequest) Clone() PaymentRequest {
	cp := *r
	if r.Metadata != nil {
		cp.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}

// PaymentRecord is the stored state of a payment, keyed by the request id.
type PaymentRecord struct {
	ID                  string         `json:"id"`
	Status              Status         `json:"status"`
	Request             PaymentRequest `json:"request"`
	SettlementReference string         `json:"settlementReference,omitempty"`
	FailureReason       string         `json:"failureReason,omitempty"`
	CreatedAt           time.Time      `json:"createdAt"`
	UpdatedAt           time.Time      `json:"updatedAt"`
}

// NewPendingRecord creates a PENDING record from a validated request.
func NewPendingRecord(req *PaymentRequest) *PaymentRecord {
	now := time.Now().UTC()
	return &PaymentRecord{
		ID:        req.ID,
		Status:    StatusPending,
		Request:   req.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsTerminal returns true once the record has reached SUCCEEDED or FAILED.
func (r *PaymentRecord) IsTerminal() bool {
	return r.Status == StatusSucceeded || r.Status == StatusFailed
}

// Outcome is the resolved result applied to a PENDING record.
type Outcome struct {
	Status              Status
	SettlementReference string
	FailureReason       string
}

// ErrNotFound is returned by status lookups for unknown payment ids.
var ErrNotFound = errors.New("payment not found")

// Violation is a single field-level validation failure.
type Violation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError carries the complete ordered list of violations for a
// rejected request. No state is created for rejected requests.
type ValidationError struct {
	Violations []Violation
}

// Error implements error.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("%s %s", v.Field, v.Reason)
	}
	return "invalid payment request: " + strings.Join(parts, "; ")
}

// Details returns the violations as a field -> reason map for API responses.
func (e *ValidationError) Details() map[string]string {
	details := make(map[string]string, len(e.Violations))
	for _, v := range e.Violations {
		details[v.Field] = v.Reason
	}
	return details
}
