package payment

import "time"

// Event types published on payment lifecycle transitions.
const (
	EventPaymentAccepted  = "payment.accepted"
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
)

// AggregateType identifies payment records in event envelopes.
const AggregateType = "payment"

// PaymentAcceptedEvent is published when a request passes validation and a
// PENDING record is created.
type PaymentAcceptedEvent struct {
	PaymentID    string  `json:"payment_id"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
	PayerAccount string  `json:"payer_account"`
	PayeeAccount string  `json:"payee_account"`
}

// PaymentCompletedEvent is published when a record reaches a terminal state.
type PaymentCompletedEvent struct {
	PaymentID           string    `json:"payment_id"`
	Status              Status    `json:"status"`
	SettlementReference string    `json:"settlement_reference,omitempty"`
	FailureReason       string    `json:"failure_reason,omitempty"`
	CompletedAt         time.Time `json:"completed_at"`
}
