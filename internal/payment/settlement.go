package payment

import "context"

// SettlementOutcome is the business result of a settlement attempt. A nil
// outcome with a non-nil error from Submit is a transport-level failure,
// which is a different thing: transport failures are retried, declines are
// recorded.
type SettlementOutcome struct {
	// Authorized reports whether the settlement authority accepted the
	// payment.
	Authorized bool
	// Reference is the authority's opaque settlement reference, set on
	// success.
	Reference string
	// Reason describes a decline, preserved verbatim in the record.
	Reason string
	// Retryable marks declines the authority considers transient.
	Retryable bool
}

// SettlementClient submits payments to the external settlement authority.
// Submit may block for the duration of an external call and must honor ctx
// cancellation.
type SettlementClient interface {
	Submit(ctx context.Context, req *PaymentRequest) (*SettlementOutcome, error)
}
