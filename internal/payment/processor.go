package payment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"paygate/internal/common/events"
)

// Processor orchestrates the submission workflow: validation, the
// idempotency guard, the settlement call with its retry policy, and the
// record store update.
type Processor struct {
	cfg       Config
	validator *Validator
	store     Store
	bank      SettlementClient
	publisher events.Publisher
	logger    *slog.Logger
}

// NewProcessor creates a processor. The store instance is injected so
// callers control its lifetime; there is no process-wide singleton.
func NewProcessor(cfg Config, store Store, bank SettlementClient, publisher events.Publisher, logger *slog.Logger) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	validator, err := NewValidator(cfg)
	if err != nil {
		return nil, err
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Processor{
		cfg:       cfg,
		validator: validator,
		store:     store,
		bank:      bank,
		publisher: publisher,
		logger:    logger,
	}, nil
}

// Submit validates and settles a payment request. It returns a terminal
// PaymentRecord, or *ValidationError for rejected requests. Settlement
// problems never escape as errors: they resolve to a FAILED record.
//
// Re-submitting an id returns the prior outcome without contacting the
// settlement authority again.
func (p *Processor) Submit(ctx context.Context, req *PaymentRequest) (*PaymentRecord, error) {
	if violations := p.validator.Validate(req); len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	rec := NewPendingRecord(req)
	if !p.store.InsertPending(rec) {
		p.logger.Info("duplicate submission, returning prior record",
			"payment_id", req.ID,
		)
		existing, err := p.store.AwaitTerminal(ctx, req.ID)
		if err == nil {
			return existing, nil
		}
		// Caller gave up waiting; report whatever state the record is in.
		return p.store.Get(req.ID)
	}

	p.publishAccepted(ctx, req)
	p.logger.Info("payment accepted",
		"payment_id", req.ID,
		"amount", req.Amount,
		"currency", req.Currency,
	)

	outcome := p.settle(ctx, req)
	if !p.store.Complete(req.ID, outcome) {
		// The insert above makes this id ours exclusively, so a failed
		// completion means a programming error or a race; the record is
		// left untouched either way.
		p.logger.Error("completion was a no-op",
			"payment_id", req.ID,
			"status", outcome.Status,
		)
	}

	result, err := p.store.Get(req.ID)
	if err != nil {
		return nil, fmt.Errorf("reading completed record %s: %w", req.ID, err)
	}

	p.publishCompleted(ctx, result)
	p.logger.Info("payment completed",
		"payment_id", result.ID,
		"status", result.Status,
		"settlement_reference", result.SettlementReference,
		"failure_reason", result.FailureReason,
	)

	return result, nil
}

// GetStatus returns the current record for a payment id, or ErrNotFound.
func (p *Processor) GetStatus(ctx context.Context, id string) (*PaymentRecord, error) {
	return p.store.Get(id)
}

// attemptOutcome classifies a single settlement attempt.
type attemptOutcome int

const (
	attemptSucceeded attemptOutcome = iota
	attemptRetryable
	attemptDeclined
)

// settle runs the settlement call under the retry policy and always
// resolves to a terminal outcome. Transport errors and retryable declines
// are retried with backoff up to SettlementMaxRetries attempts; exhaustion
// resolves as FAILED with a timeout reason.
func (p *Processor) settle(ctx context.Context, req *PaymentRequest) Outcome {
	var lastReason string

	for attempt := 1; attempt <= p.cfg.SettlementMaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.SettlementTimeout)
		res, err := p.bank.Submit(attemptCtx, req)
		cancel()

		switch classifyAttempt(res, err) {
		case attemptSucceeded:
			return Outcome{
				Status:              StatusSucceeded,
				SettlementReference: res.Reference,
			}
		case attemptDeclined:
			return Outcome{
				Status:        StatusFailed,
				FailureReason: res.Reason,
			}
		case attemptRetryable:
			switch {
			case err != nil:
				lastReason = err.Error()
				p.logger.Warn("settlement attempt failed",
					"payment_id", req.ID,
					"attempt", attempt,
					"error", err,
				)
			case res == nil:
				lastReason = "settlement client returned no outcome"
				p.logger.Warn("settlement attempt returned no outcome",
					"payment_id", req.ID,
					"attempt", attempt,
				)
			default:
				lastReason = res.Reason
				p.logger.Warn("settlement attempt declined as retryable",
					"payment_id", req.ID,
					"attempt", attempt,
					"reason", res.Reason,
				)
			}
		}

		if attempt < p.cfg.SettlementMaxRetries {
			select {
			case <-time.After(time.Duration(attempt) * p.cfg.RetryBackoff):
			case <-ctx.Done():
				return Outcome{
					Status:        StatusFailed,
					FailureReason: fmt.Sprintf("settlement timed out: %v", ctx.Err()),
				}
			}
		}
	}

	reason := fmt.Sprintf("settlement timed out after %d attempts", p.cfg.SettlementMaxRetries)
	if lastReason != "" {
		reason = fmt.Sprintf("%s: %s", reason, lastReason)
	}
	return Outcome{Status: StatusFailed, FailureReason: reason}
}

// classifyAttempt maps a settlement result to the retry policy. A transport
// error is always retryable; a structured decline is terminal unless the
// authority marked it transient. A nil outcome without an error violates the
// SettlementClient contract and is treated as a transport fault.
func classifyAttempt(res *SettlementOutcome, err error) attemptOutcome {
	switch {
	case err != nil, res == nil:
		return attemptRetryable
	case res.Authorized:
		return attemptSucceeded
	case res.Retryable:
		return attemptRetryable
	default:
		return attemptDeclined
	}
}

func (p *Processor) publishAccepted(ctx context.Context, req *PaymentRequest) {
	event, err := events.NewEvent(EventPaymentAccepted, AggregateType, req.ID, &PaymentAcceptedEvent{
		PaymentID:    req.ID,
		Amount:       req.Amount,
		Currency:     req.Currency,
		PayerAccount: req.PayerAccount,
		PayeeAccount: req.PayeeAccount,
	})
	if err != nil {
		p.logger.Warn("encoding accepted event", "payment_id", req.ID, "error", err)
		return
	}
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logger.Warn("publishing accepted event", "payment_id", req.ID, "error", err)
	}
}

func (p *Processor) publishCompleted(ctx context.Context, rec *PaymentRecord) {
	eventType := EventPaymentSucceeded
	if rec.Status == StatusFailed {
		eventType = EventPaymentFailed
	}
	event, err := events.NewEvent(eventType, AggregateType, rec.ID, &PaymentCompletedEvent{
		PaymentID:           rec.ID,
		Status:              rec.Status,
		SettlementReference: rec.SettlementReference,
		FailureReason:       rec.FailureReason,
		CompletedAt:         rec.UpdatedAt,
	})
	if err != nil {
		p.logger.Warn("encoding completed event", "payment_id", rec.ID, "error", err)
		return
	}
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logger.Warn("publishing completed event", "payment_id", rec.ID, "error", err)
	}
}
