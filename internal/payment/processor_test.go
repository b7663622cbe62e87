package payment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paygate/internal/common/events"
)

// stubSettlement is a SettlementClient with a programmable response and an
// invocation counter.
type stubSettlement struct {
	calls int32
	fn    func(ctx context.Context, req *PaymentRequest) (*SettlementOutcome, error)
}

func (s *stubSettlement) Submit(ctx context.Context, req *PaymentRequest) (*SettlementOutcome, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.fn(ctx, req)
}

func (s *stubSettlement) Calls() int32 {
	return atomic.LoadInt32(&s.calls)
}

func authorizing(reference string) *stubSettlement {
	return &stubSettlement{fn: func(ctx context.Context, req *PaymentRequest) (*SettlementOutcome, error) {
		return &SettlementOutcome{Authorized: true, Reference: reference}, nil
	}}
}

// timingOut blocks until the per-attempt deadline fires.
func timingOut() *stubSettlement {
	return &stubSettlement{fn: func(ctx context.Context, req *PaymentRequest) (*SettlementOutcome, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event *events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, len(p.events))
	for i, e := range p.events {
		types[i] = e.Type
	}
	return types
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProcessor(t *testing.T, bank SettlementClient, publisher events.Publisher) (*Processor, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	p, err := NewProcessor(testConfig(), store, bank, publisher, discardLogger())
	require.NoError(t, err)
	return p, store
}

func TestSubmitSuccess(t *testing.T) {
	bank := authorizing("ref-1")
	p, _ := newTestProcessor(t, bank, nil)

	req := validRequest()
	rec, err := p.Submit(context.Background(), &req)
	require.NoError(t, err)

	assert.Equal(t, "p1", rec.ID)
	assert.Equal(t, StatusSucceeded, rec.Status)
	assert.Equal(t, "ref-1", rec.SettlementReference)
	assert.Equal(t, int32(1), bank.Calls())

	status, err := p.GetStatus(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, rec, status)
}

func TestSubmitDoesNotMutateRequest(t *testing.T) {
	p, _ := newTestProcessor(t, authorizing("ref-1"), nil)

	req := validRequest()
	req.Metadata = map[string]string{"order": "o-1"}
	snapshot := req.Clone()

	_, err := p.Submit(context.Background(), &req)
	require.NoError(t, err)
	assert.Equal(t, snapshot, req)
}

func TestSubmitValidationErrorCreatesNoState(t *testing.T) {
	bank := authorizing("ref-1")
	p, _ := newTestProcessor(t, bank, nil)

	req := validRequest()
	req.Amount = -5

	_, err := p.Submit(context.Background(), &req)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Violations, 1)
	assert.Equal(t, Violation{Field: "amount", Reason: "must be positive"}, verr.Violations[0])
	assert.Equal(t, int32(0), bank.Calls())

	_, err = p.GetStatus(context.Background(), req.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitIsIdempotent(t *testing.T) {
	bank := authorizing("ref-1")
	p, _ := newTestProcessor(t, bank, nil)

	req := validRequest()
	first, err := p.Submit(context.Background(), &req)
	require.NoError(t, err)

	again := validRequest()
	second, err := p.Submit(context.Background(), &again)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), bank.Calls(), "settlement must not run twice for the same id")
}

func TestSubmitBusinessDeclineIsTerminal(t *testing.T) {
	bank := &stubSettlement{fn: func(ctx context.Context, req *PaymentRequest) (*SettlementOutcome, error) {
		return &SettlementOutcome{Authorized: false, Reason: "insufficient funds"}, nil
	}}
	p, _ := newTestProcessor(t, bank, nil)

	req := validRequest()
	rec, err := p.Submit(context.Background(), &req)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, "insufficient funds", rec.FailureReason)
	assert.Equal(t, int32(1), bank.Calls(), "non-retryable declines are not retried")
}

func TestSubmitRetriesTransportErrors(t *testing.T) {
	var attempts int32
	bank := &stubSettlement{fn: func(ctx context.Context, req *PaymentRequest) (*SettlementOutcome, error) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return nil, errors.New("connection refused")
		}
		return &SettlementOutcome{Authorized: true, Reference: "ref-1"}, nil
	}}
	p, _ := newTestProcessor(t, bank, nil)

	req := validRequest()
	rec, err := p.Submit(context.Background(), &req)
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, rec.Status)
	assert.Equal(t, int32(3), bank.Calls())
}

func TestSubmitRetriesRetryableDeclines(t *testing.T) {
	var attempts int32
	bank := &stubSettlement{fn: func(ctx context.Context, req *PaymentRequest) (*SettlementOutcome, error) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			return &SettlementOutcome{Authorized: false, Reason: "try again", Retryable: true}, nil
		}
		return &SettlementOutcome{Authorized: true, Reference: "ref-1"}, nil
	}}
	p, _ := newTestProcessor(t, bank, nil)

	req := validRequest()
	rec, err := p.Submit(context.Background(), &req)
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, rec.Status)
	assert.Equal(t, int32(2), bank.Calls())
}

func TestSubmitNilOutcomeWithoutErrorIsRetried(t *testing.T) {
	var attempts int32
	bank := &stubSettlement{fn: func(ctx context.Context, req *PaymentRequest) (*SettlementOutcome, error) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			return nil, nil
		}
		return &SettlementOutcome{Authorized: true, Reference: "ref-1"}, nil
	}}
	p, _ := newTestProcessor(t, bank, nil)

	req := validRequest()
	rec, err := p.Submit(context.Background(), &req)
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, rec.Status)
	assert.Equal(t, int32(2), bank.Calls())
}

func TestSubmitTimeoutExhaustsRetries(t *testing.T) {
	bank := timingOut()
	p, _ := newTestProcessor(t, bank, nil)

	req := validRequest()
	rec, err := p.Submit(context.Background(), &req)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, rec.Status)
	assert.Contains(t, rec.FailureReason, "settlement timed out")
	assert.Equal(t, int32(3), bank.Calls(), "one attempt per configured retry")

	// The record must not remain PENDING after Submit returns.
	status, err := p.GetStatus(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, status.Status)
}

func TestSubmitConcurrentDuplicatesSettleOnce(t *testing.T) {
	release := make(chan struct{})
	bank := &stubSettlement{fn: func(ctx context.Context, req *PaymentRequest) (*SettlementOutcome, error) {
		<-release
		return &SettlementOutcome{Authorized: true, Reference: "ref-1"}, nil
	}}
	p, _ := newTestProcessor(t, bank, nil)

	const n = 20
	results := make(chan *PaymentRecord, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			req := validRequest()
			rec, err := p.Submit(context.Background(), &req)
			assert.NoError(t, err)
			results <- rec
		}()
	}

	// Let every duplicate reach the idempotency guard before the
	// settlement call resolves.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	var first *PaymentRecord
	count := 0
	for rec := range results {
		count++
		if first == nil {
			first = rec
			continue
		}
		assert.Equal(t, first, rec)
	}
	assert.Equal(t, n, count)
	assert.Equal(t, int32(1), bank.Calls(), "exactly one settlement attempt for concurrent duplicates")
	assert.Equal(t, StatusSucceeded, first.Status)
}

func TestSubmitPublishesLifecycleEvents(t *testing.T) {
	pub := &recordingPublisher{}
	p, _ := newTestProcessor(t, authorizing("ref-1"), pub)

	req := validRequest()
	_, err := p.Submit(context.Background(), &req)
	require.NoError(t, err)

	assert.Equal(t, []string{EventPaymentAccepted, EventPaymentSucceeded}, pub.Types())
}

func TestSubmitPublishesFailureEvent(t *testing.T) {
	pub := &recordingPublisher{}
	bank := &stubSettlement{fn: func(ctx context.Context, req *PaymentRequest) (*SettlementOutcome, error) {
		return &SettlementOutcome{Authorized: false, Reason: "declined"}, nil
	}}
	p, _ := newTestProcessor(t, bank, pub)

	req := validRequest()
	_, err := p.Submit(context.Background(), &req)
	require.NoError(t, err)

	assert.Equal(t, []string{EventPaymentAccepted, EventPaymentFailed}, pub.Types())
}

func TestGetStatusUnknown(t *testing.T) {
	p, _ := newTestProcessor(t, authorizing("ref-1"), nil)

	_, err := p.GetStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewProcessorRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.SettlementMaxRetries = 0

	_, err := NewProcessor(cfg, NewMemoryStore(), authorizing("ref-1"), nil, discardLogger())
	assert.Error(t, err)
}
