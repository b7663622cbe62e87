package payment

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// Store persists payment records. The processor is the only writer.
type Store interface {
	// InsertPending atomically inserts a PENDING record keyed by id only
	// if no record with that id exists. Returns false if one already does.
	InsertPending(rec *PaymentRecord) bool
	// Get returns a copy of the record, or ErrNotFound.
	Get(id string) (*PaymentRecord, error)
	// Complete atomically transitions an existing PENDING record to a
	// terminal state. Returns false (no-op) if the record is missing or
	// already terminal; the caller logs that as an anomaly.
	Complete(id string, out Outcome) bool
	// AwaitTerminal blocks until the record reaches a terminal state or
	// ctx is done.
	AwaitTerminal(ctx context.Context, id string) (*PaymentRecord, error)
}

const shardCount = 32

// MemoryStore is a volatile, single-process record store. Records are
// sharded by id hash so operations on different ids do not contend; each
// shard serializes operations on the ids it owns.
type MemoryStore struct {
	shards [shardCount]shard
}

type shard struct {
	mu      sync.RWMutex
	records map[string]*storedRecord
}

type storedRecord struct {
	rec PaymentRecord
	// done is closed when the record transitions to a terminal state.
	done chan struct{}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i].records = make(map[string]*storedRecord)
	}
	return s
}

func (s *MemoryStore) shardFor(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &s.shards[h.Sum32()%shardCount]
}

// InsertPending implements Store.
func (s *MemoryStore) InsertPending(rec *PaymentRecord) bool {
	sh := s.shardFor(rec.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, exists := sh.records[rec.ID]; exists {
		return false
	}
	sh.records[rec.ID] = &storedRecord{
		rec:  *rec,
		done: make(chan struct{}),
	}
	return true
}

// Get implements Store.
func (s *MemoryStore) Get(id string) (*PaymentRecord, error) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	stored, ok := sh.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	rec := stored.rec
	return &rec, nil
}

// Complete implements Store. Terminal states are sinks: a second completion
// for the same id never re-mutates the record.
func (s *MemoryStore) Complete(id string, out Outcome) bool {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if out.Status != StatusSucceeded && out.Status != StatusFailed {
		return false
	}

	stored, ok := sh.records[id]
	if !ok || stored.rec.Status != StatusPending {
		return false
	}

	stored.rec.Status = out.Status
	stored.rec.SettlementReference = out.SettlementReference
	stored.rec.FailureReason = out.FailureReason
	stored.rec.UpdatedAt = time.Now().UTC()
	close(stored.done)
	return true
}

// AwaitTerminal implements Store.
func (s *MemoryStore) AwaitTerminal(ctx context.Context, id string) (*PaymentRecord, error) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	stored, ok := sh.records[id]
	if !ok {
		sh.mu.RUnlock()
		return nil, ErrNotFound
	}
	done := stored.done
	sh.mu.RUnlock()

	select {
	case <-done:
		return s.Get(id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
