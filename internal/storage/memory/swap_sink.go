package memory

import (
	"context"
	"sync"

	"raydium-swap-ingest/internal/domain"
	"raydium-swap-ingest/internal/storage"
)

// SwapSink is an in-memory implementation of storage.SwapSink.
type SwapSink struct {
	mu      sync.RWMutex
	data    map[domain.DedupKey]domain.SwapRecord
	batches int
	fail    []error // scripted failures, consumed one per InsertBatch
}

// NewSwapSink creates a new in-memory swap sink.
func NewSwapSink() *SwapSink {
	return &SwapSink{
		data: make(map[domain.DedupKey]domain.SwapRecord),
	}
}

// Compile-time interface checks.
var (
	_ storage.SwapSink   = (*SwapSink)(nil)
	_ storage.SwapReader = (*SwapSink)(nil)
)

// Name returns "memory".
func (s *SwapSink) Name() string {
	return "memory"
}

// InsertBatch stores records, skipping keys already present. The batch is
// applied atomically.
func (s *SwapSink) InsertBatch(_ context.Context, records []domain.SwapRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.fail) > 0 {
		err := s.fail[0]
		s.fail = s.fail[1:]
		if err != nil {
			return &storage.SinkError{Sink: s.Name(), Records: len(records), Err: err}
		}
	}

	for _, r := range records {
		if r.Signature == "" {
			return &storage.SinkError{Sink: s.Name(), Records: len(records), Err: storage.ErrInvalidInput}
		}
	}

	s.batches++
	for _, r := range records {
		if _, exists := s.data[r.Key()]; exists {
			continue
		}
		s.data[r.Key()] = r
	}
	return nil
}

// Fail scripts the next InsertBatch calls to return errs in order.
// A nil entry lets that call through.
func (s *SwapSink) Fail(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = append(s.fail, errs...)
}

// Count returns the number of stored records.
func (s *SwapSink) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data), nil
}

// GetByKey returns a stored record. Returns ErrNotFound if absent.
func (s *SwapSink) GetByKey(_ context.Context, key domain.DedupKey) (*domain.SwapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &r, nil
}

// Batches returns the number of successful InsertBatch calls.
func (s *SwapSink) Batches() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.batches
}

// Records returns all stored records ordered by (slot, signature, instruction index).
func (s *SwapSink) Records() []domain.SwapRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.SwapRecord, 0, len(s.data))
	for _, r := range s.data {
		out = append(out, r)
	}
	domain.SortRecords(out)
	return out
}
