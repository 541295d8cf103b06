package memory

import (
	"context"
	"sync"
	"time"

	"raydium-swap-ingest/internal/storage"
)

// WatermarkStore is an in-memory implementation of storage.WatermarkStore.
type WatermarkStore struct {
	mu      sync.RWMutex
	streams map[string]storage.Watermark
	sets    int
}

// NewWatermarkStore creates a new in-memory watermark store.
func NewWatermarkStore() *WatermarkStore {
	return &WatermarkStore{
		streams: make(map[string]storage.Watermark),
	}
}

var _ storage.WatermarkStore = (*WatermarkStore)(nil)

// Get returns the watermark of a stream.
func (s *WatermarkStore) Get(_ context.Context, stream string) (*storage.Watermark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.streams[stream]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &w, nil
}

// Set saves the watermark of a stream.
func (s *WatermarkStore) Set(_ context.Context, stream string, w *storage.Watermark) error {
	if w == nil || stream == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved := *w
	if saved.UpdatedAt.IsZero() {
		saved.UpdatedAt = time.Now().UTC()
	}
	s.streams[stream] = saved
	s.sets++
	return nil
}

// Sets returns the number of successful Set calls.
func (s *WatermarkStore) Sets() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sets
}
