package storage

import (
	"context"

	"raydium-swap-ingest/internal/domain"
)

// SwapSink persists swap records.
type SwapSink interface {
	// InsertBatch writes records idempotently under (signature,
	// instruction_index): records already stored are skipped without error.
	// Failures are returned as *SinkError.
	InsertBatch(ctx context.Context, records []domain.SwapRecord) error

	// Name identifies the backend in logs and metrics.
	Name() string
}

// SwapReader reads stored swap records back. Sinks implement it for tests
// and verification tooling.
type SwapReader interface {
	// Count returns the number of distinct stored keys.
	Count(ctx context.Context) (int, error)

	// GetByKey returns a stored record. Returns ErrNotFound if absent.
	GetByKey(ctx context.Context, key domain.DedupKey) (*domain.SwapRecord, error)
}
