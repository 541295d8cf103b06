package postgres

import (
	"context"
	"fmt"

	"raydium-swap-ingest/internal/storage"
)

// WatermarkStore is a PostgreSQL implementation of storage.WatermarkStore
// backed by the ingest_watermarks table.
type WatermarkStore struct {
	pool *Pool
}

// NewWatermarkStore creates a new PostgreSQL watermark store.
func NewWatermarkStore(pool *Pool) *WatermarkStore {
	return &WatermarkStore{pool: pool}
}

var _ storage.WatermarkStore = (*WatermarkStore)(nil)

// Get returns the watermark of a stream.
func (s *WatermarkStore) Get(ctx context.Context, stream string) (*storage.Watermark, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT slot, signature, updated_at
		FROM ingest_watermarks
		WHERE stream = $1
	`, stream)

	var (
		w    storage.Watermark
		slot int64
	)
	if err := row.Scan(&slot, &w.Signature, &w.UpdatedAt); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get watermark %s: %w", stream, err)
	}
	w.Slot = uint64(slot)
	w.UpdatedAt = w.UpdatedAt.UTC()
	return &w, nil
}

// Set saves the watermark of a stream.
// Uses upsert to handle initial insert and subsequent updates.
func (s *WatermarkStore) Set(ctx context.Context, stream string, w *storage.Watermark) error {
	if w == nil || stream == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO ingest_watermarks (stream, slot, signature, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (stream) DO UPDATE
		SET slot = EXCLUDED.slot,
		    signature = EXCLUDED.signature,
		    updated_at = NOW()
	`, stream, int64(w.Slot), w.Signature)
	if err != nil {
		return fmt.Errorf("set watermark %s: %w", stream, err)
	}
	return nil
}
