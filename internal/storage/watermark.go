package storage

import (
	"context"
	"time"
)

// Watermark is the resume position of one ingestion stream.
type Watermark struct {
	Slot      uint64    // highest contiguous slot fully written
	Signature string    // newest signature written in signature mode
	UpdatedAt time.Time // time of the last update
}

// WatermarkStore persists ingestion watermarks keyed by stream id, enabling
// restarts without reprocessing.
type WatermarkStore interface {
	// Get returns the watermark of a stream.
	// Returns ErrNotFound if nothing has been saved yet.
	Get(ctx context.Context, stream string) (*Watermark, error)

	// Set saves the watermark of a stream.
	Set(ctx context.Context, stream string, w *Watermark) error
}
