package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"raydium-swap-ingest/internal/domain"
	"raydium-swap-ingest/internal/observability"
	"raydium-swap-ingest/internal/storage"
)

// ErrSinkExhausted is returned when a batch could not be written within the
// sink retry policy. The run stops; records of the failed batch were not
// confirmed and their slots stay below the watermark.
var ErrSinkExhausted = errors.New("sink write retries exhausted")

// collector owns the pending batch and is the only writer to the sink.
// It is used from a single goroutine.
type collector struct {
	sink    storage.SwapSink
	retry   RetryPolicy
	rc      *RunContext
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
	maxSize int

	batch []domain.SwapRecord
	slots []uint64 // slots with records in batch, in arrival order
}

// flushResult describes one flush.
type flushResult struct {
	Written    int      // records sent to the sink
	Duplicates int      // records dropped before the write
	Slots      []uint64 // slots whose records are now confirmed
	Attempts   int
}

func (c *collector) add(slot uint64, records []domain.SwapRecord) {
	if len(records) == 0 {
		return
	}
	c.batch = append(c.batch, records...)
	c.slots = append(c.slots, slot)
}

func (c *collector) empty() bool {
	return len(c.batch) == 0
}

func (c *collector) full() bool {
	return len(c.batch) >= c.maxSize
}

// flush writes the pending batch. Keys already confirmed in this run and
// duplicates within the batch are dropped first; the rest is sorted by
// (slot, signature, instruction index).
func (c *collector) flush(ctx context.Context) (flushResult, error) {
	var res flushResult
	if c.empty() {
		return res, nil
	}

	fresh := make([]domain.SwapRecord, 0, len(c.batch))
	for _, r := range c.batch {
		if c.rc.IsSunk(r.Key()) {
			continue
		}
		fresh = append(fresh, r)
	}
	fresh = domain.Coalesce(fresh)
	res.Duplicates = len(c.batch) - len(fresh)

	if len(fresh) > 0 {
		start := c.now()
		attempts, err := c.retry.Do(ctx, func(ctx context.Context) error {
			err := c.sink.InsertBatch(ctx, fresh)
			if err != nil {
				c.metrics.SinkErrors.WithLabelValues(c.sink.Name()).Inc()
			}
			return err
		})
		res.Attempts = attempts
		if err != nil {
			first, last := fresh[0].Slot, fresh[len(fresh)-1].Slot
			c.logger.Error("sink write failed",
				zap.String("sink", c.sink.Name()),
				zap.Int("records", len(fresh)),
				zap.Uint64("first_slot", first),
				zap.Uint64("last_slot", last),
				zap.Int("attempts", attempts),
				zap.Error(err),
			)
			return res, fmt.Errorf("%w: %d records for slots %d-%d on %s: %w",
				ErrSinkExhausted, len(fresh), first, last, c.sink.Name(), err)
		}

		c.metrics.BatchFlushDuration.WithLabelValues(c.sink.Name()).Observe(c.now().Sub(start).Seconds())
		c.metrics.BatchSize.Observe(float64(len(fresh)))
		c.metrics.RecordsWritten.Add(float64(len(fresh)))
		c.metrics.LastSuccessfulFlush.Set(float64(c.now().Unix()))
		c.rc.MarkSunk(fresh)
		res.Written = len(fresh)
	}
	if res.Duplicates > 0 {
		c.metrics.DuplicatesDropped.Add(float64(res.Duplicates))
	}

	c.logger.Debug("batch flushed",
		zap.Int("records", res.Written),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("slots", len(c.slots)),
	)

	res.Slots = c.slots
	c.batch = nil
	c.slots = nil
	return res, nil
}
