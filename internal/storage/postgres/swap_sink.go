package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"raydium-swap-ingest/internal/domain"
	"raydium-swap-ingest/internal/storage"
)

// SwapSink implements storage.SwapSink using PostgreSQL.
type SwapSink struct {
	pool *Pool
}

// NewSwapSink creates a new SwapSink.
func NewSwapSink(pool *Pool) *SwapSink {
	return &SwapSink{pool: pool}
}

// Compile-time interface checks.
var (
	_ storage.SwapSink   = (*SwapSink)(nil)
	_ storage.SwapReader = (*SwapSink)(nil)
)

// Name returns "postgres".
func (s *SwapSink) Name() string {
	return "postgres"
}

const insertSwapRecord = `
	INSERT INTO swap_records (
		signature, instruction_index, slot, block_time, signer,
		input_mint, output_mint, input_amount_raw, output_amount_raw,
		input_decimals, output_decimals, pool_address
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10, $11, $12)
	ON CONFLICT (signature, instruction_index) DO NOTHING
`

// InsertBatch writes records in one transaction. Existing keys are skipped.
func (s *SwapSink) InsertBatch(ctx context.Context, records []domain.SwapRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.insert(ctx, records); err != nil {
		return &storage.SinkError{Sink: s.Name(), Records: len(records), Err: err}
	}
	return nil
}

func (s *SwapSink) insert(ctx context.Context, records []domain.SwapRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(insertSwapRecord,
			r.Signature,
			int32(r.InstructionIndex),
			int64(r.Slot),
			r.BlockTime.UTC(),
			r.Signer,
			r.InputMint,
			r.OutputMint,
			strconv.FormatUint(r.Input.Raw, 10),
			strconv.FormatUint(r.Output.Raw, 10),
			int16(r.Input.Decimals),
			int16(r.Output.Decimals),
			r.Pool,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert swap records: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Count returns the number of stored records.
func (s *SwapSink) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM swap_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count swap records: %w", err)
	}
	return n, nil
}

// GetByKey returns a stored record. Returns ErrNotFound if absent.
func (s *SwapSink) GetByKey(ctx context.Context, key domain.DedupKey) (*domain.SwapRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT signature, instruction_index, slot, block_time, signer,
			input_mint, output_mint, input_amount_raw::text, output_amount_raw::text,
			input_decimals, output_decimals, pool_address
		FROM swap_records
		WHERE signature = $1 AND instruction_index = $2
	`, key.Signature, int32(key.InstructionIndex))

	var (
		r             domain.SwapRecord
		index         int32
		slot          int64
		inRaw, outRaw string
		inDec, outDec int16
	)
	err := row.Scan(
		&r.Signature, &index, &slot, &r.BlockTime, &r.Signer,
		&r.InputMint, &r.OutputMint, &inRaw, &outRaw,
		&inDec, &outDec, &r.Pool,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get swap record: %w", err)
	}

	r.InstructionIndex = uint32(index)
	r.Slot = uint64(slot)
	r.BlockTime = r.BlockTime.UTC()
	if r.Input.Raw, err = strconv.ParseUint(inRaw, 10, 64); err != nil {
		return nil, fmt.Errorf("parse input amount: %w", err)
	}
	if r.Output.Raw, err = strconv.ParseUint(outRaw, 10, 64); err != nil {
		return nil, fmt.Errorf("parse output amount: %w", err)
	}
	r.Input.Decimals = uint8(inDec)
	r.Output.Decimals = uint8(outDec)
	return &r, nil
}
