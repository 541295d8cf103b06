package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"

	"raydium-swap-ingest/internal/domain"
	"raydium-swap-ingest/internal/idhash"
	"raydium-swap-ingest/internal/storage"
)

// SwapSink implements storage.SwapSink on a ReplacingMergeTree table.
//
// Keys already present are filtered out before insert, and every insert
// carries a deduplication token derived from its keys, so a retried batch
// whose first attempt reached the server is dropped by ClickHouse.
type SwapSink struct {
	conn *Conn
}

// NewSwapSink creates a new SwapSink.
func NewSwapSink(conn *Conn) *SwapSink {
	return &SwapSink{conn: conn}
}

// Compile-time interface checks.
var (
	_ storage.SwapSink   = (*SwapSink)(nil)
	_ storage.SwapReader = (*SwapSink)(nil)
)

// Name returns "clickhouse".
func (s *SwapSink) Name() string {
	return "clickhouse"
}

// InsertBatch writes records that are not stored yet.
func (s *SwapSink) InsertBatch(ctx context.Context, records []domain.SwapRecord) error {
	if len(records) == 0 {
		return nil
	}

	fresh, err := s.filterExisting(ctx, domain.Coalesce(records))
	if err != nil {
		return s.sinkErr(len(records), fmt.Errorf("check existing keys: %w", err))
	}
	if len(fresh) == 0 {
		return nil
	}

	ctx = clickhouse.Context(ctx, clickhouse.WithSettings(clickhouse.Settings{
		"insert_deduplication_token": idhash.ComputeRecordsToken(fresh),
	}))

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO swap_records (
			signature, instruction_index, slot, block_time, signer,
			input_mint, output_mint, input_amount_raw, output_amount_raw,
			input_decimals, output_decimals, pool_address
		)
	`)
	if err != nil {
		return s.sinkErr(len(records), fmt.Errorf("prepare batch: %w", err))
	}

	for _, r := range fresh {
		err = batch.Append(
			r.Signature, r.InstructionIndex, r.Slot, r.BlockTime.UTC(), r.Signer,
			r.InputMint, r.OutputMint, r.Input.Raw, r.Output.Raw,
			r.Input.Decimals, r.Output.Decimals, r.Pool,
		)
		if err != nil {
			_ = batch.Abort()
			return s.sinkErr(len(records), fmt.Errorf("append to batch: %w", err))
		}
	}

	if err := batch.Send(); err != nil {
		return s.sinkErr(len(records), fmt.Errorf("send batch: %w", err))
	}
	return nil
}

func (s *SwapSink) sinkErr(n int, err error) error {
	return &storage.SinkError{Sink: s.Name(), Records: n, Err: err}
}

// keyQueryChunk caps the signatures bound into one IN list.
const keyQueryChunk = 1000

// filterExisting drops records whose key is already stored, looking keys up
// one IN query per chunk of distinct signatures.
func (s *SwapSink) filterExisting(ctx context.Context, records []domain.SwapRecord) ([]domain.SwapRecord, error) {
	stored := make(map[domain.DedupKey]struct{})
	for _, sigs := range signatureChunks(records, keyQueryChunk) {
		if err := s.storedKeys(ctx, sigs, stored); err != nil {
			return nil, err
		}
	}
	if len(stored) == 0 {
		return records, nil
	}

	out := records[:0:0]
	for _, r := range records {
		if _, exists := stored[r.Key()]; exists {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// signatureChunks returns the distinct signatures of records in first-seen
// order, split into chunks of at most size.
func signatureChunks(records []domain.SwapRecord, size int) [][]string {
	seen := make(map[string]struct{}, len(records))
	var chunks [][]string
	var cur []string
	for _, r := range records {
		if _, ok := seen[r.Signature]; ok {
			continue
		}
		seen[r.Signature] = struct{}{}
		cur = append(cur, r.Signature)
		if len(cur) == size {
			chunks = append(chunks, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}

func (s *SwapSink) storedKeys(ctx context.Context, signatures []string, into map[domain.DedupKey]struct{}) error {
	rows, err := s.conn.Query(ctx, `
		SELECT DISTINCT signature, instruction_index FROM swap_records
		WHERE signature IN (?)
	`, signatures)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key domain.DedupKey
		if err := rows.Scan(&key.Signature, &key.InstructionIndex); err != nil {
			return err
		}
		into[key] = struct{}{}
	}
	return rows.Err()
}

// Count returns the number of distinct stored keys.
func (s *SwapSink) Count(ctx context.Context) (int, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count() FROM swap_records FINAL`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count swap records: %w", err)
	}
	return int(count), nil
}

// GetByKey returns a stored record. Returns ErrNotFound if absent.
func (s *SwapSink) GetByKey(ctx context.Context, key domain.DedupKey) (*domain.SwapRecord, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT signature, instruction_index, slot, block_time, signer,
			input_mint, output_mint, input_amount_raw, output_amount_raw,
			input_decimals, output_decimals, pool_address
		FROM swap_records FINAL
		WHERE signature = ? AND instruction_index = ?
		LIMIT 1
	`, key.Signature, key.InstructionIndex)
	if err != nil {
		return nil, fmt.Errorf("get swap record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, storage.ErrNotFound
	}

	var r domain.SwapRecord
	err = rows.Scan(
		&r.Signature, &r.InstructionIndex, &r.Slot, &r.BlockTime, &r.Signer,
		&r.InputMint, &r.OutputMint, &r.Input.Raw, &r.Output.Raw,
		&r.Input.Decimals, &r.Output.Decimals, &r.Pool,
	)
	if err != nil {
		return nil, fmt.Errorf("scan swap record: %w", err)
	}
	r.BlockTime = r.BlockTime.UTC()
	return &r, nil
}
