// Package duckdb implements an embedded file-backed swap sink.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2"

	"raydium-swap-ingest/internal/domain"
	"raydium-swap-ingest/internal/storage"
)

const createSwapRecords = `
	CREATE TABLE IF NOT EXISTS swap_records (
		signature          VARCHAR   NOT NULL,
		instruction_index  UINTEGER  NOT NULL,
		slot               UBIGINT   NOT NULL,
		block_time         TIMESTAMP NOT NULL,
		signer             VARCHAR   NOT NULL,
		input_mint         VARCHAR   NOT NULL,
		output_mint        VARCHAR   NOT NULL,
		input_amount_raw   UBIGINT   NOT NULL,
		output_amount_raw  UBIGINT   NOT NULL,
		input_decimals     UTINYINT  NOT NULL,
		output_decimals    UTINYINT  NOT NULL,
		pool_address       VARCHAR   NOT NULL,
		PRIMARY KEY (signature, instruction_index)
	)
`

// SwapSink implements storage.SwapSink on a DuckDB database file.
type SwapSink struct {
	db *sql.DB
}

// Compile-time interface checks.
var (
	_ storage.SwapSink   = (*SwapSink)(nil)
	_ storage.SwapReader = (*SwapSink)(nil)
)

// Open opens (or creates) the database at path and ensures the schema.
// An empty path opens an in-memory database.
func Open(ctx context.Context, path string) (*SwapSink, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %q: %w", path, err)
	}
	// DuckDB allows one writer per database; keep a single connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	if _, err := db.ExecContext(ctx, createSwapRecords); err != nil {
		db.Close()
		return nil, fmt.Errorf("create swap_records: %w", err)
	}
	return &SwapSink{db: db}, nil
}

// Close checkpoints and closes the database.
func (s *SwapSink) Close() error {
	if _, err := s.db.Exec("CHECKPOINT"); err != nil {
		s.db.Close()
		return fmt.Errorf("checkpoint: %w", err)
	}
	return s.db.Close()
}

// Name returns "duckdb".
func (s *SwapSink) Name() string {
	return "duckdb"
}

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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO swap_records (
			signature, instruction_index, slot, block_time, signer,
			input_mint, output_mint, input_amount_raw, output_amount_raw,
			input_decimals, output_decimals, pool_address
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.Signature, r.InstructionIndex, r.Slot, r.BlockTime.UTC(), r.Signer,
			r.InputMint, r.OutputMint, r.Input.Raw, r.Output.Raw,
			r.Input.Decimals, r.Output.Decimals, r.Pool,
		)
		if err != nil {
			return fmt.Errorf("insert %s#%d: %w", r.Signature, r.InstructionIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Count returns the number of stored records.
func (s *SwapSink) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM swap_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count swap records: %w", err)
	}
	return n, nil
}

// GetByKey returns a stored record. Returns ErrNotFound if absent.
func (s *SwapSink) GetByKey(ctx context.Context, key domain.DedupKey) (*domain.SwapRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT signature, instruction_index, slot, block_time, signer,
			input_mint, output_mint, input_amount_raw, output_amount_raw,
			input_decimals, output_decimals, pool_address
		FROM swap_records
		WHERE signature = ? AND instruction_index = ?
	`, key.Signature, key.InstructionIndex)

	var r domain.SwapRecord
	err := row.Scan(
		&r.Signature, &r.InstructionIndex, &r.Slot, &r.BlockTime, &r.Signer,
		&r.InputMint, &r.OutputMint, &r.Input.Raw, &r.Output.Raw,
		&r.Input.Decimals, &r.Output.Decimals, &r.Pool,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get swap record: %w", err)
	}
	r.BlockTime = r.BlockTime.UTC()
	return &r, nil
}
