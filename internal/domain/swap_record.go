package domain

import "time"

// SwapRecord is one reconciled swap as persisted to the sink.
// Corresponds to the swap_records table in ClickHouse, PostgreSQL and DuckDB.
type SwapRecord struct {
	Signature        string    // transaction signature (base58)
	InstructionIndex uint32    // top-level instruction index within the transaction
	Slot             uint64    // Solana slot number
	BlockTime        time.Time // block timestamp (UTC, second precision)
	Signer           string    // fee payer
	InputMint        string    // mint debited from the user
	OutputMint       string    // mint credited to the user
	Input            Amount    // executed input amount
	Output           Amount    // executed output amount
	Pool             string    // AMM pool address
}

// Key returns the record's dedup key.
func (r *SwapRecord) Key() DedupKey {
	return DedupKey{Signature: r.Signature, InstructionIndex: r.InstructionIndex}
}

// Valid reports whether the record satisfies the persisted invariants:
// both amounts strictly positive and distinct mints.
func (r *SwapRecord) Valid() bool {
	return r.Input.Raw > 0 && r.Output.Raw > 0 && r.InputMint != r.OutputMint
}

// DedupKey identifies a swap for idempotent storage.
type DedupKey struct {
	Signature        string
	InstructionIndex uint32
}
