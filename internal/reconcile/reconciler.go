// Package reconcile turns decoded swap instructions into swap records using
// the transaction's token balance snapshots.
package reconcile

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"raydium-swap-ingest/internal/domain"
	"raydium-swap-ingest/internal/raydium"
	"raydium-swap-ingest/internal/solana"
)

// Reason classifies why a swap instruction produced no record.
type Reason string

const (
	ReasonDecodeError          Reason = "decode_error"
	ReasonMissingInputBalance  Reason = "missing_input_balance"
	ReasonMissingOutputBalance Reason = "missing_output_balance"
	ReasonInvalidBalance       Reason = "invalid_balance"
	ReasonNonPositiveInput     Reason = "non_positive_input"
	ReasonNonPositiveOutput    Reason = "non_positive_output"
	ReasonSameMint             Reason = "same_mint"
	ReasonSharedAccount        Reason = "shared_token_account"
)

// Warning reports a target-program swap instruction that was skipped.
type Warning struct {
	Signature        string
	InstructionIndex uint32
	Slot             uint64
	Reason           Reason
	Detail           string
	Err              error // set for ReasonDecodeError
}

func (w Warning) String() string {
	return fmt.Sprintf("%s#%d: %s: %s", w.Signature, w.InstructionIndex, w.Reason, w.Detail)
}

// Result is the outcome of reconciling one transaction.
type Result struct {
	Records  []domain.SwapRecord
	Warnings []Warning
	Swaps    int  // decoded swap instructions
	Failed   bool // transaction executed with an error
}

// Reconciler matches decoded swaps with balance deltas. It holds no mutable
// state and is safe for concurrent use.
type Reconciler struct {
	decoder *raydium.Decoder
}

// New creates a reconciler around decoder.
func New(decoder *raydium.Decoder) *Reconciler {
	return &Reconciler{decoder: decoder}
}

// ProgramID returns the program whose swaps are reconciled.
func (r *Reconciler) ProgramID() string {
	return r.decoder.ProgramID()
}

type decoded struct {
	index uint32
	swap  *raydium.SwapInstruction
}

// Reconcile returns one record per successfully reconciled swap instruction,
// in instruction order, and one warning per skipped swap instruction.
//
// Executed amounts come from the pre/post balances of the user's source and
// destination token accounts, not from the amounts declared in the
// instruction data. Only top-level instructions are inspected.
func (r *Reconciler) Reconcile(tx *solana.Transaction) Result {
	var res Result
	if tx == nil || tx.Message == nil {
		return res
	}
	if tx.Failed() {
		res.Failed = true
		return res
	}

	keys := tx.AccountKeys()

	var swaps []decoded
	for i, ix := range tx.Message.Instructions {
		swap, err := r.decoder.DecodeInstruction(ix, keys)
		if err != nil {
			if errors.Is(err, raydium.ErrNotASwap) {
				continue
			}
			res.Warnings = append(res.Warnings, Warning{
				Signature:        tx.Signature,
				InstructionIndex: uint32(i),
				Slot:             tx.Slot,
				Reason:           ReasonDecodeError,
				Detail:           err.Error(),
				Err:              err,
			})
			continue
		}
		swaps = append(swaps, decoded{index: uint32(i), swap: swap})
	}
	res.Swaps = len(swaps)
	if len(swaps) == 0 {
		return res
	}

	// A token account touched by two swaps carries their combined delta.
	uses := make(map[string]int)
	for _, d := range swaps {
		uses[d.swap.UserSource]++
		uses[d.swap.UserDestination]++
	}

	var pre, post map[string]solana.TokenBalance
	if tx.Meta != nil {
		pre = balancesByAddress(tx.Meta.PreTokenBalances, keys)
		post = balancesByAddress(tx.Meta.PostTokenBalances, keys)
	}

	blockTime := time.Unix(tx.BlockTime, 0).UTC()
	signer := tx.FeePayer()

	for _, d := range swaps {
		warn := func(reason Reason, format string, args ...any) {
			res.Warnings = append(res.Warnings, Warning{
				Signature:        tx.Signature,
				InstructionIndex: d.index,
				Slot:             tx.Slot,
				Reason:           reason,
				Detail:           fmt.Sprintf(format, args...),
			})
		}

		src, dst := d.swap.UserSource, d.swap.UserDestination
		if uses[src] > 1 || uses[dst] > 1 {
			warn(ReasonSharedAccount, "token account used by more than one swap")
			continue
		}

		srcPre, okPre := pre[src]
		srcPost, okPost := post[src]
		if !okPre || !okPost {
			warn(ReasonMissingInputBalance, "no pre/post snapshot for %s", src)
			continue
		}
		dstPre, okPre := pre[dst]
		dstPost, okPost := post[dst]
		if !okPre || !okPost {
			warn(ReasonMissingOutputBalance, "no pre/post snapshot for %s", dst)
			continue
		}

		in, err := delta(srcPre.Amount, srcPost.Amount)
		if err != nil {
			warn(ReasonInvalidBalance, "source %s: %v", src, err)
			continue
		}
		out, err := delta(dstPost.Amount, dstPre.Amount)
		if err != nil {
			warn(ReasonInvalidBalance, "destination %s: %v", dst, err)
			continue
		}
		if in <= 0 {
			warn(ReasonNonPositiveInput, "source delta %d", in)
			continue
		}
		if out <= 0 {
			warn(ReasonNonPositiveOutput, "destination delta %d", out)
			continue
		}
		if srcPost.Mint == dstPost.Mint {
			warn(ReasonSameMint, "both sides are %s", srcPost.Mint)
			continue
		}

		res.Records = append(res.Records, domain.SwapRecord{
			Signature:        tx.Signature,
			InstructionIndex: d.index,
			Slot:             tx.Slot,
			BlockTime:        blockTime,
			Signer:           signer,
			InputMint:        srcPost.Mint,
			OutputMint:       dstPost.Mint,
			Input:            domain.Amount{Raw: uint64(in), Decimals: srcPost.Decimals},
			Output:           domain.Amount{Raw: uint64(out), Decimals: dstPost.Decimals},
			Pool:             d.swap.Pool,
		})
	}

	return res
}

// balancesByAddress keys snapshots by account address. Snapshots with an
// index outside the account list are dropped.
func balancesByAddress(balances []solana.TokenBalance, keys []string) map[string]solana.TokenBalance {
	out := make(map[string]solana.TokenBalance, len(balances))
	for _, b := range balances {
		if b.AccountIndex < 0 || b.AccountIndex >= len(keys) {
			continue
		}
		out[keys[b.AccountIndex]] = b
	}
	return out
}

// delta returns a - b for two raw amounts. Results outside int64 are
// reported as errors.
func delta(a, b string) (int64, error) {
	x, err := strconv.ParseUint(a, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", a, err)
	}
	y, err := strconv.ParseUint(b, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", b, err)
	}
	if x >= y {
		d := x - y
		if d > 1<<63-1 {
			return 0, fmt.Errorf("delta %d overflows", d)
		}
		return int64(d), nil
	}
	d := y - x
	if d > 1<<63-1 {
		return 0, fmt.Errorf("delta -%d overflows", d)
	}
	return -int64(d), nil
}
