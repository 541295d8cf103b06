package raydium

import (
	"errors"
	"fmt"

	"raydium-swap-ingest/internal/binreader"
	"raydium-swap-ingest/internal/solana"
)

const authoritySeed = "amm authority"

// ErrNotASwap is the normal outcome for instructions that are not swaps of
// the target program. It is a filter result, not a failure.
var ErrNotASwap = errors.New("not a swap instruction")

// DecodeError is a swap instruction of the target program that could not be
// decoded.
type DecodeError struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode %s: %s", e.Kind, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decoder decodes instructions addressed to one AMM program deployment.
// It holds no mutable state and is safe for concurrent use.
type Decoder struct {
	programID string
	authority string
}

// NewDecoder returns a decoder for programID and derives the program's
// authority address. An empty programID selects ProgramID.
func NewDecoder(programID string) (*Decoder, error) {
	if programID == "" {
		programID = ProgramID
	}
	authority, _, err := solana.FindProgramAddress([][]byte{[]byte(authoritySeed)}, programID)
	if err != nil {
		return nil, fmt.Errorf("invalid program id: %w", err)
	}
	return &Decoder{programID: programID, authority: authority}, nil
}

// ProgramID returns the program this decoder accepts.
func (d *Decoder) ProgramID() string {
	return d.programID
}

// Authority returns the derived pool authority address.
func (d *Decoder) Authority() string {
	return d.authority
}

// DecodeInstruction decodes a compiled instruction against the transaction's
// full account list.
func (d *Decoder) DecodeInstruction(ix solana.CompiledInstruction, accountKeys []string) (*SwapInstruction, error) {
	if ix.ProgramIDIndex < 0 || ix.ProgramIDIndex >= len(accountKeys) {
		return nil, &DecodeError{
			Kind:   KindUnrecognized,
			Reason: fmt.Sprintf("program index %d out of range (%d accounts)", ix.ProgramIDIndex, len(accountKeys)),
		}
	}
	programID := accountKeys[ix.ProgramIDIndex]
	if ix.DataErr != nil && programID == d.programID {
		return nil, &DecodeError{Kind: KindUnrecognized, Reason: "invalid base58 data", Err: ix.DataErr}
	}
	return d.Decode(programID, ix.Data, ix.Accounts, accountKeys)
}

// Decode returns the swap carried by one instruction.
//
// It returns ErrNotASwap when programID is not the target program or the tag
// is not a swap, and a *DecodeError when a swap payload or its account
// references are malformed.
func (d *Decoder) Decode(programID string, data []byte, accountIndexes []int, accountKeys []string) (*SwapInstruction, error) {
	if programID != d.programID {
		return nil, ErrNotASwap
	}

	r := binreader.New(data)
	tag, err := r.ReadU8()
	if err != nil {
		return nil, &DecodeError{Kind: KindUnrecognized, Reason: "missing discriminant", Err: err}
	}

	kind := ParseKind(tag)
	switch kind {
	case KindSwapBaseIn, KindSwapBaseOut, KindSwapBaseInV2, KindSwapBaseOutV2:
	case KindUnrecognized:
		return nil, ErrNotASwap
	default:
		return nil, ErrNotASwap
	}

	declaredIn, err := r.ReadU64()
	if err != nil {
		return nil, &DecodeError{Kind: kind, Reason: "read first amount", Err: err}
	}
	declaredOut, err := r.ReadU64()
	if err != nil {
		return nil, &DecodeError{Kind: kind, Reason: "read second amount", Err: err}
	}

	layout, ok := layoutFor(kind, len(accountIndexes))
	if !ok {
		return nil, &DecodeError{Kind: kind, Reason: fmt.Sprintf("unexpected account count %d", len(accountIndexes))}
	}

	resolve := func(pos int) (string, error) {
		idx := accountIndexes[pos]
		if idx < 0 || idx >= len(accountKeys) {
			return "", &DecodeError{
				Kind:   kind,
				Reason: fmt.Sprintf("account %d references index %d out of range (%d accounts)", pos, idx, len(accountKeys)),
			}
		}
		return accountKeys[idx], nil
	}

	swap := &SwapInstruction{
		Kind:        kind,
		DeclaredIn:  declaredIn,
		DeclaredOut: declaredOut,
	}
	fields := []struct {
		pos int
		dst *string
	}{
		{layout.pool, &swap.Pool},
		{layout.authority, &swap.Authority},
		{layout.source, &swap.UserSource},
		{layout.destination, &swap.UserDestination},
		{layout.owner, &swap.UserOwner},
	}
	for _, f := range fields {
		addr, err := resolve(f.pos)
		if err != nil {
			return nil, err
		}
		*f.dst = addr
	}

	if swap.Authority != d.authority {
		return nil, &DecodeError{Kind: kind, Reason: fmt.Sprintf("authority %s does not match %s", swap.Authority, d.authority)}
	}
	if swap.UserSource == swap.UserDestination {
		return nil, &DecodeError{Kind: kind, Reason: "source and destination are the same account"}
	}

	return swap, nil
}
