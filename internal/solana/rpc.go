package solana

import "context"

// RPCClient defines Solana RPC HTTP interface.
//
// Implementations make a single attempt per call and classify failures
// with ErrRateLimited, ErrNotFound and ErrTransient so callers can pick
// between retry and skip.
type RPCClient interface {
	// GetBlock retrieves a block by slot number.
	// Returns ErrNotFound for skipped or unavailable slots.
	GetBlock(ctx context.Context, slot uint64) (*Block, error)

	// GetTransaction retrieves a transaction by signature.
	// Returns ErrNotFound if the node does not know the signature.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetSignaturesForAddress retrieves signatures for an address with pagination,
	// newest first.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)

	// GetSlot returns the current slot at the client's commitment.
	GetSlot(ctx context.Context) (uint64, error)
}

// Transaction represents a Solana transaction.
type Transaction struct {
	Slot      uint64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err                  interface{}
	Fee                  uint64
	ComputeUnitsConsumed *uint64
	LogMessages          []string
	PreTokenBalances     []TokenBalance
	PostTokenBalances    []TokenBalance
	LoadedAddresses      LoadedAddresses
}

// LoadedAddresses are the accounts resolved from address lookup tables.
type LoadedAddresses struct {
	Writable []string
	Readonly []string
}

// TransactionMessage contains parsed transaction message.
type TransactionMessage struct {
	AccountKeys  []string
	Instructions []CompiledInstruction
}

// CompiledInstruction is a top-level instruction with account references
// expressed as indexes into the transaction's full account list.
type CompiledInstruction struct {
	ProgramIDIndex int
	Accounts       []int
	Data           []byte
	DataErr        error // set when the wire data was not valid base58
}

// TokenBalance is a token account balance snapshot.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	Amount       string // raw integer amount as returned by the node
	Decimals     uint8
}

// AccountKeys returns the static account keys followed by the writable and
// readonly lookup-table addresses. Instruction and balance indexes refer to
// this list.
func (tx *Transaction) AccountKeys() []string {
	if tx.Message == nil {
		return nil
	}
	if tx.Meta == nil {
		return tx.Message.AccountKeys
	}
	loaded := tx.Meta.LoadedAddresses
	keys := make([]string, 0, len(tx.Message.AccountKeys)+len(loaded.Writable)+len(loaded.Readonly))
	keys = append(keys, tx.Message.AccountKeys...)
	keys = append(keys, loaded.Writable...)
	keys = append(keys, loaded.Readonly...)
	return keys
}

// FeePayer returns the first account key, which is always the fee payer and
// primary signer.
func (tx *Transaction) FeePayer() string {
	if tx.Message == nil || len(tx.Message.AccountKeys) == 0 {
		return ""
	}
	return tx.Message.AccountKeys[0]
}

// Failed reports whether the transaction executed with an error.
func (tx *Transaction) Failed() bool {
	return tx.Meta != nil && tx.Meta.Err != nil
}

// Mentions reports whether address appears in the full account list.
func (tx *Transaction) Mentions(address string) bool {
	for _, key := range tx.AccountKeys() {
		if key == address {
			return true
		}
	}
	return false
}
