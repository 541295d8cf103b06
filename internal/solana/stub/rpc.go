package stub

import (
	"context"
	"fmt"
	"sync"

	"raydium-swap-ingest/internal/solana"
)

// RPCClient implements solana.RPCClient for testing.
// Scripted failures are returned in order before the stored value.
type RPCClient struct {
	mu           sync.Mutex
	transactions map[string]*solana.Transaction
	blocks       map[uint64]*solana.Block
	signatures   map[string][]solana.SignatureInfo
	tip          uint64

	blockFailures map[uint64][]error
	txFailures    map[string][]error
	blockCalls    map[uint64]int
	txCalls       map[string]int
}

// Compile-time interface check.
var _ solana.RPCClient = (*RPCClient)(nil)

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		transactions:  make(map[string]*solana.Transaction),
		blocks:        make(map[uint64]*solana.Block),
		signatures:    make(map[string][]solana.SignatureInfo),
		blockFailures: make(map[uint64][]error),
		txFailures:    make(map[string][]error),
		blockCalls:    make(map[uint64]int),
		txCalls:       make(map[string]int),
	}
}

// GetBlock retrieves a block by slot from the stub store.
func (c *RPCClient) GetBlock(ctx context.Context, slot uint64) (*solana.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.blockCalls[slot]++
	if errs := c.blockFailures[slot]; len(errs) > 0 {
		c.blockFailures[slot] = errs[1:]
		return nil, errs[0]
	}

	block, ok := c.blocks[slot]
	if !ok {
		return nil, fmt.Errorf("slot %d: %w", slot, solana.ErrNotFound)
	}
	return block, nil
}

// GetTransaction retrieves a transaction by signature from the stub store.
func (c *RPCClient) GetTransaction(ctx context.Context, signature string) (*solana.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.txCalls[signature]++
	if errs := c.txFailures[signature]; len(errs) > 0 {
		c.txFailures[signature] = errs[1:]
		return nil, errs[0]
	}

	tx, ok := c.transactions[signature]
	if !ok {
		return nil, fmt.Errorf("signature %s: %w", signature, solana.ErrNotFound)
	}
	return tx, nil
}

// GetSignaturesForAddress pages through stored signatures, which must be
// added newest first like the real endpoint returns them.
func (c *RPCClient) GetSignaturesForAddress(ctx context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sigs := c.signatures[address]
	if opts == nil {
		return append([]solana.SignatureInfo(nil), sigs...), nil
	}

	start := 0
	if opts.Before != "" {
		start = len(sigs)
		for i, s := range sigs {
			if s.Signature == opts.Before {
				start = i + 1
				break
			}
		}
	}

	var out []solana.SignatureInfo
	for _, s := range sigs[start:] {
		if opts.Until != "" && s.Signature == opts.Until {
			break
		}
		out = append(out, s)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// GetSlot returns the configured tip.
func (c *RPCClient) GetSlot(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tip, nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transactions[tx.Signature] = tx
}

// AddBlock adds a block to the stub store.
func (c *RPCClient) AddBlock(block *solana.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks[block.Slot] = block
}

// AddSignatures adds signatures for an address to the stub store.
func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signatures[address] = sigs
}

// SetTip sets the slot returned by GetSlot.
func (c *RPCClient) SetTip(slot uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tip = slot
}

// FailBlock queues errors returned by the next GetBlock calls for slot.
func (c *RPCClient) FailBlock(slot uint64, errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blockFailures[slot] = append(c.blockFailures[slot], errs...)
}

// FailTransaction queues errors returned by the next GetTransaction calls.
func (c *RPCClient) FailTransaction(signature string, errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txFailures[signature] = append(c.txFailures[signature], errs...)
}

// BlockCalls returns how many times GetBlock was called for slot.
func (c *RPCClient) BlockCalls(slot uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blockCalls[slot]
}

// TotalBlockCalls returns the number of GetBlock calls across all slots.
func (c *RPCClient) TotalBlockCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.blockCalls {
		total += n
	}
	return total
}

// TransactionCalls returns how many times GetTransaction was called for signature.
func (c *RPCClient) TransactionCalls(signature string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txCalls[signature]
}
