// Package raydiumtest builds Raydium swap transactions for tests.
package raydiumtest

import (
	"fmt"
	"strconv"

	"github.com/near/borsh-go"

	"raydium-swap-ingest/internal/raydium"
	"raydium-swap-ingest/internal/solana"
)

// Authority is the pool authority of the mainnet program.
const Authority = "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1"

// SwapPayload mirrors the on-chain layout of every swap variant.
type SwapPayload struct {
	Tag     uint8
	AmountA uint64
	AmountB uint64
}

// Data encodes a swap instruction payload.
func Data(kind raydium.Kind, amountA, amountB uint64) []byte {
	b, err := borsh.Serialize(SwapPayload{Tag: uint8(kind), AmountA: amountA, AmountB: amountB})
	if err != nil {
		panic(fmt.Sprintf("borsh serialize: %v", err))
	}
	return b
}

// Swap describes one swap instruction and the balances it produced.
// A nil balance omits that snapshot from the transaction meta.
type Swap struct {
	Kind         raydium.Kind
	DeclaredIn   uint64
	DeclaredOut  uint64
	Pool         string
	Owner        string
	Source       string
	Destination  string
	SourceMint   string
	DestMint     string
	SourceDec    uint8
	DestDec      uint8
	SourcePre    *uint64
	SourcePost   *uint64
	DestPre      *uint64
	DestPost     *uint64
	TargetOrders bool // legacy layout with 18 accounts

	// Data overrides the encoded payload when set.
	Data []byte
}

// keySet assigns stable indexes to account addresses.
type keySet struct {
	keys  []string
	index map[string]int
}

func (k *keySet) add(addr string) int {
	if i, ok := k.index[addr]; ok {
		return i
	}
	k.index[addr] = len(k.keys)
	k.keys = append(k.keys, addr)
	return len(k.keys) - 1
}

// Transaction builds a successful transaction carrying swaps as top-level
// instructions. The first swap's owner is the fee payer.
func Transaction(slot uint64, blockTime int64, signature string, swaps ...Swap) *solana.Transaction {
	ks := &keySet{index: make(map[string]int)}
	payer := "payer-" + signature
	if len(swaps) > 0 && swaps[0].Owner != "" {
		payer = swaps[0].Owner
	}
	ks.add(payer)
	programIdx := ks.add(raydium.ProgramID)

	tx := &solana.Transaction{
		Slot:      slot,
		Signature: signature,
		BlockTime: blockTime,
		Meta:      &solana.TransactionMeta{Fee: 5000},
		Message:   &solana.TransactionMessage{},
	}

	for i, s := range swaps {
		tag := strconv.Itoa(i)
		var accounts []string
		switch s.Kind {
		case raydium.KindSwapBaseInV2, raydium.KindSwapBaseOutV2:
			accounts = []string{
				"token-program", s.Pool, Authority, "coin-vault-" + tag, "pc-vault-" + tag,
				s.Source, s.Destination, s.Owner,
			}
		default:
			accounts = []string{"token-program", s.Pool, Authority, "open-orders-" + tag}
			if s.TargetOrders {
				accounts = append(accounts, "target-orders-"+tag)
			}
			accounts = append(accounts,
				"coin-vault-"+tag, "pc-vault-"+tag, "serum-program", "market-"+tag,
				"bids-"+tag, "asks-"+tag, "event-queue-"+tag, "serum-coin-"+tag,
				"serum-pc-"+tag, "vault-signer-"+tag,
				s.Source, s.Destination, s.Owner,
			)
		}

		idx := make([]int, len(accounts))
		for j, a := range accounts {
			idx[j] = ks.add(a)
		}

		data := s.Data
		if data == nil {
			data = Data(s.Kind, s.DeclaredIn, s.DeclaredOut)
		}
		tx.Message.Instructions = append(tx.Message.Instructions, solana.CompiledInstruction{
			ProgramIDIndex: programIdx,
			Accounts:       idx,
			Data:           data,
		})

		srcIdx := ks.index[s.Source]
		dstIdx := ks.index[s.Destination]
		appendBalance(&tx.Meta.PreTokenBalances, srcIdx, s.SourceMint, s.Owner, s.SourceDec, s.SourcePre)
		appendBalance(&tx.Meta.PostTokenBalances, srcIdx, s.SourceMint, s.Owner, s.SourceDec, s.SourcePost)
		appendBalance(&tx.Meta.PreTokenBalances, dstIdx, s.DestMint, s.Owner, s.DestDec, s.DestPre)
		appendBalance(&tx.Meta.PostTokenBalances, dstIdx, s.DestMint, s.Owner, s.DestDec, s.DestPost)
	}

	tx.Message.AccountKeys = ks.keys
	return tx
}

func appendBalance(dst *[]solana.TokenBalance, idx int, mint, owner string, decimals uint8, amount *uint64) {
	if amount == nil {
		return
	}
	*dst = append(*dst, solana.TokenBalance{
		AccountIndex: idx,
		Mint:         mint,
		Owner:        owner,
		Amount:       strconv.FormatUint(*amount, 10),
		Decimals:     decimals,
	})
}

// Unrelated builds a transaction that never touches the AMM program.
func Unrelated(slot uint64, blockTime int64, signature string) *solana.Transaction {
	return &solana.Transaction{
		Slot:      slot,
		Signature: signature,
		BlockTime: blockTime,
		Meta:      &solana.TransactionMeta{Fee: 5000},
		Message: &solana.TransactionMessage{
			AccountKeys: []string{"payer-" + signature, "11111111111111111111111111111111"},
			Instructions: []solana.CompiledInstruction{
				{ProgramIDIndex: 1, Accounts: []int{0}, Data: []byte{2, 0, 0, 0}},
			},
		},
	}
}

// Block wraps transactions into a block at slot.
func Block(slot uint64, blockTime int64, txs ...*solana.Transaction) *solana.Block {
	bt := blockTime
	b := &solana.Block{
		Slot:       slot,
		BlockTime:  &bt,
		Blockhash:  fmt.Sprintf("hash-%d", slot),
		ParentSlot: slot - 1,
	}
	for _, tx := range txs {
		b.Transactions = append(b.Transactions, *tx)
	}
	return b
}

// Mints used by BaseIn.
const (
	MintUSDC = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	MintWSOL = "So11111111111111111111111111111111111111112"
)

// BaseIn is a swap-base-in of 500000 raw USDC (6 decimals) that received
// 300000 raw SOL (9 decimals).
func BaseIn(owner string) Swap {
	return Swap{
		Kind:        raydium.KindSwapBaseIn,
		DeclaredIn:  500000,
		DeclaredOut: 250000,
		Pool:        "pool-usdc-sol",
		Owner:       owner,
		Source:      "src-" + owner,
		Destination: "dst-" + owner,
		SourceMint:  MintUSDC,
		DestMint:    MintWSOL,
		SourceDec:   6,
		DestDec:     9,
		SourcePre:   u64(10_000_000),
		SourcePost:  u64(9_500_000),
		DestPre:     u64(2_000_000),
		DestPost:    u64(2_300_000),
	}
}

func u64(v uint64) *uint64 {
	return &v
}
