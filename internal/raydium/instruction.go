// Package raydium decodes swap instructions of the Raydium Liquidity Pool
// AMM v4 program.
package raydium

import "fmt"

// ProgramID is the mainnet address of Raydium AMM v4.
const ProgramID = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"

// Kind is the one-byte instruction tag of the AMM program. The values follow
// the AmmInstruction enum of raydium-amm program/src/instruction.rs.
type Kind uint8

const (
	KindInitialize          Kind = 0
	KindInitialize2         Kind = 1
	KindMonitorStep         Kind = 2
	KindDeposit             Kind = 3
	KindWithdraw            Kind = 4
	KindMigrateToOpenBook   Kind = 5
	KindSetParams           Kind = 6
	KindWithdrawPnl         Kind = 7
	KindWithdrawSrm         Kind = 8
	KindSwapBaseIn          Kind = 9
	KindPreInitialize       Kind = 10
	KindSwapBaseOut         Kind = 11
	KindSimulateInfo        Kind = 12
	KindAdminCancelOrders   Kind = 13
	KindCreateConfigAccount Kind = 14
	KindUpdateConfigAccount Kind = 15
	KindSwapBaseInV2        Kind = 16
	KindSwapBaseOutV2       Kind = 17

	// KindUnrecognized is any tag outside the table above.
	KindUnrecognized Kind = 0xff
)

var kindNames = map[Kind]string{
	KindInitialize:          "initialize",
	KindInitialize2:         "initialize2",
	KindMonitorStep:         "monitor_step",
	KindDeposit:             "deposit",
	KindWithdraw:            "withdraw",
	KindMigrateToOpenBook:   "migrate_to_openbook",
	KindSetParams:           "set_params",
	KindWithdrawPnl:         "withdraw_pnl",
	KindWithdrawSrm:         "withdraw_srm",
	KindSwapBaseIn:          "swap_base_in",
	KindPreInitialize:       "pre_initialize",
	KindSwapBaseOut:         "swap_base_out",
	KindSimulateInfo:        "simulate_info",
	KindAdminCancelOrders:   "admin_cancel_orders",
	KindCreateConfigAccount: "create_config_account",
	KindUpdateConfigAccount: "update_config_account",
	KindSwapBaseInV2:        "swap_base_in_v2",
	KindSwapBaseOutV2:       "swap_base_out_v2",
	KindUnrecognized:        "unrecognized",
}

// ParseKind maps a tag byte to its Kind. Unknown tags map to KindUnrecognized.
func ParseKind(tag uint8) Kind {
	k := Kind(tag)
	if k == KindUnrecognized {
		return KindUnrecognized
	}
	if _, ok := kindNames[k]; ok {
		return k
	}
	return KindUnrecognized
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsSwap reports whether the instruction moves tokens through the pool.
func (k Kind) IsSwap() bool {
	switch k {
	case KindSwapBaseIn, KindSwapBaseOut, KindSwapBaseInV2, KindSwapBaseOutV2:
		return true
	}
	return false
}

// ExactIn reports whether the input amount is fixed and the output bounded.
func (k Kind) ExactIn() bool {
	return k == KindSwapBaseIn || k == KindSwapBaseInV2
}

// SwapInstruction is one decoded swap instruction.
//
// For exact-in swaps DeclaredIn is the exact input and DeclaredOut the
// minimum output. For exact-out swaps DeclaredIn is the maximum input and
// DeclaredOut the exact output. Executed amounts come from balance deltas.
type SwapInstruction struct {
	Kind            Kind
	Pool            string
	Authority       string
	UserSource      string
	UserDestination string
	UserOwner       string
	DeclaredIn      uint64
	DeclaredOut     uint64
}

// accountLayout holds positions inside the instruction's account list.
type accountLayout struct {
	pool        int
	authority   int
	source      int
	destination int
	owner       int
}

// layoutFor returns the account positions for a swap kind given the number
// of accounts the instruction carries.
//
// Legacy swaps pass 17 accounts, or 18 when the optional target-orders
// account follows open orders; the user accounts are always the last three.
// V2 swaps drop the OpenBook accounts and pass exactly 8.
func layoutFor(kind Kind, n int) (accountLayout, bool) {
	switch kind {
	case KindSwapBaseIn, KindSwapBaseOut:
		if n != 17 && n != 18 {
			return accountLayout{}, false
		}
		off := n - 17
		return accountLayout{
			pool:        1,
			authority:   2,
			source:      off + 14,
			destination: off + 15,
			owner:       off + 16,
		}, true
	case KindSwapBaseInV2, KindSwapBaseOutV2:
		if n != 8 {
			return accountLayout{}, false
		}
		return accountLayout{pool: 1, authority: 2, source: 5, destination: 6, owner: 7}, true
	}
	return accountLayout{}, false
}
