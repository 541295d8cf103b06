package raydium_test

import (
	"errors"
	"math/rand"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raydium-swap-ingest/internal/binreader"
	"raydium-swap-ingest/internal/raydium"
	"raydium-swap-ingest/internal/raydium/raydiumtest"
)

func newDecoder(t *testing.T) *raydium.Decoder {
	t.Helper()
	d, err := raydium.NewDecoder("")
	require.NoError(t, err)
	return d
}

// legacyAccounts returns n account keys laid out like a legacy swap with
// identity indexes.
func legacyAccounts(n int) ([]string, []int) {
	keys := make([]string, n)
	idx := make([]int, n)
	for i := range keys {
		keys[i] = "acct-" + string(rune('a'+i))
		idx[i] = i
	}
	keys[1] = "pool"
	keys[2] = raydiumtest.Authority
	keys[n-3] = "user-src"
	keys[n-2] = "user-dst"
	keys[n-1] = "user-owner"
	return keys, idx
}

func TestNewDecoder_DerivesAuthority(t *testing.T) {
	d := newDecoder(t)
	assert.Equal(t, raydium.ProgramID, d.ProgramID())
	assert.Equal(t, raydiumtest.Authority, d.Authority())
}

func TestNewDecoder_InvalidProgram(t *testing.T) {
	_, err := raydium.NewDecoder("not-an-address")
	assert.Error(t, err)
}

func TestDecode_RoundTripAgainstReference(t *testing.T) {
	d := newDecoder(t)

	tests := []struct {
		name     string
		kind     raydium.Kind
		accounts int
	}{
		{"swap base in, 17 accounts", raydium.KindSwapBaseIn, 17},
		{"swap base in, 18 accounts", raydium.KindSwapBaseIn, 18},
		{"swap base out, 17 accounts", raydium.KindSwapBaseOut, 17},
		{"swap base out, 18 accounts", raydium.KindSwapBaseOut, 18},
		{"swap base in v2", raydium.KindSwapBaseInV2, 8},
		{"swap base out v2", raydium.KindSwapBaseOutV2, 8},
	}

	amounts := [][2]uint64{
		{500000, 250000},
		{0, 0},
		{1, ^uint64(0)},
		{^uint64(0), 1},
	}

	for _, tt := range tests {
		for _, amt := range amounts {
			t.Run(tt.name, func(t *testing.T) {
				data := raydiumtest.Data(tt.kind, amt[0], amt[1])

				var ref raydiumtest.SwapPayload
				require.NoError(t, bin.NewBorshDecoder(data).Decode(&ref))

				keys, idx := legacyAccounts(tt.accounts)
				swap, err := d.Decode(raydium.ProgramID, data, idx, keys)
				require.NoError(t, err)

				assert.Equal(t, raydium.ParseKind(ref.Tag), swap.Kind)
				assert.Equal(t, ref.AmountA, swap.DeclaredIn)
				assert.Equal(t, ref.AmountB, swap.DeclaredOut)
				assert.Equal(t, "pool", swap.Pool)
				assert.Equal(t, "user-src", swap.UserSource)
				assert.Equal(t, "user-dst", swap.UserDestination)
				assert.Equal(t, "user-owner", swap.UserOwner)
			})
		}
	}
}

func TestDecode_OtherProgramNeverSwaps(t *testing.T) {
	d := newDecoder(t)
	rng := rand.New(rand.NewSource(1))
	keys, idx := legacyAccounts(17)

	for i := 0; i < 500; i++ {
		data := make([]byte, rng.Intn(40))
		rng.Read(data)
		if len(data) > 0 && i%2 == 0 {
			data[0] = uint8(raydium.KindSwapBaseIn)
		}

		swap, err := d.Decode("11111111111111111111111111111111", data, idx, keys)
		assert.Nil(t, swap)
		assert.ErrorIs(t, err, raydium.ErrNotASwap)
	}
}

func TestDecode_NonSwapAndUnknownTags(t *testing.T) {
	d := newDecoder(t)
	keys, idx := legacyAccounts(17)

	for _, tag := range []uint8{0, 1, 3, 4, 10, 12, 15, 18, 99, 254, 255} {
		data := append([]byte{tag}, make([]byte, 16)...)
		swap, err := d.Decode(raydium.ProgramID, data, idx, keys)
		assert.Nil(t, swap, "tag %d", tag)
		assert.ErrorIs(t, err, raydium.ErrNotASwap, "tag %d", tag)
	}
}

func TestDecode_TruncatedPayload(t *testing.T) {
	d := newDecoder(t)
	keys, idx := legacyAccounts(17)

	full := raydiumtest.Data(raydium.KindSwapBaseIn, 500000, 1)
	for _, n := range []int{0, 1, 8, 9, 16} {
		_, err := d.Decode(raydium.ProgramID, full[:n], idx, keys)
		require.Error(t, err, "len %d", n)

		var de *raydium.DecodeError
		assert.True(t, errors.As(err, &de), "len %d", n)
		assert.ErrorIs(t, err, binreader.ErrTruncated)
		assert.NotErrorIs(t, err, raydium.ErrNotASwap)
	}
}

func TestDecode_TrailingBytesTolerated(t *testing.T) {
	d := newDecoder(t)
	keys, idx := legacyAccounts(17)

	data := append(raydiumtest.Data(raydium.KindSwapBaseOut, 7, 8), 0xde, 0xad)
	swap, err := d.Decode(raydium.ProgramID, data, idx, keys)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), swap.DeclaredIn)
	assert.Equal(t, uint64(8), swap.DeclaredOut)
}

func TestDecode_AccountErrors(t *testing.T) {
	d := newDecoder(t)
	data := raydiumtest.Data(raydium.KindSwapBaseIn, 1, 1)

	t.Run("wrong account count", func(t *testing.T) {
		keys, idx := legacyAccounts(16)
		_, err := d.Decode(raydium.ProgramID, data, idx, keys)
		var de *raydium.DecodeError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, raydium.KindSwapBaseIn, de.Kind)
	})

	t.Run("v2 tag with legacy accounts", func(t *testing.T) {
		keys, idx := legacyAccounts(17)
		_, err := d.Decode(raydium.ProgramID, raydiumtest.Data(raydium.KindSwapBaseInV2, 1, 1), idx, keys)
		var de *raydium.DecodeError
		assert.True(t, errors.As(err, &de))
	})

	t.Run("index out of range", func(t *testing.T) {
		keys, idx := legacyAccounts(17)
		idx[15] = 40
		_, err := d.Decode(raydium.ProgramID, data, idx, keys)
		var de *raydium.DecodeError
		require.True(t, errors.As(err, &de))
		assert.Contains(t, de.Reason, "out of range")
	})

	t.Run("negative index", func(t *testing.T) {
		keys, idx := legacyAccounts(17)
		idx[1] = -1
		_, err := d.Decode(raydium.ProgramID, data, idx, keys)
		var de *raydium.DecodeError
		assert.True(t, errors.As(err, &de))
	})

	t.Run("authority mismatch", func(t *testing.T) {
		keys, idx := legacyAccounts(17)
		keys[2] = "someone-else"
		_, err := d.Decode(raydium.ProgramID, data, idx, keys)
		var de *raydium.DecodeError
		require.True(t, errors.As(err, &de))
		assert.Contains(t, de.Reason, "authority")
	})

	t.Run("source equals destination", func(t *testing.T) {
		keys, idx := legacyAccounts(17)
		idx[15] = idx[14]
		_, err := d.Decode(raydium.ProgramID, data, idx, keys)
		var de *raydium.DecodeError
		assert.True(t, errors.As(err, &de))
	})
}

func TestDecodeInstruction_ResolvesProgram(t *testing.T) {
	d := newDecoder(t)
	tx := raydiumtest.Transaction(1000, 1700000000, "sig", raydiumtest.BaseIn("alice"))
	require.Len(t, tx.Message.Instructions, 1)

	swap, err := d.DecodeInstruction(tx.Message.Instructions[0], tx.AccountKeys())
	require.NoError(t, err)
	assert.Equal(t, raydium.KindSwapBaseIn, swap.Kind)
	assert.Equal(t, uint64(500000), swap.DeclaredIn)
	assert.Equal(t, "src-alice", swap.UserSource)
	assert.Equal(t, "dst-alice", swap.UserDestination)
	assert.Equal(t, "alice", swap.UserOwner)

	bad := tx.Message.Instructions[0]
	bad.ProgramIDIndex = 500
	_, err = d.DecodeInstruction(bad, tx.AccountKeys())
	var de *raydium.DecodeError
	assert.True(t, errors.As(err, &de))
}

func TestDecodeInstruction_InvalidBase58(t *testing.T) {
	d := newDecoder(t)
	tx := raydiumtest.Transaction(1000, 1700000000, "sig", raydiumtest.BaseIn("alice"))
	ix := tx.Message.Instructions[0]
	ix.Data = nil
	ix.DataErr = errors.New("invalid base58 digit ('0')")

	_, err := d.DecodeInstruction(ix, tx.AccountKeys())
	var de *raydium.DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "invalid base58 data", de.Reason)
	assert.ErrorIs(t, err, ix.DataErr)

	// Other programs' data is not ours to report.
	keys := tx.AccountKeys()
	keys[ix.ProgramIDIndex] = "OtherProgram1111111111111111111111111111111"
	_, err = d.DecodeInstruction(ix, keys)
	assert.ErrorIs(t, err, raydium.ErrNotASwap)
}

func TestKind(t *testing.T) {
	assert.Equal(t, raydium.KindSwapBaseIn, raydium.ParseKind(9))
	assert.Equal(t, raydium.KindSwapBaseOut, raydium.ParseKind(11))
	assert.Equal(t, raydium.KindUnrecognized, raydium.ParseKind(42))
	assert.Equal(t, raydium.KindUnrecognized, raydium.ParseKind(255))

	assert.True(t, raydium.KindSwapBaseOutV2.IsSwap())
	assert.False(t, raydium.KindDeposit.IsSwap())
	assert.False(t, raydium.KindUnrecognized.IsSwap())

	assert.True(t, raydium.KindSwapBaseIn.ExactIn())
	assert.False(t, raydium.KindSwapBaseOut.ExactIn())

	assert.Equal(t, "swap_base_in", raydium.KindSwapBaseIn.String())
	assert.Equal(t, "kind(42)", raydium.Kind(42).String())
}
