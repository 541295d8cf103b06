package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// AddressSize is the byte length of a Solana address.
const AddressSize = 32

const pdaMarker = "ProgramDerivedAddress"

// ErrNoViableBump is returned when every bump seed lands on the curve.
var ErrNoViableBump = errors.New("unable to find a viable program address bump seed")

// DecodeAddress decodes a base58 address and checks its length.
func DecodeAddress(address string) ([AddressSize]byte, error) {
	var out [AddressSize]byte
	raw, err := base58.Decode(address)
	if err != nil {
		return out, fmt.Errorf("decode address %q: %w", address, err)
	}
	if len(raw) != AddressSize {
		return out, fmt.Errorf("address %q: expected %d bytes, got %d", address, AddressSize, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// FindProgramAddress derives a Program Derived Address for seeds under
// programID, searching bump seeds from 255 down.
func FindProgramAddress(seeds [][]byte, programID string) (string, uint8, error) {
	program, err := DecodeAddress(programID)
	if err != nil {
		return "", 0, err
	}

	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{byte(bump)})
		h.Write(program[:])
		h.Write([]byte(pdaMarker))
		sum := h.Sum(nil)

		if !isOnCurve(sum) {
			return base58.Encode(sum), uint8(bump), nil
		}
	}

	return "", 0, ErrNoViableBump
}

func isOnCurve(point []byte) bool {
	if len(point) != AddressSize {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
