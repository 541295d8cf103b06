// Package binreader provides a bounds-checked little-endian cursor over
// instruction data.
package binreader

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// PubkeySize is the width of a Solana address.
const PubkeySize = 32

// ErrTruncated matches every TruncatedDataError via errors.Is.
var ErrTruncated = errors.New("truncated data")

// TruncatedDataError reports a read that needed more bytes than remained.
type TruncatedDataError struct {
	Offset int // cursor position at the failed read
	Need   int // bytes requested
	Have   int // bytes remaining
}

func (e *TruncatedDataError) Error() string {
	return fmt.Sprintf("truncated data at offset %d: need %d bytes, have %d", e.Offset, e.Need, e.Have)
}

// Is makes errors.Is(err, ErrTruncated) true for any TruncatedDataError.
func (e *TruncatedDataError) Is(target error) bool {
	return target == ErrTruncated
}

// Reader is a read-only cursor over a byte slice.
// A failed read leaves the cursor where it was.
type Reader struct {
	data []byte
	pos  int
}

// New returns a Reader positioned at the start of data.
func New(data []byte) *Reader {
	return &Reader{data: data}
}

// Offset returns the current cursor position.
func (r *Reader) Offset() int {
	return r.pos
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, &TruncatedDataError{Offset: r.pos, Need: n, Have: r.Remaining()}
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadU8 reads one byte.
func (r *Reader) ReadU8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU16 reads a little-endian uint16.
func (r *Reader) ReadU16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadU32 reads a little-endian uint32.
func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64 reads a little-endian uint64.
func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadBytes returns a copy of the next n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadPubkey reads a fixed 32-byte address.
func (r *Reader) ReadPubkey() ([PubkeySize]byte, error) {
	var key [PubkeySize]byte
	b, err := r.take(PubkeySize)
	if err != nil {
		return key, err
	}
	copy(key[:], b)
	return key, nil
}
