package domain

import (
	"errors"
	"sort"
)

// ErrInvalidOrdering is returned when records are not properly ordered.
var ErrInvalidOrdering = errors.New("records are not in deterministic order")

// SortRecords orders records by (slot ASC, signature ASC, instruction_index ASC).
func SortRecords(records []SwapRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return CompareRecords(&records[i], &records[j]) < 0
	})
}

// ValidateOrdering checks that records are strictly ordered with no
// repeated keys. Returns ErrInvalidOrdering if not.
func ValidateOrdering(records []SwapRecord) error {
	for i := 1; i < len(records); i++ {
		if CompareRecords(&records[i-1], &records[i]) >= 0 {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// CompareRecords returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Order: (slot ASC, signature ASC, instruction_index ASC)
func CompareRecords(a, b *SwapRecord) int {
	if a.Slot != b.Slot {
		if a.Slot < b.Slot {
			return -1
		}
		return 1
	}
	if a.Signature != b.Signature {
		if a.Signature < b.Signature {
			return -1
		}
		return 1
	}
	if a.InstructionIndex != b.InstructionIndex {
		if a.InstructionIndex < b.InstructionIndex {
			return -1
		}
		return 1
	}
	return 0
}

// Coalesce returns records without repeated keys, keeping the first
// occurrence, in SortRecords order.
func Coalesce(records []SwapRecord) []SwapRecord {
	seen := make(map[DedupKey]struct{}, len(records))
	out := make([]SwapRecord, 0, len(records))
	for _, r := range records {
		k := r.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	SortRecords(out)
	return out
}
