package domain

import (
	"errors"
	"testing"
)

func TestSortRecords(t *testing.T) {
	// Intentionally unordered records
	records := []SwapRecord{
		{Slot: 200, Signature: "tx2", InstructionIndex: 0},
		{Slot: 100, Signature: "tx1", InstructionIndex: 1},
		{Slot: 100, Signature: "tx1", InstructionIndex: 0},
		{Slot: 100, Signature: "tx2", InstructionIndex: 0},
		{Slot: 300, Signature: "tx1", InstructionIndex: 0},
	}

	SortRecords(records)

	expected := []struct {
		slot  uint64
		sig   string
		index uint32
	}{
		{100, "tx1", 0},
		{100, "tx1", 1},
		{100, "tx2", 0},
		{200, "tx2", 0},
		{300, "tx1", 0},
	}

	for i, exp := range expected {
		r := records[i]
		if r.Slot != exp.slot || r.Signature != exp.sig || r.InstructionIndex != exp.index {
			t.Errorf("Index %d: got (%d, %s, %d), want (%d, %s, %d)",
				i, r.Slot, r.Signature, r.InstructionIndex, exp.slot, exp.sig, exp.index)
		}
	}

	if err := ValidateOrdering(records); err != nil {
		t.Errorf("sorted records failed validation: %v", err)
	}
}

func TestSortRecords_Empty(t *testing.T) {
	var records []SwapRecord
	SortRecords(records) // Should not panic
}

func TestValidateOrdering(t *testing.T) {
	unordered := []SwapRecord{
		{Slot: 2, Signature: "a"},
		{Slot: 1, Signature: "a"},
	}
	if err := ValidateOrdering(unordered); !errors.Is(err, ErrInvalidOrdering) {
		t.Errorf("Expected ErrInvalidOrdering, got %v", err)
	}

	repeated := []SwapRecord{
		{Slot: 1, Signature: "a"},
		{Slot: 1, Signature: "a"},
	}
	if err := ValidateOrdering(repeated); !errors.Is(err, ErrInvalidOrdering) {
		t.Errorf("Expected ErrInvalidOrdering for repeated key, got %v", err)
	}
}

func TestCoalesce(t *testing.T) {
	records := []SwapRecord{
		{Slot: 5, Signature: "b", Pool: "first"},
		{Slot: 4, Signature: "a"},
		{Slot: 5, Signature: "b", Pool: "second"},
	}

	out := Coalesce(records)
	if len(out) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(out))
	}
	if out[0].Signature != "a" {
		t.Errorf("Expected sorted output, got %+v", out)
	}
	if out[1].Pool != "first" {
		t.Errorf("Coalesce kept %q, want first occurrence", out[1].Pool)
	}
	if len(records) != 3 {
		t.Error("Coalesce must not modify its input")
	}
}
