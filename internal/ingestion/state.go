package ingestion

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a slot moves to a state that is not
// reachable from its current one.
var ErrInvalidTransition = errors.New("invalid slot state transition")

// SlotState is the processing state of one slot.
type SlotState int

const (
	SlotPending SlotState = iota
	SlotFetching
	SlotFetched
	SlotReconciling
	SlotSinking
	SlotDone
	SlotSkippedEmpty
)

func (s SlotState) String() string {
	switch s {
	case SlotPending:
		return "pending"
	case SlotFetching:
		return "fetching"
	case SlotFetched:
		return "fetched"
	case SlotReconciling:
		return "reconciling"
	case SlotSinking:
		return "sinking"
	case SlotDone:
		return "done"
	case SlotSkippedEmpty:
		return "skipped_empty"
	default:
		return fmt.Sprintf("SlotState(%d)", int(s))
	}
}

// Terminal reports whether the slot needs no further work.
func (s SlotState) Terminal() bool {
	return s == SlotDone || s == SlotSkippedEmpty
}

// transitions lists the states reachable from each state.
//
// Fetching goes back to Pending when a fetch exhausts its retries and goes
// straight to SkippedEmpty when the node reports no block. Reconciling goes
// to Done when none of the slot's swaps produced a record.
var transitions = map[SlotState][]SlotState{
	SlotPending:     {SlotFetching},
	SlotFetching:    {SlotFetched, SlotPending, SlotSkippedEmpty},
	SlotFetched:     {SlotReconciling, SlotSkippedEmpty},
	SlotReconciling: {SlotSinking, SlotDone},
	SlotSinking:     {SlotDone},
}

func canTransition(from, to SlotState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
