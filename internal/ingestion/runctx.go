package ingestion

import (
	"fmt"
	"sync"

	"raydium-swap-ingest/internal/domain"
)

// Run context defaults.
const (
	DefaultDedupWindow   = 10_000 // slots below the watermark whose sunk keys are kept
	DefaultHistoryWindow = 1_024  // slots below the watermark whose states are kept
)

// WatermarkTracker tracks the highest contiguous completed slot.
// It is not safe for concurrent use; RunContext guards it.
type WatermarkTracker struct {
	next uint64 // lowest slot not yet completed
	done map[uint64]struct{}
}

// NewWatermarkTracker creates a tracker whose first expected slot is start.
func NewWatermarkTracker(start uint64) *WatermarkTracker {
	return &WatermarkTracker{next: start, done: make(map[uint64]struct{})}
}

// Complete marks slot finished and advances over the contiguous prefix.
// It reports whether the watermark moved.
func (w *WatermarkTracker) Complete(slot uint64) (bool, error) {
	if slot < w.next {
		return false, fmt.Errorf("slot %d already below watermark", slot)
	}
	if _, ok := w.done[slot]; ok {
		return false, fmt.Errorf("slot %d completed twice", slot)
	}
	w.done[slot] = struct{}{}

	advanced := false
	for {
		if _, ok := w.done[w.next]; !ok {
			break
		}
		delete(w.done, w.next)
		w.next++
		advanced = true
	}
	return advanced, nil
}

// Watermark returns the highest contiguous completed slot. ok is false when
// no slot has been completed past the start.
func (w *WatermarkTracker) Watermark() (slot uint64, ok bool) {
	if w.next == 0 {
		return 0, false
	}
	return w.next - 1, true
}

// Ahead returns the number of completed slots above the watermark.
func (w *WatermarkTracker) Ahead() int {
	return len(w.done)
}

// RunContext is the mutable state of one pipeline run: per-slot states, the
// watermark tracker and the set of keys confirmed sunk. Workers and the
// collector share it; all methods are safe for concurrent use.
type RunContext struct {
	mu      sync.Mutex
	start   uint64
	states  map[uint64]SlotState
	tracker *WatermarkTracker

	sunk        map[domain.DedupKey]struct{}
	sunkBySlot  map[uint64][]domain.DedupKey
	dedupWindow uint64
	history     uint64

	// lowest slots not yet pruned
	keysPruned   uint64
	statesPruned uint64
}

// NewRunContext creates run state for slots starting at start.
// Zero windows select the defaults.
func NewRunContext(start, dedupWindow, historyWindow uint64) *RunContext {
	if dedupWindow == 0 {
		dedupWindow = DefaultDedupWindow
	}
	if historyWindow == 0 {
		historyWindow = DefaultHistoryWindow
	}
	return &RunContext{
		start:        start,
		states:       make(map[uint64]SlotState),
		tracker:      NewWatermarkTracker(start),
		sunk:         make(map[domain.DedupKey]struct{}),
		sunkBySlot:   make(map[uint64][]domain.DedupKey),
		dedupWindow:  dedupWindow,
		history:      historyWindow,
		keysPruned:   start,
		statesPruned: start,
	}
}

// Track registers slot as Pending. Tracking a slot that is already Pending is
// a no-op, which is how deferred slots are re-queued.
func (rc *RunContext) Track(slot uint64) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if slot < rc.start {
		return fmt.Errorf("slot %d before run start %d: %w", slot, rc.start, ErrInvalidTransition)
	}
	if s, ok := rc.states[slot]; ok {
		if s == SlotPending {
			return nil
		}
		return fmt.Errorf("slot %d already %s: %w", slot, s, ErrInvalidTransition)
	}
	if wm, ok := rc.tracker.Watermark(); ok && slot <= wm {
		return fmt.Errorf("slot %d already done: %w", slot, ErrInvalidTransition)
	}
	rc.states[slot] = SlotPending
	return nil
}

// Transition moves slot to a non-terminal state.
func (rc *RunContext) Transition(slot uint64, to SlotState) error {
	if to.Terminal() {
		return fmt.Errorf("use Complete for %s: %w", to, ErrInvalidTransition)
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.transitionLocked(slot, to)
}

func (rc *RunContext) transitionLocked(slot uint64, to SlotState) error {
	from, ok := rc.states[slot]
	if !ok {
		return fmt.Errorf("slot %d not tracked: %w", slot, ErrInvalidTransition)
	}
	if !canTransition(from, to) {
		return fmt.Errorf("slot %d %s -> %s: %w", slot, from, to, ErrInvalidTransition)
	}
	rc.states[slot] = to
	return nil
}

// Complete moves slot to Done or SkippedEmpty and advances the watermark.
// It reports whether the watermark moved.
func (rc *RunContext) Complete(slot uint64, to SlotState) (bool, error) {
	if !to.Terminal() {
		return false, fmt.Errorf("%s is not terminal: %w", to, ErrInvalidTransition)
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if err := rc.transitionLocked(slot, to); err != nil {
		return false, err
	}
	advanced, err := rc.tracker.Complete(slot)
	if err != nil {
		return false, err
	}
	if advanced {
		rc.pruneLocked()
	}
	return advanced, nil
}

// State returns the state of slot. Slots at or below the watermark whose
// history was pruned report Done.
func (rc *RunContext) State(slot uint64) (SlotState, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if s, ok := rc.states[slot]; ok {
		return s, true
	}
	if wm, ok := rc.tracker.Watermark(); ok && slot >= rc.start && slot <= wm {
		return SlotDone, true
	}
	return 0, false
}

// Watermark returns the highest contiguous terminal slot of the run.
func (rc *RunContext) Watermark() (uint64, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	wm, ok := rc.tracker.Watermark()
	if ok && wm < rc.start {
		return wm, false
	}
	return wm, ok
}

// MarkSunk records keys confirmed written by the sink.
func (rc *RunContext) MarkSunk(records []domain.SwapRecord) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for i := range records {
		key := records[i].Key()
		if _, ok := rc.sunk[key]; ok {
			continue
		}
		rc.sunk[key] = struct{}{}
		rc.sunkBySlot[records[i].Slot] = append(rc.sunkBySlot[records[i].Slot], key)
	}
}

// IsSunk reports whether key was confirmed written in this run.
func (rc *RunContext) IsSunk(key domain.DedupKey) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	_, ok := rc.sunk[key]
	return ok
}

// SunkKeys returns the number of keys held by the dedup set.
func (rc *RunContext) SunkKeys() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.sunk)
}

// pruneLocked drops dedup keys and state history far enough below the
// watermark that no slot of this run can produce them again.
func (rc *RunContext) pruneLocked() {
	wm, ok := rc.tracker.Watermark()
	if !ok {
		return
	}
	if wm > rc.dedupWindow {
		floor := wm - rc.dedupWindow
		for ; rc.keysPruned < floor; rc.keysPruned++ {
			for _, k := range rc.sunkBySlot[rc.keysPruned] {
				delete(rc.sunk, k)
			}
			delete(rc.sunkBySlot, rc.keysPruned)
		}
	}
	if wm > rc.history {
		floor := wm - rc.history
		for ; rc.statesPruned < floor; rc.statesPruned++ {
			delete(rc.states, rc.statesPruned)
		}
	}
}
