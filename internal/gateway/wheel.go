package gateway

import (
	"sync"
)

// Entry is an item schedulable on the TimeoutWheel. Implementations store
// their current slot index on the wheel's behalf; the wheel is the only
// writer and only mutates it under the owning slot's lock. A value of -1
// means "not scheduled".
type Entry interface {
	wheelSlot() int
	setWheelSlot(int)
}

// TimeoutWheel is a fixed-size circular array of expiry buckets. Scheduling
// is sliding-expiration: every call moves the entry to the slot delayTicks
// ahead of the current pointer, so a heartbeat pushes eviction forward
// rather than extending an absolute TTL.
type TimeoutWheel struct {
	size  int
	slots []wheelSlot

	mu      sync.Mutex // guards pointer only
	pointer int
}

type wheelSlot struct {
	mu      sync.Mutex
	entries map[Entry]struct{}
}

// NewTimeoutWheel creates a wheel with the given number of slots.
func NewTimeoutWheel(size int) *TimeoutWheel {
	w := &TimeoutWheel{
		size:  size,
		slots: make([]wheelSlot, size),
	}
	for i := range w.slots {
		w.slots[i].entries = make(map[Entry]struct{})
	}
	return w
}

// Schedule removes the entry from its previous slot (if any) and inserts it
// into the slot delayTicks ahead of the current pointer. Delay is clamped to
// [1, size-1]: an entry never lands on the slot being drained, and never
// wraps onto itself.
func (w *TimeoutWheel) Schedule(e Entry, delayTicks int) {
	if delayTicks < 1 {
		delayTicks = 1
	}
	if delayTicks >= w.size {
		delayTicks = w.size - 1
	}

	w.mu.Lock()
	next := (w.pointer + delayTicks) % w.size
	w.mu.Unlock()

	prev := e.wheelSlot()
	if prev == next {
		slot := &w.slots[next]
		slot.mu.Lock()
		slot.entries[e] = struct{}{}
		e.setWheelSlot(next)
		slot.mu.Unlock()
		return
	}

	unlock := w.lockOrdered(prev, next)
	if prev >= 0 {
		delete(w.slots[prev].entries, e)
	}
	w.slots[next].entries[e] = struct{}{}
	e.setWheelSlot(next)
	unlock()
}

// Remove takes the entry off the wheel. Safe to call when the entry is not
// scheduled, so teardown paths can race.
func (w *TimeoutWheel) Remove(e Entry) {
	prev := e.wheelSlot()
	if prev < 0 {
		return
	}
	slot := &w.slots[prev]
	slot.mu.Lock()
	if _, ok := slot.entries[e]; ok {
		delete(slot.entries, e)
		e.setWheelSlot(-1)
	}
	slot.mu.Unlock()
}

// Advance drains and clears the slot at the current pointer, then moves the
// pointer forward one slot. The returned entries are no longer scheduled.
func (w *TimeoutWheel) Advance() []Entry {
	w.mu.Lock()
	idx := w.pointer
	w.mu.Unlock()

	slot := &w.slots[idx]
	slot.mu.Lock()
	var drained []Entry
	if len(slot.entries) > 0 {
		drained = make([]Entry, 0, len(slot.entries))
		for e := range slot.entries {
			delete(slot.entries, e)
			e.setWheelSlot(-1)
			drained = append(drained, e)
		}
	}
	slot.mu.Unlock()

	w.mu.Lock()
	w.pointer = (idx + 1) % w.size
	w.mu.Unlock()

	return drained
}

// Len returns the total number of scheduled entries across all slots.
func (w *TimeoutWheel) Len() int {
	total := 0
	for i := range w.slots {
		w.slots[i].mu.Lock()
		total += len(w.slots[i].entries)
		w.slots[i].mu.Unlock()
	}
	return total
}

// Size returns the number of slots.
func (w *TimeoutWheel) Size() int {
	return w.size
}

// lockOrdered acquires the locks for slots a and b in ascending index order
// regardless of movement direction, preventing deadlock between concurrent
// reschedules. a may be -1 (entry not scheduled); the returned func releases
// whatever was acquired.
func (w *TimeoutWheel) lockOrdered(a, b int) func() {
	if a < 0 || a == b {
		w.slots[b].mu.Lock()
		return w.slots[b].mu.Unlock
	}
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	w.slots[lo].mu.Lock()
	w.slots[hi].mu.Lock()
	return func() {
		w.slots[hi].mu.Unlock()
		w.slots[lo].mu.Unlock()
	}
}
