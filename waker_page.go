package coroexec

import "sync/atomic"

// WakerPage is the cache-line-padded, 64-slot atomic bitmap triple described
// in spec.md §3/§4.1: notified, dropped and borrowed bitfields, one bit per
// TaskSlot in the page. All transitions use sequentially-consistent atomic
// operations (Go's atomic.Uint64 defaults to SeqCst), giving O(1) bulk scans
// via swap-and-mask instead of per-slot locking.
//
// The padding mirrors the teacher's FastState/MicrotaskRing cache-line
// padding discipline: pages are handed out from a growing slice
// (PrioritySlab.pages) and must not false-share with their neighbors.
type WakerPage struct { // betteralign:ignore
	_ [cacheLineSize]byte

	notified atomic.Uint64
	dropped  atomic.Uint64
	borrowed atomic.Uint64

	_ [cacheLineSize - 8]byte
}

// cacheLineSize matches the teacher's sizeOfCacheLine constant (128 to
// satisfy both x86-64's 64-byte lines and Apple Silicon/ARM64's 128-byte
// lines, per the teacher's own comment).
const cacheLineSize = 128

func bit(i uint8) uint64 { return uint64(1) << i }

// Initialize marks slot i as freshly spawned: notified, not dropped, not
// borrowed. Precondition: i < slotsPerPage.
func (p *WakerPage) Initialize(i uint8) {
	b := bit(i)
	p.notified.Or(b)
	p.dropped.And(^b)
	p.borrowed.And(^b)
}

// Notify sets the notified bit for slot i. Idempotent; multiple calls
// coalesce into one pending wakeup. Safe to call from any context,
// including a simulated interrupt handler.
func (p *WakerPage) Notify(i uint8) {
	p.notified.Or(bit(i))
}

// MarkDropped sets the dropped bit for slot i: the task has completed and
// its slot may be reaped on the next sweep.
func (p *WakerPage) MarkDropped(i uint8) {
	p.dropped.Or(bit(i))
}

// MarkBorrowed sets or clears the borrowed bit for slot i. Set while an
// executor is mid-poll on the slot so wake_by_ref cannot cause re-entrant
// dispatch of the same slot on this CPU; cleared on return from poll.
func (p *WakerPage) MarkBorrowed(i uint8, borrowed bool) {
	b := bit(i)
	if borrowed {
		p.borrowed.Or(b)
	} else {
		p.borrowed.And(^b)
	}
}

// TakeNotified atomically swaps the notified bitmap to 0 and returns the
// prior value masked by ~dropped & ~borrowed: dropped slots must never be
// polled again, and borrowed slots are already being polled by the executor
// that borrowed them. Notified bits of dropped slots are discarded. Notified
// bits of borrowed (and not dropped) slots are set again, so the wake is
// observed by a sweep after the borrow is released.
func (p *WakerPage) TakeNotified() uint64 {
	prior := p.notified.Swap(0)
	dropped, borrowed := p.dropped.Load(), p.borrowed.Load()
	if held := prior & borrowed &^ dropped; held != 0 {
		p.notified.Or(held)
	}
	return prior &^ (dropped | borrowed)
}

// TakeDropped atomically swaps the dropped bitmap to 0. The reaping owner
// (TaskCollection) must consume every returned bit by clearing the
// corresponding slab slot and decrementing its live-task counter.
func (p *WakerPage) TakeDropped() uint64 {
	return p.dropped.Swap(0)
}

// Clear atomically clears all three bits for slot i: the slot is free and
// may be reused by a future Add.
func (p *WakerPage) Clear(i uint8) {
	b := ^bit(i)
	p.notified.And(b)
	p.dropped.And(b)
	p.borrowed.And(b)
}

// IsBorrowed reports whether slot i is currently borrowed (mid-poll).
func (p *WakerPage) IsBorrowed(i uint8) bool {
	return p.borrowed.Load()&bit(i) != 0
}

// IsDropped reports whether slot i has already been marked dropped.
func (p *WakerPage) IsDropped(i uint8) bool {
	return p.dropped.Load()&bit(i) != 0
}
