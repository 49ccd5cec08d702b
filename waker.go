package coroexec

import "sync/atomic"

// Waker is the handle a polled Task receives so it (or anything it shares
// the handle with) can request to be polled again, per spec.md §4.2. It
// references a (page, slot) pair rather than the task directly — the same
// "don't hold the thing, hold a stable coordinate into shared state" shape
// as the teacher's registry, which tracks promises by id+weak-pointer
// rather than by strong reference.
//
// A Waker is clonable (Clone) and keeps its page alive for as long as any
// clone is outstanding, mirroring Rust/async Waker clone semantics named in
// spec.md; here "keeping the page alive" just means holding a Go pointer to
// it, since the page itself lives for the lifetime of its PrioritySlab.
type Waker struct {
	page *WakerPage
	slot uint8
	// dropped is the task-local completion flag from spec.md §4.2: dropByRef
	// CASes it false->true exactly once; WakeByRef only reads it.
	dropped *atomic.Bool
}

func newWaker(page *WakerPage, slot uint8, dropped *atomic.Bool) Waker {
	return Waker{page: page, slot: slot, dropped: dropped}
}

// Clone returns an independent handle to the same slot. Clones share the
// same dropped flag, so drop-by-ref from any clone is still exactly-once.
func (w Waker) Clone() Waker {
	return w
}

// WakeByRef requests that the referenced task be polled again. If the task
// has already completed (dropped flag set), this is a silent no-op, per
// spec.md's invariant "a task whose drop bit is set will never be polled
// again; attempts to wake_by_ref after drop are silently dropped." Safe to
// call from any context, including a simulated interrupt handler.
func (w Waker) WakeByRef() {
	if w.dropped == nil || w.dropped.Load() {
		return
	}
	w.page.Notify(w.slot)
}

// dropByRef marks the task dropped exactly once: a successful CAS from
// false to true is followed by marking the page's dropped bit, guaranteeing
// mark-dropped executes exactly once even under concurrent WakeByRef calls.
// Only the executor that polled the task to Ready calls this (on the Waker
// TakeNext returned with the task), never user code directly.
func (w Waker) dropByRef() {
	if w.dropped == nil {
		return
	}
	if w.dropped.CompareAndSwap(false, true) {
		w.page.MarkDropped(w.slot)
	}
}
