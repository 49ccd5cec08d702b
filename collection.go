package coroexec

import (
	"math/bits"
	"sync"
	"sync/atomic"
)

// cursorState is the resumable scan position described in spec.md §4.3 and
// §9's "generator-based cursor" design note: an explicit
// (page_idx, current_bitmap) pair plus a resume method, standing in for the
// source's language-generator cursor.
type cursorState struct {
	pageIdx    uint64
	bitmap     uint64
	active     bool // bitmap holds a live snapshot for pageIdx
	dropReaped bool // dropped bits for pageIdx already reaped this visit
}

// TaskCollection is the per-CPU owner of every priority's PrioritySlab, the
// live task counter, and the take_next cursor (spec.md §3/§4.3). Only
// DEFAULT_PRIORITY is ever allocated — see SPEC_FULL.md's Open Question
// resolution on priority levels.
type TaskCollection struct {
	slabs [MaxPriority]*PrioritySlab

	taskCount atomic.Int64

	mu     sync.Mutex
	cursor cursorState
}

// NewTaskCollection returns an empty collection with the single active
// priority slab pre-allocated.
func NewTaskCollection() *TaskCollection {
	tc := &TaskCollection{}
	tc.slabs[DefaultPriority] = newPrioritySlab(DefaultPriority)
	return tc
}

// Add installs future as a new task at DEFAULT_PRIORITY, marks its slot
// notified and returns the composite key addressing it (spec.md §4.3).
// Add has no priority parameter; a nonzero priority is rejected earlier, by
// Runtime.SpawnAtPriority.
func (tc *TaskCollection) Add(future Future) TaskKey {
	task := &Task{id: nextTaskID(), priority: DefaultPriority, future: future}
	key := tc.slabs[DefaultPriority].alloc(task)
	tc.taskCount.Add(1)
	return key
}

// TaskCount reports the number of non-free slots, per spec.md §8 property
// 4. A task is counted from Add until its dropped slot is reaped by a later
// TakeNext sweep, so a completed but not yet reaped task is still counted.
func (tc *TaskCollection) TaskCount() int64 {
	return tc.taskCount.Load()
}

// TakeNext resumes the scan cursor and returns the next runnable task, or
// ok=false if a full sweep of every page found nothing to poll (spec.md
// §4.3). On success the returned slot's borrowed bit is set; the caller
// (an Executor) must release it via ReleaseBorrow once the poll returns.
func (tc *TaskCollection) TakeNext() (key TaskKey, task *Task, waker Waker, ok bool) {
	slab := tc.slabs[DefaultPriority]

	tc.mu.Lock()
	defer tc.mu.Unlock()

	pages := slab.pageCount()
	if pages == 0 {
		return 0, nil, Waker{}, false
	}

	for swept := uint64(0); swept < pages; {
		pageIdx := tc.cursor.pageIdx % pages
		page := slab.page(pageIdx)

		if !tc.cursor.active {
			tc.cursor.bitmap = page.TakeNotified()
			tc.cursor.active = true
			tc.cursor.dropReaped = false
		}

		for tc.cursor.bitmap != 0 {
			slotIdx := uint8(bits.TrailingZeros64(tc.cursor.bitmap))
			tc.cursor.bitmap &^= bit(slotIdx)

			t := slab.taskAt(pageIdx, slotIdx)
			if t == nil {
				continue
			}
			page.MarkBorrowed(slotIdx, true)
			k := PackKey(DefaultPriority, pageIdx, slotIdx)
			return k, t, newWaker(page, slotIdx, &t.dropped), true
		}

		if !tc.cursor.dropReaped {
			tc.reapDropped(slab, pageIdx, page)
			tc.cursor.dropReaped = true
		}

		tc.cursor.active = false
		tc.cursor.pageIdx = (pageIdx + 1) % pages
		swept++
	}

	return 0, nil, Waker{}, false
}

// reapDropped consumes every bit take_dropped returns for pageIdx, freeing
// the corresponding slab slots and decrementing the live-task counter. Must
// be called with tc.mu held.
func (tc *TaskCollection) reapDropped(slab *PrioritySlab, pageIdx uint64, page *WakerPage) {
	dropped := page.TakeDropped()
	for dropped != 0 {
		slotIdx := uint8(bits.TrailingZeros64(dropped))
		dropped &^= bit(slotIdx)
		slab.release(pageIdx, slotIdx)
		tc.taskCount.Add(-1)
	}
}

// PeekID returns the Task id installed at key, for logging/diagnostics. The
// caller must not retain the result as proof of liveness — the task may
// complete and its slot be reused the instant after this call returns.
func (tc *TaskCollection) PeekID(key TaskKey) uint64 {
	priority, pageIdx, slot := key.Unpack()
	if t := tc.slabs[priority].taskAt(pageIdx, slot); t != nil {
		return t.id
	}
	return 0
}

// ReleaseBorrow clears the borrowed bit for key's slot. An Executor calls
// this immediately after a poll returns, whatever the outcome, so a
// subsequent notify can be observed by a later sweep (spec.md §4.4).
func (tc *TaskCollection) ReleaseBorrow(key TaskKey) {
	priority, pageIdx, slot := key.Unpack()
	slab := tc.slabs[priority]
	slab.page(pageIdx).MarkBorrowed(slot, false)
}
