package coroexec

import "sync"

// PrioritySlab is the pinned heap storage for one priority level's task
// state machines, addressed by composite key (priority, page, slot), per
// spec.md §3. Slab index and page/slot index stay in lock-step: slab index
// i <-> page_index = i/64, slot_index = i%64.
//
// Mutation (growing the page vector, installing or clearing a slot) is
// protected by a per-priority lock, per spec.md §5's "TaskCollection is
// logically owned by one CPU; interior mutability is protected by
// per-priority locks so a remote wake only touches atomics, not the slab."
// Reads of *Task and *WakerPage pointers (taskAt, page) also take the lock
// briefly; all WakerPage bit operations are lock-free.
type PrioritySlab struct {
	priority uint8

	mu    sync.Mutex
	slots []*Task
	pages []*WakerPage
	free  []uint64 // free slab indices, LIFO reuse
}

func newPrioritySlab(priority uint8) *PrioritySlab {
	return &PrioritySlab{priority: priority}
}

// page returns the WakerPage at pageIdx. Caller must hold a reference
// obtained after the page is known to exist (e.g. from a key already
// handed out, or under the slab lock during growth).
func (s *PrioritySlab) page(pageIdx uint64) *WakerPage {
	s.mu.Lock()
	p := s.pages[pageIdx]
	s.mu.Unlock()
	return p
}

// pageCount reports how many WakerPages have been allocated so far.
func (s *PrioritySlab) pageCount() uint64 {
	s.mu.Lock()
	n := uint64(len(s.pages))
	s.mu.Unlock()
	return n
}

// growToPage ensures pages[0..pageIdx] exist, appending fresh WakerPages as
// needed. Must be called with mu held.
func (s *PrioritySlab) growToPage(pageIdx uint64) {
	for uint64(len(s.pages)) <= pageIdx {
		s.pages = append(s.pages, &WakerPage{})
		s.slots = append(s.slots, make([]*Task, slotsPerPage)...)
	}
}

// alloc installs task into a free slot (reusing one if available, else
// growing the slab by one page of slotsPerPage slots), initializes its
// WakerPage bit, and returns the composite key addressing it.
func (s *PrioritySlab) alloc(task *Task) TaskKey {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.free) == 0 {
		// Queue the new page's slots so the lowest index is handed out first.
		s.growToPage(uint64(len(s.pages)))
		for i := uint64(len(s.slots)); i > uint64(len(s.slots))-slotsPerPage; i-- {
			s.free = append(s.free, i-1)
		}
	}
	n := len(s.free)
	idx := s.free[n-1]
	s.free = s.free[:n-1]

	s.slots[idx] = task
	pageIdx, slot := pageSlotFromIndex(idx)
	s.pages[pageIdx].Initialize(slot)

	return PackKey(s.priority, pageIdx, slot)
}

// taskAt returns the *Task installed at (pageIdx, slot), or nil if the slot
// is currently free.
func (s *PrioritySlab) taskAt(pageIdx uint64, slot uint8) *Task {
	idx := slabIndex(pageIdx, slot)
	s.mu.Lock()
	t := s.slots[idx]
	s.mu.Unlock()
	return t
}

// release clears the WakerPage bits for (pageIdx, slot), removes the slab
// entry and returns the index to the free list for reuse by a future alloc.
func (s *PrioritySlab) release(pageIdx uint64, slot uint8) {
	idx := slabIndex(pageIdx, slot)
	s.mu.Lock()
	s.slots[idx] = nil
	s.free = append(s.free, idx)
	page := s.pages[pageIdx]
	s.mu.Unlock()
	page.Clear(slot)
}
