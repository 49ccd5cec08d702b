package coroexec

// TaskKey is the packed 64-bit identifier described in spec.md §3: a
// priority (5 bits, highest), a page index (52 bits) and a slot index
// within the page (6 bits, lowest). It never references task memory
// directly. A waker likewise captures its (page, slot) coordinates rather
// than a pointer to the Task's slab entry, so a completed task's slot can be
// reclaimed while waker clones for it remain harmlessly inert (spec.md §9,
// "Keys instead of references").
type TaskKey uint64

const (
	keySlotBits     = 6
	keyPageBits     = 52
	keyPriorityBits = 5

	keySlotMask     = (uint64(1) << keySlotBits) - 1
	keyPageMask     = (uint64(1) << keyPageBits) - 1
	keyPriorityMask = (uint64(1) << keyPriorityBits) - 1

	keyPageShift     = keySlotBits
	keyPriorityShift = keySlotBits + keyPageBits
)

// slotsPerPage is the number of TaskSlots addressed by one WakerPage (one
// bit per slot in each of the page's three bitmaps).
const slotsPerPage = 64

// MaxPriority is the number of priority levels the key format can address.
// Exactly one of them (DefaultPriority) is operational, per spec.md §9's
// Open Question (a); PrioritySlab never allocates the others.
const MaxPriority = 32

// DefaultPriority is the single operational priority level.
const DefaultPriority = 0

// PackKey composes a TaskKey from its constituent parts. Callers must
// ensure priority < MaxPriority and slot < slotsPerPage; page is bounded
// only by the 52-bit field width.
func PackKey(priority uint8, page uint64, slot uint8) TaskKey {
	return TaskKey(
		(uint64(priority)&keyPriorityMask)<<keyPriorityShift |
			(page&keyPageMask)<<keyPageShift |
			(uint64(slot) & keySlotMask),
	)
}

// Unpack decomposes a TaskKey back into (priority, page, slot).
func (k TaskKey) Unpack() (priority uint8, page uint64, slot uint8) {
	v := uint64(k)
	priority = uint8((v >> keyPriorityShift) & keyPriorityMask)
	page = (v >> keyPageShift) & keyPageMask
	slot = uint8(v & keySlotMask)
	return
}

// Priority returns the priority field of the key.
func (k TaskKey) Priority() uint8 { p, _, _ := k.Unpack(); return p }

// Page returns the page-index field of the key.
func (k TaskKey) Page() uint64 { _, pg, _ := k.Unpack(); return pg }

// Slot returns the slot-index field of the key.
func (k TaskKey) Slot() uint8 { _, _, s := k.Unpack(); return s }

// slabIndex converts a composite (page, slot) into the flat index used by
// PrioritySlab, keeping slab index and page/slot index in lock-step per
// spec.md §3: slab index i <-> page_index = i/64, slot_index = i%64.
func slabIndex(page uint64, slot uint8) uint64 {
	return page*slotsPerPage + uint64(slot)
}

func pageSlotFromIndex(i uint64) (page uint64, slot uint8) {
	return i / slotsPerPage, uint8(i % slotsPerPage)
}
