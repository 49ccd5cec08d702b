package coroexec

import "sync"

// weakExecutorList tracks a Runtime's demoted (WEAK) executors, using the
// same ring-buffer-with-periodic-compaction shape the teacher's registry
// uses for garbage-collectable promises: a demoted executor is exactly a
// "maybe already dead, pending cleanup" entry, the same role a settled or
// GC'd promise played there. Unlike the teacher's weak.Pointer-based
// registry, entries here are strong references — spec.md §3 says the
// runtime's weak list holds "an owning shared handle" for each weak
// executor, since nothing else keeps it alive once demoted.
type weakExecutorList struct {
	data map[uint64]*Executor

	// ring is a circular buffer of ids used for scavenging: deterministic
	// checking of every entry over time without repeatedly walking the
	// whole map.
	ring []uint64
	head int

	nextID uint64
	mu     sync.RWMutex

	scavengeMu sync.Mutex
}

func newWeakExecutorList() *weakExecutorList {
	return &weakExecutorList{
		data:   make(map[uint64]*Executor),
		ring:   make([]uint64, 0, 64),
		nextID: 1,
	}
}

// Add registers a newly-demoted executor and returns its list id.
func (l *weakExecutorList) Add(e *Executor) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	l.data[id] = e
	l.ring = append(l.ring, id)
	return id
}

// Len reports how many entries are currently tracked (including ones not
// yet pruned after turning KILLED).
func (l *weakExecutorList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.data)
}

// Snapshot returns every currently-tracked executor, including KILLED ones
// not yet pruned by Scavenge, in no particular order. The runtime itself
// does not call it; weak executors are never switched back into.
func (l *weakExecutorList) Snapshot() []*Executor {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Executor, 0, len(l.data))
	for _, e := range l.data {
		out = append(out, e)
	}
	return out
}

// Scavenge walks a batch of the ring buffer looking for KILLED executors
// and prunes them, compacting the backing storage once occupancy drops
// below 25% of ring capacity — identical cadence to the teacher's registry
// scavenger, just with "state == ExecKilled" in place of "settled or GC'd".
func (l *weakExecutorList) Scavenge(batchSize int) {
	l.scavengeMu.Lock()
	defer l.scavengeMu.Unlock()

	if batchSize <= 0 {
		return
	}

	l.mu.RLock()
	ringLen := len(l.ring)
	if ringLen == 0 {
		l.mu.RUnlock()
		return
	}

	start := l.head
	end := min(start+batchSize, ringLen)

	type item struct {
		id  uint64
		idx int
	}
	items := make([]item, 0, end-start)
	for i := start; i < end; i++ {
		if id := l.ring[i]; id != 0 {
			items = append(items, item{id, i})
		}
	}

	executors := make([]*Executor, len(items))
	validItems := items[:0]
	for _, it := range items {
		if e, ok := l.data[it.id]; ok {
			executors[len(validItems)] = e
			validItems = append(validItems, it)
		}
	}
	executors = executors[:len(validItems)]

	nextHead := end
	if nextHead >= ringLen {
		nextHead = 0
	}
	l.mu.RUnlock()

	cycleCompleted := nextHead == 0

	type removal struct {
		it item
		e  *Executor
	}
	var toRemove []removal
	for i, it := range validItems {
		if executors[i].state.Load() == uint64(ExecKilled) {
			toRemove = append(toRemove, removal{it, executors[i]})
		}
	}

	if len(toRemove) > 0 || cycleCompleted {
		l.mu.Lock()
		for _, r := range toRemove {
			delete(l.data, r.it.id)
			if r.it.idx < len(l.ring) && l.ring[r.it.idx] == r.it.id {
				l.ring[r.it.idx] = 0
			}
		}
		l.head = nextHead

		if cycleCompleted {
			active := len(l.data)
			capacity := len(l.ring)
			if capacity > 256 && float64(active) < float64(capacity)*0.25 {
				l.compactAndRenew()
			}
		}
		l.mu.Unlock()

		for _, r := range toRemove {
			LogWeakReaped(r.e.runtime.cpuID, r.e.id)
		}
	} else {
		l.mu.Lock()
		l.head = nextHead
		l.mu.Unlock()
	}
}

// compactAndRenew drops null markers from the ring and rebuilds the map so
// Go's runtime can reclaim the old bucket array. Must be called with mu
// held.
func (l *weakExecutorList) compactAndRenew() {
	newRing := make([]uint64, 0, len(l.data))
	newData := make(map[uint64]*Executor, len(l.data))

	for _, id := range l.ring {
		if id != 0 {
			if e, ok := l.data[id]; ok {
				newRing = append(newRing, id)
				newData[id] = e
			}
		}
	}

	l.ring = newRing
	l.data = newData
	l.head = 0
}
