package coroexec

import "sync/atomic"

// FastState is a lock-free, cache-line-padded CAS state machine shared by
// both the Executor lifecycle and the Runtime dispatch loop below. Pure
// atomic CAS, no mutex; the padding keeps neighboring states (e.g. two
// Executors allocated adjacently) from false-sharing a cache line.
type FastState struct { // betteralign:ignore
	_ [cacheLineSize]byte
	v atomic.Uint64
	_ [cacheLineSize - 8]byte
}

// NewFastState creates a state machine initialized to initial.
func NewFastState(initial uint64) *FastState {
	s := &FastState{}
	s.v.Store(initial)
	return s
}

// Load returns the current state atomically. No validation; trusts the
// stored value.
func (s *FastState) Load() uint64 { return s.v.Load() }

// Store atomically stores a new state, bypassing CAS validation. Used where
// the caller already owns the transition (e.g. installing STRONG, demoting
// to WEAK, marking KILLED, returning the runtime to Idle).
func (s *FastState) Store(state uint64) { s.v.Store(state) }

// TryTransition attempts to atomically move from one state to another.
func (s *FastState) TryTransition(from, to uint64) bool {
	return s.v.CompareAndSwap(from, to)
}

// TransitionAny attempts a transition from any of validFrom to to.
func (s *FastState) TransitionAny(validFrom []uint64, to uint64) bool {
	for _, from := range validFrom {
		if s.v.CompareAndSwap(from, to) {
			return true
		}
	}
	return false
}

// ExecState is an Executor's lifecycle state, per spec.md §3/glossary:
// UNUSED (allocated, never run) -> STRONG (the designated primary executor)
// -> WEAK (demoted on preemption, runs exactly one more poll) -> KILLED
// (reaped on the next scheduler sweep). A weak executor is never promoted
// back to strong.
type ExecState uint64

const (
	ExecUnused ExecState = iota
	ExecStrong
	ExecWeak
	ExecKilled
)

func (s ExecState) String() string {
	switch s {
	case ExecUnused:
		return "UNUSED"
	case ExecStrong:
		return "STRONG"
	case ExecWeak:
		return "WEAK"
	case ExecKilled:
		return "KILLED"
	default:
		return "UNKNOWN"
	}
}

// RuntimeState is the per-CPU dispatch loop's own state, generalizing the
// teacher's event-loop Awake/Running/Sleeping/Terminating/Terminated
// machine onto spec.md §4.5's S0 (idle)/S1 (dispatched)/S2,S3 (returned
// from yield or timeout) phases. Sleeping corresponds to a CPU blocked in
// wait_for_interrupt with no strong or weak executor runnable.
type RuntimeState uint64

const (
	RuntimeIdle RuntimeState = iota
	RuntimeDispatching
	RuntimeSleeping
	RuntimeTerminating
	RuntimeTerminated
)

func (s RuntimeState) String() string {
	switch s {
	case RuntimeIdle:
		return "Idle"
	case RuntimeDispatching:
		return "Dispatching"
	case RuntimeSleeping:
		return "Sleeping"
	case RuntimeTerminating:
		return "Terminating"
	case RuntimeTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}
