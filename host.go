package coroexec

import "sync/atomic"

// HostHooks groups the collaborator interfaces spec.md §1/§6 declares
// deliberately out of scope for the core: per-architecture register
// save/restore, interrupt masking, CPU identification and the page-table
// base register. The core never assumes which implementation it is given —
// a real kernel build supplies one backed by assembly and MMIO; tests and
// this package's default use a goroutine-and-channel simulation (below)
// since Go has no user-mode stack-switch primitive.
type HostHooks struct {
	// CPUID returns the stable index of the calling logical CPU into the
	// fixed-size runtime table.
	CPUID func() uint8

	// IntrOn, IntrOff and IntrGet control and query the interrupt mask.
	IntrOn  func()
	IntrOff func()
	IntrGet func() bool

	// WaitForInterrupt is the idle instruction: it must return promptly
	// once any interrupt is pending.
	WaitForInterrupt func()

	// PageTableBase returns the opaque architectural value copied verbatim
	// into new executor contexts.
	PageTableBase func() uintptr

	// Switch saves the caller's context into from and resumes to. The
	// first switch to a context that has never run begins its entry
	// trampoline instead of resuming a saved register state.
	Switch func(from, to *StackContext)

	// Kick wakes a CPU blocked in WaitForInterrupt. Not part of spec.md's
	// collaborator contract by name, but every host needs some way to
	// turn "an interrupt is now pending" into WaitForInterrupt returning;
	// the simulated host exposes it as a plain function so Spawn can call
	// it without reaching into host internals.
	Kick func()
}

// StackContext is the Go stand-in for the spec's saved architectural
// context record: callee-saved registers, stack pointer and program
// counter. Go cannot save or load those directly, so StackContext instead
// coordinates a goroutine dedicated to the context's owner (an Executor or
// the Runtime's own call stack) via a handoff channel of capacity 1 — exactly
// one side of a switch pair runs at a time, which is the externally
// observable behavior spec.md §4.5 and §5 require, even though the
// mechanism is channels rather than registers.
type StackContext struct {
	resume  chan struct{}
	started atomic.Bool
	entry   func()
}

// newStackContext builds the context for an as-yet-unentered owner: entry
// is the function that becomes its "executor_entry" trampoline, run on a
// fresh goroutine the first time this context is switched to.
func newStackContext(entry func()) *StackContext {
	return &StackContext{resume: make(chan struct{}, 1), entry: entry}
}

// newRootStackContext builds the context for the Runtime's own call stack,
// which is already running (it is whatever goroutine called run_until_idle)
// rather than something that must be launched on first switch.
func newRootStackContext() *StackContext {
	sc := &StackContext{resume: make(chan struct{}, 1)}
	sc.started.Store(true)
	return sc
}

// forceResume wakes whatever goroutine is blocked receiving on sc.resume,
// without going through the paired Switch(from, to) protocol. Used by
// HandleTimeout to simulate an interrupt-context switch(E.ctx, runtime_ctx):
// real hardware can suspend a busy executor's instruction stream mid-poll,
// but Go cannot suspend an arbitrary running goroutine from the outside, so
// the runtime instead stops waiting for it and moves on — the abandoned
// executor's goroutine keeps running in the background until its own poll
// call returns (see Executor.run's WEAK-state check).
func (sc *StackContext) forceResume() {
	select {
	case sc.resume <- struct{}{}:
	default:
	}
}

// switchStacks is the default Switch implementation: hand off to `to`
// (launching its entry trampoline on first use, otherwise waking its
// blocked goroutine), then block until `from` is switched back to.
func switchStacks(from, to *StackContext) {
	if to.started.CompareAndSwap(false, true) {
		go to.entry()
	} else {
		to.resume <- struct{}{}
	}
	<-from.resume
}

// simulatedCPU holds the mutable state backing one NewSimulatedHost.
type simulatedCPU struct {
	intrEnabled atomic.Bool
	wake        chan struct{}
}

// NewSimulatedHost returns a HostHooks suitable for tests and for any Go
// process hosting this core outside of a real kernel: interrupts are
// tracked with an atomic flag, WaitForInterrupt blocks on a buffered
// channel that Kick (and therefore Spawn) can signal, and
// Switch is the goroutine/channel simulation above.
func NewSimulatedHost(cpuID uint8) HostHooks {
	s := &simulatedCPU{wake: make(chan struct{}, 1)}
	s.intrEnabled.Store(true)

	return HostHooks{
		CPUID:            func() uint8 { return cpuID },
		IntrOn:           func() { s.intrEnabled.Store(true) },
		IntrOff:          func() { s.intrEnabled.Store(false) },
		IntrGet:          func() bool { return s.intrEnabled.Load() },
		WaitForInterrupt: func() { <-s.wake },
		PageTableBase:    func() uintptr { return 0 },
		Switch:           switchStacks,
		Kick: func() {
			select {
			case s.wake <- struct{}{}:
			default:
			}
		},
	}
}
