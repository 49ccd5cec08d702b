package coroexec

import "sync/atomic"

// PollState is the two-outcome result of polling a Future, per spec.md §3:
// a task is a state machine producing unit, so the only information a poll
// conveys is whether it is done.
type PollState int

const (
	// Pending means the task made no further progress and must wait for a
	// wake before it is polled again.
	Pending PollState = iota
	// Ready means the task has completed; it will never be polled again.
	Ready
)

func (s PollState) String() string {
	if s == Ready {
		return "Ready"
	}
	return "Pending"
}

// Future is a user-supplied asynchronous computation: a boxed, pinned state
// machine producing unit (spec.md §3). Implementations must be safe to
// resume from any goroutine, but are never polled concurrently with
// themselves — the borrowed bit on their WakerPage slot guarantees that.
type Future interface {
	Poll(cx *Context) PollState
}

// FutureFunc adapts a plain function to Future for tasks with no internal
// state beyond what the closure captures.
type FutureFunc func(cx *Context) PollState

func (f FutureFunc) Poll(cx *Context) PollState { return f(cx) }

// Context is passed to Poll and carries the Waker the task must retain (or
// clone) if it returns Pending — without it, nothing will ever re-poll the
// task. It also carries the executor currently polling the task, so task
// code can voluntarily yield back to the per-CPU scheduler mid-poll.
type Context struct {
	waker    Waker
	executor *Executor
}

// Waker returns the handle for this poll. Clone it before returning Pending
// if the task needs to hand it to something else (a timer, an I/O
// callback); the clone stays valid independent of this Context's lifetime.
func (c *Context) Waker() Waker { return c.waker.Clone() }

// Yield suspends the calling task's logical control flow and hands the CPU
// back to the runtime, resuming exactly where it left off once the runtime
// switches back in (spec.md §4.5's sched_yield: switch(current_executor.ctx,
// runtime.ctx)). The task is still mid-poll from TaskCollection's point of
// view; it must arrange its own re-wake (directly or via cx.Waker()) before
// calling Yield, or it will never run again.
//
// Go has no ambient "current task" the way the source language's task
// context does, so unlike the source's bare sched_yield(), this is a method
// on the Context passed into Poll rather than a free function — an
// intentional adaptation to Go's explicit-context idiom.
func (c *Context) Yield() {
	c.executor.yieldToRuntime()
}

// Task is the pinned per-spawn record held in a PrioritySlab slot. It is
// never moved once installed: TaskKey addresses its slot, not a Go pointer,
// matching spec.md §9's "keys instead of references" design note.
type Task struct {
	id       uint64
	priority uint8
	future   Future

	// intrEnabled records whether interrupts were enabled when this task
	// was last handed to poll, so the executor can restore the caller's
	// preemption state across polls (spec.md §3).
	intrEnabled bool

	// dropped is the task-local completion flag shared by every Waker
	// clone issued for this task's current residency in its slot.
	dropped atomic.Bool
}

// taskIDCounter is a process-wide monotonic counter; ids are never reused and
// carry no meaning beyond identity for logging.
var taskIDCounter atomic.Uint64

func nextTaskID() uint64 {
	return taskIDCounter.Add(1)
}
