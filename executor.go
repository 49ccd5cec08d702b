package coroexec

import (
	"sync/atomic"
	"time"
)

var executorIDCounter atomic.Uint64

func nextExecutorID() uint64 { return executorIDCounter.Add(1) }

// Executor is a stack-owning worker whose body loops take_next -> poll ->
// handle outcome -> park (spec.md §4.4). In a real kernel build it owns a
// 128 KiB stack and a saved register context; here StackContext plays that
// role via the goroutine/channel simulation in host.go.
//
// state is one of ExecUnused/ExecStrong/ExecWeak/ExecKilled. Exactly one
// strong executor exists per Runtime at a time (spec.md §3 invariant); a
// weak executor runs exactly one more poll before transitioning to KILLED
// and being reaped.
type Executor struct {
	id      uint64
	runtime *Runtime
	ctx     *StackContext
	state   *FastState // holds ExecState

	// taskID is the id of the task currently being polled, or 0 when idle
	// between polls. IsPolling reads this; the runtime's timeout handler
	// checks it to decide whether a demotion is meaningful.
	taskID atomic.Uint64
}

// newExecutor allocates an executor in state UNUSED, owned by rt. Its entry
// trampoline is not started until the runtime first switches to it.
func newExecutor(rt *Runtime) *Executor {
	e := &Executor{
		id:      nextExecutorID(),
		runtime: rt,
		state:   NewFastState(uint64(ExecUnused)),
	}
	e.ctx = newStackContext(e.entryTrampoline)
	return e
}

// IsPolling reports whether the executor is currently inside a Poll call,
// per spec.md §4.4's is_polling(): the runtime reads this on timeout to
// decide whether its strong executor was mid-poll.
func (e *Executor) IsPolling() bool { return e.taskID.Load() != 0 }

// entryTrampoline is the Go analogue of the spec's executor_entry assembly
// trampoline: it runs the executor body on a fresh goroutine. run() only
// ever returns when this executor has been demoted to WEAK and finished its
// in-flight poll; at that point it is already KILLED and nothing is waiting
// to be switched back into (the runtime moved on to a fresh strong executor
// the moment it was demoted — see HandleTimeout), so unlike the spec's
// assembly trampoline there is no final switch here: the goroutine simply
// ends, and the weak executor list's next scavenge prunes the entry.
func (e *Executor) entryTrampoline() {
	e.run()
}

// run is the executor's own loop, on its own logical stack (spec.md §4.4).
func (e *Executor) run() {
	tc := e.runtime.collection
	host := e.runtime.host

	for {
		key, task, waker, ok := tc.TakeNext()
		if ok {
			e.pollOne(tc, host, key, task, waker)
			if ExecState(e.state.Load()) == ExecWeak {
				e.state.Store(uint64(ExecKilled))
				return
			}
			continue
		}

		if tc.TaskCount() == 0 && e.runtime.exitWhenIdle && e.runtime.weakList.Len() == 0 {
			e.yieldToRuntime()
			continue
		}
		if e.runtime.weakList.Len() > 0 {
			e.yieldToRuntime()
			continue
		}
		e.runtime.state.TryTransition(uint64(RuntimeDispatching), uint64(RuntimeSleeping))
		host.WaitForInterrupt()
		e.runtime.state.TryTransition(uint64(RuntimeSleeping), uint64(RuntimeDispatching))
	}
}

// pollOne drives a single take_next result through poll, metrics, logging
// and drop handling (spec.md §4.4 step 2). Interrupts are enabled for the
// duration of the poll call itself ("interrupts enabled by default for user
// polls", spec.md §4.4); the caller's interrupt state is recorded on the
// task beforehand and restored once poll returns, per the task's
// "interrupts-were-enabled-when-last-polled" flag (spec.md glossary).
func (e *Executor) pollOne(tc *TaskCollection, host HostHooks, key TaskKey, task *Task, waker Waker) {
	e.taskID.Store(task.id)
	defer e.taskID.Store(0)
	defer tc.ReleaseBorrow(key)

	task.intrEnabled = host.IntrGet()
	if !task.intrEnabled {
		host.IntrOn()
	}

	cx := &Context{waker: waker, executor: e}

	start := time.Now()
	outcome := task.future.Poll(cx)
	elapsed := time.Since(start)

	if !task.intrEnabled {
		host.IntrOff()
	}

	if m := e.runtime.metrics; m != nil {
		m.PollLatency.Record(elapsed)
		m.Polls.Increment()
	}

	if outcome == Ready {
		waker.dropByRef()
		LogTaskDropped(host.CPUID(), task.id)
	}
}

// yieldToRuntime performs the explicit switch back to the runtime's own
// stack, used both for a voluntary sched_yield/idle-with-weak-executors
// return and, by extension, a task's Context.Yield.
func (e *Executor) yieldToRuntime() {
	e.runtime.host.Switch(e.ctx, e.runtime.ctx)
}
