package coroexec

import "sync"

// Runtime is the per-CPU coordinator: it owns the TaskCollection, the
// current strong executor, the list of weak (demoted) executors, and the
// saved register context for its own stack (spec.md §3/§4.5). Exactly one
// Runtime exists per logical CPU for the process lifetime; it is never torn
// down in normal operation.
type Runtime struct {
	cpuID      uint8
	collection *TaskCollection
	host       HostHooks
	logger     Logger
	metrics    *Metrics

	exitWhenIdle bool

	// ctx is the Runtime's own saved context: the stack run_until_idle is
	// called on. It always appears on the "from" side of a dispatch switch
	// and on the "to" side of a voluntary-yield or forced-preemption switch.
	ctx *StackContext

	// mu guards strong/current/weakList mutation. Never held across a
	// blocking host.Switch call — spec.md §5 requires interrupts off (here:
	// this lock held) only around the mutation itself, not the switch.
	mu       sync.Mutex
	strong   *Executor
	current  *Executor
	weakList *weakExecutorList

	state *FastState // holds RuntimeState

	scavengeBatch int
}

// NewRuntime constructs a Runtime for cpuID with a fresh strong executor in
// state UNUSED/STRONG, ready for RunUntilIdle.
func NewRuntime(cpuID uint8, opts ...RuntimeOption) (*Runtime, error) {
	cfg, err := resolveRuntimeOptions(opts)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		cpuID:         cpuID,
		collection:    NewTaskCollection(),
		host:          cfg.host(cpuID),
		logger:        cfg.logger,
		exitWhenIdle:  cfg.exitWhenIdle,
		ctx:           newRootStackContext(),
		weakList:      newWeakExecutorList(),
		state:         NewFastState(uint64(RuntimeIdle)),
		scavengeBatch: 16,
	}
	// The scheduler's log helpers (LogSpawned, LogExecutorDemoted, ...) read
	// the package-level default logger rather than threading rt.logger
	// through every call site — see logging.go's header comment. Installing
	// it here means WithLogger takes effect for every runtime in the
	// process; the last one constructed wins, which is fine in practice
	// since a process normally configures one logger for its whole CPU
	// table before spawning any work.
	if _, ok := cfg.logger.(NoOpLogger); !ok {
		SetStructuredLogger(cfg.logger)
	}
	if cfg.metricsEnabled {
		rt.metrics = NewMetrics()
	}

	rt.strong = newExecutor(rt)
	rt.strong.state.Store(uint64(ExecStrong))
	rt.current = rt.strong
	return rt, nil
}

// CPUID returns the logical CPU this runtime owns.
func (rt *Runtime) CPUID() uint8 { return rt.cpuID }

// CurrentExecutor returns the executor currently dispatched on this CPU,
// under rt.mu, for diagnostics and tests.
func (rt *Runtime) CurrentExecutor() *Executor {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.current
}

// TaskCount returns the number of live tasks on this CPU.
func (rt *Runtime) TaskCount() int64 { return rt.collection.TaskCount() }

// Metrics returns this runtime's live Metrics (not a copy; its fields keep
// changing as the runtime runs), or nil if WithMetrics was not enabled.
func (rt *Runtime) Metrics() *Metrics { return rt.metrics }

// Spawn installs future onto this CPU's TaskCollection and wakes the CPU if
// it is blocked in wait_for_interrupt (spec.md §4.5's spawn: runs with
// interrupts disabled around the TaskCollection mutation). Always runs at
// DEFAULT_PRIORITY; use SpawnAtPriority to surface the Open Question
// resolution's rejection of any other level explicitly. Returns
// ErrRuntimeTerminated if this Runtime has already been retired by
// Terminate.
func (rt *Runtime) Spawn(future Future) (TaskKey, error) {
	if RuntimeState(rt.state.Load()) == RuntimeTerminated {
		return TaskKey(0), ErrRuntimeTerminated
	}

	rt.host.IntrOff()
	key := rt.collection.Add(future)
	rt.host.IntrOn()

	LogSpawned(rt.cpuID, rt.collection.PeekID(key))
	rt.host.Kick()
	return key, nil
}

// SpawnAtPriority is Spawn with an explicit priority argument, present only
// to make spec.md §9's Open Question resolution (a) callable and testable:
// this module bakes in the single active priority level and panics rather
// than silently coercing a request for any other one.
func (rt *Runtime) SpawnAtPriority(priority uint8, future Future) (TaskKey, error) {
	if priority != DefaultPriority {
		panic(ErrPriorityNotImplemented)
	}
	return rt.Spawn(future)
}

// Terminate permanently retires an idle Runtime, so that a later Spawn or
// RunUntilIdle call observes ErrRuntimeTerminated instead of doing work.
// Production runtimes are process-lifetime and never call this; it exists
// for tests that need a deterministic "this runtime is done" boundary,
// mirroring the teacher's own Close()/ErrLoopTerminated pattern. Reports
// whether it performed the transition (false if the runtime was not idle,
// e.g. RunUntilIdle was currently dispatching, or it was already
// terminated).
func (rt *Runtime) Terminate() bool {
	if !rt.state.TryTransition(uint64(RuntimeIdle), uint64(RuntimeTerminating)) {
		return false
	}
	rt.state.Store(uint64(RuntimeTerminated))
	return true
}

// RunUntilIdle is the boot-stub entry point (spec.md §6): it repeatedly
// dispatches the strong executor, pruning KILLED weak executors and
// updating metrics after each resume, forever in production. With WithExitWhenIdle
// it returns once the collection is empty and the weak list is drained —
// the contract spec.md §6 describes as "returns only in test mode".
func (rt *Runtime) RunUntilIdle() error {
	if !rt.state.TryTransition(uint64(RuntimeIdle), uint64(RuntimeDispatching)) {
		if RuntimeState(rt.state.Load()) == RuntimeTerminated {
			return ErrRuntimeTerminated
		}
		return ErrReentrantRun
	}
	defer rt.state.Store(uint64(RuntimeIdle))

	for {
		rt.mu.Lock()
		strong := rt.strong
		rt.current = strong
		rt.mu.Unlock()

		rt.host.Switch(rt.ctx, strong.ctx)

		rt.weakList.Scavenge(rt.scavengeBatch)
		if rt.metrics != nil {
			rt.metrics.Queue.UpdateLiveTasks(int(rt.collection.TaskCount()))
			rt.metrics.Queue.UpdateWeakBacklog(rt.weakList.Len())
		}

		if rt.exitWhenIdle && rt.collection.TaskCount() == 0 && rt.weakList.Len() == 0 {
			return nil
		}
	}
}

// HandleTimeout implements spec.md §4.5's preemption transition: if this
// runtime's current executor is mid-poll, demote it to WEAK, push it onto
// the weak list, construct a fresh STRONG executor, and wake the dispatch
// loop so it resumes onto the new executor instead of waiting on the old
// one. A no-op (returns false) if nothing is currently polling — spec.md
// §7: "timeout does not cancel the task; it only reschedules", and here,
// with nothing in flight, there is nothing to reschedule.
func (rt *Runtime) HandleTimeout() bool {
	rt.mu.Lock()
	cur := rt.current
	if cur == nil || !cur.IsPolling() {
		rt.mu.Unlock()
		return false
	}

	cur.state.Store(uint64(ExecWeak))
	rt.weakList.Add(cur)

	fresh := newExecutor(rt)
	fresh.state.Store(uint64(ExecStrong))
	rt.strong = fresh
	rt.current = fresh

	if rt.metrics != nil {
		rt.metrics.Preemptions.Add(1)
	}
	rt.mu.Unlock()

	LogExecutorDemoted(rt.cpuID, cur.id, cur.taskID.Load())
	rt.ctx.forceResume()
	return true
}
