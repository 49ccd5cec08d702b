// Package coroexec implements the core of a bare-metal, no-heap-host
// coroutine executor for a kernel or embedded runtime: a fixed set of
// hardware CPUs, each running its own cooperative scheduler that can
// forcibly abandon an overrunning task's poll in favor of other work,
// using stack-switched executor contexts as the unit of preemption.
//
// # Architecture
//
// Every CPU owns one [Runtime], which owns a [TaskCollection] (a
// priority-bucketed, page-structured slab of task slots addressed by
// [TaskKey]) and dispatches work through [Executor] worker contexts. A
// Runtime always has exactly one STRONG executor; [Runtime.HandleTimeout]
// demotes it to WEAK and builds a fresh strong one in its place, so one
// slow task can never starve the rest of the CPU's work.
//
// Spawned work is a [Future]: a state machine polled with a [Context]
// carrying a [Waker]. Returning [Pending] leaves the task waiting for a
// wake (via Context.Waker or a clone handed elsewhere); returning [Ready]
// completes the task permanently — it is never polled again.
//
// # Collaborator Interfaces
//
// The register-level stack switch, interrupt masking, CPU identification
// and page-table base register are all external to this package — modeled
// as [HostHooks]. [NewSimulatedHost] provides a goroutine-and-channel
// implementation suitable for tests and any non-kernel hosting; a real
// kernel build supplies its own backed by assembly and MMIO.
//
// # Thread Safety
//
// A CPU's TaskCollection is logically owned by its Runtime; wakes from any
// other CPU touch only the lock-free [WakerPage] bitmaps, never the slab.
// Exactly one Executor polls a given task at a time (spec invariant, backed
// by the page's borrowed bit); there is no shared scheduler lock across
// CPUs.
//
// # Usage
//
//	rt, err := coroexec.NewRuntime(0,
//		coroexec.WithExitWhenIdle(true), // test mode
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	rt.Spawn(coroexec.FutureFunc(func(cx *coroexec.Context) coroexec.PollState {
//		fmt.Println("hello from a task")
//		return coroexec.Ready
//	}))
//
//	if err := rt.RunUntilIdle(); err != nil {
//		log.Fatal(err)
//	}
package coroexec
