package coroexec

import "errors"

// Sentinel errors for the handful of non-fatal, expected outcomes the
// public surface can report. Check these with errors.Is, never string
// matching. Per spec.md §7, everything else (allocator failure, dropping a
// runtime) is fatal and panics rather than returning an error.
var (
	// ErrRuntimeTerminated is returned by Spawn and RunUntilIdle once a
	// Runtime has been retired by Terminate. Runtimes are process-lifetime
	// in production; this only surfaces in tests that explicitly terminate
	// one.
	ErrRuntimeTerminated = errors.New("coroexec: runtime terminated")

	// ErrReentrantRun is returned if RunUntilIdle is invoked on a Runtime
	// that is not idle: while another RunUntilIdle call on it is still
	// running (from any goroutine, including task or executor context).
	ErrReentrantRun = errors.New("coroexec: reentrant run_until_idle")

	// ErrStackSizeTooSmall is returned by resolveRuntimeOptions when
	// WithStackSize is given a size that cannot hold even one page.
	ErrStackSizeTooSmall = errors.New("coroexec: stack size too small")

	// ErrPriorityNotImplemented is the value SpawnAtPriority panics with
	// for any priority but DEFAULT_PRIORITY. SPEC_FULL.md's
	// Open Question resolution bakes in the single-priority assumption and
	// rejects nonzero levels rather than implementing strict priority scan.
	ErrPriorityNotImplemented = errors.New("coroexec: only DEFAULT_PRIORITY is implemented")
)
