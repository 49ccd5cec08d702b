package coroexec

import (
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.After(timeout)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for condition")
		default:
			runtime.Gosched()
		}
	}
}

// readyFuture immediately completes on its first poll.
type readyFuture struct {
	polled atomic.Int32
}

func (f *readyFuture) Poll(cx *Context) PollState {
	f.polled.Add(1)
	return Ready
}

// TestRuntime_S1_HappyPath: spawn a future that returns Ready immediately;
// run_until_idle in test mode returns once task_count reaches zero.
func TestRuntime_S1_HappyPath(t *testing.T) {
	rt, err := NewRuntime(0, WithExitWhenIdle(true))
	require.NoError(t, err)

	f := &readyFuture{}
	rt.Spawn(f)

	require.NoError(t, rt.RunUntilIdle())
	require.EqualValues(t, 1, f.polled.Load())
	require.Zero(t, rt.TaskCount())
}

// yieldOnceFuture requests its own wake and returns Pending exactly once,
// then completes on the second poll — the spec's sched_yield pattern.
type yieldOnceFuture struct {
	polls   atomic.Int32
	yielded atomic.Bool
}

func (f *yieldOnceFuture) Poll(cx *Context) PollState {
	f.polls.Add(1)
	if f.yielded.CompareAndSwap(false, true) {
		cx.Waker().WakeByRef()
		return Pending
	}
	return Ready
}

// TestRuntime_S2_Yield: a future that yields once via its own waker must be
// polled exactly twice before completing.
func TestRuntime_S2_Yield(t *testing.T) {
	rt, err := NewRuntime(0, WithExitWhenIdle(true))
	require.NoError(t, err)

	f := &yieldOnceFuture{}
	rt.Spawn(f)

	require.NoError(t, rt.RunUntilIdle())
	require.EqualValues(t, 2, f.polls.Load())
	require.Zero(t, rt.TaskCount())
}

// contextYieldFuture exercises Context.Yield (the explicit adaptation of the
// ambient sched_yield): it calls cx.Yield() once, re-arming its own wake
// first so it is eligible to run again, then completes.
type contextYieldFuture struct {
	polls   atomic.Int32
	yielded atomic.Bool
}

func (f *contextYieldFuture) Poll(cx *Context) PollState {
	f.polls.Add(1)
	if f.yielded.CompareAndSwap(false, true) {
		cx.Waker().WakeByRef()
		cx.Yield()
		return Pending
	}
	return Ready
}

func TestRuntime_ContextYield_ResumesAndCompletes(t *testing.T) {
	rt, err := NewRuntime(0, WithExitWhenIdle(true))
	require.NoError(t, err)

	f := &contextYieldFuture{}
	rt.Spawn(f)

	require.NoError(t, rt.RunUntilIdle())
	require.EqualValues(t, 2, f.polls.Load())
}

// blockingFuture signals entered exactly once it begins its first Poll, then
// blocks until release is closed, letting a test deterministically land
// handle_timeout while it is mid-poll.
type blockingFuture struct {
	entered  chan struct{}
	release  chan struct{}
	enteredOnce atomic.Bool
	polls    atomic.Int32
}

func newBlockingFuture() *blockingFuture {
	return &blockingFuture{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (f *blockingFuture) Poll(cx *Context) PollState {
	f.polls.Add(1)
	if f.enteredOnce.CompareAndSwap(false, true) {
		close(f.entered)
	}
	<-f.release
	return Ready
}

// TestRuntime_S3_Timeout: firing handle_timeout while the strong executor is
// mid-poll demotes it to weak, installs a fresh strong executor, and the
// fresh executor dispatches a future spawned during the timeout window.
func TestRuntime_S3_Timeout(t *testing.T) {
	rt, err := NewRuntime(0, WithExitWhenIdle(true), WithMetrics(true))
	require.NoError(t, err)

	blocked := newBlockingFuture()
	rt.Spawn(blocked)

	runDone := make(chan error, 1)
	go func() { runDone <- rt.RunUntilIdle() }()

	select {
	case <-blocked.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for blocked future to start polling")
	}

	demotedExecutor := rt.CurrentExecutor()
	require.True(t, rt.HandleTimeout(), "handle_timeout must observe a currently-polling executor")
	require.Equal(t, ExecWeak, ExecState(demotedExecutor.state.Load()), "handle_timeout must demote the previously-current executor to WEAK")
	require.True(t, rt.CurrentExecutor() != demotedExecutor, "a fresh strong executor must replace the demoted one")

	second := &readyFuture{}
	rt.Spawn(second)

	waitFor(t, 5*time.Second, func() bool { return second.polled.Load() > 0 })

	close(blocked.release)

	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for run_until_idle to return")
	}

	require.EqualValues(t, 1, rt.metrics.Preemptions.Load())
}

// TestRuntime_S4_DropRace: a completed task's waker clone must be a silent
// no-op for WakeByRef, and must never trigger a re-poll.
func TestRuntime_S4_DropRace(t *testing.T) {
	rt, err := NewRuntime(0, WithExitWhenIdle(true))
	require.NoError(t, err)

	var clone Waker
	f := FutureFunc(func(cx *Context) PollState {
		clone = cx.Waker()
		return Ready
	})
	rt.Spawn(f)

	require.NoError(t, rt.RunUntilIdle())

	// the task's slot has already been reaped; WakeByRef on the stale clone
	// must not panic and must not resurrect the slot.
	require.NotPanics(t, func() { clone.WakeByRef() })
	require.Zero(t, rt.TaskCount())
}

// TestRuntime_S5_Growth: 200 spawned futures all complete, and the
// underlying collection grew to at least 4 WakerPages to hold them.
func TestRuntime_S5_Growth(t *testing.T) {
	rt, err := NewRuntime(0, WithExitWhenIdle(true))
	require.NoError(t, err)

	const n = 200
	futures := make([]*readyFuture, n)
	for i := range futures {
		futures[i] = &readyFuture{}
		rt.Spawn(futures[i])
	}

	require.NoError(t, rt.RunUntilIdle())

	for _, f := range futures {
		require.EqualValues(t, 1, f.polled.Load())
	}
	require.Zero(t, rt.TaskCount())
	require.GreaterOrEqual(t, rt.collection.slabs[DefaultPriority].pageCount(), uint64(4))
}

// TestRuntime_S6_WeakReaping: a demoted executor eventually transitions to
// KILLED once its in-flight poll returns, and a later scavenge prunes it
// from the weak list.
func TestRuntime_S6_WeakReaping(t *testing.T) {
	rt, err := NewRuntime(0, WithExitWhenIdle(true))
	require.NoError(t, err)

	blocked := newBlockingFuture()
	rt.Spawn(blocked)

	runDone := make(chan error, 1)
	go func() { runDone <- rt.RunUntilIdle() }()

	select {
	case <-blocked.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for blocked future to start polling")
	}

	require.True(t, rt.HandleTimeout())
	require.EqualValues(t, 1, rt.weakList.Len())

	close(blocked.release)

	waitFor(t, 5*time.Second, func() bool { return rt.weakList.Len() == 0 })

	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for run_until_idle to return")
	}
}

func TestRuntime_SpawnAtPriority_RejectsNonDefault(t *testing.T) {
	rt, err := NewRuntime(0, WithExitWhenIdle(true))
	require.NoError(t, err)

	require.PanicsWithValue(t, ErrPriorityNotImplemented, func() {
		rt.SpawnAtPriority(1, &readyFuture{})
	})
}

func TestRuntime_Terminate_RejectsFurtherSpawnAndRun(t *testing.T) {
	rt, err := NewRuntime(0, WithExitWhenIdle(true))
	require.NoError(t, err)

	require.NoError(t, rt.RunUntilIdle())
	require.True(t, rt.Terminate())
	require.Equal(t, RuntimeTerminated, RuntimeState(rt.state.Load()))

	_, err = rt.Spawn(&readyFuture{})
	require.ErrorIs(t, err, ErrRuntimeTerminated)

	require.ErrorIs(t, rt.RunUntilIdle(), ErrRuntimeTerminated)
}

func TestRuntime_Terminate_FalseWhenNotIdle(t *testing.T) {
	rt, err := NewRuntime(0, WithExitWhenIdle(true))
	require.NoError(t, err)

	blocked := newBlockingFuture()
	rt.Spawn(blocked)

	runDone := make(chan error, 1)
	go func() { runDone <- rt.RunUntilIdle() }()

	select {
	case <-blocked.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for blocked future to start polling")
	}

	require.False(t, rt.Terminate(), "terminate must not succeed while a dispatch is in progress")

	close(blocked.release)
	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for run_until_idle to return")
	}

	require.True(t, rt.Terminate())
}

// TestRuntime_Idle_EntersRuntimeSleepingState covers the production
// (non-exit-when-idle) dispatch loop's RuntimeSleeping transition: parked in
// wait_for_interrupt with no runnable task and no weak executors, and woken
// back to RuntimeDispatching by a Spawn's Kick.
func TestRuntime_Idle_EntersRuntimeSleepingState(t *testing.T) {
	rt, err := NewRuntime(0)
	require.NoError(t, err)

	go rt.RunUntilIdle()

	waitFor(t, 5*time.Second, func() bool {
		return RuntimeState(rt.state.Load()) == RuntimeSleeping
	})

	f := &readyFuture{}
	_, err = rt.Spawn(f)
	require.NoError(t, err)

	waitFor(t, 5*time.Second, func() bool { return f.polled.Load() > 0 })
}

func TestRuntime_ReentrantRun_IsRejected(t *testing.T) {
	rt, err := NewRuntime(0, WithExitWhenIdle(true))
	require.NoError(t, err)

	blocked := newBlockingFuture()
	rt.Spawn(blocked)

	runDone := make(chan error, 1)
	go func() { runDone <- rt.RunUntilIdle() }()

	select {
	case <-blocked.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for blocked future to start polling")
	}

	require.ErrorIs(t, rt.RunUntilIdle(), ErrReentrantRun)

	close(blocked.release)
	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for run_until_idle to return")
	}
}
