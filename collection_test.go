package coroexec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type noopFuture struct{}

func (noopFuture) Poll(cx *Context) PollState { return Pending }

func TestTaskCollection_Add_IncrementsTaskCount(t *testing.T) {
	tc := NewTaskCollection()
	require.Zero(t, tc.TaskCount())

	tc.Add(noopFuture{})
	require.EqualValues(t, 1, tc.TaskCount())

	tc.Add(noopFuture{})
	require.EqualValues(t, 2, tc.TaskCount())
}

func TestTaskCollection_TakeNext_ReturnsFreshlySpawnedTask(t *testing.T) {
	tc := NewTaskCollection()
	key := tc.Add(noopFuture{})

	gotKey, task, waker, ok := tc.TakeNext()
	require.True(t, ok)
	require.Equal(t, key, gotKey)
	require.NotNil(t, task)
	require.NotZero(t, task.id)

	// The borrowed bit is now set; WakeByRef on the live waker must not
	// re-surface the same slot until the borrow is released.
	waker.WakeByRef()
	_, _, _, ok = tc.TakeNext()
	require.False(t, ok, "borrowed slot must not be re-taken until released")

	tc.ReleaseBorrow(gotKey)
}

func TestTaskCollection_TakeNext_EmptyCollectionReturnsFalse(t *testing.T) {
	tc := NewTaskCollection()
	_, _, _, ok := tc.TakeNext()
	require.False(t, ok)
}

func TestTaskCollection_TakeNext_ReapsDroppedAfterCompletion(t *testing.T) {
	tc := NewTaskCollection()
	key := tc.Add(noopFuture{})

	_, task, waker, ok := tc.TakeNext()
	require.True(t, ok)
	require.NotNil(t, task)

	waker.dropByRef()
	tc.ReleaseBorrow(key)

	// One full sweep: nothing runnable, but the dropped slot is reaped,
	// bringing task_count back to zero (spec.md §8 property 4).
	_, _, _, ok = tc.TakeNext()
	require.False(t, ok)
	require.Zero(t, tc.TaskCount())
}

// TestTaskCollection_GrowsAcrossMultiplePages covers spec.md §8 scenario S5:
// spawning 200 futures must allocate at least 4 pages (200/64 > 3) and every
// one must still be individually reachable via TakeNext.
func TestTaskCollection_GrowsAcrossMultiplePages(t *testing.T) {
	tc := NewTaskCollection()
	const n = 200

	seen := make(map[TaskKey]bool, n)
	for i := 0; i < n; i++ {
		key := tc.Add(noopFuture{})
		require.False(t, seen[key], "keys must be unique even across page growth")
		seen[key] = true
	}
	require.EqualValues(t, n, tc.TaskCount())

	slab := tc.slabs[DefaultPriority]
	require.GreaterOrEqual(t, slab.pageCount(), uint64(4))

	taken := 0
	for {
		key, _, waker, ok := tc.TakeNext()
		if !ok {
			break
		}
		taken++
		waker.dropByRef()
		tc.ReleaseBorrow(key)
	}
	require.Equal(t, n, taken)
}

func TestTaskCollection_ReleasedSlotIsReusedByLaterAdd(t *testing.T) {
	tc := NewTaskCollection()
	key1 := tc.Add(noopFuture{})

	_, _, waker, ok := tc.TakeNext()
	require.True(t, ok)
	waker.dropByRef()
	tc.ReleaseBorrow(key1)

	// drain the reap
	_, _, _, ok = tc.TakeNext()
	require.False(t, ok)
	require.Zero(t, tc.TaskCount())

	key2 := tc.Add(noopFuture{})
	_, task2, _, ok := tc.TakeNext()
	require.True(t, ok)
	require.Equal(t, key2.Slot(), key1.Slot())
	require.Equal(t, key2.Page(), key1.Page())
	require.NotNil(t, task2)
}

func TestTaskCollection_PeekID(t *testing.T) {
	tc := NewTaskCollection()
	key := tc.Add(noopFuture{})
	require.NotZero(t, tc.PeekID(key))
}
