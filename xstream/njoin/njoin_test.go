package njoin_test

import (
	"errors"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/corewye/pipeline/cause"
	"github.com/corewye/pipeline/strategy"
	"github.com/corewye/pipeline/telemetry"
	"github.com/corewye/pipeline/xstream"
	"github.com/corewye/pipeline/xstream/njoin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strat() strategy.Strategy { return strategy.NewGoroutinePool() }

func outerOf[A any](inners ...xstream.Stream[A]) xstream.Stream[xstream.Stream[A]] {
	return xstream.FromSlice(inners, len(inners))
}

// countedInner wraps items in a Stream that bumps active by one the first
// time it's stepped and records the concurrency high-water mark in
// maxSeen, decrementing active again through its finalizer. Used to
// observe the maxOpen cap from outside the engine.
func countedInner(items []string, active, maxSeen *int32) xstream.Stream[string] {
	started := false
	base := xstream.FromSliceWithFinalizer(items, 1, func(cause.Cause) {
		atomic.AddInt32(active, -1)
	})
	return func() xstream.Step[string] {
		if !started {
			started = true
			for {
				n := atomic.AddInt32(active, 1)
				old := atomic.LoadInt32(maxSeen)
				if n <= old {
					break
				}
				if atomic.CompareAndSwapInt32(maxSeen, old, n) {
					break
				}
			}
		}
		return base()
	}
}

func TestThreeInnersBoundedByMaxOpen(t *testing.T) {
	var active, maxSeen int32
	inners := []xstream.Stream[string]{
		countedInner([]string{"a", "b", "c"}, &active, &maxSeen),
		countedInner([]string{"a", "b", "c"}, &active, &maxSeen),
		countedInner([]string{"a", "b", "c"}, &active, &maxSeen),
	}
	out := njoin.Run(njoin.Options{MaxOpen: 2, MaxQueued: 4}, outerOf(inners...), strat(), telemetry.Nop())

	got, c := xstream.Drain(out)

	require.True(t, c.IsEnd())
	require.Len(t, got, 9)
	sort.Strings(got)
	assert.Equal(t, []string{"a", "a", "a", "b", "b", "b", "c", "c", "c"}, got)
	assert.LessOrEqual(t, atomic.LoadInt32(&maxSeen), int32(2))
}

func TestInnerErrorKillsHealthySiblings(t *testing.T) {
	boom := errors.New("boom")
	failing := xstream.ErrAfter([]string{"x"}, 1, 0, boom)

	var healthyFinalized int32
	unblockA := make(chan struct{})
	unblockB := make(chan struct{})
	healthyA := blockingStringStream(unblockA, &healthyFinalized)
	healthyB := blockingStringStream(unblockB, &healthyFinalized)

	out := njoin.Run(njoin.Options{}, outerOf(failing, healthyA, healthyB), strat(), telemetry.Nop())

	got, c := xstream.Drain(out)

	require.True(t, c.IsError())
	assert.ErrorIs(t, c.Err(), boom)
	assert.Equal(t, []string{"x"}, got)

	close(unblockA)
	close(unblockB)
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&healthyFinalized) == 2
	}, time.Second, time.Millisecond, "both healthy inners should have been killed")
}

func blockingStringStream(unblock <-chan struct{}, finalized *int32) xstream.Stream[string] {
	return func() xstream.Step[string] {
		<-unblock
		return xstream.EmitStep([]string{"y"}, func(c cause.Cause) xstream.Stream[string] {
			if !c.IsEnd() {
				atomic.AddInt32(finalized, 1)
				return xstream.Halt[string](c)
			}
			return blockingStringStream(unblock, finalized)
		})
	}
}

func TestConsumerCancelKillsAllInnersAndOuter(t *testing.T) {
	var finalizedA, finalizedB, outerFinalized int32
	innerA := xstream.FromSliceWithFinalizer([]string{"1", "2", "3", "4", "5"}, 1, func(cause.Cause) { atomic.AddInt32(&finalizedA, 1) })
	innerB := xstream.FromSliceWithFinalizer([]string{"6", "7", "8", "9", "10"}, 1, func(cause.Cause) { atomic.AddInt32(&finalizedB, 1) })
	source := xstream.FromSliceWithFinalizer([]xstream.Stream[string]{innerA, innerB}, 2, func(cause.Cause) { atomic.AddInt32(&outerFinalized, 1) })

	out := njoin.Run(njoin.Options{MaxQueued: 10}, source, strat(), telemetry.Nop())

	received := 0
	step := out.Step()
	for received < 3 {
		require.Equal(t, xstream.KindEmit, step.Kind())
		received += len(step.Chunk())
		step = step.Next(cause.OfEnd()).Step()
	}
	final := step.Next(cause.OfKill())

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&finalizedA) == 1 &&
			atomic.LoadInt32(&finalizedB) == 1 &&
			atomic.LoadInt32(&outerFinalized) == 1
	}, time.Second, time.Millisecond)

	haltStep := final.Step()
	require.Equal(t, xstream.KindHalt, haltStep.Kind())
	assert.True(t, haltStep.Cause().IsKill())
	assert.Equal(t, 3, received)
}

// TestInvariantFinalizersRunExactlyOnce verifies that NJOIN's outer and
// every inner each run their finalizer exactly once regardless of how the
// merge terminates.
func TestInvariantFinalizersRunExactlyOnce(t *testing.T) {
	var finalizedA, finalizedB, outerFinalized int32
	innerA := xstream.FromSliceWithFinalizer([]string{"a"}, 1, func(cause.Cause) { atomic.AddInt32(&finalizedA, 1) })
	innerB := xstream.FromSliceWithFinalizer([]string{"b"}, 1, func(cause.Cause) { atomic.AddInt32(&finalizedB, 1) })
	source := xstream.FromSliceWithFinalizer([]xstream.Stream[string]{innerA, innerB}, 2, func(cause.Cause) { atomic.AddInt32(&outerFinalized, 1) })

	out := njoin.Run(njoin.Options{}, source, strat(), telemetry.Nop())
	_, c := xstream.Drain(out)

	require.True(t, c.IsEnd())
	assert.Equal(t, int32(1), atomic.LoadInt32(&finalizedA))
	assert.Equal(t, int32(1), atomic.LoadInt32(&finalizedB))
	assert.Equal(t, int32(1), atomic.LoadInt32(&outerFinalized))
}

// TestInvariantOutputIsUnionOfInnerMultisets verifies NJOIN's output is
// exactly the multiset union of every inner's elements, independent of
// arrival order.
func TestInvariantOutputIsUnionOfInnerMultisets(t *testing.T) {
	inners := []xstream.Stream[string]{
		xstream.FromSlice([]string{"a", "b"}, 1),
		xstream.FromSlice([]string{"c", "d", "e"}, 1),
		xstream.FromSlice([]string{"f"}, 1),
	}
	out := njoin.Run(njoin.Options{MaxOpen: 2}, outerOf(inners...), strat(), telemetry.Nop())

	got, c := xstream.Drain(out)
	require.True(t, c.IsEnd())
	sort.Strings(got)
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, got)
}

// TestQueueBackpressureDoesNotDeadlockOrDropElements exercises the queue
// bound end to end: a small maxQueued plus a deliberately slow consumer
// forces producers to suspend inside Enqueue repeatedly. The bound itself
// (never more than maxQueued buffered) is proven directly against
// queue.Bounded in queue_test.go's property test; this test proves NJOIN
// composes with that bound without deadlocking or losing elements.
func TestQueueBackpressureDoesNotDeadlockOrDropElements(t *testing.T) {
	inners := make([]xstream.Stream[string], 5)
	for i := range inners {
		inners[i] = xstream.FromSlice([]string{"x", "x", "x", "x"}, 1)
	}
	out := njoin.Run(njoin.Options{MaxOpen: 3, MaxQueued: 2}, outerOf(inners...), strat(), telemetry.Nop())

	count := 0
	step := out.Step()
	for step.Kind() == xstream.KindEmit {
		count += len(step.Chunk())
		time.Sleep(time.Millisecond) // deliberately slow consumer
		step = step.Next(cause.OfEnd()).Step()
	}
	require.True(t, step.Cause().IsEnd())
	assert.Equal(t, 20, count)
}
