package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/corewye/pipeline/cause"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueDequeueFIFO(t *testing.T) {
	q := NewBounded[int](0)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, 1))
	require.NoError(t, q.Enqueue(ctx, 2))
	require.NoError(t, q.Enqueue(ctx, 3))

	for _, want := range []int{1, 2, 3} {
		v, ok, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, v)
	}
}

func TestEnqueueBlocksWhenFull(t *testing.T) {
	q := NewBounded[int](1)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, 1))

	blocked := make(chan struct{})
	go func() {
		close(blocked)
		_ = q.Enqueue(ctx, 2)
	}()
	<-blocked
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, q.Len())

	v, ok, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestDequeueBlocksUntilEnqueue(t *testing.T) {
	q := NewBounded[int](0)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	var got int
	go func() {
		defer wg.Done()
		v, ok, err := q.Dequeue(ctx)
		if err == nil && ok {
			got = v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, 42))
	wg.Wait()
	assert.Equal(t, 42, got)
}

func TestFailWithCauseEndDrainsThenStops(t *testing.T) {
	q := NewBounded[int](0)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, 1))
	q.FailWithCause(cause.OfEnd())

	v, ok, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok, err = q.Dequeue(ctx)
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestFailWithCauseKill(t *testing.T) {
	q := NewBounded[int](0)
	q.FailWithCause(cause.OfKill())

	_, ok, err := q.Dequeue(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrKilled)
}

func TestFailWithCauseError(t *testing.T) {
	q := NewBounded[int](0)
	boom := errors.New("boom")
	q.FailWithCause(cause.OfError(boom))

	_, ok, err := q.Dequeue(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)
}

func TestEnqueueAfterFailReturnsError(t *testing.T) {
	q := NewBounded[int](0)
	q.FailWithCause(cause.OfKill())

	err := q.Enqueue(context.Background(), 1)
	assert.ErrorIs(t, err, ErrKilled)
}

// A single FailWithCause call must wake every blocked Enqueue, not just
// one: several njoin inners can be parked on the same full queue at once.
func TestFailWithCauseWakesEveryBlockedEnqueuer(t *testing.T) {
	q := NewBounded[int](1)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, 1))

	const waiters = 5
	var wg sync.WaitGroup
	errs := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- q.Enqueue(ctx, i)
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	q.FailWithCause(cause.OfKill())

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("not every blocked Enqueue woke up after FailWithCause")
	}

	close(errs)
	for err := range errs {
		assert.ErrorIs(t, err, ErrKilled)
	}
}

func TestEnqueueRespectsContextCancellation(t *testing.T) {
	q := NewBounded[int](1)
	require.NoError(t, q.Enqueue(context.Background(), 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := q.Enqueue(ctx, 2)
	assert.ErrorIs(t, err, context.Canceled)
}

// For capacity q > 0, the number of buffered, undelivered elements never
// exceeds q.
func TestPropertyBoundedQueueNeverExceedsCapacity(t *testing.T) {
	capacity := 3
	q := NewBounded[int](capacity)
	ctx := context.Background()

	var wg sync.WaitGroup
	observed := make(chan int, 100)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = q.Enqueue(ctx, i)
			observed <- q.Len()
		}(i)
	}

	go func() {
		for i := 0; i < 20; i++ {
			_, _, _ = q.Dequeue(ctx)
		}
	}()

	wg.Wait()
	close(observed)
	for n := range observed {
		assert.LessOrEqual(t, n, capacity)
	}
}
