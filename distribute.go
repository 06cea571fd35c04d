package pipeline

import (
	"context"
	"errors"

	"github.com/corewye/pipeline/cause"
	"github.com/corewye/pipeline/queue"
	"github.com/corewye/pipeline/strategy"
	"github.com/corewye/pipeline/xstream"
)

// tee splits src into one Stream per predicate in keep, each consumer
// seeing only the elements its own predicate accepts. A single goroutine
// drains src exactly once and fans each element out to every queue whose
// predicate matches; every returned Stream must be pulled or its queue's
// capacity (maxQueued, 0 for unbounded) will eventually back-pressure the
// drain goroutine. Used wherever one stage's output feeds more than one
// downstream consumer: a graph node with several outgoing edges, or
// FanOutStage's distribution to its branches.
func tee(ctx context.Context, strat strategy.Strategy, src xstream.Stream[Event], maxQueued int, keep []func(Event) bool) []xstream.Stream[Event] {
	queues := make([]*queue.Bounded[Event], len(keep))
	for i := range queues {
		queues[i] = queue.NewBounded[Event](maxQueued)
	}

	strat.Go(func() {
		drainTee(ctx, src, queues, keep)
	}, func(c cause.Cause) {
		for _, q := range queues {
			q.FailWithCause(c)
		}
	})

	streams := make([]xstream.Stream[Event], len(queues))
	for i, q := range queues {
		streams[i] = queueStream(q)
	}
	return streams
}

func drainTee(ctx context.Context, src xstream.Stream[Event], queues []*queue.Bounded[Event], keep []func(Event) bool) {
	final := cause.OfEnd()
loop:
	for {
		step := src.Step()
		if step.Kind() == xstream.KindHalt {
			final = step.Cause()
			break
		}
		for _, ev := range step.Chunk() {
			for i, matches := range keep {
				if !matches(ev) {
					continue
				}
				if err := queues[i].Enqueue(ctx, ev); err != nil {
					final = cause.OfKill()
					break loop
				}
			}
		}
		src = step.Next(cause.OfEnd())
	}
	for _, q := range queues {
		q.FailWithCause(final)
	}
}

// queueStream adapts a queue.Bounded into a Stream, one element per chunk.
func queueStream(q *queue.Bounded[Event]) xstream.Stream[Event] {
	return func() xstream.Step[Event] {
		v, ok, err := q.Dequeue(context.Background())
		if !ok {
			return xstream.HaltStep[Event](dequeueCause(err))
		}
		return xstream.EmitStep([]Event{v}, func(c cause.Cause) xstream.Stream[Event] {
			if !c.IsEnd() {
				return xstream.Halt[Event](c)
			}
			return queueStream(q)
		})
	}
}

func dequeueCause(err error) cause.Cause {
	switch {
	case err == nil:
		return cause.OfEnd()
	case errors.Is(err, queue.ErrKilled):
		return cause.OfKill()
	default:
		return cause.OfError(err)
	}
}
