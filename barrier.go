package pipeline

import (
	"context"

	"github.com/corewye/pipeline/cause"
	"github.com/corewye/pipeline/strategy"
	"github.com/corewye/pipeline/telemetry"
	"github.com/corewye/pipeline/xstream"
)

// BarrierConfig configures how many upstream branches a BarrierStage waits
// for before it collapses their Done markers into a single one.
type BarrierConfig struct {
	// UpstreamCount is the number of Done events to wait for.
	UpstreamCount int
}

// BarrierStage forwards every non-Done event from its (already merged)
// input and collapses UpstreamCount Done events into exactly one. Once
// that count is reached it emits the single Done and halts with End,
// cutting off the rest of its input; an error event is forwarded and then
// halts the stage with that error. It is
// deliberately not rewritten in terms of WYE/NJOIN: a barrier gates on a
// count of upstream completions, not on merge semantics, so it runs as a
// plain sequential transform over whatever single stream already merged
// the upstream branches (typically a FanOutStage or a graph node with
// several incoming edges).
type BarrierStage struct {
	name   string
	config BarrierConfig
	logger telemetry.Logger
}

func NewBarrierStage(name string, config BarrierConfig, logger telemetry.Logger) *BarrierStage {
	return &BarrierStage{name: name, config: config, logger: logger.WithModule("barrier")}
}

func (bs *BarrierStage) Name() string { return bs.name }

func (bs *BarrierStage) InputKinds() []EventKind  { return []EventKind{EventKindWildcard} }
func (bs *BarrierStage) OutputKinds() []EventKind { return []EventKind{EventKindWildcard} }

func (bs *BarrierStage) Run(ctx context.Context, input xstream.Stream[Event], strat strategy.Strategy) xstream.Stream[Event] {
	return barrierStep(bs.config, bs.logger, input, 0)
}

func barrierStep(cfg BarrierConfig, logger telemetry.Logger, input xstream.Stream[Event], doneCount int) xstream.Stream[Event] {
	return func() xstream.Step[Event] {
		step := input.Step()
		if step.Kind() == xstream.KindHalt {
			return xstream.HaltStep[Event](step.Cause())
		}

		forward := make([]Event, 0, len(step.Chunk()))
		for _, ev := range step.Chunk() {
			switch {
			case ev.IsError():
				forward = append(forward, ev)
				logger.Error("upstream branch failed", telemetry.Err(ev.Err()))
				tail := step.Next
				return xstream.EmitStep(forward, func(cause.Cause) xstream.Stream[Event] {
					return func() xstream.Step[Event] {
						drainToKill(tail(cause.OfKill()))
						return xstream.HaltStep[Event](cause.OfError(ev.Err()))
					}
				})
			case ev.IsDone():
				doneCount++
			default:
				forward = append(forward, ev)
			}
		}

		if doneCount >= cfg.UpstreamCount {
			forward = append(forward, NewDoneEvent())
			tail := step.Next
			logger.Debug("barrier satisfied", telemetry.Int("upstream_count", cfg.UpstreamCount))
			return xstream.EmitStep(forward, func(cause.Cause) xstream.Stream[Event] {
				return func() xstream.Step[Event] {
					drainToKill(tail(cause.OfKill()))
					return xstream.HaltStep[Event](cause.OfEnd())
				}
			})
		}

		next := step.Next
		if len(forward) == 0 {
			return barrierStep(cfg, logger, next(cause.OfEnd()), doneCount)()
		}
		return xstream.EmitStep(forward, func(c cause.Cause) xstream.Stream[Event] {
			return barrierStep(cfg, logger, next(c), doneCount)
		})
	}
}

func drainToKill(s xstream.Stream[Event]) {
	for {
		step := s.Step()
		if step.Kind() == xstream.KindHalt {
			return
		}
		s = step.Next(cause.OfKill())
	}
}
