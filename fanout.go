package pipeline

import (
	"context"

	"github.com/corewye/pipeline/cause"
	"github.com/corewye/pipeline/strategy"
	"github.com/corewye/pipeline/telemetry"
	"github.com/corewye/pipeline/xstream"
	"github.com/corewye/pipeline/xstream/njoin"
)

// ErrorPolicy governs how a FanOutStage reacts when one of its branches
// fails.
type ErrorPolicy string

const (
	// ErrorPolicyCancelAll kills every other branch as soon as one fails,
	// and the fan-out itself halts with that branch's error.
	ErrorPolicyCancelAll ErrorPolicy = "cancel-all"
	// ErrorPolicyIsolated lets the other branches keep running; the failed
	// branch's error is forwarded downstream as an ordinary error Event
	// instead of terminating the merge.
	ErrorPolicyIsolated ErrorPolicy = "isolated"
)

// BranchConfig is a single fan-out branch.
type BranchConfig struct {
	Stage Stage
	// EventFilter selects which kinds are forwarded to this branch. Empty
	// means forward everything.
	EventFilter []EventKind
}

// FanOutConfig configures a FanOutStage.
type FanOutConfig struct {
	ErrorPolicy ErrorPolicy
	Branches    []BranchConfig
	// MaxQueued bounds each branch's input buffer and the merged output
	// buffer (0 means unbounded).
	MaxQueued int
}

// FanOutStage broadcasts its (filtered) input to every configured branch
// and merges their outputs back into one stream via njoin.Run — the
// merge-back is a direct instance of the dynamic many-stream combinator
// this module exists to provide, with exactly as many inners as branches.
type FanOutStage struct {
	name   string
	config FanOutConfig
	logger telemetry.Logger
}

func NewFanOutStage(name string, config FanOutConfig, logger telemetry.Logger) *FanOutStage {
	return &FanOutStage{name: name, config: config, logger: logger.WithModule("fanout")}
}

func (fs *FanOutStage) Name() string { return fs.name }

func (fs *FanOutStage) InputKinds() []EventKind { return []EventKind{EventKindWildcard} }

func (fs *FanOutStage) OutputKinds() []EventKind {
	seen := make(map[EventKind]bool)
	var kinds []EventKind
	for _, b := range fs.config.Branches {
		for _, k := range b.Stage.OutputKinds() {
			if !seen[k] {
				seen[k] = true
				kinds = append(kinds, k)
			}
		}
	}
	return kinds
}

func (fs *FanOutStage) Run(ctx context.Context, input xstream.Stream[Event], strat strategy.Strategy) xstream.Stream[Event] {
	filters := make([]func(Event) bool, len(fs.config.Branches))
	for i, b := range fs.config.Branches {
		filter := b.EventFilter
		filters[i] = func(ev Event) bool { return shouldForward(filter, ev) }
	}
	branchInputs := tee(ctx, strat, input, fs.config.MaxQueued, filters)

	inners := make([]xstream.Stream[Event], len(fs.config.Branches))
	for i, b := range fs.config.Branches {
		out := b.Stage.Run(ctx, branchInputs[i], strat)
		if fs.config.ErrorPolicy == ErrorPolicyIsolated {
			out = isolate(out)
		}
		inners[i] = out
	}

	outer := xstream.FromSlice(inners, len(inners))
	return njoin.Run(njoin.Options{MaxQueued: fs.config.MaxQueued}, outer, strat, fs.logger)
}

func shouldForward(filter []EventKind, ev Event) bool {
	if len(filter) == 0 {
		return true
	}
	for _, k := range filter {
		if k == ev.Kind || k == EventKindWildcard {
			return true
		}
	}
	return false
}

// isolate converts a branch's Error halt into a forwarded error Event plus
// a graceful End, so njoin's fail-all-on-Error semantics never see it and
// the other branches keep running.
func isolate(s xstream.Stream[Event]) xstream.Stream[Event] {
	return func() xstream.Step[Event] {
		step := s.Step()
		if step.Kind() == xstream.KindHalt {
			if step.Cause().IsError() {
				return xstream.EmitStep([]Event{NewErrorEvent(step.Cause().Err())}, func(cause.Cause) xstream.Stream[Event] {
					return xstream.Halt[Event](cause.OfEnd())
				})
			}
			return step
		}
		return xstream.EmitStep(step.Chunk(), func(c cause.Cause) xstream.Stream[Event] {
			return isolate(step.Next(c))
		})
	}
}
