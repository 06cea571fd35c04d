// Package wye implements a two-source merge combinator: a Program
// describes how to interleave a left and a right stream into one output
// stream, and Wye is the engine that runs a Program against two live
// Stream values concurrently. Every other two-source combinator — plain
// merge, lockstep zip, interrupt-by-signal — is just a different Program
// fed to the same engine.
package wye

import "github.com/corewye/pipeline/cause"

// DeliveryKind discriminates a Delivery's variant.
type DeliveryKind int

const (
	// ReceiveL carries one element from the left side.
	ReceiveL DeliveryKind = iota
	// ReceiveR carries one element from the right side.
	ReceiveR
	// HaltLeft reports that the left side has terminated.
	HaltLeft
	// HaltRight reports that the right side has terminated.
	HaltRight
)

// Delivery is what a Program's AwaitL/AwaitR/AwaitBoth continuation
// receives: one element from a side, or notice that a side halted. Built
// only via the constructors below.
type Delivery[L, R any] struct {
	kind  DeliveryKind
	left  L
	right R
	cause cause.Cause
}

// Kind reports which variant this delivery is.
func (d Delivery[L, R]) Kind() DeliveryKind { return d.kind }

// Left returns the delivered element. Valid only when Kind() == ReceiveL.
func (d Delivery[L, R]) Left() L { return d.left }

// Right returns the delivered element. Valid only when Kind() == ReceiveR.
func (d Delivery[L, R]) Right() R { return d.right }

// Cause returns the terminal cause of the side that halted. Valid only
// when Kind() is HaltLeft or HaltRight.
func (d Delivery[L, R]) Cause() cause.Cause { return d.cause }

// OfLeft builds a ReceiveL delivery.
func OfLeft[L, R any](l L) Delivery[L, R] { return Delivery[L, R]{kind: ReceiveL, left: l} }

// OfRight builds a ReceiveR delivery.
func OfRight[L, R any](r R) Delivery[L, R] { return Delivery[L, R]{kind: ReceiveR, right: r} }

// OfHaltLeft builds a HaltLeft delivery.
func OfHaltLeft[L, R any](c cause.Cause) Delivery[L, R] {
	return Delivery[L, R]{kind: HaltLeft, cause: c}
}

// OfHaltRight builds a HaltRight delivery.
func OfHaltRight[L, R any](c cause.Cause) Delivery[L, R] {
	return Delivery[L, R]{kind: HaltRight, cause: c}
}
