package wye

import "github.com/corewye/pipeline/cause"

// Merge returns a Program that interleaves two same-typed sources in
// whichever order they deliver, alternating fairness between rounds. Once
// one side ends cleanly the program drains the other to completion; once
// either side fails, the program halts immediately with that cause. This
// is the plain fan-in used when two sources should just be interleaved.
func Merge[A any]() Program[A, A, A] { return mergeAwait[A]() }

func mergeAwait[A any]() Program[A, A, A] {
	return AwaitBoth[A, A, A](func(d Delivery[A, A]) Program[A, A, A] {
		switch d.Kind() {
		case ReceiveL:
			l := d.Left()
			return Emit[A, A, A]([]A{l}, func(c cause.Cause) Program[A, A, A] {
				if !c.IsEnd() {
					return Halt[A, A, A](c)
				}
				return mergeAwait[A]()
			})
		case ReceiveR:
			r := d.Right()
			return Emit[A, A, A]([]A{r}, func(c cause.Cause) Program[A, A, A] {
				if !c.IsEnd() {
					return Halt[A, A, A](c)
				}
				return mergeAwait[A]()
			})
		case HaltLeft:
			if d.Cause().IsError() {
				return Halt[A, A, A](d.Cause())
			}
			return mergeDrainRight[A](d.Cause())
		default: // HaltRight
			if d.Cause().IsError() {
				return Halt[A, A, A](d.Cause())
			}
			return mergeDrainLeft[A](d.Cause())
		}
	})
}

func mergeDrainRight[A any](leftCause cause.Cause) Program[A, A, A] {
	return AwaitR[A, A, A](func(d Delivery[A, A]) Program[A, A, A] {
		switch d.Kind() {
		case ReceiveR:
			r := d.Right()
			return Emit[A, A, A]([]A{r}, func(c cause.Cause) Program[A, A, A] {
				if !c.IsEnd() {
					return Halt[A, A, A](c)
				}
				return mergeDrainRight[A](leftCause)
			})
		default: // HaltRight
			return Halt[A, A, A](cause.CausedBy(leftCause, d.Cause()))
		}
	})
}

func mergeDrainLeft[A any](rightCause cause.Cause) Program[A, A, A] {
	return AwaitL[A, A, A](func(d Delivery[A, A]) Program[A, A, A] {
		switch d.Kind() {
		case ReceiveL:
			l := d.Left()
			return Emit[A, A, A]([]A{l}, func(c cause.Cause) Program[A, A, A] {
				if !c.IsEnd() {
					return Halt[A, A, A](c)
				}
				return mergeDrainLeft[A](rightCause)
			})
		default: // HaltLeft
			return Halt[A, A, A](cause.CausedBy(d.Cause(), rightCause))
		}
	})
}

// Pair is one lockstep element produced by Yip.
type Pair[L, R any] struct {
	Left  L
	Right R
}

// Yip returns a Program that pairs elements from both sides lockstep: it
// waits for a left element, then a right element, emits the pair, and
// repeats. It halts the moment either side halts, with that side's cause
// — there is no draining tail, since a lockstep pairing has nothing left
// to pair once one side is gone.
func Yip[L, R any]() Program[L, R, Pair[L, R]] {
	return AwaitL[L, R, Pair[L, R]](func(d Delivery[L, R]) Program[L, R, Pair[L, R]] {
		switch d.Kind() {
		case ReceiveL:
			l := d.Left()
			return AwaitR[L, R, Pair[L, R]](func(d2 Delivery[L, R]) Program[L, R, Pair[L, R]] {
				switch d2.Kind() {
				case ReceiveR:
					r := d2.Right()
					return Emit[L, R, Pair[L, R]]([]Pair[L, R]{{Left: l, Right: r}}, func(c cause.Cause) Program[L, R, Pair[L, R]] {
						if !c.IsEnd() {
							return Halt[L, R, Pair[L, R]](c)
						}
						return Yip[L, R]()
					})
				default: // HaltRight
					return Halt[L, R, Pair[L, R]](d2.Cause())
				}
			})
		default: // HaltLeft
			return Halt[L, R, Pair[L, R]](d.Cause())
		}
	})
}

// Interrupt returns a Program that forwards every element of the data
// side R unchanged, until the control side delivers true, at which point
// it halts with End (killing the data side if it's still running). A
// control value of false is ignored. If either side halts, the program
// halts with that side's cause, so failing the control side also stops
// the data side.
func Interrupt[R any]() Program[bool, R, R] {
	return AwaitBoth[bool, R, R](func(d Delivery[bool, R]) Program[bool, R, R] {
		switch d.Kind() {
		case ReceiveL:
			if d.Left() {
				return Halt[bool, R, R](cause.OfEnd())
			}
			return Interrupt[R]()
		case ReceiveR:
			r := d.Right()
			return Emit[bool, R, R]([]R{r}, func(c cause.Cause) Program[bool, R, R] {
				if !c.IsEnd() {
					return Halt[bool, R, R](c)
				}
				return Interrupt[R]()
			})
		default: // HaltLeft or HaltRight
			return Halt[bool, R, R](d.Cause())
		}
	})
}

func interruptDrain[R any]() Program[bool, R, R] {
	return AwaitR[bool, R, R](func(d Delivery[bool, R]) Program[bool, R, R] {
		switch d.Kind() {
		case ReceiveR:
			r := d.Right()
			return Emit[bool, R, R]([]R{r}, func(c cause.Cause) Program[bool, R, R] {
				if !c.IsEnd() {
					return Halt[bool, R, R](c)
				}
				return interruptDrain[R]()
			})
		default: // HaltRight
			return Halt[bool, R, R](d.Cause())
		}
	})
}
