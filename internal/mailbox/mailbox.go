// Package mailbox implements the serialized single-consumer message queue
// shared by the wye and njoin engines: arbitrarily many producers post
// handlers, but handlers run one at a time, in arrival order, on a single
// logical goroutine. This is what lets both engines mutate their state
// without locks — every mutation happens inside a handler, and handlers
// never overlap.
package mailbox

import "sync"

// Mailbox serializes arbitrary handler functions: Post never blocks the
// caller, and Run drains posted handlers one at a time on whichever
// goroutine calls it.
type Mailbox struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
}

// New returns an empty, open Mailbox.
func New() *Mailbox {
	return &Mailbox{wake: make(chan struct{}, 1)}
}

// Post enqueues fn to run on the consumer goroutine. Safe to call from any
// number of goroutines concurrently; never blocks.
func (m *Mailbox) Post(fn func()) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, fn)
	m.mu.Unlock()
	m.nudge()
}

func (m *Mailbox) nudge() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Mailbox) pop() (func(), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return nil, false
	}
	fn := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	return fn, true
}

// Run drains handlers until Close has been called and the queue is empty.
// Callers invoke this on a dedicated goroutine (go mb.Run()) — it is the
// "single logical thread" every handler posted to this mailbox runs on.
func (m *Mailbox) Run() {
	for {
		for {
			fn, ok := m.pop()
			if !ok {
				break
			}
			fn()
		}
		m.mu.Lock()
		done := m.closed && len(m.queue) == 0
		m.mu.Unlock()
		if done {
			return
		}
		<-m.wake
	}
}

// Close marks the mailbox closed: no further Post calls take effect, and
// Run returns once the remaining queue has drained. Close itself does not
// drain the queue — call it after posting any final handler.
func (m *Mailbox) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.nudge()
}
