package core

import "time"

// Task is a unit of work run on a node's single logical executor.
type Task func()

// Timer is a handle to a scheduled one-shot task; Stop cancels it if it
// has not yet fired.
type Timer interface {
	Stop() bool
}

// Runtime is the external collaborator the core never implements
// itself: it owns sockets, the timer wheel, and the operator callbacks.
// The core only ever calls these six methods.
type Runtime interface {
	// Execute runs task on the node's executor, as soon as possible.
	Execute(task Task)
	// Submit enqueues a possibly-deferred task on the same executor.
	Submit(task Task)
	// Schedule arranges a one-shot timer; the callback lands on the
	// node's executor via Execute.
	Schedule(task Task, delay time.Duration) Timer
	// Send is best-effort: it may silently drop. No ordering is
	// required across destinations, but messages from the same sender
	// must arrive in send order (spec.md §5).
	Send(to Endpoint, msg Message)
	// OnReport delivers a periodic operator-facing status snapshot.
	OnReport(report NodeReport)
	// OnGroupTerminated fires exactly once, when the node's status
	// becomes Terminated.
	OnGroupTerminated()
}
