// Package scheduler provides the timing abstraction the reactor tree runs on.
//
// Every deferred step in the tree (mount-phase promotion, deferred unlisten,
// subscribe retries) is expressed as AfterFunc on a Scheduler. Two
// implementations exist: Loop runs callbacks on a single goroutine in FIFO
// order against the wall clock, and Manual runs them on the caller's
// goroutine against a virtual clock advanced explicitly by tests.
package scheduler

import (
	"errors"
	"time"
)

// ErrLoopStopped is returned when work is submitted to a stopped loop.
var ErrLoopStopped = errors.New("scheduler loop is stopped")

// ErrQueueFull is returned when the loop queue is at capacity.
var ErrQueueFull = errors.New("scheduler queue is full")

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop cancels the callback. Returns false if it already ran or was stopped.
	Stop() bool
}

// Scheduler runs callbacks after a delay on the tree's single logical thread.
type Scheduler interface {
	// AfterFunc schedules fn to run after d. A zero delay means "next tick":
	// fn never runs synchronously inside AfterFunc.
	AfterFunc(d time.Duration, fn func()) Timer

	// Now returns the scheduler's current time.
	Now() time.Time
}
