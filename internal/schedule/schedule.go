// Package schedule provides the timer primitives the sync engine runs on.
//
// A Host runs functions once after a delay or at a fixed rate. An EntityHost
// additionally runs work serially per entity, for value sources that must be
// read from the entity's own execution context. The engine never needs to know
// which implementation it was given.
package schedule

import (
	"context"
	"time"
)

// Task is a handle on scheduled work.
type Task interface {
	// Cancel stops future runs. A run that already started is left to finish.
	Cancel()
}

// Host schedules work on a shared background context.
type Host interface {
	RunAfter(delay time.Duration, fn func(ctx context.Context)) Task
	RunAtFixedRate(initialDelay, period time.Duration, fn func(ctx context.Context)) Task

	// Close cancels every task and waits for running bodies to return.
	Close()
}

// EntityHost is a Host that can also run work with entity affinity.
type EntityHost interface {
	Host

	// RunForEntity queues fn on the entity's executor. Work for one entity
	// runs in submission order, never concurrently. It returns false when
	// the host no longer accepts work.
	RunForEntity(entityID string, fn func()) bool
}

// New returns the host named by kind, "global" or "affinity".
func New(kind string) Host {
	if kind == "affinity" {
		return NewAffinity()
	}
	return NewGlobal()
}
