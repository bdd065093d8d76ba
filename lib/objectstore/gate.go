package objectstore

import (
	"fmt"
	"sync/atomic"
)

// Gate bounds the total number of concurrent object-store upload/download
// operations across all databases. Increment-then-check
// fails fast: a caller that would push the counter past the cap performs no
// I/O.
type Gate struct {
	cap     int64
	current atomic.Int64
}

// NewGate creates a gate with the given cap. A non-positive cap makes every
// Acquire fail.
func NewGate(cap int) *Gate {
	return &Gate{cap: int64(cap)}
}

// ErrCapacityExceeded is returned by Acquire when the gate is already at cap.
var ErrCapacityExceeded = fmt.Errorf("objectstore: concurrency gate exceeded")

// Acquire increments the counter if doing so would not exceed the cap,
// returning ErrCapacityExceeded otherwise.
func (g *Gate) Acquire() error {
	for {
		cur := g.current.Load()
		if cur >= g.cap {
			return ErrCapacityExceeded
		}
		if g.current.CompareAndSwap(cur, cur+1) {
			return nil
		}
	}
}

// Release decrements the counter. Every successful Acquire must be matched
// by exactly one Release on every exit path, including errors.
func (g *Gate) Release() {
	g.current.Add(-1)
}

// Current returns the current in-flight count, for tests and dump-stats.
func (g *Gate) Current() int {
	return int(g.current.Load())
}
