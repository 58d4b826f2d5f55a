// Package index keeps the image index consistent with the tracked folders:
// an exclusivity gate, the incremental sync pass, orphan reconciliation and
// the periodic scheduler.
package index

import "sync/atomic"

// Gate admits at most one sync pass at a time. A request that finds the gate
// taken is dropped, not queued.
type Gate struct {
	running atomic.Bool
}

// TryBegin claims the gate. It returns false when a pass is already running.
func (g *Gate) TryBegin() bool {
	return g.running.CompareAndSwap(false, true)
}

// End releases the gate.
func (g *Gate) End() {
	g.running.Store(false)
}

// Running reports whether a pass currently holds the gate.
func (g *Gate) Running() bool {
	return g.running.Load()
}
