package engine

import (
	"sync"
	"time"
)

// EdgeClock derives a ClockSource that stays in the same wrapping
// microsecond domain as the edges it observes, even when the edge producer
// (an adapter board's free-running counter, or a simulator) uses a
// different epoch than the host's wall clock. It extrapolates between
// edges using host-side elapsed time, so CheckStall sees a "now" that
// keeps advancing even if edges stop arriving.
type EdgeClock struct {
	mu         sync.Mutex
	lastEdgeUS uint32
	lastHostUS int64
	haveEdge   bool
}

// NewEdgeClock creates an EdgeClock with no edges observed yet; Now()
// returns 0 until the first Observe call.
func NewEdgeClock() *EdgeClock {
	return &EdgeClock{}
}

// Observe records an edge timestamp and the host time it arrived at. Wire
// this as a wrapper around the real onEdge callback.
func (c *EdgeClock) Observe(timestampUS uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastEdgeUS = timestampUS
	c.lastHostUS = time.Now().UnixMicro()
	c.haveEdge = true
}

// Now returns the extrapolated current timestamp in the edge clock domain.
func (c *EdgeClock) Now() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.haveEdge {
		return 0
	}
	elapsed := time.Now().UnixMicro() - c.lastHostUS
	if elapsed < 0 {
		elapsed = 0
	}
	return c.lastEdgeUS + uint32(elapsed)
}
