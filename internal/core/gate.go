package core

import (
	"sync"
	"time"
)

// Gate is the admission switch consulted by the accept loop. Waiters park on a
// condition variable instead of polling.
type Gate struct {
	mu     sync.Mutex
	cond   *sync.Cond
	open   bool
	closed bool
}

// NewGate returns a gate in the given state.
func NewGate(open bool) *Gate {
	g := &Gate{open: open}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// IsOpen reports whether new connections are admitted.
func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// SetOpen flips admission and wakes any waiter.
func (g *Gate) SetOpen(open bool) {
	g.mu.Lock()
	g.open = open
	g.mu.Unlock()
	g.cond.Broadcast()
}

// Close releases all waiters permanently; used on shutdown.
func (g *Gate) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.cond.Broadcast()
}

// Closed reports whether Close was called.
func (g *Gate) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// WaitOpen blocks until the gate opens, the gate is closed, or timeout elapses.
// A non-positive timeout waits indefinitely. It returns whether the gate is open.
func (g *Gate) WaitOpen(timeout time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.open || g.closed {
		return g.open
	}

	expired := false
	if timeout > 0 {
		timer := time.AfterFunc(timeout, func() {
			g.mu.Lock()
			expired = true
			g.mu.Unlock()
			g.cond.Broadcast()
		})
		defer timer.Stop()
	}

	for !g.open && !g.closed && !expired {
		g.cond.Wait()
	}
	return g.open
}
