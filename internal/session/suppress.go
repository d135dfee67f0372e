package session

import (
	"sync"
	"time"
)

// EchoGate breaks the feedback loop between remotely applied playback
// commands and the local media events they cause. It is engaged just
// before a remote command is applied and clears itself after a short
// grace window; while engaged, local media events must not be
// broadcast.
type EchoGate struct {
	mu      sync.Mutex
	window  time.Duration
	timer   *time.Timer
	gen     uint64
	engaged bool
}

// NewEchoGate creates a gate with the given grace window.
func NewEchoGate(window time.Duration) *EchoGate {
	return &EchoGate{window: window}
}

// Engage suppresses local media events for the grace window.
// Overlapping calls replace the pending timer, extending the window
// instead of double-clearing it. Stop alone cannot guarantee that: a
// timer that already fired but has not taken the lock yet is past
// stopping, so each engagement bumps a generation and a clear from a
// superseded generation is a no-op.
func (g *EchoGate) Engage() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.engaged = true
	g.gen++
	gen := g.gen
	if g.timer != nil {
		g.timer.Stop()
	}
	g.timer = time.AfterFunc(g.window, func() {
		g.mu.Lock()
		if g.gen == gen {
			g.engaged = false
		}
		g.mu.Unlock()
	})
}

// Engaged reports whether local media events are currently suppressed.
func (g *EchoGate) Engaged() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.engaged
}

// Cancel stops any pending clear and lifts the suppression.
func (g *EchoGate) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.engaged = false
}
