package installer

import (
	"context"
	"sync"
	"time"
)

// stallGuard derives a cancellable context from a parent and cancels it if
// kick() is not called within the configured timeout — the download-stall
// watchdog from spec.md §4.G stage 2 ("DownloadStalled"). A zero timeout
// disables the watchdog.
type stallGuard struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	timer   *time.Timer
	timeout time.Duration
	fired   bool
}

func newStallGuard(parent context.Context, timeout time.Duration) *stallGuard {
	ctx, cancel := context.WithCancel(parent)
	g := &stallGuard{ctx: ctx, cancel: cancel, timeout: timeout}

	if timeout > 0 {
		g.timer = time.AfterFunc(timeout, g.onStall)
	}
	return g
}

func (g *stallGuard) onStall() {
	g.mu.Lock()
	g.fired = true
	g.mu.Unlock()
	g.cancel()
}

func (g *stallGuard) kick() {
	if g.timeout <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		g.timer.Reset(g.timeout)
	}
}

func (g *stallGuard) stalled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fired
}

func (g *stallGuard) stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
	}
	g.cancel()
}
