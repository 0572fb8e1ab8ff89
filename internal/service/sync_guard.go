package service

import (
	"context"
	"sync"
)

type syncState int

const (
	stateIdle syncState = iota
	stateValidating
	stateRefreshing
)

func (s syncState) String() string {
	switch s {
	case stateValidating:
		return "validating"
	case stateRefreshing:
		return "refreshing"
	default:
		return "idle"
	}
}

// syncGuard serializes writers to the cache: at most one of validating or
// refreshing is active. Waiters block on the idle channel, which is closed
// whenever the guard returns to idle.
type syncGuard struct {
	mu    sync.Mutex
	state syncState
	idle  chan struct{}
}

func newSyncGuard() *syncGuard {
	idle := make(chan struct{})
	close(idle)
	return &syncGuard{idle: idle}
}

// tryEnter moves an idle guard to state; it never blocks
func (g *syncGuard) tryEnter(state syncState) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != stateIdle {
		return false
	}
	g.state = state
	g.idle = make(chan struct{})
	return true
}

// enter waits for the guard to become idle and moves it to state
func (g *syncGuard) enter(ctx context.Context, state syncState) error {
	for {
		g.mu.Lock()
		if g.state == stateIdle {
			g.state = state
			g.idle = make(chan struct{})
			g.mu.Unlock()
			return nil
		}
		idle := g.idle
		g.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// leave returns the guard to idle and wakes all waiters
func (g *syncGuard) leave() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == stateIdle {
		return
	}
	g.state = stateIdle
	close(g.idle)
}

func (g *syncGuard) current() syncState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
