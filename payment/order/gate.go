package order

import (
	"context"
	"sync"
	"time"
)

// Gate allows one automation session against the external store at a time.
// The store is a single-viewport UI; two sessions would fight over navigation
// state and look more like a bot.
type Gate struct {
	token chan struct{}

	mu        sync.Mutex
	heldSince time.Time
}

func NewGate() *Gate {
	g := &Gate{token: make(chan struct{}, 1)}
	g.token <- struct{}{}
	return g
}

// Acquire waits up to maxWait for the gate. It returns false on timeout or
// when ctx is done, leaving the gate untouched.
func (g *Gate) Acquire(ctx context.Context, maxWait time.Duration) bool {
	select {
	case <-g.token:
		g.markHeld()
		return true
	default:
	}

	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	select {
	case <-g.token:
		g.markHeld()
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (g *Gate) markHeld() {
	g.mu.Lock()
	g.heldSince = time.Now()
	g.mu.Unlock()
}

// Release frees the gate. Releasing a free gate does nothing.
func (g *Gate) Release() {
	g.mu.Lock()
	g.heldSince = time.Time{}
	g.mu.Unlock()

	select {
	case g.token <- struct{}{}:
	default:
	}
}

// Do runs fn while holding the gate. The gate is released on every exit path,
// including a panic in fn. acquired is false when the gate could not be taken
// in time, in which case fn is not called.
func (g *Gate) Do(ctx context.Context, maxWait time.Duration, fn func(ctx context.Context) error) (acquired bool, err error) {
	if !g.Acquire(ctx, maxWait) {
		return false, nil
	}
	defer g.Release()
	return true, fn(ctx)
}

// Held reports whether the gate is taken and since when.
func (g *Gate) Held() (bool, time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.heldSince.IsZero(), g.heldSince
}
