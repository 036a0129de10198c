package singleflight

import (
	"context"
	"sync"
)

// Group coalesces concurrent calls that share a key. The first caller for a
// key becomes the owner and runs the work; later callers attach to the same
// Flight and wait for the owner's result.
type Group struct {
	mu      sync.Mutex
	flights map[string]*Flight
}

// Flight is one in-progress unit of work shared between an owner and any
// number of waiters.
type Flight struct {
	mu      sync.Mutex
	val     interface{}
	err     error
	done    chan struct{}
	waiters int
}

// New creates an empty Group.
func New() *Group {
	return &Group{
		flights: make(map[string]*Flight),
	}
}

// Join returns the Flight for key, creating it when absent. The second return
// value is true when the caller created the flight and therefore owns the
// work; owners must call Settle exactly once when the work finishes.
func (g *Group) Join(key string) (*Flight, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if f, ok := g.flights[key]; ok {
		f.mu.Lock()
		f.waiters++
		f.mu.Unlock()
		return f, false
	}

	f := &Flight{
		done:    make(chan struct{}),
		waiters: 1,
	}
	g.flights[key] = f
	return f, true
}

// Settle records the result for key and releases every waiter. The flight is
// removed from the group before the done channel closes, so a caller that
// arrives after settlement always starts a fresh flight. Settling a key twice
// is a no-op.
func (g *Group) Settle(key string, val interface{}, err error) {
	g.mu.Lock()
	f, ok := g.flights[key]
	if ok {
		delete(g.flights, key)
	}
	g.mu.Unlock()

	if !ok {
		return
	}

	f.mu.Lock()
	f.val = val
	f.err = err
	f.mu.Unlock()
	close(f.done)
}

// Forget drops the flight for key without settling it. Waiters already
// attached keep waiting on the orphaned flight; new callers start fresh.
func (g *Group) Forget(key string) {
	g.mu.Lock()
	delete(g.flights, key)
	g.mu.Unlock()
}

// Inflight returns the number of flights currently in progress.
func (g *Group) Inflight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.flights)
}

// Wait blocks until the flight settles or ctx is done. Cancellation detaches
// only this waiter; the owner's work keeps running for the others.
func (f *Flight) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		val, err := f.val, f.err
		f.mu.Unlock()
		return val, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Waiters returns how many callers are attached to the flight.
func (f *Flight) Waiters() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waiters
}
