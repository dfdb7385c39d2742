package service

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// operation marks one in-flight critical section
type operation struct {
	name string
}

// reentrancyGuard admits a single ledger operation at a time. Any entry attempted while an
// operation is in flight is refused, whatever context it carries: a collaborator calling
// back into the ledger cannot be told apart from an unrelated caller, so neither may wait.
// Concurrent callers are serialized ahead of the guard by a Turnstile.
type reentrancyGuard struct {
	current atomic.Pointer[operation]
}

func newReentrancyGuard() *reentrancyGuard {
	return &reentrancyGuard{}
}

// enter marks name as in flight. release must run on every exit path; calling it more
// than once is harmless.
func (g *reentrancyGuard) enter(name string) (func(), error) {
	op := &operation{name: name}
	if !g.current.CompareAndSwap(nil, op) {
		if inFlight := g.current.Load(); inFlight != nil {
			return func() {}, fmt.Errorf("%w: %s while %s is in flight", ErrReentrantCall, name, inFlight.name)
		}
		return func() {}, fmt.Errorf("%w: %s", ErrReentrantCall, name)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.current.CompareAndSwap(op, nil)
		})
	}, nil
}

// held reports whether an operation is in flight
func (g *reentrancyGuard) held() bool {
	return g.current.Load() != nil
}
