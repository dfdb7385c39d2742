package service

import (
	"context"
	"time"
)

// Turnstile admits one caller at a time into a vault. Front doors that drive the vault
// concurrently (the HTTP API, the harvest keeper) share one turnstile so their calls queue
// instead of colliding on the vault's reentrancy guard.
//
// Collaborator callbacks must not pass through the turnstile; they reach the vault directly
// and are refused by the guard.
type Turnstile struct {
	slot    chan struct{}
	maxWait time.Duration
}

// NewTurnstile creates a turnstile. A caller that waits longer than maxWait for its turn
// gets ErrBusy; zero waits as long as the caller's context allows.
func NewTurnstile(maxWait time.Duration) *Turnstile {
	return &Turnstile{
		slot:    make(chan struct{}, 1),
		maxWait: maxWait,
	}
}

// Do waits for a turn and runs fn while holding it
func (t *Turnstile) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	wait := ctx
	if t.maxWait > 0 {
		var cancel context.CancelFunc
		wait, cancel = context.WithTimeout(ctx, t.maxWait)
		defer cancel()
	}

	select {
	case t.slot <- struct{}{}:
	case <-wait.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrBusy
	}
	defer func() { <-t.slot }()

	return fn(ctx)
}
