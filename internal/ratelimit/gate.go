// Package ratelimit bounds the number of simultaneous outbound broker calls.
package ratelimit

import (
	"context"
	"fmt"
)

// DefaultSize is the default number of admission slots.
const DefaultSize = 5

// Gate is a fixed-size admission window. Callers block in Acquire until a
// slot is free, so the broker never sees more than Size simultaneous requests
// from this process. It bounds concurrency only; throughput shaping against
// server-side throttling is the broker client's retry/backoff job.
type Gate struct {
	slots chan struct{}
}

// NewGate creates a gate with the given number of slots.
func NewGate(size int) *Gate {
	if size <= 0 {
		size = DefaultSize
	}
	return &Gate{slots: make(chan struct{}, size)}
}

// Acquire blocks until a slot is free or the context is cancelled.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for broker slot: %w", ctx.Err())
	}
}

// Release frees a slot acquired with Acquire.
func (g *Gate) Release() {
	select {
	case <-g.slots:
	default:
		// Release without a matching Acquire is a programming error;
		// swallowing it beats corrupting the window size.
	}
}

// InFlight returns the number of currently occupied slots.
func (g *Gate) InFlight() int {
	return len(g.slots)
}

// Size returns the gate's capacity.
func (g *Gate) Size() int {
	return cap(g.slots)
}
