// Package transport provides byte-stream collaborators for the engine: a serial port and an in-memory bus.
// Both report when the line has gone quiet so the engine can avoid talking over its neighbours.
package transport

import (
	"context"
	"sync"
	"time"
)

// DefaultQuietPeriod is how long the bus must be silent before it is considered idle.
const DefaultQuietPeriod time.Duration = 5 * time.Millisecond

// idleTracker remembers when the last byte arrived.
type idleTracker struct {
	mu     sync.Mutex
	lastRx time.Time
	quiet  time.Duration
}

// touch records that bytes just arrived.
func (it *idleTracker) touch() {
	it.mu.Lock()
	it.lastRx = time.Now()
	it.mu.Unlock()
}

// WaitIdle blocks until no byte has arrived for the quiet period or ctx is done.
func (it *idleTracker) WaitIdle(ctx context.Context) error {
	for {
		it.mu.Lock()
		remaining := it.quiet - time.Since(it.lastRx)
		it.mu.Unlock()
		if remaining <= 0 {
			return nil
		}
		t := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
