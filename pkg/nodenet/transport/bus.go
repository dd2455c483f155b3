package transport

import (
	"errors"
	"io"
	"sync"
	"time"
)

// ErrClosed is returned when writing to a tap that has been closed.
var ErrClosed = errors.New("tap is closed")

// A Bus is an in-memory shared line.
// Every write to one tap is delivered to every other tap, as a multi-drop serial bus would.
// Writers do not hear their own frames.
//
// Buses are intended for simulation and tests; the zero value is not usable, construct one with NewBus.
type Bus struct {
	mu    sync.Mutex
	taps  map[*Tap]struct{}
	quiet time.Duration
}

// NewBus returns a bus whose taps consider the line idle after quiet.
// 0 uses DefaultQuietPeriod.
func NewBus(quiet time.Duration) *Bus {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &Bus{taps: make(map[*Tap]struct{}), quiet: quiet}
}

// Attach connects a new tap to the bus.
func (b *Bus) Attach() *Tap {
	t := &Tap{bus: b}
	t.quiet = b.quiet
	t.cond = sync.NewCond(&t.rxMu)
	b.mu.Lock()
	b.taps[t] = struct{}{}
	b.mu.Unlock()
	return t
}

// Len returns the number of attached taps.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.taps)
}

// broadcast delivers a copy of p to every tap other than from.
func (b *Bus) broadcast(from *Tap, p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for t := range b.taps {
		if t != from {
			t.deliver(p)
		}
	}
}

func (b *Bus) detach(t *Tap) {
	b.mu.Lock()
	delete(b.taps, t)
	b.mu.Unlock()
}

// A Tap is one node's connection to a Bus.
// It satisfies io.ReadWriteCloser and the engine's IdleWaiter.
type Tap struct {
	idleTracker
	bus *Bus

	rxMu   sync.Mutex
	cond   *sync.Cond
	rx     []byte // delivered but not yet read
	closed bool
}

// Write broadcasts p to the rest of the bus.
func (t *Tap) Write(p []byte) (int, error) {
	t.rxMu.Lock()
	closed := t.closed
	t.rxMu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	t.bus.broadcast(t, p)
	return len(p), nil
}

// Read blocks until bytes arrive or the tap is closed.
// Returns io.EOF once the tap is closed and drained.
func (t *Tap) Read(p []byte) (int, error) {
	t.rxMu.Lock()
	defer t.rxMu.Unlock()
	for len(t.rx) == 0 && !t.closed {
		t.cond.Wait()
	}
	if len(t.rx) == 0 {
		return 0, io.EOF
	}
	n := copy(p, t.rx)
	t.rx = t.rx[n:]
	return n, nil
}

// Close detaches the tap from the bus and wakes any blocked reader.
func (t *Tap) Close() error {
	t.bus.detach(t)
	t.rxMu.Lock()
	t.closed = true
	t.rxMu.Unlock()
	t.cond.Broadcast()
	return nil
}

func (t *Tap) deliver(p []byte) {
	t.touch()
	t.rxMu.Lock()
	if !t.closed {
		t.rx = append(t.rx, p...)
	}
	t.rxMu.Unlock()
	t.cond.Broadcast()
}
