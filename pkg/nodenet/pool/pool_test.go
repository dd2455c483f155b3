package pool_test

import (
	"errors"
	"math/rand/v2"
	"slices"
	"testing"

	. "github.com/rflandau/nodenet/internal/testsupport"
	"github.com/rflandau/nodenet/pkg/nodenet"
	"github.com/rflandau/nodenet/pkg/nodenet/pool"
	"github.com/rflandau/nodenet/pkg/nodenet/protocol"
)

func newPool(t *testing.T, capacity int) *pool.Pool {
	t.Helper()
	p, err := pool.New(capacity, nodenet.DefaultMaxPayload)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestNew(t *testing.T) {
	t.Run("bad capacity", func(t *testing.T) {
		for _, c := range []int{-1, 0, nodenet.MaxPoolCapacity + 1} {
			if _, err := pool.New(c, nodenet.DefaultMaxPayload); err == nil {
				t.Errorf("expected an error for capacity %d", c)
			}
		}
	})
	t.Run("bad payload bound", func(t *testing.T) {
		if _, err := pool.New(nodenet.DefaultPoolCapacity, 0); err == nil {
			t.Error("expected an error for a zero payload bound")
		}
	})
	// the pool holds exactly the slots it scans; there is no unreachable spare slot
	t.Run("capacity equals the configured count", func(t *testing.T) {
		p := newPool(t, nodenet.DefaultPoolCapacity)
		if p.Cap() != nodenet.DefaultPoolCapacity {
			t.Fatal("bad capacity", ExpectedActual(nodenet.DefaultPoolCapacity, p.Cap()))
		}
		for i := range nodenet.DefaultPoolCapacity {
			if _, err := p.Allocate(); err != nil {
				t.Fatalf("allocation %d failed: %v", i, err)
			}
		}
		if h, err := p.Allocate(); !errors.Is(err, pool.ErrFull) {
			t.Error("expected a full pool", ExpectedActual(pool.ErrFull, err))
		} else if h != pool.None {
			t.Error("full pool returned a handle", ExpectedActual(pool.None, h))
		}
		if p.Slot(pool.Handle(nodenet.DefaultPoolCapacity)) != nil {
			t.Error("slot beyond capacity is reachable")
		}
	})
}

// Allocation must always prefer the lowest free index.
func TestPool_AllocateOrder(t *testing.T) {
	p := newPool(t, 4)
	for want := range 4 {
		h, err := p.Allocate()
		if err != nil {
			t.Fatal(err)
		} else if h != pool.Handle(want) {
			t.Fatal("out of order allocation", ExpectedActual(pool.Handle(want), h))
		}
	}
	p.Free(2)
	p.Free(0)
	if h, _ := p.Allocate(); h != 0 {
		t.Error("expected slot 0", ExpectedActual(pool.Handle(0), h))
	}
	if h, _ := p.Allocate(); h != 2 {
		t.Error("expected slot 2", ExpectedActual(pool.Handle(2), h))
	}
	if p.Len() != 4 {
		t.Error("bad in-use count", ExpectedActual(4, p.Len()))
	}
}

func TestPool_Free(t *testing.T) {
	p := newPool(t, 2)
	h, _ := p.Allocate()
	s := p.Slot(h)
	s.To, s.From, s.Kind, s.Seq, s.Retries = 9, 8, protocol.Request, 7, 1
	s.Payload.Set([]byte("hello"))

	p.Free(h)
	if s.InUse() || p.InUse(h) {
		t.Error("slot still in use after free")
	}
	if s.To != 0 || s.From != 0 || s.Kind != 0 || s.Seq != 0 || s.Retries != 0 || s.Payload.Len() != 0 {
		t.Errorf("slot was not reset: %+v", s)
	}
	if _, err := p.Get(h); !errors.Is(err, pool.ErrBadHandle) {
		t.Error("expected bad handle", ExpectedActual(pool.ErrBadHandle, err))
	}
	// out of range frees are ignored
	p.Free(-1)
	p.Free(99)
}

func TestPool_FindBySequence(t *testing.T) {
	p := newPool(t, 4)
	fill := func(to nodenet.Addr, kind protocol.Kind, seq uint8) pool.Handle {
		h, err := p.Allocate()
		if err != nil {
			t.Fatal(err)
		}
		s := p.Slot(h)
		s.To, s.From, s.Kind, s.Seq = to, 1, kind, seq
		return h
	}
	a := fill(2, protocol.Request, 5)
	fill(3, protocol.Request, 5) // other peer
	fill(2, protocol.Ack, 5)     // not a request
	d := fill(2, protocol.Request, 5)

	got := p.FindBySequence(2, 5)
	if !SlicesUnorderedEqual(got, []pool.Handle{a, d}) {
		t.Error("bad matches", ExpectedActual([]pool.Handle{a, d}, got))
	}
	if got := p.FindBySequence(2, 6); len(got) != 0 {
		t.Error("expected no matches", ExpectedActual([]pool.Handle{}, got))
	}
	// freed slots never match
	p.Free(a)
	if got := p.FindBySequence(2, 5); !slices.Equal(got, []pool.Handle{d}) {
		t.Error("bad matches after free", ExpectedActual([]pool.Handle{d}, got))
	}
}

func TestPool_FindPendingRequestFor(t *testing.T) {
	p := newPool(t, 4)
	if _, found := p.FindPendingRequestFor(1); found {
		t.Fatal("empty pool reported a pending request")
	}
	set := func(h pool.Handle, to nodenet.Addr, kind protocol.Kind) {
		s := p.Slot(h)
		s.To, s.Kind = to, kind
	}
	for range 4 {
		p.Allocate()
	}
	set(0, 2, protocol.Request) // outbound
	set(1, 1, protocol.Ack)
	set(2, 1, protocol.Request)
	set(3, 1, protocol.Request)

	if h, found := p.FindPendingRequestFor(1); !found || h != 2 {
		t.Error("expected oldest pending request", ExpectedActual(pool.Handle(2), h))
	}
	p.Free(2)
	if h, found := p.FindPendingRequestFor(1); !found || h != 3 {
		t.Error("expected next pending request", ExpectedActual(pool.Handle(3), h))
	}
}

// Sequence numbers are never zero and never collide with an in-use slot.
func TestPool_GenerateSequence(t *testing.T) {
	rnd := rand.New(rand.NewPCG(1, 2))
	p := newPool(t, nodenet.MaxPoolCapacity)

	// fill all but one slot with distinct sequence numbers, leaving exactly one candidate free
	used := make(map[uint8]bool)
	for i := range nodenet.MaxPoolCapacity - 1 {
		h, err := p.Allocate()
		if err != nil {
			t.Fatal(err)
		}
		seq := p.GenerateSequence(rnd)
		if seq == 0 {
			t.Fatalf("generated 0 on iteration %d", i)
		} else if used[seq] {
			t.Fatalf("generated duplicate %d on iteration %d", seq, i)
		}
		used[seq] = true
		p.Slot(h).Seq = seq
	}
	last := p.GenerateSequence(rnd)
	if last == 0 || used[last] {
		t.Fatal("bad final sequence number", last)
	}
	if len(used) != 254 {
		t.Fatal("bad number of distinct sequence numbers", ExpectedActual(254, len(used)))
	}

	// free slots do not reserve their stale values
	p.Free(0)
	for range 512 {
		if seq := p.GenerateSequence(rnd); seq == 0 {
			t.Fatal("generated 0")
		}
	}
}

func TestPayload_Set(t *testing.T) {
	p := newPool(t, 1)
	h, _ := p.Allocate()
	pl := &p.Slot(h).Payload
	if pl.Cap() != nodenet.DefaultMaxPayload {
		t.Fatal("bad payload capacity", ExpectedActual(nodenet.DefaultMaxPayload, pl.Cap()))
	}
	if truncated := pl.Set([]byte("ping")); truncated {
		t.Error("short payload reported as truncated")
	} else if pl.String() != "ping" {
		t.Error("bad payload", ExpectedActual("ping", pl.String()))
	}
	long := make([]byte, nodenet.DefaultMaxPayload+5)
	for i := range long {
		long[i] = 'x'
	}
	if truncated := pl.Set(long); !truncated {
		t.Error("long payload not reported as truncated")
	} else if pl.Len() != nodenet.DefaultMaxPayload {
		t.Error("bad payload length", ExpectedActual(nodenet.DefaultMaxPayload, pl.Len()))
	}
	pl.Reset()
	if pl.Len() != 0 {
		t.Error("payload not reset")
	}
}

// Payload buffers of neighbouring slots must not bleed into one another.
func TestPayload_Isolation(t *testing.T) {
	p := newPool(t, 2)
	a, _ := p.Allocate()
	b, _ := p.Allocate()
	p.Slot(b).Payload.Set([]byte("bbbb"))
	long := make([]byte, nodenet.DefaultMaxPayload*2)
	for i := range long {
		long[i] = 'a'
	}
	p.Slot(a).Payload.Set(long)
	if got := p.Slot(b).Payload.String(); got != "bbbb" {
		t.Error("neighbour payload clobbered", ExpectedActual("bbbb", got))
	}
}
