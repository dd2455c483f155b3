// Package pool implements the fixed-capacity set of packet slots that owns every in-flight message of a node.
// A Pool never grows; when every slot is in use, allocation fails and the caller is expected to drop the packet.
//
// Pools are not thread-safe. The engine serializes access to its pool.
package pool

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/rflandau/nodenet/pkg/nodenet"
	"github.com/rflandau/nodenet/pkg/nodenet/protocol"
	"github.com/rs/zerolog"
)

// Handle identifies a slot within its Pool.
type Handle int

// None is returned where no slot could be identified.
const None Handle = -1

var (
	// ErrFull is returned by Allocate when no slot is free.
	ErrFull = errors.New("packet pool is full")
	// ErrBadHandle indicates a handle that is out of range or refers to a free slot.
	ErrBadHandle = errors.New("handle does not refer to an in-use slot")
)

// ErrBadCapacity returns an error to indicate that the requested pool capacity cannot be honoured.
func ErrBadCapacity(n int) error {
	return fmt.Errorf("capacity must be 1 <= x <= %d (given %d)", nodenet.MaxPoolCapacity, n)
}

// ErrBadMaxPayload returns an error to indicate that the requested payload bound is unusable.
func ErrBadMaxPayload(n int) error {
	return fmt.Errorf("max payload must be >= 1 (given %d)", n)
}

// A Slot is one entry of the pool.
// All fields other than the in-use flag are meaningless while the slot is free.
type Slot struct {
	inUse   bool
	Retries uint8 // transmissions attempted (requests only)
	To      nodenet.Addr
	From    nodenet.Addr
	Kind    protocol.Kind
	Seq     uint8
	Payload Payload
}

// InUse reports whether the slot is occupied.
func (s *Slot) InUse() bool {
	return s.inUse
}

// Header returns the wire header describing this slot.
func (s *Slot) Header() protocol.Header {
	return protocol.Header{To: s.To, From: s.From, Kind: s.Kind, Seq: s.Seq}
}

// Zerolog attaches the slot's fields to the given log event.
// Intended to be given to *zerolog.Event.Func().
func (s *Slot) Zerolog(ev *zerolog.Event) {
	hdr := s.Header()
	hdr.Zerolog(ev)
	ev.Uint8("retries", s.Retries).Int("payload length", s.Payload.Len())
}

// reset returns the slot to its empty defaults.
func (s *Slot) reset() {
	s.inUse = false
	s.Retries = 0
	s.To = 0
	s.From = 0
	s.Kind = 0
	s.Seq = 0
	s.Payload.Reset()
}

// A Pool is a statically sized array of packet slots.
type Pool struct {
	slots []Slot
}

// New returns a pool of exactly capacity slots, each able to hold maxPayload bytes.
// All memory is allocated up front.
func New(capacity, maxPayload int) (*Pool, error) {
	if capacity < 1 || capacity > nodenet.MaxPoolCapacity {
		return nil, ErrBadCapacity(capacity)
	}
	if maxPayload < 1 {
		return nil, ErrBadMaxPayload(maxPayload)
	}
	p := &Pool{slots: make([]Slot, capacity)}
	backing := make([]byte, capacity*maxPayload)
	for i := range p.slots {
		p.slots[i].Payload.buf = backing[i*maxPayload : i*maxPayload : (i+1)*maxPayload]
	}
	return p, nil
}

// Cap returns the number of slots in the pool.
func (p *Pool) Cap() int {
	return len(p.slots)
}

// Len returns the number of slots currently in use.
func (p *Pool) Len() (n int) {
	for i := range p.slots {
		if p.slots[i].inUse {
			n++
		}
	}
	return n
}

// Allocate claims the lowest-index free slot and marks it in use.
// Returns ErrFull if every slot is occupied.
func (p *Pool) Allocate() (Handle, error) {
	for i := range p.slots {
		if !p.slots[i].inUse {
			p.slots[i].inUse = true
			return Handle(i), nil
		}
	}
	return None, ErrFull
}

// Free resets every field of the slot and releases it.
// Ineffectual on an out-of-range handle.
func (p *Pool) Free(h Handle) {
	if !p.inRange(h) {
		return
	}
	p.slots[h].reset()
}

// Slot returns the slot behind h, or nil if h is out of range.
// The returned slot may be free; check InUse.
func (p *Pool) Slot(h Handle) *Slot {
	if !p.inRange(h) {
		return nil
	}
	return &p.slots[h]
}

// Get returns the slot behind h if, and only if, it is in use.
func (p *Pool) Get(h Handle) (*Slot, error) {
	if !p.inRange(h) || !p.slots[h].inUse {
		return nil, ErrBadHandle
	}
	return &p.slots[h], nil
}

// InUse reports whether h refers to an occupied slot.
func (p *Pool) InUse(h Handle) bool {
	return p.inRange(h) && p.slots[h].inUse
}

// FindBySequence returns every in-use Request slot headed to peer with the given sequence number.
// Uniqueness is not assumed.
func (p *Pool) FindBySequence(peer nodenet.Addr, seq uint8) (matches []Handle) {
	for i := range p.slots {
		s := &p.slots[i]
		if s.inUse && s.Kind == protocol.Request && s.To == peer && s.Seq == seq {
			matches = append(matches, Handle(i))
		}
	}
	return matches
}

// FindPendingRequestFor returns the lowest-index in-use Request slot addressed to local.
func (p *Pool) FindPendingRequestFor(local nodenet.Addr) (Handle, bool) {
	for i := range p.slots {
		s := &p.slots[i]
		if s.inUse && s.Kind == protocol.Request && s.To == local {
			return Handle(i), true
		}
	}
	return None, false
}

// GenerateSequence draws sequence numbers in [1, 255] from rnd until one is not carried by any in-use slot.
// Never returns 0.
// Requires at least one unused value, which a pool of at most MaxPoolCapacity slots guarantees while the slot being filled is still unnumbered.
func (p *Pool) GenerateSequence(rnd *rand.Rand) uint8 {
	var seq uint8
	for seq == 0 {
		seq = uint8(1 + rnd.UintN(255))
		for i := range p.slots {
			if p.slots[i].inUse && p.slots[i].Seq == seq {
				seq = 0
				break
			}
		}
	}
	return seq
}

// Range calls fn on every in-use slot, lowest index first, until fn returns false.
func (p *Pool) Range(fn func(h Handle, s *Slot) (next bool)) {
	for i := range p.slots {
		if !p.slots[i].inUse {
			continue
		}
		if !fn(Handle(i), &p.slots[i]) {
			return
		}
	}
}

func (p *Pool) inRange(h Handle) bool {
	return h >= 0 && int(h) < len(p.slots)
}
