// Package engine implements the nodenet protocol engine: submission of outbound requests, the periodic retransmission sweep, inbound line dispatch and replies.
// An engine can be spun up with New and driven either by hand (Receive + Tick) or by Serve.
package engine

import (
	"context"
	"io"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/rflandau/nodenet/pkg/nodenet"
	"github.com/rflandau/nodenet/pkg/nodenet/engine/expiring"
	"github.com/rflandau/nodenet/pkg/nodenet/pool"
	"github.com/rflandau/nodenet/pkg/nodenet/protocol"
	"github.com/rs/zerolog"
)

// Default timings of the send path and host loop.
const (
	DefaultBusIdleTimeout time.Duration = 100 * time.Millisecond
	DefaultPollInterval   time.Duration = 20 * time.Millisecond
)

// An IdleWaiter is a transport that can tell when the shared bus has gone quiet.
// The engine calls WaitIdle before every send; a transport without contention need not implement it.
type IdleWaiter interface {
	WaitIdle(ctx context.Context) error
}

// peerSeq identifies a request by its origin.
type peerSeq struct {
	peer nodenet.Addr
	seq  uint8
}

// An Engine is a single node's view of the bus.
//
// All methods are safe for concurrent use; a single mutex guards the pool and the line buffer.
// The engine itself spawns no goroutines outside of Serve.
type Engine struct {
	log        *zerolog.Logger
	defaultLog io.Writer // set when log was built by New and should follow the local address

	mu    sync.Mutex // held for the duration of every public operation
	local nodenet.Addr
	w     io.Writer
	pool  *pool.Pool
	rnd   *rand.Rand
	clock func() time.Time

	cfg struct {
		capacity        int
		maxPayload      int
		maxRetries      uint8
		tickInterval    time.Duration
		busIdleTimeout  time.Duration
		pollInterval    time.Duration
		duplicateWindow time.Duration
	}

	lastTick time.Time
	kick     bool   // fire on the next Tick regardless of the interval
	line     []byte // inbound bytes since the last terminator

	answered *expiring.Table[peerSeq, []byte] // nil unless the duplicate window is enabled

	stats Stats
}

// New generates a new engine for the node at local, writing frames to w.
// The engine is ready for use as soon as it is returned.
func New(local nodenet.Addr, w io.Writer, opts ...Option) (*Engine, error) {
	if w == nil {
		return nil, ErrNoWriter
	}

	// set defaults
	e := &Engine{
		local: local,
		w:     w,
		rnd:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		clock: time.Now,
	}
	e.cfg.capacity = nodenet.DefaultPoolCapacity
	e.cfg.maxPayload = nodenet.DefaultMaxPayload
	e.cfg.maxRetries = nodenet.DefaultMaxRetries
	e.cfg.tickInterval = nodenet.DefaultTickInterval
	e.cfg.busIdleTimeout = DefaultBusIdleTimeout
	e.cfg.pollInterval = DefaultPollInterval

	// apply options
	for _, opt := range opts {
		opt(e)
	}

	// validate what the options left us with
	if e.cfg.maxRetries < 1 {
		return nil, ErrBadRetries(e.cfg.maxRetries)
	}
	for name, d := range map[string]time.Duration{
		"tick interval":       e.cfg.tickInterval,
		"bus idle timeout":    e.cfg.busIdleTimeout,
		"duplicate window":    e.cfg.duplicateWindow,
		"serve poll interval": e.cfg.pollInterval,
	} {
		if d < 0 {
			return nil, ErrBadDuration(name, d)
		}
	}
	if e.cfg.pollInterval == 0 {
		e.cfg.pollInterval = DefaultPollInterval
	}
	p, err := pool.New(e.cfg.capacity, e.cfg.maxPayload)
	if err != nil {
		return nil, err
	}
	e.pool = p
	e.line = make([]byte, 0, protocol.HeaderLen+e.cfg.maxPayload)
	if e.cfg.duplicateWindow > 0 {
		e.answered = expiring.New[peerSeq, []byte]()
	}

	// if the logger was not established by the options, generate the default logger
	if e.log == nil {
		if e.defaultLog == nil {
			e.defaultLog = os.Stdout
		}
		e.log = defaultLogger(e.defaultLog, local, zerolog.WarnLevel)
	} else {
		e.defaultLog = nil
	}

	e.lastTick = e.clock()

	e.log.Debug().Func(e.Zerolog).Msg("engine created")
	return e, nil
}

// defaultLogger is the logger an engine uses when none is given to it.
func defaultLogger(out io.Writer, local nodenet.Addr, lvl zerolog.Level) *zerolog.Logger {
	l := zerolog.New(zerolog.ConsoleWriter{
		Out:         out,
		FieldsOrder: []string{"node"},
		TimeFormat:  "15:04:05",
	}).With().
		Uint8("node", local).
		Timestamp().
		Caller().
		Logger().Level(lvl)
	return &l
}

//#region getters

// LocalAddress returns the address this engine answers to.
func (e *Engine) LocalAddress() nodenet.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.local
}

// SetLocalAddress changes the address this engine answers to.
// Intended to be called once, before any traffic.
func (e *Engine) SetLocalAddress(addr nodenet.Addr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log.Info().Uint8("old", e.local).Uint8("new", addr).Msg("local address set")
	e.local = addr
	if e.defaultLog != nil {
		e.log = defaultLogger(e.defaultLog, addr, e.log.GetLevel())
	}
}

// Capacity returns the number of slots in the engine's pool.
func (e *Engine) Capacity() int {
	return e.pool.Cap()
}

// MaxPayload returns the largest payload a packet can carry.
func (e *Engine) MaxPayload() int {
	return e.cfg.maxPayload
}

// Stats returns a copy of the engine's counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.InUse = e.pool.Len()
	return s
}

//#endregion getters

// Submit queues payload as a new request to dst.
// The request is sent on the very next Tick, then retransmitted every tick interval until it is acknowledged or runs out of retries.
// Payloads longer than the engine's bound are truncated.
//
// If the pool is full, nothing changes and a pool.ErrFull is returned.
// Callers that want fire-and-forget semantics may ignore the error.
func (e *Engine) Submit(dst nodenet.Addr, payload []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, err := e.pool.Allocate()
	if err != nil {
		e.stats.DroppedFull++
		e.log.Debug().Uint8("to", dst).Msg("pool full; submission dropped")
		return err
	}
	s := e.pool.Slot(h)
	s.To = dst
	s.From = e.local
	s.Kind = protocol.Request
	s.Retries = 0
	s.Seq = e.pool.GenerateSequence(e.rnd)
	if s.Payload.Set(payload) {
		e.log.Debug().Int("given", len(payload)).Int("kept", s.Payload.Len()).Msg("submitted payload truncated")
	}
	e.kick = true
	e.stats.Submitted++

	e.log.Debug().Int("slot", int(h)).Func(s.Zerolog).Msg("request submitted")
	return nil
}

// PollPendingRequest returns the oldest request addressed to this node that awaits a reply.
// Does not alter the slot.
func (e *Engine) PollPendingRequest() (pool.Handle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.FindPendingRequestFor(e.local)
}

// Inspect returns a copy of the packet held in slot h.
func (e *Engine) Inspect(h pool.Handle) (protocol.Packet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.pool.Get(h)
	if err != nil {
		return protocol.Packet{}, err
	}
	return protocol.Packet{Header: s.Header(), Payload: append([]byte(nil), s.Payload.Bytes()...)}, nil
}

// PayloadOf returns the payload buffer of slot h so the application can read a request and overwrite it with the reply.
//
// The view aliases the slot and is not guarded by the engine's lock.
// It must only be used by the goroutine that polled the request, up until Reply is called; prefer ReplyWith when other goroutines share the engine.
func (e *Engine) PayloadOf(h pool.Handle) (*pool.Payload, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.pool.Get(h)
	if err != nil {
		return nil, err
	}
	return &s.Payload, nil
}

// Reply turns the inbound request in slot h into an acknowledgment, transmits it once and frees the slot.
// Whatever the slot's payload holds at the time of the call is sent back.
func (e *Engine) Reply(ctx context.Context, h pool.Handle) error {
	if ctx == nil {
		return nodenet.ErrNilCtx
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reply(ctx, h)
}

// ReplyWith replaces the payload of slot h with payload (truncating it to the engine's bound) and replies.
func (e *Engine) ReplyWith(ctx context.Context, h pool.Handle, payload []byte) error {
	if ctx == nil {
		return nodenet.ErrNilCtx
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.pool.Get(h)
	if err != nil {
		return err
	}
	s.Payload.Set(payload)
	return e.reply(ctx, h)
}

// reply does the work of Reply.
// Caller must hold mu.
func (e *Engine) reply(ctx context.Context, h pool.Handle) error {
	s, err := e.pool.Get(h)
	if err != nil {
		return err
	}
	if s.Kind != protocol.Request || s.To != e.local {
		return ErrNotRequest
	}
	if e.answered != nil {
		e.answered.Store(peerSeq{s.From, s.Seq}, append([]byte(nil), s.Payload.Bytes()...), e.cfg.duplicateWindow)
	}

	s.To, s.From = s.From, s.To
	s.Kind = protocol.Ack
	e.stats.Replied++
	e.transmit(ctx, h)
	return nil
}

// Tick runs the retransmission sweep if at least the tick interval has passed since the last sweep (or a submission asked for an early one).
// A sweep transmits every in-use slot not addressed to this node.
// Returns the number of packets transmitted.
func (e *Engine) Tick(ctx context.Context, now time.Time) (sent int, err error) {
	if ctx == nil {
		return 0, nodenet.ErrNilCtx
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.kick && now.Sub(e.lastTick) < e.cfg.tickInterval {
		return 0, nil
	}
	e.lastTick = now
	e.kick = false

	for i := range e.pool.Cap() {
		h := pool.Handle(i)
		s := e.pool.Slot(h)
		if !s.InUse() || s.To == e.local {
			continue
		}
		e.transmit(ctx, h)
		sent++
	}
	return sent, nil
}

// A SlotInfo is a point-in-time copy of one in-use slot.
type SlotInfo struct {
	Handle  pool.Handle
	Retries uint8
	protocol.Packet
}

// Snapshot returns a copy of every in-use slot, lowest index first.
func (e *Engine) Snapshot() []SlotInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]SlotInfo, 0, e.pool.Cap())
	e.pool.Range(func(h pool.Handle, s *pool.Slot) bool {
		out = append(out, SlotInfo{
			Handle:  h,
			Retries: s.Retries,
			Packet:  protocol.Packet{Header: s.Header(), Payload: append([]byte(nil), s.Payload.Bytes()...)},
		})
		return true
	})
	return out
}

// Zerolog pretty prints the configuration of the engine into the given zerolog event.
// Intended to be given to *zerolog.Event.Func().
func (e *Engine) Zerolog(ev *zerolog.Event) {
	ev.Uint8("local", e.local).
		Int("capacity", e.cfg.capacity).
		Int("max payload", e.cfg.maxPayload).
		Uint8("max retries", e.cfg.maxRetries).
		Dur("tick interval", e.cfg.tickInterval).
		Dur("duplicate window", e.cfg.duplicateWindow)
}
