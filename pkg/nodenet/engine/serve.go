package engine

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rflandau/nodenet/pkg/nodenet"
)

// ErrNoReader is returned by Serve when it is not given anything to read from.
var ErrNoReader = errors.New("a transport reader is required")

// A Handler answers an inbound request.
// If ok, reply is sent back to the requester (truncated to the payload bound); otherwise the request is dropped unanswered.
// req is only valid for the duration of the call.
type Handler func(from nodenet.Addr, req []byte) (reply []byte, ok bool)

// rx is a single read off the transport.
type rx struct {
	b   []byte
	err error
}

// Serve drives the engine until ctx is done or rd fails.
// Bytes read from rd are fed to Receive, Tick is called every poll interval and each pending request is handed to h.
// If h is nil, pending requests are left for the caller to poll.
//
// Returns ctx.Err() on cancellation, nil if rd reaches EOF, and the read error otherwise.
//
// Serve reads from rd on a separate goroutine; that goroutine returns once its in-flight Read does.
// Transports should therefore time out their reads or be closed after ctx is cancelled.
func (e *Engine) Serve(ctx context.Context, rd io.Reader, h Handler) error {
	if ctx == nil {
		return nodenet.ErrNilCtx
	} else if rd == nil {
		return ErrNoReader
	}

	reads := make(chan rx)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := rd.Read(buf)
			var r rx
			if n > 0 {
				r.b = append([]byte(nil), buf[:n]...)
			}
			r.err = err
			if n == 0 && err == nil { // read timed out with nothing on the bus
				if ctx.Err() != nil {
					return
				}
				continue
			}
			select {
			case reads <- r:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(e.cfg.pollInterval)
	defer ticker.Stop()

	e.log.Info().Func(e.Zerolog).Msg("serving")
	for {
		select {
		case <-ctx.Done():
			e.log.Info().Err(ctx.Err()).Msg("stopped serving")
			return ctx.Err()
		case r := <-reads:
			if len(r.b) > 0 {
				for _, err := range e.Receive(r.b) {
					if !errors.Is(err, ErrNotForUs) {
						e.log.Debug().Err(err).Msg("line not accepted")
					}
				}
				e.answer(ctx, h)
			}
			if r.err != nil {
				if ctx.Err() != nil { // closing the transport is part of shutting down
					return ctx.Err()
				} else if errors.Is(r.err, io.EOF) {
					e.log.Info().Msg("transport closed")
					return nil
				}
				e.log.Error().Err(r.err).Msg("failed to read from transport")
				return r.err
			}
		case <-ticker.C:
			e.Tick(ctx, e.clock())
		}
	}
}

// answer hands every pending request to h.
func (e *Engine) answer(ctx context.Context, h Handler) {
	if h == nil {
		return
	}
	// each pass frees a slot, so the pool bounds the passes
	for range e.Capacity() {
		hdl, found := e.PollPendingRequest()
		if !found {
			return
		}
		pkt, err := e.Inspect(hdl)
		if err != nil { // the slot changed hands between poll and inspect
			continue
		}
		reply, ok := h(pkt.From, pkt.Payload)
		if !ok {
			if err := e.Drop(hdl); err != nil {
				e.log.Debug().Err(err).Int("slot", int(hdl)).Msg("failed to drop request")
			}
			continue
		}
		if err := e.ReplyWith(ctx, hdl, reply); err != nil {
			e.log.Warn().Err(err).Int("slot", int(hdl)).Msg("failed to reply")
		}
	}
}
