package engine

import (
	"context"
	"fmt"

	"github.com/rflandau/nodenet/pkg/nodenet/pool"
	"github.com/rflandau/nodenet/pkg/nodenet/protocol"
)

// File handlers.go contains the inbound half of the engine: line accumulation and packet dispatch.

// Receive consumes raw bytes read off the bus.
// Every newline completes a line, which is decoded and dispatched before the line buffer is cleared.
// A carriage return immediately before the newline is ignored, as are empty lines.
// Bytes that would grow a line past the longest valid frame are discarded.
//
// Returns one error for each completed line that was not accepted.
// None of them are fatal; callers that do not care may discard the slice.
func (e *Engine) Receive(b []byte) (errs []error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, c := range b {
		if c != '\n' {
			if len(e.line) < cap(e.line) {
				e.line = append(e.line, c)
			}
			continue
		}
		line := e.line
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		if len(line) > 0 {
			if err := e.dispatch(line); err != nil {
				errs = append(errs, err)
			}
		}
		e.line = e.line[:0]
	}
	return errs
}

// dispatch decodes a single line and acts on it.
// Caller must hold mu.
func (e *Engine) dispatch(line []byte) error {
	pkt, err := protocol.Decode(line, e.cfg.maxPayload)
	if err != nil {
		e.stats.Rejected++
		e.log.Debug().Err(err).Bytes("line", line).Msg("rejected line")
		return err
	}
	e.stats.Received++
	if pkt.To != e.local {
		e.stats.NotForUs++
		return errNotForUs(pkt.To, e.local)
	}
	e.log.Debug().Func(pkt.Zerolog).Msg("packet received")

	switch pkt.Kind {
	case protocol.Ack:
		e.handleAck(pkt)
		return nil
	default:
		return e.handleRequest(pkt)
	}
}

// handleAck frees every outbound request the ack satisfies.
// Caller must hold mu.
func (e *Engine) handleAck(pkt protocol.Packet) {
	matches := e.pool.FindBySequence(pkt.From, pkt.Seq)
	switch len(matches) {
	case 0:
		e.log.Debug().Func(pkt.Zerolog).Msg("ack matches no pending request")
		return
	case 1:
	default:
		e.log.Debug().Func(pkt.Zerolog).Int("matches", len(matches)).Msg("ack satisfies multiple requests")
	}
	for _, h := range matches {
		e.pool.Free(h)
	}
	e.stats.Acked += uint64(len(matches))
}

// handleRequest stores an inbound request for the application to poll.
// Caller must hold mu.
func (e *Engine) handleRequest(pkt protocol.Packet) error {
	if e.answered != nil {
		key := peerSeq{pkt.From, pkt.Seq}
		if reply, found := e.answered.Load(key); found {
			// our ack was lost; send it again instead of surfacing the request twice
			e.stats.Duplicates++
			e.stats.Replayed++
			hdr := protocol.Header{To: pkt.From, From: e.local, Kind: protocol.Ack, Seq: pkt.Seq}
			e.writeLine(context.Background(), append(protocol.Encode(hdr, reply), '\n'))
			e.log.Debug().Func(hdr.Zerolog).Msg("replayed ack for answered request")
			return fmt.Errorf("%w (answered; from %02X, seq %02X)", ErrDuplicate, pkt.From, pkt.Seq)
		}
		if e.pending(pkt.Header) {
			e.stats.Duplicates++
			return fmt.Errorf("%w (pending; from %02X, seq %02X)", ErrDuplicate, pkt.From, pkt.Seq)
		}
	}

	h, err := e.pool.Allocate()
	if err != nil {
		e.stats.DroppedFull++
		e.log.Debug().Func(pkt.Zerolog).Msg("pool full; inbound request dropped")
		return fmt.Errorf("inbound request from %02X dropped: %w", pkt.From, err)
	}
	s := e.pool.Slot(h)
	s.To = pkt.To
	s.From = pkt.From
	s.Kind = pkt.Kind
	s.Seq = pkt.Seq
	s.Retries = 0
	s.Payload.Set(pkt.Payload)
	return nil
}

// pending reports whether an identical inbound request already awaits a reply.
// Caller must hold mu.
func (e *Engine) pending(hdr protocol.Header) (found bool) {
	e.pool.Range(func(_ pool.Handle, s *pool.Slot) bool {
		if s.Kind == protocol.Request && s.To == hdr.To && s.From == hdr.From && s.Seq == hdr.Seq {
			found = true
		}
		return !found
	})
	return found
}

// Drop frees the inbound request in slot h without answering it.
// The sender will retransmit until it runs out of retries.
func (e *Engine) Drop(h pool.Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.pool.Get(h)
	if err != nil {
		return err
	}
	if s.Kind != protocol.Request || s.To != e.local {
		return ErrNotRequest
	}
	e.pool.Free(h)
	return nil
}
