package engine

import (
	"context"
	"errors"

	"github.com/rflandau/nodenet/pkg/nodenet/pool"
	"github.com/rflandau/nodenet/pkg/nodenet/protocol"
)

// transmit writes slot h to the bus and applies the post-send policy:
// acks are freed immediately, requests have their retry count bumped and are freed once it reaches the limit.
// Caller must hold mu.
func (e *Engine) transmit(ctx context.Context, h pool.Handle) {
	s := e.pool.Slot(h)
	if s == nil || !s.InUse() {
		return
	}
	line := protocol.Encode(s.Header(), s.Payload.Bytes())
	e.writeLine(ctx, append(line, '\n'))

	switch s.Kind {
	case protocol.Request:
		if s.Retries > 0 {
			e.stats.Retransmitted++
		}
		s.Retries++
		if s.Retries >= e.cfg.maxRetries {
			e.log.Debug().Int("slot", int(h)).Func(s.Zerolog).Msg("request out of retries; freeing")
			e.stats.Expired++
			e.pool.Free(h)
		}
	default: // acks are fire once
		e.pool.Free(h)
	}
}

// writeLine waits (boundedly) for the bus to go idle, then writes the full line in a single call.
// Failures are logged and counted but never returned; the protocol recovers through retransmission.
// Caller must hold mu.
func (e *Engine) writeLine(ctx context.Context, line []byte) {
	if iw, ok := e.w.(IdleWaiter); ok && e.cfg.busIdleTimeout > 0 {
		wctx, cancel := context.WithTimeout(ctx, e.cfg.busIdleTimeout)
		if err := iw.WaitIdle(wctx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				e.log.Debug().Dur("timeout", e.cfg.busIdleTimeout).Msg("bus did not go idle; sending anyway")
			} else {
				e.log.Debug().Err(err).Msg("failed to wait for an idle bus")
			}
		}
		cancel()
	}

	e.stats.Sent++
	if n, err := e.w.Write(line); err != nil {
		e.stats.WriteErrors++
		e.log.Warn().Err(err).Int("written", n).Int("length", len(line)).Msg("failed to write line")
		return
	}
	e.log.Trace().Bytes("line", line[:len(line)-1]).Msg("line written")
}
