package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rflandau/nodenet/pkg/nodenet/pool"
)

func (s *Server) handleStatus(_ context.Context, _ *struct{}) (*StatusResp, error) {
	st := s.eng.Stats()
	resp := &StatusResp{}
	resp.Body = Status{
		Address:    s.eng.LocalAddress(),
		Capacity:   s.eng.Capacity(),
		InUse:      st.InUse,
		MaxPayload: s.eng.MaxPayload(),
	}
	return resp, nil
}

func (s *Server) handleSlots(_ context.Context, _ *struct{}) (*SlotsResp, error) {
	snap := s.eng.Snapshot()
	resp := &SlotsResp{}
	resp.Body.Slots = make([]Slot, len(snap))
	for i, si := range snap {
		resp.Body.Slots[i] = Slot{
			Handle:  int(si.Handle),
			To:      si.To,
			From:    si.From,
			Kind:    si.Kind.String(),
			Seq:     si.Seq,
			Retries: si.Retries,
			Payload: string(si.Payload),
		}
	}
	return resp, nil
}

func (s *Server) handleSend(_ context.Context, req *SendReq) (*SendResp, error) {
	if err := s.eng.Submit(req.Body.To, []byte(req.Body.Payload)); err != nil {
		if errors.Is(err, pool.ErrFull) {
			return nil, huma.Error503ServiceUnavailable("packet pool is full; try again once in-flight requests settle")
		}
		s.log.Warn().Err(err).Uint8("to", req.Body.To).Msg("failed to submit request")
		return nil, huma.Error500InternalServerError("failed to submit request", err)
	}
	s.log.Debug().Uint8("to", req.Body.To).Int("payload length", len(req.Body.Payload)).Msg("request queued")
	resp := &SendResp{}
	resp.Body.Queued = true
	return resp, nil
}

func (s *Server) handleStats(_ context.Context, _ *struct{}) (*StatsResp, error) {
	return &StatsResp{Body: s.eng.Stats()}, nil
}
