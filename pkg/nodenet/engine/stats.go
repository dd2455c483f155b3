package engine

import "github.com/rs/zerolog"

// Stats are the running counters of an engine.
// Counters only ever increase; InUse is sampled when Stats is called.
type Stats struct {
	Submitted     uint64 `json:"submitted"`     // requests accepted by Submit
	DroppedFull   uint64 `json:"dropped_full"`  // requests (outbound or inbound) dropped on a full pool
	Sent          uint64 `json:"sent"`          // frames written, including failed writes
	Retransmitted uint64 `json:"retransmitted"` // request transmissions after the first
	Expired       uint64 `json:"expired"`       // requests freed after exhausting their retries
	Acked         uint64 `json:"acked"`         // outbound requests freed by an ack
	Received      uint64 `json:"received"`      // well-formed lines
	Rejected      uint64 `json:"rejected"`      // malformed lines
	NotForUs      uint64 `json:"not_for_us"`    // well-formed lines addressed elsewhere
	Replied       uint64 `json:"replied"`       // acks built by Reply
	Replayed      uint64 `json:"replayed"`      // acks resent from the duplicate window
	Duplicates    uint64 `json:"duplicates"`    // inbound requests dropped as duplicates
	WriteErrors   uint64 `json:"write_errors"`  // failed transport writes
	InUse         int    `json:"in_use"`        // occupied slots
}

// Zerolog attaches the counters to the given log event.
// Intended to be given to *zerolog.Event.Func().
func (s Stats) Zerolog(ev *zerolog.Event) {
	ev.Uint64("submitted", s.Submitted).
		Uint64("dropped full", s.DroppedFull).
		Uint64("sent", s.Sent).
		Uint64("retransmitted", s.Retransmitted).
		Uint64("expired", s.Expired).
		Uint64("acked", s.Acked).
		Uint64("received", s.Received).
		Uint64("rejected", s.Rejected).
		Uint64("not for us", s.NotForUs).
		Uint64("replied", s.Replied).
		Uint64("replayed", s.Replayed).
		Uint64("duplicates", s.Duplicates).
		Uint64("write errors", s.WriteErrors).
		Int("in use", s.InUse)
}
