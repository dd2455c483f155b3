/*
Package protocol contains tools for interacting with the nodenet line header.

A packet travels as a single line of ASCII:

	t<TO><TO>f<FROM><FROM>p<KIND><SEQ><SEQ>:<payload>

followed by a newline that is written by the send path, not by this package.
Addresses and sequence numbers are 2 upper case hex digits; the payload is raw and unescaped.
You should never have to touch offsets yourself; compose a Header and call Encode, or Decode a received line.
*/
package protocol

import (
	"errors"
	"fmt"

	"github.com/rflandau/nodenet/pkg/nodenet"
	"github.com/rs/zerolog"
)

// HeaderLen is the length (in bytes) of the fixed line header, including the payload separator.
const HeaderLen int = 11

// offsets of the literal markers within the header
const (
	offTo      = 0
	offFrom    = 3
	offPacket  = 6
	offKind    = 7
	offSeq     = 8
	offPayload = 10
)

// marker bytes
const (
	markTo      byte = 't'
	markFrom    byte = 'f'
	markPacket  byte = 'p'
	markPayload byte = ':'
)

// Kind identifies what a packet is for.
type Kind byte

const (
	// Request packets expect an acknowledgment and are retransmitted until they get one (or give up).
	Request Kind = 'N'
	// Ack packets are sent exactly once and satisfy the Request with the same peer and sequence number.
	Ack Kind = 'A'
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case Request:
		return "REQUEST"
	case Ack:
		return "ACK"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether k is one of the enumerated kinds.
func (k Kind) Valid() bool {
	return k == Request || k == Ack
}

//#region errors

// ErrRejected is wrapped by every decode failure.
var ErrRejected = errors.New("line rejected")

var (
	ErrShortLine     = errors.New("line is shorter than the fixed header")
	ErrMarkerTo      = errors.New("expected 't' at offset 0")
	ErrMarkerFrom    = errors.New("expected 'f' at offset 3")
	ErrMarkerPacket  = errors.New("expected 'p' at offset 6")
	ErrBadKind       = errors.New("kind at offset 7 must be 'N' or 'A'")
	ErrMarkerPayload = errors.New("expected ':' at offset 10")
)

func reject(err error) error {
	return fmt.Errorf("%w: %w", ErrRejected, err)
}

//#endregion errors

// A Header represents a deconstructed packet header.
type Header struct {
	To   nodenet.Addr // destination
	From nodenet.Addr // source
	Kind Kind
	Seq  uint8 // correlates an ack to the request it satisfies
}

// Serialize returns the HeaderLen bytes of hdr as they appear on the wire.
//
// NOTE: does not validate Kind; an unknown kind is written verbatim.
func (hdr *Header) Serialize() []byte {
	return hdr.AppendTo(make([]byte, 0, HeaderLen))
}

// AppendTo appends the serialized header to dst.
func (hdr *Header) AppendTo(dst []byte) []byte {
	dst = append(dst, markTo)
	dst = AppendHex(dst, hdr.To)
	dst = append(dst, markFrom)
	dst = AppendHex(dst, hdr.From)
	dst = append(dst, markPacket, byte(hdr.Kind))
	dst = AppendHex(dst, hdr.Seq)
	return append(dst, markPayload)
}

// Zerolog attaches header's fields to the given log event.
// Intended to be given to *zerolog.Event.Func().
func (hdr *Header) Zerolog(ev *zerolog.Event) {
	ev.Uint8("to", hdr.To).
		Uint8("from", hdr.From).
		Str("kind", hdr.Kind.String()).
		Uint8("seq", hdr.Seq)
}

// A Packet is a header and its payload.
type Packet struct {
	Header
	Payload []byte
}

// Encode returns the line for the given header and payload, without the line terminator.
// The payload is copied as-is.
func Encode(hdr Header, payload []byte) []byte {
	out := make([]byte, 0, HeaderLen+len(payload))
	out = hdr.AppendTo(out)
	return append(out, payload...)
}

// Decode parses a line (without its terminator) into a Packet.
// Markers are checked in wire order and the first mismatch rejects the line; on error the returned Packet is empty.
// Payload bytes beyond maxPayload are silently dropped.
// A maxPayload < 0 disables truncation.
func Decode(line []byte, maxPayload int) (Packet, error) {
	if len(line) < HeaderLen {
		return Packet{}, reject(ErrShortLine)
	}
	if line[offTo] != markTo {
		return Packet{}, reject(ErrMarkerTo)
	}
	if line[offFrom] != markFrom {
		return Packet{}, reject(ErrMarkerFrom)
	}
	if line[offPacket] != markPacket {
		return Packet{}, reject(ErrMarkerPacket)
	}
	kind := Kind(line[offKind])
	if !kind.Valid() {
		return Packet{}, reject(ErrBadKind)
	}
	if line[offPayload] != markPayload {
		return Packet{}, reject(ErrMarkerPayload)
	}

	body := line[HeaderLen:]
	if maxPayload >= 0 && len(body) > maxPayload {
		body = body[:maxPayload]
	}
	pkt := Packet{
		Header: Header{
			To:   DecodeHex(line[offTo+1], line[offTo+2]),
			From: DecodeHex(line[offFrom+1], line[offFrom+2]),
			Kind: kind,
			Seq:  DecodeHex(line[offSeq], line[offSeq+1]),
		},
		Payload: make([]byte, len(body)),
	}
	copy(pkt.Payload, body)
	return pkt, nil
}
