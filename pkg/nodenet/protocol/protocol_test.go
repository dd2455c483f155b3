package protocol_test

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/Pallinder/go-randomdata"
	. "github.com/rflandau/nodenet/internal/testsupport"
	"github.com/rflandau/nodenet/pkg/nodenet"
	"github.com/rflandau/nodenet/pkg/nodenet/protocol"
)

// Every byte must survive an encode/decode cycle and encode to upper case digits.
func TestHex_RoundTrip(t *testing.T) {
	for v := range 256 {
		enc := protocol.EncodeHex(byte(v))
		want := strconv.FormatUint(uint64(v), 16)
		if len(want) == 1 {
			want = "0" + want
		}
		want = string(bytes.ToUpper([]byte(want)))
		if string(enc[:]) != want {
			t.Error("bad encoding", ExpectedActual(want, string(enc[:])))
		}
		if dec := protocol.DecodeHex(enc[0], enc[1]); dec != byte(v) {
			t.Error("bad decoding", ExpectedActual(byte(v), dec))
		}
	}
}

// Characters outside of the alphabet count as zero for their nibble.
func TestHex_Lenient(t *testing.T) {
	tests := []struct {
		hi, lo byte
		want   byte
	}{
		{'Z', 'Z', 0x00},
		{'a', 'f', 0x00},
		{'F', 'x', 0xF0},
		{'-', '7', 0x07},
		{' ', 'A', 0x0A},
		{'9', 0, 0x90},
	}
	for _, tt := range tests {
		t.Run(string([]byte{tt.hi, tt.lo}), func(t *testing.T) {
			if got := protocol.DecodeHex(tt.hi, tt.lo); got != tt.want {
				t.Error("bad decoding", ExpectedActual(tt.want, got))
			}
		})
	}
}

func TestHeader_Serialize(t *testing.T) {
	tests := []struct {
		name string
		hdr  protocol.Header
		want string
	}{
		{"zero request", protocol.Header{Kind: protocol.Request}, "t00f00pN00:"},
		{"request", protocol.Header{To: 0x02, From: 0x01, Kind: protocol.Request, Seq: 0x05}, "t02f01pN05:"},
		{"ack", protocol.Header{To: 0xAB, From: 0xCD, Kind: protocol.Ack, Seq: 0xFF}, "tABfCDpAFF:"},
		{"unknown kind is written verbatim", protocol.Header{To: 1, From: 1, Kind: 'Q', Seq: 1}, "t01f01pQ01:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.hdr.Serialize()
			if len(got) != protocol.HeaderLen {
				t.Fatal("incorrect header length", ExpectedActual(protocol.HeaderLen, len(got)))
			}
			if string(got) != tt.want {
				t.Error("bad header", ExpectedActual(tt.want, string(got)))
			}
		})
	}
}

func TestEncode(t *testing.T) {
	got := protocol.Encode(protocol.Header{To: 0x02, From: 0x01, Kind: protocol.Request, Seq: 0x3C}, []byte("hi"))
	if string(got) != "t02f01pN3C:hi" {
		t.Error("bad line", ExpectedActual("t02f01pN3C:hi", string(got)))
	}
	// empty payloads leave only the header
	got = protocol.Encode(protocol.Header{To: 0x02, From: 0x01, Kind: protocol.Ack, Seq: 0x05}, nil)
	if string(got) != "t02f01pA05:" {
		t.Error("bad line", ExpectedActual("t02f01pA05:", string(got)))
	}
}

// Tests that anything we encode within bounds comes back out identically.
func TestDecode_RoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		[]byte("ping"),
		[]byte(randomdata.SillyName()),
		[]byte("0123456789012345678901234567890"[:nodenet.DefaultMaxPayload]),
		{0x00, 0x7F, 0xFF, ':', 't'},
	}
	for i := range 64 {
		hdr := protocol.Header{
			To:   uint8(rand.UintN(256)),
			From: uint8(rand.UintN(256)),
			Kind: protocol.Request,
			Seq:  uint8(rand.UintN(256)),
		}
		if i%2 == 1 {
			hdr.Kind = protocol.Ack
		}
		payload := payloads[i%len(payloads)]
		if len(payload) > nodenet.DefaultMaxPayload {
			payload = payload[:nodenet.DefaultMaxPayload]
		}

		pkt, err := protocol.Decode(protocol.Encode(hdr, payload), nodenet.DefaultMaxPayload)
		if err != nil {
			t.Fatalf("failed to decode %+v: %v", hdr, err)
		}
		if pkt.Header != hdr {
			t.Error("header mismatch", ExpectedActual(hdr, pkt.Header))
		}
		if !bytes.Equal(pkt.Payload, payload) {
			t.Error("payload mismatch", ExpectedActual(payload, pkt.Payload))
		}
	}
}

func TestDecode_Truncates(t *testing.T) {
	long := randomdata.Paragraph()
	for len(long) <= 2*nodenet.DefaultMaxPayload {
		long += randomdata.Paragraph()
	}
	line := append([]byte("t01f02pN05:"), long...)

	pkt, err := protocol.Decode(line, nodenet.DefaultMaxPayload)
	if err != nil {
		t.Fatal(err)
	}
	if string(pkt.Payload) != long[:nodenet.DefaultMaxPayload] {
		t.Error("payload was not truncated", ExpectedActual(long[:nodenet.DefaultMaxPayload], string(pkt.Payload)))
	}
	// the decoded payload must not alias the input line
	line[protocol.HeaderLen] ^= 0xFF
	if pkt.Payload[0] == line[protocol.HeaderLen] {
		t.Error("payload aliases the input line")
	}
	// negative bound disables truncation
	if pkt, err := protocol.Decode(line, -1); err != nil {
		t.Fatal(err)
	} else if len(pkt.Payload) != len(long) {
		t.Error("payload was truncated", ExpectedActual(len(long), len(pkt.Payload)))
	}
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		line string
		want error
	}{
		{"", protocol.ErrShortLine},
		{"t01f02pN05", protocol.ErrShortLine},
		{"x01f02pN05:ping", protocol.ErrMarkerTo},
		{"t01x02pN05:ping", protocol.ErrMarkerFrom},
		{"t01f02xN05:ping", protocol.ErrMarkerPacket},
		{"t01f02pX05:ping", protocol.ErrBadKind},
		{"t01f02pn05:ping", protocol.ErrBadKind},
		{"t01f02pN05;ping", protocol.ErrMarkerPayload},
		// earlier markers win
		{"x01x02xX05;ping", protocol.ErrMarkerTo},
		{"t01f02xX05;ping", protocol.ErrMarkerPacket},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			pkt, err := protocol.Decode([]byte(tt.line), nodenet.DefaultMaxPayload)
			if !errors.Is(err, protocol.ErrRejected) {
				t.Error("expected a rejection", ExpectedActual(protocol.ErrRejected, err))
			}
			if !errors.Is(err, tt.want) {
				t.Error("incorrect reason", ExpectedActual(tt.want, err))
			}
			if pkt.Kind != 0 || pkt.Payload != nil {
				t.Error("rejected decode returned a partial packet", ExpectedActual(protocol.Packet{}, pkt))
			}
		})
	}
}

// Non-hex digits in numeric fields are accepted and read as zero nibbles.
func TestDecode_LenientFields(t *testing.T) {
	pkt, err := protocol.Decode([]byte("tz1f0gpAQQ:"), nodenet.DefaultMaxPayload)
	if err != nil {
		t.Fatal(err)
	}
	want := protocol.Header{To: 0x01, From: 0x00, Kind: protocol.Ack, Seq: 0x00}
	if pkt.Header != want {
		t.Error("bad header", ExpectedActual(want, pkt.Header))
	}
	if len(pkt.Payload) != 0 {
		t.Error("expected empty payload", ExpectedActual(0, len(pkt.Payload)))
	}
}

func TestKind_String(t *testing.T) {
	if protocol.Request.String() != "REQUEST" || protocol.Ack.String() != "ACK" || protocol.Kind('x').String() != "UNKNOWN" {
		t.Error("bad kind strings")
	}
}
