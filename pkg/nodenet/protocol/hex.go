package protocol

// File hex.go converts single bytes to and from their 2-character wire representation.
// encoding/hex is not used: the wire requires upper case digits and decoding must never fail.

const hexAlphabet = "0123456789ABCDEF"

// EncodeHex returns v as two upper case hex digits, most-significant nibble first.
func EncodeHex(v byte) [2]byte {
	return [2]byte{hexAlphabet[v>>4], hexAlphabet[v&0x0F]}
}

// AppendHex appends the two hex digits of v to dst.
func AppendHex(dst []byte, v byte) []byte {
	h := EncodeHex(v)
	return append(dst, h[0], h[1])
}

// DecodeHex returns the byte represented by the digits hi and lo.
// A character outside of the alphabet (lower case included) counts as 0 for its nibble.
func DecodeHex(hi, lo byte) byte {
	return nibble(hi)<<4 | nibble(lo)
}

func nibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}
