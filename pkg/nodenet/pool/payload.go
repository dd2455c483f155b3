package pool

// A Payload is the bounded data buffer of a slot.
// Its capacity is fixed when the pool is built; writes beyond it are silently truncated.
//
// A Payload borrowed through the engine is only valid until the slot is replied to or freed.
type Payload struct {
	buf []byte // len is the payload length, cap is the bound
}

// Bytes returns the current payload.
// The slice aliases the slot; copy it if it must outlive the slot.
func (p *Payload) Bytes() []byte {
	return p.buf
}

// String returns the payload as a string.
func (p *Payload) String() string {
	return string(p.buf)
}

// Len returns the payload length in bytes.
func (p *Payload) Len() int {
	return len(p.buf)
}

// Cap returns the largest payload the buffer can hold.
func (p *Payload) Cap() int {
	return cap(p.buf)
}

// Set overwrites the payload with b, keeping at most Cap() bytes.
func (p *Payload) Set(b []byte) (truncated bool) {
	if len(b) > cap(p.buf) {
		b, truncated = b[:cap(p.buf)], true
	}
	p.buf = append(p.buf[:0], b...)
	return truncated
}

// Reset empties the payload.
func (p *Payload) Reset() {
	p.buf = p.buf[:0]
}
