// Package nodenet is the parent package of the nodenet bus protocol.
// It contains child packages protocol (line framing and hex handling), pool (fixed-capacity packet slots), engine (retry/ack state machine) and transport (byte-stream collaborators).
// Child packages are mostly self-contained, the nodenet parent package provides the few shared definitions.
package nodenet

import (
	"errors"
	"time"
)

// Addr is the 8-bit identifier of a node on the bus.
// It is assigned to an engine before use and is never validated against a registry.
type Addr = uint8

// Defaults used by the engine when an option does not override them.
const (
	// DefaultPoolCapacity is the number of packet slots available to a node.
	DefaultPoolCapacity int = 4
	// DefaultMaxPayload is the largest payload (in bytes) a packet can carry.
	DefaultMaxPayload int = 30
	// DefaultMaxRetries is the number of transmissions a request gets before it is abandoned.
	DefaultMaxRetries uint8 = 2
	// DefaultTickInterval is the minimum time between two retransmission sweeps.
	DefaultTickInterval time.Duration = time.Second
)

// MaxPoolCapacity bounds the pool so that a free sequence number always exists.
const MaxPoolCapacity int = 255

var ErrNilCtx = errors.New("do not pass nil contexts; use context.TODO or context.Background instead")
