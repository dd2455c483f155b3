package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/rflandau/nodenet/pkg/nodenet"
)

var (
	// ErrNoWriter is returned by New when no transport writer is given.
	ErrNoWriter = errors.New("a transport writer is required")
	// ErrNotForUs indicates a well-formed line addressed to another node.
	// Every node on the bus sees every frame, so this is routine.
	ErrNotForUs = errors.New("packet is addressed to another node")
	// ErrNotRequest is returned when replying to a slot that is not an inbound request.
	ErrNotRequest = errors.New("slot is not an inbound request")
	// ErrDuplicate indicates an inbound request that is already pending or was recently answered.
	ErrDuplicate = errors.New("duplicate request")
)

// ErrBadRetries returns an error to indicate an unusable retry limit.
func ErrBadRetries(n uint8) error {
	return fmt.Errorf("max retries must be >= 1 (given %d)", n)
}

// ErrBadDuration returns an error to indicate that the named duration option is negative.
func ErrBadDuration(name string, d time.Duration) error {
	return fmt.Errorf("%s must be >= 0 (given %v)", name, d)
}

// errNotForUs wraps ErrNotForUs with the addresses involved.
func errNotForUs(to, local nodenet.Addr) error {
	return fmt.Errorf("%w (to %02X, local %02X)", ErrNotForUs, to, local)
}
