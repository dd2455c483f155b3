package transport

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

// DefaultReadTimeout bounds a single Read on a serial port so readers can notice cancellation.
const DefaultReadTimeout time.Duration = 100 * time.Millisecond

// Serial is a node's connection to the bus through a serial port, framed 8N1.
// Read returns (0, nil) if nothing arrived within the read timeout.
type Serial struct {
	idleTracker
	name string
	port serial.Port
	log  zerolog.Logger
}

// Open opens the named port at the given baud rate.
// quiet is the silence required before WaitIdle returns; 0 uses DefaultQuietPeriod.
func Open(name string, baud int, quiet time.Duration, l *zerolog.Logger) (*Serial, error) {
	if baud <= 0 {
		return nil, fmt.Errorf("baud rate must be > 0 (given %d)", baud)
	}
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	if err := port.SetReadTimeout(DefaultReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", name, err)
	}
	// anything buffered before we arrived is a partial frame at best
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to reset input buffer of %s: %w", name, err)
	}

	s := &Serial{name: name, port: port}
	s.quiet = quiet
	if l != nil {
		s.log = l.With().Str("port", name).Logger()
	} else {
		s.log = zerolog.Nop()
	}
	s.log.Info().Int("baud", baud).Dur("quiet", quiet).Msg("serial port opened")
	return s, nil
}

// Read reads whatever bytes the port has, waiting at most DefaultReadTimeout.
func (s *Serial) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if n > 0 {
		s.touch()
	}
	return n, err
}

// Write writes p to the port.
func (s *Serial) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

// Close closes the port.
func (s *Serial) Close() error {
	s.log.Info().Msg("closing serial port")
	return s.port.Close()
}

// Name returns the name the port was opened with.
func (s *Serial) Name() string {
	return s.name
}

// Ports lists the serial ports present on the host.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}
