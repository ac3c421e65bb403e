package transmit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"libdb.so/irrelay"
)

// DefaultAckTimeout is how long a serial blaster gets to confirm a
// transmission.
const DefaultAckTimeout = 2 * time.Second

var (
	// ErrAckTimeout is returned when the blaster does not answer in time.
	ErrAckTimeout = errors.New("transmit: no acknowledgement from blaster")
	// ErrRejected is returned when the blaster answers with an error line.
	ErrRejected = errors.New("transmit: blaster rejected pulse train")
)

// Port is the part of a serial port the blaster protocol needs.
type Port interface {
	io.ReadWriter
	io.Closer
}

// PortOptions describes how to open the serial port of a blaster.
type PortOptions struct {
	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	StopBits int    `yaml:"stop_bits"`
	Parity   string `yaml:"parity"`
}

// Normalize validates the options and fills in defaults for unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = 115200
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	switch strings.TrimSpace(strings.ToUpper(opts.Parity)) {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}

	return opts, nil
}

// SerialMode converts the options into a go.bug.st/serial mode.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	}
	return mode, nil
}

// Serial drives an IR blaster attached to a serial port, typically a
// microcontroller with an IR LED. Each transmission is one line:
//
//	<carrier Hz> <pulse> <space> <pulse> ...\n
//
// answered by "OK" or "ERR <reason>".
type Serial struct {
	mu         sync.Mutex
	port       Port
	ackTimeout time.Duration
	pending    []byte
}

var _ irrelay.Transmitter = (*Serial)(nil)

// OpenSerial opens the blaster on the serial port at path.
func OpenSerial(path string, opts PortOptions, ackTimeout time.Duration) (*Serial, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("cannot open serial port %s: %w", path, err)
	}

	// Reads return early so the acknowledgement deadline can be honored.
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("cannot set serial read timeout: %w", err)
	}

	return NewSerial(port, ackTimeout), nil
}

// NewSerial drives a blaster on an already open port.
func NewSerial(port Port, ackTimeout time.Duration) *Serial {
	if ackTimeout <= 0 {
		ackTimeout = DefaultAckTimeout
	}
	return &Serial{port: port, ackTimeout: ackTimeout}
}

// Transmit implements [irrelay.Transmitter].
func (s *Serial) Transmit(ctx context.Context, pulses []int, carrierHz int) error {
	if len(pulses) == 0 {
		return ErrEmptyTrain
	}

	line := strconv.Itoa(carrierHz) + " " + formatTrain(pulses) + "\n"

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = s.pending[:0]
	if _, err := io.WriteString(s.port, line); err != nil {
		return fmt.Errorf("cannot write to blaster: %w", err)
	}

	ack, err := s.readLine(ctx, time.Now().Add(s.ackTimeout))
	if err != nil {
		return err
	}

	switch {
	case ack == "OK":
		return nil
	case strings.HasPrefix(ack, "ERR"):
		return fmt.Errorf("%w: %s", ErrRejected, strings.TrimSpace(strings.TrimPrefix(ack, "ERR")))
	default:
		return fmt.Errorf("unexpected reply from blaster: %q", ack)
	}
}

func (s *Serial) readLine(ctx context.Context, deadline time.Time) (string, error) {
	buf := make([]byte, 64)
	for {
		if i := bytes.IndexByte(s.pending, '\n'); i >= 0 {
			line := strings.TrimSpace(string(s.pending[:i]))
			s.pending = s.pending[i+1:]
			return line, nil
		}

		if err := ctx.Err(); err != nil {
			return "", err
		}
		if time.Now().After(deadline) {
			return "", ErrAckTimeout
		}

		// A read timeout shows up as zero bytes and no error.
		n, err := s.port.Read(buf)
		s.pending = append(s.pending, buf[:n]...)
		if err != nil {
			return "", fmt.Errorf("cannot read from blaster: %w", err)
		}
	}
}

// Close closes the serial port.
func (s *Serial) Close() error {
	return s.port.Close()
}
