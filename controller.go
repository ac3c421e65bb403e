package irrelay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Transmitter replays a pulse train as a carrier-modulated infrared signal.
type Transmitter interface {
	Transmit(ctx context.Context, pulses []int, carrierHz int) error
}

// Outcome is the result of handling a command.
type Outcome uint8

const (
	// Transmitted means the command was admitted, staged and sent.
	Transmitted Outcome = iota
	// Rejected means the sequence number was not newer than the last
	// admitted one. Nothing was staged.
	Rejected
	// Overflowed means the command was admitted but its pulse train did not
	// fit the buffer. Nothing was sent.
	Overflowed
)

// String implements [fmt.Stringer].
func (o Outcome) String() string {
	switch o {
	case Transmitted:
		return "transmitted"
	case Rejected:
		return "rejected"
	case Overflowed:
		return "overflowed"
	default:
		return fmt.Sprintf("Outcome(%d)", uint8(o))
	}
}

// Observer is notified of every handled command.
type Observer interface {
	ObserveCommand(cmd Command, outcome Outcome, err error)
}

// Controller admits commands, stages their pulses and hands them to a
// transmitter. Each command runs to completion before the next one is
// considered.
type Controller struct {
	mu        sync.Mutex
	seq       Sequencer
	buf       *PulseBuffer
	tx        Transmitter
	carrierHz int
	logger    *slog.Logger
	observer  Observer
}

// ControllerOption configures a [Controller].
type ControllerOption func(*Controller)

// WithCarrier overrides the [CarrierHz] default.
func WithCarrier(hz int) ControllerOption {
	return func(c *Controller) { c.carrierHz = hz }
}

// WithCapacity overrides the [BufferCapacity] default.
func WithCapacity(capacity int) ControllerOption {
	return func(c *Controller) { c.buf = NewPulseBuffer(capacity) }
}

// WithObserver registers an observer, typically a metrics collector.
func WithObserver(o Observer) ControllerOption {
	return func(c *Controller) { c.observer = o }
}

// NewController creates a controller sending through tx.
func NewController(tx Transmitter, logger *slog.Logger, opts ...ControllerOption) *Controller {
	c := &Controller{
		buf:       NewPulseBuffer(BufferCapacity),
		tx:        tx,
		carrierHz: CarrierHz,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle admits, stages and transmits cmd. Stale commands and oversized
// pulse trains are reported through the outcome, not as errors; the error is
// only set when the transmitter fails.
func (c *Controller) Handle(ctx context.Context, cmd Command) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	outcome, err := c.handle(ctx, cmd)
	if c.observer != nil {
		c.observer.ObserveCommand(cmd, outcome, err)
	}
	return outcome, err
}

func (c *Controller) handle(ctx context.Context, cmd Command) (Outcome, error) {
	logger := c.logger.With("sequence", cmd.Sequence)

	if !c.seq.Accept(cmd.Sequence) {
		logger.DebugContext(ctx,
			"ignoring stale command",
			"last", c.seq.Last())
		return Rejected, nil
	}

	n, overflow := c.buf.Load(cmd.Data)
	if overflow {
		logger.WarnContext(ctx,
			"command buffer overflow, dropping command",
			"pulses", len(cmd.Data),
			"capacity", c.buf.Cap())
		return Overflowed, nil
	}

	logger.InfoContext(ctx,
		"transmitting command",
		"pulses", n)

	if err := c.tx.Transmit(ctx, c.buf.Pulses(), c.carrierHz); err != nil {
		return Transmitted, fmt.Errorf("cannot transmit command %d: %w", cmd.Sequence, err)
	}
	return Transmitted, nil
}

// Status reports the last admitted sequence number.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{LastCommandSequenceNumber: c.seq.Last()}
}
