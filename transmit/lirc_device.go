package transmit

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"libdb.so/irrelay"
)

// ErrEmptyTrain is returned when there is no pulse to send.
var ErrEmptyTrain = errors.New("transmit: empty pulse train")

// LircDevice sends pulse trains through a Linux rc-core device such as
// /dev/lirc0, in LIRC_MODE_PULSE.
type LircDevice struct {
	mu         sync.Mutex
	file       *os.File
	setCarrier func(fd uintptr, hz int) error
	carrierHz  int
}

var _ irrelay.Transmitter = (*LircDevice)(nil)

// OpenLircDevice opens the lirc character device at path for writing.
func OpenLircDevice(path string) (*LircDevice, error) {
	if setSendCarrier == nil {
		return nil, fmt.Errorf("lirc devices are not supported on this platform: %w", errors.ErrUnsupported)
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("cannot open lirc device: %w", err)
	}
	return &LircDevice{file: f, setCarrier: setSendCarrier}, nil
}

// Transmit implements [irrelay.Transmitter]. The kernel expects an odd
// number of values, starting and ending with a pulse, so a trailing space is
// dropped.
func (d *LircDevice) Transmit(ctx context.Context, pulses []int, carrierHz int) error {
	if len(pulses)%2 == 0 && len(pulses) > 0 {
		pulses = pulses[:len(pulses)-1]
	}
	if len(pulses) == 0 {
		return ErrEmptyTrain
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if carrierHz != d.carrierHz {
		if err := d.setCarrier(d.file.Fd(), carrierHz); err != nil {
			return fmt.Errorf("cannot set carrier to %d Hz: %w", carrierHz, err)
		}
		d.carrierHz = carrierHz
	}

	return writePulses(d.file, pulses)
}

func writePulses(w io.Writer, pulses []int) error {
	buf := make([]byte, 4*len(pulses))
	for i, p := range pulses {
		if p < 0 {
			return fmt.Errorf("negative duration %d at %d", p, i)
		}
		binary.NativeEndian.PutUint32(buf[4*i:], uint32(p))
	}

	n, err := w.Write(buf)
	if err != nil {
		return fmt.Errorf("cannot write pulses: %w", err)
	}
	if n != len(buf) {
		return fmt.Errorf("wrote %d of %d bytes", n, len(buf))
	}
	return nil
}

// Close closes the device.
func (d *LircDevice) Close() error {
	return d.file.Close()
}
