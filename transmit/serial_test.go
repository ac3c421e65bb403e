package transmit_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"go.bug.st/serial"
	"libdb.so/irrelay/transmit"
)

// fakeBlaster answers every written line with the next queued reply, split
// across reads the way a slow UART delivers it.
type fakeBlaster struct {
	mu      sync.Mutex
	written bytes.Buffer
	replies []string
	out     []byte
	closed  bool
}

func (f *fakeBlaster) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written.Write(p)
	if len(f.replies) > 0 {
		f.out = append(f.out, f.replies[0]...)
		f.replies = f.replies[1:]
	}
	return len(p), nil
}

func (f *fakeBlaster) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.out) == 0 {
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	n := copy(p[:min(len(p), 2)], f.out)
	f.out = f.out[n:]
	return n, nil
}

func (f *fakeBlaster) Close() error {
	f.closed = true
	return nil
}

func TestSerialTransmit(t *testing.T) {
	port := &fakeBlaster{replies: []string{"OK\r\n", "ERR too long\n", "HUH\n"}}
	s := transmit.NewSerial(port, time.Second)
	ctx := context.Background()

	assert.NoError(t, s.Transmit(ctx, []int{4300, 4300, 562}, 38000))
	assert.Equal(t, "38000 4300 4300 562\n", port.written.String())

	err := s.Transmit(ctx, []int{562}, 38000)
	assert.IsError(t, err, transmit.ErrRejected)
	assert.Contains(t, err.Error(), "too long")

	err = s.Transmit(ctx, []int{562}, 38000)
	assert.EqualError(t, err, `unexpected reply from blaster: "HUH"`)

	assert.IsError(t, s.Transmit(ctx, nil, 38000), transmit.ErrEmptyTrain)

	assert.NoError(t, s.Close())
	assert.True(t, port.closed)
}

func TestSerialAckTimeout(t *testing.T) {
	s := transmit.NewSerial(&fakeBlaster{}, 20*time.Millisecond)

	err := s.Transmit(context.Background(), []int{562}, 38000)
	assert.IsError(t, err, transmit.ErrAckTimeout)
}

func TestPortOptions(t *testing.T) {
	opts, err := transmit.PortOptions{Parity: "even"}.Normalize()
	assert.NoError(t, err)
	assert.Equal(t, transmit.PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "E"}, opts)

	mode, err := transmit.PortOptions{BaudRate: 9600, StopBits: 2, Parity: "O"}.SerialMode()
	assert.NoError(t, err)
	assert.Equal(t, serial.Mode{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   serial.OddParity,
		StopBits: serial.TwoStopBits,
	}, *mode)

	for _, bad := range []transmit.PortOptions{
		{DataBits: 9},
		{StopBits: 3},
		{Parity: "mark"},
	} {
		_, err := bad.Normalize()
		assert.Error(t, err, "options %+v", bad)
	}
}
