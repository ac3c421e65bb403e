package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// MaxPacketSize is the largest payload a UDP datagram can carry. Packets are
// delivered whole, however large.
const MaxPacketSize = 65535

// UDP is a [Transport] over a single UDP socket.
type UDP struct {
	logger    *slog.Logger
	receive   chan Packet
	ready     chan struct{}
	readyOnce sync.Once
	conn      *net.UDPConn
}

var _ Transport = (*UDP)(nil)

// ErrNotReady is returned by Send when the socket could not be opened.
var ErrNotReady = errors.New("transport: socket not listening")

// NewUDP creates a UDP transport. It does not open a socket; call
// ListenAndServe.
func NewUDP(logger *slog.Logger) *UDP {
	return &UDP{
		logger:  logger,
		receive: make(chan Packet, 10),
		ready:   make(chan struct{}),
	}
}

// ListenAndServe binds addr and delivers received packets on Receive until ctx
// is done. It blocks until the socket is closed.
func (t *UDP) ListenAndServe(ctx context.Context, addr *net.UDPAddr) error {
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		t.readyOnce.Do(func() { close(t.ready) })
		return fmt.Errorf("cannot listen on %v: %w", addr, err)
	}

	t.conn = conn
	logger := t.logger.With("local", conn.LocalAddr().String())
	logger.InfoContext(ctx, "udp transport listening")
	t.readyOnce.Do(func() { close(t.ready) })

	var wg sync.WaitGroup
	defer wg.Wait()

	errCh := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()

		buf := make([]byte, MaxPacketSize)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
					errCh <- fmt.Errorf("cannot read from udp socket: %w", err)
				}
				return
			}

			logger.DebugContext(ctx,
				"received packet",
				"from", from.String(),
				"bytes", n)

			select {
			case <-ctx.Done():
				return
			case t.receive <- Packet{Addr: from, Data: bytes.Clone(buf[:n])}:
			}
		}
	}()

	var readErr error
	select {
	case <-ctx.Done():
	case readErr = <-errCh:
	}

	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("error closing udp socket: %w", err)
	}
	return readErr
}

// Ready is closed once the socket is listening.
func (t *UDP) Ready() <-chan struct{} { return t.ready }

// LocalAddr returns the bound address, or nil before the socket is ready.
func (t *UDP) LocalAddr() *net.UDPAddr {
	select {
	case <-t.ready:
		if t.conn == nil {
			return nil
		}
		return t.conn.LocalAddr().(*net.UDPAddr)
	default:
		return nil
	}
}

// Send writes packet to its peer, waiting for the socket to be ready first.
func (t *UDP) Send(packet Packet) error {
	<-t.ready
	if t.conn == nil {
		return ErrNotReady
	}

	n, err := t.conn.WriteToUDP(packet.Data, packet.Addr)
	if err != nil {
		return fmt.Errorf("cannot send to %v: %w", packet.Addr, err)
	}
	if n != len(packet.Data) {
		return fmt.Errorf("wrote %d bytes to %v, expected %d", n, packet.Addr, len(packet.Data))
	}

	t.logger.Debug(
		"sent packet",
		"to", packet.Addr.String(),
		"bytes", n)
	return nil
}

// Receive returns the channel packets are delivered on. It is never closed.
func (t *UDP) Receive() <-chan Packet { return t.receive }
