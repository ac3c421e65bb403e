package transport_test

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/neilotoole/slogt"
	"libdb.so/irrelay/transport"
)

var loopback = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}

func startUDP(t *testing.T) *transport.UDP {
	t.Helper()

	udp := transport.NewUDP(slogt.New(t))
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- udp.ListenAndServe(ctx, loopback) }()

	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-errCh, "udp transport failed")
	})

	<-udp.Ready()
	return udp
}

func TestUDPShutdown(t *testing.T) {
	udp := transport.NewUDP(slogt.New(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := udp.ListenAndServe(ctx, loopback)
	assert.NoError(t, err)
}

func TestUDPRoundTrip(t *testing.T) {
	a := startUDP(t)
	b := startUDP(t)

	err := a.Send(transport.Packet{Addr: b.LocalAddr(), Data: []byte(`{"sequence":1}`)})
	assert.NoError(t, err)

	select {
	case packet := <-b.Receive():
		assert.Equal(t, `{"sequence":1}`, string(packet.Data))
		assert.Equal(t, a.LocalAddr().Port, packet.Addr.Port)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for packet")
	}
}

func TestUDPListenError(t *testing.T) {
	udp := transport.NewUDP(slogt.New(t))

	err := udp.ListenAndServe(context.Background(), &net.UDPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 1})
	assert.Error(t, err)

	assert.IsError(t, udp.Send(transport.Packet{Addr: loopback}), transport.ErrNotReady)
	assert.Zero(t, udp.LocalAddr())
}

func TestUDPLargePacket(t *testing.T) {
	a := startUDP(t)
	b := startUDP(t)

	data := bytes.Repeat([]byte("1687,"), 4000)
	assert.NoError(t, a.Send(transport.Packet{Addr: b.LocalAddr(), Data: data}))

	select {
	case packet := <-b.Receive():
		assert.Equal(t, len(data), len(packet.Data))
		assert.True(t, bytes.Equal(data, packet.Data))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for packet")
	}
}
