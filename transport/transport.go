// Package transport moves datagrams between a controller node and the backend
// that drives it.
package transport

import "net"

// Packet is a single datagram and its peer.
type Packet struct {
	Addr *net.UDPAddr
	Data []byte
}

// Transport sends and receives packets.
type Transport interface {
	Send(packet Packet) error
	Receive() <-chan Packet
}
