package relay

import (
	"context"
	"log/slog"
	"net"
	"time"

	"libdb.so/irrelay"
	"libdb.so/irrelay/transport"
)

// DefaultStatusInterval is how often a node reports its status to the
// backend unprompted.
const DefaultStatusInterval = 10 * time.Second

// PacketObserver is notified of every datagram a node receives.
type PacketObserver interface {
	ObservePacket(malformed bool)
}

// Node is the controller side of the relay. It feeds every command it
// receives to a [irrelay.Controller] and answers with the controller status.
type Node struct {
	// Backend, if set, receives a status report every StatusInterval so it
	// can learn the node address and track whether the node is online.
	Backend        *net.UDPAddr
	StatusInterval time.Duration
	// Codec defaults to [JSONCodec].
	Codec    Codec
	Observer PacketObserver

	controller *irrelay.Controller
	transport  transport.Transport
	logger     *slog.Logger
}

// NewNode creates a node serving controller over t.
func NewNode(controller *irrelay.Controller, t transport.Transport, logger *slog.Logger) *Node {
	return &Node{
		StatusInterval: DefaultStatusInterval,
		Codec:          JSONCodec{},
		controller:     controller,
		transport:      t,
		logger:         logger,
	}
}

// Run processes packets one at a time until ctx is done.
func (n *Node) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if n.Backend != nil {
		ticker := time.NewTicker(n.StatusInterval)
		defer ticker.Stop()
		tick = ticker.C

		n.reportStatus(ctx, n.Backend)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-tick:
			n.reportStatus(ctx, n.Backend)

		case packet := <-n.transport.Receive():
			n.handlePacket(ctx, packet)
		}
	}
}

func (n *Node) handlePacket(ctx context.Context, packet transport.Packet) {
	logger := n.logger.With("from", packet.Addr.String())

	var cmd irrelay.Command
	if err := n.Codec.Unmarshal(packet.Data, &cmd); err != nil {
		logger.WarnContext(ctx,
			"dropping malformed command",
			"bytes", len(packet.Data),
			"err", err)
		n.observePacket(true)
		return
	}
	n.observePacket(false)

	outcome, err := n.controller.Handle(ctx, cmd)
	if err != nil {
		logger.ErrorContext(ctx,
			"command transmission failed",
			"sequence", cmd.Sequence,
			"err", err)
	} else {
		logger.DebugContext(ctx,
			"command handled",
			"sequence", cmd.Sequence,
			"outcome", outcome.String())
	}

	n.reportStatus(ctx, packet.Addr)
}

func (n *Node) reportStatus(ctx context.Context, to *net.UDPAddr) {
	status := n.controller.Status()

	data, err := n.Codec.Marshal(status)
	if err != nil {
		n.logger.ErrorContext(ctx,
			"cannot encode status",
			"err", err)
		return
	}

	if err := n.transport.Send(transport.Packet{Addr: to, Data: data}); err != nil {
		n.logger.WarnContext(ctx,
			"cannot report status",
			"to", to.String(),
			"err", err)
	}
}

func (n *Node) observePacket(malformed bool) {
	if n.Observer != nil {
		n.Observer.ObservePacket(malformed)
	}
}
