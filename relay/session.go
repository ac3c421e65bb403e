package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"libdb.so/irrelay"
	"libdb.so/irrelay/transport"
)

// Session defaults, matching the interval a node reports its status at.
const (
	DefaultPingInterval  = DefaultStatusInterval
	DefaultRetryInterval = time.Second
	DefaultMaxAttempts   = 10
)

var (
	// ErrOffline is returned when no node has reported recently.
	ErrOffline = errors.New("relay: node is offline")
	// ErrNoResponse is returned when a node never acknowledged a command.
	ErrNoResponse = errors.New("relay: no response from node")
)

// Session is the backend side of the relay. It learns the node address from
// the status reports the node sends and issues commands with increasing
// sequence numbers, resending each until the node acknowledges it.
type Session struct {
	// PingInterval is how often the node is expected to report. A node that
	// has been silent for three intervals is considered offline.
	PingInterval  time.Duration
	RetryInterval time.Duration
	MaxAttempts   int
	// Codec defaults to [JSONCodec].
	Codec Codec

	transport transport.Transport
	logger    *slog.Logger

	mu       sync.Mutex
	remote   *net.UDPAddr
	lastSeen time.Time
	lastSeq  int64
	nextID   int
	waiters  map[int]chan irrelay.Status
}

// NewSession creates a session over t. If remote is not nil, commands are
// sent there until the node reports from another address.
func NewSession(t transport.Transport, remote *net.UDPAddr, logger *slog.Logger) *Session {
	return &Session{
		PingInterval:  DefaultPingInterval,
		RetryInterval: DefaultRetryInterval,
		MaxAttempts:   DefaultMaxAttempts,
		Codec:         JSONCodec{},
		transport:     t,
		logger:        logger,
		remote:        remote,
		waiters:       make(map[int]chan irrelay.Status),
	}
}

// Run consumes status reports until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case packet := <-s.transport.Receive():
			s.onStatus(ctx, packet)
		}
	}
}

// IsOnline reports whether the node has reported recently.
func (s *Session) IsOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isOnline()
}

func (s *Session) isOnline() bool {
	return s.remote != nil && !s.lastSeen.IsZero() && time.Since(s.lastSeen) < 3*s.PingInterval
}

// LastSequence returns the highest sequence number the node has admitted, as
// far as the session knows.
func (s *Session) LastSequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeq
}

// Probe sends a command with sequence 0, which a node never admits, to
// solicit a status report. It is how a fresh session learns the last
// sequence number without waiting for the next unprompted report.
func (s *Session) Probe(ctx context.Context) (irrelay.Status, error) {
	s.mu.Lock()
	remote := s.remote
	s.mu.Unlock()

	if remote == nil {
		return irrelay.Status{}, ErrOffline
	}

	return s.exchange(ctx, remote, irrelay.Command{}, func(irrelay.Status) bool { return true })
}

// SendCommand sends pulses to the node under the next sequence number and
// waits until the node acknowledges it. It returns the sequence number used.
func (s *Session) SendCommand(ctx context.Context, pulses []int) (int64, error) {
	s.mu.Lock()
	if !s.isOnline() {
		s.mu.Unlock()
		return 0, ErrOffline
	}
	s.lastSeq++
	cmd := irrelay.Command{Data: pulses, Sequence: s.lastSeq}
	remote := s.remote
	s.mu.Unlock()

	_, err := s.exchange(ctx, remote, cmd, func(status irrelay.Status) bool {
		return status.LastCommandSequenceNumber >= cmd.Sequence
	})
	if err != nil {
		return cmd.Sequence, fmt.Errorf("command %d: %w", cmd.Sequence, err)
	}
	return cmd.Sequence, nil
}

func (s *Session) exchange(ctx context.Context, remote *net.UDPAddr, cmd irrelay.Command, done func(irrelay.Status) bool) (irrelay.Status, error) {
	data, err := s.Codec.Marshal(cmd)
	if err != nil {
		return irrelay.Status{}, fmt.Errorf("cannot encode command: %w", err)
	}

	updates, unsubscribe := s.subscribe()
	defer unsubscribe()

	packet := transport.Packet{Addr: remote, Data: data}
	logger := s.logger.With(
		"sequence", cmd.Sequence,
		"node", remote.String())

	for attempt := 1; attempt <= s.MaxAttempts; attempt++ {
		logger.DebugContext(ctx,
			"sending command",
			"attempt", attempt)

		if err := s.transport.Send(packet); err != nil {
			return irrelay.Status{}, err
		}

		timeout := time.NewTimer(s.RetryInterval)
	wait:
		for {
			select {
			case <-ctx.Done():
				timeout.Stop()
				return irrelay.Status{}, ctx.Err()

			case <-timeout.C:
				break wait

			case status := <-updates:
				if done(status) {
					timeout.Stop()
					return status, nil
				}
			}
		}
	}

	return irrelay.Status{}, ErrNoResponse
}

func (s *Session) subscribe() (<-chan irrelay.Status, func()) {
	ch := make(chan irrelay.Status, 10)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.waiters[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		delete(s.waiters, id)
		s.mu.Unlock()
	}
}

func (s *Session) onStatus(ctx context.Context, packet transport.Packet) {
	var status irrelay.Status
	if err := s.Codec.Unmarshal(packet.Data, &status); err != nil {
		s.logger.WarnContext(ctx,
			"dropping malformed status",
			"from", packet.Addr.String(),
			"err", err)
		return
	}

	s.mu.Lock()
	s.remote = packet.Addr
	s.lastSeen = time.Now()
	if status.LastCommandSequenceNumber > s.lastSeq {
		s.lastSeq = status.LastCommandSequenceNumber
	}
	notify := make([]chan irrelay.Status, 0, len(s.waiters))
	for _, ch := range s.waiters {
		notify = append(notify, ch)
	}
	s.mu.Unlock()

	for _, ch := range notify {
		select {
		case ch <- status:
		default:
		}
	}
}
