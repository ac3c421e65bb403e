// Package lirc talks to the Linux Infrared Remote Control daemon and reads the
// mode2 text format it logs raw infrared input in.
package lirc

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ReplyTimeout bounds how long SendCommand waits for lircd to answer.
const ReplyTimeout = 10 * time.Second

// Connection is a connection to lircd.
type Connection struct {
	// Events receives the button presses lircd broadcasts while [Start] is
	// running. Presses are dropped when nobody keeps up with the channel.
	// This channel is never closed.
	Events chan ButtonPress

	send   chan Command
	reply  chan CommandReply
	dialer func(context.Context) (net.Conn, error)
}

// NewUnix creates a connection to lircd on a Unix socket, usually
// /run/lirc/lircd. Nothing is dialed until Start is called.
func NewUnix(path string) *Connection {
	return newConnection(func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", path)
	})
}

// NewTCP creates a connection to lircd listening on host, as started with
// --listen. Nothing is dialed until Start is called.
func NewTCP(host string) *Connection {
	return newConnection(func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", host)
	})
}

func newConnection(dialer func(ctx context.Context) (net.Conn, error)) *Connection {
	return &Connection{
		Events: make(chan ButtonPress, 16),
		send:   make(chan Command),
		reply:  make(chan CommandReply),
		dialer: dialer,
	}
}

// SendCommand sends a command to lircd and waits for its reply. Only one
// command is in flight at a time.
func (c *Connection) SendCommand(ctx context.Context, command Command) (CommandReply, error) {
	select {
	case <-ctx.Done():
		return CommandReply{}, ctx.Err()
	case c.send <- command:
	}

	ctx, cancel := context.WithTimeout(ctx, ReplyTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		return CommandReply{}, ctx.Err()
	case reply := <-c.reply:
		if reply.Name() != command.EncodeCommand()[0] {
			return reply, fmt.Errorf("unexpected reply to %s: %q", command.EncodeCommand()[0], reply.Command)
		}
		if !reply.Success {
			return reply, fmt.Errorf("%w: %s", ErrUnsuccessfulCommand, strings.Join(reply.Data, "; "))
		}
		return reply, nil
	}
}

type readerState uint

const (
	stateIdle readerState = iota
	stateCommand
	stateStatus
	stateDataStart
	stateDataLength
	stateData
	stateDataEnd
)

// Start dials lircd and serves the connection. It blocks until the
// connection is closed or ctx is done.
func (c *Connection) Start(ctx context.Context, logger *slog.Logger) error {
	conn, err := c.dialer(ctx)
	if err != nil {
		return fmt.Errorf("cannot dial lircd: %w", err)
	}

	logger = logger.With("lircd", conn.RemoteAddr().String())

	repliesCh := make(chan CommandReply)
	sendingCh := c.send

	reader := newReplyReader(logger, c.Events, repliesCh)

	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel(nil)

		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			reader.read(ctx, scanner.Text())
		}

		if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Error(
				"error reading from lircd socket",
				"err", err)
			cancel(err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel(nil)

		for {
			select {
			case <-ctx.Done():
				return

			case cmd := <-sendingCh:
				raw := strings.Join(cmd.EncodeCommand(), " ") + "\n"
				if _, err := io.WriteString(conn, raw); err != nil {
					logger.Error(
						"error writing to lircd socket",
						"err", err)
					cancel(err)
					return
				}

				// One command at a time until its reply arrives.
				sendingCh = nil

			case reply := <-repliesCh:
				if reply.Command == "SIGHUP" {
					logger.InfoContext(ctx, "lircd has been reloaded")
					continue
				}

				select {
				case <-ctx.Done():
					return
				case c.reply <- reply:
					sendingCh = c.send
				}
			}
		}
	}()

	<-ctx.Done()

	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("error closing lircd connection: %w", err)
	}

	wg.Wait()
	return context.Cause(ctx)
}

// replyReader parses the lines lircd writes: broadcast button presses, and
// BEGIN ... END reply packets.
type replyReader struct {
	state      readerState
	reply      CommandReply
	dataCount  int
	dataLength int

	logger  *slog.Logger
	events  chan ButtonPress
	replies chan CommandReply
}

func newReplyReader(logger *slog.Logger, events chan ButtonPress, replies chan CommandReply) *replyReader {
	return &replyReader{
		state:   stateIdle,
		logger:  logger,
		events:  events,
		replies: replies,
	}
}

func (r *replyReader) stateError(msg string, attrs ...any) {
	r.logger.Error(msg, attrs...)
	r.state = stateIdle
}

func (r *replyReader) flushReply(ctx context.Context) {
	r.state = stateIdle
	select {
	case <-ctx.Done():
	case r.replies <- r.reply:
	}
}

func (r *replyReader) read(ctx context.Context, line string) {
	switch r.state {
	case stateIdle:
		if line == "BEGIN" {
			r.state = stateCommand
			r.reply = CommandReply{}
			r.dataCount = 0
			r.dataLength = 0
			return
		}

		event, err := parseButtonPress(line)
		if err != nil {
			r.stateError(
				"cannot parse lircd broadcast",
				"line", line,
				"err", err)
			return
		}

		select {
		case r.events <- event:
		default:
			r.logger.DebugContext(ctx,
				"dropping button press",
				"button", event.ButtonName)
		}

	case stateCommand:
		r.reply = CommandReply{
			Command: line,
			Success: true,
		}
		r.state = stateStatus

	case stateStatus:
		switch line {
		case "SUCCESS":
			r.state = stateDataStart
		case "ERROR":
			r.reply.Success = false
			r.state = stateDataStart
		case "END":
			r.flushReply(ctx)
		default:
			r.stateError(
				"lircd reply has invalid status",
				"line", line)
		}

	case stateDataStart:
		switch line {
		case "DATA":
			r.state = stateDataLength
		case "END":
			r.flushReply(ctx)
		default:
			r.stateError(
				"lircd reply has invalid data start",
				"line", line)
		}

	case stateDataLength:
		n, err := strconv.Atoi(line)
		if err != nil || n < 0 {
			r.stateError(
				"lircd reply has invalid data length",
				"line", line)
			return
		}

		r.dataLength = n
		r.dataCount = 0
		r.reply.Data = make([]string, 0, n)
		if n == 0 {
			r.state = stateDataEnd
		} else {
			r.state = stateData
		}

	case stateData:
		r.reply.Data = append(r.reply.Data, line)
		r.dataCount++
		if r.dataCount >= r.dataLength {
			r.state = stateDataEnd
		}

	case stateDataEnd:
		if line != "END" {
			r.stateError(
				"lircd reply has invalid data end, discarding reply",
				"line", line)
			return
		}
		r.flushReply(ctx)
	}
}

// parseButtonPress parses "<code> <repeat> <button> <remote>", where code is
// 16 hex digits and repeat is hex.
func parseButtonPress(line string) (ButtonPress, error) {
	w := strings.Fields(line)
	if len(w) != 4 {
		return ButtonPress{}, fmt.Errorf("expected 4 fields, got %d", len(w))
	}

	h := w[0]
	if len(h) < 16 {
		h = strings.Repeat("0", 16-len(h)) + h
	}
	c, err := hex.DecodeString(h)
	if err != nil || len(c) != 8 {
		return ButtonPress{}, fmt.Errorf("code %q is not a 64-bit hex number", w[0])
	}

	repeats, err := strconv.ParseUint(w[1], 16, 0)
	if err != nil {
		return ButtonPress{}, fmt.Errorf("invalid repeat count %q", w[1])
	}

	var code uint64
	for _, b := range c {
		code = code<<8 | uint64(b)
	}

	return ButtonPress{
		Code:              code,
		RepeatCount:       uint(repeats),
		ButtonName:        w[2],
		RemoteControlName: w[3],
	}, nil
}
