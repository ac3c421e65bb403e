// Command irsend sends a captured infrared command to an irrelayd node.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"time"

	"libdb.so/irrelay"
	"libdb.so/irrelay/catalog"
	"libdb.so/irrelay/relay"
	"libdb.so/irrelay/transport"
)

var (
	nodeAddr    = flag.String("node", "", "UDP address of the node, host:port")
	listenAddr  = flag.String("listen", ":0", "local UDP address to receive status reports on")
	catalogPath = flag.String("catalog", "", "catalog database to read -name from")
	name        = flag.String("name", "", "catalog entry to send")
	file        = flag.String("file", "", "JSON pulse array to send instead of a catalog entry")
	timeout     = flag.Duration("timeout", 15*time.Second, "give up after this long")
	verbose     = flag.Bool("v", false, "log debug messages")
)

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		logger.Error("irsend failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	if *nodeAddr == "" {
		return errors.New("-node is required")
	}
	remote, err := net.ResolveUDPAddr("udp", *nodeAddr)
	if err != nil {
		return fmt.Errorf("invalid node address: %w", err)
	}
	local, err := net.ResolveUDPAddr("udp", *listenAddr)
	if err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}

	pulses, err := loadPulses(ctx)
	if err != nil {
		return err
	}
	if _, err := irrelay.DecodePulses(pulses); err != nil {
		logger.Warn("pulses do not decode as chained NEC, sending anyway", "err", err)
	}

	ctx, cancel := context.WithTimeoutCause(ctx, *timeout, errors.New("timed out"))
	defer cancel()

	udp := transport.NewUDP(logger)
	errCh := make(chan error, 2)
	go func() {
		if err := udp.ListenAndServe(ctx, local); err != nil {
			errCh <- err
		}
	}()

	session := relay.NewSession(udp, remote, logger)
	go func() { errCh <- session.Run(ctx) }()

	select {
	case <-udp.Ready():
	case err := <-errCh:
		return err
	}

	status, err := session.Probe(ctx)
	if err != nil {
		return fmt.Errorf("node %s did not answer: %w", remote, err)
	}
	logger.Debug("node is online", "last_sequence", status.LastCommandSequenceNumber)

	seq, err := session.SendCommand(ctx, pulses)
	if err != nil {
		return err
	}

	logger.Info("command acknowledged",
		"node", remote,
		"sequence", seq,
		"pulses", len(pulses))
	return nil
}

func loadPulses(ctx context.Context) ([]int, error) {
	switch {
	case *file != "" && *name != "":
		return nil, errors.New("-file and -name are mutually exclusive")

	case *file != "":
		data, err := os.ReadFile(*file)
		if err != nil {
			return nil, err
		}
		var pulses []int
		if err := json.Unmarshal(data, &pulses); err != nil {
			return nil, fmt.Errorf("cannot parse %s: %w", *file, err)
		}
		return pulses, nil

	case *name != "":
		if *catalogPath == "" {
			return nil, errors.New("-name needs -catalog")
		}
		cat, err := catalog.Open(*catalogPath)
		if err != nil {
			return nil, err
		}
		defer cat.Close()

		entry, err := cat.Get(ctx, *name)
		if err != nil {
			return nil, err
		}
		return entry.Pulses, nil

	default:
		return nil, errors.New("either -name or -file is required")
	}
}
