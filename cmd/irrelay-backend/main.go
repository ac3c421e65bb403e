// Command irrelay-backend keeps a session with an irrelayd node and exposes
// it over HTTP. The node must be configured with this daemon's UDP address as
// its backend so its heartbeats arrive here.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"libdb.so/irrelay/catalog"
	"libdb.so/irrelay/internal/backend"
	"libdb.so/irrelay/relay"
	"libdb.so/irrelay/transport"
)

var (
	udpListen   = flag.String("udp", ":4211", "UDP address node heartbeats arrive on")
	httpListen  = flag.String("http", ":8080", "HTTP address of the command API")
	nodeAddr    = flag.String("node", "", "UDP address of the node, used until it first reports")
	catalogPath = flag.String("catalog", "", "catalog database commands may refer to by name")
	verbose     = flag.Bool("v", false, "log debug messages")
)

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		logger.Error("irrelay-backend stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	local, err := net.ResolveUDPAddr("udp", *udpListen)
	if err != nil {
		return fmt.Errorf("invalid udp address: %w", err)
	}

	var remote *net.UDPAddr
	if *nodeAddr != "" {
		remote, err = net.ResolveUDPAddr("udp", *nodeAddr)
		if err != nil {
			return fmt.Errorf("invalid node address: %w", err)
		}
	}

	var cat *catalog.Catalog
	if *catalogPath != "" {
		cat, err = catalog.Open(*catalogPath)
		if err != nil {
			return err
		}
		defer cat.Close()
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	udp := transport.NewUDP(logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := udp.ListenAndServe(ctx, local); err != nil {
			cancel(err)
		}
	}()

	select {
	case <-udp.Ready():
	case <-ctx.Done():
		return context.Cause(ctx)
	}

	session := relay.NewSession(udp, remote, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		session.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              *httpListen,
		Handler:           backend.NewServer(session, cat, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer done()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving command api",
		"http", srv.Addr,
		"udp", udp.LocalAddr())

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cancel(err)
	}

	<-ctx.Done()
	if cause := context.Cause(ctx); !errors.Is(cause, context.Canceled) {
		return cause
	}
	logger.Info("shutting down")
	return nil
}
