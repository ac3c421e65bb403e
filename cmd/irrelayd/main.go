// Command irrelayd receives infrared commands over UDP and transmits them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"libdb.so/irrelay"
	"libdb.so/irrelay/internal/config"
	"libdb.so/irrelay/internal/metrics"
	"libdb.so/irrelay/relay"
	"libdb.so/irrelay/transmit"
	"libdb.so/irrelay/transport"
)

var configPath = flag.String("config", "", "path to the YAML configuration file")

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			slog.Error("cannot load configuration", "err", err)
			os.Exit(1)
		}
	}

	logger, err := cfg.Logging.NewLogger(os.Stderr)
	if err != nil {
		slog.Error("cannot create logger", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("irrelayd stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	tx, closeTx, err := openTransmitter(cfg.Transmitter, logger)
	if err != nil {
		return err
	}
	defer closeTx()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	controller := irrelay.NewController(tx, logger,
		irrelay.WithCarrier(cfg.Transmitter.CarrierHz),
		irrelay.WithCapacity(cfg.Node.BufferCapacity),
		irrelay.WithObserver(m))

	listen, err := cfg.Node.ListenAddr()
	if err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}
	backend, err := cfg.Node.BackendAddr()
	if err != nil {
		return fmt.Errorf("invalid backend address: %w", err)
	}

	udp := transport.NewUDP(logger)

	node := relay.NewNode(controller, udp, logger)
	node.Backend = backend
	node.StatusInterval = cfg.Node.StatusInterval
	node.Observer = m

	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := udp.ListenAndServe(ctx, listen); err != nil {
			cancel(err)
		}
	}()

	select {
	case <-udp.Ready():
	case <-ctx.Done():
		return context.Cause(ctx)
	}
	logger.Info("listening for commands", "addr", udp.LocalAddr())

	if cfg.Metrics.Enabled {
		srv := &http.Server{
			Addr:              cfg.Metrics.Address,
			Handler:           metrics.Handler(reg, controller.Status, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("serving metrics", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				cancel(fmt.Errorf("metrics server: %w", err))
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer done()
			srv.Shutdown(shutdownCtx)
		}()
	}

	err = node.Run(ctx)
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	if errors.Is(err, context.Canceled) {
		logger.Info("shutting down")
		return nil
	}
	return err
}

func openTransmitter(cfg config.TransmitterConfig, logger *slog.Logger) (irrelay.Transmitter, func() error, error) {
	switch cfg.Kind {
	case config.KindLirc:
		dev, err := transmit.OpenLircDevice(cfg.Device)
		if err != nil {
			return nil, nil, err
		}
		return dev, dev.Close, nil

	case config.KindSerial:
		s, err := transmit.OpenSerial(cfg.Device, cfg.Serial, cfg.AckTimeout)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	default:
		logger.Warn("no transmitter configured, commands are only logged")
		return transmit.Log{Logger: logger}, func() error { return nil }, nil
	}
}
