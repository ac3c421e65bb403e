// Command irdecode decodes chained NEC captures from a file or live from
// lircd, and manages the capture catalog.
//
// Usage:
//
//	irdecode [flags] [file]
//
// The file holds mode2 text or a JSON pulse array; "-" reads standard input.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"libdb.so/irrelay"
	"libdb.so/irrelay/catalog"
	"libdb.so/irrelay/lirc"
)

var (
	format      = flag.String("format", "auto", "input format: auto, mode2 or json")
	lircdSocket = flag.String("lircd", "", "capture live from the lircd socket at this path instead of a file")
	inputLog    = flag.String("input-log", "", "input log path lircd writes to while capturing (default: a temporary file)")
	timeout     = flag.Duration("timeout", 30*time.Second, "how long to wait for a live capture")
	catalogPath = flag.String("catalog", "", "catalog database to save to or read from")
	name        = flag.String("name", "", "save the decoded capture to the catalog under this name")
	export      = flag.String("export", "", "print the catalog entry of this name as mode2 and exit")
	list        = flag.Bool("list", false, "list the catalog entries and exit")
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
		logger.Error("irdecode failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	var cat *catalog.Catalog
	if *catalogPath != "" {
		var err error
		cat, err = catalog.Open(*catalogPath)
		if err != nil {
			return err
		}
		defer cat.Close()
	}

	switch {
	case *list:
		if cat == nil {
			return errors.New("-list needs -catalog")
		}
		return listEntries(ctx, cat, os.Stdout)
	case *export != "":
		if cat == nil {
			return errors.New("-export needs -catalog")
		}
		entry, err := cat.Get(ctx, *export)
		if err != nil {
			return err
		}
		return lirc.WriteMode2(os.Stdout, entry.Pulses)
	case *name != "" && cat == nil:
		return errors.New("-name needs -catalog")
	}

	var bursts [][]int
	if *lircdSocket != "" {
		burst, err := captureLive(ctx, logger)
		if err != nil {
			return err
		}
		bursts = [][]int{burst}
	} else {
		path := flag.Arg(0)
		if path == "" {
			return errors.New("no input file given")
		}
		var err error
		bursts, err = readInput(path, *format)
		if err != nil {
			return err
		}
	}

	decoded := false
	for i, burst := range bursts {
		code, err := irrelay.DecodePulses(burst)
		if err != nil {
			logger.Debug("burst does not decode",
				"burst", i,
				"pulses", len(burst),
				"err", err)
			continue
		}

		fmt.Printf("code: %s\nbits: %s\npulses: %d\n", code, code.Bits(), len(burst))
		decoded = true

		if *name != "" {
			entry, err := cat.Save(ctx, catalog.Entry{Name: *name, Code: code, Pulses: burst})
			if err != nil {
				return err
			}
			logger.Info("saved capture", "name", entry.Name, "id", entry.ID)
		}
		break
	}

	if !decoded {
		return fmt.Errorf("none of %d bursts is a chained NEC frame", len(bursts))
	}
	return nil
}

func captureLive(ctx context.Context, logger *slog.Logger) ([]int, error) {
	logPath := *inputLog
	if logPath == "" {
		dir, err := os.MkdirTemp("", "irdecode")
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(dir)
		logPath = filepath.Join(dir, "input.log")
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	conn := lirc.NewUnix(*lircdSocket)
	startErr := make(chan error, 1)
	go func() {
		startErr <- conn.Start(ctx, logger)
		cancel()
	}()

	// lircd still reports presses of remotes it knows about.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case press := <-conn.Events:
				logger.Info("lircd decoded a known remote",
					"remote", press.RemoteControlName,
					"button", press.ButtonName)
			}
		}
	}()

	logger.Info("point the remote at the receiver and press a button", "timeout", *timeout)

	burst, err := lirc.Capture(ctx, conn, logPath, 200*time.Millisecond, func(burst []int) bool {
		_, err := irrelay.DecodePulses(burst)
		return err == nil
	})
	cancel()
	if startErr := <-startErr; err != nil && startErr != nil && !errors.Is(startErr, context.Canceled) {
		return nil, startErr
	}
	if err != nil {
		return nil, fmt.Errorf("cannot capture: %w", err)
	}
	return burst, nil
}

func readInput(path, format string) ([][]int, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	if format == "auto" {
		format = "mode2"
		if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') {
			format = "json"
		}
	}

	switch format {
	case "mode2":
		return lirc.ReadMode2(bytes.NewReader(data))
	case "json":
		return readJSON(data)
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// readJSON accepts a bare pulse array or a relay command object.
func readJSON(data []byte) ([][]int, error) {
	var pulses []int
	if err := json.Unmarshal(data, &pulses); err == nil {
		return [][]int{pulses}, nil
	}

	var cmd irrelay.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("input is neither a pulse array nor a command: %w", err)
	}
	return [][]int{cmd.Data}, nil
}

func listEntries(ctx context.Context, cat *catalog.Catalog, w io.Writer) error {
	entries, err := cat.List(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%-20s %s  %3d pulses  %s\n",
			e.Name, e.Code, len(e.Pulses), e.CreatedAt.Format(time.DateTime))
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "catalog is empty")
	}
	return nil
}
