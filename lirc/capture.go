package lirc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// Capture asks lircd to log raw input to path and polls the log until accept
// returns true for one of its bursts. Logging is switched off again before
// Capture returns.
func Capture(ctx context.Context, conn *Connection, path string, poll time.Duration, accept func(burst []int) bool) ([]int, error) {
	if _, err := conn.SendCommand(ctx, SetInputLog{Path: path}); err != nil {
		return nil, fmt.Errorf("cannot start input log: %w", err)
	}

	defer func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ReplyTimeout)
		defer cancel()
		conn.SendCommand(ctx, SetInputLog{})
	}()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		bursts, err := readMode2File(path)
		if err != nil {
			return nil, err
		}
		for _, burst := range bursts {
			if accept(burst) {
				return burst, nil
			}
		}
	}
}

func readMode2File(path string) ([][]int, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// lircd creates the log on the first input.
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	bursts, err := ReadMode2(f)
	if err != nil {
		// lircd may be halfway through writing a line; try again next poll.
		return nil, nil
	}
	return bursts, nil
}
