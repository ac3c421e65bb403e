package lirc

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// GapMicros is the shortest space treated as the idle gap between two
// bursts when the log carries no timeout lines.
const GapMicros = 30000

// ReadMode2 reads mode2(1) text, as written by lircd's input log or by
// "mode2 -d", and splits it into bursts of alternating pulse and space
// durations in microseconds. Every burst starts with a pulse.
//
// A "timeout" line or a space of at least [GapMicros] ends a burst. "carrier"
// lines and lines not starting with a mode2 keyword are skipped.
func ReadMode2(r io.Reader) ([][]int, error) {
	var bursts [][]int
	var burst []int

	flush := func() {
		if len(burst) > 0 {
			bursts = append(bursts, burst)
			burst = nil
		}
	}

	scanner := bufio.NewScanner(r)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "pulse", "space", "timeout":
		default:
			continue
		}

		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: expected %q and a duration", lineNo, fields[0])
		}
		micros, err := strconv.Atoi(fields[1])
		if err != nil || micros < 0 {
			return nil, fmt.Errorf("line %d: invalid duration %q", lineNo, fields[1])
		}

		switch fields[0] {
		case "timeout":
			flush()
		case "space":
			if micros >= GapMicros {
				flush()
				continue
			}
			if len(burst) == 0 {
				// Idle time before the first pulse.
				continue
			}
			burst = append(burst, micros)
		case "pulse":
			burst = append(burst, micros)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read mode2 input: %w", err)
	}

	flush()
	return bursts, nil
}

// WriteMode2 writes a burst as alternating pulse and space lines followed by
// a timeout line.
func WriteMode2(w io.Writer, burst []int) error {
	bw := bufio.NewWriter(w)
	for i, micros := range burst {
		kind := "pulse"
		if i%2 == 1 {
			kind = "space"
		}
		fmt.Fprintf(bw, "%s %d\n", kind, micros)
	}
	fmt.Fprintf(bw, "timeout %d\n", GapMicros*4)
	return bw.Flush()
}
