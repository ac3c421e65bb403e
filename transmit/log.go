// Package transmit drives infrared emitters.
package transmit

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"libdb.so/irrelay"
)

// Log is a dry-run transmitter that only logs what it would send.
type Log struct {
	Logger *slog.Logger
}

var _ irrelay.Transmitter = Log{}

// Transmit implements [irrelay.Transmitter].
func (l Log) Transmit(ctx context.Context, pulses []int, carrierHz int) error {
	l.Logger.InfoContext(ctx,
		"transmit (dry run)",
		"carrier_hz", carrierHz,
		"pulses", len(pulses),
		"train", formatTrain(pulses))
	return nil
}

func formatTrain(pulses []int) string {
	var b strings.Builder
	for i, p := range pulses {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.Itoa(p))
	}
	return b.String()
}
