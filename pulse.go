// Package irrelay relays infrared remote-control signals over the network and
// decodes captured pulse trains of the chained NEC protocol used by Lessar
// air conditioners.
//
// A pulse train is a slice of durations in microseconds, alternating between
// carrier-on marks and carrier-off spaces, starting with a mark.
package irrelay

import "fmt"

// Canonical durations of the chained NEC protocol, in microseconds.
const (
	ShortMicros  = 562
	LongMicros   = 1687
	SyncMicros   = 4300
	FillerMicros = 9000 - SyncMicros
)

// CarrierHz is the modulation frequency used when transmitting.
const CarrierHz = 38000

// Symbol is the class a single pulse duration is quantized into.
type Symbol uint8

const (
	// Short encodes a 0 bit, or the prelude mark before every bit.
	Short Symbol = iota
	// Long encodes a 1 bit.
	Long
	// Sync marks the start of a frame. It may only appear on a byte boundary.
	Sync
	// Filler separates the two halves of a frame. It may only appear on a
	// byte boundary.
	Filler
)

// symbolMicros is iterated in this exact order by Classify; ties resolve to
// the earlier entry.
var symbolMicros = [...]struct {
	symbol Symbol
	micros int
}{
	{Short, ShortMicros},
	{Long, LongMicros},
	{Sync, SyncMicros},
	{Filler, FillerMicros},
}

// String implements [fmt.Stringer].
func (s Symbol) String() string {
	switch s {
	case Short:
		return "short"
	case Long:
		return "long"
	case Sync:
		return "sync"
	case Filler:
		return "filler"
	default:
		return fmt.Sprintf("Symbol(%d)", uint8(s))
	}
}

// IsMarker reports whether s carries no data and resets the bit prelude.
func (s Symbol) IsMarker() bool {
	return s == Sync || s == Filler
}

// Micros returns the canonical duration of s.
func (s Symbol) Micros() int {
	for _, c := range symbolMicros {
		if c.symbol == s {
			return c.micros
		}
	}
	return 0
}

// Classify quantizes a measured duration to the symbol with the nearest
// canonical duration. Every input maps to exactly one symbol.
func Classify(micros int) Symbol {
	// Outside this range the answer is Short or Filler regardless, and the
	// distances below cannot overflow.
	micros = min(max(micros, 0), 2*FillerMicros)

	closest := symbolMicros[0]
	for _, c := range symbolMicros[1:] {
		if abs(c.micros-micros) < abs(closest.micros-micros) {
			closest = c
		}
	}
	return closest.symbol
}

// ClassifyAll classifies every pulse of a train.
func ClassifyAll(pulses []int) []Symbol {
	symbols := make([]Symbol, len(pulses))
	for i, p := range pulses {
		symbols[i] = Classify(p)
	}
	return symbols
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
