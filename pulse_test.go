package irrelay_test

import (
	"math"
	"testing"

	"github.com/alecthomas/assert/v2"
	"libdb.so/irrelay"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		micros int
		want   irrelay.Symbol
	}{
		{irrelay.ShortMicros, irrelay.Short},
		{irrelay.LongMicros, irrelay.Long},
		{irrelay.SyncMicros, irrelay.Sync},
		{irrelay.FillerMicros, irrelay.Filler},
		{600, irrelay.Short},
		{0, irrelay.Short},
		{-100, irrelay.Short},
		{1124, irrelay.Short},
		{1125, irrelay.Long},
		{2993, irrelay.Long},
		{2994, irrelay.Sync},
		// Equidistant from sync and filler: the earlier candidate wins.
		{4500, irrelay.Sync},
		{4501, irrelay.Filler},
		{9000, irrelay.Filler},
		{1 << 30, irrelay.Filler},
		{math.MaxInt, irrelay.Filler},
		{math.MinInt, irrelay.Short},
		{math.MinInt + 1000, irrelay.Short},
	}

	for _, test := range tests {
		assert.Equal(t, test.want, irrelay.Classify(test.micros), "classify %d", test.micros)
	}
}

func TestClassifyAll(t *testing.T) {
	got := irrelay.ClassifyAll([]int{4350, 4410, 540, 1650, 610, 590, 5180})
	want := []irrelay.Symbol{
		irrelay.Sync, irrelay.Sync,
		irrelay.Short, irrelay.Long,
		irrelay.Short, irrelay.Short,
		irrelay.Filler,
	}
	assert.Equal(t, want, got)
}

func TestSymbolMicros(t *testing.T) {
	for _, s := range []irrelay.Symbol{irrelay.Short, irrelay.Long, irrelay.Sync, irrelay.Filler} {
		assert.Equal(t, s, irrelay.Classify(s.Micros()), "symbol %v", s)
	}
	assert.Equal(t, 4700, irrelay.Filler.Micros())
	assert.Equal(t, "Symbol(9)", irrelay.Symbol(9).String())
}
