package lirc_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/google/go-cmp/cmp"
	"libdb.so/irrelay/lirc"
)

func TestReadMode2(t *testing.T) {
	input := `Using driver default on device /dev/lirc0
Trying device: /dev/lirc0
space 16777215
pulse 4364
space 4332
pulse 585
space 1604
carrier 38000
pulse 560
timeout 125000
pulse 560
space 540

pulse 9000
space 45000
pulse 600
`

	bursts, err := lirc.ReadMode2(strings.NewReader(input))
	assert.NoError(t, err)

	want := [][]int{
		{4364, 4332, 585, 1604, 560},
		{560, 540, 9000},
		{600},
	}
	if diff := cmp.Diff(want, bursts); diff != "" {
		t.Errorf("bursts mismatch (-want +got):\n%s", diff)
	}
}

func TestReadMode2Errors(t *testing.T) {
	for _, input := range []string{
		"pulse\n",
		"pulse 12 34\n",
		"space abc\n",
		"pulse -5\n",
	} {
		_, err := lirc.ReadMode2(strings.NewReader(input))
		assert.Error(t, err, "input %q", input)
	}
}

func TestWriteMode2(t *testing.T) {
	burst := []int{4300, 4300, 562, 1687, 562}

	var buf bytes.Buffer
	assert.NoError(t, lirc.WriteMode2(&buf, burst))
	assert.Equal(t, "pulse 4300\nspace 4300\npulse 562\nspace 1687\npulse 562\ntimeout 120000\n", buf.String())

	bursts, err := lirc.ReadMode2(&buf)
	assert.NoError(t, err)
	assert.Equal(t, [][]int{burst}, bursts)
}
