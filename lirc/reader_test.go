package lirc

import (
	"context"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/neilotoole/slogt"
)

func feed(t *testing.T, lines ...string) []CommandReply {
	t.Helper()

	replies := make(chan CommandReply, len(lines))
	r := newReplyReader(slogt.New(t), make(chan ButtonPress, 1), replies)
	for _, line := range lines {
		r.read(context.Background(), line)
	}
	close(replies)

	var got []CommandReply
	for reply := range replies {
		got = append(got, reply)
	}
	return got
}

func TestReplyReader(t *testing.T) {
	got := feed(t,
		"BEGIN", "LIST", "SUCCESS", "DATA", "2", "LESSAR", "DENON", "END",
		"BEGIN", "SET_INPUTLOG", "SUCCESS", "DATA", "0", "END",
		"BEGIN", "SIGHUP", "END",
		"BEGIN", "SEND_ONCE X Y", "ERROR", "DATA", "1", "unknown remote", "END",
	)

	assert.Equal(t, []CommandReply{
		{Command: "LIST", Success: true, Data: []string{"LESSAR", "DENON"}},
		{Command: "SET_INPUTLOG", Success: true, Data: []string{}},
		{Command: "SIGHUP", Success: true},
		{Command: "SEND_ONCE X Y", Success: false, Data: []string{"unknown remote"}},
	}, got)
}

func TestReplyReaderRecovers(t *testing.T) {
	got := feed(t,
		"BEGIN", "VERSION", "MAYBE",
		"not a press",
		"BEGIN", "VERSION", "SUCCESS", "DATA", "1", "0.10.2", "TRAILER",
		"BEGIN", "VERSION", "SUCCESS", "DATA", "1", "0.10.2", "END",
	)

	assert.Equal(t, []CommandReply{
		{Command: "VERSION", Success: true, Data: []string{"0.10.2"}},
	}, got)
}

func TestParseButtonPress(t *testing.T) {
	press, err := parseButtonPress("00000000000000ff 0a KEY_OFF LESSAR")
	assert.NoError(t, err)
	assert.Equal(t, ButtonPress{Code: 0xff, RepeatCount: 10, ButtonName: "KEY_OFF", RemoteControlName: "LESSAR"}, press)

	for _, line := range []string{
		"",
		"zz 00 KEY LESSAR",
		"ff xx KEY LESSAR",
		"00112233445566778899 00 KEY LESSAR",
	} {
		_, err := parseButtonPress(line)
		assert.Error(t, err, "line %q", line)
	}
}
