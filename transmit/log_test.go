package transmit_test

import (
	"context"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/neilotoole/slogt"
	"libdb.so/irrelay/transmit"
)

func TestLogTransmit(t *testing.T) {
	tx := transmit.Log{Logger: slogt.New(t)}
	assert.NoError(t, tx.Transmit(context.Background(), []int{4300, 4300, 562}, 38000))
}
