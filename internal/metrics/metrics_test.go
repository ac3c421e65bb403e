package metrics_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/neilotoole/slogt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"libdb.so/irrelay"
	"libdb.so/irrelay/internal/metrics"
)

type flakyTransmitter struct{ fail bool }

func (f *flakyTransmitter) Transmit(context.Context, []int, int) error {
	if f.fail {
		return errors.New("led on fire")
	}
	return nil
}

func TestObserveCommand(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	tx := &flakyTransmitter{}
	c := irrelay.NewController(tx, slogt.New(t), irrelay.WithCapacity(4), irrelay.WithObserver(m))
	ctx := context.Background()

	c.Handle(ctx, irrelay.Command{Sequence: 1, Data: []int{4300, 4300, 562}})
	c.Handle(ctx, irrelay.Command{Sequence: 1, Data: []int{562}})
	c.Handle(ctx, irrelay.Command{Sequence: 2, Data: make([]int, 5)})
	tx.fail = true
	c.Handle(ctx, irrelay.Command{Sequence: 3, Data: []int{562}})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Commands.WithLabelValues("transmitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("overflowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransmitErrors))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.LastSequence))

	m.ObservePacket(false)
	m.ObservePacket(true)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PacketsReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PacketsMalformed))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ObservePacket(false)

	srv := httptest.NewServer(metrics.Handler(reg, func() irrelay.Status {
		return irrelay.Status{LastCommandSequenceNumber: 42}
	}, slogt.New(t)))
	defer srv.Close()

	get := func(path string) string {
		resp, err := http.Get(srv.URL + path)
		assert.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		assert.NoError(t, err)
		return string(body)
	}

	assert.Equal(t, `{"last_command_sequence_number":42}`, strings.TrimSpace(get("/status")))
	assert.Contains(t, get("/metrics"), "irrelay_packets_received_total 1")
}

type brokenWriter struct {
	*httptest.ResponseRecorder
}

func (brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("connection reset by peer")
}

func TestHandlerStatusWriteError(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	handler := metrics.Handler(prometheus.NewRegistry(), func() irrelay.Status {
		return irrelay.Status{LastCommandSequenceNumber: 1}
	}, logger)

	w := brokenWriter{httptest.NewRecorder()}
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Contains(t, logs.String(), "cannot write status")
	assert.Contains(t, logs.String(), "connection reset by peer")
}
