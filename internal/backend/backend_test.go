package backend_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/neilotoole/slogt"
	"libdb.so/irrelay"
	"libdb.so/irrelay/catalog"
	"libdb.so/irrelay/internal/backend"
	"libdb.so/irrelay/relay"
	"libdb.so/irrelay/transport"
)

var loopback = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}

type recordingTransmitter struct {
	mu   sync.Mutex
	sent [][]int
}

func (r *recordingTransmitter) Transmit(_ context.Context, pulses []int, _ int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, append([]int(nil), pulses...))
	return nil
}

func (r *recordingTransmitter) snapshot() [][]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]int(nil), r.sent...)
}

func run(t *testing.T, fn func(ctx context.Context) error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- fn(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.IsError(t, <-errCh, context.Canceled)
	})
}

func startUDP(t *testing.T) *transport.UDP {
	t.Helper()
	udp := transport.NewUDP(slogt.New(t))
	run(t, func(ctx context.Context) error {
		if err := udp.ListenAndServe(ctx, loopback); err != nil {
			return err
		}
		return ctx.Err()
	})
	<-udp.Ready()
	return udp
}

type client struct {
	t   *testing.T
	url string
}

func (c client) do(method, path string, body any, out any) int {
	c.t.Helper()

	var r bytes.Buffer
	if body != nil {
		assert.NoError(c.t, json.NewEncoder(&r).Encode(body))
	}
	req, err := http.NewRequest(method, c.url+path, &r)
	assert.NoError(c.t, err)

	resp, err := http.DefaultClient.Do(req)
	assert.NoError(c.t, err)
	defer resp.Body.Close()

	assert.Equal(c.t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		assert.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestServerCommands(t *testing.T) {
	nodeUDP := startUDP(t)
	backendUDP := startUDP(t)

	tx := &recordingTransmitter{}
	node := relay.NewNode(irrelay.NewController(tx, slogt.New(t)), nodeUDP, slogt.New(t))
	node.Backend = backendUDP.LocalAddr()
	run(t, node.Run)

	session := relay.NewSession(backendUDP, nil, slogt.New(t))
	run(t, session.Run)

	cat, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	assert.NoError(t, err)
	t.Cleanup(func() { cat.Close() })
	_, err = cat.Save(context.Background(), catalog.Entry{Name: "power", Pulses: []int{4300, 4300, 562}})
	assert.NoError(t, err)

	srv := httptest.NewServer(backend.NewServer(session, cat, slogt.New(t)).Handler())
	defer srv.Close()
	c := client{t, srv.URL}

	// The node heartbeat on startup brings the session online.
	deadline := time.Now().Add(5 * time.Second)
	for {
		var status backend.StatusResponse
		assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/status", nil, &status))
		if status.Online {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("node never came online")
		}
		time.Sleep(10 * time.Millisecond)
	}

	var resp backend.CommandResponse
	assert.Equal(t, http.StatusOK, c.do(http.MethodPost, "/command", backend.CommandRequest{Name: "power"}, &resp))
	assert.Equal(t, backend.CommandResponse{Sequence: 1, Pulses: 3}, resp)

	assert.Equal(t, http.StatusOK, c.do(http.MethodPost, "/command", backend.CommandRequest{Pulses: []int{562, 1687, 562}}, &resp))
	assert.Equal(t, backend.CommandResponse{Sequence: 2, Pulses: 3}, resp)

	assert.Equal(t, [][]int{{4300, 4300, 562}, {562, 1687, 562}}, tx.snapshot())

	var status backend.StatusResponse
	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/status", nil, &status))
	assert.Equal(t, backend.StatusResponse{Online: true, LastSequence: 2}, status)
}

func TestServerRejects(t *testing.T) {
	session := relay.NewSession(startUDP(t), nil, slogt.New(t))
	run(t, session.Run)

	cat, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	assert.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	srv := httptest.NewServer(backend.NewServer(session, cat, slogt.New(t)).Handler())
	defer srv.Close()
	c := client{t, srv.URL}

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"wrong method", http.MethodGet, "/command", nil, http.StatusMethodNotAllowed},
		{"bad body", http.MethodPost, "/command", "not an object", http.StatusBadRequest},
		{"no pulses", http.MethodPost, "/command", backend.CommandRequest{}, http.StatusBadRequest},
		{"both", http.MethodPost, "/command", backend.CommandRequest{Name: "power", Pulses: []int{562}}, http.StatusBadRequest},
		{"too long", http.MethodPost, "/command", backend.CommandRequest{Pulses: make([]int, irrelay.BufferCapacity+1)}, http.StatusBadRequest},
		{"negative", http.MethodPost, "/command", backend.CommandRequest{Pulses: []int{562, -1}}, http.StatusBadRequest},
		{"unknown name", http.MethodPost, "/command", backend.CommandRequest{Name: "power"}, http.StatusNotFound},
		{"offline", http.MethodPost, "/command", backend.CommandRequest{Pulses: []int{562}}, http.StatusServiceUnavailable},
		{"status method", http.MethodPost, "/status", nil, http.StatusMethodNotAllowed},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c.t = t
			var resp struct {
				Error string `json:"error"`
			}
			assert.Equal(t, test.want, c.do(test.method, test.path, test.body, &resp))
			assert.NotEqual(t, "", resp.Error)
		})
	}

	var status backend.StatusResponse
	c.t = t
	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/status", nil, &status))
	assert.Equal(t, backend.StatusResponse{}, status)
}

func TestServerWithoutCatalog(t *testing.T) {
	session := relay.NewSession(startUDP(t), nil, slogt.New(t))
	srv := httptest.NewServer(backend.NewServer(session, nil, slogt.New(t)).Handler())
	defer srv.Close()

	var resp struct {
		Error string `json:"error"`
	}
	code := client{t, srv.URL}.do(http.MethodPost, "/command", backend.CommandRequest{Name: "power"}, &resp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "no catalog configured", resp.Error)
}
