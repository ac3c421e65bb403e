// Package backend serves the HTTP API of the relay backend: commands are
// forwarded to the node through a relay session.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"libdb.so/irrelay"
	"libdb.so/irrelay/catalog"
	"libdb.so/irrelay/relay"
)

// Remote is the node as seen through a [relay.Session].
type Remote interface {
	SendCommand(ctx context.Context, pulses []int) (int64, error)
	IsOnline() bool
	LastSequence() int64
}

var _ Remote = (*relay.Session)(nil)

// CommandRequest is the body of POST /command. Exactly one of Name and
// Pulses is set.
type CommandRequest struct {
	// Name is a catalog entry.
	Name   string `json:"name,omitempty"`
	Pulses []int  `json:"pulses,omitempty"`
}

// CommandResponse is the body of a successful POST /command.
type CommandResponse struct {
	Sequence int64 `json:"sequence"`
	Pulses   int   `json:"pulses"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Online       bool  `json:"online"`
	LastSequence int64 `json:"last_sequence"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server is the backend HTTP API.
type Server struct {
	remote  Remote
	catalog *catalog.Catalog
	logger  *slog.Logger
}

// NewServer creates the API. cat may be nil, in which case commands can only
// carry pulses.
func NewServer(remote Remote, cat *catalog.Catalog, logger *slog.Logger) *Server {
	return &Server{
		remote:  remote,
		catalog: cat,
		logger:  logger,
	}
}

// Handler returns the http.Handler serving /command and /status.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/command", s.serveCommand)
	mux.HandleFunc("/status", s.serveStatus)
	return s.logRequests(mux)
}

func (s *Server) serveCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respond(w, r, http.StatusMethodNotAllowed, errorResponse{"method not allowed"})
		return
	}

	var req CommandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		s.respond(w, r, http.StatusBadRequest, errorResponse{fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	pulses, status, err := s.resolvePulses(r.Context(), req)
	if err != nil {
		s.respond(w, r, status, errorResponse{err.Error()})
		return
	}

	seq, err := s.remote.SendCommand(r.Context(), pulses)
	if err != nil {
		s.logger.WarnContext(r.Context(),
			"command not acknowledged",
			"sequence", seq,
			"err", err)
		s.respond(w, r, sendErrorStatus(err), errorResponse{err.Error()})
		return
	}

	s.respond(w, r, http.StatusOK, CommandResponse{Sequence: seq, Pulses: len(pulses)})
}

func (s *Server) resolvePulses(ctx context.Context, req CommandRequest) ([]int, int, error) {
	var pulses []int
	switch {
	case req.Name != "" && req.Pulses != nil:
		return nil, http.StatusBadRequest, errors.New("name and pulses are mutually exclusive")

	case req.Name != "":
		if s.catalog == nil {
			return nil, http.StatusBadRequest, errors.New("no catalog configured")
		}
		entry, err := s.catalog.Get(ctx, req.Name)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return nil, http.StatusNotFound, err
			}
			return nil, http.StatusInternalServerError, err
		}
		pulses = entry.Pulses

	default:
		pulses = req.Pulses
	}

	if len(pulses) == 0 {
		return nil, http.StatusBadRequest, errors.New("command has no pulses")
	}
	if len(pulses) > irrelay.BufferCapacity {
		return nil, http.StatusBadRequest, fmt.Errorf("command has %d pulses, the node holds at most %d", len(pulses), irrelay.BufferCapacity)
	}
	for i, p := range pulses {
		if p <= 0 {
			return nil, http.StatusBadRequest, fmt.Errorf("pulse %d has invalid duration %d", i, p)
		}
	}

	return pulses, http.StatusOK, nil
}

func sendErrorStatus(err error) int {
	switch {
	case errors.Is(err, relay.ErrOffline):
		return http.StatusServiceUnavailable
	case errors.Is(err, relay.ErrNoResponse), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) serveStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respond(w, r, http.StatusMethodNotAllowed, errorResponse{"method not allowed"})
		return
	}

	s.respond(w, r, http.StatusOK, StatusResponse{
		Online:       s.remote.IsOnline(),
		LastSequence: s.remote.LastSequence(),
	})
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WarnContext(r.Context(),
			"cannot write response",
			"path", r.URL.Path,
			"err", err)
	}
}

func (s *Server) logRequests(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h.ServeHTTP(w, r)
		s.logger.DebugContext(r.Context(),
			"http request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"took", time.Since(start))
	})
}
