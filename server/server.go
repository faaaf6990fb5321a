// Package server exposes protocols over HTTP. A call is sent as the body of
// POST /api/call/{protocol} and answered with the protocol's result text.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tomyedwab/sqlcustom/audit"
	"github.com/tomyedwab/sqlcustom/protocol"
)

// MaxRequestSize bounds the body of a call request.
const MaxRequestSize = 64 << 10

type Config struct {
	Listen string
	// SecretKey signs caller tokens. Nil serves calls without authentication.
	SecretKey []byte
	Protocols []*protocol.Protocol
	// Audit is optional.
	Audit  *audit.Logger
	Logger *slog.Logger
}

type Server struct {
	protocols map[string]*protocol.Protocol
	key       []byte
	audit     *audit.Logger
	logger    *slog.Logger
	http      *http.Server
}

func New(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		protocols: make(map[string]*protocol.Protocol, len(cfg.Protocols)),
		key:       cfg.SecretKey,
		audit:     cfg.Audit,
		logger:    logger,
	}
	for _, p := range cfg.Protocols {
		if _, exists := s.protocols[p.Name()]; exists {
			return nil, errors.New("duplicate protocol " + p.Name())
		}
		s.protocols[p.Name()] = p
	}
	s.http = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/call/{protocol}", Chain(s.handleCall,
		LoginRequired(s.key, s.denied),
		LogRequests(s.logger),
	))
	mux.HandleFunc("GET /api/status", Chain(s.handleStatus,
		LoginRequired(s.key, s.denied),
		LogRequests(s.logger),
	))
	return mux
}

// Start serves until Stop is called. It returns http.ErrServerClosed after a
// clean stop.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "address", s.http.Addr)
	return s.http.ListenAndServe()
}

// Stop waits for in-flight calls to finish or ctx to expire.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("protocol")
	requestID := RequestID(r.Context())
	caller := ""
	if claims := Claims(r.Context()); claims != nil {
		caller = claims.Subject
		if !claims.Allows(name) {
			s.record(func(a *audit.Logger) error {
				return a.LogDenied(audit.EventForbidden, requestID, caller, name)
			})
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	p, ok := s.protocols[name]
	if !ok {
		http.Error(w, "Unknown protocol "+name, http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestSize))
	if err != nil {
		http.Error(w, "Request too large", http.StatusRequestEntityTooLarge)
		return
	}
	request := string(body)

	start := time.Now()
	result := p.Handle(r.Context(), request)
	took := time.Since(start)
	s.record(func(a *audit.Logger) error {
		return a.LogCall(requestID, caller, name, request, result, took)
	})

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, result)
}

type protocolStatus struct {
	Database string `json:"database"`
	Calls    int    `json:"calls"`
	Version  int    `json:"version"`
}

type status struct {
	Status    string                    `json:"status"`
	Protocols map[string]protocolStatus `json:"protocols"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := status{Status: "ok", Protocols: make(map[string]protocolStatus, len(s.protocols))}
	for name, p := range s.protocols {
		resp.Protocols[name] = protocolStatus{
			Database: p.Database(),
			Calls:    p.Registry().Len(),
			Version:  p.Registry().Version(),
		}
	}
	body, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func (s *Server) denied(r *http.Request) {
	s.record(func(a *audit.Logger) error {
		return a.LogDenied(audit.EventUnauthorized, RequestID(r.Context()), "", r.PathValue("protocol"))
	})
}

func (s *Server) record(fn func(*audit.Logger) error) {
	if s.audit == nil {
		return
	}
	if err := fn(s.audit); err != nil {
		s.logger.Error("Failed to write audit event", "error", err)
	}
}
