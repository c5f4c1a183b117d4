package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"AgentBounty/internal/bounty"
	"AgentBounty/internal/events"
	"AgentBounty/internal/logger"
)

// Server is the HTTP API server.
type Server struct {
	addr     string              // addr is the HTTP listen address
	machine  *bounty.Machine     // machine applies lifecycle operations
	bus      *events.Bus         // bus streams committed events, nil disables /events/stream
	gatherer prometheus.Gatherer // gatherer backs /metrics, nil disables it
	faucet   bool                // faucet enables the deposit endpoint
	server   *http.Server        // server is the underlying HTTP server
}

// Options configures the optional endpoints.
type Options struct {
	Bus      *events.Bus         // Bus enables the event stream
	Gatherer prometheus.Gatherer // Gatherer enables /metrics
	Faucet   bool                // Faucet enables account deposits
}

// New creates a new HTTP API server.
func New(addr string, machine *bounty.Machine, opts Options) *Server {
	return &Server{
		addr:     addr,
		machine:  machine,
		bus:      opts.Bus,
		gatherer: opts.Gatherer,
		faucet:   opts.Faucet,
	}
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /protocol/initialize", s.handleInitialize)
	mux.HandleFunc("POST /bounties", s.handleCreate)
	mux.HandleFunc("POST /bounties/{id}/claim", s.handleClaim)
	mux.HandleFunc("POST /bounties/{id}/submit", s.handleSubmit)
	mux.HandleFunc("POST /bounties/{id}/approve", s.handleApprove)
	mux.HandleFunc("POST /bounties/{id}/cancel", s.handleCancel)

	mux.HandleFunc("GET /bounties", s.handleList)
	mux.HandleFunc("GET /bounties/{id}", s.handleGet)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /accounts/{pubkey}", s.handleBalance)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /audit", s.handleAudit)
	mux.HandleFunc("GET /health", s.handleHealth)

	if s.faucet {
		mux.HandleFunc("POST /accounts/{pubkey}/deposit", s.handleDeposit)
	}

	if s.bus != nil {
		mux.HandleFunc("GET /events/stream", s.handleStream)
	}

	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return mux
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http api started", "addr", s.addr, "faucet", s.faucet)

		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ErrorBody is the JSON body of every failed request.
type ErrorBody struct {
	Error string `json:"error"`          // Error is the human-readable reason
	Code  string `json:"code,omitempty"` // Code is the stable rejection name
	Kind  string `json:"kind,omitempty"` // Kind is the rejection class
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorBody{
		Error: message,
		Code:  code,
		Kind:  bounty.KindValidation.String(),
	})
}

// writeFailure maps an operation error to its status code.
// Errors without a rejection code are infrastructure failures and are not echoed.
func writeFailure(w http.ResponseWriter, err error) {
	code := bounty.CodeOf(err)
	if code == "" {
		logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorBody{Error: "internal error"})
		return
	}

	kind := bounty.KindOf(err)

	writeJSON(w, statusFor(kind), ErrorBody{
		Error: err.Error(),
		Code:  code,
		Kind:  kind.String(),
	})
}

// statusFor maps a rejection class to an HTTP status.
func statusFor(kind bounty.Kind) int {
	switch kind {
	case bounty.KindValidation:
		return http.StatusBadRequest
	case bounty.KindNotFound:
		return http.StatusNotFound
	case bounty.KindAuthorization:
		return http.StatusForbidden
	case bounty.KindState, bounty.KindTemporal, bounty.KindFunds, bounty.KindProtocol:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
