// Package server implements the admin HTTP API for a gocaptp daemon.
//
// The admin API is a plain JSON API rather than a generated RPC surface: it
// exists to inspect and manage live sessions (list, show, abort) from
// captpctl or a browser, not to carry CapTP traffic itself.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dantte-lp/gocaptp/internal/captp"
)

// Sentinel errors for the server package.
var (
	// ErrMissingDesignator indicates a request path did not name a session.
	ErrMissingDesignator = errors.New("designator must not be empty")
)

// abortRequest is the JSON body accepted by POST /api/v1/sessions/{designator}/abort.
type abortRequest struct {
	Reason string `json:"reason"`
}

// sessionSummary is the JSON shape returned for one session, both in the
// list and show endpoints.
type sessionSummary struct {
	Designator      string `json:"designator"`
	Transport       string `json:"transport"`
	ExportTableSize int    `json:"export_table_size"`
	ImportTableSize int    `json:"import_table_size"`
}

// AdminServer implements the gocaptp admin HTTP API.
//
// Each handler delegates to the session Manager for actual CapTP state; the
// server itself is a thin JSON adapter.
type AdminServer struct {
	manager *captp.Manager
	logger  *slog.Logger
}

// New creates an AdminServer and returns the path prefix and the HTTP
// handler to mount at that prefix, wrapped with the logging and recovery
// middleware every handler in this server gets.
func New(mgr *captp.Manager, logger *slog.Logger) (string, http.Handler) {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &AdminServer{
		manager: mgr,
		logger:  logger.With(slog.String("component", "server")),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealthz)
	mux.HandleFunc("GET /api/v1/sessions", srv.handleListSessions)
	mux.HandleFunc("GET /api/v1/sessions/{designator}", srv.handleGetSession)
	mux.HandleFunc("POST /api/v1/sessions/{designator}/abort", srv.handleAbortSession)

	handler := RecoveryMiddleware(srv.logger)(LoggingMiddleware(srv.logger)(mux))
	return "/", handler
}

// handleHealthz reports liveness; it does not depend on any session state.
func (s *AdminServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListSessions returns a summary of every currently registered
// session.
func (s *AdminServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	designators := s.manager.Snapshot()
	summaries := make([]sessionSummary, 0, len(designators))
	for _, d := range designators {
		session, err := s.manager.Lookup(d)
		if err != nil {
			continue
		}
		summaries = append(summaries, summarize(session))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sessions": summaries})
}

// handleGetSession returns the summary for a single session by designator.
func (s *AdminServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	designator := r.PathValue("designator")
	if designator == "" {
		s.writeError(w, http.StatusBadRequest, ErrMissingDesignator)
		return
	}

	session, err := s.manager.Lookup(designator)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}

	s.writeJSON(w, http.StatusOK, summarize(session))
}

// handleAbortSession aborts a single session by designator, with an
// optional JSON body naming the abort reason.
func (s *AdminServer) handleAbortSession(w http.ResponseWriter, r *http.Request) {
	designator := r.PathValue("designator")
	if designator == "" {
		s.writeError(w, http.StatusBadRequest, ErrMissingDesignator)
		return
	}

	session, err := s.manager.Lookup(designator)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}

	var body abortRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if body.Reason == "" {
		body.Reason = "aborted via admin API"
	}

	if err := session.Abort(body.Reason); err != nil {
		s.logger.Warn("abort failed",
			slog.String("designator", designator), slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.manager.Unregister(designator, session)

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "aborted"})
}

func summarize(session *captp.Session) sessionSummary {
	return sessionSummary{
		Designator:      session.Designator(),
		Transport:       session.Transport(),
		ExportTableSize: session.ExportTableSize(),
		ImportTableSize: session.ImportTableSize(),
	}
}

func (s *AdminServer) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("write response failed", slog.String("error", err.Error()))
	}
}

func (s *AdminServer) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// NewHTTPServer wraps handler with the timeouts the daemon applies to every
// HTTP listener it exposes.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
