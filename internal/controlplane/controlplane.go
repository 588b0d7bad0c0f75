/*
Package controlplane exposes the local HTTP API: event retrieval, source
sync, unmatched-domain inspection, and liveness. It is the canonical
query surface a host browser extension talks to, shared with the
native-messaging bridge (internal/nativemsg) that handles lifecycle.
*/
package controlplane

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/jnakagawa/loggy/internal/eventbuf"
	"github.com/jnakagawa/loggy/internal/logbuf"
	"github.com/jnakagawa/loggy/internal/sources"
)

// Server is the control-plane HTTP API.
type Server struct {
	httpServer *http.Server
	registry   *sources.Registry
	buffer     *eventbuf.Buffer
	store      *sources.Store
	recent     *logbuf.Buffer
	logger     *slog.Logger
	startTime  time.Time
}

// Config configures a new Server.
type Config struct {
	ListenAddr string
	Registry   *sources.Registry
	Buffer     *eventbuf.Buffer
	// Store persists source-rule edits; may be nil, in which case
	// POST /sources updates the in-memory registry only.
	Store *sources.Store
	// RecentErrors feeds GET /health's recent_errors field; may be nil.
	RecentErrors *logbuf.Buffer
	Logger       *slog.Logger
}

// New builds a Server and wires its routes.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		registry:  cfg.Registry,
		buffer:    cfg.Buffer,
		store:     cfg.Store,
		recent:    cfg.RecentErrors,
		logger:    cfg.Logger,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.withCORS(s.handleEvents))
	mux.HandleFunc("/clear", s.withCORS(s.handleClear))
	mux.HandleFunc("/sources", s.withCORS(s.handleSources))
	mux.HandleFunc("/unmatched", s.withCORS(s.handleUnmatched))
	mux.HandleFunc("/unmatched/", s.withCORS(s.handleUnmatchedDomain))
	mux.HandleFunc("/health", s.withCORS(s.handleHealth))

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// uptime reports how long the server has been running.
func (s *Server) uptime() time.Duration {
	return time.Since(s.startTime)
}

// ListenAndServe starts the control-plane HTTP listener.
func (s *Server) ListenAndServe() error {
	s.logger.Info("control plane starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// withCORS wraps h with the permissive cross-origin headers every
// endpoint carries, and answers OPTIONS preflight requests directly.
func (s *Server) withCORS(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
