/*
Package mitmproxy is the core data-plane component: it accepts plain HTTP
forward-proxy requests and HTTP CONNECT tunnels, terminates TLS on
CONNECT targets using a leaf certificate minted by internal/ca, relays
traffic upstream unchanged, and tees POST bodies to the classify/extract
pipeline (internal/sources + internal/extractor) without altering what
the origin server actually receives.
*/
package mitmproxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jnakagawa/loggy/internal/ca"
	"github.com/jnakagawa/loggy/internal/eventbuf"
	"github.com/jnakagawa/loggy/internal/sources"
)

// DefaultMaxTeeSize is the largest request body handed to
// classification/extraction. Larger bodies are still read whole and
// forwarded upstream unchanged, but are not captured; the read itself is
// not size-bounded. Independent of any response-side buffering concern —
// this proxy never inspects or modifies responses.
const DefaultMaxTeeSize = 1 << 20 // 1 MiB

// Server is the MITM forward proxy.
type Server struct {
	httpServer *http.Server
	ca         *ca.CA
	registry   *sources.Registry
	buffer     *eventbuf.Buffer
	logger     *slog.Logger
	verbose    bool

	connectTimeout time.Duration
	idleTimeout    time.Duration
	maxTeeSize     int64

	startTime         time.Time
	connectionsTotal  atomic.Int64
	connectionsActive atomic.Int64

	shutdownOnce sync.Once
}

// Config configures a new Server.
type Config struct {
	ListenAddr     string
	CA             *ca.CA
	Registry       *sources.Registry
	Buffer         *eventbuf.Buffer
	Logger         *slog.Logger
	Verbose        bool
	ConnectTimeout time.Duration
	IdleTimeout    time.Duration
	MaxTeeSize     int64
}

// New constructs a Server from cfg, applying defaults for zero-valued
// timeouts and size caps.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 2 * time.Minute
	}
	if cfg.MaxTeeSize <= 0 {
		cfg.MaxTeeSize = DefaultMaxTeeSize
	}

	s := &Server{
		ca:             cfg.CA,
		registry:       cfg.Registry,
		buffer:         cfg.Buffer,
		logger:         cfg.Logger,
		verbose:        cfg.Verbose,
		connectTimeout: cfg.ConnectTimeout,
		idleTimeout:    cfg.IdleTimeout,
		maxTeeSize:     cfg.MaxTeeSize,
		startTime:      time.Now(),
	}

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// ServeHTTP dispatches CONNECT tunnels to the MITM handler and
// everything else to the plain forward-proxy handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.connectionsTotal.Add(1)
	s.connectionsActive.Add(1)
	defer s.connectionsActive.Add(-1)

	if r.Method == http.MethodConnect {
		s.handleConnect(w, r)
		return
	}
	s.handleHTTP(w, r)
}

// handleHTTP forwards a plain (non-TLS) proxy request to its destination
// and relays the response back, teeing POST bodies to capture on the
// way through without altering what's forwarded upstream.
func (s *Server) handleHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Host == "" {
		http.Error(w, "missing host in request", http.StatusBadRequest)
		return
	}

	start := time.Now()

	var bodyCopy []byte
	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut) {
		raw, err := io.ReadAll(r.Body)
		_ = r.Body.Close()
		if err != nil {
			http.Error(w, fmt.Sprintf("read body: %v", err), http.StatusBadGateway)
			return
		}
		bodyCopy = raw
		r.Body = io.NopCloser(bytes.NewReader(raw))
	}

	outReq := r.Clone(r.Context())
	outReq.RequestURI = ""
	removeHopByHopHeaders(outReq.Header)
	if bodyCopy != nil {
		outReq.Body = io.NopCloser(bytes.NewReader(bodyCopy))
		outReq.ContentLength = int64(len(bodyCopy))
	}

	resp, err := http.DefaultTransport.RoundTrip(outReq)
	if err != nil {
		http.Error(w, fmt.Sprintf("proxy error: %v", err), http.StatusBadGateway)
		s.logger.Error("upstream request failed", "url", r.URL.String(), "error", err)
		return
	}
	defer resp.Body.Close() //nolint:errcheck // response body close in defer

	if bodyCopy != nil {
		fullURL := requestURL(r.URL.Scheme, r.Host, r.URL.RequestURI())
		go s.capture(fullURL, r.Header.Get("Content-Encoding"), bodyCopy)
	}

	removeHopByHopHeaders(resp.Header)
	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body) //nolint:errcheck // best-effort streaming

	s.logger.Info("http",
		"method", r.Method,
		"url", r.URL.String(),
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// ListenAndServe starts the proxy's plain-HTTP/CONNECT listener.
func (s *Server) ListenAndServe() error {
	s.logger.Info("mitm proxy starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the listener, letting in-flight connections
// finish within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.logger.Info("mitm proxy shutting down")
		err = s.httpServer.Shutdown(ctx)
	})
	return err
}

// ConnectionsTotal returns the total number of connections accepted.
func (s *Server) ConnectionsTotal() int64 { return s.connectionsTotal.Load() }

// ConnectionsActive returns the number of in-flight connections.
func (s *Server) ConnectionsActive() int64 { return s.connectionsActive.Load() }

// Uptime returns the duration since the server was constructed.
func (s *Server) Uptime() time.Duration { return time.Since(s.startTime) }

// hopByHopHeaders are stripped from both the outbound request and the
// inbound response — they describe a single transport hop, not the
// end-to-end conversation a proxy relays.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

func removeHopByHopHeaders(h http.Header) {
	for _, hdr := range hopByHopHeaders {
		h.Del(hdr)
	}
}
