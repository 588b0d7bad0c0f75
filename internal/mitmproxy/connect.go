package mitmproxy

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// handleConnect establishes a tunnel for an HTTP CONNECT request, then
// hands the hijacked connection to the MITM session. Every CONNECT
// target is intercepted — spec.md has no configured-domain allowlist,
// unlike the ad-blocking proxy this package is adapted from.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	host := r.Host
	domain := stripPort(host)
	if !strings.Contains(host, ":") {
		host = host + ":443"
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "hijacking not supported", http.StatusInternalServerError)
		return
	}

	clientConn, _, err := hijacker.Hijack()
	if err != nil {
		http.Error(w, fmt.Sprintf("hijack error: %v", err), http.StatusInternalServerError)
		return
	}

	if _, err := clientConn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		_ = clientConn.Close()
		return
	}

	go s.mitmSession(clientConn, domain, host, r.RemoteAddr)
}

// mitmSession terminates TLS with the client using a leaf cert for
// domain, dials the real upstream over TLS, and proxies HTTP
// request/response cycles between the two connections until either side
// closes or the idle timeout elapses. Takes ownership of clientConn.
func (s *Server) mitmSession(clientConn net.Conn, domain, upstreamAddr, clientAddr string) {
	defer func() { _ = clientConn.Close() }()

	start := time.Now()

	leaf, err := s.ca.MintLeaf(domain)
	if err != nil {
		s.logger.Error("leaf cert mint failed", "domain", domain, "error", err)
		return
	}

	clientTLS := tls.Server(clientConn, &tls.Config{
		Certificates: []tls.Certificate{*leaf},
		MinVersion:   tls.VersionTLS12,
	})
	hsCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := clientTLS.HandshakeContext(hsCtx); err != nil {
		s.logger.Debug("client TLS handshake failed", "domain", domain, "error", err)
		return
	}
	defer func() { _ = clientTLS.Close() }()

	upstreamConn, err := net.DialTimeout("tcp", upstreamAddr, s.connectTimeout)
	if err != nil {
		s.logger.Error("upstream dial failed", "upstream", upstreamAddr, "error", err)
		return
	}
	defer func() { _ = upstreamConn.Close() }()

	upstreamTLS := tls.Client(upstreamConn, &tls.Config{
		ServerName: domain,
		NextProtos: []string{"http/1.1"},
		MinVersion: tls.VersionTLS12,
	})
	upCtx, upCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer upCancel()
	if err := upstreamTLS.HandshakeContext(upCtx); err != nil {
		s.logger.Error("upstream TLS handshake failed", "domain", domain, "error", err)
		return
	}
	defer func() { _ = upstreamTLS.Close() }()

	requests := s.mitmProxyLoop(clientTLS, upstreamTLS, domain, clientAddr)

	s.logger.Info("mitm session end",
		"domain", domain,
		"requests", requests,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// mitmProxyLoop reads HTTP requests off clientTLS, relays each to
// upstreamTLS with hop-by-hop headers removed and the body unchanged,
// tees POST/PUT bodies to capture, and relays the response back the
// same way. Returns the number of
// request/response cycles completed.
func (s *Server) mitmProxyLoop(clientTLS, upstreamTLS *tls.Conn, domain, clientAddr string) int {
	clientReader := bufio.NewReader(clientTLS)
	upstreamReader := bufio.NewReader(upstreamTLS)
	requests := 0

	for {
		if s.idleTimeout > 0 {
			_ = clientTLS.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}

		req, err := http.ReadRequest(clientReader)
		if err != nil {
			if err != io.EOF && !isClosedConnErr(err) {
				s.logger.Debug("client request read failed", "domain", domain, "error", err)
			}
			break
		}

		removeHopByHopHeaders(req.Header)
		if req.Host == "" {
			req.Host = domain
		}

		var bodyCopy []byte
		if req.Body != nil && (req.Method == http.MethodPost || req.Method == http.MethodPut) {
			raw, readErr := io.ReadAll(req.Body)
			_ = req.Body.Close()
			if readErr != nil {
				s.logger.Debug("request body read failed", "domain", domain, "error", readErr)
				break
			}
			bodyCopy = raw
			req.Body = io.NopCloser(bytes.NewReader(raw))
			req.ContentLength = int64(len(raw))
		}

		if writeErr := req.Write(upstreamTLS); writeErr != nil {
			s.logger.Error("upstream request write failed", "domain", domain, "error", writeErr)
			break
		}

		if bodyCopy != nil {
			fullURL := requestURL("https", domain, req.URL.RequestURI())
			go s.capture(fullURL, req.Header.Get("Content-Encoding"), bodyCopy)
		}

		resp, err := http.ReadResponse(upstreamReader, req)
		if err != nil {
			s.logger.Error("upstream response read failed", "domain", domain, "error", err)
			break
		}
		removeHopByHopHeaders(resp.Header)

		if writeErr := resp.Write(clientTLS); writeErr != nil {
			_ = resp.Body.Close()
			if !isClosedConnErr(writeErr) {
				s.logger.Debug("client response write failed", "domain", domain, "error", writeErr)
			}
			break
		}
		_ = resp.Body.Close()

		requests++
		if resp.Close || req.Close {
			break
		}
	}

	return requests
}

// stripPort removes a trailing ":port" from a host:port string, if
// present.
func stripPort(hostport string) string {
	if idx := strings.LastIndex(hostport, ":"); idx >= 0 {
		return hostport[:idx]
	}
	return hostport
}

// isClosedConnErr reports whether err represents an expected
// already-closed-connection condition (client navigated away, tab
// closed) rather than a real transport failure worth a louder log.
func isClosedConnErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "use of closed network connection") ||
		strings.Contains(s, "connection reset by peer") ||
		strings.Contains(s, "broken pipe")
}
