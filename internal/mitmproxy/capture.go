package mitmproxy

import (
	"encoding/json"
	"net/url"

	"github.com/jnakagawa/loggy/internal/extractor"
)

// capture runs the classify-decompress-extract pipeline for one proxied
// POST body and appends any resulting events to the shared buffer. It
// never returns an error to the caller: every failure mode here is
// logged and swallowed, per the C4 propagation policy — request
// inspection must never be the reason a proxied request fails.
func (s *Server) capture(requestURL, contentEncoding string, body []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic recovered during capture", "url", requestURL, "panic", r)
		}
	}()

	if int64(len(body)) > s.maxTeeSize {
		s.logger.Debug("body exceeds capture size cap, skipping", "url", requestURL, "size", len(body))
		return
	}

	decoded, err := decompress(body, contentEncoding)
	if err != nil {
		s.logger.Debug("decompression failed, skipping capture", "url", requestURL, "error", err)
		return
	}

	src, matched := s.registry.Match(requestURL)
	if !matched {
		s.registry.TrackUnmatched(requestURL, tryDecodeForUnmatched(decoded))
		return
	}

	events, err := extractor.ExtractSafe(decoded, src, requestURL)
	if err != nil {
		s.logger.Error("event extraction panicked", "url", requestURL, "error", err)
		return
	}

	if len(events) > 0 {
		s.buffer.Append(events...)
		s.registry.RecordCapture(src.ID)
	}
}

// tryDecodeForUnmatched best-effort parses body as JSON for storage as
// an unmatched entry's last_payload; falls back to the raw string so an
// unparsable body is still visible to the UI.
func tryDecodeForUnmatched(body []byte) any {
	var v any
	if err := json.Unmarshal(body, &v); err == nil {
		return v
	}
	return string(body)
}

// requestURL reconstructs the absolute URL a request was made to. Plain
// forward-proxy requests already carry an absolute URL in req.URL;
// requests read off a MITM'd TLS connection carry only the origin-form
// path, so the scheme and domain from the CONNECT target are substituted
// in.
func requestURL(scheme, domain, requestURI string) string {
	u := &url.URL{Scheme: scheme, Host: domain}
	if requestURI == "" {
		requestURI = "/"
	}
	return u.String() + requestURI
}
