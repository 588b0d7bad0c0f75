package mitmproxy

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnakagawa/loggy/internal/eventbuf"
	"github.com/jnakagawa/loggy/internal/sources"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	registry := sources.NewRegistry()
	registry.Replace([]sources.Source{
		{ID: "mixpanel", Name: "Mixpanel", Enabled: true, Domain: "mixpanel.test"},
	})
	return New(Config{
		Registry: registry,
		Buffer:   eventbuf.New(10),
	})
}

func TestHandleHTTP_ForwardsBodyUnchangedAndCaptures(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"event":"Login"}`, string(body))
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, upstream.URL+"/track", bytes.NewReader([]byte(`{"event":"Login"}`)))
	req.Host = "mixpanel.test"
	rec := httptest.NewRecorder()

	s.handleHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		return s.buffer.Count() == 1
	}, time.Second, 10*time.Millisecond)

	events := s.buffer.Snapshot()
	assert.Equal(t, "Login", events[0].Event)
}

func TestHandleHTTP_MissingHostRejected(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/foo", nil)
	req.URL.Host = ""
	rec := httptest.NewRecorder()
	s.handleHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestURL_ReconstructsAbsoluteURL(t *testing.T) {
	got := requestURL("https", "example.com", "/v1/track?x=1")
	assert.Equal(t, "https://example.com/v1/track?x=1", got)
}

func TestStripPort(t *testing.T) {
	assert.Equal(t, "example.com", stripPort("example.com:443"))
	assert.Equal(t, "example.com", stripPort("example.com"))
}
