package controlplane

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnakagawa/loggy/internal/eventbuf"
	"github.com/jnakagawa/loggy/internal/extractor"
	"github.com/jnakagawa/loggy/internal/sources"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	registry := sources.NewRegistry()
	registry.Replace(sources.Defaults())
	return New(Config{
		Registry: registry,
		Buffer:   eventbuf.New(10),
	})
}

func (s *Server) serve(method, path string, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, r)
	return rec
}

func TestHandleEvents_ReturnsSnapshotAndCount(t *testing.T) {
	s := newTestServer(t)
	s.buffer.Append(extractor.Event{Event: "Login"})

	rec := s.serve(http.MethodGet, "/events", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got eventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got.Count)
}

func TestHandleClear_EmptiesBufferAndUnmatched(t *testing.T) {
	s := newTestServer(t)
	s.buffer.Append(extractor.Event{Event: "Login"})
	s.registry.TrackUnmatched("https://unknown.example.com/collect", nil)

	rec := s.serve(http.MethodPost, "/clear", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, s.buffer.Count())
	assert.Empty(t, s.registry.Unmatched())
}

func TestHandleSources_GetThenReplace(t *testing.T) {
	s := newTestServer(t)

	rec := s.serve(http.MethodGet, "/sources", "")
	require.Equal(t, http.StatusOK, rec.Code)

	newList := `[{"id":"custom","name":"Custom","enabled":true,"domain":"custom.example.com"}]`
	rec = s.serve(http.MethodPost, "/sources", newList)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, s.registry.List(), 1)
}

func TestHandleUnmatchedDomain_NotFoundThenFound(t *testing.T) {
	s := newTestServer(t)

	rec := s.serve(http.MethodGet, "/unmatched/example.com", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s.registry.TrackUnmatched("https://nope.example.com/beacon", map[string]any{"a": 1})
	rec = s.serve(http.MethodGet, "/unmatched/example.com", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleHealth_ReportsCounts(t *testing.T) {
	s := newTestServer(t)
	s.buffer.Append(extractor.Event{Event: "Login"})

	rec := s.serve(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, 1, got.EventsCaptured)
	assert.Equal(t, len(sources.Defaults()), got.SourcesLoaded)
}

func TestWithCORS_AnswersPreflight(t *testing.T) {
	s := newTestServer(t)
	rec := s.serve(http.MethodOptions, "/events", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
