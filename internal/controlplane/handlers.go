package controlplane

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/jnakagawa/loggy/internal/sources"
)

// eventsResponse is the body of GET /events.
type eventsResponse struct {
	Events           []any          `json:"events"`
	Count            int            `json:"count"`
	UnmatchedDomains map[string]any `json:"unmatchedDomains"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snapshot := s.buffer.Snapshot()
	events := make([]any, len(snapshot))
	for i, e := range snapshot {
		events[i] = e
	}

	unmatched := map[string]any{}
	for _, e := range s.registry.Unmatched() {
		unmatched[e.Domain] = e
	}

	writeJSON(w, http.StatusOK, eventsResponse{
		Events:           events,
		Count:            len(events),
		UnmatchedDomains: unmatched,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.buffer.Clear()
	s.registry.ClearUnmatched()
	if s.store != nil {
		if err := s.store.SaveUnmatched(nil); err != nil {
			s.logger.Error("failed to persist cleared unmatched map", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.registry.List())
	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read body")
			return
		}
		var all []sources.Source
		if err := json.Unmarshal(body, &all); err != nil {
			writeError(w, http.StatusBadRequest, "invalid source list: "+err.Error())
			return
		}
		for i := range all {
			if all[i].ID == "" {
				all[i].ID = uuid.New().String()
			}
		}
		s.registry.Replace(all)
		if s.store != nil {
			if err := s.store.ReplaceAll(all); err != nil {
				s.logger.Error("failed to persist source sync", "error", err)
				writeError(w, http.StatusInternalServerError, "persisted sync failed: "+err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleUnmatched(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.registry.Unmatched())
	case http.MethodDelete:
		s.registry.ClearUnmatched()
		if s.store != nil {
			if err := s.store.SaveUnmatched(nil); err != nil {
				s.logger.Error("failed to persist cleared unmatched map", "error", err)
			}
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleUnmatchedDomain serves GET/DELETE /unmatched/{domain}.
func (s *Server) handleUnmatchedDomain(w http.ResponseWriter, r *http.Request) {
	domain := r.URL.Path[len("/unmatched/"):]
	if domain == "" {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		entry, ok := s.registry.UnmatchedDomain(domain)
		if !ok {
			writeError(w, http.StatusNotFound, "no unmatched entry for domain")
			return
		}
		writeJSON(w, http.StatusOK, entry)
	case http.MethodDelete:
		if !s.registry.ClearUnmatchedDomain(domain) {
			writeError(w, http.StatusNotFound, "no unmatched entry for domain")
			return
		}
		if s.store != nil {
			if err := s.store.SaveUnmatched(s.registry.Unmatched()); err != nil {
				s.logger.Error("failed to persist unmatched clear", "error", err)
			}
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status         string   `json:"status"`
	UptimeSeconds  float64  `json:"uptime_seconds"`
	EventsCaptured int      `json:"events_captured"`
	SourcesLoaded  int      `json:"sources_loaded"`
	RecentErrors   []string `json:"recent_errors,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:         "ok",
		UptimeSeconds:  s.uptime().Seconds(),
		EventsCaptured: s.buffer.Count(),
		SourcesLoaded:  len(s.registry.List()),
	}
	if s.recent != nil {
		for _, e := range s.recent.Recent(20, slog.LevelError) {
			resp.RecentErrors = append(resp.RecentErrors, e.Message)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
