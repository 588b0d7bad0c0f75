package sources

import (
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
)

// analyticsPathHints are case-insensitive path substrings that mark a
// request as "looks like analytics traffic" for track_unmatched, even
// though no configured source recognizes it.
var analyticsPathHints = []string{
	"/analytics", "/events", "/track", "/collect", "/log", "/beacon",
	"/v1/batch", "/v1/track", "/evs", "/telemetry", "/metrics",
}

// compiledSource pairs a Source with its pre-compiled URL pattern glob,
// built once per registry mutation and reused on every match — the same
// compile-once-apply-many split the teacher's rewrite rule engine uses.
type compiledSource struct {
	source  Source
	pattern glob.Glob // nil means "match any path"
}

// Registry holds the ordered set of source rules plus the unmatched
// candidate-domain feedback list. Reads (Match, List) take the read
// lock; writes (Add, Update, Remove, Replace, TrackUnmatched) take the
// write lock — the hot request path never blocks other readers.
type Registry struct {
	mu        sync.RWMutex
	compiled  []compiledSource
	unmatched map[string]*UnmatchedEntry
}

// NewRegistry returns an empty registry. Use Replace to seed it.
func NewRegistry() *Registry {
	return &Registry{
		unmatched: make(map[string]*UnmatchedEntry),
	}
}

func compile(s Source) compiledSource {
	s.Domain = BaseDomain(s.Domain)
	cs := compiledSource{source: s}
	if s.URLPattern != "" {
		if g, err := compilePattern(s.URLPattern); err == nil {
			cs.pattern = g
		}
	}
	return cs
}

// Add appends a new source to the registry (at the end of insertion
// order) and clears any unmatched-domain entry for its domain.
func (r *Registry) Add(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compiled = append(r.compiled, compile(s))
	delete(r.unmatched, BaseDomain(s.Domain))
}

// Update replaces the source with a matching ID in place, preserving its
// position in insertion order.
func (r *Registry) Update(s Source) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, cs := range r.compiled {
		if cs.source.ID == s.ID {
			r.compiled[i] = compile(s)
			delete(r.unmatched, BaseDomain(s.Domain))
			return true
		}
	}
	return false
}

// Remove deletes the source with the given ID. Reports whether anything
// was removed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, cs := range r.compiled {
		if cs.source.ID == id {
			r.compiled = append(r.compiled[:i], r.compiled[i+1:]...)
			return true
		}
	}
	return false
}

// Replace swaps the entire source list, preserving the given order as
// the new insertion order. Used by POST /sources (full sync) and on
// startup with the list read by Store.LoadAll.
func (r *Registry) Replace(all []Source) {
	compiled := make([]compiledSource, 0, len(all))
	for _, s := range all {
		compiled = append(compiled, compile(s))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compiled = compiled
}

// List returns a snapshot of all sources in insertion order.
func (r *Registry) List() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Source, len(r.compiled))
	for i, cs := range r.compiled {
		out[i] = cs.source
	}
	return out
}

// Match finds the best source for url, or (Source{}, false) if none
// match. A source matches when it's enabled, its domain equals the
// registrable base domain of the URL's host, and either its URLPattern
// is empty or it matches the URL's path. Among matches, a source with a
// non-empty URLPattern outscores a domain-only source; ties break by
// insertion order.
func (r *Registry) Match(rawURL string) (Source, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Source{}, false
	}
	base := BaseDomain(u.Hostname())

	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		best      Source
		bestScore int = -1
	)
	for _, cs := range r.compiled {
		s := cs.source
		if !s.Enabled || strings.ToLower(s.Domain) != base {
			continue
		}
		if cs.pattern != nil && !cs.pattern.Match(u.Path) {
			continue
		}
		score := 0
		if s.URLPattern != "" {
			score = 1
		}
		if score > bestScore {
			best = s
			bestScore = score
		}
	}
	if bestScore < 0 {
		return Source{}, false
	}
	return best, true
}

// RecordCapture bumps the matched source's capture counter.
func (r *Registry) RecordCapture(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, cs := range r.compiled {
		if cs.source.ID == id {
			r.compiled[i].source.Stats.Captures++
			r.compiled[i].source.Stats.LastCapturedAt = time.Now().UTC()
			return
		}
	}
}

// looksLikeAnalytics reports whether path contains one of the
// analytics-heuristic substrings, case-insensitively.
func looksLikeAnalytics(path string) bool {
	lower := strings.ToLower(path)
	for _, hint := range analyticsPathHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// TrackUnmatched records rawURL as an unmatched analytics candidate if
// its path looks like analytics traffic and no source already matches
// it. Returns true if an entry was created or updated.
func (r *Registry) TrackUnmatched(rawURL string, payload any) bool {
	u, err := url.Parse(rawURL)
	if err != nil || !looksLikeAnalytics(u.Path) {
		return false
	}
	if _, ok := r.Match(rawURL); ok {
		return false
	}

	base := BaseDomain(u.Hostname())
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.unmatched[base]
	if !ok {
		entry = &UnmatchedEntry{
			Domain:    base,
			FirstSeen: now,
		}
		r.unmatched[base] = entry
	}
	entry.ExampleURL = rawURL
	entry.LastPayload = payload
	entry.Count++
	entry.LastSeen = now
	return true
}

// SeedUnmatched loads previously persisted unmatched-domain entries
// verbatim, preserving their Count/FirstSeen/LastSeen. Used on startup
// to restore the prior snapshot; TrackUnmatched's increment-on-call
// semantics would instead reset every entry to Count=1, FirstSeen=now.
func (r *Registry) SeedUnmatched(entries []UnmatchedEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range entries {
		e := entries[i]
		r.unmatched[e.Domain] = &e
	}
}

// Unmatched returns a snapshot of tracked unmatched-domain entries
// sorted by count descending.
func (r *Registry) Unmatched() []UnmatchedEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]UnmatchedEntry, 0, len(r.unmatched))
	for _, e := range r.unmatched {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// UnmatchedDomain returns the tracked entry for domain, if any.
func (r *Registry) UnmatchedDomain(domain string) (UnmatchedEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.unmatched[domain]
	if !ok {
		return UnmatchedEntry{}, false
	}
	return *e, true
}

// ClearUnmatchedDomain removes a single unmatched entry. Reports whether
// it existed.
func (r *Registry) ClearUnmatchedDomain(domain string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.unmatched[domain]; !ok {
		return false
	}
	delete(r.unmatched, domain)
	return true
}

// ClearUnmatched empties the entire unmatched-domain map.
func (r *Registry) ClearUnmatched() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unmatched = make(map[string]*UnmatchedEntry)
}
