package sources

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Store persists a Registry's source rules and unmatched-domain map to
// SQLite so that a POST /sources full sync survives a proxy restart.
// Writes replace the whole table in a transaction — the registry's unit
// of change is always "the entire list," never a single row — mirroring
// the wholesale rebuild the teacher's blocklist cache uses for its own
// bulk-refresh writes.
type Store struct {
	mu   sync.Mutex
	conn *sqlite.Conn
}

// OpenStore opens or creates the sources database under dataDir.
func OpenStore(dataDir string) (*Store, error) {
	conn, err := sqlite.OpenConn(dataDir+"/sources.db", sqlite.OpenReadWrite|sqlite.OpenCreate)
	if err != nil {
		return nil, fmt.Errorf("open sources db: %w", err)
	}
	if err := sqlitex.ExecuteTransient(conn, "PRAGMA journal_mode=WAL", nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.ensureSchema(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

func (s *Store) ensureSchema() error {
	return sqlitex.ExecuteScript(s.conn, `
		CREATE TABLE IF NOT EXISTS sources (
			id               TEXT NOT NULL PRIMARY KEY,
			name             TEXT NOT NULL,
			enabled          INTEGER NOT NULL DEFAULT 1,
			domain           TEXT NOT NULL,
			url_pattern      TEXT NOT NULL DEFAULT '',
			field_mappings   TEXT NOT NULL DEFAULT '{}',
			event_name_path  TEXT NOT NULL DEFAULT '',
			batch_path       TEXT NOT NULL DEFAULT '',
			captures         INTEGER NOT NULL DEFAULT 0,
			last_captured_at TEXT NOT NULL DEFAULT '',
			position         INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS unmatched_domains (
			domain       TEXT NOT NULL PRIMARY KEY,
			example_url  TEXT NOT NULL DEFAULT '',
			last_payload TEXT NOT NULL DEFAULT 'null',
			count        INTEGER NOT NULL DEFAULT 0,
			first_seen   TEXT NOT NULL,
			last_seen    TEXT NOT NULL
		);
	`, nil)
}

// LoadAll reads every persisted source, ordered by insertion position.
func (s *Store) LoadAll() ([]Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Source
	err := sqlitex.Execute(s.conn, `
		SELECT id, name, enabled, domain, url_pattern, field_mappings, event_name_path, batch_path, captures, last_captured_at
		FROM sources ORDER BY position ASC
	`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			src, err := scanSource(stmt)
			if err != nil {
				return err
			}
			out = append(out, src)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	return out, nil
}

// ReplaceAll atomically replaces the persisted source list with all, in
// the given order.
func (s *Store) ReplaceAll(all []Source) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer sqlitex.Save(s.conn)(&err)

	if err = sqlitex.Execute(s.conn, "DELETE FROM sources", nil); err != nil { //nolint:gocritic // named return for sqlitex.Save
		return err
	}

	for i, src := range all {
		mappingsJSON, merr := json.Marshal(src.FieldMappings)
		if merr != nil {
			return fmt.Errorf("marshal field_mappings for %q: %w", src.ID, merr)
		}
		err = sqlitex.Execute(s.conn, `
			INSERT INTO sources (id, name, enabled, domain, url_pattern, field_mappings, event_name_path, batch_path, captures, last_captured_at, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, &sqlitex.ExecOptions{
			Args: []any{
				src.ID, src.Name, boolToInt(src.Enabled), src.Domain, src.URLPattern,
				string(mappingsJSON), src.EventNamePath, src.BatchPath,
				src.Stats.Captures, formatTime(src.Stats.LastCapturedAt), i,
			},
		})
		if err != nil {
			return fmt.Errorf("insert source %q: %w", src.ID, err)
		}
	}
	return nil
}

func scanSource(stmt *sqlite.Stmt) (Source, error) {
	var mappings FieldMappings
	if raw := stmt.ColumnText(5); raw != "" {
		if err := json.Unmarshal([]byte(raw), &mappings); err != nil {
			return Source{}, fmt.Errorf("parse field_mappings: %w", err)
		}
	}
	return Source{
		ID:            stmt.ColumnText(0),
		Name:          stmt.ColumnText(1),
		Enabled:       stmt.ColumnInt64(2) != 0,
		Domain:        stmt.ColumnText(3),
		URLPattern:    stmt.ColumnText(4),
		FieldMappings: mappings,
		EventNamePath: stmt.ColumnText(6),
		BatchPath:     stmt.ColumnText(7),
		Stats: Stats{
			Captures:       stmt.ColumnInt64(8),
			LastCapturedAt: parseTime(stmt.ColumnText(9)),
		},
	}, nil
}

// SaveUnmatched atomically replaces the persisted unmatched-domain map.
func (s *Store) SaveUnmatched(entries []UnmatchedEntry) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer sqlitex.Save(s.conn)(&err)

	if err = sqlitex.Execute(s.conn, "DELETE FROM unmatched_domains", nil); err != nil { //nolint:gocritic // named return for sqlitex.Save
		return err
	}
	for _, e := range entries {
		payloadJSON, merr := json.Marshal(e.LastPayload)
		if merr != nil {
			return fmt.Errorf("marshal last_payload for %q: %w", e.Domain, merr)
		}
		err = sqlitex.Execute(s.conn, `
			INSERT INTO unmatched_domains (domain, example_url, last_payload, count, first_seen, last_seen)
			VALUES (?, ?, ?, ?, ?, ?)
		`, &sqlitex.ExecOptions{
			Args: []any{e.Domain, e.ExampleURL, string(payloadJSON), e.Count, formatTime(e.FirstSeen), formatTime(e.LastSeen)},
		})
		if err != nil {
			return fmt.Errorf("insert unmatched %q: %w", e.Domain, err)
		}
	}
	return nil
}

// LoadUnmatched reads all persisted unmatched-domain entries.
func (s *Store) LoadUnmatched() ([]UnmatchedEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []UnmatchedEntry
	err := sqlitex.Execute(s.conn, `
		SELECT domain, example_url, last_payload, count, first_seen, last_seen FROM unmatched_domains
	`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			var payload any
			if raw := stmt.ColumnText(2); raw != "" {
				if err := json.Unmarshal([]byte(raw), &payload); err != nil {
					return fmt.Errorf("parse last_payload: %w", err)
				}
			}
			out = append(out, UnmatchedEntry{
				Domain:      stmt.ColumnText(0),
				ExampleURL:  stmt.ColumnText(1),
				LastPayload: payload,
				Count:       int(stmt.ColumnInt64(3)),
				FirstSeen:   parseTime(stmt.ColumnText(4)),
				LastSeen:    parseTime(stmt.ColumnText(5)),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("load unmatched: %w", err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
