package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// SaveEntry appends one message to the conversation log and returns its id.
func (s *Store) SaveEntry(ctx context.Context, sessionID, role, text, languageCode string) (int64, error) {
	if languageCode == "" {
		languageCode = "en"
	}
	var id int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO entries (session_id, role, text, language_code)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		sessionID, role, text, languageCode).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting entry: %w", err)
	}
	return id, nil
}

// SetEntryMetadata records the extractor's classification for an entry. The
// WHERE clause makes it set-once: a second extraction pass for the same entry
// is a silent no-op.
func (s *Store) SetEntryMetadata(ctx context.Context, entryID int64, eventType string, topics []string, importance int16) error {
	_, err := s.db.Exec(ctx,
		`UPDATE entries
		 SET event_type = $2, topics = $3, importance = $4
		 WHERE id = $1 AND event_type IS NULL`,
		entryID, eventType, topics, importance)
	if err != nil {
		return fmt.Errorf("setting entry metadata: %w", err)
	}
	return nil
}

// RecentEntries returns the last limit entries for the session, oldest first.
func (s *Store) RecentEntries(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, session_id, ts, role, text, language_code,
		        COALESCE(event_type, ''), COALESCE(topics, '{}'), COALESCE(importance, 0)
		 FROM entries
		 WHERE session_id = $1
		 ORDER BY ts DESC, id DESC
		 LIMIT $2`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent entries: %w", err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	reverseEntries(entries)
	return entries, nil
}

// EntriesForDay returns all entries whose timestamp falls on the given
// calendar day, oldest first.
func (s *Store) EntriesForDay(ctx context.Context, sessionID string, day time.Time) ([]Entry, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)
	rows, err := s.db.Query(ctx,
		`SELECT id, session_id, ts, role, text, language_code,
		        COALESCE(event_type, ''), COALESCE(topics, '{}'), COALESCE(importance, 0)
		 FROM entries
		 WHERE session_id = $1 AND ts >= $2 AND ts < $3
		 ORDER BY ts ASC, id ASC`,
		sessionID, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying entries for day: %w", err)
	}
	return scanEntries(rows)
}

// SearchEntries finds entries containing the keyword, newest first. An entry
// also matches when a stored fact extracted from it matches, so a search for
// "cat" still finds the entry that taught us the pet's name.
func (s *Store) SearchEntries(ctx context.Context, sessionID, keyword string, limit int) ([]Entry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT e.id, e.session_id, e.ts, e.role, e.text, e.language_code,
		        COALESCE(e.event_type, ''), COALESCE(e.topics, '{}'), COALESCE(e.importance, 0)
		 FROM entries e
		 WHERE e.session_id = $1
		   AND (e.text ILIKE '%' || $2 || '%'
		        OR EXISTS (
		            SELECT 1 FROM facts f
		            WHERE f.session_id = e.session_id
		              AND f.source_entry_id = e.id
		              AND (f.memory_key ILIKE '%' || $2 || '%'
		                   OR f.memory_value ILIKE '%' || $2 || '%')))
		 ORDER BY e.ts DESC, e.id DESC
		 LIMIT $3`,
		sessionID, keyword, limit)
	if err != nil {
		return nil, fmt.Errorf("searching entries: %w", err)
	}
	return scanEntries(rows)
}

// Sessions returns the distinct session ids present in the conversation log,
// most recently active first. Used by the nightly rollup sweep.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT session_id, max(ts) AS last_ts
		 FROM entries
		 GROUP BY session_id
		 ORDER BY last_ts DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []string
	for rows.Next() {
		var id string
		var lastTS time.Time
		if err := rows.Scan(&id, &lastTS); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.TS, &e.Role, &e.Text,
			&e.LanguageCode, &e.EventType, &e.Topics, &e.Importance); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return entries, nil
}

func reverseEntries(entries []Entry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}
