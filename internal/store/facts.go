package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const factColumns = `session_id, memory_key, memory_type, memory_value,
	COALESCE(source_entry_id, 0), confidence, last_updated`

// UpsertFact writes one fact with last-write-wins semantics and invalidates
// the session's read cache.
func (s *Store) UpsertFact(ctx context.Context, f Fact) error {
	if f.MemoryType == "" {
		f.MemoryType = "fact"
	}
	if f.Confidence == 0 {
		f.Confidence = 1.0
	}

	var sourceID any
	if f.SourceEntryID != 0 {
		sourceID = f.SourceEntryID
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO facts (session_id, memory_key, memory_type, memory_value, source_entry_id, confidence)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (session_id, memory_key) DO UPDATE SET
		   memory_type     = EXCLUDED.memory_type,
		   memory_value    = EXCLUDED.memory_value,
		   source_entry_id = EXCLUDED.source_entry_id,
		   confidence      = EXCLUDED.confidence,
		   last_updated    = now()`,
		f.SessionID, f.MemoryKey, f.MemoryType, f.MemoryValue, sourceID, f.Confidence)
	if err != nil {
		return fmt.Errorf("upserting fact %q: %w", f.MemoryKey, err)
	}

	s.cache.invalidate(f.SessionID)
	return nil
}

// GetFact fetches a single fact by key, consulting the read cache first.
// Misses are cached too.
func (s *Store) GetFact(ctx context.Context, sessionID, key string) (Fact, error) {
	if fact, present, ok := s.cache.get(sessionID, key); ok {
		if !present {
			return Fact{}, ErrNotFound
		}
		return fact, nil
	}

	var f Fact
	err := s.db.QueryRow(ctx,
		`SELECT `+factColumns+` FROM facts WHERE session_id = $1 AND memory_key = $2`,
		sessionID, key).
		Scan(&f.SessionID, &f.MemoryKey, &f.MemoryType, &f.MemoryValue,
			&f.SourceEntryID, &f.Confidence, &f.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		s.cache.put(sessionID, key, Fact{}, false)
		return Fact{}, ErrNotFound
	}
	if err != nil {
		return Fact{}, fmt.Errorf("querying fact %q: %w", key, err)
	}

	s.cache.put(sessionID, key, f, true)
	return f, nil
}

// GetFacts fetches the facts for the given keys in one round trip. Keys with
// no stored fact are simply absent from the result.
func (s *Store) GetFacts(ctx context.Context, sessionID string, keys []string) ([]Fact, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+factColumns+` FROM facts
		 WHERE session_id = $1 AND memory_key = ANY($2)
		 ORDER BY memory_key`,
		sessionID, keys)
	if err != nil {
		return nil, fmt.Errorf("querying facts: %w", err)
	}
	return scanFacts(rows)
}

// AllFacts returns up to limit facts for the session, most recently updated
// first. Callers pass limit+1 to detect truncation.
func (s *Store) AllFacts(ctx context.Context, sessionID string, limit int) ([]Fact, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+factColumns+` FROM facts
		 WHERE session_id = $1
		 ORDER BY last_updated DESC, memory_key
		 LIMIT $2`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying all facts: %w", err)
	}
	return scanFacts(rows)
}

func scanFacts(rows pgx.Rows) ([]Fact, error) {
	defer rows.Close()
	var facts []Fact
	for rows.Next() {
		var f Fact
		if err := rows.Scan(&f.SessionID, &f.MemoryKey, &f.MemoryType, &f.MemoryValue,
			&f.SourceEntryID, &f.Confidence, &f.LastUpdated); err != nil {
			return nil, fmt.Errorf("scanning fact: %w", err)
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating facts: %w", err)
	}
	return facts, nil
}
