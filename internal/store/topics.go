package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// UpsertTopicState overwrites the snapshot for one topic.
func (s *Store) UpsertTopicState(ctx context.Context, sessionID, topic, state string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO topic_states (session_id, topic, state)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (session_id, topic) DO UPDATE SET
		   state        = EXCLUDED.state,
		   last_updated = now()`,
		sessionID, topic, state)
	if err != nil {
		return fmt.Errorf("upserting topic state %q: %w", topic, err)
	}
	return nil
}

// TopicStates returns all topic snapshots for the session, alphabetical.
func (s *Store) TopicStates(ctx context.Context, sessionID string) ([]TopicState, error) {
	rows, err := s.db.Query(ctx,
		`SELECT session_id, topic, state, last_updated
		 FROM topic_states
		 WHERE session_id = $1
		 ORDER BY topic`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying topic states: %w", err)
	}
	return scanTopicStates(rows)
}

// TopicStatesFor returns snapshots for the named topics only.
func (s *Store) TopicStatesFor(ctx context.Context, sessionID string, topics []string) ([]TopicState, error) {
	if len(topics) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT session_id, topic, state, last_updated
		 FROM topic_states
		 WHERE session_id = $1 AND topic = ANY($2)
		 ORDER BY topic`,
		sessionID, topics)
	if err != nil {
		return nil, fmt.Errorf("querying topic states: %w", err)
	}
	return scanTopicStates(rows)
}

func scanTopicStates(rows pgx.Rows) ([]TopicState, error) {
	defer rows.Close()
	var states []TopicState
	for rows.Next() {
		var t TopicState
		if err := rows.Scan(&t.SessionID, &t.Topic, &t.State, &t.LastUpdated); err != nil {
			return nil, fmt.Errorf("scanning topic state: %w", err)
		}
		states = append(states, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating topic states: %w", err)
	}
	return states, nil
}
