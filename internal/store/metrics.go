package store

import (
	"context"
	"fmt"
	"time"
)

// MetricsUpdate carries partial daily metric values. Nil fields leave the
// stored value untouched.
type MetricsUpdate struct {
	Energy *int16
	Stress *int16
	Sleep  *int16
}

// UpsertDailyMetrics writes one day's metrics as a single atomic statement.
// Absent fields keep their stored value (or the unknown sentinel on first
// insert), so two concurrent partial updates never clobber each other's
// fields.
func (s *Store) UpsertDailyMetrics(ctx context.Context, sessionID string, day time.Time, u MetricsUpdate) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO daily_metrics (session_id, day, energy, stress, sleep)
		 VALUES ($1, $2, COALESCE($3, -1), COALESCE($4, -1), COALESCE($5, -1))
		 ON CONFLICT (session_id, day) DO UPDATE SET
		   energy       = COALESCE($3, daily_metrics.energy),
		   stress       = COALESCE($4, daily_metrics.stress),
		   sleep        = COALESCE($5, daily_metrics.sleep),
		   last_updated = now()`,
		sessionID, day, u.Energy, u.Stress, u.Sleep)
	if err != nil {
		return fmt.Errorf("upserting daily metrics for %s: %w", day.Format("2006-01-02"), err)
	}
	return nil
}

// MetricsRange returns metrics for days in [from, to], oldest first.
func (s *Store) MetricsRange(ctx context.Context, sessionID string, from, to time.Time) ([]Metrics, error) {
	rows, err := s.db.Query(ctx,
		`SELECT session_id, day, energy, stress, sleep
		 FROM daily_metrics
		 WHERE session_id = $1 AND day >= $2 AND day <= $3
		 ORDER BY day ASC`,
		sessionID, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying metrics range: %w", err)
	}
	defer rows.Close()

	var out []Metrics
	for rows.Next() {
		var m Metrics
		if err := rows.Scan(&m.SessionID, &m.Day, &m.Energy, &m.Stress, &m.Sleep); err != nil {
			return nil, fmt.Errorf("scanning metrics: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating metrics: %w", err)
	}
	return out, nil
}
