package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// summaryTables maps a Period to its table. Table names are interpolated into
// SQL, so they must come from this fixed map, never from caller input.
var summaryTables = map[Period]string{
	PeriodDaily:   "daily_summaries",
	PeriodWeekly:  "weekly_summaries",
	PeriodMonthly: "monthly_summaries",
}

func summaryTable(p Period) (string, error) {
	table, ok := summaryTables[p]
	if !ok {
		return "", fmt.Errorf("unknown summary period %q", p)
	}
	return table, nil
}

// UpsertSummary writes one rolling summary with last-write-wins semantics.
func (s *Store) UpsertSummary(ctx context.Context, period Period, sum Summary) error {
	table, err := summaryTable(period)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO `+table+` (session_id, period_key, summary_text, mood_emoji, key_events)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (session_id, period_key) DO UPDATE SET
		   summary_text = EXCLUDED.summary_text,
		   mood_emoji   = EXCLUDED.mood_emoji,
		   key_events   = EXCLUDED.key_events,
		   last_updated = now()`,
		sum.SessionID, sum.PeriodKey, sum.SummaryText, sum.MoodEmoji, sum.KeyEvents)
	if err != nil {
		return fmt.Errorf("upserting %s summary %q: %w", period, sum.PeriodKey, err)
	}
	return nil
}

// GetSummary fetches one summary by period key.
func (s *Store) GetSummary(ctx context.Context, period Period, sessionID, periodKey string) (Summary, error) {
	table, err := summaryTable(period)
	if err != nil {
		return Summary{}, err
	}
	var sum Summary
	err = s.db.QueryRow(ctx,
		`SELECT session_id, period_key, summary_text, mood_emoji, COALESCE(key_events, '{}'), last_updated
		 FROM `+table+`
		 WHERE session_id = $1 AND period_key = $2`,
		sessionID, periodKey).
		Scan(&sum.SessionID, &sum.PeriodKey, &sum.SummaryText, &sum.MoodEmoji,
			&sum.KeyEvents, &sum.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return Summary{}, ErrNotFound
	}
	if err != nil {
		return Summary{}, fmt.Errorf("querying %s summary %q: %w", period, periodKey, err)
	}
	return sum, nil
}

// SummariesInRange returns summaries with period keys in [fromKey, toKey],
// oldest first. Keys are zero-padded ISO strings, so lexical range is time
// range.
func (s *Store) SummariesInRange(ctx context.Context, period Period, sessionID, fromKey, toKey string) ([]Summary, error) {
	table, err := summaryTable(period)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx,
		`SELECT session_id, period_key, summary_text, mood_emoji, COALESCE(key_events, '{}'), last_updated
		 FROM `+table+`
		 WHERE session_id = $1 AND period_key >= $2 AND period_key <= $3
		 ORDER BY period_key ASC`,
		sessionID, fromKey, toKey)
	if err != nil {
		return nil, fmt.Errorf("querying %s summaries in range: %w", period, err)
	}
	return scanSummaries(rows)
}

// RecentSummaries returns the last n summaries for the period, newest first.
// Period keys are zero-padded ISO strings, so lexical order is time order.
func (s *Store) RecentSummaries(ctx context.Context, period Period, sessionID string, n int) ([]Summary, error) {
	table, err := summaryTable(period)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx,
		`SELECT session_id, period_key, summary_text, mood_emoji, COALESCE(key_events, '{}'), last_updated
		 FROM `+table+`
		 WHERE session_id = $1
		 ORDER BY period_key DESC
		 LIMIT $2`,
		sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("querying recent %s summaries: %w", period, err)
	}
	return scanSummaries(rows)
}

func scanSummaries(rows pgx.Rows) ([]Summary, error) {
	defer rows.Close()
	var sums []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.SessionID, &sum.PeriodKey, &sum.SummaryText,
			&sum.MoodEmoji, &sum.KeyEvents, &sum.LastUpdated); err != nil {
			return nil, fmt.Errorf("scanning summary: %w", err)
		}
		sums = append(sums, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating summaries: %w", err)
	}
	return sums, nil
}
