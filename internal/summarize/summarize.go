// Package summarize maintains the rolling summary tiers: daily summaries with
// wellbeing metrics, and weekly/monthly rollups built from the tier below.
// Summaries are regenerated in place (last write wins), so re-running a period
// is always safe.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/memodiary/memo/internal/llm"
	"github.com/memodiary/memo/internal/log"
	"github.com/memodiary/memo/internal/store"
)

// MinEntryLength gates the lazy daily trigger: short messages ("ok", "thanks")
// do not justify re-summarizing the day.
const MinEntryLength = 80

// defaultMood is used when the model supplies no glyph.
const defaultMood = "😌"

// SummaryStore is the store surface the summarizer needs.
type SummaryStore interface {
	EntriesForDay(ctx context.Context, sessionID string, day time.Time) ([]store.Entry, error)
	UpsertSummary(ctx context.Context, period store.Period, sum store.Summary) error
	GetSummary(ctx context.Context, period store.Period, sessionID, periodKey string) (store.Summary, error)
	SummariesInRange(ctx context.Context, period store.Period, sessionID, fromKey, toKey string) ([]store.Summary, error)
	UpsertDailyMetrics(ctx context.Context, sessionID string, day time.Time, u store.MetricsUpdate) error
}

// Generator is the single-call surface from the llm layer.
type Generator interface {
	Invoke(ctx context.Context, req llm.Request) (string, error)
}

// Summarizer builds and refreshes summaries.
type Summarizer struct {
	gen    Generator
	st     SummaryStore
	model  string
	logger log.Logger
}

// New creates a Summarizer.
func New(gen Generator, st SummaryStore, model string, logger log.Logger) *Summarizer {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Summarizer{gen: gen, st: st, model: model, logger: logger.With("component", "summarize")}
}

const dailyPrompt = `You summarize one day of a person's diary.

Respond with JSON only:
{
  "summary": "<at most 3 sentences, past tense, warm but factual>",
  "mood_emoji": "<one emoji capturing the day's mood>",
  "key_events": ["short labels for notable events, if any"],
  "metrics": {
    "energy": <1-10 or null if the entries give no signal>,
    "stress": <1-10 or null>,
    "sleep": <hours slept 0-10 or null>
  }
}`

const rollupPrompt = `You condense a series of diary summaries into one.

Respond with JSON only:
{
  "summary": "<at most 3 sentences covering the whole period>",
  "mood_emoji": "<one emoji for the period's overall mood>",
  "key_events": ["the few events that defined the period"]
}`

type dailyJSON struct {
	Summary   string   `json:"summary"`
	MoodEmoji string   `json:"mood_emoji"`
	KeyEvents []string `json:"key_events"`
	Metrics   struct {
		Energy *int16 `json:"energy"`
		Stress *int16 `json:"stress"`
		Sleep  *int16 `json:"sleep"`
	} `json:"metrics"`
}

type rollupJSON struct {
	Summary   string   `json:"summary"`
	MoodEmoji string   `json:"mood_emoji"`
	KeyEvents []string `json:"key_events"`
}

// ResummarizeDay rebuilds the daily summary and metrics for the given day
// from its user entries. A day with no user entries is skipped.
func (s *Summarizer) ResummarizeDay(ctx context.Context, sessionID string, day time.Time) error {
	entries, err := s.st.EntriesForDay(ctx, sessionID, day)
	if err != nil {
		return fmt.Errorf("loading entries: %w", err)
	}

	var b strings.Builder
	for _, e := range entries {
		if e.Role != "user" {
			continue
		}
		b.WriteString("- " + e.Text + "\n")
	}
	if b.Len() == 0 {
		return nil
	}

	zero := float32(0)
	out, err := s.gen.Invoke(ctx, llm.Request{
		Model:       s.model,
		System:      dailyPrompt,
		Input:       b.String(),
		Temperature: &zero,
		JSONMode:    true,
	})
	if err != nil {
		return fmt.Errorf("daily summary call: %w", err)
	}

	var parsed dailyJSON
	if err := json.Unmarshal([]byte(stripFences(out)), &parsed); err != nil {
		return fmt.Errorf("decoding daily summary: %w", err)
	}
	if strings.TrimSpace(parsed.Summary) == "" {
		return fmt.Errorf("daily summary came back empty")
	}

	key := day.Format("2006-01-02")
	if err := s.st.UpsertSummary(ctx, store.PeriodDaily, store.Summary{
		SessionID:   sessionID,
		PeriodKey:   key,
		SummaryText: parsed.Summary,
		MoodEmoji:   moodOrDefault(parsed.MoodEmoji),
		KeyEvents:   parsed.KeyEvents,
	}); err != nil {
		return fmt.Errorf("writing daily summary: %w", err)
	}

	// Null metrics from the model get midpoint defaults for energy and
	// stress; sleep stays unknown because guessing hours would be worse
	// than admitting absence.
	update := store.MetricsUpdate{
		Energy: coerce(parsed.Metrics.Energy, 5),
		Stress: coerce(parsed.Metrics.Stress, 3),
		Sleep:  clamp(parsed.Metrics.Sleep),
	}
	if err := s.st.UpsertDailyMetrics(ctx, sessionID, day, update); err != nil {
		return fmt.Errorf("writing daily metrics: %w", err)
	}
	return nil
}

// RollupWeek builds the weekly summary for the 7 days ending yesterday.
// Today is excluded: it is still being written.
func (s *Summarizer) RollupWeek(ctx context.Context, sessionID string, now time.Time) error {
	start := now.AddDate(0, 0, -7)
	end := now.AddDate(0, 0, -1)
	return s.rollup(ctx, sessionID, store.PeriodWeekly,
		start.Format("2006-01-02"),
		start.Format("2006-01-02"), end.Format("2006-01-02"))
}

// RollupMonth builds the monthly summary for the previous calendar month.
func (s *Summarizer) RollupMonth(ctx context.Context, sessionID string, now time.Time) error {
	firstOfThis := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	prev := firstOfThis.AddDate(0, -1, 0)
	monthKey := prev.Format("2006-01")
	return s.rollup(ctx, sessionID, store.PeriodMonthly,
		monthKey, monthKey+"-01", monthKey+"-31")
}

// rollup condenses the daily summaries in [fromKey, toKey] into one row of the
// given period. No daily material means no write.
func (s *Summarizer) rollup(ctx context.Context, sessionID string, period store.Period, periodKey, fromKey, toKey string) error {
	dailies, err := s.st.SummariesInRange(ctx, store.PeriodDaily, sessionID, fromKey, toKey)
	if err != nil {
		return fmt.Errorf("loading daily summaries: %w", err)
	}
	if len(dailies) == 0 {
		return nil
	}

	var b strings.Builder
	for _, d := range dailies {
		fmt.Fprintf(&b, "%s %s %s\n", d.PeriodKey, d.MoodEmoji, d.SummaryText)
	}

	zero := float32(0)
	out, err := s.gen.Invoke(ctx, llm.Request{
		Model:       s.model,
		System:      rollupPrompt,
		Input:       b.String(),
		Temperature: &zero,
		JSONMode:    true,
	})
	if err != nil {
		return fmt.Errorf("%s rollup call: %w", period, err)
	}

	var parsed rollupJSON
	if err := json.Unmarshal([]byte(stripFences(out)), &parsed); err != nil {
		return fmt.Errorf("decoding %s rollup: %w", period, err)
	}
	if strings.TrimSpace(parsed.Summary) == "" {
		return fmt.Errorf("%s rollup came back empty", period)
	}

	if err := s.st.UpsertSummary(ctx, period, store.Summary{
		SessionID:   sessionID,
		PeriodKey:   periodKey,
		SummaryText: parsed.Summary,
		MoodEmoji:   moodOrDefault(parsed.MoodEmoji),
		KeyEvents:   parsed.KeyEvents,
	}); err != nil {
		return fmt.Errorf("writing %s rollup: %w", period, err)
	}
	return nil
}

// EnsureRollups builds any missing weekly and monthly rollups for the
// session. Called on session start; errors are logged, not returned, because
// a stale rollup must never block a conversation.
func (s *Summarizer) EnsureRollups(ctx context.Context, sessionID string, now time.Time) {
	weekKey := now.AddDate(0, 0, -7).Format("2006-01-02")
	if _, err := s.st.GetSummary(ctx, store.PeriodWeekly, sessionID, weekKey); err != nil {
		if err := s.RollupWeek(ctx, sessionID, now); err != nil {
			s.logger.Warn("weekly rollup failed", "session_id", sessionID, "error", err)
		}
	}

	monthKey := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).
		AddDate(0, -1, 0).Format("2006-01")
	if _, err := s.st.GetSummary(ctx, store.PeriodMonthly, sessionID, monthKey); err != nil {
		if err := s.RollupMonth(ctx, sessionID, now); err != nil {
			s.logger.Warn("monthly rollup failed", "session_id", sessionID, "error", err)
		}
	}
}

func coerce(v *int16, fallback int16) *int16 {
	if v == nil || *v < 1 || *v > 10 {
		return &fallback
	}
	return v
}

// clamp keeps a reported value only when it is in range; nil otherwise.
func clamp(v *int16) *int16 {
	if v == nil || *v < 0 || *v > 10 {
		return nil
	}
	return v
}

func moodOrDefault(mood string) string {
	if strings.TrimSpace(mood) == "" {
		return defaultMood
	}
	return mood
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
