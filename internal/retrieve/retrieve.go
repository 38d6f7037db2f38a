// Package retrieve assembles the memory context block for a classified
// message. Exactly one retrieval route runs per turn, chosen by intent; the
// result is a bounded plain-text block the generator receives as background,
// or an empty string when the intent needs none.
//
// The assembler never fabricates: absent records simply produce no lines.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/memodiary/memo/internal/intent"
	"github.com/memodiary/memo/internal/log"
	"github.com/memodiary/memo/internal/store"
)

// MemoryStore is the read surface the assembler needs.
type MemoryStore interface {
	GetProfile(ctx context.Context, sessionID string) (store.Profile, error)
	GetFacts(ctx context.Context, sessionID string, keys []string) ([]store.Fact, error)
	AllFacts(ctx context.Context, sessionID string, limit int) ([]store.Fact, error)
	TopicStates(ctx context.Context, sessionID string) ([]store.TopicState, error)
	TopicStatesFor(ctx context.Context, sessionID string, topics []string) ([]store.TopicState, error)
	RecentEntries(ctx context.Context, sessionID string, limit int) ([]store.Entry, error)
	EntriesForDay(ctx context.Context, sessionID string, day time.Time) ([]store.Entry, error)
	SearchEntries(ctx context.Context, sessionID, keyword string, limit int) ([]store.Entry, error)
	RecentSummaries(ctx context.Context, period store.Period, sessionID string, n int) ([]store.Summary, error)
	GetSummary(ctx context.Context, period store.Period, sessionID, periodKey string) (store.Summary, error)
	MetricsRange(ctx context.Context, sessionID string, from, to time.Time) ([]store.Metrics, error)
}

const (
	// rollupCount is how many weekly/monthly summaries a wide date_recall
	// pulls.
	rollupCount = 3
	// factSampleLimit bounds the data_review fact dump.
	factSampleLimit = 20
	// trendWindowDays is the default trend_analysis window.
	trendWindowDays = 30
)

// defaultPlanningTopics are always checked for a snapshot on planning turns,
// on top of whatever topics the analyzer extracted.
var defaultPlanningTopics = []string{"work", "health", "relationships", "projects", "plans"}

// profile fields win over fact rows using these keys.
var profileOwnedKeys = map[string]string{
	"name":       "name",
	"user_name":  "name",
	"my_name":    "name",
	"first_name": "name",
	"age":        "age",
}

// Assembler builds context blocks.
type Assembler struct {
	store        MemoryStore
	historyTurns int
	logger       log.Logger
}

// New creates an Assembler. historyTurns bounds recency-based routes.
func New(st MemoryStore, historyTurns int, logger log.Logger) *Assembler {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Assembler{store: st, historyTurns: historyTurns, logger: logger.With("component", "retrieve")}
}

// Retrieve runs the route for the analysis and returns the context block.
// An empty string means the generator should run without memory context.
func (a *Assembler) Retrieve(ctx context.Context, sessionID string, an intent.Analysis, now time.Time) (string, error) {
	switch an.Intent {
	case intent.IntentPersonalFact:
		return a.personalFacts(ctx, sessionID, an.Params.MemoryKeys)
	case intent.IntentDateRecall:
		return a.dateRecall(ctx, sessionID, an.Params, now)
	case intent.IntentPlanning:
		return a.planning(ctx, sessionID, an.Params.Topics)
	case intent.IntentTrendAnalysis:
		return a.trend(ctx, sessionID, an.Params, now)
	case intent.IntentDataReview:
		return a.dataReview(ctx, sessionID)
	case intent.IntentGeneralKnowledge:
		// World questions get no personal context at all.
		return "", nil
	default:
		// emotional_recall, confirmation, chat: recent conversation.
		return a.recentTurns(ctx, sessionID)
	}
}

func (a *Assembler) personalFacts(ctx context.Context, sessionID string, keys []string) (string, error) {
	var b strings.Builder

	profile, err := a.store.GetProfile(ctx, sessionID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("loading profile: %w", err)
	}
	writeProfile(&b, profile)

	facts, err := a.store.GetFacts(ctx, sessionID, expandKeys(keys))
	if err != nil {
		return "", fmt.Errorf("loading facts: %w", err)
	}

	wrote := false
	for _, f := range facts {
		if suppressed(f.MemoryKey, profile) {
			continue
		}
		if !wrote {
			b.WriteString("[Known Facts]\n")
			wrote = true
		}
		fmt.Fprintf(&b, "- %s: %s\n", f.MemoryKey, f.MemoryValue)
	}

	if b.Len() == 0 {
		return "No stored facts found for this question.\n", nil
	}
	return b.String(), nil
}

func (a *Assembler) dateRecall(ctx context.Context, sessionID string, p intent.SearchParams, now time.Time) (string, error) {
	r := p.DateRange
	if r == nil {
		// No usable range: treat as "that day" being yesterday.
		y := now.AddDate(0, 0, -1)
		r = &intent.DateRange{From: y, To: y}
	}

	span := r.Days()
	switch {
	case span > 30:
		return a.summaryBlock(ctx, store.PeriodMonthly, sessionID, "[Monthly Summaries]")
	case span > 6:
		return a.summaryBlock(ctx, store.PeriodWeekly, sessionID, "[Weekly Summaries]")
	default:
		return a.dayView(ctx, sessionID, r, p.Topics)
	}
}

func (a *Assembler) summaryBlock(ctx context.Context, period store.Period, sessionID, header string) (string, error) {
	sums, err := a.store.RecentSummaries(ctx, period, sessionID, rollupCount)
	if err != nil {
		return "", fmt.Errorf("loading %s summaries: %w", period, err)
	}
	if len(sums) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString(header + "\n")
	for _, s := range sums {
		fmt.Fprintf(&b, "- %s %s %s\n", s.PeriodKey, s.MoodEmoji, s.SummaryText)
	}
	return b.String(), nil
}

// dayView renders each day of a short range: the daily summary when one
// exists, otherwise that day's raw entries. A totally empty result falls back
// to a keyword search over the log when the analyzer extracted topics.
func (a *Assembler) dayView(ctx context.Context, sessionID string, r *intent.DateRange, topics []string) (string, error) {
	var b strings.Builder

	for day := r.From; !day.After(r.To); day = day.AddDate(0, 0, 1) {
		key := day.Format("2006-01-02")

		sum, err := a.store.GetSummary(ctx, store.PeriodDaily, sessionID, key)
		if err == nil {
			fmt.Fprintf(&b, "[%s] %s %s\n", key, sum.MoodEmoji, sum.SummaryText)
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("loading daily summary: %w", err)
		}

		entries, err := a.store.EntriesForDay(ctx, sessionID, day)
		if err != nil {
			return "", fmt.Errorf("loading entries for day: %w", err)
		}
		for _, e := range entries {
			fmt.Fprintf(&b, "[%s] %s: %s\n", key, roleLabel(e.Role), e.Text)
		}
	}

	if b.Len() == 0 && len(topics) > 0 {
		hits, err := a.store.SearchEntries(ctx, sessionID, topics[0], a.historyTurns)
		if err != nil {
			return "", fmt.Errorf("keyword fallback search: %w", err)
		}
		for _, e := range hits {
			fmt.Fprintf(&b, "[%s] %s: %s\n", e.TS.Format("2006-01-02"), roleLabel(e.Role), e.Text)
		}
	}

	return b.String(), nil
}

func (a *Assembler) planning(ctx context.Context, sessionID string, topics []string) (string, error) {
	var b strings.Builder

	profile, err := a.store.GetProfile(ctx, sessionID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("loading profile: %w", err)
	}
	writeProfile(&b, profile)

	wanted := append(append([]string{}, defaultPlanningTopics...), topics...)
	states, err := a.store.TopicStatesFor(ctx, sessionID, dedupe(wanted))
	if err != nil {
		return "", fmt.Errorf("loading topic states: %w", err)
	}
	if len(states) > 0 {
		b.WriteString("[Current Situation]\n")
		for _, t := range states {
			fmt.Fprintf(&b, "- %s: %s\n", t.Topic, t.State)
		}
	}

	if err := a.writeRecentTurns(ctx, &b, sessionID); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (a *Assembler) trend(ctx context.Context, sessionID string, p intent.SearchParams, now time.Time) (string, error) {
	from, to := now.AddDate(0, 0, -trendWindowDays), now
	if p.DateRange != nil {
		from, to = p.DateRange.From, p.DateRange.To
	}

	metrics, err := a.store.MetricsRange(ctx, sessionID, from, to)
	if err != nil {
		return "", fmt.Errorf("loading metrics: %w", err)
	}
	if len(metrics) == 0 {
		return "", nil
	}

	wanted := p.Metrics
	if len(wanted) == 0 {
		wanted = []string{"energy", "stress", "sleep"}
	}

	var b strings.Builder
	b.WriteString("[Daily Metrics]\n")
	for _, m := range metrics {
		line := metricLine(m, wanted)
		if line == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Day.Format("2006-01-02"), line)
	}
	return b.String(), nil
}

// metricLine renders only the requested metrics, skipping unknowns. Empty
// when every requested metric is unknown for the day.
func metricLine(m store.Metrics, wanted []string) string {
	var parts []string
	for _, name := range wanted {
		var v int16
		switch name {
		case "energy":
			v = m.Energy
		case "stress":
			v = m.Stress
		case "sleep":
			v = m.Sleep
		default:
			continue
		}
		if v == store.MetricUnknown {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %d/10", name, v))
	}
	return strings.Join(parts, ", ")
}

func (a *Assembler) dataReview(ctx context.Context, sessionID string) (string, error) {
	var b strings.Builder

	profile, err := a.store.GetProfile(ctx, sessionID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("loading profile: %w", err)
	}
	writeProfile(&b, profile)

	// One extra row detects truncation.
	facts, err := a.store.AllFacts(ctx, sessionID, factSampleLimit+1)
	if err != nil {
		return "", fmt.Errorf("loading facts: %w", err)
	}
	if len(facts) > 0 {
		header := "[Stored Facts]"
		if len(facts) > factSampleLimit {
			facts = facts[:factSampleLimit]
			header = "[Stored Facts (Sample)]"
		}
		b.WriteString(header + "\n")
		for _, f := range facts {
			if suppressed(f.MemoryKey, profile) {
				continue
			}
			fmt.Fprintf(&b, "- %s: %s\n", f.MemoryKey, f.MemoryValue)
		}
	}

	states, err := a.store.TopicStates(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("loading topic states: %w", err)
	}
	if len(states) > 0 {
		b.WriteString("[Life Topics]\n")
		for _, t := range states {
			fmt.Fprintf(&b, "- %s: %s\n", t.Topic, t.State)
		}
	}

	return b.String(), nil
}

func (a *Assembler) recentTurns(ctx context.Context, sessionID string) (string, error) {
	var b strings.Builder
	if err := a.writeRecentTurns(ctx, &b, sessionID); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (a *Assembler) writeRecentTurns(ctx context.Context, b *strings.Builder, sessionID string) error {
	entries, err := a.store.RecentEntries(ctx, sessionID, a.historyTurns)
	if err != nil {
		return fmt.Errorf("loading recent entries: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}
	b.WriteString("[Recent Conversation]\n")
	for _, e := range entries {
		fmt.Fprintf(b, "%s: %s\n", roleLabel(e.Role), e.Text)
	}
	return nil
}

func writeProfile(b *strings.Builder, p store.Profile) {
	if p.Name == "" && p.Age == "" {
		return
	}
	b.WriteString("[User Profile]\n")
	if p.Name != "" {
		fmt.Fprintf(b, "Name: %s\n", p.Name)
	}
	if p.Age != "" {
		fmt.Fprintf(b, "Age: %s\n", p.Age)
	}
}

// suppressed reports whether a fact key duplicates a profile field that was
// already rendered. The profile is authoritative for identity fields.
func suppressed(key string, p store.Profile) bool {
	field, owned := profileOwnedKeys[strings.ToLower(key)]
	if !owned {
		return false
	}
	switch field {
	case "name":
		return p.Name != ""
	case "age":
		return p.Age != ""
	}
	return false
}

// expandKeys widens requested keys to their snake_case and spaced variants so
// a model asking for "pet name" still finds the stored "pet_name".
func expandKeys(keys []string) []string {
	var out []string
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		lower := strings.ToLower(k)
		out = append(out, k, lower,
			strings.ReplaceAll(lower, " ", "_"),
			strings.ReplaceAll(lower, "_", " "))
	}
	return dedupe(out)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func roleLabel(role string) string {
	if role == "model" {
		return "Assistant"
	}
	return "User"
}
