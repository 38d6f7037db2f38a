package retrieve

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/memodiary/memo/internal/intent"
	"github.com/memodiary/memo/internal/log"
	"github.com/memodiary/memo/internal/store"
)

var now = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

// fakeStore serves canned records and records which lookups ran.
type fakeStore struct {
	profile   store.Profile
	noProfile bool
	facts     map[string]store.Fact
	allFacts  []store.Fact
	topics    []store.TopicState
	entries   []store.Entry
	dayWise   map[string][]store.Entry
	summaries map[store.Period][]store.Summary
	daily     map[string]store.Summary
	metrics   []store.Metrics
	searched  []string
	askedKeys []string
}

func (f *fakeStore) GetProfile(context.Context, string) (store.Profile, error) {
	if f.noProfile {
		return store.Profile{}, store.ErrNotFound
	}
	return f.profile, nil
}

func (f *fakeStore) GetFacts(_ context.Context, _ string, keys []string) ([]store.Fact, error) {
	f.askedKeys = keys
	var out []store.Fact
	for _, k := range keys {
		if fact, ok := f.facts[k]; ok {
			out = append(out, fact)
		}
	}
	return out, nil
}

func (f *fakeStore) AllFacts(_ context.Context, _ string, limit int) ([]store.Fact, error) {
	if len(f.allFacts) > limit {
		return f.allFacts[:limit], nil
	}
	return f.allFacts, nil
}

func (f *fakeStore) TopicStates(context.Context, string) ([]store.TopicState, error) {
	return f.topics, nil
}

func (f *fakeStore) TopicStatesFor(_ context.Context, _ string, topics []string) ([]store.TopicState, error) {
	wanted := map[string]bool{}
	for _, t := range topics {
		wanted[t] = true
	}
	var out []store.TopicState
	for _, t := range f.topics {
		if wanted[t.Topic] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) RecentEntries(_ context.Context, _ string, limit int) ([]store.Entry, error) {
	if len(f.entries) > limit {
		return f.entries[len(f.entries)-limit:], nil
	}
	return f.entries, nil
}

func (f *fakeStore) EntriesForDay(_ context.Context, _ string, day time.Time) ([]store.Entry, error) {
	return f.dayWise[day.Format("2006-01-02")], nil
}

func (f *fakeStore) SearchEntries(_ context.Context, _ string, keyword string, _ int) ([]store.Entry, error) {
	f.searched = append(f.searched, keyword)
	var out []store.Entry
	for _, e := range f.entries {
		if strings.Contains(strings.ToLower(e.Text), strings.ToLower(keyword)) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) RecentSummaries(_ context.Context, period store.Period, _ string, n int) ([]store.Summary, error) {
	sums := f.summaries[period]
	if len(sums) > n {
		sums = sums[:n]
	}
	return sums, nil
}

func (f *fakeStore) GetSummary(_ context.Context, period store.Period, _ string, key string) (store.Summary, error) {
	if period == store.PeriodDaily {
		if s, ok := f.daily[key]; ok {
			return s, nil
		}
	}
	return store.Summary{}, store.ErrNotFound
}

func (f *fakeStore) MetricsRange(context.Context, string, time.Time, time.Time) ([]store.Metrics, error) {
	return f.metrics, nil
}

func analysis(i intent.Intent, p intent.SearchParams) intent.Analysis {
	return intent.Analysis{Intent: i, Params: p, LanguageCode: "en"}
}

func TestPersonalFactProfileWinsOverFacts(t *testing.T) {
	fs := &fakeStore{
		profile: store.Profile{Name: "Alex", Age: "29"},
		facts: map[string]store.Fact{
			"name":     {MemoryKey: "name", MemoryValue: "stale-name"},
			"pet_name": {MemoryKey: "pet_name", MemoryValue: "Miso"},
		},
	}
	a := New(fs, 10, log.NewNop())

	got, err := a.Retrieve(context.Background(), "s1",
		analysis(intent.IntentPersonalFact, intent.SearchParams{MemoryKeys: []string{"name", "pet_name"}}), now)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	if !strings.Contains(got, "Name: Alex") {
		t.Errorf("profile name missing from context:\n%s", got)
	}
	if strings.Contains(got, "stale-name") {
		t.Errorf("fact colliding with profile name not suppressed:\n%s", got)
	}
	if !strings.Contains(got, "pet_name: Miso") {
		t.Errorf("non-colliding fact missing:\n%s", got)
	}
}

func TestPersonalFactKeyExpansion(t *testing.T) {
	fs := &fakeStore{
		noProfile: true,
		facts: map[string]store.Fact{
			"pet_name": {MemoryKey: "pet_name", MemoryValue: "Miso"},
		},
	}
	a := New(fs, 10, log.NewNop())

	got, err := a.Retrieve(context.Background(), "s1",
		analysis(intent.IntentPersonalFact, intent.SearchParams{MemoryKeys: []string{"Pet Name"}}), now)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !strings.Contains(got, "Miso") {
		t.Errorf("spaced key variant not expanded to snake_case:\nasked=%v\ngot=%s", fs.askedKeys, got)
	}
}

func TestPersonalFactNothingStored(t *testing.T) {
	fs := &fakeStore{noProfile: true, facts: map[string]store.Fact{}}
	a := New(fs, 10, log.NewNop())

	got, err := a.Retrieve(context.Background(), "s1",
		analysis(intent.IntentPersonalFact, intent.SearchParams{MemoryKeys: []string{"pet_name"}}), now)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !strings.Contains(got, "No stored facts") {
		t.Errorf("empty store should say so explicitly, got:\n%s", got)
	}
}

func TestDateRecallGranularity(t *testing.T) {
	fs := &fakeStore{
		summaries: map[store.Period][]store.Summary{
			store.PeriodMonthly: {{PeriodKey: "2026-07", SummaryText: "a busy month", MoodEmoji: "💪"}},
			store.PeriodWeekly:  {{PeriodKey: "2026-08-17", SummaryText: "a calm week", MoodEmoji: "😌"}},
		},
		daily: map[string]store.Summary{
			"2026-08-30": {PeriodKey: "2026-08-30", SummaryText: "a quiet day", MoodEmoji: "😌"},
		},
	}
	a := New(fs, 10, log.NewNop())

	tests := []struct {
		name string
		from time.Time
		to   time.Time
		want string
	}{
		{"over 30 days monthly", now.AddDate(0, 0, -40), now, "a busy month"},
		{"31-day span monthly", now.AddDate(0, 0, -30), now, "a busy month"},
		{"mid span weekly", now.AddDate(0, 0, -10), now, "a calm week"},
		{"7-day span weekly", now.AddDate(0, 0, -6), now, "a calm week"},
		{"short span daily", now.AddDate(0, 0, -1), now.AddDate(0, 0, -1), "a quiet day"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.Retrieve(context.Background(), "s1",
				analysis(intent.IntentDateRecall, intent.SearchParams{
					DateRange: &intent.DateRange{From: tt.from, To: tt.to},
				}), now)
			if err != nil {
				t.Fatalf("Retrieve: %v", err)
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("context missing %q:\n%s", tt.want, got)
			}
		})
	}
}

func TestDateRecallDayFallsBackToRawEntries(t *testing.T) {
	fs := &fakeStore{
		dayWise: map[string][]store.Entry{
			"2026-08-30": {
				{Role: "user", Text: "spent the day hiking", TS: now.AddDate(0, 0, -1)},
			},
		},
	}
	a := New(fs, 10, log.NewNop())

	day := now.AddDate(0, 0, -1)
	got, err := a.Retrieve(context.Background(), "s1",
		analysis(intent.IntentDateRecall, intent.SearchParams{
			DateRange: &intent.DateRange{From: day, To: day},
		}), now)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !strings.Contains(got, "spent the day hiking") {
		t.Errorf("raw entry fallback missing:\n%s", got)
	}
	if !strings.Contains(got, "User:") {
		t.Errorf("raw entries must be role-labeled:\n%s", got)
	}
}

func TestDateRecallKeywordFallback(t *testing.T) {
	fs := &fakeStore{
		entries: []store.Entry{
			{Role: "user", Text: "the beach trip was wonderful", TS: now.AddDate(0, 0, -20)},
		},
	}
	a := New(fs, 10, log.NewNop())

	day := now.AddDate(0, 0, -3)
	got, err := a.Retrieve(context.Background(), "s1",
		analysis(intent.IntentDateRecall, intent.SearchParams{
			DateRange: &intent.DateRange{From: day, To: day},
			Topics:    []string{"beach"},
		}), now)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(fs.searched) == 0 {
		t.Fatal("empty day view should fall back to keyword search")
	}
	if !strings.Contains(got, "beach trip") {
		t.Errorf("keyword fallback result missing:\n%s", got)
	}
}

func TestPlanningRoute(t *testing.T) {
	fs := &fakeStore{
		profile: store.Profile{Name: "Alex"},
		topics: []store.TopicState{
			{Topic: "work", State: "preparing a conference talk"},
			{Topic: "garden", State: "tomatoes ripening"},
		},
		entries: []store.Entry{{Role: "user", Text: "thinking about next month"}},
	}
	a := New(fs, 10, log.NewNop())

	got, err := a.Retrieve(context.Background(), "s1",
		analysis(intent.IntentPlanning, intent.SearchParams{Topics: []string{"garden"}}), now)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	for _, want := range []string{"Name: Alex", "conference talk", "tomatoes", "[Recent Conversation]"} {
		if !strings.Contains(got, want) {
			t.Errorf("planning context missing %q:\n%s", want, got)
		}
	}
}

func TestTrendSkipsUnknownMetrics(t *testing.T) {
	fs := &fakeStore{
		metrics: []store.Metrics{
			{Day: now.AddDate(0, 0, -2), Energy: 7, Stress: store.MetricUnknown, Sleep: store.MetricUnknown},
			{Day: now.AddDate(0, 0, -1), Energy: store.MetricUnknown, Stress: store.MetricUnknown, Sleep: store.MetricUnknown},
		},
	}
	a := New(fs, 10, log.NewNop())

	got, err := a.Retrieve(context.Background(), "s1",
		analysis(intent.IntentTrendAnalysis, intent.SearchParams{Metrics: []string{"energy", "sleep"}}), now)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !strings.Contains(got, "energy 7/10") {
		t.Errorf("recorded metric missing:\n%s", got)
	}
	if strings.Contains(got, "-1") {
		t.Errorf("unknown sentinel leaked into context:\n%s", got)
	}
	if strings.Contains(got, now.AddDate(0, 0, -1).Format("2006-01-02")) {
		t.Errorf("day with no recorded requested metrics should have no line:\n%s", got)
	}
	if strings.Contains(got, "stress") {
		t.Errorf("unrequested metric rendered:\n%s", got)
	}
}

func TestDataReviewSampleLabel(t *testing.T) {
	var many []store.Fact
	for i := range factSampleLimit + 5 {
		many = append(many, store.Fact{MemoryKey: string(rune('a'+i%26)) + "_key", MemoryValue: "v"})
	}
	fs := &fakeStore{
		profile:  store.Profile{Name: "Alex"},
		allFacts: many,
		topics:   []store.TopicState{{Topic: "work", State: "steady"}},
	}
	a := New(fs, 10, log.NewNop())

	got, err := a.Retrieve(context.Background(), "s1",
		analysis(intent.IntentDataReview, intent.SearchParams{}), now)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !strings.Contains(got, "(Sample)") {
		t.Errorf("truncated fact dump must be labeled (Sample):\n%s", got)
	}
	if !strings.Contains(got, "[User Profile]") || !strings.Contains(got, "[Life Topics]") {
		t.Errorf("data review missing a block:\n%s", got)
	}
}

func TestDataReviewSmallSetNotLabeled(t *testing.T) {
	fs := &fakeStore{
		noProfile: true,
		allFacts:  []store.Fact{{MemoryKey: "pet_name", MemoryValue: "Miso"}},
	}
	a := New(fs, 10, log.NewNop())

	got, err := a.Retrieve(context.Background(), "s1",
		analysis(intent.IntentDataReview, intent.SearchParams{}), now)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if strings.Contains(got, "(Sample)") {
		t.Errorf("small fact set wrongly labeled as sample:\n%s", got)
	}
}

func TestGeneralKnowledgeGetsNoContext(t *testing.T) {
	fs := &fakeStore{
		profile: store.Profile{Name: "Alex"},
		entries: []store.Entry{{Role: "user", Text: "private stuff"}},
	}
	a := New(fs, 10, log.NewNop())

	got, err := a.Retrieve(context.Background(), "s1",
		analysis(intent.IntentGeneralKnowledge, intent.SearchParams{}), now)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if got != "" {
		t.Errorf("general_knowledge must produce empty context, got:\n%s", got)
	}
}

func TestRecencyRoutes(t *testing.T) {
	fs := &fakeStore{
		entries: []store.Entry{
			{Role: "user", Text: "rough day"},
			{Role: "model", Text: "that sounds heavy"},
		},
	}
	a := New(fs, 10, log.NewNop())

	for _, in := range []intent.Intent{intent.IntentEmotionalRecall, intent.IntentConfirmation, intent.IntentChat} {
		got, err := a.Retrieve(context.Background(), "s1", analysis(in, intent.SearchParams{}), now)
		if err != nil {
			t.Fatalf("Retrieve(%s): %v", in, err)
		}
		if !strings.Contains(got, "User: rough day") || !strings.Contains(got, "Assistant: that sounds heavy") {
			t.Errorf("%s context missing labeled turns:\n%s", in, got)
		}
	}
}
