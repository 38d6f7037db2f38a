package store

import "time"

// Entry is one message of the conversation log. Metadata fields (EventType,
// Topics, Importance) are zero until the background extractor fills them in.
type Entry struct {
	ID           int64
	SessionID    string
	TS           time.Time
	Role         string // "user" or "model"
	Text         string
	LanguageCode string
	EventType    string
	Topics       []string
	Importance   int16
}

// Fact is one row of the durable memory index, addressed by
// (session, memory key). Last write wins.
type Fact struct {
	SessionID     string
	MemoryKey     string
	MemoryType    string
	MemoryValue   string
	SourceEntryID int64
	Confidence    float64
	LastUpdated   time.Time
}

// TopicState is the current snapshot of one life topic. It is overwritten in
// place; history lives in the entries log.
type TopicState struct {
	SessionID   string
	Topic       string
	State       string
	LastUpdated time.Time
}

// Period selects one of the summary tables.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// Summary is one rolling summary row. PeriodKey formats: daily "2006-01-02",
// weekly "2006-01-02" (week start day), monthly "2006-01".
type Summary struct {
	SessionID   string
	PeriodKey   string
	SummaryText string
	MoodEmoji   string
	KeyEvents   []string
	LastUpdated time.Time
}

// MetricUnknown is the sentinel for a metric that was never recorded.
const MetricUnknown = -1

// Metrics holds one day's wellbeing numbers on a 1-10 scale, MetricUnknown
// when not recorded.
type Metrics struct {
	SessionID string
	Day       time.Time
	Energy    int16
	Stress    int16
	Sleep     int16
}

// Profile is the per-session user profile collected during onboarding.
// Profile fields take precedence over fact rows with colliding keys.
type Profile struct {
	SessionID          string
	Name               string
	Age                string
	OnboardingComplete bool
	CreatedAt          time.Time
}
