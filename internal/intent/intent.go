// Package intent classifies the user's message with one cheap JSON-mode model
// call and extracts retrieval parameters for the context assembler.
//
// Classification is advisory: any failure (provider error, malformed JSON,
// unknown intent) degrades to a safe default analysis rather than an error,
// because a mis-routed turn still produces a reasonable reply while a failed
// turn produces none.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/memodiary/memo/internal/llm"
	"github.com/memodiary/memo/internal/log"
)

// Intent is the routed retrieval strategy for a message.
type Intent string

const (
	IntentPersonalFact     Intent = "personal_fact"
	IntentDateRecall       Intent = "date_recall"
	IntentEmotionalRecall  Intent = "emotional_recall"
	IntentPlanning         Intent = "planning"
	IntentGeneralKnowledge Intent = "general_knowledge"
	IntentConfirmation     Intent = "confirmation"
	IntentTrendAnalysis    Intent = "trend_analysis"
	IntentDataReview       Intent = "data_review"

	// IntentChat is assigned locally to bare greetings; the model is never
	// asked about those.
	IntentChat Intent = "chat"
)

var knownIntents = map[Intent]bool{
	IntentPersonalFact:     true,
	IntentDateRecall:       true,
	IntentEmotionalRecall:  true,
	IntentPlanning:         true,
	IntentGeneralKnowledge: true,
	IntentConfirmation:     true,
	IntentTrendAnalysis:    true,
	IntentDataReview:       true,
}

// DateRange is an inclusive day range.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Days returns the inclusive span length in days.
func (r DateRange) Days() int {
	return int(r.To.Sub(r.From).Hours()/24) + 1
}

// SearchParams carries what the assembler should look up.
type SearchParams struct {
	MemoryKeys []string
	Metrics    []string
	DateRange  *DateRange
	Topics     []string
}

// Analysis is the classification result. Never constructed in a failed state;
// see Fallback.
type Analysis struct {
	Intent       Intent
	Reasoning    string
	Params       SearchParams
	LanguageCode string
	IsSensitive  bool
}

// Fallback is the analysis used when classification cannot complete. Emotional
// recall retrieves recent conversation, the least wrong context for an
// unclassifiable personal message.
func Fallback() Analysis {
	return Analysis{Intent: IntentEmotionalRecall, LanguageCode: "en"}
}

// Generator is the single-call surface the analyzer needs from the llm layer.
type Generator interface {
	Invoke(ctx context.Context, req llm.Request) (string, error)
}

// Analyzer classifies messages.
type Analyzer struct {
	gen    Generator
	model  string
	logger log.Logger
}

// New creates an Analyzer using the given (typically lite) model.
func New(gen Generator, model string, logger log.Logger) *Analyzer {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Analyzer{gen: gen, model: model, logger: logger.With("component", "intent")}
}

var greetingRe = regexp.MustCompile(`(?i)^(hi|hiya|hello|hey|yo|sup|howdy|good (morning|afternoon|evening|night))[\s!,.?]*$`)

// maxGreetingLen bounds the short-circuit so a long message that happens to
// start with "hey" still reaches the model.
const maxGreetingLen = 24

// Analyze classifies text relative to refTime (used to resolve "yesterday",
// "last week" into concrete dates). It never returns an error; failures
// degrade to Fallback.
func (a *Analyzer) Analyze(ctx context.Context, text string, refTime time.Time) Analysis {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= maxGreetingLen && greetingRe.MatchString(trimmed) {
		return Analysis{Intent: IntentChat, LanguageCode: "en"}
	}

	zero := float32(0)
	out, err := a.gen.Invoke(ctx, llm.Request{
		Model:       a.model,
		System:      classifierPrompt(refTime),
		Input:       trimmed,
		Temperature: &zero,
		JSONMode:    true,
	})
	if err != nil {
		a.logger.Warn("intent classification failed, using fallback", "error", err)
		return Fallback()
	}

	analysis, err := parseAnalysis(out, refTime)
	if err != nil {
		a.logger.Warn("unparseable intent response, using fallback", "error", err)
		return Fallback()
	}
	return analysis
}

func classifierPrompt(refTime time.Time) string {
	return fmt.Sprintf(`You are a query classifier for a personal diary assistant.
Today's date is %s (%s).

Classify the user's message into exactly one intent:
- personal_fact: asks about a stored fact of their life (name, pet, job, preferences)
- date_recall: asks what happened on a specific date or period
- emotional_recall: shares or asks about feelings and experiences
- planning: discusses future plans, goals, or ongoing projects
- general_knowledge: asks about the world, not about themselves
- confirmation: short acknowledgement or follow-up to the previous reply
- trend_analysis: asks about patterns over time (energy, stress, sleep, mood)
- data_review: asks to see what is stored or remembered about them

Respond with JSON only:
{
  "intent": "<one of the intents above>",
  "reasoning": "<one short sentence>",
  "search_params": {
    "memory_keys": ["snake_case keys to look up, if any"],
    "metrics": ["energy"|"stress"|"sleep", if any],
    "date_range": {"from": "YYYY-MM-DD", "to": "YYYY-MM-DD"} or null,
    "topics": ["life topics mentioned, if any"]
  },
  "language_code": "<BCP-47 code of the user's message>",
  "is_sensitive": <true if the message involves distress, health, or crisis>
}`,
		refTime.Format("2006-01-02"), refTime.Weekday())
}

// wire format, parsed permissively.
type analysisJSON struct {
	Intent       string `json:"intent"`
	Reasoning    string `json:"reasoning"`
	SearchParams struct {
		MemoryKeys []string `json:"memory_keys"`
		Metrics    []string `json:"metrics"`
		DateRange  *struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"date_range"`
		Topics []string `json:"topics"`
	} `json:"search_params"`
	LanguageCode string `json:"language_code"`
	IsSensitive  bool   `json:"is_sensitive"`
}

func parseAnalysis(raw string, refTime time.Time) (Analysis, error) {
	cleaned := stripFences(raw)

	var wire analysisJSON
	if err := json.Unmarshal([]byte(cleaned), &wire); err != nil {
		return Analysis{}, fmt.Errorf("decoding analysis JSON: %w", err)
	}

	intent := Intent(strings.ToLower(strings.TrimSpace(wire.Intent)))
	if !knownIntents[intent] {
		intent = IntentEmotionalRecall
	}

	lang := strings.TrimSpace(wire.LanguageCode)
	if lang == "" {
		lang = "en"
	}

	analysis := Analysis{
		Intent:       intent,
		Reasoning:    wire.Reasoning,
		LanguageCode: lang,
		IsSensitive:  wire.IsSensitive,
		Params: SearchParams{
			MemoryKeys: wire.SearchParams.MemoryKeys,
			Metrics:    wire.SearchParams.Metrics,
			Topics:     wire.SearchParams.Topics,
		},
	}

	if dr := wire.SearchParams.DateRange; dr != nil {
		from, errF := time.ParseInLocation("2006-01-02", dr.From, refTime.Location())
		to, errT := time.ParseInLocation("2006-01-02", dr.To, refTime.Location())
		// An invalid range is dropped, not fatal; the route falls back to
		// its default window.
		if errF == nil && errT == nil && !to.Before(from) {
			analysis.Params.DateRange = &DateRange{From: from, To: to}
		}
	}

	return analysis, nil
}

// stripFences removes a markdown code fence if the model wrapped its JSON in
// one despite the JSON response mode.
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
