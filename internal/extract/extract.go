// Package extract mines durable memory out of diary entries in the
// background: entry classification, fact upserts, and topic snapshot updates.
// One strict-JSON model call per entry; a turn never waits on it.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/memodiary/memo/internal/llm"
	"github.com/memodiary/memo/internal/log"
	"github.com/memodiary/memo/internal/store"
)

// MemoryWriter is the write surface the extractor needs.
type MemoryWriter interface {
	SetEntryMetadata(ctx context.Context, entryID int64, eventType string, topics []string, importance int16) error
	UpsertFact(ctx context.Context, f store.Fact) error
	UpsertTopicState(ctx context.Context, sessionID, topic, state string) error
}

// Generator is the single-call surface from the llm layer.
type Generator interface {
	Invoke(ctx context.Context, req llm.Request) (string, error)
}

// Extractor processes entries.
type Extractor struct {
	gen    Generator
	writer MemoryWriter
	model  string
	logger log.Logger
}

// New creates an Extractor.
func New(gen Generator, writer MemoryWriter, model string, logger log.Logger) *Extractor {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Extractor{gen: gen, writer: writer, model: model, logger: logger.With("component", "extract")}
}

var validEventTypes = map[string]bool{
	"routine": true, "milestone": true, "emotional": true,
	"social": true, "health": true, "plan": true, "other": true,
}

const extractorPrompt = `You extract structured memory from one personal diary message.

Respond with JSON only:
{
  "event_type": "routine" | "milestone" | "emotional" | "social" | "health" | "plan" | "other",
  "topics": ["short life-topic labels, e.g. work, family, health"],
  "importance": <1-10, how much this matters long-term>,
  "facts": [
    {"type": "fact" | "preference" | "relationship",
     "key": "snake_case_key",
     "value": "the durable fact, stated plainly",
     "confidence": <0.0-1.0, omit if certain>}
  ],
  "topic_updates": [
    {"topic": "life topic label", "state": "one sentence describing the current situation"}
  ]
}

Only extract facts worth remembering months later. Empty lists are fine.`

type extractionJSON struct {
	EventType  string   `json:"event_type"`
	Topics     []string `json:"topics"`
	Importance int16    `json:"importance"`
	Facts      []struct {
		Type       string   `json:"type"`
		Key        string   `json:"key"`
		Value      string   `json:"value"`
		Confidence *float64 `json:"confidence"`
	} `json:"facts"`
	TopicUpdates []struct {
		Topic string `json:"topic"`
		State string `json:"state"`
	} `json:"topic_updates"`
}

// Process extracts memory from one entry. entryID 0 means the entry was not
// persisted (or is not a user entry) and the call is a no-op. Model and parse
// failures are logged and swallowed: extraction is best-effort enrichment.
// Store failures are returned so the task pool can dead-letter them.
func (e *Extractor) Process(ctx context.Context, sessionID, text string, entryID int64) error {
	if entryID == 0 {
		return nil
	}

	zero := float32(0)
	out, err := e.gen.Invoke(ctx, llm.Request{
		Model:       e.model,
		System:      extractorPrompt,
		Input:       text,
		Temperature: &zero,
		JSONMode:    true,
	})
	if err != nil {
		e.logger.Warn("extraction call failed", "entry_id", entryID, "error", err)
		return nil
	}

	var parsed extractionJSON
	if err := json.Unmarshal([]byte(stripFences(out)), &parsed); err != nil {
		e.logger.Warn("unparseable extraction output", "entry_id", entryID, "error", err)
		return nil
	}

	eventType := strings.ToLower(strings.TrimSpace(parsed.EventType))
	if !validEventTypes[eventType] {
		eventType = "other"
	}
	importance := parsed.Importance
	if importance < 1 || importance > 10 {
		importance = 1
	}
	if err := e.writer.SetEntryMetadata(ctx, entryID, eventType, parsed.Topics, importance); err != nil {
		return fmt.Errorf("writing entry metadata: %w", err)
	}

	for _, f := range parsed.Facts {
		key := strings.TrimSpace(f.Key)
		value := strings.TrimSpace(f.Value)
		if key == "" || value == "" {
			continue
		}
		confidence := 1.0
		if f.Confidence != nil && *f.Confidence > 0 && *f.Confidence <= 1 {
			confidence = *f.Confidence
		}
		fact := store.Fact{
			SessionID:     sessionID,
			MemoryKey:     strings.ToLower(strings.ReplaceAll(key, " ", "_")),
			MemoryType:    f.Type,
			MemoryValue:   value,
			SourceEntryID: entryID,
			Confidence:    confidence,
		}
		if err := e.writer.UpsertFact(ctx, fact); err != nil {
			return fmt.Errorf("writing fact %q: %w", fact.MemoryKey, err)
		}
	}

	for _, u := range parsed.TopicUpdates {
		topic := strings.ToLower(strings.TrimSpace(u.Topic))
		state := strings.TrimSpace(u.State)
		if topic == "" || state == "" {
			continue
		}
		if err := e.writer.UpsertTopicState(ctx, sessionID, topic, state); err != nil {
			return fmt.Errorf("writing topic state %q: %w", topic, err)
		}
	}

	return nil
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
