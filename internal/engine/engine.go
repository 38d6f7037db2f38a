// Package engine orchestrates one conversational turn: fast routing, intent
// classification, context assembly, generation, persistence, and background
// memory enrichment.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/memodiary/memo/internal/intent"
	"github.com/memodiary/memo/internal/llm"
	"github.com/memodiary/memo/internal/log"
	"github.com/memodiary/memo/internal/router"
	"github.com/memodiary/memo/internal/store"
	"github.com/memodiary/memo/internal/summarize"
)

// ProfileStore is the store surface the engine touches directly.
type ProfileStore interface {
	SaveEntry(ctx context.Context, sessionID, role, text, languageCode string) (int64, error)
	GetProfile(ctx context.Context, sessionID string) (store.Profile, error)
	CreateProfile(ctx context.Context, sessionID string) error
	SetProfileName(ctx context.Context, sessionID, name string) error
	SetProfileAge(ctx context.Context, sessionID, age string) error
	CompleteOnboarding(ctx context.Context, sessionID string) error
}

// Invoker is the generation surface from the llm layer.
type Invoker interface {
	Invoke(ctx context.Context, req llm.Request) (string, error)
	InvokeStream(ctx context.Context, req llm.Request, emit func(chunk string) error) (string, error)
}

// Analyzer classifies a message.
type Analyzer interface {
	Analyze(ctx context.Context, text string, refTime time.Time) intent.Analysis
}

// ContextAssembler builds the memory context block.
type ContextAssembler interface {
	Retrieve(ctx context.Context, sessionID string, a intent.Analysis, now time.Time) (string, error)
}

// Extractor mines memory from an entry in the background.
type Extractor interface {
	Process(ctx context.Context, sessionID, text string, entryID int64) error
}

// Summarizer maintains the summary tiers.
type Summarizer interface {
	ResummarizeDay(ctx context.Context, sessionID string, day time.Time) error
	EnsureRollups(ctx context.Context, sessionID string, now time.Time)
}

// Config holds the generation knobs the engine needs.
type Config struct {
	ChatModel     string
	AnalyzerModel string
	Temperature   float32
	TopP          float32
	HistoryTurns  int
	TaskWorkers   int
	TaskQueueSize int
}

// Deps are the engine's collaborators.
type Deps struct {
	Store      ProfileStore
	Invoker    Invoker
	Analyzer   Analyzer
	Assembler  ContextAssembler
	Extractor  Extractor
	Summarizer Summarizer
}

// Reply is one finished turn.
type Reply struct {
	Text string
	Mood string
}

// Engine processes turns for any number of sessions.
type Engine struct {
	deps   Deps
	cfg    Config
	tasks  *taskPool
	logger log.Logger
	now    func() time.Time
}

// New creates an Engine and starts its background task pool. Call Close to
// drain it.
func New(deps Deps, cfg Config, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Engine{
		deps:   deps,
		cfg:    cfg,
		tasks:  newTaskPool(cfg.TaskWorkers, cfg.TaskQueueSize, logger),
		logger: logger.With("component", "engine"),
		now:    time.Now,
	}
}

// Close drains the background task pool. Queued enrichment finishes; new
// turns should not be processed after Close.
func (e *Engine) Close() {
	e.tasks.drain()
}

// StartSession returns the greeting for a (re)opened session and schedules
// any missing summary rollups in the background.
func (e *Engine) StartSession(ctx context.Context, sessionID string) (Reply, error) {
	welcome, err := e.welcome(ctx, sessionID)
	if err != nil {
		return Reply{}, err
	}

	e.tasks.submit("ensure-rollups", func(ctx context.Context) error {
		e.deps.Summarizer.EnsureRollups(ctx, sessionID, e.now())
		return nil
	})

	if _, err := e.deps.Store.SaveEntry(ctx, sessionID, "model", welcome, "en"); err != nil {
		return Reply{}, fmt.Errorf("persisting welcome: %w", err)
	}
	return Reply{Text: welcome, Mood: extractMood(welcome)}, nil
}

// ProcessTurn handles one batched turn.
func (e *Engine) ProcessTurn(ctx context.Context, sessionID, text string, history []llm.Message) (Reply, error) {
	return e.processTurn(ctx, sessionID, text, history, nil)
}

// ProcessTurnStream handles one streaming turn, delivering reply text
// incrementally through emit. The final concatenated reply is persisted
// exactly once, after the stream completes.
func (e *Engine) ProcessTurnStream(ctx context.Context, sessionID, text string, history []llm.Message, emit func(chunk string) error) (Reply, error) {
	if emit == nil {
		return Reply{}, errors.New("stream callback is required")
	}
	return e.processTurn(ctx, sessionID, text, history, emit)
}

func (e *Engine) processTurn(ctx context.Context, sessionID, text string, history []llm.Message, emit func(chunk string) error) (Reply, error) {
	// Onboarding owns the conversation until the profile is complete.
	if reply, handled, err := e.onboardingStep(ctx, sessionID, text); err != nil {
		return Reply{}, err
	} else if handled {
		if emit != nil {
			if err := emit(reply.Text); err != nil {
				return Reply{}, fmt.Errorf("emitting onboarding reply: %w", err)
			}
		}
		return reply, nil
	}

	// Arithmetic settles locally; no model, no retrieval.
	fast := router.ClassifyFast(text)
	if fast.Category == router.CategoryTrivial && fast.Answer != "" {
		return e.finishTrivial(ctx, sessionID, text, fast.Answer, emit)
	}

	analysis := e.deps.Analyzer.Analyze(ctx, text, e.now())

	entryID, err := e.deps.Store.SaveEntry(ctx, sessionID, "user", text, analysis.LanguageCode)
	if err != nil {
		return Reply{}, fmt.Errorf("persisting user entry: %w", err)
	}

	memoryContext, err := e.deps.Assembler.Retrieve(ctx, sessionID, analysis, e.now())
	if err != nil {
		// Degrade to contextless generation rather than failing the turn.
		e.logger.Warn("context assembly failed, continuing without memory",
			"session_id", sessionID, "error", err)
		memoryContext = ""
	}

	req := llm.Request{
		Model:         e.cfg.ChatModel,
		System:        buildSystemPrompt(memoryContext, analysis.Intent),
		History:       trimHistory(history, e.cfg.HistoryTurns),
		Input:         text,
		Temperature:   &e.cfg.Temperature,
		TopP:          &e.cfg.TopP,
		DisableSafety: true,
	}

	var reply string
	if emit == nil {
		reply, err = e.deps.Invoker.Invoke(ctx, req)
	} else {
		reply, err = e.deps.Invoker.InvokeStream(ctx, req, emit)
	}
	if err != nil {
		reply = fallbackFor(err)
		e.logger.Warn("generation failed, replying with fallback",
			"session_id", sessionID, "error", err)
		if emit != nil {
			if err := emit(reply); err != nil {
				return Reply{}, fmt.Errorf("emitting fallback reply: %w", err)
			}
		}
	}

	if _, err := e.deps.Store.SaveEntry(ctx, sessionID, "model", reply, analysis.LanguageCode); err != nil {
		return Reply{}, fmt.Errorf("persisting model entry: %w", err)
	}

	e.enqueueEnrichment(sessionID, text, entryID)

	return Reply{Text: reply, Mood: extractMood(reply)}, nil
}

func (e *Engine) finishTrivial(ctx context.Context, sessionID, text, answer string, emit func(chunk string) error) (Reply, error) {
	if _, err := e.deps.Store.SaveEntry(ctx, sessionID, "user", text, "en"); err != nil {
		return Reply{}, fmt.Errorf("persisting user entry: %w", err)
	}
	if _, err := e.deps.Store.SaveEntry(ctx, sessionID, "model", answer, "en"); err != nil {
		return Reply{}, fmt.Errorf("persisting model entry: %w", err)
	}
	if emit != nil {
		if err := emit(answer); err != nil {
			return Reply{}, fmt.Errorf("emitting trivial reply: %w", err)
		}
	}
	return Reply{Text: answer, Mood: defaultMood}, nil
}

// enqueueEnrichment schedules fact extraction for the entry and, after a
// substantial message, a refresh of today's summary.
func (e *Engine) enqueueEnrichment(sessionID, text string, entryID int64) {
	e.tasks.submit("extract", func(ctx context.Context) error {
		return e.deps.Extractor.Process(ctx, sessionID, text, entryID)
	})

	if len(text) >= summarize.MinEntryLength {
		day := e.now()
		e.tasks.submit("resummarize-day", func(ctx context.Context) error {
			return e.deps.Summarizer.ResummarizeDay(ctx, sessionID, day)
		})
	}
}

// fallbackFor maps a generation failure to its user-safe reply.
func fallbackFor(err error) string {
	switch {
	case errors.Is(err, llm.ErrRateLimited):
		return fallbackRateLimited
	case errors.Is(err, llm.ErrUnavailable):
		return fallbackUnavailable
	case errors.Is(err, llm.ErrBlocked):
		return fallbackBlocked
	default:
		return fallbackEmpty
	}
}

func trimHistory(history []llm.Message, maxTurns int) []llm.Message {
	if maxTurns <= 0 || len(history) <= maxTurns*2 {
		return history
	}
	return history[len(history)-maxTurns*2:]
}
