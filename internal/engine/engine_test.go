package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/memodiary/memo/internal/intent"
	"github.com/memodiary/memo/internal/llm"
	"github.com/memodiary/memo/internal/log"
	"github.com/memodiary/memo/internal/store"
)

var testNow = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

type savedEntry struct {
	role string
	text string
}

type fakeProfileStore struct {
	mu       sync.Mutex
	profiles map[string]*store.Profile
	entries  []savedEntry
	nextID   int64
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{profiles: map[string]*store.Profile{}}
}

func (f *fakeProfileStore) SaveEntry(_ context.Context, _, role, text, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.entries = append(f.entries, savedEntry{role: role, text: text})
	return f.nextID, nil
}

func (f *fakeProfileStore) GetProfile(_ context.Context, sessionID string) (store.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[sessionID]
	if !ok {
		return store.Profile{}, store.ErrNotFound
	}
	return *p, nil
}

func (f *fakeProfileStore) CreateProfile(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.profiles[sessionID]; !ok {
		f.profiles[sessionID] = &store.Profile{SessionID: sessionID}
	}
	return nil
}

func (f *fakeProfileStore) SetProfileName(_ context.Context, sessionID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[sessionID].Name = name
	return nil
}

func (f *fakeProfileStore) SetProfileAge(_ context.Context, sessionID, age string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[sessionID].Age = age
	return nil
}

func (f *fakeProfileStore) CompleteOnboarding(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[sessionID].OnboardingComplete = true
	return nil
}

func (f *fakeProfileStore) modelEntries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.entries {
		if e.role == "model" {
			out = append(out, e.text)
		}
	}
	return out
}

type fakeInvoker struct {
	mu     sync.Mutex
	out    string
	err    error
	chunks []string
	reqs   []llm.Request
}

func (f *fakeInvoker) Invoke(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.out, f.err
}

func (f *fakeInvoker) InvokeStream(_ context.Context, req llm.Request, emit func(string) error) (string, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	chunks, err := f.chunks, f.err
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	var full strings.Builder
	for _, c := range chunks {
		full.WriteString(c)
		if err := emit(c); err != nil {
			return full.String(), err
		}
	}
	return full.String(), nil
}

func (f *fakeInvoker) lastReq() llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

type fakeAnalyzer struct {
	analysis intent.Analysis
}

func (f *fakeAnalyzer) Analyze(context.Context, string, time.Time) intent.Analysis {
	return f.analysis
}

type fakeAssembler struct {
	out string
	err error
}

func (f *fakeAssembler) Retrieve(context.Context, string, intent.Analysis, time.Time) (string, error) {
	return f.out, f.err
}

type fakeExtractor struct {
	mu      sync.Mutex
	entries []int64
	texts   []string
}

func (f *fakeExtractor) Process(_ context.Context, _, text string, entryID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entryID)
	f.texts = append(f.texts, text)
	return nil
}

type fakeSummarizer struct {
	mu      sync.Mutex
	days    []time.Time
	ensured int
}

func (f *fakeSummarizer) ResummarizeDay(_ context.Context, _ string, day time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.days = append(f.days, day)
	return nil
}

func (f *fakeSummarizer) EnsureRollups(context.Context, string, time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured++
}

type fixture struct {
	engine     *Engine
	store      *fakeProfileStore
	invoker    *fakeInvoker
	extractor  *fakeExtractor
	summarizer *fakeSummarizer
}

func newFixture(t *testing.T, inv *fakeInvoker, analysis intent.Analysis, assembler *fakeAssembler) *fixture {
	t.Helper()
	fs := newFakeProfileStore()
	ex := &fakeExtractor{}
	sum := &fakeSummarizer{}
	if assembler == nil {
		assembler = &fakeAssembler{}
	}

	e := New(Deps{
		Store:      fs,
		Invoker:    inv,
		Analyzer:   &fakeAnalyzer{analysis: analysis},
		Assembler:  assembler,
		Extractor:  ex,
		Summarizer: sum,
	}, Config{
		ChatModel:     "chat-model",
		AnalyzerModel: "lite-model",
		Temperature:   0.3,
		TopP:          0.8,
		HistoryTurns:  10,
	}, log.NewNop())
	e.now = func() time.Time { return testNow }
	t.Cleanup(e.Close)

	return &fixture{engine: e, store: fs, invoker: inv, extractor: ex, summarizer: sum}
}

// onboarded puts the session past onboarding so turns process normally.
func (fx *fixture) onboarded(sessionID string) {
	fx.store.profiles[sessionID] = &store.Profile{
		SessionID: sessionID, Name: "Alex", Age: "29", OnboardingComplete: true,
	}
}

func emotional() intent.Analysis {
	return intent.Analysis{Intent: intent.IntentEmotionalRecall, LanguageCode: "en"}
}

func TestProcessTurnHappyPath(t *testing.T) {
	inv := &fakeInvoker{out: "That sounds like a lovely evening. 😊"}
	fx := newFixture(t, inv, emotional(), &fakeAssembler{out: "[Recent Conversation]\nUser: hi\n"})
	fx.onboarded("s1")

	reply, err := fx.engine.ProcessTurn(context.Background(), "s1", "had dinner with friends", nil)
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if reply.Text != "That sounds like a lovely evening. 😊" {
		t.Errorf("reply = %q", reply.Text)
	}
	if reply.Mood != "😊" {
		t.Errorf("mood = %q, want 😊", reply.Mood)
	}

	req := inv.lastReq()
	if !strings.Contains(req.System, "[Recent Conversation]") {
		t.Error("memory context missing from system prompt")
	}
	if !req.DisableSafety {
		t.Error("generation request must disable safety filtering")
	}
	if req.Model != "chat-model" {
		t.Errorf("model = %q, want chat-model", req.Model)
	}

	models := fx.store.modelEntries()
	if len(models) != 1 || models[0] != reply.Text {
		t.Errorf("model entries = %v, want exactly the reply", models)
	}
}

func TestProcessTurnEnqueuesExtraction(t *testing.T) {
	inv := &fakeInvoker{out: "ok"}
	fx := newFixture(t, inv, emotional(), nil)
	fx.onboarded("s1")

	if _, err := fx.engine.ProcessTurn(context.Background(), "s1", "short note", nil); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	fx.engine.Close()

	fx.extractor.mu.Lock()
	defer fx.extractor.mu.Unlock()
	if len(fx.extractor.entries) != 1 {
		t.Fatalf("extractions = %d, want 1", len(fx.extractor.entries))
	}
	// The user entry is persisted first; its id is 1.
	if fx.extractor.entries[0] != 1 {
		t.Errorf("extracted entry id = %d, want 1 (user entry persisted before enqueue)", fx.extractor.entries[0])
	}
	if fx.extractor.texts[0] != "short note" {
		t.Errorf("extracted text = %q", fx.extractor.texts[0])
	}
}

func TestProcessTurnSummaryTriggerGatedByLength(t *testing.T) {
	long := strings.Repeat("today was full of small good things and ", 4)

	tests := []struct {
		name string
		text string
		want int
	}{
		{"short message no trigger", "ok then", 0},
		{"long message triggers", long, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &fakeInvoker{out: "noted"}
			fx := newFixture(t, inv, emotional(), nil)
			fx.onboarded("s1")

			if _, err := fx.engine.ProcessTurn(context.Background(), "s1", tt.text, nil); err != nil {
				t.Fatalf("ProcessTurn: %v", err)
			}
			fx.engine.Close()

			fx.summarizer.mu.Lock()
			defer fx.summarizer.mu.Unlock()
			if len(fx.summarizer.days) != tt.want {
				t.Errorf("resummarize calls = %d, want %d", len(fx.summarizer.days), tt.want)
			}
		})
	}
}

func TestProcessTurnFallbackStrings(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"rate limited", llm.ErrRateLimited, fallbackRateLimited},
		{"unavailable", llm.ErrUnavailable, fallbackUnavailable},
		{"blocked", llm.ErrBlocked, fallbackBlocked},
		{"empty", llm.ErrEmpty, fallbackEmpty},
		{"unknown", errors.New("weird"), fallbackEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &fakeInvoker{err: tt.err}
			fx := newFixture(t, inv, emotional(), nil)
			fx.onboarded("s1")

			reply, err := fx.engine.ProcessTurn(context.Background(), "s1", "how are you", nil)
			if err != nil {
				t.Fatalf("ProcessTurn must not fail on generation errors: %v", err)
			}
			if reply.Text != tt.want {
				t.Errorf("fallback = %q, want %q", reply.Text, tt.want)
			}
			// The degraded reply is still part of the conversation log.
			models := fx.store.modelEntries()
			if len(models) != 1 || models[0] != tt.want {
				t.Errorf("fallback not persisted: %v", models)
			}
		})
	}
}

func TestProcessTurnAssemblerFailureDegrades(t *testing.T) {
	inv := &fakeInvoker{out: "still here for you"}
	fx := newFixture(t, inv, emotional(), &fakeAssembler{err: errors.New("db down")})
	fx.onboarded("s1")

	reply, err := fx.engine.ProcessTurn(context.Background(), "s1", "how was my week", nil)
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if reply.Text != "still here for you" {
		t.Errorf("reply = %q", reply.Text)
	}
	if !strings.Contains(inv.lastReq().System, "SYSTEM NOTE") {
		t.Error("contextless prompt missing system note")
	}
}

func TestProcessTurnTrivialArithmetic(t *testing.T) {
	inv := &fakeInvoker{out: "should never be used"}
	fx := newFixture(t, inv, emotional(), nil)
	fx.onboarded("s1")

	reply, err := fx.engine.ProcessTurn(context.Background(), "s1", "2+2", nil)
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if reply.Text != "4" {
		t.Errorf("reply = %q, want 4", reply.Text)
	}
	if len(inv.reqs) != 0 {
		t.Errorf("model called %d times for arithmetic, want 0", len(inv.reqs))
	}
	models := fx.store.modelEntries()
	if len(models) != 1 || models[0] != "4" {
		t.Errorf("arithmetic answer not persisted: %v", models)
	}
}

func TestProcessTurnStreamPersistsOnce(t *testing.T) {
	inv := &fakeInvoker{chunks: []string{"one ", "step ", "at a time"}}
	fx := newFixture(t, inv, emotional(), nil)
	fx.onboarded("s1")

	var streamed []string
	reply, err := fx.engine.ProcessTurnStream(context.Background(), "s1", "feeling overwhelmed", nil,
		func(chunk string) error {
			streamed = append(streamed, chunk)
			return nil
		})
	if err != nil {
		t.Fatalf("ProcessTurnStream: %v", err)
	}
	if reply.Text != "one step at a time" {
		t.Errorf("final reply = %q", reply.Text)
	}
	if len(streamed) != 3 {
		t.Errorf("chunks streamed = %d, want 3", len(streamed))
	}
	models := fx.store.modelEntries()
	if len(models) != 1 || models[0] != "one step at a time" {
		t.Errorf("final response must be persisted exactly once: %v", models)
	}
}

func TestProcessTurnStreamEmitsFallbackOnError(t *testing.T) {
	inv := &fakeInvoker{err: llm.ErrUnavailable}
	fx := newFixture(t, inv, emotional(), nil)
	fx.onboarded("s1")

	var streamed strings.Builder
	reply, err := fx.engine.ProcessTurnStream(context.Background(), "s1", "hello there friend", nil,
		func(chunk string) error {
			streamed.WriteString(chunk)
			return nil
		})
	if err != nil {
		t.Fatalf("ProcessTurnStream: %v", err)
	}
	if reply.Text != fallbackUnavailable {
		t.Errorf("reply = %q, want unavailable fallback", reply.Text)
	}
	if streamed.String() != fallbackUnavailable {
		t.Errorf("streamed = %q, fallback must reach the callback", streamed.String())
	}
}

func TestOnboardingFlow(t *testing.T) {
	inv := &fakeInvoker{out: `{"name": "Alex", "age": "29"}`}
	fx := newFixture(t, inv, emotional(), nil)
	ctx := context.Background()

	// Turn 1: unknown session, asked for a name.
	reply, err := fx.engine.ProcessTurn(ctx, "s1", "hello?", nil)
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if !strings.Contains(reply.Text, "what should I call you") {
		t.Errorf("turn 1 reply = %q, want name question", reply.Text)
	}

	// Turn 2: name answer.
	reply, err = fx.engine.ProcessTurn(ctx, "s1", "I'm Alex", nil)
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if !strings.Contains(reply.Text, "Alex") || !strings.Contains(reply.Text, "old") {
		t.Errorf("turn 2 reply = %q, want age question addressing Alex", reply.Text)
	}

	// Turn 3: age answer completes onboarding.
	reply, err = fx.engine.ProcessTurn(ctx, "s1", "29", nil)
	if err != nil {
		t.Fatalf("turn 3: %v", err)
	}
	if !strings.Contains(reply.Text, "Alex") {
		t.Errorf("turn 3 reply = %q, want completion addressing Alex", reply.Text)
	}

	p := fx.store.profiles["s1"]
	if p.Name != "Alex" || p.Age != "29" || !p.OnboardingComplete {
		t.Errorf("profile after onboarding = %+v", p)
	}

	// Turn 4: normal processing takes over.
	inv.out = "welcome to your diary"
	reply, err = fx.engine.ProcessTurn(ctx, "s1", "today was a good day honestly", nil)
	if err != nil {
		t.Fatalf("turn 4: %v", err)
	}
	if reply.Text != "welcome to your diary" {
		t.Errorf("turn 4 reply = %q, want generated reply", reply.Text)
	}
}

func TestOnboardingFallbacksWhenExtractionFails(t *testing.T) {
	inv := &fakeInvoker{err: llm.ErrUnavailable}
	fx := newFixture(t, inv, emotional(), nil)
	ctx := context.Background()

	if _, err := fx.engine.ProcessTurn(ctx, "s1", "hi", nil); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if _, err := fx.engine.ProcessTurn(ctx, "s1", "mumble", nil); err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if _, err := fx.engine.ProcessTurn(ctx, "s1", "none of your business", nil); err != nil {
		t.Fatalf("turn 3: %v", err)
	}

	p := fx.store.profiles["s1"]
	if p.Name != fallbackName {
		t.Errorf("name = %q, want %q", p.Name, fallbackName)
	}
	if p.Age != fallbackAge {
		t.Errorf("age = %q, want %q", p.Age, fallbackAge)
	}
	if !p.OnboardingComplete {
		t.Error("onboarding must complete even on extraction failure")
	}
}

func TestStartSession(t *testing.T) {
	inv := &fakeInvoker{}
	fx := newFixture(t, inv, emotional(), nil)
	ctx := context.Background()

	// New session gets the introduction.
	reply, err := fx.engine.StartSession(ctx, "fresh")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if !strings.Contains(reply.Text, "what should I call you") {
		t.Errorf("new session welcome = %q", reply.Text)
	}

	// Known user gets a personal welcome and a rollup check.
	fx.onboarded("known")
	reply, err = fx.engine.StartSession(ctx, "known")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if !strings.Contains(reply.Text, "Welcome back, Alex") {
		t.Errorf("returning welcome = %q", reply.Text)
	}

	fx.engine.Close()
	fx.summarizer.mu.Lock()
	defer fx.summarizer.mu.Unlock()
	if fx.summarizer.ensured != 2 {
		t.Errorf("rollup checks = %d, want 2", fx.summarizer.ensured)
	}
}
