package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/memodiary/memo/internal/llm"
)

// ScriptedResponse matches a request and supplies the canned result. Both
// match fields must hold; an empty field matches everything.
type ScriptedResponse struct {
	// Match is a substring of Request.Input.
	Match string
	// MatchSystem is a substring of Request.System, for telling apart
	// calls that share the same user input (classification vs. chat).
	MatchSystem string
	Out         string
	Err         error
}

// FakeGenerator is a scriptable llm.Generator. The first matching scripted
// response wins; unmatched requests return Default. Safe for concurrent use.
type FakeGenerator struct {
	Responses []ScriptedResponse
	Default   string

	mu   sync.Mutex
	reqs []llm.Request
	keys []string
}

// Generate implements llm.Generator.
func (f *FakeGenerator) Generate(_ context.Context, apiKey string, req llm.Request) (string, error) {
	f.record(apiKey, req)
	return f.respond(req)
}

// GenerateStream implements llm.Generator, emitting the response in two
// chunks to exercise chunk handling.
func (f *FakeGenerator) GenerateStream(_ context.Context, apiKey string, req llm.Request, emit func(string) error) (string, error) {
	f.record(apiKey, req)
	out, err := f.respond(req)
	if err != nil {
		return "", err
	}
	mid := len(out) / 2
	for _, chunk := range []string{out[:mid], out[mid:]} {
		if chunk == "" {
			continue
		}
		if err := emit(chunk); err != nil {
			return "", err
		}
	}
	return out, nil
}

// Requests returns a copy of all requests seen so far.
func (f *FakeGenerator) Requests() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.reqs...)
}

// KeysUsed returns the API key of each call, in order.
func (f *FakeGenerator) KeysUsed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

func (f *FakeGenerator) record(apiKey string, req llm.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	f.keys = append(f.keys, apiKey)
}

func (f *FakeGenerator) respond(req llm.Request) (string, error) {
	for _, r := range f.Responses {
		if r.Match != "" && !strings.Contains(req.Input, r.Match) {
			continue
		}
		if r.MatchSystem != "" && !strings.Contains(req.System, r.MatchSystem) {
			continue
		}
		return r.Out, r.Err
	}
	if f.Default != "" {
		return f.Default, nil
	}
	return "", llm.ErrEmpty
}
