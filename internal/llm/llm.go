// Package llm defines the provider-neutral generation contract and the
// retrying invoker that sits between the engine and the Gemini API.
//
// The Generator interface takes the API key per call rather than at
// construction: credential rotation on retry requires a fresh client per
// attempt, so the invoker picks a key from the pool and hands it down.
package llm

import "context"

// Roles for conversation history messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of conversation history.
type Message struct {
	Role string
	Text string
}

// Request describes a single generation call.
type Request struct {
	// Model is the provider model identifier, e.g. "gemini-2.0-flash".
	Model string

	// System is the system instruction. Empty means none.
	System string

	// History is prior conversation turns, oldest first.
	History []Message

	// Input is the current user message, appended after History.
	Input string

	// Temperature and TopP override the provider defaults when non-nil.
	Temperature *float32
	TopP        *float32

	// JSONMode forces an application/json response. Used by the intent
	// analyzer and the memory extractor, which parse the output.
	JSONMode bool

	// DisableSafety turns off the provider's content filtering. Personal
	// diary entries routinely discuss distressing topics; filtering them
	// would make the assistant refuse its core job.
	DisableSafety bool
}

// Generator produces text from a request using the given credential.
type Generator interface {
	Generate(ctx context.Context, apiKey string, req Request) (string, error)

	// GenerateStream delivers response text incrementally through emit and
	// returns the full concatenated text. emit returning an error aborts
	// the stream.
	GenerateStream(ctx context.Context, apiKey string, req Request, emit func(chunk string) error) (string, error)
}
