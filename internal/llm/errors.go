package llm

import "errors"

// Sentinel errors classifying provider failures. Callers branch on these with
// errors.Is to pick retry behaviour and user-facing fallback messages.
var (
	// ErrRateLimited indicates the provider returned HTTP 429 for the
	// current credential. Retryable with a different credential.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrUnavailable indicates the provider returned HTTP 503. Retryable.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrBlocked indicates the provider refused to answer on safety or
	// policy grounds. Not retryable.
	ErrBlocked = errors.New("response blocked by provider")

	// ErrEmpty indicates the provider returned a response with no text.
	// Not retryable.
	ErrEmpty = errors.New("empty response from provider")
)
