package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/memodiary/memo/internal/log"
)

// Provider-side rate limiting. Conservative defaults that stay well under the
// free-tier per-minute quota even with several keys in rotation.
const (
	requestsPerSecond = 2
	requestBurst      = 4
)

// KeySource supplies API credentials. *keypool.Pool satisfies it.
type KeySource interface {
	Next() (string, error)
}

// Invoker wraps a Generator with rate limiting and retry. Transient failures
// (rate limit, unavailable) are retried with exponential backoff, each attempt
// drawing a fresh credential from the key source so a saturated key does not
// doom the whole call. Non-transient failures return immediately.
type Invoker struct {
	gen        Generator
	keys       KeySource
	maxRetries int
	baseDelay  time.Duration
	limiter    *rate.Limiter
	logger     log.Logger
}

// NewInvoker creates an Invoker. maxRetries is the number of additional
// attempts after the first; baseDelay doubles per retry.
func NewInvoker(gen Generator, keys KeySource, maxRetries int, baseDelay time.Duration, logger log.Logger) *Invoker {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Invoker{
		gen:        gen,
		keys:       keys,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
		logger:     logger,
	}
}

// Invoke performs a generation call with retry.
func (iv *Invoker) Invoke(ctx context.Context, req Request) (string, error) {
	return iv.run(ctx, req, nil)
}

// InvokeStream performs a streaming generation call with retry. Once any
// chunk has been emitted, a failure is returned without retrying: the caller
// has already surfaced partial output and a restart would duplicate it.
func (iv *Invoker) InvokeStream(ctx context.Context, req Request, emit func(chunk string) error) (string, error) {
	return iv.run(ctx, req, emit)
}

func (iv *Invoker) run(ctx context.Context, req Request, emit func(chunk string) error) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= iv.maxRetries; attempt++ {
		if attempt > 0 {
			delay := iv.baseDelay << (attempt - 1)
			iv.logger.Warn("transient provider error, retrying with another key",
				"attempt", attempt,
				"max_retries", iv.maxRetries,
				"delay", delay,
				"error", lastErr)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", fmt.Errorf("waiting to retry: %w", ctx.Err())
			case <-timer.C:
			}
		}

		if err := iv.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}

		key, err := iv.keys.Next()
		if err != nil {
			return "", fmt.Errorf("selecting API key: %w", err)
		}

		var (
			out     string
			emitted bool
		)
		if emit == nil {
			out, err = iv.gen.Generate(ctx, key, req)
		} else {
			out, err = iv.gen.GenerateStream(ctx, key, req, func(chunk string) error {
				emitted = true
				return emit(chunk)
			})
		}
		if err == nil {
			return out, nil
		}

		lastErr = err
		if !transient(err) || emitted {
			return "", err
		}
	}

	return "", lastErr
}

func transient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable)
}
