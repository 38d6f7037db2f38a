package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/memodiary/memo/internal/llm"
	"github.com/memodiary/memo/internal/store"
)

// Fallback identity values when the user's answer yields nothing usable.
// Onboarding never repeats a question; it moves on with the fallback.
const (
	fallbackName = "Friend"
	fallbackAge  = "Unknown"
)

const (
	askNameMsg = "Hi! I'm Memo, your private diary companion. 😊 Before we start — what should I call you?"
	askAgeMsg  = "%s, what a lovely name! And how old are you, if you don't mind me asking?"
	doneMsg    = "Thank you, %s! 🌱 Everything you tell me stays between us. So — how has your day been?"
)

// onboardingStep consumes the turn while the profile is incomplete. Returns
// handled=false once onboarding is done and normal processing should run.
func (e *Engine) onboardingStep(ctx context.Context, sessionID, text string) (Reply, bool, error) {
	profile, err := e.deps.Store.GetProfile(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		if err := e.deps.Store.CreateProfile(ctx, sessionID); err != nil {
			return Reply{}, false, err
		}
		return e.onboardingReply(ctx, sessionID, text, askNameMsg)
	}
	if err != nil {
		return Reply{}, false, err
	}
	if profile.OnboardingComplete {
		return Reply{}, false, nil
	}

	if profile.Name == "" {
		name := e.extractName(ctx, text)
		if err := e.deps.Store.SetProfileName(ctx, sessionID, name); err != nil {
			return Reply{}, false, err
		}
		return e.onboardingReply(ctx, sessionID, text, fmt.Sprintf(askAgeMsg, name))
	}

	age := e.extractAge(ctx, text)
	if err := e.deps.Store.SetProfileAge(ctx, sessionID, age); err != nil {
		return Reply{}, false, err
	}
	if err := e.deps.Store.CompleteOnboarding(ctx, sessionID); err != nil {
		return Reply{}, false, err
	}
	return e.onboardingReply(ctx, sessionID, text, fmt.Sprintf(doneMsg, profile.Name))
}

func (e *Engine) onboardingReply(ctx context.Context, sessionID, userText, reply string) (Reply, bool, error) {
	if _, err := e.deps.Store.SaveEntry(ctx, sessionID, "user", userText, "en"); err != nil {
		return Reply{}, false, fmt.Errorf("persisting onboarding entry: %w", err)
	}
	if _, err := e.deps.Store.SaveEntry(ctx, sessionID, "model", reply, "en"); err != nil {
		return Reply{}, false, fmt.Errorf("persisting onboarding reply: %w", err)
	}
	return Reply{Text: reply, Mood: extractMood(reply)}, true, nil
}

// welcome builds the session-start greeting: an introduction for sessions
// that have not finished onboarding, a personal welcome back otherwise.
func (e *Engine) welcome(ctx context.Context, sessionID string) (string, error) {
	profile, err := e.deps.Store.GetProfile(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		if err := e.deps.Store.CreateProfile(ctx, sessionID); err != nil {
			return "", err
		}
		return askNameMsg, nil
	}
	if err != nil {
		return "", err
	}
	if profile.Name == "" {
		return askNameMsg, nil
	}
	return fmt.Sprintf("Welcome back, %s! 😊 How has your day been?", profile.Name), nil
}

const nameExtractPrompt = `The user was asked what they would like to be called.
Extract their name from the reply. Respond with JSON only: {"name": "<the name, or empty string if the reply contains none>"}`

const ageExtractPrompt = `The user was asked how old they are.
Extract their age in years from the reply. Respond with JSON only: {"age": "<digits, or empty string if the reply contains none>"}`

func (e *Engine) extractName(ctx context.Context, text string) string {
	out := e.extractField(ctx, nameExtractPrompt, text)
	var parsed struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		return fallbackName
	}
	name := strings.TrimSpace(parsed.Name)
	if name == "" || len(name) > 60 {
		return fallbackName
	}
	return name
}

func (e *Engine) extractAge(ctx context.Context, text string) string {
	out := e.extractField(ctx, ageExtractPrompt, text)
	var parsed struct {
		Age string `json:"age"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		return fallbackAge
	}
	age := strings.TrimSpace(parsed.Age)
	if n, err := strconv.Atoi(age); err != nil || n < 1 || n > 130 {
		return fallbackAge
	}
	return age
}

func (e *Engine) extractField(ctx context.Context, system, text string) string {
	zero := float32(0)
	out, err := e.deps.Invoker.Invoke(ctx, llm.Request{
		Model:       e.cfg.AnalyzerModel,
		System:      system,
		Input:       text,
		Temperature: &zero,
		JSONMode:    true,
	})
	if err != nil {
		e.logger.Warn("onboarding field extraction failed", "error", err)
		return "{}"
	}
	return out
}
