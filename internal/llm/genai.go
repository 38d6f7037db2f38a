package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// Gemini is the Generator backed by the Google Gemini API.
//
// A fresh client is constructed per call because the credential changes
// between retry attempts. Client construction for the Gemini API backend is
// cheap; it does not open a connection until the first request.
type Gemini struct{}

// NewGemini creates a Gemini generator.
func NewGemini() *Gemini {
	return &Gemini{}
}

// allowAllSafety disables the provider's content filtering for every harm
// category.
var allowAllSafety = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
}

func (g *Gemini) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return client, nil
}

func buildContents(req Request) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, m := range req.History {
		var role genai.Role = genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}
	contents = append(contents, genai.NewContentFromText(req.Input, genai.RoleUser))
	return contents
}

func buildConfig(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSONMode {
		cfg.ResponseMIMEType = "application/json"
	}
	if req.DisableSafety {
		cfg.SafetySettings = allowAllSafety
	}
	return cfg
}

// Generate implements Generator.
func (g *Gemini) Generate(ctx context.Context, apiKey string, req Request) (string, error) {
	client, err := g.client(ctx, apiKey)
	if err != nil {
		return "", err
	}

	resp, err := client.Models.GenerateContent(ctx, req.Model, buildContents(req), buildConfig(req))
	if err != nil {
		return "", classifyAPIError(err)
	}
	return extractText(resp)
}

// GenerateStream implements Generator.
func (g *Gemini) GenerateStream(ctx context.Context, apiKey string, req Request, emit func(chunk string) error) (string, error) {
	client, err := g.client(ctx, apiKey)
	if err != nil {
		return "", err
	}

	var full strings.Builder
	for resp, err := range client.Models.GenerateContentStream(ctx, req.Model, buildContents(req), buildConfig(req)) {
		if err != nil {
			return full.String(), classifyAPIError(err)
		}
		if reason := blockReason(resp); reason != "" {
			return full.String(), fmt.Errorf("%w: %s", ErrBlocked, reason)
		}
		chunk := resp.Text()
		if chunk == "" {
			continue
		}
		full.WriteString(chunk)
		if emit != nil {
			if err := emit(chunk); err != nil {
				return full.String(), fmt.Errorf("emitting chunk: %w", err)
			}
		}
	}

	if strings.TrimSpace(full.String()) == "" {
		return "", ErrEmpty
	}
	return full.String(), nil
}

// classifyAPIError maps provider transport errors onto the package sentinels
// so callers can decide retry behaviour with errors.Is.
func classifyAPIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
		case http.StatusServiceUnavailable:
			return fmt.Errorf("%w: %s", ErrUnavailable, apiErr.Message)
		}
	}
	return fmt.Errorf("generate content: %w", err)
}

func blockReason(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return string(resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return string(genai.FinishReasonSafety)
	}
	return ""
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if reason := blockReason(resp); reason != "" {
		return "", fmt.Errorf("%w: %s", ErrBlocked, reason)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmpty
	}
	return text, nil
}
