package generative

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/knakano/jsonsim/internal/ai"
)

// GeminiClient targets the Gemini API through the Google GenAI SDK.
type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("model is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiClient{client: client, model: model}, nil
}

func (c *GeminiClient) Provider() string { return "gemini" }

func (c *GeminiClient) Model() string { return c.model }

func (c *GeminiClient) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	temperature := float32(req.Temperature)
	cfg := &genai.GenerateContentConfig{
		Temperature: &temperature,
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.User), cfg)
	if err != nil {
		return nil, classifyGeminiError(err)
	}

	content := collectText(resp)
	if content == "" {
		return nil, fmt.Errorf("api returned empty response")
	}

	out := &ChatResponse{Content: content}
	if resp.UsageMetadata != nil {
		out.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	return out, nil
}

func collectText(resp *genai.GenerateContentResponse) string {
	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}
	return strings.TrimSpace(builder.String())
}

func classifyGeminiError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ai.NewBackendError(ai.KindTimeout, err)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return ai.NewBackendError(ai.KindRateLimited, err)
		case apiErr.Code >= 500:
			return ai.NewBackendError(ai.KindServerError, err)
		default:
			return ai.NewBackendError(ai.KindUnavailable, err)
		}
	}

	return ai.NewBackendError(ai.KindServerError, err)
}
