package generative

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/knakano/jsonsim/internal/ai"
)

// OpenAIClient speaks the OpenAI chat-completions protocol. With a custom
// base URL it also covers self-hosted vLLM deployments, which expose the
// same API surface.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient builds a client for the given endpoint. An empty baseURL
// targets the hosted OpenAI API.
func NewOpenAIClient(apiKey, baseURL, model string) (*OpenAIClient, error) {
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("model is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIClient{client: openai.NewClient(opts...), model: model}, nil
}

func (c *OpenAIClient) Provider() string { return "openai" }

func (c *OpenAIClient) Model() string { return c.model }

// Complete issues one synchronous chat completion call.
func (c *OpenAIClient) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("api returned no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, fmt.Errorf("api returned empty content")
	}

	return &ChatResponse{
		Content:          content,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

func classifyOpenAIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ai.NewBackendError(ai.KindTimeout, err)
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return ai.NewBackendError(ai.KindRateLimited, err)
		case apiErr.StatusCode >= 500:
			return ai.NewBackendError(ai.KindServerError, err)
		default:
			return ai.NewBackendError(ai.KindUnavailable, err)
		}
	}

	// Connection refused and friends: the service is not reachable at all.
	return ai.NewBackendError(ai.KindServerError, err)
}
