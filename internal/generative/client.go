// Package generative implements the remote generative-model similarity
// backend and its provider clients.
package generative

import "context"

// ChatRequest is one judgement request to a remote instruction-following
// model: a system message, a user message and the generation parameters.
type ChatRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// ChatResponse carries the generated text and the usage counters the
// provider reported.
type ChatResponse struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Client is a provider-specific chat completion transport. Implementations
// classify their failures into ai.BackendError kinds so the retry policy can
// distinguish rate limiting and timeouts from hard errors.
type Client interface {
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Provider() string
	Model() string
}
