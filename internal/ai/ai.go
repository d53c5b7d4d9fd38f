package ai

import (
	"context"
	"time"
)

// Method identifies which computation strategy produced a judgement.
type Method string

const (
	MethodEmbedding  Method = "embedding"
	MethodGenerative Method = "generative"
)

// EmbeddingMeta carries details specific to the embedding backend.
type EmbeddingMeta struct {
	ModelID string  `json:"model_id"`
	Cosine  float64 `json:"cosine"`
}

// GenerativeMeta carries details specific to the generative backend.
type GenerativeMeta struct {
	Provider         string  `json:"provider"`
	Model            string  `json:"model"`
	Temperature      float64 `json:"temperature"`
	MaxTokens        int     `json:"max_tokens"`
	PromptTokens     int     `json:"prompt_tokens,omitempty"`
	CompletionTokens int     `json:"completion_tokens,omitempty"`
	Confidence       float64 `json:"confidence,omitempty"`
	Reason           string  `json:"reason,omitempty"`
	Cached           bool    `json:"cached,omitempty"`
}

// Judgement is the backend-agnostic result of one text comparison call.
// Exactly one of Embedding or Generative is populated, matching Method.
type Judgement struct {
	Score        float64         `json:"score"`
	Category     string          `json:"category"`
	Method       Method          `json:"method"`
	Embedding    *EmbeddingMeta  `json:"embedding,omitempty"`
	Generative   *GenerativeMeta `json:"generative,omitempty"`
	Raw          string          `json:"-"`
	Duration     time.Duration   `json:"-"`
	RangeClamped bool            `json:"range_clamped,omitempty"`
	Fallback     bool            `json:"fallback,omitempty"`
}

// Clone returns a deep copy so cached judgements stay immutable.
func (j *Judgement) Clone() *Judgement {
	if j == nil {
		return nil
	}
	out := *j
	if j.Embedding != nil {
		meta := *j.Embedding
		out.Embedding = &meta
	}
	if j.Generative != nil {
		meta := *j.Generative
		out.Generative = &meta
	}
	return &out
}

// Backend scores the similarity of two text values.
type Backend interface {
	Compute(ctx context.Context, textA, textB string) (*Judgement, error)
	Method() Method
}
