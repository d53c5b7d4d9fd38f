package embedding

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/knakano/jsonsim/internal/ai"
)

// Backend scores text similarity as the cosine of the two embeddings.
type Backend struct {
	encoder Encoder
	logger  *zap.Logger
}

func NewBackend(encoder Encoder, logger *zap.Logger) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{encoder: encoder, logger: logger}
}

func (b *Backend) Method() ai.Method { return ai.MethodEmbedding }

// Compute embeds both texts and returns their cosine similarity. Raw cosine
// lives in [-1,1]; negative values are clamped to 0 before the score is
// folded into the structural mean. Encoder failures are fatal since nothing
// below this layer can take over.
func (b *Backend) Compute(ctx context.Context, textA, textB string) (*ai.Judgement, error) {
	start := time.Now()

	// Two empty texts agree trivially, one empty text disagrees; there is
	// no meaningful vector for "".
	if textA == "" || textB == "" {
		score := 0.0
		if textA == textB {
			score = 1.0
		}
		return b.judgement(score, score, start), nil
	}

	vecA, err := b.encoder.Encode(ctx, textA)
	if err != nil {
		return nil, fmt.Errorf("encode first text: %w", err)
	}
	vecB, err := b.encoder.Encode(ctx, textB)
	if err != nil {
		return nil, fmt.Errorf("encode second text: %w", err)
	}

	cos := cosineSimilarity(vecA, vecB)
	score := cos
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return b.judgement(score, cos, start), nil
}

func (b *Backend) judgement(score, cosine float64, start time.Time) *ai.Judgement {
	return &ai.Judgement{
		Score:    score,
		Category: ai.CategoryForScore(score),
		Method:   ai.MethodEmbedding,
		Embedding: &ai.EmbeddingMeta{
			ModelID: b.encoder.ModelID(),
			Cosine:  cosine,
		},
		Duration: time.Since(start),
	}
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
