package embedding

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/knakano/jsonsim/internal/ai"
)

// hashEncoder maps each whitespace token onto a bucket of a fixed-size
// vector. Deterministic, so similarity assertions are stable.
type hashEncoder struct {
	vectors map[string][]float32
	err     error
}

func (h *hashEncoder) Encode(_ context.Context, text string) ([]float32, error) {
	if h.err != nil {
		return nil, h.err
	}
	if vec, ok := h.vectors[text]; ok {
		return vec, nil
	}

	vec := make([]float32, 64)
	for _, token := range strings.Fields(text) {
		hasher := fnv.New32a()
		hasher.Write([]byte(token))
		vec[hasher.Sum32()%64]++
	}
	return vec, nil
}

func (h *hashEncoder) ModelID() string { return "hash-test-encoder" }

func (h *hashEncoder) Close() error { return nil }

func TestComputeIdenticalTexts(t *testing.T) {
	backend := NewBackend(&hashEncoder{}, zap.NewNop())

	j, err := backend.Compute(context.Background(), "東京 の 天気 は 晴れ", "東京 の 天気 は 晴れ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if j.Score < 0.95 {
		t.Fatalf("identical texts should score near 1.0, got %v", j.Score)
	}
	if j.Method != ai.MethodEmbedding {
		t.Fatalf("unexpected method: %v", j.Method)
	}
	if j.Embedding == nil || j.Generative != nil {
		t.Fatalf("embedding metadata must be the only block populated: %+v", j)
	}
	if j.Embedding.ModelID != "hash-test-encoder" {
		t.Fatalf("unexpected model id: %q", j.Embedding.ModelID)
	}
}

func TestComputeDisjointVocabulary(t *testing.T) {
	// Fixed corpus: disjoint vocabularies occupy disjoint buckets, with a
	// single shared bucket in the last pair to simulate slight overlap.
	enc := &hashEncoder{vectors: map[string][]float32{
		"alpha beta gamma delta":  {1, 1, 1, 1, 0, 0, 0, 0},
		"赤 青 黄 緑":                 {0, 0, 0, 0, 1, 1, 1, 1},
		"one two three four five": {2, 1, 0, 0, 0, 0, 0, 0},
		"six seven eight nine ten": {0, 0, 2, 1, 1, 0, 0, 0},
		"quick brown fox jumps":   {1, 0, 1, 0, 1, 0, 1, 0},
		"静かな 夜 の 海":               {1, 0, 0, 1, 0, 1, 0, 1},
	}}
	backend := NewBackend(enc, zap.NewNop())

	pairs := [][2]string{
		{"alpha beta gamma delta", "赤 青 黄 緑"},
		{"one two three four five", "six seven eight nine ten"},
		{"quick brown fox jumps", "静かな 夜 の 海"},
	}

	for _, pair := range pairs {
		j, err := backend.Compute(context.Background(), pair[0], pair[1])
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if j.Score > 0.3 {
			t.Fatalf("disjoint texts %q vs %q scored %v, want <= 0.3", pair[0], pair[1], j.Score)
		}
	}
}

func TestComputeClampsNegativeCosine(t *testing.T) {
	enc := &hashEncoder{vectors: map[string][]float32{
		"plus":  {1, 0},
		"minus": {-1, 0},
	}}
	backend := NewBackend(enc, zap.NewNop())

	j, err := backend.Compute(context.Background(), "plus", "minus")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if j.Score != 0 {
		t.Fatalf("negative cosine must clamp to 0, got %v", j.Score)
	}
	if j.Embedding.Cosine != -1 {
		t.Fatalf("raw cosine should be preserved in metadata, got %v", j.Embedding.Cosine)
	}
}

func TestComputeEmptyTexts(t *testing.T) {
	backend := NewBackend(&hashEncoder{}, zap.NewNop())

	j, err := backend.Compute(context.Background(), "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if j.Score != 1.0 {
		t.Fatalf("two empty texts should match, got %v", j.Score)
	}

	j, err = backend.Compute(context.Background(), "", "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if j.Score != 0.0 {
		t.Fatalf("empty against non-empty should score 0, got %v", j.Score)
	}
}

func TestComputeEncoderFailureIsFatal(t *testing.T) {
	wantErr := errors.New("model not loaded")
	backend := NewBackend(&hashEncoder{err: wantErr}, zap.NewNop())

	_, err := backend.Compute(context.Background(), "a", "b")
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected encoder error to surface, got %v", err)
	}
}
