package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/knakano/jsonsim/internal/ai"
)

type countingBackend struct {
	calls atomic.Int64
	delay time.Duration
	err   error
}

func (c *countingBackend) Compute(_ context.Context, textA, textB string) (*ai.Judgement, error) {
	c.calls.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.err != nil {
		return nil, c.err
	}
	return &ai.Judgement{
		Score:      0.8,
		Category:   ai.CategoryVeryHigh,
		Method:     ai.MethodGenerative,
		Generative: &ai.GenerativeMeta{Provider: "stub", Model: "stub-model"},
		Raw:        "スコア: 0.8",
	}, nil
}

func (c *countingBackend) Method() ai.Method { return ai.MethodGenerative }

type staticKeyer struct{}

func (staticKeyer) PromptFor(textA, textB string) string { return textA + "\x00" + textB }

func (staticKeyer) Params() (string, float64, int) { return "stub-model", 0.2, 64 }

func TestIdenticalRequestsHitCache(t *testing.T) {
	inner := &countingBackend{}
	backend := New(inner, staticKeyer{}, nil, nil)
	ctx := context.Background()

	first, err := backend.Compute(ctx, "赤い車", "赤色の自動車")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Generative.Cached {
		t.Error("first result should not be marked cached")
	}

	second, err := backend.Compute(ctx, "赤い車", "赤色の自動車")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.Generative.Cached {
		t.Error("second result should be marked cached")
	}
	if second.Score != first.Score {
		t.Errorf("score changed across cache: %v vs %v", first.Score, second.Score)
	}
	if got := inner.calls.Load(); got != 1 {
		t.Errorf("inner calls: got %d, want 1", got)
	}

	hits, misses := backend.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("stats: got %d hits / %d misses, want 1/1", hits, misses)
	}
}

func TestDistinctRequestsMiss(t *testing.T) {
	inner := &countingBackend{}
	backend := New(inner, staticKeyer{}, nil, nil)
	ctx := context.Background()

	if _, err := backend.Compute(ctx, "a", "b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := backend.Compute(ctx, "a", "c"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := inner.calls.Load(); got != 2 {
		t.Errorf("inner calls: got %d, want 2", got)
	}
}

func TestFailuresAreNotCached(t *testing.T) {
	inner := &countingBackend{err: errors.New("remote down")}
	backend := New(inner, staticKeyer{}, nil, nil)
	ctx := context.Background()

	if _, err := backend.Compute(ctx, "a", "b"); err == nil {
		t.Fatal("expected error")
	}

	inner.err = nil
	j, err := backend.Compute(ctx, "a", "b")
	if err != nil {
		t.Fatalf("unexpected error after recovery: %v", err)
	}
	if j == nil {
		t.Fatal("expected judgement after recovery")
	}
	if got := inner.calls.Load(); got != 2 {
		t.Errorf("inner calls: got %d, want 2", got)
	}
}

func TestConcurrentRequestsCollapse(t *testing.T) {
	inner := &countingBackend{delay: 50 * time.Millisecond}
	backend := New(inner, staticKeyer{}, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := backend.Compute(ctx, "a", "b"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := inner.calls.Load(); got != 1 {
		t.Errorf("inner calls: got %d, want 1", got)
	}
}

func TestCachedCopyIsIsolated(t *testing.T) {
	inner := &countingBackend{}
	backend := New(inner, staticKeyer{}, nil, nil)
	ctx := context.Background()

	if _, err := backend.Compute(ctx, "a", "b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := backend.Compute(ctx, "a", "b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second.Score = -1
	second.Generative.Model = "mutated"

	third, err := backend.Compute(ctx, "a", "b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if third.Score != 0.8 || third.Generative.Model != "stub-model" {
		t.Errorf("cached entry mutated: score %v model %q", third.Score, third.Generative.Model)
	}
}
