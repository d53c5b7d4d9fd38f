// Package strategy routes text comparisons to a similarity backend and
// falls back from the generative backend to the embedding backend when the
// remote side is unreachable.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/knakano/jsonsim/internal/ai"
)

// Config selects the primary method and whether fallback is allowed.
type Config struct {
	Method   ai.Method
	Fallback bool
}

// Stats counts routing outcomes since startup.
type Stats struct {
	Computed  int64
	Fallbacks int64
	Failures  int64
}

// Router dispatches text comparisons to the configured backend. It
// implements similarity.TextComparer so the structural scorer can use it
// directly.
type Router struct {
	cfg        Config
	embedding  ai.Backend
	generative ai.Backend
	logger     *zap.Logger

	computed  atomic.Int64
	fallbacks atomic.Int64
	failures  atomic.Int64
}

func New(cfg Config, embedding, generative ai.Backend, logger *zap.Logger) (*Router, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Method {
	case ai.MethodEmbedding:
		if embedding == nil {
			return nil, errors.New("embedding method selected but no embedding backend configured")
		}
	case ai.MethodGenerative:
		if generative == nil {
			return nil, errors.New("generative method selected but no generative backend configured")
		}
		if cfg.Fallback && embedding == nil {
			return nil, errors.New("fallback enabled but no embedding backend configured")
		}
	default:
		return nil, fmt.Errorf("unknown method %q", cfg.Method)
	}
	return &Router{
		cfg:        cfg,
		embedding:  embedding,
		generative: generative,
		logger:     logger,
	}, nil
}

func (r *Router) Method() ai.Method { return r.cfg.Method }

// Judge computes a similarity judgement for a text pair. With the
// generative method and fallback enabled, backend failures are retried on
// the local embedding backend instead of surfacing. Parse failures are not
// backend failures and always surface.
func (r *Router) Judge(ctx context.Context, textA, textB string) (*ai.Judgement, error) {
	primary := r.embedding
	if r.cfg.Method == ai.MethodGenerative {
		primary = r.generative
	}

	j, err := primary.Compute(ctx, textA, textB)
	if err == nil {
		r.computed.Add(1)
		return j, nil
	}

	if !r.shouldFallback(err) {
		r.failures.Add(1)
		return nil, err
	}

	r.fallbacks.Add(1)
	r.logger.Warn("generative backend unavailable, falling back to embedding",
		zap.Error(err),
	)

	j, ferr := r.embedding.Compute(ctx, textA, textB)
	if ferr != nil {
		r.failures.Add(1)
		return nil, fmt.Errorf("fallback after %v: %w", err, ferr)
	}
	r.computed.Add(1)
	j.Fallback = true
	return j, nil
}

// Compare adapts Judge to the scalar interface the structural scorer
// consumes.
func (r *Router) Compare(ctx context.Context, textA, textB string) (float64, error) {
	j, err := r.Judge(ctx, textA, textB)
	if err != nil {
		return 0, err
	}
	return j.Score, nil
}

// Stats returns a snapshot of routing outcome counters.
func (r *Router) Stats() Stats {
	return Stats{
		Computed:  r.computed.Load(),
		Fallbacks: r.fallbacks.Load(),
		Failures:  r.failures.Load(),
	}
}

func (r *Router) shouldFallback(err error) bool {
	if r.cfg.Method != ai.MethodGenerative || !r.cfg.Fallback {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var berr *ai.BackendError
	return errors.As(err, &berr)
}
