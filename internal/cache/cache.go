// Package cache deduplicates identical generative judgement requests.
//
// The key covers everything that determines a reply: the rendered prompt,
// the model and the generation parameters. Concurrent lookups for the same
// key are collapsed into one remote call.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/knakano/jsonsim/internal/ai"
)

const (
	defaultSize = 1024
	defaultTTL  = time.Hour
)

// Keyer is the slice of the generative backend the cache needs for key
// derivation.
type Keyer interface {
	PromptFor(textA, textB string) string
	Params() (model string, temperature float64, maxTokens int)
}

// Backend wraps a generative backend with an in-memory response cache.
type Backend struct {
	inner  ai.Backend
	keyer  Keyer
	group  singleflight.Group
	store  *lru.LRU[string, *ai.Judgement]
	logger *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// Config tunes cache capacity and entry lifetime.
type Config struct {
	Size int
	TTL  time.Duration
}

func (c *Config) withDefaults() Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if out.Size <= 0 {
		out.Size = defaultSize
	}
	if out.TTL <= 0 {
		out.TTL = defaultTTL
	}
	return out
}

// New wraps inner with an LRU response cache. The keyer must belong to the
// same backend so keys track its prompt and parameters.
func New(inner ai.Backend, keyer Keyer, cfg *Config, logger *zap.Logger) *Backend {
	resolved := cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{
		inner:  inner,
		keyer:  keyer,
		store:  lru.NewLRU[string, *ai.Judgement](resolved.Size, nil, resolved.TTL),
		logger: logger,
	}
}

func (b *Backend) Method() ai.Method { return b.inner.Method() }

// Compute returns a cached judgement when one exists and otherwise
// delegates to the wrapped backend. Failed computations are never cached.
func (b *Backend) Compute(ctx context.Context, textA, textB string) (*ai.Judgement, error) {
	key := b.key(textA, textB)

	if cached, ok := b.store.Get(key); ok {
		b.hits.Add(1)
		b.logger.Debug("cache hit", zap.String("key", key[:12]))
		return cachedCopy(cached), nil
	}

	v, err, shared := b.group.Do(key, func() (interface{}, error) {
		j, err := b.inner.Compute(ctx, textA, textB)
		if err != nil {
			return nil, err
		}
		b.store.Add(key, j.Clone())
		return j, nil
	})
	if err != nil {
		return nil, err
	}
	b.misses.Add(1)

	j := v.(*ai.Judgement)
	if shared {
		// Another caller owns the original, hand out a marked copy.
		return cachedCopy(j), nil
	}
	return j, nil
}

// Stats reports hit and miss counts since startup.
func (b *Backend) Stats() (hits, misses int64) {
	return b.hits.Load(), b.misses.Load()
}

func (b *Backend) key(textA, textB string) string {
	model, temperature, maxTokens := b.keyer.Params()
	sum := sha256.Sum256(fmt.Appendf(nil, "%s\x00%s\x00%g\x00%d",
		b.keyer.PromptFor(textA, textB), model, temperature, maxTokens))
	return hex.EncodeToString(sum[:])
}

func cachedCopy(j *ai.Judgement) *ai.Judgement {
	out := j.Clone()
	if out.Generative != nil {
		out.Generative.Cached = true
	}
	return out
}
