package generative

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/knakano/jsonsim/internal/ai"
	"github.com/knakano/jsonsim/internal/prompt"
	"github.com/knakano/jsonsim/internal/score"
	"github.com/knakano/jsonsim/internal/utils"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultMaxRetries    = 3
	defaultRetryDelay    = time.Second
	defaultBackoffFactor = 2.0

	previewLogLength = 200
)

// Config tunes the retry and timeout policy of the backend.
type Config struct {
	// Timeout bounds each remote call. It aborts only the waiting call,
	// not the surrounding batch.
	Timeout time.Duration
	// MaxRetries is the attempt ceiling per judgement, including the
	// first call.
	MaxRetries    int
	RetryDelay    time.Duration
	BackoffFactor float64
}

func (c *Config) withDefaults() Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if out.Timeout <= 0 {
		out.Timeout = defaultTimeout
	}
	if out.MaxRetries <= 0 {
		out.MaxRetries = defaultMaxRetries
	}
	if out.RetryDelay <= 0 {
		out.RetryDelay = defaultRetryDelay
	}
	if out.BackoffFactor < 1 {
		out.BackoffFactor = defaultBackoffFactor
	}
	return out
}

// Backend renders the judgement prompt, queries a remote model and parses
// the reply into a judgement. Transient failures are retried with
// exponential backoff before escalating to the caller.
type Backend struct {
	client   Client
	template *prompt.Template
	cfg      Config
	logger   *zap.Logger
}

func NewBackend(client Client, template *prompt.Template, cfg *Config, logger *zap.Logger) *Backend {
	if template == nil {
		template = prompt.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{
		client:   client,
		template: template,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

func (b *Backend) Method() ai.Method { return ai.MethodGenerative }

// PromptFor returns the rendered user prompt for a text pair. The response
// cache derives its key from this.
func (b *Backend) PromptFor(textA, textB string) string {
	return b.template.Render(textA, textB)
}

// Params exposes the identity of a remote call for cache keying.
func (b *Backend) Params() (model string, temperature float64, maxTokens int) {
	return b.client.Model(), b.template.Parameters.Temperature, b.template.Parameters.MaxTokens
}

// Compute issues one judgement request, retrying transient failures. After
// the attempt ceiling the last failure escalates as an unavailable backend
// error so the router can decide between fallback and abort.
func (b *Backend) Compute(ctx context.Context, textA, textB string) (*ai.Judgement, error) {
	start := time.Now()

	req := ChatRequest{
		System:      b.template.Prompts.System,
		User:        b.template.Render(textA, textB),
		Temperature: b.template.Parameters.Temperature,
		MaxTokens:   b.template.Parameters.MaxTokens,
	}

	resp, err := b.completeWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}

	b.logger.Debug("model reply",
		zap.String("provider", b.client.Provider()),
		zap.String("model", b.client.Model()),
		zap.String("reply_preview", utils.TruncateForLog(resp.Content, previewLogLength)),
	)

	extraction, err := score.Extract(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("parse reply %q: %w",
			utils.TruncateForLog(resp.Content, previewLogLength), err)
	}

	if extraction.RangeClamped {
		b.logger.Warn("extracted score outside [0,1], clamped",
			zap.Float64("score", extraction.Score),
			zap.String("reply_preview", utils.TruncateForLog(resp.Content, previewLogLength)),
		)
	}

	return &ai.Judgement{
		Score:    extraction.Score,
		Category: extraction.Category,
		Method:   ai.MethodGenerative,
		Generative: &ai.GenerativeMeta{
			Provider:         b.client.Provider(),
			Model:            b.client.Model(),
			Temperature:      req.Temperature,
			MaxTokens:        req.MaxTokens,
			PromptTokens:     resp.PromptTokens,
			CompletionTokens: resp.CompletionTokens,
			Confidence:       extraction.Confidence,
			Reason:           extraction.Reason,
		},
		Raw:          resp.Content,
		Duration:     time.Since(start),
		RangeClamped: extraction.RangeClamped,
	}, nil
}

func (b *Backend) completeWithRetry(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var lastErr error
	delay := b.cfg.RetryDelay

	for attempt := 1; attempt <= b.cfg.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
		resp, err := b.client.Complete(callCtx, req)
		cancel()

		if err == nil {
			return resp, nil
		}
		lastErr = err

		var berr *ai.BackendError
		if !errors.As(err, &berr) || !berr.Transient() {
			return nil, err
		}

		if attempt == b.cfg.MaxRetries {
			break
		}

		b.logger.Warn("remote call failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", b.cfg.MaxRetries),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := utils.WaitFor(ctx, delay); err != nil {
			return nil, err
		}
		delay = time.Duration(float64(delay) * b.cfg.BackoffFactor)
	}

	// Wrap directly: NewBackendError keeps an existing BackendError in the
	// chain untouched, and the last attempt's transient kind is still in
	// there. Exhaustion must surface as unavailable.
	return nil, &ai.BackendError{
		Kind: ai.KindUnavailable,
		Err:  fmt.Errorf("retries exhausted after %d attempts: %w", b.cfg.MaxRetries, lastErr),
	}
}
