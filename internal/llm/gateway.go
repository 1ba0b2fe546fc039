package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/insuredocs/docquery/internal/config"
)

type gateway struct {
	providers        map[string]Provider
	defaultProvider  string
	defaultModel     string
	fallbackProvider string
	maxRetries       int
}

func NewGateway(cfg config.LLMConfig) Gateway {
	g := &gateway{
		providers:        make(map[string]Provider),
		defaultProvider:  cfg.DefaultProvider,
		defaultModel:     cfg.DefaultModel,
		fallbackProvider: cfg.FallbackProvider,
		maxRetries:       cfg.MaxRetries,
	}

	if cfg.OpenAIKey != "" {
		g.providers["openai"] = NewOpenAIProvider(cfg.OpenAIKey)
	}
	if cfg.AnthropicKey != "" {
		g.providers["anthropic"] = NewAnthropicProvider(cfg.AnthropicKey)
	}

	return g
}

func (g *gateway) provider(name string) (Provider, error) {
	if name == "" {
		name = g.defaultProvider
	}
	p, ok := g.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", name)
	}
	return p, nil
}

func (g *gateway) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	name := req.Provider
	if name == "" {
		name = g.defaultProvider
	}
	if req.Model == "" {
		req.Model = g.defaultModel
	}

	resp, err := g.completeWithRetry(ctx, name, req)
	if err != nil && g.fallbackProvider != "" && g.fallbackProvider != name {
		slog.Warn("primary completion provider failed, trying fallback",
			"primary", name,
			"fallback", g.fallbackProvider,
			"error", err,
		)
		return g.completeWithRetry(ctx, g.fallbackProvider, req)
	}
	return resp, err
}

func (g *gateway) completeWithRetry(ctx context.Context, name string, req CompletionRequest) (*CompletionResponse, error) {
	p, err := g.provider(name)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			slog.Debug("retrying completion", "provider", name, "attempt", attempt)
		}

		resp, err := p.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("all retries exhausted for %s: %w", name, lastErr)
}

// CompleteStream has no retry: once tokens start flowing there is nothing
// sensible to replay, so errors surface as a terminal stream chunk instead.
func (g *gateway) CompleteStream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	p, err := g.provider(req.Provider)
	if err != nil {
		return nil, err
	}
	if req.Model == "" {
		req.Model = g.defaultModel
	}
	return p.CompleteStream(ctx, req)
}

func (g *gateway) Embed(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	p, err := g.provider("")
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := p.Embed(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("embedding retries exhausted: %w", lastErr)
}
