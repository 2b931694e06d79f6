package server

import (
	"context"
	"fmt"

	"github.com/54b3r/raggate-go/internal/provider"
	"github.com/54b3r/raggate-go/internal/rag"
)

// LLMPinger probes the chat backend through its token-free health check.
type LLMPinger struct {
	hc   provider.HealthChecker
	name string
}

// NewLLMPinger returns a Pinger for hc labelled name (e.g. "ollama").
func NewLLMPinger(hc provider.HealthChecker, name string) *LLMPinger {
	return &LLMPinger{hc: hc, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping runs the backend health check.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if err := p.hc.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%s health check failed: %w", p.name, err)
	}
	return nil
}

// EmbedderPinger probes the embedding endpoint by embedding a one-word text.
// The result shape is checked, so a dimension drift also fails readiness.
type EmbedderPinger struct {
	emb  rag.Embedder
	name string
}

// NewEmbedderPinger returns a Pinger for emb labelled name.
func NewEmbedderPinger(emb rag.Embedder, name string) *EmbedderPinger {
	return &EmbedderPinger{emb: emb, name: name}
}

// Name returns the embedder label used in readiness responses.
func (p *EmbedderPinger) Name() string { return p.name }

// Ping embeds a probe text.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	vecs, err := p.emb.Embed(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embed probe failed: %w", err)
	}
	if len(vecs) != 1 {
		return fmt.Errorf("embed probe returned %d vectors, want 1", len(vecs))
	}
	return nil
}
