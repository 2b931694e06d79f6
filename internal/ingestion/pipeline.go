// Package ingestion loads the document corpus and turns it into a searchable
// index: read documents → embed in bounded concurrent batches → add to an
// index builder in original order. It also watches the corpus file and
// rebuilds on change.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/raggate-go/internal/index"
	"github.com/54b3r/raggate-go/internal/rag"
)

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// BatchSize is the maximum number of documents per embedding request.
	// Defaults to 32 if zero.
	BatchSize int

	// Concurrency bounds in-flight embedding requests. Defaults to 4 if zero.
	Concurrency int
}

// Pipeline embeds a corpus and builds an index from it.
type Pipeline struct {
	// embedder converts document texts into dense vectors.
	embedder rag.Embedder

	// dim is the embedding dimension D every vector must have.
	dim int

	// cfg holds the resolved pipeline configuration.
	cfg *Config
}

// NewPipeline constructs a Pipeline for vectors of dimension dim.
func NewPipeline(embedder rag.Embedder, dim int, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("ingestion: dimension must be positive, got %d", dim)
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Pipeline{embedder: embedder, dim: dim, cfg: cfg}, nil
}

// Embed returns one vector per text, in input order. Batches run
// concurrently up to cfg.Concurrency; the first failure cancels the rest.
func (p *Pipeline) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for start := 0; start < len(texts); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(texts))
		g.Go(func() error {
			vecs, err := p.embedder.Embed(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("ingestion: embedding batch [%d:%d] failed: %w", start, end, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("ingestion: embedding batch [%d:%d] returned %d vectors", start, end, len(vecs))
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Build embeds texts and seals them into a Flat index. Document i of the
// result is texts[i]. Any dimension violation is returned as an error.
func (p *Pipeline) Build(ctx context.Context, texts []string) (*index.Flat, [][]float32, error) {
	vecs, err := p.Embed(ctx, texts)
	if err != nil {
		return nil, nil, err
	}
	b, err := index.NewBuilder(p.dim)
	if err != nil {
		return nil, nil, fmt.Errorf("ingestion: %w", err)
	}
	if err := b.Add(vecs, texts); err != nil {
		return nil, nil, fmt.Errorf("ingestion: %w", err)
	}
	flat := b.Seal()
	slog.Debug("ingestion: index built", slog.Int("documents", flat.Size()), slog.Int("dim", p.dim))
	return flat, vecs, nil
}
