// Package rag turns a question into the passages most relevant to it. It
// composes an embedding capability with a nearest-neighbour index and adds
// nothing else: no caching, no re-ranking, no fallback on failure.
package rag

import (
	"context"
	"fmt"

	"github.com/54b3r/raggate-go/internal/index"
)

// Embedder converts text into dense vectors. Implementations must be safe
// for concurrent use and deterministic: identical input yields an identical
// vector.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("rag: embedder returned %d vectors for one text", len(vecs))
	}
	return vecs[0], nil
}

// Retriever fetches the passages nearest to a question.
// It is safe for concurrent use.
type Retriever struct {
	// embedder converts the question to a vector.
	embedder Embedder

	// index performs the nearest-neighbour search.
	index index.Searcher

	// defaultTopK is used when the caller passes k <= 0.
	defaultTopK int
}

// NewRetriever constructs a Retriever. defaultTopK is the result count used
// when Retrieve is called with k <= 0.
func NewRetriever(embedder Embedder, idx index.Searcher, defaultTopK int) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if idx == nil {
		return nil, fmt.Errorf("rag: index must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = 3
	}
	return &Retriever{embedder: embedder, index: idx, defaultTopK: defaultTopK}, nil
}

// TopK returns the default result count.
func (r *Retriever) TopK() int { return r.defaultTopK }

// Retrieve returns the texts of the k nearest passages, nearest first.
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) ([]string, error) {
	hits, err := r.RetrieveHits(ctx, question, k)
	if err != nil {
		return nil, err
	}
	return index.Texts(hits), nil
}

// RetrieveHits is Retrieve with document IDs and distances kept.
func (r *Retriever) RetrieveHits(ctx context.Context, question string, k int) ([]index.Hit, error) {
	if k <= 0 {
		k = r.defaultTopK
	}

	vec, err := EmbedOne(ctx, r.embedder, question)
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}

	hits, err := r.index.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}
	return hits, nil
}
