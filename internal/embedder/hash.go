package embedder

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// HashEmbedder is a deterministic, dependency-free embedder based on signed
// feature hashing of word unigrams and bigrams. It needs no corpus
// preparation and no network, which makes it suitable for offline runs and
// tests. Quality is lexical, not semantic.
type HashEmbedder struct {
	dim       int
	tokens    *regexp.Regexp
	stopwords map[string]struct{}
}

// NewHashEmbedder returns an embedder producing L2-normalised vectors of
// length dim.
func NewHashEmbedder(dim int) (*HashEmbedder, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("hash embedder: dimension must be positive, got %d", dim)
	}
	return &HashEmbedder{
		dim:       dim,
		tokens:    regexp.MustCompile(`[\p{L}\p{N}]+`),
		stopwords: stopwords(),
	}, nil
}

// Name identifies the backend in logs.
func (e *HashEmbedder) Name() string { return "hash-embedder" }

// Dimension returns the output vector length.
func (e *HashEmbedder) Dimension() int { return e.dim }

// Embed hashes each text independently. It never fails except on a
// cancelled context.
func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("hash embedder: %w", err)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *HashEmbedder) vector(text string) []float32 {
	acc := make([]float64, e.dim)
	var prev string
	for _, tok := range e.tokens.FindAllString(strings.ToLower(text), -1) {
		if _, stop := e.stopwords[tok]; stop {
			continue
		}
		e.add(acc, tok, 1)
		if prev != "" {
			e.add(acc, prev+" "+tok, 0.5)
		}
		prev = tok
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, e.dim)
	if norm == 0 {
		return vec
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

// add folds feature into acc. The low bits of the hash pick the bucket and
// the top bit picks the sign, which keeps collisions unbiased.
func (e *HashEmbedder) add(acc []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum(nil)
	v := binary.BigEndian.Uint64(sum)
	bucket := int(v % uint64(e.dim))
	if v>>63 == 1 {
		weight = -weight
	}
	acc[bucket] += weight
}

func stopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "for", "to", "of", "in",
		"on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been",
		"it", "this", "that", "these", "those", "from", "into", "about", "what",
		"which", "who", "how", "does", "do",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
