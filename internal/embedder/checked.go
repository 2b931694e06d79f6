package embedder

import (
	"context"
	"errors"
	"fmt"

	"github.com/54b3r/raggate-go/internal/rag"
)

// ErrDimension is returned when a backend produces vectors of the wrong
// length or the wrong number of vectors.
var ErrDimension = errors.New("embedder: unexpected embedding shape")

// Checked wraps an embedder and enforces that every output has exactly the
// configured dimension and that one vector is returned per input text.
type Checked struct {
	inner rag.Embedder
	dim   int
	name  string
}

// NewChecked wraps inner with a dimension check for dim.
func NewChecked(inner rag.Embedder, dim int) *Checked {
	name := "embedder"
	if n, ok := inner.(interface{ Name() string }); ok {
		name = n.Name()
	}
	return &Checked{inner: inner, dim: dim, name: name}
}

// Name returns the wrapped backend's name.
func (c *Checked) Name() string { return c.name }

// Dimension returns the enforced vector length D.
func (c *Checked) Dimension() int { return c.dim }

// Embed delegates to the wrapped embedder and validates the result shape.
func (c *Checked) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := c.inner.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d texts", ErrDimension, c.name, len(vecs), len(texts))
	}
	for i, v := range vecs {
		if len(v) != c.dim {
			return nil, fmt.Errorf("%w: %s returned %d dimensions for text %d, want %d (check EMBEDDING_DIMENSIONS)",
				ErrDimension, c.name, len(v), i, c.dim)
		}
	}
	return vecs, nil
}
