package index

import (
	"fmt"
	"sync"
)

// Builder accumulates documents and vectors during warm-up. It is intended
// for single-threaded use; the mutex only guards against accidental misuse.
type Builder struct {
	mu     sync.Mutex
	dim    int
	docs   []Document
	vecs   [][]float32
	sealed bool
}

// NewBuilder returns an empty builder for vectors of dimension dim.
func NewBuilder(dim int) (*Builder, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("index: dimension must be positive, got %d", dim)
	}
	return &Builder{dim: dim}, nil
}

// Add appends texts with their vectors. IDs continue from the current size.
// The batch is validated as a whole before anything is appended, so a failed
// Add leaves the builder unchanged.
func (b *Builder) Add(vectors [][]float32, texts []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return ErrSealed
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("%w: %d vectors, %d documents", ErrLengthMismatch, len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != b.dim {
			return fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrDimensionMismatch, i, len(v), b.dim)
		}
	}

	base := len(b.docs)
	for i := range vectors {
		vec := make([]float32, b.dim)
		copy(vec, vectors[i])
		b.docs = append(b.docs, Document{ID: base + i, Text: texts[i]})
		b.vecs = append(b.vecs, vec)
	}
	return nil
}

// Size returns the number of documents added so far.
func (b *Builder) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.docs)
}

// Seal freezes the builder and returns the brute-force index over its
// contents. Subsequent calls to Add return ErrSealed; Seal itself may be
// called again and returns an index over the same data.
func (b *Builder) Seal() *Flat {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sealed = true
	return &Flat{dim: b.dim, docs: b.docs, vecs: b.vecs}
}
