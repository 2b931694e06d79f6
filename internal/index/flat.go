package index

import (
	"container/heap"
	"context"
	"fmt"
)

// Flat is an exact brute-force index. Every query scans all vectors.
type Flat struct {
	dim  int
	docs []Document
	vecs [][]float32
}

var _ Searcher = (*Flat)(nil)

// Size returns the number of indexed documents.
func (f *Flat) Size() int { return len(f.docs) }

// Dimension returns the vector dimension.
func (f *Flat) Dimension() int { return f.dim }

// Documents returns a copy of the indexed documents in ID order.
func (f *Flat) Documents() []Document {
	out := make([]Document, len(f.docs))
	copy(out, f.docs)
	return out
}

// Search scans every vector and keeps the k best in a bounded heap.
func (f *Flat) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d", ErrDimensionMismatch, len(query), f.dim)
	}
	if k <= 0 || len(f.docs) == 0 {
		return []Hit{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("index: search cancelled: %w", err)
	}

	top := newTopK(min(k, len(f.docs)))
	for i, v := range f.vecs {
		top.offer(Hit{Document: f.docs[i], Distance: SquaredL2(query, v)})
	}
	return top.sorted(), nil
}

// topK is a bounded max-heap holding the k best hits seen so far. The root
// is the worst retained hit.
type topK struct {
	k    int
	hits hitHeap
}

func newTopK(k int) *topK {
	return &topK{k: k, hits: make(hitHeap, 0, k)}
}

// offer considers h for inclusion.
func (t *topK) offer(h Hit) {
	if len(t.hits) < t.k {
		heap.Push(&t.hits, h)
		return
	}
	if less(h, t.hits[0]) {
		t.hits[0] = h
		heap.Fix(&t.hits, 0)
	}
}

// full reports whether k hits have been collected.
func (t *topK) full() bool { return len(t.hits) == t.k }

// worst returns the distance of the worst retained hit.
func (t *topK) worst() float64 { return t.hits[0].Distance }

// sorted returns the retained hits in ranking order.
func (t *topK) sorted() []Hit {
	out := make([]Hit, len(t.hits))
	copy(out, t.hits)
	SortHits(out)
	return out
}

// hitHeap orders hits worst-first so the root can be evicted.
type hitHeap []Hit

func (h hitHeap) Len() int           { return len(h) }
func (h hitHeap) Less(i, j int) bool { return less(h[j], h[i]) }
func (h hitHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x any)        { *h = append(*h, x.(Hit)) }
func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
