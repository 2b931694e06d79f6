// Package index implements exact k-nearest-neighbour search over a fixed
// collection of documents and their embedding vectors.
//
// An index is populated once through a [Builder] and then sealed into an
// immutable [Searcher]. Sealing is the only way to obtain a Searcher, so
// writes can never be observed by concurrent readers: a sealed index is safe
// for unlimited concurrent use without locks.
//
// Distance is squared Euclidean. Results are ordered by ascending distance,
// ties broken by ascending document ID, so the same query against the same
// index always yields the same ordering.
package index

import (
	"context"
	"errors"
	"sort"
)

var (
	// ErrDimensionMismatch is returned when a vector does not have the
	// dimension the index was created with.
	ErrDimensionMismatch = errors.New("index: vector dimension mismatch")

	// ErrLengthMismatch is returned when Add receives a different number of
	// vectors and documents.
	ErrLengthMismatch = errors.New("index: vectors and documents length mismatch")

	// ErrSealed is returned when Add is called on a builder that has already
	// produced an index.
	ErrSealed = errors.New("index: builder already sealed")
)

// Document is an immutable unit of text stored in the index.
type Document struct {
	// ID is assigned at insertion in strictly increasing order starting at 0.
	ID int `json:"id"`

	// Text is the passage content returned to callers.
	Text string `json:"text"`
}

// Hit is a single search result.
type Hit struct {
	// Document is the matched document.
	Document Document `json:"document"`

	// Distance is the squared Euclidean distance between the query and the
	// document vector.
	Distance float64 `json:"distance"`
}

// Searcher is a read-only nearest-neighbour index.
// Implementations must be safe to call from multiple goroutines.
type Searcher interface {
	// Search returns up to k hits ordered by ascending distance, ties broken
	// by ascending document ID. Fewer than k hits are returned when the index
	// holds fewer than k documents; an empty index yields an empty result.
	// A query of the wrong dimension returns ErrDimensionMismatch.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)

	// Size returns the number of indexed documents.
	Size() int

	// Dimension returns the vector dimension D.
	Dimension() int
}

// Texts projects hits to their passage texts, preserving order.
func Texts(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Document.Text
	}
	return out
}

// SquaredL2 returns the squared Euclidean distance between a and b.
// Both slices must have the same length.
func SquaredL2(a, b []float32) float64 {
	var s float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		s += d * d
	}
	return s
}

// less reports whether hit a ranks before hit b.
func less(a, b Hit) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.Document.ID < b.Document.ID
}

// SortHits orders hits by ascending distance, then ascending document ID.
func SortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool { return less(hits[i], hits[j]) })
}
