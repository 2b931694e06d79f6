package rag

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/54b3r/raggate-go/internal/index"
)

// Snapshot holds the index currently serving queries. A replacement index is
// built completely off to the side and installed with Swap; in-flight
// searches keep using the index they started with. Reads never lock.
type Snapshot struct {
	cur atomic.Pointer[generation]
}

type generation struct {
	searcher index.Searcher
	version  uint64
}

var _ index.Searcher = (*Snapshot)(nil)

// NewSnapshot returns a holder serving s as version 1.
func NewSnapshot(s index.Searcher) *Snapshot {
	h := &Snapshot{}
	h.cur.Store(&generation{searcher: s, version: 1})
	return h
}

// Load returns the index currently being served.
func (h *Snapshot) Load() index.Searcher { return h.cur.Load().searcher }

// Version increases by one on every successful Swap.
func (h *Snapshot) Version() uint64 { return h.cur.Load().version }

// Swap installs next and returns its version. The replacement must have the
// same dimension as the index it replaces.
func (h *Snapshot) Swap(next index.Searcher) (uint64, error) {
	for {
		old := h.cur.Load()
		if next.Dimension() != old.searcher.Dimension() {
			return 0, fmt.Errorf("%w: replacement has %d dimensions, serving %d",
				index.ErrDimensionMismatch, next.Dimension(), old.searcher.Dimension())
		}
		gen := &generation{searcher: next, version: old.version + 1}
		if h.cur.CompareAndSwap(old, gen) {
			return gen.version, nil
		}
	}
}

// Search delegates to the current index.
func (h *Snapshot) Search(ctx context.Context, query []float32, k int) ([]index.Hit, error) {
	return h.Load().Search(ctx, query, k)
}

// Size returns the size of the current index.
func (h *Snapshot) Size() int { return h.Load().Size() }

// Dimension returns the dimension of the current index.
func (h *Snapshot) Dimension() int { return h.Load().Dimension() }
