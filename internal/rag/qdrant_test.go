package rag

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
)

func scored(id uint64, score float32, text string) *qdrant.ScoredPoint {
	return &qdrant.ScoredPoint{
		Id:    qdrant.NewIDNum(id),
		Score: score,
		Payload: map[string]*qdrant.Value{
			textKey: {Kind: &qdrant.Value_StringValue{StringValue: text}},
		},
	}
}

func TestToHits_SquaresOrdersAndTruncates(t *testing.T) {
	t.Parallel()

	// Server order puts the higher ID first within a tie.
	results := []*qdrant.ScoredPoint{
		scored(7, 1, "seven"),
		scored(3, 1, "three"),
		scored(9, 0.5, "nine"),
		scored(1, 2, "one"),
	}

	hits := toHits(results, 3)
	if len(hits) != 3 {
		t.Fatalf("got %d hits, want 3", len(hits))
	}
	wantIDs := []int{9, 3, 7}
	wantDist := []float64{0.25, 1, 1}
	for i, h := range hits {
		if h.Document.ID != wantIDs[i] {
			t.Errorf("hit %d: id = %d, want %d", i, h.Document.ID, wantIDs[i])
		}
		if h.Distance != wantDist[i] {
			t.Errorf("hit %d: distance = %v, want %v", i, h.Distance, wantDist[i])
		}
	}
	if hits[1].Document.Text != "three" {
		t.Errorf("text = %q, want payload text", hits[1].Document.Text)
	}
}

func TestToHits_FewerThanK(t *testing.T) {
	t.Parallel()

	hits := toHits([]*qdrant.ScoredPoint{scored(0, 3, "zero")}, 5)
	if len(hits) != 1 || hits[0].Distance != 9 {
		t.Fatalf("hits = %+v, want one hit at distance 9", hits)
	}
	if got := toHits(nil, 5); len(got) != 0 {
		t.Errorf("empty results gave %d hits", len(got))
	}
}
