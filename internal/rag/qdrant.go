package rag

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/raggate-go/internal/index"
)

// upsertBatch is the number of points sent per Upsert call.
const upsertBatch = 256

// textKey is the payload field holding the passage text.
const textKey = "text"

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name (default: raggate).
	Collection string

	// VectorSize is the embedding dimension D.
	VectorSize int

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore is an index.Searcher backed by a Qdrant collection using
// Euclidean distance. Points are keyed by numeric document ID. Qdrant
// reports plain Euclidean distance; it is squared here and results are
// re-sorted so ordering and tie-breaking match the in-memory indexes.
type QdrantStore struct {
	client *qdrant.Client
	cfg    QdrantConfig
	size   atomic.Int64
}

var _ index.Searcher = (*QdrantStore)(nil)

// NewQdrantStore connects to Qdrant. The collection is created by Load.
func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "raggate"
	}
	if cfg.VectorSize <= 0 {
		return nil, fmt.Errorf("qdrant: vector size must be positive, got %d", cfg.VectorSize)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}
	return &QdrantStore{client: client, cfg: cfg}, nil
}

// Name implements the readiness Pinger interface.
func (s *QdrantStore) Name() string { return "qdrant" }

// Ping implements the readiness Pinger interface.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Load replaces the collection contents with docs and their vectors. The
// collection is dropped and recreated so point IDs always mirror the
// document IDs of the current corpus.
func (s *QdrantStore) Load(ctx context.Context, docs []index.Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return fmt.Errorf("%w: %d vectors, %d documents", index.ErrLengthMismatch, len(vectors), len(docs))
	}
	for i, v := range vectors {
		if len(v) != s.cfg.VectorSize {
			return fmt.Errorf("%w: vector %d has %d dimensions, want %d",
				index.ErrDimensionMismatch, i, len(v), s.cfg.VectorSize)
		}
	}

	if err := s.recreateCollection(ctx); err != nil {
		return err
	}

	for start := 0; start < len(docs); start += upsertBatch {
		end := min(start+upsertBatch, len(docs))
		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDNum(uint64(docs[i].ID)),
				Vectors: qdrant.NewVectorsDense(vectors[i]),
				Payload: qdrant.NewValueMap(map[string]any{textKey: docs[i].Text}),
			})
		}
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.cfg.Collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("qdrant: upsert failed: %w", err)
		}
	}

	s.size.Store(int64(len(docs)))
	return nil
}

func (s *QdrantStore) recreateCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		if err := s.client.DeleteCollection(ctx, s.cfg.Collection); err != nil {
			return fmt.Errorf("qdrant: failed to drop collection %q: %w", s.cfg.Collection, err)
		}
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.cfg.VectorSize),
			Distance: qdrant.Distance_Euclid,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}
	return nil
}

// Size returns the number of points loaded by the last Load.
func (s *QdrantStore) Size() int { return int(s.size.Load()) }

// Dimension returns the collection vector size.
func (s *QdrantStore) Dimension() int { return s.cfg.VectorSize }

// Search queries the collection. It over-fetches by k so that points tied
// with the k-th result can be ordered by ID before truncation.
func (s *QdrantStore) Search(ctx context.Context, query []float32, k int) ([]index.Hit, error) {
	if len(query) != s.cfg.VectorSize {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d",
			index.ErrDimensionMismatch, len(query), s.cfg.VectorSize)
	}
	if k <= 0 || s.Size() == 0 {
		return []index.Hit{}, nil
	}

	k = min(k, s.Size())
	limit := uint64(2 * k)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQueryDense(query),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}
	return toHits(results, k), nil
}

// toHits converts Euclid-scored points to squared distances, orders them by
// (distance, id) and keeps the first k.
func toHits(results []*qdrant.ScoredPoint, k int) []index.Hit {
	hits := make([]index.Hit, 0, len(results))
	for _, r := range results {
		d := float64(r.GetScore())
		hit := index.Hit{
			Document: index.Document{ID: int(r.GetId().GetNum())},
			Distance: d * d,
		}
		if v, ok := r.GetPayload()[textKey]; ok {
			hit.Document.Text = v.GetStringValue()
		}
		hits = append(hits, hit)
	}
	index.SortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Close closes the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
