// Package bootstrap wires the service graph: settings, embedder, corpus,
// index, gate, generator, audit trail and pipeline. [Once] guards
// construction so concurrent first callers share a single build, and the
// server calls it before it starts listening.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/raggate-go/internal/audit"
	"github.com/54b3r/raggate-go/internal/config"
	"github.com/54b3r/raggate-go/internal/embedder"
	"github.com/54b3r/raggate-go/internal/generator"
	"github.com/54b3r/raggate-go/internal/guard"
	"github.com/54b3r/raggate-go/internal/index"
	"github.com/54b3r/raggate-go/internal/ingestion"
	"github.com/54b3r/raggate-go/internal/pipeline"
	"github.com/54b3r/raggate-go/internal/provider"
	"github.com/54b3r/raggate-go/internal/rag"
)

// Options controls what Build constructs.
type Options struct {
	// Log receives startup progress. Defaults to slog.Default.
	Log *slog.Logger
	// Registerer receives pipeline and index metrics. Defaults to
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// SkipGenerator builds retrieval only (search, index build). Pipeline
	// is nil in that case.
	SkipGenerator bool
	// SkipAudit leaves file and database trails closed; records go to the
	// log only.
	SkipAudit bool
}

// Services is the constructed service graph. Close releases it.
type Services struct {
	Settings  *config.Settings
	Embedder  *embedder.Checked
	Index     *rag.Snapshot
	Qdrant    *rag.QdrantStore
	Retriever *rag.Retriever
	Gate      *guard.Gate
	Generator generator.Generator
	// LLMHealth is the token-free chat backend probe; nil when unavailable.
	LLMHealth provider.HealthChecker
	Trail     audit.Trail
	AuditDB   *audit.SQLiteTrail
	Pipeline  *pipeline.Pipeline

	ingest  *ingestion.Pipeline
	wrap    func(*index.Flat) index.Searcher
	closers []func() error
	log     *slog.Logger
}

// Once returns a function that builds the services on first call and
// returns the same result to every later or concurrent caller.
func Once(ctx context.Context, opts Options) func() (*Services, error) {
	return sync.OnceValues(func() (*Services, error) {
		return Build(ctx, opts)
	})
}

// Build constructs the service graph. Every error is a startup failure.
func Build(ctx context.Context, opts Options) (_ *Services, err error) {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	log := opts.Log
	start := time.Now()

	s := &Services{log: log}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	if s.Settings, err = config.FromEnv(); err != nil {
		return nil, err
	}
	set := s.Settings

	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	if s.Embedder, err = embedder.NewFromEnv(); err != nil {
		return nil, err
	}
	log.Info("bootstrap: embedder ready",
		slog.String("embedder", s.Embedder.Name()),
		slog.Int("dim", s.Embedder.Dimension()),
	)

	if s.ingest, err = ingestion.NewPipeline(s.Embedder, s.Embedder.Dimension(), &ingestion.Config{
		BatchSize:   set.WarmupBatch,
		Concurrency: set.WarmupConcurrency,
	}); err != nil {
		return nil, err
	}

	docs, err := ingestion.LoadDocuments(set.DocumentsPath, log)
	if err != nil {
		return nil, err
	}

	searcher, err := s.buildIndex(ctx, docs)
	if err != nil {
		return nil, err
	}
	promauto.With(opts.Registerer).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "raggate",
		Subsystem: "index",
		Name:      "documents",
		Help:      "Number of documents in the live index.",
	}, func() float64 { return float64(searcher.Size()) })

	if s.Retriever, err = rag.NewRetriever(s.Embedder, searcher, set.TopK); err != nil {
		return nil, err
	}

	s.Gate = guard.New(guard.Config{
		MaxPromptLength:     set.MaxPromptLength,
		BlockedPhrases:      set.BlockedPatterns,
		RevealBlockedPhrase: set.RevealBlockedPhrase,
	})

	if err := s.openTrails(opts.SkipAudit); err != nil {
		return nil, err
	}

	if !opts.SkipGenerator {
		if s.Generator, s.LLMHealth, err = generator.NewFromEnv(ctx, generator.Options{
			ContextPassages: set.ContextPassages,
			ContextTokens:   set.ContextTokens,
		}, log); err != nil {
			return nil, err
		}
		if s.Pipeline, err = pipeline.New(pipeline.Config{
			Gate:       s.Gate,
			Retriever:  s.Retriever,
			Generator:  s.Generator,
			Trail:      s.Trail,
			TopK:       set.TopK,
			Registerer: opts.Registerer,
		}); err != nil {
			return nil, err
		}
	}

	log.Info("bootstrap: services ready",
		slog.String("index_backend", set.IndexBackend),
		slog.Int("documents", searcher.Size()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return s, nil
}

// buildIndex embeds the corpus into the configured backend. For the
// in-process backends a valid snapshot file whose documents match the corpus
// is reused instead of re-embedding.
func (s *Services) buildIndex(ctx context.Context, docs []string) (index.Searcher, error) {
	set := s.Settings
	dim := s.Embedder.Dimension()

	if set.IndexBackend == config.IndexQdrant {
		return s.loadQdrant(ctx, docs)
	}

	s.wrap = func(f *index.Flat) index.Searcher { return f }
	if set.IndexBackend == config.IndexVPTree {
		s.wrap = func(f *index.Flat) index.Searcher { return index.NewVPTree(f) }
	}

	if flat := s.cachedSnapshot(docs, dim); flat != nil {
		s.Index = rag.NewSnapshot(s.wrap(flat))
		return s.Index, nil
	}

	flat, _, err := s.ingest.Build(ctx, docs)
	if err != nil {
		return nil, err
	}
	if set.SnapshotPath != "" {
		if err := index.WriteSnapshot(set.SnapshotPath, flat); err != nil {
			s.log.Warn("bootstrap: failed to write index snapshot", slog.Any("error", err))
		}
	}
	s.Index = rag.NewSnapshot(s.wrap(flat))
	return s.Index, nil
}

// cachedSnapshot returns the snapshot at SnapshotPath when it exists, has
// dimension dim and holds exactly docs in order.
func (s *Services) cachedSnapshot(docs []string, dim int) *index.Flat {
	path := s.Settings.SnapshotPath
	if path == "" {
		return nil
	}
	flat, err := index.ReadSnapshot(path, dim)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("bootstrap: ignoring unusable index snapshot",
				slog.String("path", path), slog.Any("error", err))
		}
		return nil
	}
	cached := flat.Documents()
	if !slices.EqualFunc(cached, docs, func(d index.Document, text string) bool { return d.Text == text }) {
		s.log.Info("bootstrap: index snapshot is stale, rebuilding", slog.String("path", path))
		return nil
	}
	s.log.Info("bootstrap: index loaded from snapshot",
		slog.String("path", path), slog.Int("documents", flat.Size()))
	return flat
}

func (s *Services) loadQdrant(ctx context.Context, docs []string) (index.Searcher, error) {
	set := s.Settings
	store, err := rag.NewQdrantStore(rag.QdrantConfig{
		Host:       set.QdrantHost,
		Port:       set.QdrantPort,
		Collection: set.QdrantCollection,
		VectorSize: s.Embedder.Dimension(),
		APIKey:     set.QdrantAPIKey,
		UseTLS:     set.QdrantTLS,
	})
	if err != nil {
		return nil, err
	}
	s.Qdrant = store
	s.closers = append(s.closers, store.Close)

	vecs, err := s.ingest.Embed(ctx, docs)
	if err != nil {
		return nil, err
	}
	documents := make([]index.Document, len(docs))
	for i, text := range docs {
		documents[i] = index.Document{ID: i, Text: text}
	}
	if err := store.Load(ctx, documents, vecs); err != nil {
		return nil, err
	}
	return store, nil
}

// openTrails assembles the audit fan-out: the log mirror always, plus the
// JSON Lines file and SQLite database when configured.
func (s *Services) openTrails(logOnly bool) error {
	trails := audit.Multi{audit.NewLogTrail(s.log)}
	if logOnly {
		s.Trail = trails
		return nil
	}
	if path := s.Settings.AuditLogPath; path != "" {
		ft, err := audit.OpenFile(path)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, ft.Close)
		trails = append(trails, ft)
		s.log.Info("bootstrap: audit file opened", slog.String("path", ft.Path()))
	}
	if path := s.Settings.AuditDBPath; path != "" {
		db, err := audit.OpenSQLite(path)
		if err != nil {
			return err
		}
		s.AuditDB = db
		s.closers = append(s.closers, db.Close)
		trails = append(trails, db)
	}
	s.Trail = trails
	return nil
}

// Watch rebuilds and swaps the index whenever the documents file changes.
// It blocks until ctx is cancelled and is a no-op for the qdrant backend.
func (s *Services) Watch(ctx context.Context) error {
	if s.Index == nil {
		s.log.Warn("bootstrap: document watching is not supported by the qdrant backend")
		return nil
	}
	w, err := ingestion.NewWatcher(s.Settings.DocumentsPath, s.ingest, func(f *index.Flat) error {
		v, err := s.Index.Swap(s.wrap(f))
		if err != nil {
			return fmt.Errorf("bootstrap: swap index: %w", err)
		}
		s.log.Info("bootstrap: index swapped", slog.Uint64("version", v))
		return nil
	}, s.log)
	if err != nil {
		return err
	}
	s.log.Info("bootstrap: watching documents", slog.String("path", s.Settings.DocumentsPath))
	w.Run(ctx)
	return nil
}

// Close releases trails and clients in reverse order of opening.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
