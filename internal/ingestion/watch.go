package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/54b3r/raggate-go/internal/index"
)

// defaultDebounce coalesces the burst of events editors emit on save.
const defaultDebounce = 500 * time.Millisecond

// Watcher rebuilds the index whenever the corpus file changes and hands the
// new index to onBuild. A failed rebuild is logged and the caller keeps
// serving the previous index.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	pipeline *Pipeline
	onBuild  func(*index.Flat) error
	debounce time.Duration
	log      *slog.Logger
}

// NewWatcher watches the directory containing path; editors often replace the
// file by rename, which a watch on the file itself would miss.
func NewWatcher(path string, p *Pipeline, onBuild func(*index.Flat) error, log *slog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("ingestion: create watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("ingestion: resolve %s: %w", path, err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("ingestion: watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{
		watcher:  w,
		path:     abs,
		pipeline: p,
		onBuild:  onBuild,
		debounce: defaultDebounce,
		log:      log,
	}, nil
}

// Run processes events until ctx is cancelled. It closes the underlying
// watcher on return.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("ingestion: watcher error", slog.Any("error", err))
		case <-fire:
			fire = nil
			w.rebuild(ctx)
		}
	}
}

func (w *Watcher) rebuild(ctx context.Context) {
	start := time.Now()
	// A file moved away is not an empty corpus.
	if _, err := os.Stat(w.path); errors.Is(err, fs.ErrNotExist) {
		w.log.Warn("ingestion: documents file removed, keeping previous index", slog.String("path", w.path))
		return
	}
	docs, err := LoadDocuments(w.path, w.log)
	if err != nil {
		w.log.Error("ingestion: reload failed, keeping previous index", slog.Any("error", err))
		return
	}
	flat, _, err := w.pipeline.Build(ctx, docs)
	if err != nil {
		w.log.Error("ingestion: rebuild failed, keeping previous index", slog.Any("error", err))
		return
	}
	if err := w.onBuild(flat); err != nil {
		w.log.Error("ingestion: swap failed, keeping previous index", slog.Any("error", err))
		return
	}
	w.log.Info("ingestion: index rebuilt",
		slog.Int("documents", flat.Size()),
		slog.Duration("elapsed", time.Since(start)),
	)
}
