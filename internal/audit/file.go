package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileTrail appends records to a JSON Lines file, one object per line.
// Each record is encoded up front and written with a single Write call under
// a mutex on an O_APPEND descriptor, so concurrent records never interleave.
type FileTrail struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// OpenFile opens (or creates) the JSON Lines file at path, creating parent
// directories as needed.
func OpenFile(path string) (*FileTrail, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("audit: create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	return &FileTrail{f: f, path: path}, nil
}

// Path returns the file being written.
func (t *FileTrail) Path() string { return t.path }

// Record appends rec as one JSON line.
func (t *FileTrail) Record(_ context.Context, rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit: encode record: %w", err)
	}
	line = append(line, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f == nil {
		return fmt.Errorf("audit: %s is closed", t.path)
	}
	if _, err := t.f.Write(line); err != nil {
		return fmt.Errorf("audit: write %s: %w", t.path, err)
	}
	return nil
}

// Close flushes and closes the file. Further records fail.
func (t *FileTrail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f == nil {
		return nil
	}
	err := t.f.Close()
	t.f = nil
	if err != nil {
		return fmt.Errorf("audit: close %s: %w", t.path, err)
	}
	return nil
}

// ReadFile returns the last n records of a JSON Lines trail, oldest first.
// A missing file yields no records. Lines that do not decode are skipped.
func ReadFile(path string, n int) ([]Record, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	defer f.Close()

	var recs []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		recs = append(recs, rec)
		if n > 0 && len(recs) > n {
			recs = recs[1:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("audit: read %s: %w", path, err)
	}
	return recs, nil
}
