package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
)

// corpusFile is the on-disk document collection format.
type corpusFile struct {
	Documents []string `json:"documents"`
}

// LoadDocuments reads the JSON corpus at path. A missing file yields an empty
// corpus and a warning; a malformed one is an error.
func LoadDocuments(path string, log *slog.Logger) ([]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn("ingestion: documents file not found, starting with an empty corpus",
			slog.String("path", path),
		)
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ingestion: failed to read %s: %w", path, err)
	}

	var cf corpusFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("ingestion: failed to parse %s: %w", path, err)
	}
	if cf.Documents == nil {
		cf.Documents = []string{}
	}
	log.Info("ingestion: documents loaded",
		slog.String("path", path),
		slog.Int("count", len(cf.Documents)),
	)
	return cf.Documents, nil
}
