//go:build integration

package embedder

import (
	"context"
	"testing"
	"time"
)

// TestOllamaEmbedder_Integration calls a locally running Ollama instance.
//
// Prerequisites:
//
//	ollama pull nomic-embed-text
//	ollama serve
//
// Run with:
//
//	go test -tags=integration -run TestOllamaEmbedder_Integration ./internal/embedder/
func TestOllamaEmbedder_Integration(t *testing.T) {
	host := getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
	model := getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel)
	dim := getEnvInt("EMBEDDING_DIMENSIONS", defaultOllamaDimensions)

	emb := NewChecked(NewOllamaEmbedder(&OllamaConfig{Host: host, Model: model}), dim)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	texts := []string{
		"Machine learning is a subset of artificial intelligence.",
		"Basalt is an extrusive igneous rock.",
	}
	first, err := emb.Embed(ctx, texts)
	if err != nil {
		t.Fatalf("Embed() failed: %v\n\nEnsure Ollama is running and %q is pulled (EMBEDDING_DIMENSIONS=%d)", err, model, dim)
	}

	// The index relies on identical input producing identical vectors.
	second, err := emb.Embed(ctx, texts[:1])
	if err != nil {
		t.Fatalf("second Embed() failed: %v", err)
	}
	for j := range first[0] {
		if first[0][j] != second[0][j] {
			t.Errorf("embedding not deterministic at component %d", j)
			break
		}
	}

	t.Logf("model=%s dim=%d", model, len(first[0]))
}
