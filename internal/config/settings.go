package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Index backends accepted by RAGGATE_INDEX_BACKEND.
const (
	IndexFlat   = "flat"
	IndexVPTree = "vptree"
	IndexQdrant = "qdrant"
)

// DefaultBlockedPatterns is the blocklist used when RAGGATE_BLOCKED_PATTERNS
// is unset.
var DefaultBlockedPatterns = []string{
	"ignore previous instructions",
	"disregard all",
	"system prompt",
	"DROP TABLE",
	"SELECT * FROM",
	"exec(",
	"eval(",
	"__import__",
	"os.system",
	"subprocess",
}

// Settings are the typed, validated values the service runs with. They are
// resolved from the environment after Load and LoadDotEnv have run.
type Settings struct {
	// IndexBackend is flat, vptree or qdrant.
	IndexBackend string
	// TopK is the number of passages retrieved per question.
	TopK int
	// DocumentsPath is the JSON documents file.
	DocumentsPath string
	// SnapshotPath caches the built index when non-empty.
	SnapshotPath string
	// WatchDocuments rebuilds the index when the documents file changes.
	WatchDocuments bool
	// WarmupBatch is the number of documents per embedding request.
	WarmupBatch int
	// WarmupConcurrency bounds concurrent embedding requests during warm-up.
	WarmupConcurrency int

	// MaxPromptLength is the gate's length limit in characters.
	MaxPromptLength int
	// BlockedPatterns is the ordered phrase blocklist.
	BlockedPatterns []string
	// RevealBlockedPhrase names the matched phrase in rejection messages.
	RevealBlockedPhrase bool

	// ContextPassages is how many retrieved passages the model sees.
	ContextPassages int
	// ContextTokens caps the passage token budget in the prompt.
	ContextTokens int

	// AuditLogPath is the JSON Lines audit file; empty when disabled.
	AuditLogPath string
	// AuditDBPath is the SQLite audit database; empty when disabled.
	AuditDBPath string

	// Host and Port are the HTTP bind address.
	Host string
	Port int
	// APIKey enables Bearer authentication when non-empty.
	APIKey string
	// MaxQuestionLength is the request validation bound in characters.
	MaxQuestionLength int
	// QueryTimeout bounds a single query.
	QueryTimeout time.Duration
	// RateLimitRPS and RateLimitBurst configure per-client rate limiting.
	RateLimitRPS   float64
	RateLimitBurst int

	// Qdrant connection settings, used when IndexBackend is qdrant.
	QdrantHost       string
	QdrantPort       int
	QdrantCollection string
	QdrantAPIKey     string
	QdrantTLS        bool
}

// FromEnv resolves Settings from the environment, applying defaults and
// validating ranges. A returned error is a startup failure.
func FromEnv() (*Settings, error) {
	var errs []string
	intVar := func(key string, def, minimum int) int {
		v, err := envInt(key, def)
		if err != nil {
			errs = append(errs, err.Error())
			return def
		}
		if v < minimum {
			errs = append(errs, fmt.Sprintf("%s must be >= %d, got %d", key, minimum, v))
		}
		return v
	}

	s := &Settings{
		IndexBackend:      strings.ToLower(envOr("RAGGATE_INDEX_BACKEND", IndexFlat)),
		TopK:              intVar("RAGGATE_TOP_K", 3, 1),
		DocumentsPath:     envOr("RAGGATE_DOCUMENTS", "data/documents/sample_docs.json"),
		SnapshotPath:      os.Getenv("RAGGATE_INDEX_SNAPSHOT"),
		WarmupBatch:       intVar("RAGGATE_WARMUP_BATCH", 32, 1),
		WarmupConcurrency: intVar("RAGGATE_WARMUP_CONCURRENCY", 4, 1),
		MaxPromptLength:   intVar("RAGGATE_MAX_PROMPT_LENGTH", 1000, 1),
		BlockedPatterns:   DefaultBlockedPatterns,
		ContextPassages:   intVar("MODEL_CONTEXT_PASSAGES", 2, 1),
		ContextTokens:     intVar("MODEL_CONTEXT_TOKENS", 2000, 1),
		AuditLogPath:      envOr("RAGGATE_AUDIT_LOG", "logs/security.log"),
		AuditDBPath:       os.Getenv("RAGGATE_AUDIT_DB"),
		Host:              envOr("RAGGATE_HOST", "127.0.0.1"),
		Port:              intVar("RAGGATE_PORT", 8080, 1),
		APIKey:            os.Getenv("RAGGATE_API_KEY"),
		MaxQuestionLength: intVar("RAGGATE_MAX_QUESTION_LENGTH", 1000, 1),
		RateLimitBurst:    intVar("RAGGATE_RATE_LIMIT_BURST", 20, 1),
		QdrantHost:        envOr("QDRANT_HOST", "localhost"),
		QdrantPort:        intVar("QDRANT_PORT", 6334, 1),
		QdrantCollection:  envOr("QDRANT_COLLECTION", "raggate"),
		QdrantAPIKey:      os.Getenv("QDRANT_API_KEY"),
	}

	var err error
	if s.WatchDocuments, err = envBool("RAGGATE_WATCH_DOCUMENTS", false); err != nil {
		errs = append(errs, err.Error())
	}
	if s.RevealBlockedPhrase, err = envBool("RAGGATE_REVEAL_BLOCKED_PHRASE", true); err != nil {
		errs = append(errs, err.Error())
	}
	if s.QdrantTLS, err = envBool("QDRANT_TLS", false); err != nil {
		errs = append(errs, err.Error())
	}

	if raw := os.Getenv("RAGGATE_BLOCKED_PATTERNS"); raw != "" {
		s.BlockedPatterns = splitList(raw)
	}

	s.RateLimitRPS = 10
	if raw := os.Getenv("RAGGATE_RATE_LIMIT_RPS"); raw != "" {
		if s.RateLimitRPS, err = strconv.ParseFloat(raw, 64); err != nil || s.RateLimitRPS < 0 {
			errs = append(errs, fmt.Sprintf("RAGGATE_RATE_LIMIT_RPS must be a non-negative number, got %q", raw))
		}
	}

	s.QueryTimeout = 60 * time.Second
	if raw := os.Getenv("RAGGATE_QUERY_TIMEOUT"); raw != "" {
		if s.QueryTimeout, err = time.ParseDuration(raw); err != nil || s.QueryTimeout <= 0 {
			errs = append(errs, fmt.Sprintf("RAGGATE_QUERY_TIMEOUT must be a positive duration, got %q", raw))
		}
	}

	if strings.EqualFold(s.AuditLogPath, "disabled") {
		s.AuditLogPath = ""
	}

	switch s.IndexBackend {
	case IndexFlat, IndexVPTree, IndexQdrant:
	default:
		errs = append(errs, fmt.Sprintf("RAGGATE_INDEX_BACKEND must be one of flat, vptree, qdrant, got %q", s.IndexBackend))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config: invalid settings: %s", strings.Join(errs, "; "))
	}
	return s, nil
}

// Addr returns the host:port listen address.
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// splitList splits a comma-separated list, trimming blanks and dropping
// empty entries.
func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s must be an integer, got %q", key, raw)
	}
	return v, nil
}

func envBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s must be a boolean, got %q", key, raw)
	}
	return v, nil
}
