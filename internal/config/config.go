// Package config provides layered configuration for raggate.
// Precedence is defaults → YAML file → env vars; environment variables always
// win. A .env file in the working directory is loaded into the environment
// first (without overriding variables that are already set).
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. RAGGATE_CONFIG environment variable
//  3. ~/.raggate/config.yaml
//  4. ./raggate.yaml
//
// If no file is found the service runs entirely from env vars. Typed settings
// are then resolved from the environment by [FromEnv].
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
type Config struct {
	// Model configures the answer-generation chat model.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding backend.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Index configures the document corpus and the vector index.
	Index IndexConfig `yaml:"index"`

	// Security configures the prompt gate.
	Security SecurityConfig `yaml:"security"`

	// Audit configures where query outcomes are recorded.
	Audit AuditConfig `yaml:"audit"`

	// Qdrant configures the optional Qdrant index backend.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds chat model settings.
type ModelConfig struct {
	// Provider selects the backend: ollama, openai, azure, ark, gemini, echo.
	Provider string `yaml:"provider"`
	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens"`
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32 `yaml:"temperature"`
	// ContextPassages is how many retrieved passages are shown to the model.
	ContextPassages int `yaml:"context_passages"`
	// ContextTokens caps the token budget for passages in the prompt.
	ContextTokens int `yaml:"context_tokens"`

	Ollama OllamaConfig `yaml:"ollama"`
	OpenAI OpenAIConfig `yaml:"openai"`
	Azure  AzureConfig  `yaml:"azure"`
	Ark    ArkConfig    `yaml:"ark"`
	Gemini GeminiConfig `yaml:"gemini"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"api_version"`
}

// ArkConfig holds Volcengine Ark provider settings.
type ArkConfig struct {
	// APIKey is the Ark API key. Prefer env var ARK_API_KEY.
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// EmbeddingConfig holds embedding backend settings.
type EmbeddingConfig struct {
	// Provider selects the backend (ollama, openai, azure, hash).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions is the embedding vector size D.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
}

// IndexConfig holds corpus and index settings.
type IndexConfig struct {
	// Backend selects the index implementation: flat, vptree, qdrant.
	Backend string `yaml:"backend"`
	// TopK is the number of passages retrieved per question.
	TopK int `yaml:"top_k"`
	// Documents is the path of the JSON documents file.
	Documents string `yaml:"documents"`
	// Snapshot is an optional path for caching the built index.
	Snapshot string `yaml:"snapshot"`
	// Watch rebuilds the index when the documents file changes.
	Watch bool `yaml:"watch"`
	// WarmupBatch is the number of documents embedded per request.
	WarmupBatch int `yaml:"warmup_batch"`
	// WarmupConcurrency bounds concurrent embedding requests during warm-up.
	WarmupConcurrency int `yaml:"warmup_concurrency"`
}

// SecurityConfig holds prompt gate settings.
type SecurityConfig struct {
	// MaxPromptLength is the maximum prompt length in characters.
	MaxPromptLength int `yaml:"max_prompt_length"`
	// BlockedPatterns is the ordered phrase blocklist.
	BlockedPatterns []string `yaml:"blocked_patterns"`
	// RevealBlockedPhrase names the matched phrase in rejection messages.
	// A pointer distinguishes an explicit false from an unset value.
	RevealBlockedPhrase *bool `yaml:"reveal_blocked_phrase"`
}

// AuditConfig holds audit trail settings.
type AuditConfig struct {
	// File is the JSON Lines audit log path. Set to "disabled" to disable.
	File string `yaml:"file"`
	// DB is the SQLite audit database path. Empty disables it.
	DB string `yaml:"db"`
}

// QdrantConfig holds Qdrant settings.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	TLS    bool   `yaml:"tls"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var RAGGATE_API_KEY.
	APIKey string `yaml:"api_key"`
	// MaxQuestionLength is the request validation bound in characters.
	MaxQuestionLength int `yaml:"max_question_length"`
	// QueryTimeout bounds a single query, e.g. "60s".
	QueryTimeout string `yaml:"query_timeout"`
	// RateLimitRPS is the sustained per-client request rate (0 disables).
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
	// RateLimitBurst is the per-client burst size.
	RateLimitBurst int `yaml:"rate_limit_burst"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"MODEL_CONTEXT_PASSAGES", func(c *Config) string { return intStr(c.Model.ContextPassages) }},
	{"MODEL_CONTEXT_TOKENS", func(c *Config) string { return intStr(c.Model.ContextTokens) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Model.Ark.BaseURL }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"RAGGATE_INDEX_BACKEND", func(c *Config) string { return c.Index.Backend }},
	{"RAGGATE_TOP_K", func(c *Config) string { return intStr(c.Index.TopK) }},
	{"RAGGATE_DOCUMENTS", func(c *Config) string { return c.Index.Documents }},
	{"RAGGATE_INDEX_SNAPSHOT", func(c *Config) string { return c.Index.Snapshot }},
	{"RAGGATE_WATCH_DOCUMENTS", func(c *Config) string { return boolStr(c.Index.Watch) }},
	{"RAGGATE_WARMUP_BATCH", func(c *Config) string { return intStr(c.Index.WarmupBatch) }},
	{"RAGGATE_WARMUP_CONCURRENCY", func(c *Config) string { return intStr(c.Index.WarmupConcurrency) }},
	{"RAGGATE_MAX_PROMPT_LENGTH", func(c *Config) string { return intStr(c.Security.MaxPromptLength) }},
	{"RAGGATE_BLOCKED_PATTERNS", func(c *Config) string { return strings.Join(c.Security.BlockedPatterns, ",") }},
	{"RAGGATE_REVEAL_BLOCKED_PHRASE", func(c *Config) string { return boolPtrStr(c.Security.RevealBlockedPhrase) }},
	{"RAGGATE_AUDIT_LOG", func(c *Config) string { return c.Audit.File }},
	{"RAGGATE_AUDIT_DB", func(c *Config) string { return c.Audit.DB }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"RAGGATE_HOST", func(c *Config) string { return c.Server.Host }},
	{"RAGGATE_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"RAGGATE_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"RAGGATE_MAX_QUESTION_LENGTH", func(c *Config) string { return intStr(c.Server.MaxQuestionLength) }},
	{"RAGGATE_QUERY_TIMEOUT", func(c *Config) string { return c.Server.QueryTimeout }},
	{"RAGGATE_RATE_LIMIT_RPS", func(c *Config) string { return float64Str(c.Server.RateLimitRPS) }},
	{"RAGGATE_RATE_LIMIT_BURST", func(c *Config) string { return intStr(c.Server.RateLimitBurst) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// LoadDotEnv loads KEY=VALUE pairs from path (default ".env") into the
// environment without overriding variables that are already set. A missing
// file is not an error.
func LoadDotEnv(path string) (bool, error) {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return true, nil
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	// Phrases travel through RAGGATE_BLOCKED_PATTERNS as a comma-separated list.
	for _, p := range cfg.Security.BlockedPatterns {
		if strings.Contains(p, ",") {
			return "", fmt.Errorf("config: %s: security.blocked_patterns entry %q contains a comma", path, p)
		}
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set, do not override
		}
		if err := os.Setenv(m.envKey, yamlVal); err != nil {
			return "", fmt.Errorf("config: set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
// An explicit path that does not exist resolves to "".
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("RAGGATE_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".raggate", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("raggate.yaml"); err == nil {
		return "raggate.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// float64Str converts a float64 to string, returning "" for zero values.
func float64Str(v float64) string {
	return float32Str(float32(v))
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}

// boolPtrStr converts an optional bool to string, returning "" when unset.
func boolPtrStr(v *bool) string {
	if v == nil {
		return ""
	}
	if *v {
		return "true"
	}
	return "false"
}
