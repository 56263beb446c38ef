// Package config loads RepoChat configuration from the environment with
// optional YAML file overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Provider identifies an LLM or embedding backend.
type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderBedrock   Provider = "bedrock"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Reasoning service
	LLMProvider Provider
	LLMModel    string

	// Embedding service
	EmbedProvider  Provider
	EmbedModel     string
	EmbedDimension int

	// Provider credentials / endpoints
	OllamaHost      string
	OpenAIAPIKey    string
	AnthropicAPIKey string

	// GitHub fetch
	GitHubToken string

	// Chunking: code files use the language-aware splitter, everything
	// else falls back to the token splitter with the text settings.
	CodeChunkSize    int
	CodeChunkOverlap int
	TextChunkSize    int
	TextChunkOverlap int

	// Retrieval
	TopK int

	// Conversation loop bound: a turn fails once it exceeds this many
	// requires_action cycles.
	MaxRequiresActionCycles int

	// Ingestion
	IngestConcurrency int
	IndexBatchSize    int
	IndexMaxRetries   int

	// Server
	ServerPort string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "repochat"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "main"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		LLMProvider: Provider(getEnv("REPOCHAT_LLM_PROVIDER", "openai")),
		LLMModel:    getEnv("REPOCHAT_LLM_MODEL", "gpt-4o"),

		EmbedProvider:  Provider(getEnv("REPOCHAT_EMBED_PROVIDER", "openai")),
		EmbedModel:     getEnv("REPOCHAT_EMBED_MODEL", "text-embedding-3-small"),
		EmbedDimension: getEnvInt("REPOCHAT_EMBED_DIMENSION", 1536),

		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),

		GitHubToken: os.Getenv("GITHUB_TOKEN"),

		CodeChunkSize:    getEnvInt("REPOCHAT_CODE_CHUNK_SIZE", 400),
		CodeChunkOverlap: getEnvInt("REPOCHAT_CODE_CHUNK_OVERLAP", 0),
		TextChunkSize:    getEnvInt("REPOCHAT_TEXT_CHUNK_SIZE", 1500),
		TextChunkOverlap: getEnvInt("REPOCHAT_TEXT_CHUNK_OVERLAP", 400),

		TopK:                    getEnvInt("REPOCHAT_TOP_K", 5),
		MaxRequiresActionCycles: getEnvInt("REPOCHAT_MAX_REQUIRES_ACTION_CYCLES", 5),

		IngestConcurrency: getEnvInt("REPOCHAT_INGEST_CONCURRENCY", 4),
		IndexBatchSize:    getEnvInt("REPOCHAT_INDEX_BATCH_SIZE", 32),
		IndexMaxRetries:   getEnvInt("REPOCHAT_INDEX_MAX_RETRIES", 3),

		ServerPort: getEnv("REPOCHAT_SERVER_PORT", "8080"),

		LogFile:  getEnv("REPOCHAT_LOG_FILE", "/tmp/repochat.log"),
		LogLevel: parseLogLevel(getEnv("REPOCHAT_LOG_LEVEL", "INFO")),
	}
}

// fileConfig mirrors the YAML config file. All fields are optional;
// unset fields keep their environment-derived values.
type fileConfig struct {
	SurrealDB struct {
		URL       *string `yaml:"url"`
		Namespace *string `yaml:"namespace"`
		Database  *string `yaml:"database"`
		User      *string `yaml:"user"`
		Pass      *string `yaml:"pass"`
	} `yaml:"surrealdb"`
	Models struct {
		Provider       *string `yaml:"provider"`
		Conversation   *string `yaml:"conversation"`
		EmbedProvider  *string `yaml:"embed_provider"`
		Embedding      *string `yaml:"embedding"`
		EmbedDimension *int    `yaml:"embed_dimension"`
	} `yaml:"models"`
	Splitter struct {
		Code struct {
			ChunkSize    *int `yaml:"chunk_size"`
			ChunkOverlap *int `yaml:"chunk_overlap"`
		} `yaml:"code"`
		Text struct {
			ChunkSize    *int `yaml:"chunk_size"`
			ChunkOverlap *int `yaml:"chunk_overlap"`
		} `yaml:"text"`
	} `yaml:"splitter"`
	TopK                    *int    `yaml:"top_k"`
	MaxRequiresActionCycles *int    `yaml:"max_requires_action_cycles"`
	ServerPort              *string `yaml:"server_port"`
}

// ApplyFile overlays values from a YAML config file onto cfg.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setString(&c.SurrealDBURL, fc.SurrealDB.URL)
	setString(&c.SurrealDBNamespace, fc.SurrealDB.Namespace)
	setString(&c.SurrealDBDatabase, fc.SurrealDB.Database)
	setString(&c.SurrealDBUser, fc.SurrealDB.User)
	setString(&c.SurrealDBPass, fc.SurrealDB.Pass)

	if fc.Models.Provider != nil {
		c.LLMProvider = Provider(*fc.Models.Provider)
	}
	setString(&c.LLMModel, fc.Models.Conversation)
	if fc.Models.EmbedProvider != nil {
		c.EmbedProvider = Provider(*fc.Models.EmbedProvider)
	}
	setString(&c.EmbedModel, fc.Models.Embedding)
	setInt(&c.EmbedDimension, fc.Models.EmbedDimension)

	setInt(&c.CodeChunkSize, fc.Splitter.Code.ChunkSize)
	setInt(&c.CodeChunkOverlap, fc.Splitter.Code.ChunkOverlap)
	setInt(&c.TextChunkSize, fc.Splitter.Text.ChunkSize)
	setInt(&c.TextChunkOverlap, fc.Splitter.Text.ChunkOverlap)

	setInt(&c.TopK, fc.TopK)
	setInt(&c.MaxRequiresActionCycles, fc.MaxRequiresActionCycles)
	setString(&c.ServerPort, fc.ServerPort)

	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
