// Package config loads runtime settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Metrics strategies select how report metrics are produced.
const (
	// MetricsAuto asks the LLM for document-level metrics and falls back to
	// text extraction.
	MetricsAuto = "auto"
	// MetricsText uses text extraction only.
	MetricsText = "text"
)

type LLMConfig struct {
	Provider  string
	Model     string
	MaxTokens int
}

type EmbeddingConfig struct {
	Provider  string
	Model     string
	Dimension int
}

type Config struct {
	HTTPAddr string

	// PostgresDSN and Neo4jURI are optional; empty disables the backend.
	PostgresDSN string
	Neo4jURI    string
	Neo4jUser   string
	Neo4jPass   string

	LLM        LLMConfig
	Embeddings EmbeddingConfig

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	ChunkMaxSize    int
	ChunkOverlap    int
	SessionCapacity int
	UploadMaxBytes  int64
	MaxTextChars    int
	MetricsStrategy string
}

// Load reads a .env file when present, then the process environment.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
		Neo4jURI:    os.Getenv("NEO4J_URI"),
		Neo4jUser:   getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPass:   getEnv("NEO4J_PASSWORD", "password"),
		LLM: LLMConfig{
			Provider:  strings.ToLower(getEnv("LLM_PROVIDER", ProviderOllama)),
			Model:     getEnv("LLM_MODEL", "llama3.1"),
			MaxTokens: getEnvInt("LLM_MAX_TOKENS", 1024),
		},
		Embeddings: EmbeddingConfig{
			Provider:  strings.ToLower(getEnv("EMBEDDINGS_PROVIDER", ProviderOllama)),
			Model:     getEnv("EMBEDDINGS_MODEL", "nomic-embed-text"),
			Dimension: getEnvInt("EMBEDDINGS_DIMENSION", 768),
		},
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:   os.Getenv("OPENAI_BASE_URL"),
		ChunkMaxSize:    getEnvInt("CHUNK_MAX_SIZE", 1500),
		ChunkOverlap:    getEnvInt("CHUNK_OVERLAP", 200),
		SessionCapacity: getEnvInt("SESSION_CAPACITY", 100),
		UploadMaxBytes:  int64(getEnvInt("UPLOAD_MAX_BYTES", 20<<20)),
		MaxTextChars:    getEnvInt("MAX_TEXT_CHARS", 500_000),
		MetricsStrategy: strings.ToLower(getEnv("METRICS_STRATEGY", MetricsAuto)),
	}
}

// PostgresEnabled reports whether a Postgres DSN is configured.
func (c Config) PostgresEnabled() bool { return c.PostgresDSN != "" }

// GraphEnabled reports whether a Neo4j URI is configured.
func (c Config) GraphEnabled() bool { return c.Neo4jURI != "" }

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}
