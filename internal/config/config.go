// Package config collects environment-backed settings in one place so
// the entry points share a single source of defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds runtime configuration for the server and ingest CLI.
type Config struct {
	// OpenAIAPIKey authenticates both the embedding and generation
	// clients.
	OpenAIAPIKey string

	EmbeddingModel     string
	EmbeddingDimension int
	GenerationModel    string

	QdrantHost       string
	QdrantPort       int
	QdrantCollection string

	// VectorStore selects the chunk store backend: "qdrant" or
	// "memory" (tests and single-process setups).
	VectorStore string

	// DataDir holds the SQLite document store.
	DataDir string

	Port string

	ChunkSize    int
	ChunkOverlap int
	MaxSources   int

	IndexConcurrency  int
	RequestsPerSecond float64
}

// FromEnv builds a Config from environment variables, applying
// defaults for anything unset.
func FromEnv() *Config {
	return &Config{
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		EmbeddingModel:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimension: getEnvInt("EMBEDDING_DIMENSION", 1536),
		GenerationModel:    getEnv("GENERATION_MODEL", ""),
		QdrantHost:         getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:         getEnvInt("QDRANT_PORT", 6334),
		QdrantCollection:   getEnv("QDRANT_COLLECTION", "chunks"),
		VectorStore:        getEnv("VECTOR_STORE", "qdrant"),
		DataDir:            getEnv("DATA_DIR", "./data"),
		Port:               getEnv("PORT", "8080"),
		ChunkSize:          getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:       getEnvInt("CHUNK_OVERLAP", 200),
		MaxSources:         getEnvInt("MAX_SOURCES", 5),
		IndexConcurrency:   getEnvInt("INDEX_CONCURRENCY", 4),
		RequestsPerSecond:  getEnvFloat("REQUESTS_PER_SECOND", 0),
	}
}

// Validate rejects configurations that would fail later in a less
// obvious place.
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap must satisfy 0 <= overlap < size, got size=%d overlap=%d", c.ChunkSize, c.ChunkOverlap)
	}
	if c.MaxSources <= 0 {
		return fmt.Errorf("MAX_SOURCES must be positive, got %d", c.MaxSources)
	}
	switch c.VectorStore {
	case "qdrant", "memory":
	default:
		return fmt.Errorf("unknown VECTOR_STORE %q", c.VectorStore)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
