package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Provider and index names accepted in the config file.
const (
	EmbeddingOllama = "ollama"
	EmbeddingONNX   = "onnx"
	EmbeddingHash   = "hash"

	IndexMemory = "memory"
	IndexQdrant = "qdrant"

	LLMOllama = "ollama"
	LLMOpenAI = "openai"
)

const (
	DefaultTemperature  = 0.3
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultTopK         = 3
	DefaultDimensions   = 1024
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Paths.DocumentsDir == "" {
		cfg.Paths.DocumentsDir = "./data/documents"
	}
	if cfg.Paths.VectorDBDir == "" {
		cfg.Paths.VectorDBDir = "./data/vector_db"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = EmbeddingOllama
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "bge-m3"
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "http://localhost:11434"
	}
	applyDimensionsDefault(cfg)
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 32
	}
	if cfg.Vector.IndexType == "" {
		cfg.Vector.IndexType = IndexMemory
	}
	if cfg.Vector.QdrantURL == "" {
		cfg.Vector.QdrantURL = "http://localhost:6333"
	}
	if cfg.Vector.QdrantCollection == "" {
		cfg.Vector.QdrantCollection = "hoidap"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = LLMOllama
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "http://localhost:11434"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "llama3"
	}
	if cfg.LLM.Temperature == nil {
		t := DefaultTemperature
		cfg.LLM.Temperature = &t
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = DefaultChunkSize
	}
	if cfg.Chunking.ChunkOverlap == 0 {
		cfg.Chunking.ChunkOverlap = DefaultChunkOverlap
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = DefaultTopK
	}
}

// applyDimensionsDefault fills the embedding size for the hash provider. Ollama
// and ONNX models report their own size, so 0 is left in place for them.
func applyDimensionsDefault(cfg *Config) {
	if cfg.Embedding.Dimensions == 0 && cfg.Embedding.Provider == EmbeddingHash {
		cfg.Embedding.Dimensions = DefaultDimensions
	}
}

// ApplyEnv overrides cfg with HOIDAP_* environment variables that are set.
func ApplyEnv(cfg *Config) error {
	str := map[string]*string{
		"HOIDAP_DOCUMENTS_DIR":      &cfg.Paths.DocumentsDir,
		"HOIDAP_VECTOR_DB_DIR":      &cfg.Paths.VectorDBDir,
		"HOIDAP_EMBEDDING_PROVIDER": &cfg.Embedding.Provider,
		"HOIDAP_EMBEDDING_MODEL":    &cfg.Embedding.Model,
		"HOIDAP_EMBEDDING_URL":      &cfg.Embedding.BaseURL,
		"HOIDAP_INDEX_TYPE":         &cfg.Vector.IndexType,
		"HOIDAP_QDRANT_URL":         &cfg.Vector.QdrantURL,
		"HOIDAP_LLM_PROVIDER":       &cfg.LLM.Provider,
		"HOIDAP_LLM_URL":            &cfg.LLM.BaseURL,
		"HOIDAP_LLM_MODEL":          &cfg.LLM.Model,
		"HOIDAP_LLM_API_KEY":        &cfg.LLM.APIKey,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	ints := map[string]*int{
		"HOIDAP_EMBEDDING_DIMENSIONS": &cfg.Embedding.Dimensions,
		"HOIDAP_CHUNK_SIZE":           &cfg.Chunking.ChunkSize,
		"HOIDAP_CHUNK_OVERLAP":        &cfg.Chunking.ChunkOverlap,
		"HOIDAP_TOP_K":                &cfg.Retrieval.TopK,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
	}

	if v, ok := os.LookupEnv("HOIDAP_LLM_TEMPERATURE"); ok && strings.TrimSpace(v) != "" {
		t, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("invalid HOIDAP_LLM_TEMPERATURE: %w", err)
		}
		cfg.LLM.Temperature = &t
	}
	if v, ok := os.LookupEnv("HOIDAP_DEBUG"); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid HOIDAP_DEBUG: %w", err)
		}
		cfg.Debug = b
	}
	return nil
}
