// Package config provides configuration loading and structs for the hoidap assistant.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Paths     PathsConfig     `yaml:"paths"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vector    VectorConfig    `yaml:"vector"`
	LLM       LLMConfig       `yaml:"llm"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
}

// PathsConfig holds the document source and vector store locations.
type PathsConfig struct {
	DocumentsDir string `yaml:"documents_dir"`
	VectorDBDir  string `yaml:"vector_db_dir"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	ModelPath string `yaml:"model_path"`
	// TokenizerPath defaults to tokenizer.json next to ModelPath.
	TokenizerPath string `yaml:"tokenizer_path"`
	Dimensions    int    `yaml:"dimensions"`
	MaxTokens     int    `yaml:"max_tokens"`
	CacheSize     int    `yaml:"cache_size"`
	BatchSize     int    `yaml:"batch_size"`
}

// VectorConfig selects the similarity index backend.
type VectorConfig struct {
	IndexType        string `yaml:"index_type"`
	QdrantURL        string `yaml:"qdrant_url"`
	QdrantCollection string `yaml:"qdrant_collection"`
}

// LLMConfig holds language model runtime settings.
type LLMConfig struct {
	Provider    string   `yaml:"provider"`
	BaseURL     string   `yaml:"base_url"`
	Model       string   `yaml:"model"`
	APIKey      string   `yaml:"api_key"`
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
}

// TemperatureOrDefault returns the sampling temperature; defaults to 0.3 when unset.
func (l *LLMConfig) TemperatureOrDefault() float64 {
	if l.Temperature != nil {
		return *l.Temperature
	}
	return DefaultTemperature
}

// ChunkingConfig holds text splitter settings. Sizes are in characters.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// RetrievalConfig holds query-time retrieval settings.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// ValidationError reports an invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Message)
}

// Load reads and parses the config file at path, applies defaults and environment
// overrides, expands paths relative to the config file, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := finish(&cfg, filepath.Dir(path)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration with environment overrides applied.
// Relative paths resolve against the working directory.
func Default() (*Config, error) {
	var cfg Config
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}
	if err := finish(&cfg, wd); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func finish(cfg *Config, baseDir string) error {
	ApplyDefaults(cfg)
	if err := ApplyEnv(cfg); err != nil {
		return err
	}
	applyDimensionsDefault(cfg)
	cfg.Paths.DocumentsDir = expandPath(cfg.Paths.DocumentsDir, baseDir)
	cfg.Paths.VectorDBDir = expandPath(cfg.Paths.VectorDBDir, baseDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, baseDir)
	}
	if cfg.Embedding.TokenizerPath != "" {
		cfg.Embedding.TokenizerPath = expandPath(cfg.Embedding.TokenizerPath, baseDir)
	}
	return Validate(cfg)
}

// LoadDotEnv loads variables from a .env file into the process environment.
// Variables already set are kept. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks value ranges and known provider names.
func Validate(cfg *Config) error {
	if t := cfg.LLM.TemperatureOrDefault(); t < 0 || t > 1 {
		return &ValidationError{Field: "llm.temperature", Message: fmt.Sprintf("%.2f is outside [0, 1]", t)}
	}
	if cfg.Chunking.ChunkSize <= 0 {
		return &ValidationError{Field: "chunking.chunk_size", Message: "must be positive"}
	}
	if cfg.Chunking.ChunkOverlap < 0 || cfg.Chunking.ChunkOverlap >= cfg.Chunking.ChunkSize {
		return &ValidationError{Field: "chunking.chunk_overlap", Message: "must be in [0, chunk_size)"}
	}
	if cfg.Retrieval.TopK <= 0 {
		return &ValidationError{Field: "retrieval.top_k", Message: "must be positive"}
	}
	switch cfg.Embedding.Provider {
	case EmbeddingOllama, EmbeddingHash:
	case EmbeddingONNX:
		if cfg.Embedding.ModelPath == "" {
			return &ValidationError{Field: "embedding.model_path", Message: "required for the onnx provider"}
		}
	default:
		return &ValidationError{Field: "embedding.provider", Message: fmt.Sprintf("unknown provider %q", cfg.Embedding.Provider)}
	}
	switch cfg.Vector.IndexType {
	case IndexMemory, IndexQdrant:
	default:
		return &ValidationError{Field: "vector.index_type", Message: fmt.Sprintf("unknown index type %q", cfg.Vector.IndexType)}
	}
	switch cfg.LLM.Provider {
	case LLMOllama, LLMOpenAI:
	default:
		return &ValidationError{Field: "llm.provider", Message: fmt.Sprintf("unknown provider %q", cfg.LLM.Provider)}
	}
	if strings.TrimSpace(cfg.LLM.Model) == "" {
		return &ValidationError{Field: "llm.model", Message: "must not be empty"}
	}
	return nil
}

// expandPath converts a path to absolute. A leading "~/" is the home directory;
// other relative paths are relative to baseDir.
func expandPath(path string, baseDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
		return path
	}
	return filepath.Join(baseDir, path)
}
