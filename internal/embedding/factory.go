package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/hoidap/internal/config"
	"go.uber.org/zap"
)

// New creates the embedder selected by cfg.Provider. A provider that cannot be
// initialized is an error; there is no fallback to another provider.
func New(ctx context.Context, cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case config.EmbeddingOllama:
		e, err := NewOllamaEmbedder(ctx, cfg.BaseURL, cfg.Model, cfg.Dimensions, cfg.BatchSize, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		logger.Info("using ollama embedder", zap.String("model", cfg.Model), zap.Int("dimensions", e.Dimensions()))
		return e, nil
	case config.EmbeddingONNX:
		e, err := NewONNXEmbedder(cfg.ModelPath, cfg.TokenizerPath, cfg.Model, cfg.Dimensions, cfg.MaxTokens, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		logger.Info("using ONNX embedder",
			zap.String("model_path", cfg.ModelPath),
			zap.String("tokenizer", TokenizerPath(cfg.TokenizerPath, cfg.ModelPath)),
			zap.Int("dimensions", e.Dimensions()))
		return e, nil
	case config.EmbeddingHash:
		logger.Warn("using hash embedder; retrieval will not be semantic", zap.Int("dimensions", cfg.Dimensions))
		return NewHashEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrEmbeddingModel, cfg.Provider)
	}
}
