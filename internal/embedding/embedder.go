// Package embedding provides text embedding providers and caching.
package embedding

import (
	"context"
	"errors"
)

// ErrEmbeddingModel is returned when an embedding model cannot be loaded or reached.
var ErrEmbeddingModel = errors.New("embedding model unavailable")

// Embedder produces vector embeddings for text. Vectors are L2-normalized.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	// ModelID identifies the model so a store built with one model is not queried with another.
	ModelID() string
	Close() error
}
