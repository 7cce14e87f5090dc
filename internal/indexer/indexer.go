package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/hoidap/internal/config"
	"github.com/hyperjump/hoidap/internal/embedding"
	"github.com/hyperjump/hoidap/internal/extract"
	"github.com/hyperjump/hoidap/internal/models"
	"go.uber.org/zap"
)

var (
	// ErrNoDocuments means the documents directory produced no records.
	ErrNoDocuments = errors.New("no documents found")
	// ErrNoChunks means every loaded record was empty after splitting.
	ErrNoChunks = errors.New("no chunks produced")
	// ErrEmbedding means the embedding provider failed.
	ErrEmbedding = errors.New("embedding failed")
)

// Result is the output of indexing a directory.
type Result struct {
	Documents int
	Records   []*models.VectorRecord
}

// Indexer loads, splits and embeds a documents directory.
type Indexer struct {
	loader    *extract.Loader
	embedder  embedding.Embedder
	chunker   *Chunker
	batchSize int
	logger    *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for progress output.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithBatchSize sets how many chunks are passed to the embedder per call.
func WithBatchSize(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.batchSize = n
		}
	}
}

// NewIndexer creates an indexer with the given dependencies.
func NewIndexer(loader *extract.Loader, embedder embedding.Embedder, cfg config.ChunkingConfig, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		loader:    loader,
		embedder:  embedder,
		chunker:   NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		batchSize: 32,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Prepared is a documents directory loaded and split, ready to embed.
type Prepared struct {
	Documents int
	Chunks    []*models.Chunk
}

// ChunkDirectory loads every supported file in dir and splits the records into
// chunks. It does not touch the embedder. Chunks keep the order of the files
// and of the text.
func (idx *Indexer) ChunkDirectory(ctx context.Context, dir string) (*Prepared, error) {
	docs, err := idx.loader.LoadDirectory(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDocuments, dir)
	}

	prepared := make([]*models.Document, len(docs))
	for i, d := range docs {
		prepared[i] = &models.Document{Content: Preprocess(d.Content), Metadata: d.Metadata}
	}
	chunks, err := idx.chunker.ChunkDocuments(prepared)
	if err != nil {
		return nil, fmt.Errorf("chunk documents: %w", err)
	}
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}
	idx.logger.Info("split documents", zap.Int("records", len(docs)), zap.Int("chunks", len(chunks)))
	return &Prepared{Documents: len(docs), Chunks: chunks}, nil
}

// IndexDirectory chunks dir and embeds the chunks.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string) (*Result, error) {
	p, err := idx.ChunkDirectory(ctx, dir)
	if err != nil {
		return nil, err
	}
	records, err := idx.EmbedChunks(ctx, p.Chunks)
	if err != nil {
		return nil, err
	}
	return &Result{Documents: p.Documents, Records: records}, nil
}

// EmbedChunks embeds chunks in batches and returns one record per chunk.
func (idx *Indexer) EmbedChunks(ctx context.Context, chunks []*models.Chunk) ([]*models.VectorRecord, error) {
	if idx.embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured", ErrEmbedding)
	}
	records := make([]*models.VectorRecord, 0, len(chunks))
	for start := 0; start < len(chunks); start += idx.batchSize {
		end := start + idx.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, ch := range chunks[start:end] {
			texts = append(texts, ch.Content)
		}
		vecs, err := idx.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbedding, len(vecs), len(texts))
		}
		for i, ch := range chunks[start:end] {
			records = append(records, &models.VectorRecord{
				ID:         ch.ID,
				Content:    ch.Content,
				Metadata:   ch.Metadata,
				StartIndex: ch.StartIndex,
				Embedding:  vecs[i],
			})
		}
		idx.logger.Debug("embedded batch", zap.Int("done", end), zap.Int("total", len(chunks)))
	}
	return records, nil
}
