// Package vectorstore builds and loads the persisted vector store: chunk
// records and embeddings in chroma.sqlite3, served through a vector index.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/hoidap/internal/config"
	"github.com/hyperjump/hoidap/internal/embedding"
	"github.com/hyperjump/hoidap/internal/extract"
	"github.com/hyperjump/hoidap/internal/indexer"
	"github.com/hyperjump/hoidap/internal/models"
	"github.com/hyperjump/hoidap/internal/storage"
	"github.com/hyperjump/hoidap/internal/vector"
	"go.uber.org/zap"
)

// MarkerFile is the database file whose presence marks a store directory as built.
const MarkerFile = "chroma.sqlite3"

var (
	ErrNoDocuments = indexer.ErrNoDocuments
	ErrNoChunks    = indexer.ErrNoChunks
	ErrEmbedding   = indexer.ErrEmbedding

	// ErrPersist means the store could not be written to disk.
	ErrPersist = errors.New("failed to persist vector store")
	// ErrStoreMissing means the store directory holds no marker file.
	ErrStoreMissing = errors.New("vector store not found")
	// ErrStoreCorrupt means the marker exists but the store cannot be trusted.
	ErrStoreCorrupt = errors.New("vector store is corrupt")
	// ErrModelMismatch means the store was built with a different embedding model.
	ErrModelMismatch = errors.New("vector store was built with a different embedding model")
	// ErrStoreOpen means the vector index could not be populated.
	ErrStoreOpen = errors.New("failed to open vector index")
)

// Store is a loaded vector store ready for retrieval.
type Store struct {
	index    vector.VectorIndex
	embedder embedding.Embedder
	records  map[string]*models.VectorRecord
	manifest *models.Manifest
	logger   *zap.Logger
}

// Option configures Build and Load.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	newIndex func(cfg config.VectorConfig, dims int) (vector.VectorIndex, error)
}

// WithLogger sets a logger for build and load progress.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithIndexFactory overrides how the vector index is created.
func WithIndexFactory(f func(cfg config.VectorConfig, dims int) (vector.VectorIndex, error)) Option {
	return func(o *options) {
		if f != nil {
			o.newIndex = f
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{logger: zap.NewNop(), newIndex: vector.NewVectorIndex}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// MarkerPath returns the path of the marker database inside dir.
func MarkerPath(dir string) string {
	return filepath.Join(dir, MarkerFile)
}

// Exists reports whether dir contains a marker file.
func Exists(dir string) bool {
	info, err := os.Stat(MarkerPath(dir))
	return err == nil && info.Mode().IsRegular()
}

// Build loads, splits and embeds the documents directory, writes a fresh store
// and returns it loaded. Any previous marker is replaced. On error nothing
// usable is left behind and the returned store is nil.
func Build(ctx context.Context, cfg *config.Config, embedder embedding.Embedder, opts ...Option) (*Store, error) {
	docs, err := PrepareDocuments(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return BuildPrepared(ctx, cfg, docs, embedder, opts...)
}

// PrepareDocuments loads and splits the documents directory without embedding
// anything. It fails with ErrNoDocuments or ErrNoChunks before any embedding
// model is needed.
func PrepareDocuments(ctx context.Context, cfg *config.Config, opts ...Option) (*indexer.Prepared, error) {
	o := newOptions(opts)
	return newIndexer(cfg, nil, o).ChunkDirectory(ctx, cfg.Paths.DocumentsDir)
}

// BuildPrepared embeds the chunks from PrepareDocuments, writes a fresh store
// and returns it loaded.
func BuildPrepared(ctx context.Context, cfg *config.Config, docs *indexer.Prepared, embedder embedding.Embedder, opts ...Option) (*Store, error) {
	o := newOptions(opts)
	records, err := newIndexer(cfg, embedder, o).EmbedChunks(ctx, docs.Chunks)
	if err != nil {
		return nil, err
	}

	manifest := &models.Manifest{
		SchemaVersion:     models.ManifestSchemaVersion,
		BuildID:           uuid.NewString(),
		EmbeddingProvider: cfg.Embedding.Provider,
		EmbeddingModel:    embedder.ModelID(),
		Dimensions:        embedder.Dimensions(),
		RecordCount:       len(records),
		DocumentCount:     docs.Documents,
		ChunkSize:         cfg.Chunking.ChunkSize,
		ChunkOverlap:      cfg.Chunking.ChunkOverlap,
		CreatedAt:         time.Now().UTC(),
	}
	path := MarkerPath(cfg.Paths.VectorDBDir)
	if err := persist(ctx, path, records, manifest); err != nil {
		_ = storage.Remove(path)
		return nil, err
	}
	o.logger.Info("vector store written",
		zap.String("path", path),
		zap.String("build_id", manifest.BuildID),
		zap.Int("records", manifest.RecordCount))

	return open(ctx, cfg.Vector, embedder, records, manifest, o, false)
}

func newIndexer(cfg *config.Config, embedder embedding.Embedder, o *options) *indexer.Indexer {
	loader := extract.NewLoader(extract.NewExtractor(), extract.WithLogger(o.logger))
	return indexer.NewIndexer(loader, embedder, cfg.Chunking,
		indexer.WithLogger(o.logger), indexer.WithBatchSize(cfg.Embedding.BatchSize))
}

func persist(ctx context.Context, path string, records []*models.VectorRecord, manifest *models.Manifest) error {
	db, err := storage.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if err := db.WriteRecords(ctx, records); err != nil {
		_ = db.Close()
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	// The manifest goes last; a store without one is treated as corrupt.
	if err := db.WriteManifest(ctx, manifest); err != nil {
		_ = db.Close()
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

// Load opens the store previously built in cfg.Paths.VectorDBDir. It never
// builds: a directory without the marker yields ErrStoreMissing.
func Load(ctx context.Context, cfg *config.Config, embedder embedding.Embedder, opts ...Option) (*Store, error) {
	o := newOptions(opts)
	dir := cfg.Paths.VectorDBDir

	manifest, records, err := readStore(ctx, dir)
	if err != nil {
		return nil, err
	}
	if manifest.EmbeddingModel != embedder.ModelID() || manifest.Dimensions != embedder.Dimensions() {
		return nil, fmt.Errorf("%w: store has %s (%d dims), embedder is %s (%d dims)", ErrModelMismatch,
			manifest.EmbeddingModel, manifest.Dimensions, embedder.ModelID(), embedder.Dimensions())
	}
	o.logger.Info("vector store loaded",
		zap.String("dir", dir),
		zap.String("build_id", manifest.BuildID),
		zap.Int("records", len(records)))

	return open(ctx, cfg.Vector, embedder, records, manifest, o, true)
}

// ReadManifest returns the manifest of the store in dir without loading records.
func ReadManifest(ctx context.Context, dir string) (*models.Manifest, error) {
	db, err := openMarker(dir)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	m, err := db.ReadManifest(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreCorrupt, err)
	}
	return m, nil
}

func openMarker(dir string) (*storage.SQLiteStorage, error) {
	path := MarkerPath(dir)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w in %s", ErrStoreMissing, dir)
		}
		return nil, fmt.Errorf("%w: %w", ErrStoreCorrupt, err)
	}
	db, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreCorrupt, err)
	}
	return db, nil
}

// Verify checks the store in dir without loading its records: the marker must
// exist and hold a manifest of the current schema that agrees with the record
// count. It needs no embedder.
func Verify(ctx context.Context, dir string) (*models.Manifest, error) {
	db, err := openMarker(dir)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return checkManifest(ctx, db)
}

func checkManifest(ctx context.Context, db *storage.SQLiteStorage) (*models.Manifest, error) {
	manifest, err := db.ReadManifest(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreCorrupt, err)
	}
	if manifest.SchemaVersion != models.ManifestSchemaVersion {
		return nil, fmt.Errorf("%w: schema version %d, want %d", ErrStoreCorrupt,
			manifest.SchemaVersion, models.ManifestSchemaVersion)
	}
	n, err := db.CountRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreCorrupt, err)
	}
	if int(n) != manifest.RecordCount {
		return nil, fmt.Errorf("%w: manifest lists %d records, found %d", ErrStoreCorrupt, manifest.RecordCount, n)
	}
	return manifest, nil
}

func readStore(ctx context.Context, dir string) (*models.Manifest, []*models.VectorRecord, error) {
	db, err := openMarker(dir)
	if err != nil {
		return nil, nil, err
	}
	defer db.Close()

	manifest, err := checkManifest(ctx, db)
	if err != nil {
		return nil, nil, err
	}
	records, err := db.ReadRecords(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrStoreCorrupt, err)
	}
	for _, r := range records {
		if len(r.Embedding) != manifest.Dimensions {
			return nil, nil, fmt.Errorf("%w: record %s has %d dims, want %d", ErrStoreCorrupt,
				r.ID, len(r.Embedding), manifest.Dimensions)
		}
	}
	return manifest, records, nil
}

// open creates the vector index and fills it with records. When reuse is set
// and a persistent index holds exactly the manifest's records, all tagged with
// its build ID, it is used as is.
func open(ctx context.Context, cfg config.VectorConfig, embedder embedding.Embedder, records []*models.VectorRecord, manifest *models.Manifest, o *options, reuse bool) (*Store, error) {
	index, err := o.newIndex(cfg, manifest.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreOpen, err)
	}
	populate := true
	if p, ok := index.(vector.Persistent); ok {
		p.SetBuild(manifest.BuildID)
		if reuse {
			total, tagged, err := p.CountBuild(ctx, manifest.BuildID)
			switch {
			case err != nil:
				o.logger.Warn("cannot inspect vector index, refilling", zap.Error(err))
			case total == len(records) && tagged == total:
				populate = false
				o.logger.Debug("reusing populated vector index", zap.Int("points", total))
			default:
				o.logger.Info("vector index holds another build, refilling",
					zap.Int("points", total), zap.Int("matching", tagged))
			}
		}
	}
	if populate {
		if err := fill(ctx, index, records, manifest.Dimensions); err != nil {
			_ = index.Close()
			return nil, fmt.Errorf("%w: %w", ErrStoreOpen, err)
		}
	}

	byID := make(map[string]*models.VectorRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}
	return &Store{
		index:    index,
		embedder: embedder,
		records:  byID,
		manifest: manifest,
		logger:   o.logger,
	}, nil
}

func fill(ctx context.Context, index vector.VectorIndex, records []*models.VectorRecord, dims int) error {
	if err := index.Reset(ctx, dims); err != nil {
		return err
	}
	ids := make([]string, len(records))
	vecs := make([][]float32, len(records))
	for i, r := range records {
		ids[i] = r.ID
		vecs[i] = r.Embedding
	}
	return index.Add(ctx, ids, vecs)
}

// Retrieve embeds query and returns the k most similar records by descending
// score. k <= 0 means the default of 3.
func (s *Store) Retrieve(ctx context.Context, query string, k int) ([]*models.RetrievedChunk, error) {
	if k <= 0 {
		k = config.DefaultTopK
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	hits, err := s.index.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	out := make([]*models.RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		r, ok := s.records[h.ID]
		if !ok {
			s.logger.Warn("index returned unknown chunk", zap.String("id", h.ID))
			continue
		}
		out = append(out, &models.RetrievedChunk{Record: r, Score: h.Score, Rank: len(out) + 1})
	}
	return out, nil
}

// Manifest returns the manifest the store was built with.
func (s *Store) Manifest() *models.Manifest {
	return s.manifest
}

// Size returns the number of records in the store.
func (s *Store) Size() int {
	return len(s.records)
}

// Close releases the vector index. The embedder is owned by the caller.
func (s *Store) Close() error {
	return s.index.Close()
}

// Retriever is a store bound to a fixed k.
type Retriever struct {
	store *Store
	k     int
}

// AsRetriever returns a retriever that always asks for k records.
func (s *Store) AsRetriever(k int) *Retriever {
	if k <= 0 {
		k = config.DefaultTopK
	}
	return &Retriever{store: s, k: k}
}

// Retrieve returns the retriever's k most similar records for query.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]*models.RetrievedChunk, error) {
	return r.store.Retrieve(ctx, query, r.k)
}

// K returns the number of records requested per query.
func (r *Retriever) K() int {
	return r.k
}
