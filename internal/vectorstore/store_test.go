package vectorstore

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/hoidap/internal/config"
	"github.com/hyperjump/hoidap/internal/embedding"
	"github.com/hyperjump/hoidap/internal/storage"
	"github.com/hyperjump/hoidap/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docx(paragraphs ...string) []byte {
	var body string
	for _, p := range paragraphs {
		body += `<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`
	}
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create("word/document.xml")
	_, _ = fw.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body + `</w:body></w:document>`))
	_ = w.Close()
	return buf.Bytes()
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	docs := filepath.Join(root, "documents")
	require.NoError(t, os.MkdirAll(docs, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "quyche.docx"), docx(
		"Điều 1. Quy chế này áp dụng cho sinh viên hệ chính quy của trường.",
		"Điều 2. Sinh viên phải đăng ký học phần trước ngày bắt đầu học kỳ.",
		"Điều 3. Học phí được nộp theo từng học kỳ tại phòng tài chính.",
	), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "kytucxa.docx"), docx(
		"Ký túc xá mở cửa từ 5 giờ sáng đến 23 giờ.",
		"Sinh viên nội trú không được nấu ăn trong phòng.",
	), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "ghichu.txt"), []byte("bỏ qua"), 0600))

	return &config.Config{
		Paths:     config.PathsConfig{DocumentsDir: docs, VectorDBDir: filepath.Join(root, "vector_db")},
		Embedding: config.EmbeddingConfig{Provider: config.EmbeddingHash, Dimensions: 16, BatchSize: 2},
		Vector:    config.VectorConfig{IndexType: config.IndexMemory},
		Chunking:  config.ChunkingConfig{ChunkSize: 80, ChunkOverlap: 20},
		Retrieval: config.RetrievalConfig{TopK: 3},
	}
}

func TestBuildThenLoad_sameRanking(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	emb := embedding.NewHashEmbedder(16)

	built, err := Build(ctx, cfg, emb)
	require.NoError(t, err)
	defer built.Close()
	assert.True(t, Exists(cfg.Paths.VectorDBDir))
	assert.Equal(t, built.Size(), built.Manifest().RecordCount)
	assert.Equal(t, 2, built.Manifest().DocumentCount)
	assert.Equal(t, "hash-16", built.Manifest().EmbeddingModel)
	assert.NotEmpty(t, built.Manifest().BuildID)

	loaded, err := Load(ctx, cfg, emb)
	require.NoError(t, err)
	defer loaded.Close()
	assert.Equal(t, built.Manifest().BuildID, loaded.Manifest().BuildID)
	assert.Equal(t, built.Size(), loaded.Size())

	for _, q := range []string{"học phí nộp ở đâu", "ký túc xá mở cửa lúc mấy giờ", "đăng ký học phần"} {
		a, err := built.Retrieve(ctx, q, 3)
		require.NoError(t, err)
		b, err := loaded.Retrieve(ctx, q, 3)
		require.NoError(t, err)
		require.Len(t, b, len(a))
		for i := range a {
			assert.Equal(t, a[i].Record.ID, b[i].Record.ID, "query %q rank %d", q, i+1)
			assert.Equal(t, a[i].Record.Content, b[i].Record.Content)
			assert.Equal(t, i+1, b[i].Rank)
		}
	}
}

func TestRetrieve_k(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	s, err := Build(ctx, cfg, embedding.NewHashEmbedder(16))
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Retrieve(ctx, "học phí", 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = s.Retrieve(ctx, "học phí", s.Size()+10)
	require.NoError(t, err)
	assert.Len(t, got, s.Size())
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}

	r := s.AsRetriever(2)
	assert.Equal(t, 2, r.K())
	got, err = r.Retrieve(ctx, "ký túc xá")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestBuild_noDocuments(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.RemoveAll(cfg.Paths.DocumentsDir))
	require.NoError(t, os.MkdirAll(cfg.Paths.DocumentsDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.DocumentsDir, "a.txt"), []byte("x"), 0600))

	s, err := Build(context.Background(), cfg, embedding.NewHashEmbedder(16))
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrNoDocuments)
	assert.False(t, Exists(cfg.Paths.VectorDBDir))
}

type brokenEmbedder struct{ *embedding.HashEmbedder }

func (brokenEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("connection refused")
}

func TestBuild_embeddingFailure(t *testing.T) {
	cfg := testConfig(t)
	_, err := Build(context.Background(), cfg, brokenEmbedder{embedding.NewHashEmbedder(16)})
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.False(t, Exists(cfg.Paths.VectorDBDir))
}

func TestLoad_missingMarker(t *testing.T) {
	cfg := testConfig(t)
	_, err := Load(context.Background(), cfg, embedding.NewHashEmbedder(16))
	assert.ErrorIs(t, err, ErrStoreMissing)

	s, err := Build(context.Background(), cfg, embedding.NewHashEmbedder(16))
	require.NoError(t, err)
	s.Close()
	require.NoError(t, storage.Remove(MarkerPath(cfg.Paths.VectorDBDir)))

	_, err = Load(context.Background(), cfg, embedding.NewHashEmbedder(16))
	assert.ErrorIs(t, err, ErrStoreMissing)
}

func TestLoad_corruptMarker(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.Paths.VectorDBDir, 0755))
	require.NoError(t, os.WriteFile(MarkerPath(cfg.Paths.VectorDBDir), []byte("not a database at all, just some bytes"), 0600))

	_, err := Load(context.Background(), cfg, embedding.NewHashEmbedder(16))
	assert.ErrorIs(t, err, ErrStoreCorrupt)
}

func TestLoad_noManifest(t *testing.T) {
	cfg := testConfig(t)
	db, err := storage.Create(MarkerPath(cfg.Paths.VectorDBDir))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Load(context.Background(), cfg, embedding.NewHashEmbedder(16))
	assert.ErrorIs(t, err, ErrStoreCorrupt)

	_, err = ReadManifest(context.Background(), cfg.Paths.VectorDBDir)
	assert.ErrorIs(t, err, ErrStoreCorrupt)
}

func TestLoad_modelMismatch(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	s, err := Build(ctx, cfg, embedding.NewHashEmbedder(16))
	require.NoError(t, err)
	s.Close()

	_, err = Load(ctx, cfg, embedding.NewHashEmbedder(32))
	assert.ErrorIs(t, err, ErrModelMismatch)
}

func TestReadManifest(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	_, err := ReadManifest(ctx, cfg.Paths.VectorDBDir)
	assert.ErrorIs(t, err, ErrStoreMissing)

	s, err := Build(ctx, cfg, embedding.NewHashEmbedder(16))
	require.NoError(t, err)
	defer s.Close()

	m, err := ReadManifest(ctx, cfg.Paths.VectorDBDir)
	require.NoError(t, err)
	assert.Equal(t, s.Manifest().BuildID, m.BuildID)
	assert.Equal(t, config.EmbeddingHash, m.EmbeddingProvider)
	assert.Equal(t, 80, m.ChunkSize)
}

// sharedIndex stands in for a server-side index whose points outlive each
// Store: Close keeps them and every point remembers its build tag.
type sharedIndex struct {
	*vector.MemoryIndex
	build string
	tags  []string
	adds  int
}

func (x *sharedIndex) SetBuild(build string) { x.build = build }

func (x *sharedIndex) CountBuild(_ context.Context, build string) (int, int, error) {
	n := 0
	for _, tag := range x.tags {
		if tag == build {
			n++
		}
	}
	return len(x.tags), n, nil
}

func (x *sharedIndex) Reset(ctx context.Context, dims int) error {
	x.tags = nil
	return x.MemoryIndex.Reset(ctx, dims)
}

func (x *sharedIndex) Add(ctx context.Context, ids []string, vecs [][]float32) error {
	x.adds++
	for range ids {
		x.tags = append(x.tags, x.build)
	}
	return x.MemoryIndex.Add(ctx, ids, vecs)
}

func (x *sharedIndex) Close() error { return nil }

func newSharedIndex(t *testing.T, dims int) (*sharedIndex, Option) {
	t.Helper()
	m, err := vector.NewMemoryIndex(dims)
	require.NoError(t, err)
	x := &sharedIndex{MemoryIndex: m}
	return x, WithIndexFactory(func(config.VectorConfig, int) (vector.VectorIndex, error) {
		return x, nil
	})
}

func TestLoad_reusesIndexOfSameBuild(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	idx, withShared := newSharedIndex(t, 16)

	s, err := Build(ctx, cfg, embedding.NewHashEmbedder(16), withShared)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.Equal(t, 1, idx.adds)

	loaded, err := Load(ctx, cfg, embedding.NewHashEmbedder(16), withShared)
	require.NoError(t, err)
	defer loaded.Close()
	assert.Equal(t, 1, idx.adds, "index already holds this build")

	hits, err := loaded.Retrieve(ctx, "ký túc xá mở cửa", 3)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestLoad_refillsIndexOfOtherBuild(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	idx, withShared := newSharedIndex(t, 16)

	s, err := Build(ctx, cfg, embedding.NewHashEmbedder(16), withShared)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	first := s.Manifest()

	// Same number of chunks, one word changed, rebuilt into the in-memory index.
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.DocumentsDir, "kytucxa.docx"), docx(
		"Ký túc xá mở cửa từ 6 giờ sáng đến 23 giờ.",
		"Sinh viên nội trú không được nấu ăn trong phòng.",
	), 0600))
	s, err = Build(ctx, cfg, embedding.NewHashEmbedder(16))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	second := s.Manifest()
	require.Equal(t, first.RecordCount, second.RecordCount)
	require.NotEqual(t, first.BuildID, second.BuildID)

	loaded, err := Load(ctx, cfg, embedding.NewHashEmbedder(16), withShared)
	require.NoError(t, err)
	defer loaded.Close()
	assert.Equal(t, 2, idx.adds, "stale points must be replaced")
	total, tagged, err := idx.CountBuild(ctx, second.BuildID)
	require.NoError(t, err)
	assert.Equal(t, second.RecordCount, total)
	assert.Equal(t, total, tagged)
}

func TestLoad_refillsPartiallyFilledIndex(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	idx, withShared := newSharedIndex(t, 16)

	s, err := Build(ctx, cfg, embedding.NewHashEmbedder(16), withShared)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	idx.tags = idx.tags[:len(idx.tags)-1]

	loaded, err := Load(ctx, cfg, embedding.NewHashEmbedder(16), withShared)
	require.NoError(t, err)
	defer loaded.Close()
	assert.Equal(t, 2, idx.adds)
}

func TestPrepareDocuments_needsNoEmbedder(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	docs, err := PrepareDocuments(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, docs.Documents)
	assert.NotEmpty(t, docs.Chunks)

	s, err := BuildPrepared(ctx, cfg, docs, embedding.NewHashEmbedder(16))
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, len(docs.Chunks), s.Manifest().RecordCount)

	empty := testConfig(t)
	require.NoError(t, os.RemoveAll(empty.Paths.DocumentsDir))
	_, err = PrepareDocuments(ctx, empty)
	assert.ErrorIs(t, err, ErrNoDocuments)
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	_, err := Verify(ctx, cfg.Paths.VectorDBDir)
	assert.ErrorIs(t, err, ErrStoreMissing)

	db, err := storage.Create(MarkerPath(cfg.Paths.VectorDBDir))
	require.NoError(t, err)
	require.NoError(t, db.Close())
	_, err = Verify(ctx, cfg.Paths.VectorDBDir)
	assert.ErrorIs(t, err, ErrStoreCorrupt)

	s, err := Build(ctx, cfg, embedding.NewHashEmbedder(16))
	require.NoError(t, err)
	defer s.Close()
	m, err := Verify(ctx, cfg.Paths.VectorDBDir)
	require.NoError(t, err)
	assert.Equal(t, s.Manifest().BuildID, m.BuildID)
}

func TestLoad_indexFailure(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	s, err := Build(ctx, cfg, embedding.NewHashEmbedder(16))
	require.NoError(t, err)
	s.Close()

	_, err = Load(ctx, cfg, embedding.NewHashEmbedder(16), WithIndexFactory(func(config.VectorConfig, int) (vector.VectorIndex, error) {
		return nil, errors.New("qdrant unreachable")
	}))
	assert.ErrorIs(t, err, ErrStoreOpen)
}
