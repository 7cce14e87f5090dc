package indexer

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
	"github.com/hyperjump/hoidap/internal/extract"
	"github.com/xuri/excelize/v2"
)

func docxBytes(paragraphs ...string) []byte {
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

type failingEmbedder struct{ *embedding.HashEmbedder }

func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("connection refused")
}

func newTestIndexer(e embedding.Embedder) *Indexer {
	return NewIndexer(extract.NewLoader(extract.NewExtractor()), e,
		config.ChunkingConfig{ChunkSize: 40, ChunkOverlap: 10}, WithBatchSize(2))
}

func TestIndexDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "quyche.docx"),
		docxBytes("Điều 1. Quy chế này áp dụng cho sinh viên chính quy.", "Điều 2. Sinh viên phải đăng ký học phần đúng hạn."), 0600); err != nil {
		t.Fatal(err)
	}
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "Học phí")
	f.SetCellValue("Sheet1", "B1", "15 triệu")
	if err := f.SaveAs(filepath.Join(dir, "hocphi.xlsx")); err != nil {
		t.Fatal(err)
	}
	f.Close()

	res, err := newTestIndexer(embedding.NewHashEmbedder(8)).IndexDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("IndexDirectory: %v", err)
	}
	if res.Documents != 2 {
		t.Errorf("documents = %d, want 2", res.Documents)
	}
	if len(res.Records) < 3 {
		t.Fatalf("expected the docx to be split into several records, got %d", len(res.Records))
	}
	first := res.Records[0]
	if first.Metadata.Sheet != "Sheet1" || first.Content != "Học phí\t15 triệu" {
		t.Errorf("hocphi.xlsx sorts first, got %+v", first)
	}
	for i, r := range res.Records {
		if len(r.Embedding) != 8 {
			t.Errorf("record %d embedding len %d", i, len(r.Embedding))
		}
		if r.ID == "" {
			t.Errorf("record %d has no ID", i)
		}
	}
}

func TestIndexDirectory_noDocuments(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("ignored"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := newTestIndexer(embedding.NewHashEmbedder(8)).IndexDirectory(context.Background(), dir)
	if !errors.Is(err, ErrNoDocuments) {
		t.Fatalf("expected ErrNoDocuments, got %v", err)
	}
}

func TestIndexDirectory_embeddingFailure(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.docx"), docxBytes("Nội dung"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := newTestIndexer(failingEmbedder{embedding.NewHashEmbedder(8)}).IndexDirectory(context.Background(), dir)
	if !errors.Is(err, ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
}

func TestChunkDirectory_withoutEmbedder(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.docx"), docxBytes("Điều 1. Sinh viên được nghỉ hè hai tháng."), 0600); err != nil {
		t.Fatal(err)
	}
	idx := newTestIndexer(nil)
	p, err := idx.ChunkDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("ChunkDirectory: %v", err)
	}
	if p.Documents != 1 || len(p.Chunks) == 0 {
		t.Fatalf("got %d documents, %d chunks", p.Documents, len(p.Chunks))
	}
	if _, err := idx.EmbedChunks(context.Background(), p.Chunks); !errors.Is(err, ErrEmbedding) {
		t.Errorf("embedding without an embedder should fail with ErrEmbedding, got %v", err)
	}

	if _, err := idx.ChunkDirectory(context.Background(), t.TempDir()); !errors.Is(err, ErrNoDocuments) {
		t.Errorf("empty dir: expected ErrNoDocuments, got %v", err)
	}
}
