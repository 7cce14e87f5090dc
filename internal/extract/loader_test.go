package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestLoadDirectory_orderAndDispatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.docx"), minimalDocx(para("Tài liệu B")))
	writeFile(t, filepath.Join(dir, "a.docx"), minimalDocx(para("Tài liệu A")))
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "Bảng C")
	if err := f.SaveAs(filepath.Join(dir, "c.xlsx")); err != nil {
		t.Fatal(err)
	}
	f.Close()
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("ignored"))
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "sub", "nested.docx"), minimalDocx(para("nested")))

	docs, err := NewLoader(NewExtractor()).LoadDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadDirectory: %v", err)
	}
	want := []string{"Tài liệu A", "Tài liệu B", "Bảng C"}
	if len(docs) != len(want) {
		t.Fatalf("got %d records, want %d", len(docs), len(want))
	}
	for i, w := range want {
		if docs[i].Content != w {
			t.Errorf("docs[%d] = %q, want %q", i, docs[i].Content, w)
		}
	}
	if docs[2].Metadata.Sheet != "Sheet1" {
		t.Errorf("xlsx record should carry its sheet, got %+v", docs[2].Metadata)
	}
}

func TestLoadDirectory_onlyUnsupported(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), []byte("text"))
	writeFile(t, filepath.Join(dir, "b.pptx"), []byte("slides"))

	docs, err := NewLoader(NewExtractor()).LoadDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadDirectory: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("got %d records, want 0", len(docs))
	}
}

func TestLoadDirectory_missingDir(t *testing.T) {
	docs, err := NewLoader(NewExtractor()).LoadDirectory(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("missing directory should not be an error: %v", err)
	}
	if docs == nil || len(docs) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", docs)
	}
}

func TestLoadDirectory_corruptFileSkipped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "broken.pdf"), []byte("not a pdf"))
	writeFile(t, filepath.Join(dir, "ok.docx"), minimalDocx(para("Nội dung hợp lệ")))

	docs, err := NewLoader(NewExtractor()).LoadDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadDirectory: %v", err)
	}
	if len(docs) != 1 || docs[0].Content != "Nội dung hợp lệ" {
		t.Errorf("got %+v", docs)
	}
}

func TestLoadDirectory_cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.docx"), minimalDocx(para("x")))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewLoader(NewExtractor()).LoadDirectory(ctx, dir); err == nil {
		t.Error("expected context error")
	}
}
