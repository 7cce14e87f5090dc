// Package extract turns PDF, DOCX and XLSX files into document records.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/hoidap/internal/models"
)

// ErrUnsupportedFormat is returned for file extensions with no extractor.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Extractor extracts document records from files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Supported reports whether ext (with leading dot, any case) has an extractor.
func (e *Extractor) Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".docx", ".xlsx":
		return true
	}
	return false
}

// Extract reads the file at path and returns its records.
// PDF files yield one record per non-empty page, DOCX files a single record,
// XLSX files one record per non-empty sheet.
func (e *Extractor) Extract(path string) ([]*models.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !e.Supported(ext) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, ext, path)
}

// ExtractBytes extracts records from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf"); source is recorded in metadata.
func (e *Extractor) ExtractBytes(content []byte, ext, source string) ([]*models.Document, error) {
	switch strings.ToLower(ext) {
	case ".pdf":
		return extractPDF(content, source)
	case ".docx":
		return extractDOCX(content, source)
	case ".xlsx":
		return extractExcel(content, source)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}
