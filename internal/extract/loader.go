package extract

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hyperjump/hoidap/internal/models"
	"go.uber.org/zap"
)

// Loader reads every supported file directly inside a directory.
type Loader struct {
	extractor *Extractor
	logger    *zap.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the logger for skip and failure notices.
func WithLogger(l *zap.Logger) LoaderOption {
	return func(ld *Loader) {
		if l != nil {
			ld.logger = l
		}
	}
}

// NewLoader creates a Loader backed by extractor.
func NewLoader(extractor *Extractor, opts ...LoaderOption) *Loader {
	ld := &Loader{extractor: extractor, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

// LoadDirectory returns the records of every supported regular file directly
// inside dir, in lexical file-name order. Subdirectories are not visited.
// A missing or empty directory yields no records and no error. Files that fail
// to parse and files with unsupported extensions are logged and skipped.
func (ld *Loader) LoadDirectory(ctx context.Context, dir string) ([]*models.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			ld.logger.Warn("documents directory does not exist", zap.String("dir", dir))
			return []*models.Document{}, nil
		}
		return nil, fmt.Errorf("read documents directory: %w", err)
	}

	docs := []*models.Document{}
	files := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(dir, entry.Name())
		info, err := os.Stat(path)
		if err != nil {
			ld.logger.Warn("stat failed", zap.String("path", path), zap.Error(err))
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if !ld.extractor.Supported(filepath.Ext(path)) {
			ld.logger.Info("skipping unsupported file", zap.String("path", path))
			continue
		}
		records, err := ld.extractor.Extract(path)
		if err != nil {
			ld.logger.Warn("failed to extract file", zap.String("path", path), zap.Error(err))
			continue
		}
		files++
		docs = append(docs, records...)
		ld.logger.Debug("loaded file", zap.String("path", path), zap.Int("records", len(records)))
	}

	if len(docs) == 0 {
		ld.logger.Warn("no documents loaded", zap.String("dir", dir))
	} else {
		ld.logger.Info("loaded documents", zap.String("dir", dir), zap.Int("files", files), zap.Int("records", len(docs)))
	}
	return docs, nil
}
