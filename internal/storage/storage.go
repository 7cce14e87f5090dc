// Package storage persists vector records and the store manifest.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/hoidap/internal/models"
)

// ErrNoManifest is returned by ReadManifest when the build never completed.
var ErrNoManifest = errors.New("manifest not found")

// Storage defines record and manifest persistence operations.
type Storage interface {
	// Records are returned in the order they were written.
	WriteRecords(ctx context.Context, records []*models.VectorRecord) error
	ReadRecords(ctx context.Context) ([]*models.VectorRecord, error)
	CountRecords(ctx context.Context) (int64, error)

	WriteManifest(ctx context.Context, m *models.Manifest) error
	ReadManifest(ctx context.Context) (*models.Manifest, error)

	Close() error
}
