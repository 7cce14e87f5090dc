package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/hoidap/internal/models"
)

// SQLiteStorage implements Storage using a single SQLite database file.
type SQLiteStorage struct {
	db *sql.DB
}

var _ Storage = (*SQLiteStorage)(nil)

// Create creates a fresh database at dbPath, replacing any existing file, and
// initializes the schema. Parent directories are created if they do not exist.
func Create(dbPath string) (*SQLiteStorage, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	if err := Remove(dbPath); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Open opens an existing database at dbPath. It never creates the file.
func Open(dbPath string) (*SQLiteStorage, error) {
	info, err := os.Stat(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat database: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", dbPath)
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// Remove deletes the database file at dbPath and its WAL sidecar files.
// Missing files are ignored.
func Remove(dbPath string) error {
	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS manifest (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		schema_version INTEGER NOT NULL,
		build_id TEXT NOT NULL,
		embedding_provider TEXT NOT NULL,
		embedding_model TEXT NOT NULL,
		dimensions INTEGER NOT NULL,
		record_count INTEGER NOT NULL,
		document_count INTEGER NOT NULL,
		chunk_size INTEGER NOT NULL,
		chunk_overlap INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS embeddings (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL,
		content TEXT NOT NULL,
		source TEXT NOT NULL,
		page INTEGER,
		sheet TEXT NOT NULL DEFAULT '',
		start_index INTEGER NOT NULL,
		vector BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_embeddings_seq ON embeddings(seq);
	CREATE INDEX IF NOT EXISTS idx_embeddings_source ON embeddings(source);
	`
	_, err := db.Exec(schema)
	return err
}

// WriteRecords appends records in a single transaction. Sequence numbers
// continue after the records already stored.
func (s *SQLiteStorage) WriteRecords(ctx context.Context, records []*models.VectorRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var next int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq) + 1, 0) FROM embeddings`).Scan(&next); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO embeddings (id, seq, content, source, page, sheet, start_index, vector)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range records {
		var page sql.NullInt64
		if r.Metadata.Page != nil {
			page = sql.NullInt64{Int64: int64(*r.Metadata.Page), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, r.ID, next+int64(i), r.Content, r.Metadata.Source, page,
			r.Metadata.Sheet, r.StartIndex, encodeVector(r.Embedding)); err != nil {
			return fmt.Errorf("insert record %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// ReadRecords returns every record ordered by write sequence.
func (s *SQLiteStorage) ReadRecords(ctx context.Context) ([]*models.VectorRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, source, page, sheet, start_index, vector
		 FROM embeddings ORDER BY seq`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.VectorRecord
	for rows.Next() {
		var r models.VectorRecord
		var page sql.NullInt64
		var blob []byte
		if err := rows.Scan(&r.ID, &r.Content, &r.Metadata.Source, &page, &r.Metadata.Sheet, &r.StartIndex, &blob); err != nil {
			return nil, err
		}
		if page.Valid {
			r.Metadata.Page = models.PageRef(int(page.Int64))
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", r.ID, err)
		}
		r.Embedding = vec
		records = append(records, &r)
	}
	return records, rows.Err()
}

// CountRecords returns the total number of stored records.
func (s *SQLiteStorage) CountRecords(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&count)
	return count, err
}

// WriteManifest stores m, replacing any previous manifest.
func (s *SQLiteStorage) WriteManifest(ctx context.Context, m *models.Manifest) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO manifest (id, schema_version, build_id, embedding_provider, embedding_model,
		 dimensions, record_count, document_count, chunk_size, chunk_overlap, created_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.SchemaVersion, m.BuildID, m.EmbeddingProvider, m.EmbeddingModel, m.Dimensions,
		m.RecordCount, m.DocumentCount, m.ChunkSize, m.ChunkOverlap, m.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// ReadManifest returns the stored manifest, or ErrNoManifest.
func (s *SQLiteStorage) ReadManifest(ctx context.Context) (*models.Manifest, error) {
	var m models.Manifest
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT schema_version, build_id, embedding_provider, embedding_model, dimensions,
		 record_count, document_count, chunk_size, chunk_overlap, created_at
		 FROM manifest WHERE id = 1`,
	).Scan(&m.SchemaVersion, &m.BuildID, &m.EmbeddingProvider, &m.EmbeddingModel, &m.Dimensions,
		&m.RecordCount, &m.DocumentCount, &m.ChunkSize, &m.ChunkOverlap, &created)
	if err == sql.ErrNoRows {
		return nil, ErrNoManifest
	}
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest created_at: %w", err)
	}
	m.CreatedAt = t
	return &m, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// encodeVector stores float32 values little-endian.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
