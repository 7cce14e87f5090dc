package models

import "time"

// ManifestSchemaVersion is bumped whenever the on-disk store layout changes.
const ManifestSchemaVersion = 1

// Manifest describes a built vector store. It is written last during a build,
// so a store without one was never completed.
type Manifest struct {
	SchemaVersion     int       `json:"schema_version"`
	BuildID           string    `json:"build_id"`
	EmbeddingProvider string    `json:"embedding_provider"`
	EmbeddingModel    string    `json:"embedding_model"`
	Dimensions        int       `json:"dimensions"`
	RecordCount       int       `json:"record_count"`
	DocumentCount     int       `json:"document_count"`
	ChunkSize         int       `json:"chunk_size"`
	ChunkOverlap      int       `json:"chunk_overlap"`
	CreatedAt         time.Time `json:"created_at"`
}
