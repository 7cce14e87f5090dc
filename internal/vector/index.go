// Package vector provides vector index and similarity search.
package vector

import "context"

// VectorIndex defines vector storage and similarity search.
type VectorIndex interface {
	// Reset drops every vector and prepares the index for vectors of dims length.
	Reset(ctx context.Context, dims int) error
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	// Search returns at most k hits by descending score.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Size() int
	Close() error
}

// Persistent is implemented by indexes whose contents outlive the process.
// Vectors carry the ID of the build they were added for, so a later run can
// tell whether the index still holds exactly that build.
type Persistent interface {
	// SetBuild tags vectors added from now on with build.
	SetBuild(build string)
	// CountBuild returns how many vectors are stored and how many of them
	// carry the build tag.
	CountBuild(ctx context.Context, build string) (total, tagged int, err error)
}

// VectorResult is a single vector search hit. ID is the chunk ID.
type VectorResult struct {
	ID    string
	Score float64 // Inner product; cosine similarity for normalized vectors
}
