package models

// VectorRecord is a persisted chunk together with its embedding.
type VectorRecord struct {
	ID         string           `json:"id"`
	Content    string           `json:"content"`
	Metadata   DocumentMetadata `json:"metadata"`
	StartIndex int              `json:"start_index"`
	Embedding  []float32        `json:"-"`
}

// RetrievedChunk is a single retrieval hit. Rank is 1-based.
type RetrievedChunk struct {
	Record *VectorRecord `json:"record"`
	Score  float64       `json:"score"`
	Rank   int           `json:"rank"`
}

// ChatResponse is the answer to one user question.
// Sources is never nil so it encodes as an empty JSON array.
type ChatResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}
