// Package cli provides the interactive loop and output formatting for hoidap.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hyperjump/hoidap/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a -output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteResponse writes an answer and its sources to w in the given format.
func WriteResponse(w io.Writer, resp models.ChatResponse, format OutputFormat) error {
	if format == OutputJSON {
		if resp.Sources == nil {
			resp.Sources = []string{}
		}
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "Chatbot: %s\n", resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Fprintln(w, "Nguồn tham khảo:")
		for _, s := range resp.Sources {
			fmt.Fprintf(w, "- %s\n", s)
		}
	}
	return nil
}

// Status describes the vector store and the configuration serving it.
type Status struct {
	DocumentsDir   string           `json:"documents_dir"`
	VectorDBDir    string           `json:"vector_db_dir"`
	Built          bool             `json:"built"`
	Manifest       *models.Manifest `json:"manifest,omitempty"`
	DiskUsageBytes *int64           `json:"disk_usage_bytes,omitempty"`
	IndexType      string           `json:"index_type"`
	LLMProvider    string           `json:"llm_provider"`
	LLMModel       string           `json:"llm_model"`
	TopK           int              `json:"top_k"`
}

// WriteStatus writes st to w in the given format.
func WriteStatus(w io.Writer, st *Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "documents_dir:      %s\n", st.DocumentsDir)
	fmt.Fprintf(w, "vector_db_dir:      %s\n", st.VectorDBDir)
	fmt.Fprintf(w, "built:              %t\n", st.Built)
	if m := st.Manifest; m != nil {
		fmt.Fprintf(w, "build_id:           %s\n", m.BuildID)
		fmt.Fprintf(w, "created_at:         %s\n", m.CreatedAt.Local().Format(time.DateTime))
		fmt.Fprintf(w, "documents:          %d   # records loaded from files\n", m.DocumentCount)
		fmt.Fprintf(w, "chunks:             %d   # embedded text chunks\n", m.RecordCount)
		fmt.Fprintf(w, "embedding_model:    %s (%s, %d dims)\n", m.EmbeddingModel, m.EmbeddingProvider, m.Dimensions)
		fmt.Fprintf(w, "chunk_size:         %d\n", m.ChunkSize)
		fmt.Fprintf(w, "chunk_overlap:      %d\n", m.ChunkOverlap)
	}
	if st.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d\n", *st.DiskUsageBytes)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "# configuration")
	fmt.Fprintf(w, "vector_index_type:  %s\n", st.IndexType)
	fmt.Fprintf(w, "llm:                %s (%s)\n", st.LLMModel, st.LLMProvider)
	fmt.Fprintf(w, "top_k:              %d\n", st.TopK)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
