// Package models defines core data structures for documents, chunks, vector records, and chat answers.
package models

// DocumentMetadata identifies where a piece of text came from.
type DocumentMetadata struct {
	Source string `json:"source"`
	Page   *int   `json:"page,omitempty"`
	Sheet  string `json:"sheet,omitempty"`
}

// Document is one extracted text record: a PDF page, a whole DOCX file, or an XLSX sheet.
// Documents are not modified after loading.
type Document struct {
	Content  string           `json:"content"`
	Metadata DocumentMetadata `json:"metadata"`
}

// Chunk is a window of a Document's text. StartIndex is the character offset
// of the window inside its parent document.
type Chunk struct {
	ID         string           `json:"id"`
	Content    string           `json:"content"`
	Index      int              `json:"index"`
	StartIndex int              `json:"start_index"`
	Metadata   DocumentMetadata `json:"metadata"`
}

// PageRef returns a pointer to a page number.
func PageRef(n int) *int {
	return &n
}
