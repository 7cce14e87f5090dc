// Package indexer turns loaded documents into embedded vector records.
package indexer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/hoidap/internal/fileid"
	"github.com/hyperjump/hoidap/internal/models"
	"github.com/tmc/langchaingo/textsplitter"
)

// defaultSeparators are tried in order: paragraphs, lines, words, characters.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Span is one chunk of text and the character offset where it starts.
type Span struct {
	Text  string
	Start int
}

// Chunker splits text into overlapping windows of at most chunkSize characters,
// preferring to break on paragraph, then line, then word boundaries.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	splitter     textsplitter.RecursiveCharacter
}

// NewChunker creates a chunker with the given size and overlap (in characters).
// A non-positive size falls back to 1000; an overlap that is negative or not
// smaller than the size is clamped.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 5
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(defaultSeparators),
			textsplitter.WithKeepSeparator(true),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
		),
	}
}

// Split returns the trimmed, non-empty chunks of text with their start offsets.
// Starts are strictly increasing.
func (c *Chunker) Split(text string) ([]Span, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	pieces, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}
	spans := make([]Span, 0, len(pieces))
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		origin := 0
		if n := len(spans); n > 0 {
			prev := spans[n-1]
			origin = max(prev.Start+1, prev.Start+utf8.RuneCountInString(prev.Text)-c.chunkOverlap)
		}
		start := runeIndex(text, p, origin)
		if start < 0 {
			start = origin
		}
		spans = append(spans, Span{Text: p, Start: start})
	}
	return spans, nil
}

// ChunkDocuments splits every document and returns the chunks in order.
// Chunks inherit their parent's metadata; Index counts across all documents.
func (c *Chunker) ChunkDocuments(docs []*models.Document) ([]*models.Chunk, error) {
	chunks := make([]*models.Chunk, 0)
	for _, doc := range docs {
		spans, err := c.Split(doc.Content)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", doc.Metadata.Source, err)
		}
		meta := doc.Metadata
		for i, span := range spans {
			chunks = append(chunks, &models.Chunk{
				ID:         fileid.ChunkID(meta.Source, meta.Page, meta.Sheet, i, span.Start),
				Content:    span.Text,
				Index:      len(chunks),
				StartIndex: span.Start,
				Metadata:   meta,
			})
		}
	}
	return chunks, nil
}

// runeIndex returns the character offset of the first occurrence of sub in s
// at or after character offset from, or -1.
func runeIndex(s, sub string, from int) int {
	byteOff := 0
	for i := 0; i < from && byteOff < len(s); i++ {
		_, size := utf8.DecodeRuneInString(s[byteOff:])
		byteOff += size
	}
	i := strings.Index(s[byteOff:], sub)
	if i < 0 {
		return -1
	}
	return from + utf8.RuneCountInString(s[byteOff:byteOff+i])
}
